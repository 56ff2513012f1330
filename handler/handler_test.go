package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"customer-support-agent/internal/domain"
	"customer-support-agent/internal/usecase"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubUseCase struct {
	out    usecase.InvokeOutput
	chunks []string
	err    error
	// errAfterChunks fails the invocation after the chunks were emitted.
	errAfterChunks bool
	in             usecase.InvokeInput
	calls          int
}

func (s *stubUseCase) Invoke(_ context.Context, in usecase.InvokeInput, emit func(string) error) (usecase.InvokeOutput, error) {
	s.calls++
	s.in = in
	if s.err != nil && !s.errAfterChunks {
		return usecase.InvokeOutput{}, s.err
	}
	if emit != nil {
		for _, c := range s.chunks {
			if err := emit(c); err != nil {
				return usecase.InvokeOutput{}, err
			}
		}
	}
	return s.out, s.err
}

func newRouter(t *testing.T, uc *stubUseCase) *gin.Engine {
	t.Helper()
	h, err := NewHandler(uc)
	require.NoError(t, err)
	return h.Router()
}

// post uses gin's recorder because streaming responses need a CloseNotifier.
func post(r http.Handler, body string, headers map[string]string) *gin.TestResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/invocations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := gin.CreateTestResponseRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	r := newRouter(t, &stubUseCase{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(t, &stubUseCase{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "go_goroutines")
}

func TestInvocations_JSON(t *testing.T) {
	uc := &stubUseCase{out: usecase.InvokeOutput{Message: "Here is our return policy."}}
	r := newRouter(t, uc)

	w := post(r, `{"prompt":"Return policy?","actor_id":"cust-1","session_id":"sess-1"}`, map[string]string{
		"Authorization": "Bearer tok-123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	out := parseBody[domain.InvocationResponse](t, w.Body.String())
	require.Equal(t, "Here is our return policy.", out.Message)
	require.NotEmpty(t, w.Header().Get(headerCorrelationID))

	require.Equal(t, usecase.InvokeInput{
		Prompt:      "Return policy?",
		ActorID:     "cust-1",
		SessionID:   "sess-1",
		BearerToken: "tok-123",
	}, uc.in)
}

func TestInvocations_SessionFromRuntimeHeader(t *testing.T) {
	uc := &stubUseCase{out: usecase.InvokeOutput{Message: "ok"}}
	r := newRouter(t, uc)

	w := post(r, `{"prompt":"hi"}`, map[string]string{headerSessionID: "runtime-session"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "runtime-session", uc.in.SessionID)
	require.Empty(t, uc.in.BearerToken)
}

func TestInvocations_MissingPrompt(t *testing.T) {
	uc := &stubUseCase{}
	r := newRouter(t, uc)

	w := post(r, `{"actor_id":"cust-1"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	out := parseBody[errorResponse](t, w.Body.String())
	require.Equal(t, "No prompt provided", out.Error)
	require.Zero(t, uc.calls)
}

func TestInvocations_InvalidBody(t *testing.T) {
	r := newRouter(t, &stubUseCase{})
	w := post(r, `not-json`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	out := parseBody[errorResponse](t, w.Body.String())
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Code)
}

func TestInvocations_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_prompt"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "rate limited", err: &usecase.Error{Code: usecase.ErrorRateLimited, Reason: "model_rate_limited"}, status: http.StatusTooManyRequests, code: string(usecase.ErrorRateLimited)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "agent_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorUpstream)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(t, &stubUseCase{err: tc.err})
			w := post(r, `{"prompt":"hi"}`, nil)
			require.Equal(t, tc.status, w.Code)
			out := parseBody[errorResponse](t, w.Body.String())
			require.Equal(t, tc.code, out.Code)
			require.NotEmpty(t, out.Error)
		})
	}
}

func TestInvocations_Stream(t *testing.T) {
	uc := &stubUseCase{chunks: []string{"Hello", " there", "\nline two"}}
	r := newRouter(t, uc)

	w := post(r, `{"prompt":"hi","stream":true}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	require.Equal(t,
		"data: Hello\n\ndata:  there\n\ndata: \ndata: line two\n\ndata: [DONE]\n\n",
		w.Body.String())
}

func TestInvocations_StreamEmptyResponseStillTerminates(t *testing.T) {
	r := newRouter(t, &stubUseCase{})
	w := post(r, `{"prompt":"hi","stream":true}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "data: [DONE]\n\n", w.Body.String())
}

func TestInvocations_StreamErrorBeforeFirstChunk(t *testing.T) {
	r := newRouter(t, &stubUseCase{err: errors.New("bedrock down")})
	w := post(r, `{"prompt":"hi","stream":true}`, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	out := parseBody[errorResponse](t, w.Body.String())
	require.Contains(t, out.Error, "bedrock down")
}

func TestInvocations_StreamErrorAfterChunks(t *testing.T) {
	uc := &stubUseCase{chunks: []string{"partial"}, err: errors.New("tool crash"), errAfterChunks: true}
	r := newRouter(t, uc)

	w := post(r, `{"prompt":"hi","stream":true}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.True(t, strings.HasPrefix(body, "data: partial\n\n"))
	require.Contains(t, body, "data: [ERROR] tool crash\n\n")
	require.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func TestHandleAPIGateway_Invocation(t *testing.T) {
	uc := &stubUseCase{out: usecase.InvokeOutput{Message: "hello"}}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	ev := makeEvent(http.MethodPost, "/invocations", `{"prompt":"What do you sell?","actor_id":"a-1"}`)
	ev.Headers["authorization"] = "Bearer tok"
	resp, err := h.HandleAPIGateway(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello", parseBody[domain.InvocationResponse](t, resp.Body).Message)
	require.Equal(t, "tok", uc.in.BearerToken)
	require.Equal(t, "a-1", uc.in.ActorID)
	require.NotEmpty(t, resp.Headers[headerCorrelationID])
}

func TestHandleAPIGateway_Ping(t *testing.T) {
	h, err := NewHandler(&stubUseCase{})
	require.NoError(t, err)
	resp, err := h.HandleAPIGateway(context.Background(), makeEvent(http.MethodGet, "/ping", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleAPIGateway_Errors(t *testing.T) {
	h, err := NewHandler(&stubUseCase{err: errors.New("boom")})
	require.NoError(t, err)

	resp, err := h.HandleAPIGateway(context.Background(), makeEvent(http.MethodPost, "/invocations", `{}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, msgNoPrompt, parseBody[errorResponse](t, resp.Body).Error)

	resp, err = h.HandleAPIGateway(context.Background(), makeEvent(http.MethodPost, "/invocations", `nope`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = h.HandleAPIGateway(context.Background(), makeEvent(http.MethodPost, "/invocations", `{"prompt":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, err = h.HandleAPIGateway(context.Background(), makeEvent(http.MethodDelete, "/other", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleAPIGateway_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, err := NewHandler(&stubUseCase{out: usecase.InvokeOutput{Message: "ok"}})
	require.NoError(t, err)

	ev := makeEvent(http.MethodPost, "/invocations", `{"prompt":"hi"}`)
	ev.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.HandleAPIGateway(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers[headerCorrelationID])
}
