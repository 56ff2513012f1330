package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"customer-support-agent/internal/domain"
)

type echoInput struct {
	Text string `json:"text" jsonschema:"text to echo"`
}

func newTestServer(name string) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: name, Version: "test"}, nil)
	mcp.AddTool(s, &mcp.Tool{Name: "echo", Description: "Echo text."},
		func(_ context.Context, _ *mcp.CallToolRequest, in echoInput) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "echo: " + in.Text}}}, nil, nil
		})
	mcp.AddTool(s, &mcp.Tool{Name: "secret", Description: "Never allowed."},
		func(_ context.Context, _ *mcp.CallToolRequest, _ echoInput) (*mcp.CallToolResult, any, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "leaked"}}}, nil, nil
		})
	return s
}

// fakeModel replays scripted assistant messages and records each request.
type fakeModel struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []anthropic.MessageNewParams
}

func (f *fakeModel) Send(_ context.Context, params anthropic.MessageNewParams, onText func(string) error) (*anthropic.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, params)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return nil, errors.New("no scripted reply")
	}
	raw := f.replies[0]
	f.replies = f.replies[1:]

	var msg anthropic.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, err
	}
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok && onText != nil {
			if err := onText(v.Text); err != nil {
				return nil, err
			}
		}
	}
	return &msg, nil
}

func textReply(text string) string {
	return fmt.Sprintf(`{"id":"msg","type":"message","role":"assistant","model":"test","content":[{"type":"text","text":%q}],"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`, text)
}

func toolReply(id, name, input string) string {
	return fmt.Sprintf(`{"id":"msg","type":"message","role":"assistant","model":"test","content":[{"type":"text","text":"Let me check."},{"type":"tool_use","id":%q,"name":%q,"input":%s}],"stop_reason":"tool_use","usage":{"input_tokens":1,"output_tokens":1}}`, id, name, input)
}

func inProcessOptions() Options {
	return Options{
		SystemPrompt: "You are helpful.",
		MCPServers: map[string]domain.MCPServerConfig{
			"support": {Type: domain.MCPTypeInProcess, Name: "support"},
		},
		AllowedTools: []string{ToolName("support", "echo")},
		Model:        "test-model",
	}
}

func toolResultText(t *testing.T, p anthropic.MessageParam) (string, bool) {
	t.Helper()
	require.Len(t, p.Content, 1)
	tr := p.Content[0].OfToolResult
	require.NotNil(t, tr)
	require.NotEmpty(t, tr.Content)
	return tr.Content[0].OfText.Text, tr.IsError.Value
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
}

func TestQuery_PlainAnswer(t *testing.T) {
	model := &fakeModel{replies: []string{textReply("Hello there")}}
	a, err := New(model, map[string]*mcp.Server{"support": newTestServer("support")})
	require.NoError(t, err)

	var streamed []string
	res, err := a.Query(context.Background(), "hi", inProcessOptions(), func(m Message) error {
		if m.Kind == KindText {
			streamed = append(streamed, m.Content)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "Hello there", res.Text)
	require.Equal(t, 1, res.Turns)
	require.Equal(t, []string{"Hello there"}, streamed)

	req := model.requests[0]
	require.Equal(t, anthropic.Model("test-model"), req.Model)
	require.Equal(t, "You are helpful.", req.System[0].Text)
	require.Len(t, req.Tools, 1, "disallowed tools must not be exposed")
	require.Equal(t, "mcp__support__echo", req.Tools[0].OfTool.Name)
	require.Contains(t, req.Tools[0].OfTool.InputSchema.Properties, "text")
}

func TestQuery_ToolRoundTrip(t *testing.T) {
	model := &fakeModel{replies: []string{
		toolReply("tu_1", "mcp__support__echo", `{"text":"ping"}`),
		textReply("Done"),
	}}
	a, err := New(model, map[string]*mcp.Server{"support": newTestServer("support")})
	require.NoError(t, err)

	var kinds []string
	var text strings.Builder
	res, err := a.Query(context.Background(), "use the tool", inProcessOptions(), func(m Message) error {
		kinds = append(kinds, m.Kind)
		if m.Kind == KindText {
			text.WriteString(m.Content)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "Done", res.Text)
	require.Equal(t, 2, res.Turns)
	require.Equal(t, 1, res.ToolCalls)
	require.Equal(t, []string{KindText, KindToolUse, KindText, KindText}, kinds)
	require.Equal(t, "Let me check.\nDone", text.String())

	second := model.requests[1].Messages
	require.Len(t, second, 3)
	text, isErr := toolResultText(t, second[2])
	require.Equal(t, "echo: ping", text)
	require.False(t, isErr)
}

func TestQuery_DisallowedToolYieldsErrorResult(t *testing.T) {
	model := &fakeModel{replies: []string{
		toolReply("tu_1", "mcp__support__secret", `{"text":"x"}`),
		textReply("Sorry"),
	}}
	a, err := New(model, map[string]*mcp.Server{"support": newTestServer("support")})
	require.NoError(t, err)

	res, err := a.Query(context.Background(), "leak it", inProcessOptions(), nil)
	require.NoError(t, err)
	require.Equal(t, "Sorry", res.Text)

	text, isErr := toolResultText(t, model.requests[1].Messages[2])
	require.True(t, isErr)
	require.Contains(t, text, "not available")
}

func TestQuery_MaxTurns(t *testing.T) {
	model := &fakeModel{replies: []string{
		toolReply("tu_1", "mcp__support__echo", `{"text":"1"}`),
		toolReply("tu_2", "mcp__support__echo", `{"text":"2"}`),
	}}
	a, err := New(model, map[string]*mcp.Server{"support": newTestServer("support")})
	require.NoError(t, err)

	opts := inProcessOptions()
	opts.MaxTurns = 2
	res, err := a.Query(context.Background(), "loop", opts, nil)
	require.ErrorIs(t, err, ErrMaxTurns)
	require.Equal(t, 2, res.Turns)
	require.Len(t, model.requests, 2)
}

func TestQuery_ModelError(t *testing.T) {
	model := &fakeModel{err: errors.New("throttled")}
	a, err := New(model, map[string]*mcp.Server{"support": newTestServer("support")})
	require.NoError(t, err)

	_, err = a.Query(context.Background(), "hi", inProcessOptions(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "throttled")
}

func TestQuery_EmitErrorAborts(t *testing.T) {
	model := &fakeModel{replies: []string{textReply("Hello")}}
	a, err := New(model, map[string]*mcp.Server{"support": newTestServer("support")})
	require.NoError(t, err)

	stop := errors.New("client went away")
	_, err = a.Query(context.Background(), "hi", inProcessOptions(), func(Message) error { return stop })
	require.ErrorIs(t, err, stop)
}

func TestQuery_EmptyPrompt(t *testing.T) {
	a, err := New(&fakeModel{}, nil)
	require.NoError(t, err)
	_, err = a.Query(context.Background(), "  ", Options{}, nil)
	require.Error(t, err)
}

func TestQuery_UnknownInProcessServer(t *testing.T) {
	a, err := New(&fakeModel{}, nil)
	require.NoError(t, err)
	_, err = a.Query(context.Background(), "hi", inProcessOptions(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "support")
}

func TestQuery_HTTPServerReceivesHeaders(t *testing.T) {
	remote := newTestServer("gateway")
	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return remote }, nil)

	var mu sync.Mutex
	var auths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		mcpHandler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	model := &fakeModel{replies: []string{
		toolReply("tu_1", "mcp__gw__echo", `{"text":"remote"}`),
		textReply("ok"),
	}}
	a, err := New(model, nil)
	require.NoError(t, err)

	opts := Options{
		MCPServers: map[string]domain.MCPServerConfig{
			"gw": {Type: domain.MCPTypeHTTP, URL: srv.URL, Headers: map[string]string{"Authorization": "Bearer tok"}},
		},
		AllowedTools: []string{ServerPattern("gw")},
	}
	res, err := a.Query(context.Background(), "hi", opts, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", res.Text)
	require.Len(t, model.requests[0].Tools, 2)

	text, _ := toolResultText(t, model.requests[1].Messages[2])
	require.Equal(t, "echo: remote", text)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, auths)
	for _, a := range auths {
		require.Equal(t, "Bearer tok", a)
	}
}

func TestQuery_UnreachableGatewayIsSkipped(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		http.Error(w, "expired token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	model := &fakeModel{replies: []string{
		toolReply("tu_1", "mcp__support__echo", `{"text":"local"}`),
		textReply("Answered locally"),
	}}
	a, err := New(model, map[string]*mcp.Server{"support": newTestServer("support")})
	require.NoError(t, err)

	opts := inProcessOptions()
	opts.MCPServers["gw"] = domain.MCPServerConfig{
		Type:    domain.MCPTypeHTTP,
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer expired"},
	}
	opts.AllowedTools = append(opts.AllowedTools, ServerPattern("gw"))

	res, err := a.Query(context.Background(), "hi", opts, nil)
	require.NoError(t, err)
	require.Equal(t, "Answered locally", res.Text)
	require.Len(t, model.requests, 2)
	require.Len(t, model.requests[0].Tools, 1)
	require.Equal(t, "mcp__support__echo", model.requests[0].Tools[0].OfTool.Name)

	text, isErr := toolResultText(t, model.requests[1].Messages[2])
	require.False(t, isErr)
	require.Equal(t, "echo: local", text)

	mu.Lock()
	defer mu.Unlock()
	require.Positive(t, hits)
}

func TestQuery_TextOfLaterTurnsIsSeparated(t *testing.T) {
	model := &fakeModel{replies: []string{
		toolReply("tu_1", "mcp__support__echo", `{"text":"a"}`),
		`{"id":"msg","type":"message","role":"assistant","model":"test","content":[{"type":"tool_use","id":"tu_2","name":"mcp__support__echo","input":{"text":"b"}}],"stop_reason":"tool_use","usage":{"input_tokens":1,"output_tokens":1}}`,
		textReply("Our laptops ship free."),
	}}
	a, err := New(model, map[string]*mcp.Server{"support": newTestServer("support")})
	require.NoError(t, err)

	var chunks []string
	_, err = a.Query(context.Background(), "hi", inProcessOptions(), func(m Message) error {
		if m.Kind == KindText {
			chunks = append(chunks, m.Content)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Let me check.", "\n", "Our laptops ship free."}, chunks)
}

func TestOptionsAllows(t *testing.T) {
	opts := Options{AllowedTools: []string{"mcp__customer-support__*", "mcp__agentcore-gateway__*"}}
	require.True(t, opts.allows("mcp__customer-support__get_return_policy"))
	require.True(t, opts.allows("mcp__agentcore-gateway__lookup___check_warranty"))
	require.False(t, opts.allows("mcp__other__tool"))
	require.True(t, Options{}.allows("anything"))
}

func TestInputSchema(t *testing.T) {
	got := inputSchema(map[string]any{
		"type":       "object",
		"properties": map[string]any{"keywords": map[string]any{"type": "string"}},
		"required":   []string{"keywords"},
	})
	require.Contains(t, got.Properties, "keywords")
	require.Equal(t, []string{"keywords"}, got.Required)

	empty := inputSchema(nil)
	require.NotNil(t, empty.Properties)
}

func TestHeaderTransport(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Test")
	}))
	defer srv.Close()

	client := &http.Client{Transport: headerTransport{headers: map[string]string{"X-Test": "yes"}}}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, "yes", got)
}

func TestStreamingModel_StreamsTextDeltas(t *testing.T) {
	events := []string{
		`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"test","content":[],"stop_reason":null,"usage":{"input_tokens":3,"output_tokens":1}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":2}}`,
		`{"type":"message_stop"}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			var head struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal([]byte(e), &head)
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", head.Type, e)
		}
	}))
	defer srv.Close()

	m := NewStreamingModel(NewClient("anthropic", awsConfigForTest(), optionsForTest(srv.URL)...))
	var deltas []string
	msg, err := m.Send(context.Background(), anthropic.MessageNewParams{
		Model:     "test",
		MaxTokens: 16,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("hi"))},
	}, func(s string) error {
		deltas = append(deltas, s)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo"}, deltas)
	require.Equal(t, "Hello", finalText(msg))
	require.Equal(t, anthropic.StopReasonEndTurn, msg.StopReason)
}
