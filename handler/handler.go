// Package handler exposes the agent over HTTP (/ping, /invocations, /metrics)
// and over API Gateway Lambda events.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"customer-support-agent/internal/domain"
	"customer-support-agent/internal/gateway"
	"customer-support-agent/internal/metrics"
	"customer-support-agent/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerSessionID     = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"

	msgNoPrompt    = "No prompt provided"
	msgInvalidBody = "Invalid JSON body"

	modeJSON   = "json"
	modeStream = "stream"
	modeLambda = "lambda"

	sseDone  = "[DONE]"
	sseError = "[ERROR] "
)

type UseCase interface {
	Invoke(ctx context.Context, in usecase.InvokeInput, emit func(chunk string) error) (usecase.InvokeOutput, error)
}

type Handler struct {
	uc UseCase
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type pingResponse struct {
	Status string `json:"status"`
}

func NewHandler(uc UseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

// Router returns the gin engine serving the runtime contract.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Authorization", "Content-Type", headerCorrelationID, headerSessionID},
		ExposeHeaders:   []string{headerCorrelationID},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/ping", h.ping)
	r.POST("/invocations", h.invocations)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (h *Handler) ping(c *gin.Context) {
	c.JSON(http.StatusOK, pingResponse{Status: "healthy"})
}

func (h *Handler) invocations(c *gin.Context) {
	corrID := correlationID(c.GetHeader(headerCorrelationID))
	c.Header(headerCorrelationID, corrID)

	var req domain.InvocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("invalid invocation body", "correlation_id", corrID, "err", err)
		c.JSON(http.StatusBadRequest, errorResponse{Error: msgInvalidBody, Code: string(usecase.ErrorInvalidInput)})
		return
	}
	if req.Prompt == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: msgNoPrompt, Code: string(usecase.ErrorInvalidInput)})
		return
	}
	if req.SessionID == "" {
		req.SessionID = c.GetHeader(headerSessionID)
	}

	in := usecase.InvokeInput{
		Prompt:      req.Prompt,
		ActorID:     req.ActorID,
		SessionID:   req.SessionID,
		BearerToken: bearerToken(c.GetHeader("Authorization")),
	}
	if req.Stream {
		h.stream(c, in, corrID)
		return
	}

	start := time.Now()
	out, err := h.uc.Invoke(c.Request.Context(), in, nil)
	metrics.InvocationDuration.WithLabelValues(modeJSON).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Invocations.WithLabelValues(modeJSON, metrics.OutcomeError).Inc()
		status, body := mapError(err)
		slog.Error("invocation failed", "correlation_id", corrID, "status", status, "err", err)
		c.JSON(status, body)
		return
	}
	metrics.Invocations.WithLabelValues(modeJSON, metrics.OutcomeOK).Inc()
	c.JSON(http.StatusOK, domain.InvocationResponse{Message: out.Message})
}

type sseEvent struct {
	data string
	err  error
}

// stream runs the invocation in the background and relays its text chunks as
// server-sent events. An error before the first chunk becomes a JSON error
// response; later errors are sent as an [ERROR] event.
func (h *Handler) stream(c *gin.Context, in usecase.InvokeInput, corrID string) {
	ctx := c.Request.Context()
	evs := make(chan sseEvent)
	start := time.Now()

	go func() {
		defer close(evs)
		send := func(ev sseEvent) error {
			select {
			case evs <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		_, err := h.uc.Invoke(ctx, in, func(chunk string) error {
			return send(sseEvent{data: chunk})
		})
		if err != nil {
			_ = send(sseEvent{err: err})
		}
	}()

	first, ok := <-evs
	if ok && first.err != nil {
		metrics.Invocations.WithLabelValues(modeStream, metrics.OutcomeError).Inc()
		status, body := mapError(first.err)
		slog.Error("invocation failed", "correlation_id", corrID, "status", status, "err", first.err)
		c.JSON(status, body)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	outcome := metrics.OutcomeOK
	pending, hasPending := first, ok
	c.Stream(func(w io.Writer) bool {
		ev, open := pending, hasPending
		if hasPending {
			hasPending = false
		} else {
			ev, open = <-evs
		}
		if !open {
			writeEvent(w, sseDone)
			return false
		}
		if ev.err != nil {
			outcome = metrics.OutcomeError
			slog.Error("streaming invocation failed", "correlation_id", corrID, "err", ev.err)
			writeEvent(w, sseError+ev.err.Error())
			return true
		}
		writeEvent(w, ev.data)
		return true
	})

	metrics.Invocations.WithLabelValues(modeStream, outcome).Inc()
	metrics.InvocationDuration.WithLabelValues(modeStream).Observe(time.Since(start).Seconds())
}

// writeEvent writes data as one event, one data line per line of text.
func writeEvent(w io.Writer, data string) {
	for _, line := range strings.Split(data, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = io.WriteString(w, "\n")
}

// HandleAPIGateway serves the same contract for API Gateway proxy events.
// Streaming requests are answered as a single JSON response.
func (h *Handler) HandleAPIGateway(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(headerValue(ev.Headers, headerCorrelationID))
	path := strings.TrimRight(ev.Path, "/")

	switch {
	case ev.HTTPMethod == http.MethodGet && path == "/ping":
		return jsonResponse(http.StatusOK, pingResponse{Status: "healthy"}, corrID), nil
	case ev.HTTPMethod == http.MethodPost && path == "/invocations":
	default:
		return jsonResponse(http.StatusNotFound, errorResponse{Error: "Not found"}, corrID), nil
	}

	var req domain.InvocationRequest
	if err := json.Unmarshal([]byte(ev.Body), &req); err != nil {
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: msgInvalidBody, Code: string(usecase.ErrorInvalidInput)}, corrID), nil
	}
	if req.Prompt == "" {
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: msgNoPrompt, Code: string(usecase.ErrorInvalidInput)}, corrID), nil
	}
	if req.SessionID == "" {
		req.SessionID = headerValue(ev.Headers, headerSessionID)
	}

	start := time.Now()
	out, err := h.uc.Invoke(ctx, usecase.InvokeInput{
		Prompt:      req.Prompt,
		ActorID:     req.ActorID,
		SessionID:   req.SessionID,
		BearerToken: bearerToken(headerValue(ev.Headers, "Authorization")),
	}, nil)
	metrics.InvocationDuration.WithLabelValues(modeLambda).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Invocations.WithLabelValues(modeLambda, metrics.OutcomeError).Inc()
		status, body := mapError(err)
		slog.Error("invocation failed", "correlation_id", corrID, "status", status, "err", err)
		return jsonResponse(status, body, corrID), nil
	}
	metrics.Invocations.WithLabelValues(modeLambda, metrics.OutcomeOK).Inc()
	return jsonResponse(http.StatusOK, domain.InvocationResponse{Message: out.Message}, corrID), nil
}

func jsonResponse(status int, body any, corrID string) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: corrID,
		},
		Body: string(raw),
	}
}

func mapError(err error) (int, errorResponse) {
	code := usecase.CodeOf(err)
	return code.HTTPStatus(), errorResponse{Error: err.Error(), Code: string(code)}
}

func bearerToken(authorization string) string {
	if strings.TrimSpace(authorization) == "" {
		return ""
	}
	return gateway.BearerFromHeader(authorization)
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func correlationID(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return uuid.NewString()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/ping" {
			return
		}
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
