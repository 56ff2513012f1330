// Package agentcore is a client for agents deployed on the AgentCore runtime.
package agentcore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultQualifier = "DEFAULT"
	SessionHeader    = "X-Amzn-Bedrock-AgentCore-Runtime-Session-Id"

	eventDone  = "[DONE]"
	eventError = "[ERROR] "
)

// HTTPStatusError captures non-2xx runtime responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("agentcore: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// AgentError is an error reported by the agent inside an event stream.
type AgentError struct {
	Message string
}

func (e *AgentError) Error() string {
	return "agentcore: agent error: " + e.Message
}

// Client invokes a deployed runtime over HTTPS with a bearer token.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient returns a Client for the runtime endpoint of region.
func NewClient(region string, opts ...Option) (*Client, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return nil, errors.New("agentcore: region must not be empty")
	}
	c := &Client{
		baseURL:    fmt.Sprintf("https://bedrock-agentcore.%s.amazonaws.com", region),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// InvokeURL returns the invocation endpoint of agentARN.
func InvokeURL(baseURL, agentARN, qualifier string) string {
	if qualifier == "" {
		qualifier = DefaultQualifier
	}
	escaped := strings.ReplaceAll(url.QueryEscape(agentARN), "+", "%20")
	return strings.TrimRight(baseURL, "/") + "/runtimes/" + escaped + "/invocations?qualifier=" + url.QueryEscape(qualifier)
}

// InvokeStreaming posts payload to the runtime and calls onChunk for every
// event until the stream ends. A JSON response is delivered as one chunk
// holding its message.
func (c *Client) InvokeStreaming(ctx context.Context, agentARN string, payload []byte, sessionID, bearerToken, qualifier string, onChunk func(string) error) error {
	if strings.TrimSpace(agentARN) == "" {
		return errors.New("agentcore: agent arn must not be empty")
	}
	if bearerToken == "" {
		return errors.New("agentcore: bearer token must not be empty")
	}
	endpoint := InvokeURL(c.baseURL, agentARN, qualifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("agentcore: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("agentcore: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: endpoint, Body: string(buf)}
	}

	if strings.HasPrefix(res.Header.Get("Content-Type"), "text/event-stream") {
		return readEvents(res.Body, onChunk)
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("agentcore: read response body: %w", err)
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(buf, &body); err != nil {
		return onChunk(string(buf))
	}
	if body.Error != "" {
		return &AgentError{Message: body.Error}
	}
	return onChunk(body.Message)
}

// Invoke collects the whole response of InvokeStreaming.
func (c *Client) Invoke(ctx context.Context, agentARN string, payload []byte, sessionID, bearerToken, qualifier string) (string, error) {
	var b strings.Builder
	err := c.InvokeStreaming(ctx, agentARN, payload, sessionID, bearerToken, qualifier, func(s string) error {
		b.WriteString(s)
		return nil
	})
	return b.String(), err
}

// readEvents parses server-sent events. Multiple data lines of one event are
// joined with a newline.
func readEvents(r io.Reader, onChunk func(string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data []string
	flush := func() (bool, error) {
		if len(data) == 0 {
			return false, nil
		}
		ev := strings.Join(data, "\n")
		data = data[:0]
		switch {
		case ev == eventDone:
			return true, nil
		case strings.HasPrefix(ev, eventError):
			return true, &AgentError{Message: strings.TrimPrefix(ev, eventError)}
		}
		return false, onChunk(ev)
	}

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			done, err := flush()
			if err != nil || done {
				return err
			}
			continue
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(v, " "))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("agentcore: read stream: %w", err)
	}
	_, err := flush()
	return err
}
