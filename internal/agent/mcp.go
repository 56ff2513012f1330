package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"customer-support-agent/internal/domain"
	"customer-support-agent/internal/metrics"
)

const (
	clientName    = "customer-support-agent"
	clientVersion = "1.0.0"
)

type remoteTool struct {
	session *mcp.ClientSession
	name    string
}

// toolset holds the connected MCP sessions of one query.
type toolset struct {
	sessions []*mcp.ClientSession
	servers  []*mcp.ServerSession
	tools    map[string]remoteTool
	params   []anthropic.ToolUnionParam
}

func (a *Agent) connect(ctx context.Context, opts Options) (*toolset, error) {
	ts := &toolset{tools: map[string]remoteTool{}}

	names := make([]string, 0, len(opts.MCPServers))
	for name := range opts.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cfg := opts.MCPServers[name]
		err := a.addServer(ctx, ts, name, cfg, opts)
		if err == nil {
			continue
		}
		if cfg.Type == domain.MCPTypeHTTP {
			slog.Warn("skipping unreachable MCP server", "server", name, "url", cfg.URL, "err", err)
			metrics.GatewayAttached.WithLabelValues(metrics.OutcomeError).Inc()
			continue
		}
		ts.close()
		return nil, fmt.Errorf("agent: connect %q: %w", name, err)
	}
	return ts, nil
}

// addServer connects one server and registers its allowed tools. A session
// whose tools cannot be listed is closed before returning.
func (a *Agent) addServer(ctx context.Context, ts *toolset, name string, cfg domain.MCPServerConfig, opts Options) error {
	cs, err := a.connectServer(ctx, ts, name, cfg)
	if err != nil {
		return err
	}
	res, err := cs.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		_ = cs.Close()
		return fmt.Errorf("list tools: %w", err)
	}
	ts.sessions = append(ts.sessions, cs)

	for _, tool := range res.Tools {
		exposed := ToolName(name, tool.Name)
		if !opts.allows(exposed) {
			continue
		}
		ts.tools[exposed] = remoteTool{session: cs, name: tool.Name}
		ts.params = append(ts.params, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        exposed,
			Description: anthropic.String(tool.Description),
			InputSchema: inputSchema(tool.InputSchema),
		}})
	}
	return nil
}

func (a *Agent) connectServer(ctx context.Context, ts *toolset, name string, cfg domain.MCPServerConfig) (*mcp.ClientSession, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: clientVersion}, nil)

	switch cfg.Type {
	case domain.MCPTypeInProcess, "":
		key := cfg.Name
		if key == "" {
			key = name
		}
		server, ok := a.servers[key]
		if !ok {
			return nil, fmt.Errorf("no in-process server named %q", key)
		}
		clientT, serverT := mcp.NewInMemoryTransports()
		ss, err := server.Connect(ctx, serverT, nil)
		if err != nil {
			return nil, err
		}
		ts.servers = append(ts.servers, ss)
		return client.Connect(ctx, clientT, nil)
	case domain.MCPTypeHTTP:
		if cfg.URL == "" {
			return nil, errors.New("missing url")
		}
		transport := &mcp.StreamableClientTransport{
			Endpoint:   cfg.URL,
			HTTPClient: &http.Client{Timeout: 2 * time.Minute, Transport: headerTransport{headers: cfg.Headers, base: a.httpTransport}},
		}
		return client.Connect(ctx, transport, nil)
	default:
		return nil, fmt.Errorf("unsupported server type %q", cfg.Type)
	}
}

func (ts *toolset) call(ctx context.Context, exposed string, input json.RawMessage) (string, bool) {
	tool, ok := ts.tools[exposed]
	if !ok {
		return fmt.Sprintf("tool %s is not available", exposed), true
	}
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	res, err := tool.session.CallTool(ctx, &mcp.CallToolParams{Name: tool.name, Arguments: input})
	if err != nil {
		return err.Error(), true
	}
	return toolText(res), res.IsError
}

func (ts *toolset) close() {
	for _, cs := range ts.sessions {
		_ = cs.Close()
	}
	for _, ss := range ts.servers {
		_ = ss.Close()
	}
}

func toolText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if t, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// inputSchema converts an MCP tool schema into the Messages API shape.
func inputSchema(schema any) anthropic.ToolInputSchemaParam {
	var s struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if raw, err := json.Marshal(schema); err == nil {
		_ = json.Unmarshal(raw, &s)
	}
	if s.Properties == nil {
		s.Properties = map[string]any{}
	}
	return anthropic.ToolInputSchemaParam{Properties: s.Properties, Required: s.Required}
}

type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if len(t.headers) == 0 {
		return base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return base.RoundTrip(req)
}
