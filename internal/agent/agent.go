package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
)

// Agent answers prompts with a model and the tools of its MCP servers.
type Agent struct {
	model         Model
	servers       map[string]*mcp.Server
	httpTransport http.RoundTripper
}

type AgentOption func(*Agent)

// WithHTTPTransport sets the round tripper used for http MCP servers.
func WithHTTPTransport(rt http.RoundTripper) AgentOption {
	return func(a *Agent) {
		a.httpTransport = rt
	}
}

// New returns an Agent. servers maps in-process server names to servers that
// Options.MCPServers entries of type sdk refer to.
func New(model Model, servers map[string]*mcp.Server, opts ...AgentOption) (*Agent, error) {
	if model == nil {
		return nil, errors.New("agent: model must not be nil")
	}
	a := &Agent{model: model, servers: servers}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Query runs prompt to completion. emit receives text deltas and tool use
// notices as they happen; an emit error aborts the query.
func (a *Agent) Query(ctx context.Context, prompt string, opts Options, emit func(Message) error) (Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return Result{}, errors.New("agent: prompt must not be empty")
	}
	if emit == nil {
		emit = func(Message) error { return nil }
	}

	ts, err := a.connect(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	defer ts.close()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		MaxTokens: int64(defaultMaxTokens),
		Tools:     ts.params,
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
	}

	conv := []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))}

	// Text of a later turn is separated from earlier text by a newline.
	var wrote, pendingBreak bool
	onText := func(s string) error {
		if s == "" {
			return nil
		}
		if pendingBreak {
			pendingBreak = false
			if err := emit(Message{Kind: KindText, Content: turnSeparator}); err != nil {
				return err
			}
		}
		wrote = true
		return emit(Message{Kind: KindText, Content: s})
	}

	var res Result
	for turn := 1; turn <= opts.maxTurns(); turn++ {
		params.Messages = conv
		msg, err := a.model.Send(ctx, params, onText)
		if err != nil {
			return Result{}, err
		}
		res.Turns = turn
		conv = append(conv, msg.ToParam())

		uses := toolUses(msg)
		if msg.StopReason != anthropic.StopReasonToolUse || len(uses) == 0 {
			res.Text = finalText(msg)
			return res, nil
		}

		for _, u := range uses {
			if err := emit(Message{Kind: KindToolUse, Content: u.name}); err != nil {
				return Result{}, err
			}
		}
		res.ToolCalls += len(uses)
		pendingBreak = wrote
		conv = append(conv, anthropic.NewUserMessage(a.runTools(ctx, ts, uses)...))
	}
	slog.Warn("agent stopped at turn limit", "max_turns", opts.maxTurns(), "tool_calls", res.ToolCalls)
	return res, ErrMaxTurns
}

type toolUse struct {
	id    string
	name  string
	input json.RawMessage
}

func toolUses(msg *anthropic.Message) []toolUse {
	var out []toolUse
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			out = append(out, toolUse{id: v.ID, name: v.Name, input: json.RawMessage(v.JSON.Input.Raw())})
		}
	}
	return out
}

// runTools executes uses concurrently and returns their results in order.
func (a *Agent) runTools(ctx context.Context, ts *toolset, uses []toolUse) []anthropic.ContentBlockParamUnion {
	results := make([]anthropic.ContentBlockParamUnion, len(uses))
	var g errgroup.Group
	for i, u := range uses {
		g.Go(func() error {
			text, isErr := ts.call(ctx, u.name, u.input)
			if isErr {
				slog.Warn("tool call failed", "tool", u.name, "err", text)
			}
			results[i] = anthropic.NewToolResultBlock(u.id, text, isErr)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func finalText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(v.Text)
		}
	}
	return b.String()
}
