package agent

import (
	"errors"
	"path"

	"customer-support-agent/internal/domain"
)

// ErrMaxTurns is returned when the model is still calling tools after
// MaxTurns requests.
var ErrMaxTurns = errors.New("agent: maximum number of turns reached")

const (
	defaultMaxTurns  = 10
	defaultMaxTokens = 4096
	toolPrefix       = "mcp__"
	toolSep          = "__"
	turnSeparator    = "\n"
)

// Options configures one Query.
type Options struct {
	SystemPrompt string
	MCPServers   map[string]domain.MCPServerConfig
	// AllowedTools holds path.Match patterns over exposed tool names. Empty
	// allows every tool.
	AllowedTools []string
	MaxTurns     int
	Model        string
}

// Message kinds emitted while a query runs.
const (
	KindText    = "text"
	KindToolUse = "tool_use"
)

// Message is one streamed event of a query.
type Message struct {
	Kind    string
	Content string
}

// Result is the outcome of a completed query.
type Result struct {
	Text      string
	Turns     int
	ToolCalls int
}

// ToolName returns the name a server's tool is exposed under.
func ToolName(server, tool string) string {
	return toolPrefix + server + toolSep + tool
}

// ServerPattern returns the pattern allowing every tool of server.
func ServerPattern(server string) string {
	return toolPrefix + server + toolSep + "*"
}

func (o Options) allows(name string) bool {
	if len(o.AllowedTools) == 0 {
		return true
	}
	for _, p := range o.AllowedTools {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
		if p == name {
			return true
		}
	}
	return false
}

func (o Options) maxTurns() int {
	if o.MaxTurns <= 0 {
		return defaultMaxTurns
	}
	return o.MaxTurns
}
