package domain

// MCP server transport kinds understood by the agent.
const (
	MCPTypeInProcess = "sdk"
	MCPTypeHTTP      = "http"
)

// MCPServerConfig describes one entry of the agent's MCP server map.
//
// In-process servers are referenced by Name; HTTP servers carry the endpoint
// URL and the request headers (typically the gateway bearer token).
type MCPServerConfig struct {
	Type    string            `json:"type"`
	Name    string            `json:"name,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ToolContent is one block of a tool result.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the structured payload every tool returns.
type ToolResult struct {
	Content []ToolContent `json:"content"`
}

// TextResult wraps text in a single-block tool result.
func TextResult(text string) ToolResult {
	return ToolResult{Content: []ToolContent{{Type: "text", Text: text}}}
}

// MemoryRecord is a single retrieved memory item.
type MemoryRecord struct {
	Text  string
	Score float64
}

// MemoryStrategy maps a strategy type (e.g. USER_PREFERENCE) to its first
// namespace template.
type MemoryStrategy struct {
	Type      string
	Namespace string
}
