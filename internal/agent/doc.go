// Package agent runs a Claude tool-use loop over MCP servers.
//
// Every configured MCP server is connected for the duration of one Query.
// Its tools are exposed to the model as mcp__<server>__<tool> and filtered by
// the allowed tool patterns. Allowed tools run without confirmation.
//
// Flow:
//
//	user(prompt) -> assistant(tool_use...) -> user(tool_result...) -> assistant(text)
package agent
