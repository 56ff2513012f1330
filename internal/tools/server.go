package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"customer-support-agent/internal/domain"
)

const (
	ServerName    = "customer-support"
	ServerVersion = "1.0.0"
)

// Deps carries the upstream clients used by the tools that leave the process.
type Deps struct {
	Searcher  Searcher
	Retriever Retriever
}

// Names lists the tools registered by NewServer.
func Names() []string {
	return []string{"get_return_policy", "get_product_info", "web_search", "get_technical_support"}
}

// NewServer builds the in-process MCP server exposing every customer support tool.
func NewServer(deps Deps) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: ServerVersion}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_return_policy",
		Description: "Get return policy information for a specific product category.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in ReturnPolicyInput) (*mcp.CallToolResult, any, error) {
		return callToolResult(GetReturnPolicy(in)), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_product_info",
		Description: "Get detailed technical specifications and information for electronics products.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in ProductInfoInput) (*mcp.CallToolResult, any, error) {
		return callToolResult(GetProductInfo(in)), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "web_search",
		Description: "Search the web for updated information using DuckDuckGo.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in WebSearchInput) (*mcp.CallToolResult, any, error) {
		return callToolResult(WebSearch(ctx, deps.Searcher, in)), nil, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_technical_support",
		Description: "Search the knowledge base for technical support documentation and troubleshooting guides.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in TechnicalSupportInput) (*mcp.CallToolResult, any, error) {
		return callToolResult(GetTechnicalSupport(ctx, deps.Retriever, in)), nil, nil
	})

	return s
}

func callToolResult(r domain.ToolResult) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(r.Content))
	for _, c := range r.Content {
		content = append(content, &mcp.TextContent{Text: c.Text})
	}
	return &mcp.CallToolResult{Content: content}
}
