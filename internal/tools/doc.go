// Package tools implements the customer support tools and exposes them as an
// in-process MCP server.
//
// Includes:
//   - get_return_policy, get_product_info: static catalog lookups.
//   - web_search: DuckDuckGo search through a Searcher.
//   - get_technical_support: knowledge base retrieval through a Retriever.
//   - NewServer: the "customer-support" MCP server wiring all four tools.
//
// Every tool reports failures as text content so the agent can relay them;
// handlers never return a Go error for upstream failures.
package tools
