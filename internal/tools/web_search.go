package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"customer-support-agent/internal/domain"
	"customer-support-agent/internal/integrations/websearch"
)

const (
	defaultSearchRegion     = "us-en"
	defaultSearchMaxResults = 5
)

type WebSearchInput struct {
	Keywords   string `json:"keywords" jsonschema:"The search query keywords."`
	Region     string `json:"region,omitempty" jsonschema:"The search region: wt-wt, us-en, uk-en, ru-ru, etc."`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"The maximum number of results to return."`
}

// Searcher runs a web search. *websearch.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, keywords, region string, maxResults int) ([]websearch.Result, error)
}

// WebSearch searches the web and returns the results as a JSON array.
func WebSearch(ctx context.Context, s Searcher, in WebSearchInput) domain.ToolResult {
	region := in.Region
	if region == "" {
		region = defaultSearchRegion
	}
	maxResults := in.MaxResults
	if maxResults <= 0 {
		maxResults = defaultSearchMaxResults
	}
	if s == nil {
		return domain.TextResult("Search error: search is not configured")
	}

	results, err := s.Search(ctx, in.Keywords, region, maxResults)
	if err != nil {
		if errors.Is(err, websearch.ErrRateLimited) {
			return domain.TextResult("Rate limit reached. Please try again later.")
		}
		return domain.TextResult(fmt.Sprintf("Search error: %v", err))
	}
	if len(results) == 0 {
		return domain.TextResult("No results found.")
	}
	b, err := json.Marshal(results)
	if err != nil {
		return domain.TextResult(fmt.Sprintf("Search error: %v", err))
	}
	return domain.TextResult(string(b))
}
