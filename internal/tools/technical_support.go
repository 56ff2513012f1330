package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"customer-support-agent/internal/domain"
)

const noTechnicalDocs = "No relevant technical documentation found for the described issue. " +
	"Please contact our technical support team directly."

type TechnicalSupportInput struct {
	IssueDescription string `json:"issue_description" jsonschema:"Description of the technical issue or question."`
}

// Retriever searches the technical support knowledge base and returns the
// passages that passed its relevance threshold.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

// GetTechnicalSupport looks up troubleshooting documentation for an issue.
func GetTechnicalSupport(ctx context.Context, r Retriever, in TechnicalSupportInput) domain.ToolResult {
	if r == nil {
		return domain.TextResult("Unable to access technical support documentation. Error: knowledge base is not configured")
	}
	passages, err := r.Retrieve(ctx, in.IssueDescription)
	if err != nil {
		slog.Error("technical support lookup failed", "err", err)
		return domain.TextResult(fmt.Sprintf("Unable to access technical support documentation. Error: %v", err))
	}
	if len(passages) == 0 {
		return domain.TextResult(noTechnicalDocs)
	}
	return domain.TextResult(strings.Join(passages, "\n\n---\n\n"))
}
