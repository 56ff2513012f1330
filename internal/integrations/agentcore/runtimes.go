package agentcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
)

type runtimeControlAPI interface {
	ListAgentRuntimes(ctx context.Context, in *bedrockagentcorecontrol.ListAgentRuntimesInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListAgentRuntimesOutput, error)
	DeleteAgentRuntime(ctx context.Context, in *bedrockagentcorecontrol.DeleteAgentRuntimeInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.DeleteAgentRuntimeOutput, error)
}

// Runtimes removes deployed agent runtimes through the control plane.
type Runtimes struct {
	api runtimeControlAPI
}

func NewRuntimes(api runtimeControlAPI) (*Runtimes, error) {
	if api == nil {
		return nil, errors.New("agentcore: control api must not be nil")
	}
	return &Runtimes{api: api}, nil
}

// RuntimeID returns the runtime id at the end of an agent runtime ARN
// (arn:aws:bedrock-agentcore:<region>:<account>:runtime/<id>).
func RuntimeID(agentARN string) string {
	s := strings.TrimSpace(agentARN)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// Delete deletes the runtime named by agentARN, or every runtime of the
// account when agentARN is empty. It returns the deleted runtime ids.
func (r *Runtimes) Delete(ctx context.Context, agentARN string) ([]string, error) {
	if strings.TrimSpace(agentARN) != "" {
		id := RuntimeID(agentARN)
		if id == "" {
			return nil, fmt.Errorf("agentcore: no runtime id in %q", agentARN)
		}
		if err := r.deleteOne(ctx, id); err != nil {
			return nil, err
		}
		return []string{id}, nil
	}

	var ids []string
	var next *string
	for {
		page, err := r.api.ListAgentRuntimes(ctx, &bedrockagentcorecontrol.ListAgentRuntimesInput{NextToken: next})
		if err != nil {
			return ids, fmt.Errorf("agentcore: list runtimes: %w", err)
		}
		for _, rt := range page.AgentRuntimes {
			id := aws.ToString(rt.AgentRuntimeId)
			if err := r.deleteOne(ctx, id); err != nil {
				return ids, err
			}
			ids = append(ids, id)
		}
		if aws.ToString(page.NextToken) == "" {
			return ids, nil
		}
		next = page.NextToken
	}
}

func (r *Runtimes) deleteOne(ctx context.Context, id string) error {
	out, err := r.api.DeleteAgentRuntime(ctx, &bedrockagentcorecontrol.DeleteAgentRuntimeInput{AgentRuntimeId: aws.String(id)})
	if err != nil {
		return fmt.Errorf("agentcore: delete runtime %q: %w", id, err)
	}
	slog.Info("deleted agent runtime", "runtime_id", id, "status", out.Status)
	return nil
}
