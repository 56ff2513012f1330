package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
)

const (
	targetPageSize          = 100
	defaultPropagationDelay = 5 * time.Second
)

type cleanupAPI interface {
	ListGateways(ctx context.Context, in *bedrockagentcorecontrol.ListGatewaysInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListGatewaysOutput, error)
	ListGatewayTargets(ctx context.Context, in *bedrockagentcorecontrol.ListGatewayTargetsInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListGatewayTargetsOutput, error)
	DeleteGatewayTarget(ctx context.Context, in *bedrockagentcorecontrol.DeleteGatewayTargetInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.DeleteGatewayTargetOutput, error)
	DeleteGateway(ctx context.Context, in *bedrockagentcorecontrol.DeleteGatewayInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.DeleteGatewayOutput, error)
}

// Cleaner deletes a gateway together with its targets.
type Cleaner struct {
	api              cleanupAPI
	propagationDelay time.Duration
}

func NewCleaner(api cleanupAPI) (*Cleaner, error) {
	if api == nil {
		return nil, errors.New("gateway: api must not be nil")
	}
	return &Cleaner{api: api, propagationDelay: defaultPropagationDelay}, nil
}

// Cleanup deletes every target of gatewayID and then the gateway. With an
// empty gatewayID the first gateway of the account is removed. It returns
// the id of the deleted gateway.
func (c *Cleaner) Cleanup(ctx context.Context, gatewayID string) (string, error) {
	gatewayID = strings.TrimSpace(gatewayID)
	if gatewayID == "" {
		id, err := c.firstGateway(ctx)
		if err != nil {
			return "", err
		}
		gatewayID = id
	}

	deleted := 0
	var next *string
	for {
		page, err := c.api.ListGatewayTargets(ctx, &bedrockagentcorecontrol.ListGatewayTargetsInput{
			GatewayIdentifier: aws.String(gatewayID),
			MaxResults:        aws.Int32(targetPageSize),
			NextToken:         next,
		})
		if err != nil {
			return "", fmt.Errorf("gateway: list targets of %q: %w", gatewayID, err)
		}
		for _, t := range page.Items {
			if _, err := c.api.DeleteGatewayTarget(ctx, &bedrockagentcorecontrol.DeleteGatewayTargetInput{
				GatewayIdentifier: aws.String(gatewayID),
				TargetId:          t.TargetId,
			}); err != nil {
				return "", fmt.Errorf("gateway: delete target %q: %w", aws.ToString(t.TargetId), err)
			}
			slog.Info("deleted gateway target", "gateway_id", gatewayID, "target_id", aws.ToString(t.TargetId))
			deleted++
		}
		if aws.ToString(page.NextToken) == "" {
			break
		}
		next = page.NextToken
	}

	// Target deletions take a moment before the gateway accepts deletion.
	if deleted > 0 {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("gateway: wait for target deletion: %w", ctx.Err())
		case <-time.After(c.propagationDelay):
		}
	}

	if _, err := c.api.DeleteGateway(ctx, &bedrockagentcorecontrol.DeleteGatewayInput{
		GatewayIdentifier: aws.String(gatewayID),
	}); err != nil {
		return "", fmt.Errorf("gateway: delete gateway %q: %w", gatewayID, err)
	}
	slog.Info("deleted gateway", "gateway_id", gatewayID, "targets", deleted)
	return gatewayID, nil
}

func (c *Cleaner) firstGateway(ctx context.Context) (string, error) {
	out, err := c.api.ListGateways(ctx, &bedrockagentcorecontrol.ListGatewaysInput{})
	if err != nil {
		return "", fmt.Errorf("gateway: list gateways: %w", err)
	}
	for _, g := range out.Items {
		if id := aws.ToString(g.GatewayId); id != "" {
			return id, nil
		}
	}
	return "", errors.New("gateway: no gateway to delete")
}
