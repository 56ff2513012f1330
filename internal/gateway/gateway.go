// Package gateway resolves the AgentCore gateway that fronts external MCP
// tools and builds the MCP server entry used to reach it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"

	"customer-support-agent/internal/domain"
	"customer-support-agent/internal/integrations/paramstore"
)

// ServerName is the MCP server name the gateway is registered under.
const ServerName = "agentcore-gateway"

type gatewayAPI interface {
	GetGateway(ctx context.Context, in *bedrockagentcorecontrol.GetGatewayInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.GetGatewayOutput, error)
}

// Resolver looks up gateway URLs.
type Resolver struct {
	api       gatewayAPI
	params    paramstore.Getter
	paramName string
}

// New returns a Resolver that reads the gateway id from paramName when a
// caller does not supply one.
func New(api gatewayAPI, params paramstore.Getter, paramName string) (*Resolver, error) {
	if api == nil {
		return nil, errors.New("gateway: api must not be nil")
	}
	if params == nil {
		return nil, errors.New("gateway: parameter getter must not be nil")
	}
	return &Resolver{api: api, params: params, paramName: paramName}, nil
}

// URL returns the MCP endpoint of gatewayID, or of the stored gateway when
// gatewayID is empty.
func (r *Resolver) URL(ctx context.Context, gatewayID string) (string, error) {
	gatewayID = strings.TrimSpace(gatewayID)
	if gatewayID == "" {
		id, err := r.params.GetParameter(ctx, r.paramName)
		if err != nil {
			return "", fmt.Errorf("gateway: resolve gateway id: %w", err)
		}
		gatewayID = strings.TrimSpace(id)
	}
	if gatewayID == "" {
		return "", errors.New("gateway: gateway id is empty")
	}

	out, err := r.api.GetGateway(ctx, &bedrockagentcorecontrol.GetGatewayInput{
		GatewayIdentifier: aws.String(gatewayID),
	})
	if err != nil {
		return "", fmt.Errorf("gateway: get gateway %q: %w", gatewayID, err)
	}
	url := aws.ToString(out.GatewayUrl)
	if url == "" {
		return "", fmt.Errorf("gateway: gateway %q has no url", gatewayID)
	}
	return url, nil
}

// MCPConfig returns the http MCP entry for the gateway authorized with
// bearerToken.
func (r *Resolver) MCPConfig(ctx context.Context, bearerToken, gatewayID string) (domain.MCPServerConfig, error) {
	if bearerToken == "" {
		return domain.MCPServerConfig{}, errors.New("gateway: bearer token is required")
	}
	url, err := r.URL(ctx, gatewayID)
	if err != nil {
		return domain.MCPServerConfig{}, err
	}
	return domain.MCPServerConfig{
		Type: domain.MCPTypeHTTP,
		URL:  url,
		Headers: map[string]string{
			"Authorization": "Bearer " + bearerToken,
		},
	}, nil
}

// BearerFromHeader returns the token of an Authorization header value.
func BearerFromHeader(h string) string {
	h = strings.TrimSpace(h)
	if len(h) >= 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}
