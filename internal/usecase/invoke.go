package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"customer-support-agent/internal/agent"
	"customer-support-agent/internal/domain"
	"customer-support-agent/internal/gateway"
	"customer-support-agent/internal/memory"
	"customer-support-agent/internal/metrics"
	"customer-support-agent/internal/tools"
)

const DefaultActorID = "default_customer"

type Agent interface {
	Query(ctx context.Context, prompt string, opts agent.Options, emit func(agent.Message) error) (agent.Result, error)
}

type GatewayConfigurer interface {
	MCPConfig(ctx context.Context, bearerToken, gatewayID string) (domain.MCPServerConfig, error)
}

// MemorySession is the per-request view of customer memory.
type MemorySession interface {
	RetrieveContext(ctx context.Context, query string) string
	SaveInteraction(ctx context.Context, query, response string)
}

// MemoryOpener opens the memory session of an actor.
type MemoryOpener interface {
	Open(ctx context.Context, actorID, sessionID string) (MemorySession, error)
}

// ServiceMemory adapts a memory.Service to MemoryOpener.
type ServiceMemory struct {
	Service *memory.Service
}

func (m ServiceMemory) Open(ctx context.Context, actorID, sessionID string) (MemorySession, error) {
	mgr, err := m.Service.ForSession(ctx, actorID, sessionID)
	if err != nil {
		return nil, err
	}
	return mgr, nil
}

type InvokeConfig struct {
	Model     string
	MaxTurns  int
	GatewayID string
}

// InvokeService runs one support request: memory retrieval, the agent query
// and the memory save, in that order.
type InvokeService struct {
	agent   Agent
	gateway GatewayConfigurer
	memory  MemoryOpener
	cfg     InvokeConfig
}

type InvokeInput struct {
	Prompt      string
	ActorID     string
	SessionID   string
	BearerToken string
}

type InvokeOutput struct {
	Message   string
	ActorID   string
	SessionID string
}

// NewInvokeService returns an InvokeService. gw and mem may be nil, in which
// case requests run without the gateway or without memory.
func NewInvokeService(a Agent, gw GatewayConfigurer, mem MemoryOpener, cfg InvokeConfig) (*InvokeService, error) {
	if a == nil {
		return nil, errors.New("usecase: agent must not be nil")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	return &InvokeService{agent: a, gateway: gw, memory: mem, cfg: cfg}, nil
}

// Invoke answers in.Prompt. emit, when non-nil, receives response text as it
// streams.
func (s *InvokeService) Invoke(ctx context.Context, in InvokeInput, emit func(chunk string) error) (InvokeOutput, error) {
	if in.Prompt == "" {
		return InvokeOutput{}, newError(ErrorInvalidInput, "empty_prompt", nil)
	}
	actorID := strings.TrimSpace(in.ActorID)
	if actorID == "" {
		actorID = DefaultActorID
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}

	servers := map[string]domain.MCPServerConfig{
		tools.ServerName: {Type: domain.MCPTypeInProcess, Name: tools.ServerName},
	}
	if in.BearerToken != "" && s.gateway != nil {
		cfg, err := s.gateway.MCPConfig(ctx, in.BearerToken, s.cfg.GatewayID)
		if err != nil {
			slog.Warn("could not configure gateway", "err", err)
			metrics.GatewayAttached.WithLabelValues("error").Inc()
		} else {
			servers[gateway.ServerName] = cfg
			metrics.GatewayAttached.WithLabelValues("ok").Inc()
		}
	}

	prompt := in.Prompt
	var session MemorySession
	if s.memory != nil {
		var err error
		session, err = s.memory.Open(ctx, actorID, sessionID)
		if err != nil {
			slog.Warn("memory retrieval failed", "actor_id", actorID, "err", err)
			metrics.MemoryContext.WithLabelValues("unavailable").Inc()
			session = nil
		} else if customerContext := session.RetrieveContext(ctx, in.Prompt); customerContext != "" {
			prompt = memory.EnhancePrompt(customerContext, in.Prompt)
			metrics.MemoryContext.WithLabelValues("hit").Inc()
		} else {
			metrics.MemoryContext.WithLabelValues("empty").Inc()
		}
	}

	opts := agent.Options{
		SystemPrompt: SystemPrompt,
		MCPServers:   servers,
		AllowedTools: allowedTools(tools.ServerName, gateway.ServerName),
		MaxTurns:     s.cfg.MaxTurns,
		Model:        s.cfg.Model,
	}

	var streamed strings.Builder
	res, err := s.agent.Query(ctx, prompt, opts, func(m agent.Message) error {
		if m.Kind != agent.KindText {
			return nil
		}
		streamed.WriteString(m.Content)
		if emit == nil {
			return nil
		}
		return emit(m.Content)
	})
	metrics.ToolCalls.Add(float64(res.ToolCalls))
	if err != nil {
		return InvokeOutput{}, agentError(err)
	}

	text := res.Text
	if text == "" {
		text = streamed.String()
	}
	if session != nil && text != "" {
		session.SaveInteraction(ctx, in.Prompt, text)
	}

	return InvokeOutput{Message: text, ActorID: actorID, SessionID: sessionID}, nil
}

func agentError(err error) *Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return newError(ErrorRateLimited, "model_rate_limited", err)
	}
	if errors.Is(err, agent.ErrMaxTurns) {
		return newError(ErrorUpstream, "max_turns", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrorInternal, "cancelled", err)
	}
	return newError(ErrorUpstream, "agent_error", err)
}

var newUUID = func() string {
	return uuid.NewString()
}
