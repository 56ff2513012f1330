package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"customer-support-agent/internal/domain"
)

const (
	defaultTopK = 3

	RoleUser      = "USER"
	RoleAssistant = "ASSISTANT"
)

// Turn is one message of an interaction to persist.
type Turn struct {
	Text string
	Role string
}

// Store is a memory backend.
type Store interface {
	Strategies(ctx context.Context, memoryID string) ([]domain.MemoryStrategy, error)
	Retrieve(ctx context.Context, memoryID, namespace, query string, topK int) ([]domain.MemoryRecord, error)
	SaveEvent(ctx context.Context, memoryID, actorID, sessionID string, turns []Turn) error
}

// Service opens per-session managers against one memory resource.
type Service struct {
	store    Store
	memoryID string
}

func NewService(store Store, memoryID string) (*Service, error) {
	if store == nil {
		return nil, errors.New("memory: store must not be nil")
	}
	memoryID = strings.TrimSpace(memoryID)
	if memoryID == "" {
		return nil, errors.New("memory: memory id must not be empty")
	}
	return &Service{store: store, memoryID: memoryID}, nil
}

// MemoryID returns the memory resource id this service is bound to.
func (s *Service) MemoryID() string { return s.memoryID }

// ForSession loads the memory strategies and returns a Manager for the actor
// and session.
func (s *Service) ForSession(ctx context.Context, actorID, sessionID string) (*Manager, error) {
	strategies, err := s.store.Strategies(ctx, s.memoryID)
	if err != nil {
		return nil, fmt.Errorf("memory: load strategies: %w", err)
	}
	return &Manager{
		store:      s.store,
		memoryID:   s.memoryID,
		actorID:    actorID,
		sessionID:  sessionID,
		strategies: strategies,
	}, nil
}

// Manager retrieves context before and saves interactions after a query.
type Manager struct {
	store      Store
	memoryID   string
	actorID    string
	sessionID  string
	strategies []domain.MemoryStrategy
}

// RetrieveContext returns one "[TYPE] text" line per non-empty record across
// every strategy namespace, or "" when nothing was found or retrieval failed.
func (m *Manager) RetrieveContext(ctx context.Context, query string) string {
	perStrategy := make([][]string, len(m.strategies))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range m.strategies {
		g.Go(func() error {
			records, err := m.store.Retrieve(gctx, m.memoryID, m.namespace(s.Namespace), query, defaultTopK)
			if err != nil {
				return fmt.Errorf("retrieve %s: %w", s.Type, err)
			}
			for _, r := range records {
				text := strings.TrimSpace(r.Text)
				if text == "" {
					continue
				}
				perStrategy[i] = append(perStrategy[i], fmt.Sprintf("[%s] %s", strings.ToUpper(s.Type), text))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("failed to retrieve customer context", "actor_id", m.actorID, "err", err)
		return ""
	}

	var lines []string
	for _, l := range perStrategy {
		lines = append(lines, l...)
	}
	if len(lines) == 0 {
		return ""
	}
	slog.Info("retrieved customer context", "items", len(lines), "actor_id", m.actorID)
	return strings.Join(lines, "\n")
}

// SaveInteraction stores the query and response as one event. Empty queries
// or responses are skipped.
func (m *Manager) SaveInteraction(ctx context.Context, query, response string) {
	if query == "" || response == "" {
		return
	}
	err := m.store.SaveEvent(ctx, m.memoryID, m.actorID, m.sessionID, []Turn{
		{Text: query, Role: RoleUser},
		{Text: response, Role: RoleAssistant},
	})
	if err != nil {
		slog.Error("failed to save support interaction", "actor_id", m.actorID, "session_id", m.sessionID, "err", err)
		return
	}
	slog.Info("saved support interaction to memory", "actor_id", m.actorID, "session_id", m.sessionID)
}

func (m *Manager) namespace(template string) string {
	return strings.ReplaceAll(template, "{actorId}", m.actorID)
}

// EnhancePrompt prefixes prompt with the retrieved customer context.
func EnhancePrompt(customerContext, prompt string) string {
	if customerContext == "" {
		return prompt
	}
	return "Customer Context:\n" + customerContext + "\n\n" + prompt
}
