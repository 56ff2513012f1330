package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	ctltypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol/types"

	"customer-support-agent/internal/integrations/paramstore"
)

const (
	ResourceName        = "CustomerSupportMemory"
	eventExpiryDays     = 90
	defaultPollInterval = 5 * time.Second

	PreferencesNamespace = "support/customer/{actorId}/preferences"
	SemanticNamespace    = "support/customer/{actorId}/semantic"
)

// controlAPI is the subset of the AgentCore control plane used to manage the
// memory resource.
type controlAPI interface {
	memoryGetter
	CreateMemory(ctx context.Context, in *bedrockagentcorecontrol.CreateMemoryInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateMemoryOutput, error)
	DeleteMemory(ctx context.Context, in *bedrockagentcorecontrol.DeleteMemoryInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.DeleteMemoryOutput, error)
	ListMemories(ctx context.Context, in *bedrockagentcorecontrol.ListMemoriesInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListMemoriesOutput, error)
}

// Provisioner creates and removes the AgentCore memory resource and keeps its
// id in the parameter store.
type Provisioner struct {
	control      controlAPI
	params       paramstore.Store
	paramName    string
	pollInterval time.Duration
}

// NewProvisioner returns a Provisioner storing the memory id under paramName.
func NewProvisioner(control controlAPI, params paramstore.Store, paramName string) (*Provisioner, error) {
	if control == nil {
		return nil, errors.New("memory: control api must not be nil")
	}
	if params == nil {
		return nil, errors.New("memory: parameter store must not be nil")
	}
	if strings.TrimSpace(paramName) == "" {
		return nil, errors.New("memory: parameter name must not be empty")
	}
	return &Provisioner{control: control, params: params, paramName: paramName, pollInterval: defaultPollInterval}, nil
}

// CreateOrGet returns the stored memory id when it still resolves, otherwise
// creates a new memory resource, waits for it to become active and stores its id.
func (p *Provisioner) CreateOrGet(ctx context.Context) (string, error) {
	id, err := p.params.GetParameter(ctx, p.paramName)
	switch {
	case err == nil && id != "":
		_, getErr := p.control.GetMemory(ctx, &bedrockagentcorecontrol.GetMemoryInput{MemoryId: aws.String(id)})
		if getErr == nil {
			slog.Info("reusing existing memory", "memory_id", id)
			return id, nil
		}
		slog.Warn("stored memory id no longer resolves, creating a new one", "memory_id", id, "err", getErr)
	case err != nil && !errors.Is(err, paramstore.ErrNotFound):
		return "", fmt.Errorf("memory: read memory id: %w", err)
	}

	out, err := p.control.CreateMemory(ctx, &bedrockagentcorecontrol.CreateMemoryInput{
		Name:                aws.String(ResourceName),
		Description:         aws.String("Customer support agent memory"),
		EventExpiryDuration: aws.Int32(eventExpiryDays),
		MemoryStrategies:    defaultStrategies(),
	})
	if err != nil {
		return "", fmt.Errorf("memory: create memory: %w", err)
	}
	if out == nil || out.Memory == nil || aws.ToString(out.Memory.Id) == "" {
		return "", errors.New("memory: create memory: empty response")
	}
	id = aws.ToString(out.Memory.Id)

	if err := p.waitActive(ctx, id, out.Memory.Status); err != nil {
		return "", err
	}
	if err := p.params.PutParameter(ctx, p.paramName, id, false); err != nil {
		return "", fmt.Errorf("memory: store memory id: %w", err)
	}
	slog.Info("created memory", "memory_id", id)
	return id, nil
}

// Delete removes the memory resource and its stored id.
func (p *Provisioner) Delete(ctx context.Context, memoryID string) error {
	if strings.TrimSpace(memoryID) == "" {
		return errors.New("memory: memory id must not be empty")
	}
	if _, err := p.control.DeleteMemory(ctx, &bedrockagentcorecontrol.DeleteMemoryInput{MemoryId: aws.String(memoryID)}); err != nil {
		return fmt.Errorf("memory: delete memory %q: %w", memoryID, err)
	}
	if err := p.params.DeleteParameter(ctx, p.paramName); err != nil {
		return fmt.Errorf("memory: delete memory id parameter: %w", err)
	}
	return nil
}

// DeleteAll deletes every memory resource of the account and the stored id,
// returning the ids it deleted.
func (p *Provisioner) DeleteAll(ctx context.Context) ([]string, error) {
	var ids []string
	var next *string
	for {
		page, err := p.control.ListMemories(ctx, &bedrockagentcorecontrol.ListMemoriesInput{NextToken: next})
		if err != nil {
			return ids, fmt.Errorf("memory: list memories: %w", err)
		}
		for _, m := range page.Memories {
			id := aws.ToString(m.Id)
			if id == "" {
				continue
			}
			if _, err := p.control.DeleteMemory(ctx, &bedrockagentcorecontrol.DeleteMemoryInput{MemoryId: aws.String(id)}); err != nil {
				return ids, fmt.Errorf("memory: delete memory %q: %w", id, err)
			}
			slog.Info("deleted memory", "memory_id", id, "status", m.Status)
			ids = append(ids, id)
		}
		if aws.ToString(page.NextToken) == "" {
			break
		}
		next = page.NextToken
	}
	if err := p.params.DeleteParameter(ctx, p.paramName); err != nil {
		return ids, fmt.Errorf("memory: delete memory id parameter: %w", err)
	}
	return ids, nil
}

func (p *Provisioner) waitActive(ctx context.Context, id string, status ctltypes.MemoryStatus) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		switch status {
		case ctltypes.MemoryStatusActive:
			return nil
		case ctltypes.MemoryStatusFailed:
			return fmt.Errorf("memory: memory %q failed to become active", id)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("memory: wait for %q: %w", id, ctx.Err())
		case <-ticker.C:
		}
		out, err := p.control.GetMemory(ctx, &bedrockagentcorecontrol.GetMemoryInput{MemoryId: aws.String(id)})
		if err != nil {
			return fmt.Errorf("memory: poll memory %q: %w", id, err)
		}
		if out != nil && out.Memory != nil {
			status = out.Memory.Status
		}
	}
}

func defaultStrategies() []ctltypes.MemoryStrategyInput {
	return []ctltypes.MemoryStrategyInput{
		&ctltypes.MemoryStrategyInputMemberUserPreferenceMemoryStrategy{
			Value: ctltypes.UserPreferenceMemoryStrategyInput{
				Name:        aws.String("CustomerPreferences"),
				Description: aws.String("Captures customer preferences and behavior"),
				Namespaces:  []string{PreferencesNamespace},
			},
		},
		&ctltypes.MemoryStrategyInputMemberSemanticMemoryStrategy{
			Value: ctltypes.SemanticMemoryStrategyInput{
				Name:        aws.String("CustomerSupportSemantic"),
				Description: aws.String("Stores facts from conversations"),
				Namespaces:  []string{SemanticNamespace},
			},
		},
	}
}

// ResolveID returns envID when set, otherwise the id stored under paramName.
func ResolveID(ctx context.Context, params paramstore.Getter, envID, paramName string) (string, error) {
	if id := strings.TrimSpace(envID); id != "" {
		return id, nil
	}
	if params == nil {
		return "", errors.New("memory: no memory id configured")
	}
	id, err := params.GetParameter(ctx, paramName)
	if err != nil {
		return "", fmt.Errorf("memory: resolve memory id: %w", err)
	}
	if strings.TrimSpace(id) == "" {
		return "", errors.New("memory: stored memory id is empty")
	}
	return strings.TrimSpace(id), nil
}
