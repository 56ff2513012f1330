package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	datatypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentcore/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"

	"customer-support-agent/internal/domain"
)

// dataAPI is the subset of the AgentCore data plane used for records and events.
type dataAPI interface {
	RetrieveMemoryRecords(ctx context.Context, in *bedrockagentcore.RetrieveMemoryRecordsInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.RetrieveMemoryRecordsOutput, error)
	CreateEvent(ctx context.Context, in *bedrockagentcore.CreateEventInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.CreateEventOutput, error)
}

// memoryGetter is the control plane call used to discover strategies.
type memoryGetter interface {
	GetMemory(ctx context.Context, in *bedrockagentcorecontrol.GetMemoryInput, optFns ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.GetMemoryOutput, error)
}

// AgentCoreStore is a Store backed by AgentCore memory.
type AgentCoreStore struct {
	data    dataAPI
	control memoryGetter
	now     func() time.Time
}

func NewAgentCoreStore(data dataAPI, control memoryGetter) (*AgentCoreStore, error) {
	if data == nil {
		return nil, errors.New("memory: data api must not be nil")
	}
	if control == nil {
		return nil, errors.New("memory: control api must not be nil")
	}
	return &AgentCoreStore{data: data, control: control, now: time.Now}, nil
}

// Strategies maps each configured strategy type to its first namespace.
func (s *AgentCoreStore) Strategies(ctx context.Context, memoryID string) ([]domain.MemoryStrategy, error) {
	out, err := s.control.GetMemory(ctx, &bedrockagentcorecontrol.GetMemoryInput{MemoryId: aws.String(memoryID)})
	if err != nil {
		return nil, fmt.Errorf("memory: get memory %q: %w", memoryID, err)
	}
	if out == nil || out.Memory == nil {
		return nil, fmt.Errorf("memory: get memory %q: empty response", memoryID)
	}

	strategies := make([]domain.MemoryStrategy, 0, len(out.Memory.Strategies))
	for _, st := range out.Memory.Strategies {
		if len(st.Namespaces) == 0 {
			continue
		}
		strategies = append(strategies, domain.MemoryStrategy{
			Type:      string(st.Type),
			Namespace: st.Namespaces[0],
		})
	}
	return strategies, nil
}

func (s *AgentCoreStore) Retrieve(ctx context.Context, memoryID, namespace, query string, topK int) ([]domain.MemoryRecord, error) {
	out, err := s.data.RetrieveMemoryRecords(ctx, &bedrockagentcore.RetrieveMemoryRecordsInput{
		MemoryId:  aws.String(memoryID),
		Namespace: aws.String(namespace),
		SearchCriteria: &datatypes.SearchCriteria{
			SearchQuery: aws.String(query),
			TopK:        aws.Int32(int32(topK)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("memory: retrieve records in %q: %w", namespace, err)
	}

	records := make([]domain.MemoryRecord, 0, len(out.MemoryRecordSummaries))
	for _, summary := range out.MemoryRecordSummaries {
		text, ok := summary.Content.(*datatypes.MemoryContentMemberText)
		if !ok {
			continue
		}
		records = append(records, domain.MemoryRecord{Text: text.Value, Score: aws.ToFloat64(summary.Score)})
	}
	return records, nil
}

func (s *AgentCoreStore) SaveEvent(ctx context.Context, memoryID, actorID, sessionID string, turns []Turn) error {
	payload := make([]datatypes.PayloadType, 0, len(turns))
	for _, t := range turns {
		payload = append(payload, &datatypes.PayloadTypeMemberConversational{
			Value: datatypes.Conversational{
				Content: &datatypes.ContentMemberText{Value: t.Text},
				Role:    datatypes.Role(t.Role),
			},
		})
	}

	_, err := s.data.CreateEvent(ctx, &bedrockagentcore.CreateEventInput{
		MemoryId:       aws.String(memoryID),
		ActorId:        aws.String(actorID),
		SessionId:      aws.String(sessionID),
		EventTimestamp: aws.Time(s.now().UTC()),
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("memory: create event: %w", err)
	}
	return nil
}
