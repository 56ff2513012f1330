package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	datatypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentcore/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	ctltypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol/types"
	"github.com/stretchr/testify/require"
)

type fakeData struct {
	retrieveOut  *bedrockagentcore.RetrieveMemoryRecordsOutput
	retrieveErr  error
	createErr    error
	lastRetrieve *bedrockagentcore.RetrieveMemoryRecordsInput
	lastEvent    *bedrockagentcore.CreateEventInput
}

func (f *fakeData) RetrieveMemoryRecords(_ context.Context, in *bedrockagentcore.RetrieveMemoryRecordsInput, _ ...func(*bedrockagentcore.Options)) (*bedrockagentcore.RetrieveMemoryRecordsOutput, error) {
	f.lastRetrieve = in
	return f.retrieveOut, f.retrieveErr
}

func (f *fakeData) CreateEvent(_ context.Context, in *bedrockagentcore.CreateEventInput, _ ...func(*bedrockagentcore.Options)) (*bedrockagentcore.CreateEventOutput, error) {
	f.lastEvent = in
	return &bedrockagentcore.CreateEventOutput{}, f.createErr
}

type fakeControl struct {
	getOuts   []*bedrockagentcorecontrol.GetMemoryOutput
	getErr    error
	getCalls  int
	createOut *bedrockagentcorecontrol.CreateMemoryOutput
	createErr error
	deleteErr error

	lastCreate *bedrockagentcorecontrol.CreateMemoryInput
	deletedID  string
	deletedIDs []string

	listPages []*bedrockagentcorecontrol.ListMemoriesOutput
	listErr   error
	listCalls int
}

func (f *fakeControl) GetMemory(_ context.Context, _ *bedrockagentcorecontrol.GetMemoryInput, _ ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.GetMemoryOutput, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if len(f.getOuts) == 0 {
		return &bedrockagentcorecontrol.GetMemoryOutput{}, nil
	}
	out := f.getOuts[0]
	if len(f.getOuts) > 1 {
		f.getOuts = f.getOuts[1:]
	}
	return out, nil
}

func (f *fakeControl) CreateMemory(_ context.Context, in *bedrockagentcorecontrol.CreateMemoryInput, _ ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.CreateMemoryOutput, error) {
	f.lastCreate = in
	return f.createOut, f.createErr
}

func (f *fakeControl) DeleteMemory(_ context.Context, in *bedrockagentcorecontrol.DeleteMemoryInput, _ ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.DeleteMemoryOutput, error) {
	f.deletedID = aws.ToString(in.MemoryId)
	if f.deleteErr == nil {
		f.deletedIDs = append(f.deletedIDs, f.deletedID)
	}
	return &bedrockagentcorecontrol.DeleteMemoryOutput{}, f.deleteErr
}

func (f *fakeControl) ListMemories(_ context.Context, _ *bedrockagentcorecontrol.ListMemoriesInput, _ ...func(*bedrockagentcorecontrol.Options)) (*bedrockagentcorecontrol.ListMemoriesOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if f.listCalls >= len(f.listPages) {
		return &bedrockagentcorecontrol.ListMemoriesOutput{}, nil
	}
	page := f.listPages[f.listCalls]
	f.listCalls++
	return page, nil
}

func memoryWithStatus(id string, status ctltypes.MemoryStatus) *bedrockagentcorecontrol.GetMemoryOutput {
	return &bedrockagentcorecontrol.GetMemoryOutput{Memory: &ctltypes.Memory{Id: aws.String(id), Status: status}}
}

func TestNewAgentCoreStore_Validates(t *testing.T) {
	_, err := NewAgentCoreStore(nil, &fakeControl{})
	require.Error(t, err)
	_, err = NewAgentCoreStore(&fakeData{}, nil)
	require.Error(t, err)
}

func TestAgentCoreStore_Strategies(t *testing.T) {
	control := &fakeControl{getOuts: []*bedrockagentcorecontrol.GetMemoryOutput{{
		Memory: &ctltypes.Memory{Strategies: []ctltypes.MemoryStrategy{
			{Type: ctltypes.MemoryStrategyTypeUserPreference, Namespaces: []string{PreferencesNamespace, "other"}},
			{Type: ctltypes.MemoryStrategyTypeSemantic, Namespaces: []string{SemanticNamespace}},
			{Type: ctltypes.MemoryStrategyTypeSummarization},
		}},
	}}}
	s, err := NewAgentCoreStore(&fakeData{}, control)
	require.NoError(t, err)

	got, err := s.Strategies(context.Background(), "mem-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "USER_PREFERENCE", got[0].Type)
	require.Equal(t, PreferencesNamespace, got[0].Namespace)
	require.Equal(t, "SEMANTIC", got[1].Type)
}

func TestAgentCoreStore_Strategies_Error(t *testing.T) {
	s, err := NewAgentCoreStore(&fakeData{}, &fakeControl{getErr: errors.New("AccessDenied")})
	require.NoError(t, err)
	_, err = s.Strategies(context.Background(), "mem-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "mem-1")
}

func TestAgentCoreStore_Retrieve(t *testing.T) {
	data := &fakeData{retrieveOut: &bedrockagentcore.RetrieveMemoryRecordsOutput{
		MemoryRecordSummaries: []datatypes.MemoryRecordSummary{
			{Content: &datatypes.MemoryContentMemberText{Value: "Prefers phone support"}, Score: aws.Float64(0.8)},
			{},
		},
	}}
	s, err := NewAgentCoreStore(data, &fakeControl{})
	require.NoError(t, err)

	got, err := s.Retrieve(context.Background(), "mem-1", "support/customer/c/preferences", "call me", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Prefers phone support", got[0].Text)
	require.InDelta(t, 0.8, got[0].Score, 1e-9)

	require.Equal(t, "support/customer/c/preferences", aws.ToString(data.lastRetrieve.Namespace))
	require.Equal(t, "call me", aws.ToString(data.lastRetrieve.SearchCriteria.SearchQuery))
	require.Equal(t, int32(3), aws.ToInt32(data.lastRetrieve.SearchCriteria.TopK))
}

func TestAgentCoreStore_Retrieve_Error(t *testing.T) {
	s, err := NewAgentCoreStore(&fakeData{retrieveErr: errors.New("throttled")}, &fakeControl{})
	require.NoError(t, err)
	_, err = s.Retrieve(context.Background(), "mem-1", "ns", "q", 3)
	require.Error(t, err)
}

func TestAgentCoreStore_SaveEvent(t *testing.T) {
	data := &fakeData{}
	s, err := NewAgentCoreStore(data, &fakeControl{})
	require.NoError(t, err)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	err = s.SaveEvent(context.Background(), "mem-1", "cust-1", "sess-1", []Turn{
		{Text: "q", Role: RoleUser},
		{Text: "a", Role: RoleAssistant},
	})
	require.NoError(t, err)

	in := data.lastEvent
	require.Equal(t, "cust-1", aws.ToString(in.ActorId))
	require.Equal(t, "sess-1", aws.ToString(in.SessionId))
	require.Equal(t, fixed, aws.ToTime(in.EventTimestamp))
	require.Len(t, in.Payload, 2)

	first, ok := in.Payload[0].(*datatypes.PayloadTypeMemberConversational)
	require.True(t, ok)
	require.Equal(t, datatypes.Role("USER"), first.Value.Role)
	require.Equal(t, &datatypes.ContentMemberText{Value: "q"}, first.Value.Content)

	second := in.Payload[1].(*datatypes.PayloadTypeMemberConversational)
	require.Equal(t, datatypes.Role("ASSISTANT"), second.Value.Role)
}

func TestAgentCoreStore_SaveEvent_Error(t *testing.T) {
	s, err := NewAgentCoreStore(&fakeData{createErr: errors.New("boom")}, &fakeControl{})
	require.NoError(t, err)
	err = s.SaveEvent(context.Background(), "mem-1", "a", "s", []Turn{{Text: "q", Role: RoleUser}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "create event")
}
