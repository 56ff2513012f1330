package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"customer-support-agent/internal/integrations/paramstore"
)

func testBackends() Backends {
	return Backends{Data: &fakeData{}, Control: &fakeControl{}, Dynamo: &fakeDynamo{}}
}

func TestOpen_NoMemoryIDDisablesMemory(t *testing.T) {
	svc, err := Open(context.Background(), &fakeParams{}, OpenConfig{ParamName: memoryParam}, testBackends())
	require.ErrorIs(t, err, paramstore.ErrNotFound)
	require.Nil(t, svc)
}

func TestOpen_AgentCoreFromStoredID(t *testing.T) {
	params := &fakeParams{values: map[string]string{memoryParam: "mem-stored"}}

	svc, err := Open(context.Background(), params, OpenConfig{ParamName: memoryParam}, testBackends())
	require.NoError(t, err)
	require.Equal(t, "mem-stored", svc.MemoryID())
	require.IsType(t, &AgentCoreStore{}, svc.store)

	svc, err = Open(context.Background(), params, OpenConfig{MemoryID: "mem-env", ParamName: memoryParam}, testBackends())
	require.NoError(t, err)
	require.Equal(t, "mem-env", svc.MemoryID())
}

func TestOpen_TableSwitchesToTranscriptStore(t *testing.T) {
	svc, err := Open(context.Background(), &fakeParams{}, OpenConfig{ParamName: memoryParam, Table: "support-memory"}, testBackends())
	require.NoError(t, err)
	require.Equal(t, "support-memory", svc.MemoryID())
	require.IsType(t, &TranscriptStore{}, svc.store)

	svc, err = Open(context.Background(), &fakeParams{}, OpenConfig{MemoryID: "mem-1", Table: "support-memory"}, testBackends())
	require.NoError(t, err)
	require.Equal(t, "mem-1", svc.MemoryID())
	require.IsType(t, &TranscriptStore{}, svc.store)
}

func TestOpen_MissingClient(t *testing.T) {
	_, err := Open(context.Background(), &fakeParams{}, OpenConfig{MemoryID: "mem-1", Table: "t"}, Backends{})
	require.Error(t, err)

	_, err = Open(context.Background(), &fakeParams{}, OpenConfig{MemoryID: "mem-1"}, Backends{})
	require.Error(t, err)
}
