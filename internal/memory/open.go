package memory

import (
	"context"
	"errors"
	"strings"

	"customer-support-agent/internal/integrations/paramstore"
)

// OpenConfig selects the memory backend of the runtime.
type OpenConfig struct {
	// MemoryID wins over the id stored under ParamName.
	MemoryID  string
	ParamName string
	// Table switches to the DynamoDB transcript store. Its name doubles as
	// the memory id when none resolves.
	Table string
}

// Backends are the clients a memory backend is built on.
type Backends struct {
	Data    dataAPI
	Control memoryGetter
	Dynamo  dynamodbAPI
}

// Open resolves the memory id and builds the configured store. An error
// means the runtime should serve requests without memory.
func Open(ctx context.Context, params paramstore.Getter, cfg OpenConfig, b Backends) (*Service, error) {
	table := strings.TrimSpace(cfg.Table)

	memoryID, err := ResolveID(ctx, params, cfg.MemoryID, cfg.ParamName)
	if err != nil {
		if table == "" {
			return nil, err
		}
		memoryID = table
	}

	var store Store
	if table != "" {
		if b.Dynamo == nil {
			return nil, errors.New("memory: dynamodb api must not be nil")
		}
		store, err = NewTranscriptStore(b.Dynamo, table)
	} else {
		store, err = NewAgentCoreStore(b.Data, b.Control)
	}
	if err != nil {
		return nil, err
	}
	return NewService(store, memoryID)
}
