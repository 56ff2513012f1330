// Package config reads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	DefaultPort        = 8080
	DefaultParamPrefix = "/app/customersupport/agentcore"
	DefaultModelID     = "global.anthropic.claude-haiku-4-5-20251001-v1:0"
	DefaultMaxTurns    = 10

	BackendBedrock   = "bedrock"
	BackendAnthropic = "anthropic"

	// Environment flags of the container contract.
	EnvUseBedrock    = "CLAUDE_CODE_USE_BEDROCK"
	EnvNestedSession = "CLAUDECODE"
)

// Parameter keys stored under the parameter prefix.
const (
	ParamMemoryID     = "memory_id"
	ParamGatewayID    = "gateway_id"
	ParamRuntimeARN   = "runtime_arn"
	ParamClientID     = "client_id"
	ParamClientSecret = "client_secret"
	ParamPoolID       = "pool_id"
	ParamDiscoveryURL = "cognito_discovery_url"
)

// Config is the runtime configuration.
type Config struct {
	Port        int
	ParamPrefix string
	ModelID     string
	MaxTurns    int
	Backend     string

	// MemoryID and GatewayID fall back to the parameter store when empty.
	MemoryID  string
	GatewayID string

	// MemoryTable enables the DynamoDB transcript store instead of AgentCore memory.
	MemoryTable string
}

// Load reads Config from the environment. Unset or malformed values fall back
// to defaults.
func Load() Config {
	cfg := Config{
		Port:        envInt("PORT", DefaultPort),
		ParamPrefix: strings.TrimRight(envString("PARAM_PREFIX", DefaultParamPrefix), "/"),
		ModelID:     envString("MODEL_ID", DefaultModelID),
		MaxTurns:    envInt("MAX_TURNS", DefaultMaxTurns),
		Backend:     strings.ToLower(envString("MODEL_BACKEND", BackendBedrock)),
		MemoryID:    strings.TrimSpace(os.Getenv("MEMORY_ID")),
		GatewayID:   strings.TrimSpace(os.Getenv("GATEWAY_ID")),
		MemoryTable: strings.TrimSpace(os.Getenv("MEMORY_TABLE")),
	}
	if os.Getenv(EnvUseBedrock) == "1" {
		cfg.Backend = BackendBedrock
	}
	if cfg.Backend != BackendAnthropic {
		cfg.Backend = BackendBedrock
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	return cfg
}

// ApplyContainerEnv exports the backend choice of c and clears the
// nested-session guard so the agent can start inside the hosting sandbox.
// Call it after Load so MODEL_BACKEND still decides the backend.
func (c Config) ApplyContainerEnv() {
	if c.Backend == BackendBedrock {
		_ = os.Setenv(EnvUseBedrock, "1")
	} else {
		_ = os.Unsetenv(EnvUseBedrock)
	}
	_ = os.Unsetenv(EnvNestedSession)
}

// ParamName returns the full parameter store name for key under prefix.
func ParamName(prefix, key string) string {
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(key, "/")
}

// ParamName returns the full parameter store name for key.
func (c Config) ParamName(key string) string {
	return ParamName(c.ParamPrefix, key)
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
