// Package metrics holds the Prometheus collectors of the runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Invocation outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	Invocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "customer_support",
		Name:      "invocations_total",
		Help:      "Agent invocations by response mode and outcome.",
	}, []string{"mode", "outcome"})

	InvocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "customer_support",
		Name:      "invocation_duration_seconds",
		Help:      "Wall time of agent invocations.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"mode"})

	ToolCalls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "customer_support",
		Name:      "tool_calls_total",
		Help:      "Tool calls made by the agent.",
	})

	MemoryContext = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "customer_support",
		Name:      "memory_context_total",
		Help:      "Memory retrievals by result (hit, empty, unavailable).",
	}, []string{"result"})

	GatewayAttached = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "customer_support",
		Name:      "gateway_attach_total",
		Help:      "Gateway MCP attachment attempts by result.",
	}, []string{"result"})
)
