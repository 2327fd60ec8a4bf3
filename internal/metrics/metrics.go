// Package metrics provides Prometheus metrics for the orchestration engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts runs by final status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conclave",
			Subsystem: "run",
			Name:      "runs_total",
			Help:      "Total number of runs by final status",
		},
		[]string{"status"}, // "finished", "failed", "cancelled"
	)

	// RunsActive tracks currently active runs.
	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conclave",
			Subsystem: "run",
			Name:      "runs_active",
			Help:      "Number of currently active runs",
		},
	)

	// CoordinatorTurns counts coordinator think turns.
	CoordinatorTurns = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "conclave",
			Subsystem: "coordinator",
			Name:      "turns_total",
			Help:      "Total number of coordinator reasoning turns",
		},
	)

	// BackendCalls counts model backend calls by provider and outcome.
	BackendCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conclave",
			Subsystem: "provider",
			Name:      "backend_calls_total",
			Help:      "Total number of model backend calls",
		},
		[]string{"provider", "result"}, // result: "success", "error"
	)

	// BackendLatency tracks model backend call duration.
	BackendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conclave",
			Subsystem: "provider",
			Name:      "backend_latency_seconds",
			Help:      "Model backend call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	// TokensUsed counts tokens consumed by direction.
	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conclave",
			Subsystem: "provider",
			Name:      "tokens_total",
			Help:      "Total tokens consumed",
		},
		[]string{"direction"}, // "input", "output"
	)

	// ToolDispatches counts tool calls by tool name and outcome.
	ToolDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conclave",
			Subsystem: "tool",
			Name:      "dispatches_total",
			Help:      "Total number of tool dispatches",
		},
		[]string{"tool", "result"}, // result: "success", "error", "unknown"
	)

	// ItemsTotal counts work items by terminal status.
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conclave",
			Subsystem: "board",
			Name:      "items_total",
			Help:      "Total number of work items by terminal status",
		},
		[]string{"status"}, // "completed", "failed"
	)

	// ExecutionsActive tracks work item executions currently in flight.
	ExecutionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conclave",
			Subsystem: "scheduler",
			Name:      "executions_active",
			Help:      "Number of work item executions in flight",
		},
	)

	// ExecutionDuration tracks work item execution duration.
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "conclave",
			Subsystem: "scheduler",
			Name:      "execution_duration_seconds",
			Help:      "Work item execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	// EventsTotal counts engine events emitted by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conclave",
			Subsystem: "bus",
			Name:      "events_total",
			Help:      "Total number of events emitted",
		},
		[]string{"type"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conclave",
			Subsystem: "server",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
