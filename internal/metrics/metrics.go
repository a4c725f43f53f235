// ABOUTME: Prometheus metrics for workers, the store, LLM calls and transports
// ABOUTME: Registered on the default registry and served on /metrics by the MCP server
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "interview"

var (
	// MessagesTotal counts messages moved through the hub.
	// Labels: channel (the hub channel), direction (in, out)
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "messages_total",
		Help:      "Messages put on or taken from hub channels",
	}, []string{"channel", "direction"})

	// WorkerErrors counts handler failures per pool.
	WorkerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "errors_total",
		Help:      "Handler errors caught by worker pools",
	}, []string{"pool"})

	// HandlerDuration measures handler latency per pool.
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "handler_duration_seconds",
		Help:      "Time spent handling one message",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"pool"})

	// TasksDone counts dequeued items, acknowledged whether or not handling succeeded.
	TasksDone = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "task_done_total",
		Help:      "Items dequeued and acknowledged by worker pools",
	}, []string{"pool"})

	// TurnsTotal counts interview turns by routed target.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "interview",
		Name:      "turns_total",
		Help:      "Interview turns by target",
	}, []string{"target"})

	// PendingRequests is the number of transport requests awaiting a response.
	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "pending_requests",
		Help:      "Requests waiting on a correlated response",
	})

	// RetriesTotal counts retried operations.
	// Labels: component (store, llm, telegram)
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retries_total",
		Help:      "Retries of transient failures",
	}, []string{"component"})

	// LLMCalls counts model invocations by kind and outcome.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Model invocations",
	}, []string{"kind", "status"})

	// ExtractionsTotal counts extract pipeline runs by outcome.
	ExtractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "extract",
		Name:      "runs_total",
		Help:      "Summary extraction runs",
	}, []string{"status"})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
