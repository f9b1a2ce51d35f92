package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	chatRequestsTotal   *prometheus.CounterVec
	chatRequestDuration prometheus.Histogram

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentRunTurns    prometheus.Histogram
	tokensTotal      *prometheus.CounterVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	taskMutationsTotal  *prometheus.CounterVec
	activeConversations prometheus.Gauge
	retentionSweepTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			chatRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_requests_total",
					Help: "Total chat requests by status.",
				},
				[]string{"status"},
			),
			chatRequestDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "chat_request_duration_seconds",
					Help:    "End-to-end chat request duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_run_total",
					Help: "Total agent runs by provider and status.",
				},
				[]string{"provider", "status"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			agentRunTurns: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agent_run_turns",
					Help:    "Model round-trips per agent run.",
					Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
				},
			),
			tokensTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_tokens_total",
					Help: "Total LLM tokens consumed by provider and direction.",
				},
				[]string{"provider", "direction"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_errors_total",
					Help: "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			taskMutationsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "task_mutations_total",
					Help: "Total task store mutations by operation.",
				},
				[]string{"operation"},
			),
			activeConversations: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_conversations",
					Help: "Current stored conversation count.",
				},
			),
			retentionSweepTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "retention_sweep_total",
					Help: "Total retention sweeps executed.",
				},
			),
		}

		prometheus.MustRegister(
			m.chatRequestsTotal,
			m.chatRequestDuration,
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentRunTurns,
			m.tokensTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.taskMutationsTotal,
			m.activeConversations,
			m.retentionSweepTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordChatRequest(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.chatRequestsTotal.WithLabelValues(status).Inc()
	m.chatRequestDuration.Observe(duration.Seconds())
}

func RecordAgentRun(provider string, duration time.Duration, turns int, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.agentRunTotal.WithLabelValues(provider, status).Inc()
	m.agentRunDuration.WithLabelValues(provider).Observe(duration.Seconds())
	m.agentRunTurns.Observe(float64(turns))
}

func RecordTokenUsage(provider string, promptTokens, completionTokens int) {
	m := getMetrics()
	m.tokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	m.tokensTotal.WithLabelValues(provider, "completion").Add(float64(completionTokens))
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordTaskMutation(operation string) {
	getMetrics().taskMutationsTotal.WithLabelValues(operation).Inc()
}

func SetActiveConversations(count int) {
	getMetrics().activeConversations.Set(float64(count))
}

func RecordRetentionSweep() {
	getMetrics().retentionSweepTotal.Inc()
}
