package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting conversation
// engine metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Turn throughput and latency by backend and model
//   - Token consumption and estimated cost by backend and model
//   - Tool execution patterns and latencies
//   - Error rates categorized by type and component
//   - Active conversation counts and turn queue depth
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.ConversationStarted()
//	defer metrics.TurnDuration("anthropic", "claude-3-opus").Observe(time.Since(start).Seconds())
type Metrics struct {
	// TurnCounter counts completed turns by backend, model, and outcome.
	// Labels: backend (anthropic|openai|ollama|vllm|huggingface|fake), model, status (success|error)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures a turn's model-call latency in seconds.
	// Labels: backend, model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	TurnDuration *prometheus.HistogramVec

	// TokensUsed tracks token consumption by backend, model, and kind.
	// Labels: backend, model, kind (prompt|completion)
	TokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s, 60s
	ToolExecutionDuration *prometheus.HistogramVec

	// ErrorCounter tracks errors by component and error type.
	// Labels: component (processor|httpapi|streaming|tooldispatch|storage|context_filter), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveConversations is a gauge tracking conversations currently in a
	// non-terminal status.
	// Labels: status (active|active-processing|paused)
	ActiveConversations *prometheus.GaugeVec

	// ConversationDuration measures the time from a conversation's first
	// turn to its terminal status, in seconds.
	// Labels: outcome (completed|failed|cancelled)
	// Buckets: 1s, 5s, 30s, 60s, 300s, 900s, 3600s
	ConversationDuration *prometheus.HistogramVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// DatabaseQueryDuration measures storage query latency.
	// Labels: operation (select|insert|update|delete), table
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	DatabaseQueryDuration *prometheus.HistogramVec

	// DatabaseQueryCounter counts storage queries.
	// Labels: operation, table, status (success|error)
	DatabaseQueryCounter *prometheus.CounterVec

	// TaskQueueDepth tracks the turn-processing task queue's pending count.
	TaskQueueDepth prometheus.Gauge

	// TaskQueueWait measures how long a turn sat pending before its Lease
	// was granted, in seconds.
	// Buckets: 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 10s, 30s
	TaskQueueWait prometheus.Histogram

	// TurnsProcessed counts turns by how they finished.
	// Labels: outcome (completed|paused|failed|cancelled)
	TurnsProcessed *prometheus.CounterVec

	// ModelCostUSD tracks estimated model API cost.
	// Labels: backend, model
	ModelCostUSD *prometheus.CounterVec

	// ContextBudgetUsed tracks context window utilization at the point a
	// turn's request is sent.
	// Labels: backend, model
	// Buckets: 1000, 4000, 8000, 16000, 32000, 64000, 128000, 200000
	ContextBudgetUsed *prometheus.HistogramVec

	// ConversationsStuck counts conversations detected stuck in
	// active-processing past the stuck-detection threshold.
	ConversationsStuck prometheus.Counter

	// TurnAttempts counts turn attempts by outcome. Turns are single
	// attempt, so this is a straight tally, not a retry counter.
	// Labels: status (success|failed|cancelled)
	TurnAttempts *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and will be available at the /metrics endpoint when using prometheus HTTP handler.
func NewMetrics() *Metrics {
	return &Metrics{
		TurnCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_turns_total",
				Help: "Total number of turns by backend, model, and status",
			},
			[]string{"backend", "model", "status"},
		),

		TurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loom_turn_duration_seconds",
				Help:    "Duration of a turn's model call in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"backend", "model"},
		),

		TokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_tokens_total",
				Help: "Total number of tokens used by backend, model, and kind",
			},
			[]string{"backend", "model", "kind"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loom_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveConversations: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "loom_active_conversations",
				Help: "Current number of conversations in a non-terminal status",
			},
			[]string{"status"},
		),

		ConversationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loom_conversation_duration_seconds",
				Help:    "Duration from a conversation's first turn to its terminal status",
				Buckets: []float64{1, 5, 30, 60, 300, 900, 3600},
			},
			[]string{"outcome"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loom_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		DatabaseQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loom_database_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation", "table"},
		),

		DatabaseQueryCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),

		TaskQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "loom_task_queue_depth",
				Help: "Current depth of the turn-processing task queue",
			},
		),

		TaskQueueWait: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "loom_task_queue_wait_seconds",
				Help:    "Time a turn waited pending before its lease was granted",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),

		TurnsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_turns_processed_total",
				Help: "Total number of turns processed by outcome",
			},
			[]string{"outcome"},
		),

		ModelCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_model_cost_usd_total",
				Help: "Estimated model API cost in USD",
			},
			[]string{"backend", "model"},
		),

		ContextBudgetUsed: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "loom_context_budget_tokens",
				Help:    "Context window tokens used at request time",
				Buckets: []float64{1000, 4000, 8000, 16000, 32000, 64000, 128000, 200000},
			},
			[]string{"backend", "model"},
		),

		ConversationsStuck: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "loom_conversations_stuck_total",
				Help: "Number of conversations detected stuck in active-processing",
			},
		),

		TurnAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loom_turn_attempts_total",
				Help: "Total number of turn attempts by outcome",
			},
			[]string{"status"},
		),
	}
}

// RecordTurn records metrics for a completed turn's model call.
//
// Example:
//
//	start := time.Now()
//	// ... run turn ...
//	metrics.RecordTurn("anthropic", "claude-3-opus", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordTurn(backend, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.TurnCounter.WithLabelValues(backend, model, status).Inc()
	m.TurnDuration.WithLabelValues(backend, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.TokensUsed.WithLabelValues(backend, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.TokensUsed.WithLabelValues(backend, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records metrics for a tool execution.
//
// Example:
//
//	start := time.Now()
//	// ... execute tool ...
//	metrics.RecordToolExecution("web_search", "success", time.Since(start).Seconds())
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a given component and error type.
//
// Example:
//
//	metrics.RecordError("processor", "backend_timeout")
//	metrics.RecordError("tooldispatch", "call_id_mismatch")
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// ConversationStarted increments the active conversations gauge.
//
// Example:
//
//	metrics.ConversationStarted("active")
func (m *Metrics) ConversationStarted(status string) {
	m.ActiveConversations.WithLabelValues(status).Inc()
}

// ConversationEnded decrements the active conversations gauge for the
// status a conversation is leaving and records its total duration if it
// reached a terminal outcome.
//
// Example:
//
//	metrics.ConversationEnded("active-processing", "completed", time.Since(start).Seconds())
func (m *Metrics) ConversationEnded(fromStatus, outcome string, durationSeconds float64) {
	m.ActiveConversations.WithLabelValues(fromStatus).Dec()
	if outcome != "" {
		m.ConversationDuration.WithLabelValues(outcome).Observe(durationSeconds)
	}
}

// RecordHTTPRequest records metrics for an HTTP request.
//
// Example:
//
//	start := time.Now()
//	// ... handle HTTP request ...
//	metrics.RecordHTTPRequest("POST", "/conversations/{id}/messages", "202", time.Since(start).Seconds())
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}

// RecordDatabaseQuery records metrics for a storage query.
//
// Example:
//
//	start := time.Now()
//	// ... execute storage query ...
//	metrics.RecordDatabaseQuery("select", "conversations", "success", time.Since(start).Seconds())
func (m *Metrics) RecordDatabaseQuery(operation, table, status string, durationSeconds float64) {
	m.DatabaseQueryCounter.WithLabelValues(operation, table, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}

// SetTaskQueueDepth sets the current turn-processing task queue depth.
//
// Example:
//
//	metrics.SetTaskQueueDepth(3)
func (m *Metrics) SetTaskQueueDepth(depth int) {
	m.TaskQueueDepth.Set(float64(depth))
}

// RecordTaskQueueWait records how long a turn waited pending before lease.
//
// Example:
//
//	metrics.RecordTaskQueueWait(0.25)
func (m *Metrics) RecordTaskQueueWait(waitSeconds float64) {
	m.TaskQueueWait.Observe(waitSeconds)
}

// RecordTurnProcessed records a turn's terminal outcome for this pass
// through the Turn Processor.
//
// Example:
//
//	metrics.RecordTurnProcessed("completed")
//	metrics.RecordTurnProcessed("paused")
//	metrics.RecordTurnProcessed("failed")
func (m *Metrics) RecordTurnProcessed(outcome string) {
	m.TurnsProcessed.WithLabelValues(outcome).Inc()
}

// RecordModelCost records estimated API cost.
//
// Example:
//
//	metrics.RecordModelCost("anthropic", "claude-3-opus", 0.015)
func (m *Metrics) RecordModelCost(backend, model string, costUSD float64) {
	m.ModelCostUSD.WithLabelValues(backend, model).Add(costUSD)
}

// RecordContextBudget records context window utilization at request time.
//
// Example:
//
//	metrics.RecordContextBudget("anthropic", "claude-3-opus", 45000)
func (m *Metrics) RecordContextBudget(backend, model string, tokensUsed int) {
	m.ContextBudgetUsed.WithLabelValues(backend, model).Observe(float64(tokensUsed))
}

// RecordConversationStuck records a conversation detected as stuck.
//
// Example:
//
//	metrics.RecordConversationStuck()
func (m *Metrics) RecordConversationStuck() {
	m.ConversationsStuck.Inc()
}

// RecordTurnAttempt records a turn attempt outcome.
//
// Example:
//
//	metrics.RecordTurnAttempt("success")
//	metrics.RecordTurnAttempt("failed")
//	metrics.RecordTurnAttempt("cancelled")
func (m *Metrics) RecordTurnAttempt(status string) {
	m.TurnAttempts.WithLabelValues(status).Inc()
}
