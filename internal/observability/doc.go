// Package observability provides structured logging, Prometheus metrics, and
// OpenTelemetry distributed tracing for the conversation engine.
//
// # Overview
//
// The engine runs as a long-lived service processing conversations and
// turns against one or more backend drivers (Anthropic, OpenAI, Ollama,
// vLLM, HuggingFace). This package gives operators visibility into that
// pipeline: how many turns are in flight, how long backend calls take,
// where tool executions and context-budget trims are spending time, and
// where errors are surfacing.
//
// Three pillars:
//
//   - Logging: structured, leveled logging via log/slog with automatic
//     redaction of sensitive fields (API keys, tokens, secrets).
//   - Metrics: Prometheus counters, gauges, and histograms tracking turn
//     throughput, token usage, tool executions, and queue depth.
//   - Tracing: OpenTelemetry distributed tracing across turn processing,
//     backend calls, and tool executions.
//
// # Logging
//
// The Logger wraps log/slog with structured fields and built-in redaction:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:  slog.LevelInfo,
//	    Format: "json",
//	})
//
//	logger.Info(ctx, "turn started",
//	    "conversation_id", conv.ID,
//	    "backend", "anthropic",
//	)
//
// Sensitive values (API keys, bearer tokens, secrets) are automatically
// redacted from log output using configurable regex patterns. See
// DefaultRedactPatterns.
//
// Context correlation: request IDs, conversation IDs, and user IDs are
// carried via context.Context and automatically attached to every log line
// within that context. Use WithRequestID, WithConversationID, and
// WithUserID to enrich a context before logging.
//
// # Metrics
//
// Metrics exposes the prometheus.io metric surface for the conversation
// engine:
//
//	metrics := observability.NewMetrics()
//	http.Handle("/metrics", promhttp.Handler())
//
//	// Record a completed turn
//	metrics.RecordTurn("anthropic", "claude-3-opus", "success",
//	    time.Since(start).Seconds(), promptTokens, completionTokens)
//
//	// Track conversation lifecycle
//	metrics.ConversationStarted("active")
//	defer metrics.ConversationEnded("active", "completed", time.Since(start).Seconds())
//
//	// Track a tool execution
//	metrics.RecordToolExecution("web_search", "success", 0.340)
//
// Metric families:
//
//   - loom_turns_total{backend,model,status} (counter)
//   - loom_turn_duration_seconds{backend,model} (histogram)
//   - loom_tokens_total{backend,model,kind} (counter)
//   - loom_tool_executions_total{tool_name,status} (counter)
//   - loom_tool_execution_duration_seconds{tool_name} (histogram)
//   - loom_errors_total{component,error_type} (counter)
//   - loom_active_conversations{status} (gauge)
//   - loom_conversation_duration_seconds{outcome} (histogram)
//   - loom_http_request_duration_seconds{method,path,status_code} (histogram)
//   - loom_http_requests_total{method,path,status_code} (counter)
//   - loom_database_query_duration_seconds{operation,table} (histogram)
//   - loom_database_queries_total{operation,table,status} (counter)
//   - loom_task_queue_depth (gauge)
//   - loom_task_queue_wait_seconds (histogram)
//   - loom_turns_processed_total{outcome} (counter)
//   - loom_model_cost_usd_total{backend,model} (counter)
//   - loom_context_budget_tokens{backend,model} (histogram)
//   - loom_conversations_stuck_total (counter)
//   - loom_turn_attempts_total{status} (counter)
//
// # Tracing
//
// Tracer wraps OpenTelemetry spans for distributed tracing:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "loom",
//	    Endpoint:    os.Getenv("OTEL_ENDPOINT"),
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceLLMRequest(ctx, "anthropic", "claude-3-opus")
//	defer span.End()
//
// Convenience helpers exist for the engine's recurring span shapes:
// TraceLLMRequest (a backend driver call), TraceToolExecution (a tool
// dispatch), TraceDatabaseQuery, and TraceHTTPRequest.
//
// # Integration Example
//
// A turn processor wiring all three pillars together:
//
//	func (p *Processor) processTurn(ctx context.Context, conv *models.Conversation) error {
//	    ctx, span := p.tracer.TraceLLMRequest(ctx, conv.AgentID, agent.ModelConfig.Model)
//	    defer span.End()
//
//	    start := time.Now()
//	    resp, err := p.driver.Chat(ctx, conv.Messages)
//	    duration := time.Since(start).Seconds()
//
//	    if err != nil {
//	        p.tracer.RecordError(span, err)
//	        p.metrics.RecordError("processor", loomerr.Classify(err))
//	        p.logger.Error(ctx, "turn failed", "conversation_id", conv.ID, "error", err)
//	        return err
//	    }
//
//	    p.metrics.RecordTurn(agent.AIBackend, agent.ModelConfig.Model, "success",
//	        duration, resp.TokensUsed.InputTokens, resp.TokensUsed.OutputTokens)
//	    p.logger.Info(ctx, "turn completed", "conversation_id", conv.ID, "duration_ms", duration*1000)
//	    return nil
//	}
//
// # Monitoring Dashboard
//
// Example PromQL queries for a turn-processing dashboard:
//
//	# Turn throughput
//	rate(loom_turns_total[5m])
//
//	# Turn latency (95th percentile), by backend
//	histogram_quantile(0.95, sum(rate(loom_turn_duration_seconds_bucket[5m])) by (le, backend))
//
//	# Token spend rate
//	rate(loom_tokens_total[5m])
//
//	# Active conversations
//	loom_active_conversations
//
//	# Task queue backlog
//	loom_task_queue_depth
//
//	# Error rate by component
//	rate(loom_errors_total[5m])
//
//	# Model cost burn rate
//	rate(loom_model_cost_usd_total[1h])
//
// # Alerting
//
// Suggested alert thresholds:
//
//   - High turn error rate: rate(loom_turns_total{status="error"}[5m]) /
//     rate(loom_turns_total[5m]) > 0.05 for 5m
//   - Stuck conversations: increase(loom_conversations_stuck_total[10m]) > 0
//   - Task queue backlog: loom_task_queue_depth > 100 for 10m
//   - Turn latency regression: histogram_quantile(0.99,
//     rate(loom_turn_duration_seconds_bucket[5m])) > 30
package observability
