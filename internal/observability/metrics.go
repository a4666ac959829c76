package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application
// metrics.
//
// Built on Prometheus, tracking:
//   - Model request performance, counts and token consumption
//   - Tool execution patterns and latencies
//   - Active session counts and run durations
//   - Memory extraction outcomes
//   - Tool directory reloads and server connection health
//   - Error rates categorized by component and type
type Metrics struct {
	// ModelRequestDuration measures model API call latency in seconds.
	// Labels: provider (anthropic|openai), model
	ModelRequestDuration *prometheus.HistogramVec

	// ModelRequestCounter counts model requests.
	// Labels: provider, model, status (success|error)
	ModelRequestCounter *prometheus.CounterVec

	// ModelTokensUsed tracks token consumption.
	// Labels: provider, model, type (input|output|cache_read|cache_creation)
	ModelTokensUsed *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, source (static|external), status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ActiveSessions is a gauge tracking currently running sessions.
	ActiveSessions prometheus.Gauge

	// RunDuration measures full agent run duration in seconds.
	// Labels: stop_reason
	RunDuration *prometheus.HistogramVec

	// MemoryExtractionCounter counts background extraction runs.
	// Labels: status (success|skipped|error)
	MemoryExtractionCounter *prometheus.CounterVec

	// ToolDirectoryReloads counts tool server config reloads.
	// Labels: status (ready|failed_partial|parse_error)
	ToolDirectoryReloads *prometheus.CounterVec

	// ToolServerConnections counts tool server connection attempts.
	// Labels: server, status (success|error)
	ToolServerConnections *prometheus.CounterVec

	// ErrorCounter tracks errors by component and type.
	// Labels: component (session|tools|memory|directory|store), error_type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with the
// default registry. Call once at application startup.
func NewMetrics() *Metrics {
	return &Metrics{
		ModelRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nao_model_request_duration_seconds",
				Help:    "Duration of model API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		ModelRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nao_model_requests_total",
				Help: "Total number of model requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ModelTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nao_model_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nao_tool_executions_total",
				Help: "Total number of tool executions by tool, source, and status",
			},
			[]string{"tool_name", "source", "status"},
		),

		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nao_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "nao_active_sessions",
				Help: "Current number of sessions with a live run",
			},
		),

		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nao_run_duration_seconds",
				Help:    "Duration of agent runs in seconds by stop reason",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stop_reason"},
		),

		MemoryExtractionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nao_memory_extractions_total",
				Help: "Total number of background memory extraction runs by status",
			},
			[]string{"status"},
		),

		ToolDirectoryReloads: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nao_tool_directory_reloads_total",
				Help: "Total number of tool server directory loads by outcome",
			},
			[]string{"status"},
		),

		ToolServerConnections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nao_tool_server_connections_total",
				Help: "Total number of tool server connection attempts by server and status",
			},
			[]string{"server", "status"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nao_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// RecordModelRequest records metrics for one model API call.
func (m *Metrics) RecordModelRequest(provider, model, status string, durationSeconds float64, inputTokens, outputTokens int) {
	m.ModelRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.ModelRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if inputTokens > 0 {
		m.ModelTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.ModelTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution records metrics for a tool execution.
func (m *Metrics) RecordToolExecution(toolName, source, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, source, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordError increments the error counter for a component and type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// RunStarted increments the active sessions gauge.
func (m *Metrics) RunStarted() {
	m.ActiveSessions.Inc()
}

// RunEnded decrements the active sessions gauge and records run duration.
func (m *Metrics) RunEnded(stopReason string, durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.RunDuration.WithLabelValues(stopReason).Observe(durationSeconds)
}

// RecordMemoryExtraction records the outcome of a background extraction.
func (m *Metrics) RecordMemoryExtraction(status string) {
	m.MemoryExtractionCounter.WithLabelValues(status).Inc()
}

// RecordDirectoryReload records a tool server directory load outcome.
func (m *Metrics) RecordDirectoryReload(status string) {
	m.ToolDirectoryReloads.WithLabelValues(status).Inc()
}

// RecordServerConnection records a tool server connection attempt.
func (m *Metrics) RecordServerConnection(server, status string) {
	m.ToolServerConnections.WithLabelValues(server, status).Inc()
}
