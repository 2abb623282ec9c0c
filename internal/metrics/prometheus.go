package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Turn metrics
	Turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_turns_total",
			Help: "Concierge turns by outcome",
		},
		[]string{"outcome"}, // answered|degraded|blocked|cancelled
	)

	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_turn_duration_seconds",
			Help:    "End-to-end turn latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"outcome"},
	)

	QuotaBlocks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "concierge_quota_blocks_total",
			Help: "Turns refused because the daily quota was used up",
		},
	)

	// Context metrics
	ContextTierAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_context_tier_attempts_total",
			Help: "Context tier attempts",
		},
		[]string{"tier", "status"}, // status: success|error|timeout
	)

	ContextTierLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_context_tier_latency_seconds",
			Help:    "Context tier latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"tier"},
	)

	PromptTruncations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "concierge_prompt_truncations_total",
			Help: "Prompts cut to fit their character budget",
		},
	)

	// Provider metrics
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_provider_calls_total",
			Help: "Outbound provider calls",
		},
		[]string{"provider", "status"}, // status: success|error
	)

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_provider_latency_seconds",
			Help:    "Provider call latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"provider"},
	)

	ProviderFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_provider_fallbacks_total",
			Help: "Turns served by the secondary provider or degraded",
		},
		[]string{"reason"}, // primary_unhealthy|primary_failed|all_unhealthy|demo_failed
	)

	ProviderTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_provider_tokens_total",
			Help: "Tokens reported by providers",
		},
		[]string{"provider", "type"}, // type: prompt|completion
	)

	ProviderProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_provider_probes_total",
			Help: "Health probes by result",
		},
		[]string{"provider", "result"}, // healthy|unhealthy
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "concierge_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Turn log sinks
	TurnLogsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_turnlog_sink_errors_total",
			Help: "Turn logs a sink failed to accept",
		},
		[]string{"sink"},
	)
)

func init() {
	prometheus.MustRegister(
		Turns,
		TurnDuration,
		QuotaBlocks,
		ContextTierAttempts,
		ContextTierLatency,
		PromptTruncations,
		ProviderCalls,
		ProviderLatency,
		ProviderFallbacks,
		ProviderTokens,
		ProviderProbes,
		WorkerExecutions,
		WorkerDuration,
		WorkerLastRun,
		TurnLogsDropped,
	)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	WorkerExecutions.WithLabelValues(worker, status(err)).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordTurn records one finished turn
func RecordTurn(outcome string, duration time.Duration) {
	Turns.WithLabelValues(outcome).Inc()
	TurnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordContextTier records one tier attempt
func RecordContextTier(tier, result string, latency time.Duration) {
	ContextTierAttempts.WithLabelValues(tier, result).Inc()
	ContextTierLatency.WithLabelValues(tier).Observe(latency.Seconds())
}

// RecordProviderCall records an outbound provider call
func RecordProviderCall(provider string, latency time.Duration, promptTokens, completionTokens int, err error) {
	ProviderCalls.WithLabelValues(provider, status(err)).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(latency.Seconds())

	if promptTokens > 0 {
		ProviderTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		ProviderTokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

// RecordProbe records a health probe result
func RecordProbe(provider string, healthy bool) {
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	ProviderProbes.WithLabelValues(provider, result).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
