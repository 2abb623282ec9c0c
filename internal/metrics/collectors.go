package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"tripconcierge/internal/domain/providerhealth"
)

// HealthSnapshotter exposes the cached provider health table
type HealthSnapshotter interface {
	Snapshot() []providerhealth.ProviderHealth
}

// SessionCounter reports live concierge sessions
type SessionCounter interface {
	Len() int
}

// StateCollector turns in-memory state into gauges at scrape time,
// so scrapes never trigger probes or store reads.
type StateCollector struct {
	health   HealthSnapshotter
	sessions SessionCounter

	providerUp      *prometheus.Desc
	providerLatency *prometheus.Desc
	providerAge     *prometheus.Desc
	liveSessions    *prometheus.Desc
}

// NewStateCollector creates the collector; sessions may be nil
func NewStateCollector(health HealthSnapshotter, sessions SessionCounter) *StateCollector {
	return &StateCollector{
		health:   health,
		sessions: sessions,

		providerUp: prometheus.NewDesc(
			"concierge_provider_healthy",
			"1 when the provider's cached health is routable",
			[]string{"provider", "state"}, nil,
		),
		providerLatency: prometheus.NewDesc(
			"concierge_provider_probe_latency_ms",
			"Latency of the last health probe",
			[]string{"provider"}, nil,
		),
		providerAge: prometheus.NewDesc(
			"concierge_provider_health_checked_timestamp",
			"Unix timestamp of the last completed probe",
			[]string{"provider"}, nil,
		),
		liveSessions: prometheus.NewDesc(
			"concierge_sessions_live",
			"Concierge sessions held in memory",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *StateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.providerUp
	ch <- c.providerLatency
	ch <- c.providerAge
	ch <- c.liveSessions
}

// Collect implements prometheus.Collector
func (c *StateCollector) Collect(ch chan<- prometheus.Metric) {
	for _, h := range c.health.Snapshot() {
		up := 0.0
		if h.Routable() {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(c.providerUp, prometheus.GaugeValue, up, h.ProviderID, string(h.State))
		ch <- prometheus.MustNewConstMetric(c.providerLatency, prometheus.GaugeValue, float64(h.LatencyMs), h.ProviderID)
		if !h.CheckedAt.IsZero() {
			ch <- prometheus.MustNewConstMetric(c.providerAge, prometheus.GaugeValue, float64(h.CheckedAt.Unix()), h.ProviderID)
		}
	}

	if c.sessions != nil {
		ch <- prometheus.MustNewConstMetric(c.liveSessions, prometheus.GaugeValue, float64(c.sessions.Len()))
	}
}

// RegisterStateCollector registers the collector with the default registry
func RegisterStateCollector(collector *StateCollector) error {
	return prometheus.Register(collector)
}
