package providerhealth

import "time"

// State of a provider in the health state machine:
// Unknown -> Probing -> Healthy|Unhealthy, back to Probing on expiry or refresh
type State string

const (
	StateUnknown   State = "unknown"
	StateProbing   State = "probing"
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
)

// ProviderHealth is the last known liveness of one AI backend
type ProviderHealth struct {
	ProviderID string    `json:"provider_id"`
	Healthy    bool      `json:"healthy"`
	Model      string    `json:"model,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CheckedAt  time.Time `json:"checked_at"`
	Error      string    `json:"error,omitempty"`
	State      State     `json:"state"`
}

// Stale reports whether the entry is older than ttl at now (never-checked entries are stale)
func (h ProviderHealth) Stale(now time.Time, ttl time.Duration) bool {
	if h.CheckedAt.IsZero() {
		return true
	}
	return now.Sub(h.CheckedAt) > ttl
}

// Routable reports whether a router may send traffic to the provider.
// A re-probe in flight keeps the previous verdict.
func (h ProviderHealth) Routable() bool {
	return h.Healthy && (h.State == StateHealthy || h.State == StateProbing)
}
