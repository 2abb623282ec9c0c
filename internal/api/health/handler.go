package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"tripconcierge/pkg/logger"
)

// Check pings one dependency
type Check func(ctx context.Context) error

type namedCheck struct {
	name     string
	check    Check
	critical bool
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	checks      []namedCheck
	startTime   time.Time
	serviceName string
	version     string
}

func New(serviceName, version string) *Handler {
	return &Handler{
		log:         logger.Get().With("component", "health"),
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// AddCheck registers a dependency check. Critical checks gate readiness;
// the others only degrade /health.
func (h *Handler) AddCheck(name string, check Check, critical bool) *Handler {
	h.checks = append(h.checks, namedCheck{name: name, check: check, critical: critical})
	return h
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                     `json:"status"` // healthy|degraded|unhealthy
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
	Critical     bool   `json:"critical"`
}

// HandleLiveness returns 200 while the process is up
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness returns 503 when a critical dependency is down
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := h.run(ctx)
	status := h.status(checks)

	code := http.StatusOK
	for _, c := range checks {
		if c.Critical && c.Status != "healthy" {
			status.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	if code != http.StatusOK {
		h.log.Warnw("Readiness check failed", "checks", checks)
	}
	writeJSON(w, code, status)
}

// HandleHealth reports every check; only a total outage returns 503
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := h.run(ctx)
	status := h.status(checks)

	healthy := 0
	for _, c := range checks {
		if c.Status == "healthy" {
			healthy++
		}
	}

	code := http.StatusOK
	switch {
	case len(checks) > 0 && healthy == 0:
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case healthy < len(checks):
		status.Status = "degraded"
	}
	writeJSON(w, code, status)
}

// run executes all checks concurrently
func (h *Handler) run(ctx context.Context) map[string]ComponentHealth {
	out := make(map[string]ComponentHealth, len(h.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, c := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := h.runOne(ctx, c)
			mu.Lock()
			out[c.name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

func (h *Handler) runOne(ctx context.Context, c namedCheck) ComponentHealth {
	start := time.Now()
	err := c.check(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Warnw("Health check failed", "check", c.name, "elapsed", elapsed, "error", err)
		return ComponentHealth{
			Status:       "unhealthy",
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
			Critical:     c.critical,
		}
	}
	return ComponentHealth{Status: "healthy", ResponseTime: elapsed.String(), Critical: c.critical}
}

func (h *Handler) status(checks map[string]ComponentHealth) HealthStatus {
	return HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
