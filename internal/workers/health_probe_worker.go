package workers

import (
	"context"
	"time"

	"tripconcierge/internal/domain/providerhealth"
	"tripconcierge/pkg/errors"
)

// Refresher probes every registered backend
type Refresher interface {
	RefreshAll(ctx context.Context) []providerhealth.ProviderHealth
}

// HealthProbeWorker keeps provider health warm so turns rarely wait on a probe
type HealthProbeWorker struct {
	*BaseWorker
	monitor Refresher
}

func NewHealthProbeWorker(monitor Refresher, interval time.Duration, enabled bool) *HealthProbeWorker {
	return &HealthProbeWorker{
		BaseWorker: NewBaseWorker("provider_health_probe", interval, enabled),
		monitor:    monitor,
	}
}

// Run probes all backends; it fails only when none is routable
func (w *HealthProbeWorker) Run(ctx context.Context) error {
	snapshot := w.monitor.RefreshAll(ctx)

	healthy := 0
	for _, h := range snapshot {
		if h.Routable() {
			healthy++
		}
	}
	w.Log().Debugw("Provider health refreshed", "providers", len(snapshot), "healthy", healthy)

	if len(snapshot) > 0 && healthy == 0 {
		return errors.Wrapf(errors.ErrProviderUnavailable, "all %d providers unhealthy", len(snapshot))
	}
	return nil
}
