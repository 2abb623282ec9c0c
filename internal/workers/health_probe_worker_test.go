package workers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tripconcierge/internal/domain/providerhealth"
	"tripconcierge/pkg/errors"
)

type fakeRefresher struct {
	calls    int
	snapshot []providerhealth.ProviderHealth
}

func (f *fakeRefresher) RefreshAll(context.Context) []providerhealth.ProviderHealth {
	f.calls++
	return f.snapshot
}

func TestHealthProbeWorker_Run(t *testing.T) {
	refresher := &fakeRefresher{snapshot: []providerhealth.ProviderHealth{
		{ProviderID: "claude", Healthy: true, State: providerhealth.StateHealthy},
		{ProviderID: "openai", Healthy: false, State: providerhealth.StateUnhealthy},
	}}
	w := NewHealthProbeWorker(refresher, 30*time.Second, true)

	assert.NoError(t, w.Run(context.Background()))
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, "provider_health_probe", w.Name())
	assert.Equal(t, 30*time.Second, w.Interval())
}

func TestHealthProbeWorker_AllUnhealthy(t *testing.T) {
	refresher := &fakeRefresher{snapshot: []providerhealth.ProviderHealth{
		{ProviderID: "claude", State: providerhealth.StateUnhealthy},
	}}
	w := NewHealthProbeWorker(refresher, time.Minute, true)

	err := w.Run(context.Background())
	assert.True(t, errors.Is(err, errors.ErrProviderUnavailable))
}
