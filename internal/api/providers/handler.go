// Package providers exposes cached backend health and explicit re-probes.
package providers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tripconcierge/internal/api/httpx"
	"tripconcierge/internal/domain/providerhealth"
	"tripconcierge/pkg/errors"
)

type Monitor interface {
	Snapshot() []providerhealth.ProviderHealth
	Probe(ctx context.Context, id string) providerhealth.ProviderHealth
}

type Handler struct {
	monitor Monitor
	mode    string
}

// NewHandler creates the handler; mode is reported alongside the snapshot
func NewHandler(monitor Monitor, mode string) *Handler {
	return &Handler{monitor: monitor, mode: mode}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/providers/health", h.HandleSnapshot)
	r.Post("/providers/{providerID}/probe", h.HandleProbe)
}

type snapshotResponse struct {
	Mode      string                          `json:"mode"`
	Providers []providerhealth.ProviderHealth `json:"providers"`
}

// HandleSnapshot returns cached entries only and never triggers a probe
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, snapshotResponse{Mode: h.mode, Providers: h.monitor.Snapshot()})
}

// HandleProbe refreshes one backend; concurrent requests share the probe
func (h *Handler) HandleProbe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "providerID")
	if !h.known(id) {
		httpx.Error(w, errors.Wrapf(errors.ErrNotFound, "provider %q", id))
		return
	}
	httpx.JSON(w, http.StatusOK, h.monitor.Probe(r.Context(), id))
}

func (h *Handler) known(id string) bool {
	for _, p := range h.monitor.Snapshot() {
		if p.ProviderID == id {
			return true
		}
	}
	return false
}
