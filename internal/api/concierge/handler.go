// Package concierge exposes concierge turns, history and quota over HTTP.
package concierge

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tripconcierge/internal/api/httpx"
	"tripconcierge/internal/domain/trip"
	"tripconcierge/internal/domain/usage"
	conciergesvc "tripconcierge/internal/services/concierge"
	"tripconcierge/internal/services/ratelimit"
	"tripconcierge/internal/services/tripcontext"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

// UserHeader carries the authenticated user ID set by the gateway
const UserHeader = "X-User-ID"

type Turns interface {
	Send(ctx context.Context, userID, tripID string, turn conciergesvc.Turn) (conciergesvc.TurnResult, error)
	History(userID, tripID string) []trip.ChatTurn
}

type Quota interface {
	Check(ctx context.Context, userID, scopeID string, unlimited bool) (ratelimit.CheckResult, error)
}

type Handler struct {
	turns Turns
	quota Quota
	log   *logger.Logger
}

func NewHandler(turns Turns, quota Quota) *Handler {
	return &Handler{
		turns: turns,
		quota: quota,
		log:   logger.Get().With("component", "concierge_api"),
	}
}

// Routes mounts the trip-scoped endpoints
func (h *Handler) Routes(r chi.Router) {
	r.Post("/trips/{tripID}/concierge/messages", h.HandleSend)
	r.Get("/trips/{tripID}/concierge/history", h.HandleHistory)
	r.Get("/usage", h.HandleUsage)
}

// SendRequest is the body of a concierge message
type SendRequest struct {
	Message   string `json:"message"`
	ScopeID   string `json:"scope_id,omitempty"`
	Unlimited bool   `json:"unlimited,omitempty"`
	IsPro     bool   `json:"is_pro,omitempty"`
	Trip      *struct {
		Title         string     `json:"title,omitempty"`
		Location      string     `json:"location,omitempty"`
		Accommodation string     `json:"accommodation,omitempty"`
		StartDate     *time.Time `json:"start_date,omitempty"`
		EndDate       *time.Time `json:"end_date,omitempty"`
	} `json:"trip,omitempty"`
}

func (req SendRequest) turn() conciergesvc.Turn {
	t := conciergesvc.Turn{
		Message:   req.Message,
		ScopeID:   req.ScopeID,
		Unlimited: req.Unlimited,
		IsPro:     req.IsPro,
	}
	if req.Trip != nil {
		t.Fallback = tripcontext.Fallback{
			Title:             req.Trip.Title,
			Location:          req.Trip.Location,
			AccommodationName: req.Trip.Accommodation,
		}
		if req.Trip.StartDate != nil {
			t.Fallback.Dates.Start = *req.Trip.StartDate
		}
		if req.Trip.EndDate != nil {
			t.Fallback.Dates.End = *req.Trip.EndDate
		}
	}
	return t
}

// HandleSend runs one turn. Degraded replies and quota notices are 200s;
// the reply kind tells them apart.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}

	var req SendRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.Error(w, err)
		return
	}

	tripID := chi.URLParam(r, "tripID")
	res, err := h.turns.Send(r.Context(), userID, tripID, req.turn())
	if err != nil {
		h.log.Debugw("Turn not completed", "user_id", userID, "trip_id", tripID, "error", err)
		httpx.Error(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

type historyResponse struct {
	TripID string          `json:"trip_id"`
	Turns  []trip.ChatTurn `json:"turns"`
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}

	tripID := chi.URLParam(r, "tripID")
	turns := h.turns.History(userID, tripID)
	if turns == nil {
		turns = []trip.ChatTurn{}
	}
	httpx.JSON(w, http.StatusOK, historyResponse{TripID: tripID, Turns: turns})
}

type usageResponse struct {
	ScopeID     string    `json:"scope_id"`
	Allowed     bool      `json:"allowed"`
	Remaining   int       `json:"remaining"` // -1 = unlimited
	QueriesUsed int       `json:"queries_used"`
	Limit       int       `json:"limit"`
	ResetAt     time.Time `json:"reset_at"`
	ResetInSec  int64     `json:"reset_in_seconds"`
}

// HandleUsage reports quota for ?scope_id= without consuming any
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		httpx.Error(w, err)
		return
	}

	q := r.URL.Query()
	scopeID := q.Get("scope_id")
	unlimited := false
	if v := q.Get("unlimited"); v != "" {
		if unlimited, err = strconv.ParseBool(v); err != nil {
			httpx.Error(w, errors.NewValidationError("unlimited", "must be a boolean", v))
			return
		}
	}

	res, err := h.quota.Check(r.Context(), userID, scopeID, unlimited)
	if err != nil {
		h.log.Warnw("Usage check failed", "user_id", userID, "scope_id", scopeID, "error", err)
		httpx.Error(w, err)
		return
	}

	out := usageResponse{
		ScopeID:     scopeID,
		Allowed:     res.Allowed,
		Remaining:   res.Remaining,
		QueriesUsed: res.QueriesUsed,
		Limit:       res.Limit,
		ResetAt:     res.ResetAt,
		ResetInSec:  int64(res.ResetIn / time.Second),
	}
	if res.Remaining == usage.Unlimited {
		out.Limit = usage.Unlimited
	}
	httpx.JSON(w, http.StatusOK, out)
}

func requireUser(r *http.Request) (string, error) {
	id := r.Header.Get(UserHeader)
	if id == "" {
		return "", errors.NewValidationError(UserHeader, "header is required", "")
	}
	return id, nil
}
