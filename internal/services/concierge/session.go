package concierge

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"tripconcierge/internal/adapters/ai"
	"tripconcierge/internal/domain/reply"
	"tripconcierge/internal/domain/trip"
	"tripconcierge/internal/domain/turnlog"
	"tripconcierge/internal/domain/usage"
	"tripconcierge/internal/metrics"
	"tripconcierge/internal/services/ratelimit"
	"tripconcierge/internal/services/tripcontext"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

// Turn is one user message plus its entitlement
type Turn struct {
	Message string
	// ScopeID is the quota bucket; empty means the trip ID
	ScopeID string
	// Unlimited comes from the external entitlement check
	Unlimited bool
	IsPro     bool
	Fallback  tripcontext.Fallback
}

// TurnResult is what a caller gets back for a turn
type TurnResult struct {
	Reply       reply.ConciergeReply `json:"reply"`
	Outcome     string               `json:"outcome"`
	Remaining   int                  `json:"remaining"` // -1 = unlimited
	ResetAt     time.Time            `json:"reset_at"`
	ContextTier trip.Tier            `json:"context_tier,omitempty"`
	Truncated   bool                 `json:"truncated"`
}

// Session is one user's conversation about one trip. Turns run strictly
// in submission order.
type Session struct {
	ID     uuid.UUID
	UserID string
	TripID string

	deps  *Deps
	cfg   Config
	queue turnQueue

	mu      sync.RWMutex
	state   State
	history []trip.ChatTurn

	log *logger.Logger
}

func newSession(userID, tripID string, deps *Deps, cfg Config) *Session {
	id := uuid.New()
	return &Session{
		ID:     id,
		UserID: userID,
		TripID: tripID,
		deps:   deps,
		cfg:    cfg,
		state:  StateIdle,
		log: logger.Get().With(
			"component", "concierge_session",
			"session_id", id.String(),
			"user_id", userID,
			"trip_id", tripID,
		),
	}
}

// State returns the current turn state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// History returns a copy of all turns so far
func (s *Session) History() []trip.ChatTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]trip.ChatTurn, len(s.history))
	copy(out, s.history)
	return out
}

// Send runs one turn. The only errors are invalid input and cancellation
// before the usage commit; every other failure becomes a degraded reply
// or a quota notice.
func (s *Session) Send(ctx context.Context, turn Turn) (TurnResult, error) {
	turn.Message = strings.TrimSpace(turn.Message)
	if turn.Message == "" {
		return TurnResult{}, errors.NewValidationError("message", "must not be empty", turn.Message)
	}
	if turn.ScopeID == "" {
		turn.ScopeID = s.TripID
	}

	if err := s.queue.acquire(ctx); err != nil {
		return TurnResult{}, errors.Wrap(err, "waiting for previous turn")
	}
	defer s.queue.release()

	return s.run(ctx, turn)
}

func (s *Session) run(ctx context.Context, turn Turn) (TurnResult, error) {
	start := s.cfg.Now()
	log := s.log.With("scope_id", turn.ScopeID)
	event := turnlog.TurnLog{
		EventID:   uuid.NewString(),
		Timestamp: start,
		UserID:    s.UserID,
		ScopeID:   turn.ScopeID,
		TripID:    s.TripID,
		SessionID: s.ID.String(),
	}

	s.setState(StateCheckingQuota)
	check, err := s.deps.Quota.Check(ctx, s.UserID, turn.ScopeID, turn.Unlimited)
	if err != nil {
		// fail closed: no cost is incurred without a quota verdict
		log.Errorw("Quota check failed", "error", err)
		s.setState(StateIdle)
		return s.finish(ctx, event, TurnResult{Reply: reply.Degraded(), Outcome: turnlog.OutcomeDegraded, Remaining: 0}, start), nil
	}
	if !check.Allowed {
		s.setState(StateBlocked)
		metrics.QuotaBlocks.Inc()
		log.Infow("Turn blocked by quota", "queries_used", check.QueriesUsed, "reset_in", check.ResetIn)
		res := TurnResult{
			Reply:     QuotaNotice(check.Limit, check.ResetAt, start),
			Outcome:   turnlog.OutcomeBlocked,
			Remaining: 0,
			ResetAt:   check.ResetAt,
		}
		event.QueriesUsed = int32(check.QueriesUsed)
		return s.finish(ctx, event, res, start), nil
	}

	s.setState(StateFetchingContext)
	tc := s.deps.Context.Fetch(ctx, tripcontext.FetchRequest{
		TripID:   s.TripID,
		IsPro:    turn.IsPro,
		Fallback: turn.Fallback,
	})

	s.setState(StateBuildingPrompt)
	history := s.History()
	budget := s.deps.Budgeter.BudgetFor(turn.IsPro)
	payload, truncated := s.deps.Budgeter.Build(tc, history, budget)

	var system string
	if s.deps.SystemPrompt != nil {
		if system, err = s.deps.SystemPrompt(tc, turn.IsPro); err != nil {
			log.Warnw("System prompt render failed", "error", err)
		}
	}

	s.setState(StateAwaitingProvider)
	raw := s.deps.Router.Send(ctx, ai.SendRequest{
		System:    system,
		Context:   payload,
		Message:   turn.Message,
		History:   trip.LastTurns(history, s.cfg.HistoryTurns),
		MaxTokens: s.cfg.MaxTokens,
	})

	s.setState(StateNormalizing)
	out := s.deps.Normalizer.Parse(raw)

	if err := ctx.Err(); err != nil {
		s.setState(StateIdle)
		metrics.Turns.WithLabelValues("cancelled").Inc()
		log.Infow("Turn abandoned before commit", "error", err)
		return TurnResult{}, errors.Wrap(err, "turn cancelled")
	}

	res := TurnResult{
		Reply:       out,
		Outcome:     turnlog.OutcomeAnswered,
		ContextTier: tc.Tier,
		Truncated:   truncated,
	}
	if out.IsDegraded {
		res.Outcome = turnlog.OutcomeDegraded
	}

	// the reply is fully formed; the commit must not be interrupted
	commitCtx := context.WithoutCancel(ctx)
	rec, err := s.deps.Quota.Commit(commitCtx, s.UserID, turn.ScopeID, turn.Unlimited)
	var exceeded *ratelimit.QuotaExceededError
	switch {
	case errors.As(err, &exceeded):
		// a concurrent turn took the last query
		s.setState(StateBlocked)
		metrics.QuotaBlocks.Inc()
		res = TurnResult{
			Reply:   QuotaNotice(exceeded.Limit, exceeded.ResetAt, start),
			Outcome: turnlog.OutcomeBlocked,
			ResetAt: exceeded.ResetAt,
		}
		event.QueriesUsed = int32(exceeded.Limit)
		return s.finish(commitCtx, event, res, start), nil
	case err != nil:
		log.Errorw("Usage commit failed", "error", err)
	default:
		res.Remaining = remaining(rec, turn.Unlimited)
		res.ResetAt = rec.ResetAt
		event.QueriesUsed = int32(rec.QueriesUsed)
	}

	now := s.cfg.Now()
	s.mu.Lock()
	s.history = append(s.history,
		trip.NewTurn(trip.RoleUser, turn.Message, start),
		trip.NewTurn(trip.RoleAssistant, out.Content, now),
	)
	s.state = StateIdle
	s.mu.Unlock()

	event.Provider = out.Provider
	event.ContextTier = string(tc.Tier)
	event.PromptChars = uint32(utf8.RuneCountInString(payload))
	event.PromptTruncated = truncated
	event.SourcesCount = uint16(len(out.Sources))
	if out.Usage != nil {
		event.PromptTokens = uint32(out.Usage.PromptTokens)
		event.CompletionTokens = uint32(out.Usage.CompletionTokens)
	}

	return s.finish(commitCtx, event, res, start), nil
}

// finish records metrics and the turn log
func (s *Session) finish(ctx context.Context, event turnlog.TurnLog, res TurnResult, start time.Time) TurnResult {
	elapsed := s.cfg.Now().Sub(start)
	metrics.RecordTurn(res.Outcome, elapsed)

	if s.deps.Turns != nil {
		event.Outcome = res.Outcome
		event.LatencyMs = uint32(elapsed.Milliseconds())
		if err := s.deps.Turns.Record(context.WithoutCancel(ctx), event); err != nil {
			s.log.Warnw("Turn log not recorded", "event_id", event.EventID, "error", err)
		}
	}
	return res
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func remaining(rec usage.Record, unlimited bool) int {
	if unlimited || rec.IsUnlimited() {
		return usage.Unlimited
	}
	return rec.Remaining()
}
