// Package concierge runs concierge turns: quota, context, prompt, provider,
// normalization and usage commit, in that order.
package concierge

import (
	"context"
	"time"

	"tripconcierge/internal/adapters/ai"
	"tripconcierge/internal/domain/reply"
	"tripconcierge/internal/domain/trip"
	"tripconcierge/internal/domain/turnlog"
	"tripconcierge/internal/domain/usage"
	"tripconcierge/internal/services/ratelimit"
	"tripconcierge/internal/services/tripcontext"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

// Quota is the rate limiter as seen by a session
type Quota interface {
	Check(ctx context.Context, userID, scopeID string, unlimited bool) (ratelimit.CheckResult, error)
	Commit(ctx context.Context, userID, scopeID string, unlimited bool) (usage.Record, error)
}

type ContextFetcher interface {
	Fetch(ctx context.Context, req tripcontext.FetchRequest) *trip.Context
}

type Budgeter interface {
	Build(tc *trip.Context, history []trip.ChatTurn, budgetChars int) (string, bool)
	BudgetFor(isPro bool) int
}

type Router interface {
	Send(ctx context.Context, req ai.SendRequest) reply.Raw
}

type Normalizer interface {
	Parse(raw reply.Raw) reply.ConciergeReply
}

// SystemPromptFunc renders the preamble for a trip
type SystemPromptFunc func(tc *trip.Context, isPro bool) (string, error)

// Deps are shared by all sessions
type Deps struct {
	Quota        Quota
	Context      ContextFetcher
	Budgeter     Budgeter
	Router       Router
	Normalizer   Normalizer
	SystemPrompt SystemPromptFunc
	// Turns is optional
	Turns turnlog.Sink
}

type Config struct {
	// HistoryTurns forwarded to the provider alongside the budgeted context
	HistoryTurns int
	MaxTokens    int
	MaxSessions  int
	SessionTTL   time.Duration
	Now          func() time.Time
}

// Service owns the session table
type Service struct {
	deps     Deps
	cfg      Config
	sessions *Manager
	log      *logger.Logger
}

func NewService(deps Deps, cfg Config) (*Service, error) {
	switch {
	case deps.Quota == nil:
		return nil, errors.Wrap(errors.ErrInvalidInput, "concierge: quota is required")
	case deps.Context == nil:
		return nil, errors.Wrap(errors.ErrInvalidInput, "concierge: context fetcher is required")
	case deps.Budgeter == nil:
		return nil, errors.Wrap(errors.ErrInvalidInput, "concierge: budgeter is required")
	case deps.Router == nil:
		return nil, errors.Wrap(errors.ErrInvalidInput, "concierge: router is required")
	case deps.Normalizer == nil:
		return nil, errors.Wrap(errors.ErrInvalidInput, "concierge: normalizer is required")
	}

	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 6
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Service{
		deps: deps,
		cfg:  cfg,
		log:  logger.Get().With("component", "concierge"),
	}
	s.sessions = NewManager(cfg.MaxSessions, cfg.SessionTTL, s.newSession)
	return s, nil
}

// Send runs one turn in the (user, trip) session
func (s *Service) Send(ctx context.Context, userID, tripID string, turn Turn) (TurnResult, error) {
	if userID == "" {
		return TurnResult{}, errors.NewValidationError("user_id", "must not be empty", userID)
	}
	if tripID == "" {
		return TurnResult{}, errors.NewValidationError("trip_id", "must not be empty", tripID)
	}
	return s.sessions.Session(userID, tripID).Send(ctx, turn)
}

// History returns a copy of the session's turns, or nil if there is no session
func (s *Service) History(userID, tripID string) []trip.ChatTurn {
	sess, ok := s.sessions.Lookup(userID, tripID)
	if !ok {
		return nil
	}
	return sess.History()
}

// Sessions exposes the session table
func (s *Service) Sessions() *Manager {
	return s.sessions
}

func (s *Service) newSession(userID, tripID string) *Session {
	return newSession(userID, tripID, &s.deps, s.cfg)
}
