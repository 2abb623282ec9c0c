package tripcontext

import (
	"context"
	"time"

	"tripconcierge/internal/domain/trip"
	"tripconcierge/internal/metrics"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

// DefaultTierTimeout bounds a single tier attempt
const DefaultTierTimeout = 5 * time.Second

// Source loads a complete trip context for one tier
type Source interface {
	Fetch(ctx context.Context, tripID string) (*trip.Context, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context, tripID string) (*trip.Context, error)

func (f SourceFunc) Fetch(ctx context.Context, tripID string) (*trip.Context, error) {
	return f(ctx, tripID)
}

// Tier is one fallible step of the chain
type Tier struct {
	Name    trip.Tier
	Source  Source
	Timeout time.Duration
}

// Fallback carries the fields the caller already knows about the trip.
// The terminal synthesizer builds the minimal context from them alone.
type Fallback struct {
	Title             string
	Location          string
	AccommodationName string
	Dates             trip.DateRange
}

// FetchRequest describes one context fetch
type FetchRequest struct {
	TripID   string
	IsPro    bool
	Fallback Fallback
}

// Synthesizer is the terminal step: it performs no I/O and cannot fail
type Synthesizer func(req FetchRequest, now time.Time) *trip.Context

// Fetcher tries tiers in order and ends with the synthesizer, so Fetch
// always returns a usable context. Results are never merged across tiers.
type Fetcher struct {
	tiers      []Tier
	synthesize Synthesizer
	now        func() time.Time
	log        *logger.Logger
}

// Option customizes a Fetcher
type Option func(*Fetcher)

// WithSynthesizer replaces the minimal-context synthesizer
func WithSynthesizer(s Synthesizer) Option {
	return func(f *Fetcher) {
		if s != nil {
			f.synthesize = s
		}
	}
}

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFetcher creates a fetcher over tiers (highest completeness first).
// Tiers without a source are skipped.
func NewFetcher(tiers []Tier, opts ...Option) *Fetcher {
	usable := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t.Source == nil {
			continue
		}
		if t.Timeout <= 0 {
			t.Timeout = DefaultTierTimeout
		}
		usable = append(usable, t)
	}

	f := &Fetcher{
		tiers:      usable,
		synthesize: Minimal,
		now:        time.Now,
		log:        logger.Get().With("component", "context_fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Tiers returns the configured tier names, in order, ending with minimal
func (f *Fetcher) Tiers() []trip.Tier {
	names := make([]trip.Tier, 0, len(f.tiers)+1)
	for _, t := range f.tiers {
		names = append(names, t.Name)
	}
	return append(names, trip.TierMinimal)
}

// Fetch returns the context of the first tier that succeeds.
// Pro scopes walk the same chain; pro-ness only changes the prompt budget.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) *trip.Context {
	log := f.log.WithContext(ctx).With("trip_id", req.TripID, "pro", req.IsPro)

	for _, tier := range f.tiers {
		if ctx.Err() != nil {
			log.Debugw("Caller gone, skipping remaining tiers", "tier", tier.Name)
			break
		}

		tc, err := f.attempt(ctx, tier, req.TripID)
		if err == nil {
			return tc
		}

		log.Warnw("Context tier failed, falling through",
			"tier", tier.Name,
			"error", err,
		)
	}

	start := time.Now()
	tc := f.synthesize(req, f.now())
	tc.Tier = trip.TierMinimal
	metrics.RecordContextTier(string(trip.TierMinimal), "success", time.Since(start))
	return tc
}

func (f *Fetcher) attempt(ctx context.Context, tier Tier, tripID string) (*trip.Context, error) {
	tierCtx, cancel := context.WithTimeout(ctx, tier.Timeout)
	defer cancel()

	start := time.Now()
	tc, err := tier.Source.Fetch(tierCtx, tripID)
	took := time.Since(start)

	switch {
	case err != nil && tierCtx.Err() == context.DeadlineExceeded:
		metrics.RecordContextTier(string(tier.Name), "timeout", took)
		return nil, errors.Wrapf(errors.ErrContextTierFailed, "%s timed out after %s", tier.Name, tier.Timeout)
	case err != nil:
		metrics.RecordContextTier(string(tier.Name), "error", took)
		return nil, errors.Wrapf(errors.ErrContextTierFailed, "%s: %v", tier.Name, err)
	case tc == nil:
		metrics.RecordContextTier(string(tier.Name), "error", took)
		return nil, errors.Wrapf(errors.ErrContextTierFailed, "%s returned no context", tier.Name)
	}

	metrics.RecordContextTier(string(tier.Name), "success", took)

	tc.Tier = tier.Name
	if tc.TripID == "" {
		tc.TripID = tripID
	}
	if tc.CurrentDate.IsZero() {
		tc.CurrentDate = f.now()
	}
	return tc, nil
}

// Minimal synthesizes a context from caller-supplied fields with empty collections
func Minimal(req FetchRequest, now time.Time) *trip.Context {
	return &trip.Context{
		TripID:              req.TripID,
		Title:               req.Fallback.Title,
		Location:            req.Fallback.Location,
		Dates:               req.Fallback.Dates,
		Participants:        []trip.Participant{},
		Accommodation:       trip.Accommodation{Name: req.Fallback.AccommodationName},
		CurrentDate:         now,
		UpcomingEvents:      []trip.Event{},
		RecentUpdates:       []trip.Update{},
		ConfirmationNumbers: map[string]string{},
		Tier:                trip.TierMinimal,
	}
}
