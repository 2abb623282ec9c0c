package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tripconcierge/internal/domain/usage"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

// DefaultDailyLimit applies when Config.DailyLimit is zero
const DefaultDailyLimit = 5

const (
	// each lost swap means another commit landed
	maxCommitAttempts = 20
	commitRetryDelay  = 2 * time.Millisecond
)

// CheckResult is the outcome of a quota check
type CheckResult struct {
	Allowed     bool
	Remaining   int // usage.Unlimited when there is no ceiling
	QueriesUsed int
	Limit       int
	ResetIn     time.Duration
	ResetAt     time.Time
}

// QuotaExceededError is returned by Commit when the window is used up.
// It unwraps to errors.ErrQuotaExceeded.
type QuotaExceededError struct {
	Limit   int
	ResetAt time.Time
	ResetIn time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%v: %d queries per day, resets in %s", errors.ErrQuotaExceeded, e.Limit, e.ResetIn.Round(time.Second))
}

func (e *QuotaExceededError) Unwrap() error {
	return errors.ErrQuotaExceeded
}

// Config for the rate limiter
type Config struct {
	// DailyLimit per (user, scope); usage.Unlimited disables the ceiling
	DailyLimit int
	// Location whose midnight ends a window
	Location *time.Location
	// Now is injectable for tests
	Now func() time.Time
}

// Service decides whether a concierge query may proceed and counts accepted ones
type Service struct {
	store      usage.Store
	locker     Locker
	dailyLimit int
	loc        *time.Location
	now        func() time.Time
	log        *logger.Logger
}

// NewService creates a rate limiter; a nil locker means in-process locking
func NewService(store usage.Store, locker Locker, cfg Config) *Service {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if cfg.DailyLimit == 0 {
		cfg.DailyLimit = DefaultDailyLimit
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:      store,
		locker:     locker,
		dailyLimit: cfg.DailyLimit,
		loc:        cfg.Location,
		now:        cfg.Now,
		log:        logger.Get().With("component", "rate_limiter"),
	}
}

// Check reports whether one more query would be accepted. It does not write.
func (s *Service) Check(ctx context.Context, userID, scopeID string, unlimited bool) (CheckResult, error) {
	if err := validate(userID, scopeID); err != nil {
		return CheckResult{}, err
	}

	now := s.now()
	rec, err := s.current(ctx, userID, scopeID, now)
	if err != nil {
		return CheckResult{}, err
	}
	return s.evaluate(rec, unlimited, now), nil
}

// Commit counts one accepted query. The read-modify-write runs under the
// key's lock and, on stores shared between processes, as a compare-and-swap
// retried against the latest value, so concurrent commits never push
// QueriesUsed past the limit; the loser of such a race gets a
// *QuotaExceededError.
func (s *Service) Commit(ctx context.Context, userID, scopeID string, unlimited bool) (usage.Record, error) {
	if err := validate(userID, scopeID); err != nil {
		return usage.Record{}, err
	}

	key := usage.Key(userID, scopeID)
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return usage.Record{}, errors.Wrapf(err, "lock %s", key)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		now := s.now()
		rec, stored, err := s.load(ctx, userID, scopeID, now)
		if err != nil {
			return usage.Record{}, err
		}

		if res := s.evaluate(rec, unlimited, now); !res.Allowed {
			return rec, &QuotaExceededError{Limit: rec.DailyLimit, ResetAt: res.ResetAt, ResetIn: res.ResetIn}
		}

		rec.QueriesUsed++
		written, err := s.save(ctx, key, stored, rec)
		if err != nil {
			return usage.Record{}, err
		}
		if written {
			s.log.Debugw("Usage committed",
				"user_id", userID,
				"scope_id", scopeID,
				"queries_used", rec.QueriesUsed,
				"daily_limit", rec.DailyLimit,
				"attempt", attempt,
			)
			return rec, nil
		}

		if attempt >= maxCommitAttempts {
			return usage.Record{}, errors.Wrapf(errors.ErrLockNotAcquired, "usage %s kept changing during commit", key)
		}
		select {
		case <-ctx.Done():
			return usage.Record{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * commitRetryDelay):
		}
	}
}

// Reset drops the record so the next query starts a new window
func (s *Service) Reset(ctx context.Context, userID, scopeID string) error {
	if err := validate(userID, scopeID); err != nil {
		return err
	}

	key := usage.Key(userID, scopeID)
	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "lock %s", key)
	}
	defer unlock()

	return s.store.Delete(ctx, key)
}

// current loads the record, replacing a missing, expired or unreadable one
// with a fresh zeroed record (not persisted here).
func (s *Service) current(ctx context.Context, userID, scopeID string, now time.Time) (usage.Record, error) {
	rec, _, err := s.load(ctx, userID, scopeID, now)
	return rec, err
}

// load is current plus the stored bytes it was read from (nil when absent)
func (s *Service) load(ctx context.Context, userID, scopeID string, now time.Time) (usage.Record, []byte, error) {
	key := usage.Key(userID, scopeID)

	data, err := s.store.Get(ctx, key)
	if errors.Is(err, errors.ErrNotFound) {
		return s.fresh(userID, scopeID, now), nil, nil
	}
	if err != nil {
		return usage.Record{}, nil, errors.Wrapf(err, "load %s", key)
	}

	var rec usage.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.Warnw("Discarding unreadable usage record", "key", key, "error", err)
		return s.fresh(userID, scopeID, now), data, nil
	}
	if !rec.Owns(userID, scopeID) {
		s.log.Warnw("Discarding usage record stored under another owner's key",
			"key", key,
			"record_user_id", rec.UserID,
			"record_scope_id", rec.ScopeID,
		)
		return s.fresh(userID, scopeID, now), data, nil
	}

	if rec.Expired(now) {
		return s.fresh(userID, scopeID, now), data, nil
	}
	if rec.QueriesUsed < 0 {
		rec.QueriesUsed = 0
	}
	return rec, data, nil
}

func (s *Service) fresh(userID, scopeID string, now time.Time) usage.Record {
	return usage.Record{
		UserID:     userID,
		ScopeID:    scopeID,
		DailyLimit: s.dailyLimit,
		ResetAt:    usage.NextMidnight(now, s.loc),
		CreatedAt:  now,
	}
}

func (s *Service) evaluate(rec usage.Record, unlimited bool, now time.Time) CheckResult {
	res := CheckResult{
		QueriesUsed: rec.QueriesUsed,
		ResetAt:     rec.ResetAt,
		ResetIn:     rec.ResetAt.Sub(now),
		Limit:       rec.DailyLimit,
	}

	if unlimited || rec.IsUnlimited() {
		res.Allowed = true
		res.Remaining = usage.Unlimited
		res.Limit = usage.Unlimited
		return res
	}

	res.Allowed = rec.QueriesUsed < rec.DailyLimit
	res.Remaining = rec.Remaining()
	return res
}

// save writes rec over stored. On a Swapper the write only lands if the
// key still holds stored; written is false when another process got there first.
func (s *Service) save(ctx context.Context, key string, stored []byte, rec usage.Record) (written bool, err error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, errors.Wrapf(err, "marshal %s", key)
	}

	if sw, ok := s.store.(usage.Swapper); ok {
		written, err = sw.CompareAndSwap(ctx, key, stored, data)
		if err != nil {
			return false, errors.Wrapf(err, "swap %s", key)
		}
		return written, nil
	}

	if err := s.store.Set(ctx, key, data); err != nil {
		return false, errors.Wrapf(err, "save %s", key)
	}
	return true, nil
}

func validate(userID, scopeID string) error {
	if userID == "" {
		return errors.NewValidationError("user_id", "must not be empty", userID)
	}
	if scopeID == "" {
		return errors.NewValidationError("scope_id", "must not be empty", scopeID)
	}
	return nil
}
