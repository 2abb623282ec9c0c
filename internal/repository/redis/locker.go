package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tripconcierge/internal/adapters/redis"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

// Locker serializes usage read-modify-writes across replicas with SET NX PX.
// Each acquisition carries a random token so a holder whose TTL expired
// cannot release somebody else's lock.
type Locker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	log    *logger.Logger
}

// NewLocker creates a locker; ttl bounds how long a crashed holder blocks
// the key, wait bounds how long Lock retries before giving up.
func NewLocker(client *redis.Client, prefix string, ttl, wait time.Duration) *Locker {
	return &Locker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
		retry:  25 * time.Millisecond,
		log:    logger.Get().With("component", "usage_locker"),
	}
}

// Lock blocks until key is held, wait elapses or ctx is done
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	full := l.prefix + key
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.AcquireLock(ctx, full, token, l.ttl)
		if err != nil {
			return nil, errors.Wrapf(err, "acquire usage lock %s", key)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(errors.ErrLockNotAcquired, "usage lock %s", key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}

	return func() {
		// release must run even when the caller's ctx is already cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.client.ReleaseLock(releaseCtx, full, token); err != nil {
			l.log.Warnw("Failed to release usage lock", "key", key, "error", err)
		}
	}, nil
}
