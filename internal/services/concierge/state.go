package concierge

import (
	"context"
	"sync"
)

// State of a session's current turn
type State string

const (
	StateIdle             State = "idle"
	StateCheckingQuota    State = "checking_quota"
	StateFetchingContext  State = "fetching_context"
	StateBuildingPrompt   State = "building_prompt"
	StateAwaitingProvider State = "awaiting_provider"
	StateNormalizing      State = "normalizing"
	// StateBlocked ends a turn refused by the quota check
	StateBlocked State = "blocked"
)

// turnQueue admits one turn at a time, in arrival order
type turnQueue struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

func (q *turnQueue) acquire(ctx context.Context) error {
	q.mu.Lock()
	if !q.busy {
		q.busy = true
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		for i, w := range q.waiters {
			if w == ch {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				q.mu.Unlock()
				return ctx.Err()
			}
		}
		q.mu.Unlock()
		// handed over while cancelling: pass it on
		q.release()
		return ctx.Err()
	}
}

// idle reports whether no turn is running or waiting
func (q *turnQueue) idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.busy && len(q.waiters) == 0
}

func (q *turnQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.waiters) > 0 {
		next := q.waiters[0]
		q.waiters = q.waiters[1:]
		close(next)
		return
	}
	q.busy = false
}
