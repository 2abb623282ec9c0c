package concierge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ReusesSessions(t *testing.T) {
	created := 0
	m := NewManager(10, time.Hour, func(userID, tripID string) *Session {
		created++
		return newSession(userID, tripID, &Deps{}, Config{Now: time.Now})
	})

	a := m.Session("u1", "trip-1")
	b := m.Session("u1", "trip-1")
	c := m.Session("u1", "trip-2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, m.Len())

	_, ok := m.Lookup("u2", "trip-1")
	assert.False(t, ok)
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m := NewManager(2, time.Hour, func(userID, tripID string) *Session {
		return newSession(userID, tripID, &Deps{}, Config{Now: time.Now})
	})

	m.Session("u1", "t1")
	m.Session("u2", "t1")
	m.Session("u1", "t1")
	m.Session("u3", "t1")

	_, ok := m.Lookup("u2", "t1")
	assert.False(t, ok)
	_, ok = m.Lookup("u1", "t1")
	assert.True(t, ok)
}

func TestManager_BusySessionSurvivesEviction(t *testing.T) {
	m := NewManager(1, time.Hour, func(userID, tripID string) *Session {
		return newSession(userID, tripID, &Deps{}, Config{Now: time.Now})
	})

	busy := m.Session("u1", "t1")
	require.NoError(t, busy.queue.acquire(context.Background()))

	// evicts u1 while its turn is still running
	m.Session("u2", "t1")

	got, ok := m.Lookup("u1", "t1")
	require.True(t, ok)
	assert.Same(t, busy, got)
	assert.Same(t, busy, m.Session("u1", "t1"))

	busy.queue.release()

	// idle now, so a second eviction drops it
	m.Session("u3", "t1")
	_, ok = m.Lookup("u1", "t1")
	assert.False(t, ok)
	assert.NotSame(t, busy, m.Session("u1", "t1"))
	assert.Equal(t, 1, m.Len())
}

func TestTurnQueue_CancelledWaiterLeavesQueue(t *testing.T) {
	var q turnQueue
	require.NoError(t, q.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, q.acquire(ctx))
	assert.Empty(t, q.waiters)

	q.release()
	require.NoError(t, q.acquire(context.Background()))
	q.release()
	assert.False(t, q.busy)
}

func TestQuotaNotice(t *testing.T) {
	now := time.Date(2026, 6, 1, 23, 0, 0, 0, time.UTC)
	r := QuotaNotice(5, now.Add(time.Hour), now)

	assert.Contains(t, r.Content, "1 hour from now")
	assert.NotNil(t, r.Sources)
	assert.False(t, r.IsDegraded)
	assert.Equal(t, time.Hour, r.Quota.ResetIn)
}
