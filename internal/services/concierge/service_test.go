package concierge

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripconcierge/internal/adapters/ai"
	"tripconcierge/internal/domain/reply"
	"tripconcierge/internal/domain/trip"
	"tripconcierge/internal/domain/turnlog"
	"tripconcierge/internal/domain/usage"
	"tripconcierge/internal/repository/memory"
	"tripconcierge/internal/services/normalizer"
	"tripconcierge/internal/services/prompt"
	"tripconcierge/internal/services/ratelimit"
	"tripconcierge/internal/services/tripcontext"
	"tripconcierge/pkg/errors"
)

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type countingFetcher struct {
	calls atomic.Int32
}

func (f *countingFetcher) Fetch(_ context.Context, req tripcontext.FetchRequest) *trip.Context {
	f.calls.Add(1)
	return &trip.Context{TripID: req.TripID, Title: "Lisbon long weekend", Location: "Lisbon", Tier: trip.TierBasic}
}

type fakeRouter struct {
	mu       sync.Mutex
	requests []ai.SendRequest
	calls    atomic.Int32
	raw      reply.Raw
	entered  chan struct{}
	gate     chan struct{}
}

func (r *fakeRouter) Send(ctx context.Context, req ai.SendRequest) reply.Raw {
	r.calls.Add(1)
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	if r.entered != nil {
		r.entered <- struct{}{}
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return reply.Raw{OK: false, Error: ctx.Err().Error()}
		}
	}
	if r.raw.Provider != "" || r.raw.Error != "" {
		return r.raw
	}
	return reply.Raw{Provider: "claude", OK: true, Text: "Answer to: " + req.Message, Usage: &reply.TokenUsage{PromptTokens: 50, CompletionTokens: 5, TotalTokens: 55}}
}

func (r *fakeRouter) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, req.Message)
	}
	return out
}

type captureSink struct {
	mu   sync.Mutex
	logs []turnlog.TurnLog
}

func (c *captureSink) Record(_ context.Context, l turnlog.TurnLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, l)
	return nil
}

func (c *captureSink) last() turnlog.TurnLog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logs[len(c.logs)-1]
}

type harness struct {
	svc     *Service
	quota   *ratelimit.Service
	fetcher *countingFetcher
	router  *fakeRouter
	sink    *captureSink
}

func newHarness(t *testing.T, store usage.Store) *harness {
	t.Helper()
	if store == nil {
		store = memory.NewUsageStore()
	}
	now := func() time.Time { return testNow }
	h := &harness{
		quota:   ratelimit.NewService(store, nil, ratelimit.Config{DailyLimit: 5, Location: time.UTC, Now: now}),
		fetcher: &countingFetcher{},
		router:  &fakeRouter{},
		sink:    &captureSink{},
	}

	svc, err := NewService(Deps{
		Quota:        h.quota,
		Context:      h.fetcher,
		Budgeter:     prompt.NewBudgeter(4000, 12000, 6),
		Router:       h.router,
		Normalizer:   normalizer.New(),
		SystemPrompt: prompt.SystemPrompt,
		Turns:        h.sink,
	}, Config{HistoryTurns: 6, MaxTokens: 512, Now: now})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func TestSend_AnsweredTurn(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.svc.Send(context.Background(), "u1", "trip-1", Turn{Message: "Where to eat?"})
	require.NoError(t, err)

	assert.Equal(t, turnlog.OutcomeAnswered, res.Outcome)
	assert.Equal(t, reply.KindAnswer, res.Reply.Kind)
	assert.Equal(t, "Answer to: Where to eat?", res.Reply.Content)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, trip.TierBasic, res.ContextTier)

	req := h.router.requests[0]
	assert.Contains(t, req.System, "Lisbon long weekend")
	assert.Contains(t, req.Context, "Location: Lisbon")
	assert.Equal(t, 512, req.MaxTokens)

	history := h.svc.History("u1", "trip-1")
	require.Len(t, history, 2)
	assert.Equal(t, trip.RoleUser, history[0].Role)
	assert.Equal(t, trip.RoleAssistant, history[1].Role)

	sess, ok := h.svc.Sessions().Lookup("u1", "trip-1")
	require.True(t, ok)
	assert.Equal(t, StateIdle, sess.State())

	logged := h.sink.last()
	assert.Equal(t, turnlog.OutcomeAnswered, logged.Outcome)
	assert.Equal(t, "claude", logged.Provider)
	assert.Equal(t, int32(1), logged.QueriesUsed)
	assert.Equal(t, uint32(50), logged.PromptTokens)
}

func TestSend_SixthTurnReturnsQuotaNotice(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := h.quota.Commit(ctx, "u1", "trip-1", false)
		require.NoError(t, err)
	}

	res, err := h.svc.Send(ctx, "u1", "trip-1", Turn{Message: "One more?"})
	require.NoError(t, err)

	assert.Equal(t, turnlog.OutcomeBlocked, res.Outcome)
	assert.Equal(t, reply.KindQuotaNotice, res.Reply.Kind)
	assert.Contains(t, res.Reply.Content, "14 hours from now")
	assert.Contains(t, res.Reply.Content, "all 5")
	require.NotNil(t, res.Reply.Quota)
	assert.Equal(t, 14*time.Hour, res.Reply.Quota.ResetIn)

	assert.Equal(t, int32(0), h.fetcher.calls.Load())
	assert.Equal(t, int32(0), h.router.calls.Load())

	sess, _ := h.svc.Sessions().Lookup("u1", "trip-1")
	assert.Equal(t, StateBlocked, sess.State())
	assert.Empty(t, sess.History())
	assert.Equal(t, turnlog.OutcomeBlocked, h.sink.last().Outcome)
}

func TestSend_DegradedReplyStillCommits(t *testing.T) {
	h := newHarness(t, nil)
	h.router.raw = reply.Raw{OK: false, Error: "no provider answered"}

	res, err := h.svc.Send(context.Background(), "u1", "trip-1", Turn{Message: "Hello?"})
	require.NoError(t, err)

	assert.True(t, res.Reply.IsDegraded)
	assert.Equal(t, turnlog.OutcomeDegraded, res.Outcome)
	assert.Equal(t, 4, res.Remaining)
}

func TestSend_CancelledBeforeCommitDoesNotCountQuota(t *testing.T) {
	h := newHarness(t, nil)
	h.router.gate = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := h.svc.Send(ctx, "u1", "trip-1", Turn{Message: "Hello?"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	check, err := h.quota.Check(context.Background(), "u1", "trip-1", false)
	require.NoError(t, err)
	assert.Equal(t, 5, check.Remaining)
	assert.Empty(t, h.svc.History("u1", "trip-1"))
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.ErrUnavailable }
func (failingStore) Set(context.Context, string, []byte) error   { return errors.ErrUnavailable }
func (failingStore) Delete(context.Context, string) error        { return errors.ErrUnavailable }

func TestSend_QuotaStoreDownFailsClosed(t *testing.T) {
	h := newHarness(t, failingStore{})

	res, err := h.svc.Send(context.Background(), "u1", "trip-1", Turn{Message: "Hello?"})
	require.NoError(t, err)

	assert.True(t, res.Reply.IsDegraded)
	assert.Equal(t, int32(0), h.fetcher.calls.Load())
	assert.Equal(t, int32(0), h.router.calls.Load())
}

func TestSend_UnlimitedNeverBlocks(t *testing.T) {
	h := newHarness(t, nil)

	for i := 0; i < 8; i++ {
		res, err := h.svc.Send(context.Background(), "u1", "trip-1", Turn{Message: "again", Unlimited: true})
		require.NoError(t, err)
		assert.Equal(t, turnlog.OutcomeAnswered, res.Outcome)
		assert.Equal(t, usage.Unlimited, res.Remaining)
	}
}

func TestSend_ForwardsRecentHistory(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		_, err := h.svc.Send(ctx, "u1", "trip-1", Turn{Message: msg, Unlimited: true})
		require.NoError(t, err)
	}

	last := h.router.requests[4]
	require.Len(t, last.History, 6)
	assert.Equal(t, "two", last.History[0].Content)
	assert.Contains(t, last.Context, "## Recent conversation")
	assert.Contains(t, last.Context, "User: four")
	assert.NotContains(t, last.Context, "User: one")
}

func TestSend_ScopeDefaultsToTrip(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.Send(ctx, "u1", "trip-1", Turn{Message: "hi"})
	require.NoError(t, err)
	_, err = h.svc.Send(ctx, "u1", "trip-1", Turn{Message: "hi", ScopeID: "event-9"})
	require.NoError(t, err)

	tripCheck, err := h.quota.Check(ctx, "u1", "trip-1", false)
	require.NoError(t, err)
	eventCheck, err := h.quota.Check(ctx, "u1", "event-9", false)
	require.NoError(t, err)
	assert.Equal(t, 4, tripCheck.Remaining)
	assert.Equal(t, 4, eventCheck.Remaining)
}

func TestSend_TurnsRunInSubmissionOrder(t *testing.T) {
	h := newHarness(t, nil)
	h.router.entered = make(chan struct{}, 3)
	h.router.gate = make(chan struct{})

	sess := h.svc.Sessions().Session("u1", "trip-1")
	waiters := func() int {
		sess.queue.mu.Lock()
		defer sess.queue.mu.Unlock()
		return len(sess.queue.waiters)
	}

	var wg sync.WaitGroup
	send := func(msg string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Send(context.Background(), "u1", "trip-1", Turn{Message: msg, Unlimited: true})
			assert.NoError(t, err)
		}()
	}

	send("first")
	<-h.router.entered
	send("second")
	require.Eventually(t, func() bool { return waiters() == 1 }, time.Second, 5*time.Millisecond)
	send("third")
	require.Eventually(t, func() bool { return waiters() == 2 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, StateAwaitingProvider, sess.State())
	close(h.router.gate)
	wg.Wait()

	assert.Equal(t, []string{"first", "second", "third"}, h.router.messages())
	history := sess.History()
	require.Len(t, history, 6)
	assert.Equal(t, "first", history[0].Content)
	assert.Equal(t, "third", history[4].Content)
}

func TestSend_InvalidInput(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.Send(context.Background(), "u1", "trip-1", Turn{Message: "   "})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	_, err = h.svc.Send(context.Background(), "", "trip-1", Turn{Message: "hi"})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))

	assert.Equal(t, int32(0), h.router.calls.Load())
}

func TestNewService_RequiresDeps(t *testing.T) {
	_, err := NewService(Deps{}, Config{})
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestSend_TinyBudgetIsReportedAsTruncated(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.deps.Budgeter = prompt.NewBudgeter(5, 5, 6)

	res, err := h.svc.Send(context.Background(), "u1", "trip-1", Turn{Message: "Any plans?"})
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.Len(t, []rune(h.router.requests[0].Context), 5)
	assert.True(t, h.sink.last().PromptTruncated)
}
