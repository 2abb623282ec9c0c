package concierge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripconcierge/internal/domain/reply"
	"tripconcierge/internal/domain/trip"
	"tripconcierge/internal/domain/usage"
	conciergesvc "tripconcierge/internal/services/concierge"
	"tripconcierge/internal/services/ratelimit"
)

type fakeTurns struct {
	userID string
	tripID string
	turn   conciergesvc.Turn
	result conciergesvc.TurnResult
	err    error
}

func (f *fakeTurns) Send(_ context.Context, userID, tripID string, turn conciergesvc.Turn) (conciergesvc.TurnResult, error) {
	f.userID, f.tripID, f.turn = userID, tripID, turn
	return f.result, f.err
}

func (f *fakeTurns) History(userID, tripID string) []trip.ChatTurn {
	if tripID != "trip-1" {
		return nil
	}
	return []trip.ChatTurn{trip.NewTurn(trip.RoleUser, "hi", time.Now())}
}

type fakeQuota struct {
	res ratelimit.CheckResult
	err error
}

func (f fakeQuota) Check(context.Context, string, string, bool) (ratelimit.CheckResult, error) {
	return f.res, f.err
}

func router(h *Handler) chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string, user bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user {
		req.Header.Set(UserHeader, "u1")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleSend(t *testing.T) {
	turns := &fakeTurns{result: conciergesvc.TurnResult{
		Reply:     reply.ConciergeReply{Kind: reply.KindAnswer, Content: "Try the LX Factory", Sources: []reply.Source{}},
		Outcome:   "answered",
		Remaining: 4,
	}}
	r := router(NewHandler(turns, fakeQuota{}))

	rec := do(t, r, http.MethodPost, "/trips/trip-1/concierge/messages",
		`{"message":"Where to go?","is_pro":true,"trip":{"title":"Lisbon","start_date":"2026-07-01T00:00:00Z"}}`, true)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", turns.userID)
	assert.Equal(t, "trip-1", turns.tripID)
	assert.True(t, turns.turn.IsPro)
	assert.Equal(t, "Lisbon", turns.turn.Fallback.Title)
	assert.Equal(t, 2026, turns.turn.Fallback.Dates.Start.Year())

	var res conciergesvc.TurnResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "Try the LX Factory", res.Reply.Content)
	assert.Equal(t, 4, res.Remaining)
}

func TestHandleSend_Errors(t *testing.T) {
	r := router(NewHandler(&fakeTurns{err: context.Canceled}, fakeQuota{}))

	rec := do(t, r, http.MethodPost, "/trips/trip-1/concierge/messages", `{"message":"hi"}`, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/trips/trip-1/concierge/messages", `{"msg":"hi"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/trips/trip-1/concierge/messages", `{"message":"hi"}`, true)
	assert.Equal(t, 499, rec.Code)
}

func TestHandleHistory(t *testing.T) {
	r := router(NewHandler(&fakeTurns{}, fakeQuota{}))

	rec := do(t, r, http.MethodGet, "/trips/trip-1/concierge/history", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"content":"hi"`)

	rec = do(t, r, http.MethodGet, "/trips/trip-2/concierge/history", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"turns":[]`)
}

func TestHandleUsage(t *testing.T) {
	resetAt := time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)
	q := fakeQuota{res: ratelimit.CheckResult{Allowed: true, Remaining: 3, QueriesUsed: 2, Limit: 5, ResetAt: resetAt, ResetIn: 14 * time.Hour}}
	r := router(NewHandler(&fakeTurns{}, q))

	rec := do(t, r, http.MethodGet, "/usage?scope_id=trip-1", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var out usageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, 3, out.Remaining)
	assert.Equal(t, int64(14*3600), out.ResetInSec)

	rec = do(t, r, http.MethodGet, "/usage?scope_id=trip-1&unlimited=maybe", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUsage_Unlimited(t *testing.T) {
	q := fakeQuota{res: ratelimit.CheckResult{Allowed: true, Remaining: usage.Unlimited, Limit: 5}}
	r := router(NewHandler(&fakeTurns{}, q))

	rec := do(t, r, http.MethodGet, "/usage?scope_id=trip-1&unlimited=true", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"limit":-1`)
}
