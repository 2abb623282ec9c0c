package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripconcierge/internal/domain/turnlog"
)

type fakeReader struct {
	msgs   chan kafka.Message
	closed bool
	mu     sync.Mutex
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type fakeWriter struct {
	mu      sync.Mutex
	logs    []turnlog.TurnLog
	started bool
	stopped bool
}

func (w *fakeWriter) Start(context.Context) {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
}

func (w *fakeWriter) Stop(context.Context) error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	return nil
}

func (w *fakeWriter) Record(_ context.Context, log turnlog.TurnLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logs = append(w.logs, log)
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.logs)
}

func TestTurnLogConsumer_BuffersValidEvents(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 4)}
	writer := &fakeWriter{}
	c := NewTurnLogConsumer(reader, writer)

	good, err := json.Marshal(turnlog.TurnLog{EventID: "e1", TripID: "trip-1", Outcome: turnlog.OutcomeAnswered})
	require.NoError(t, err)
	reader.msgs <- kafka.Message{Key: []byte("trip-1"), Value: good}
	reader.msgs <- kafka.Message{Key: []byte("trip-1"), Value: []byte("not json")}
	reader.msgs <- kafka.Message{Key: []byte("trip-1"), Value: []byte(`{"trip_id":"trip-1"}`)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		p, f := c.Stats()
		return p+f == 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	processed, failed := c.Stats()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(2), failed)
	assert.Equal(t, 1, writer.count())
	assert.Equal(t, "e1", writer.logs[0].EventID)
	assert.True(t, writer.started)
	assert.True(t, writer.stopped)
	assert.True(t, reader.closed)
}

type brokenReader struct {
	calls atomic.Int32
}

func (r *brokenReader) ReadMessage(context.Context) (kafka.Message, error) {
	r.calls.Add(1)
	return kafka.Message{}, errors.New("brokers unreachable")
}

func (r *brokenReader) Close() error { return nil }

func TestTurnLogConsumer_BacksOffOnReadErrors(t *testing.T) {
	reader := &brokenReader{}
	c := NewTurnLogConsumer(reader, &fakeWriter{})
	c.readBackoff = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Start(ctx))

	// 20ms, 40ms, 80ms pauses fit in the window
	calls := reader.calls.Load()
	assert.GreaterOrEqual(t, calls, int32(2))
	assert.LessOrEqual(t, calls, int32(5))
}
