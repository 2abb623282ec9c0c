package consumers

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"tripconcierge/internal/domain/turnlog"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

// MessageReader is the part of the Kafka consumer this consumer uses
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// TurnLogWriter is the batched ClickHouse repository
type TurnLogWriter interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	Record(ctx context.Context, log turnlog.TurnLog) error
}

// TurnLogConsumer moves turn events from Kafka into ClickHouse in batches,
// keeping request handling independent of warehouse availability.
type TurnLogConsumer struct {
	reader MessageReader
	writer TurnLogWriter
	log    *logger.Logger

	// readBackoff is the first pause after a failed read; it doubles up to maxReadBackoff
	readBackoff time.Duration

	processed atomic.Int64
	failed    atomic.Int64
}

const (
	defaultReadBackoff = 500 * time.Millisecond
	maxReadBackoff     = 30 * time.Second
)

func NewTurnLogConsumer(reader MessageReader, writer TurnLogWriter) *TurnLogConsumer {
	return &TurnLogConsumer{
		reader:      reader,
		writer:      writer,
		readBackoff: defaultReadBackoff,
		log:         logger.Get().With("component", "turnlog_consumer"),
	}
}

// Start consumes until ctx is cancelled. It owns the writer's flush loop
// and closes the reader on exit.
func (c *TurnLogConsumer) Start(ctx context.Context) error {
	c.log.Info("Starting turn log consumer")
	c.writer.Start(ctx)

	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Warnw("Failed to close turn log reader", "error", err)
		}
	}()

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.writer.Stop(stopCtx); err != nil {
			c.log.Errorw("Failed to stop turn log writer", "error", err)
		}
		c.LogStats()
	}()

	backoff := c.readBackoff
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Turn log consumer stopping")
				return nil
			}
			c.log.Warnw("Failed to read turn event", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				c.log.Info("Turn log consumer stopping")
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxReadBackoff)
			continue
		}
		backoff = c.readBackoff

		// finish the current message even if shutdown has begun
		processCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.handle(processCtx, msg); err != nil {
			c.failed.Add(1)
			c.log.Warnw("Failed to handle turn event", "offset", msg.Offset, "error", err)
		} else {
			c.processed.Add(1)
		}
		cancel()

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *TurnLogConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var event turnlog.TurnLog
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return errors.Wrap(err, "unmarshal turn event")
	}
	if event.EventID == "" {
		return errors.NewValidationError("event_id", "must not be empty", string(msg.Key))
	}

	if err := c.writer.Record(ctx, event); err != nil {
		return errors.Wrap(err, "buffer turn log")
	}
	return nil
}

// Stats returns processed and failed message counts
func (c *TurnLogConsumer) Stats() (processed, failed int64) {
	return c.processed.Load(), c.failed.Load()
}

func (c *TurnLogConsumer) LogStats() {
	processed, failed := c.Stats()
	c.log.Infow("Turn log consumer stats", "processed", processed, "failed", failed)
}
