package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"tripconcierge/internal/domain/turnlog"
	"tripconcierge/pkg/clickhouse"
	"tripconcierge/pkg/errors"
)

const turnsDDL = `
	CREATE TABLE IF NOT EXISTS concierge_turns (
		event_id          String,
		timestamp         DateTime64(3),
		user_id           String,
		scope_id          String,
		trip_id           String,
		session_id        String,
		outcome           LowCardinality(String),
		provider          LowCardinality(String),
		context_tier      LowCardinality(String),
		prompt_chars      UInt32,
		prompt_truncated  Bool,
		prompt_tokens     UInt32,
		completion_tokens UInt32,
		sources_count     UInt16,
		queries_used      Int32,
		latency_ms        UInt32
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(timestamp)
	ORDER BY (trip_id, timestamp)`

const turnsInsert = `
	INSERT INTO concierge_turns (
		event_id, timestamp, user_id, scope_id, trip_id, session_id,
		outcome, provider, context_tier,
		prompt_chars, prompt_truncated, prompt_tokens, completion_tokens,
		sources_count, queries_used, latency_ms
	)`

// TurnLogRepository buffers turn logs and inserts them in batches.
// It implements turnlog.Sink.
type TurnLogRepository struct {
	conn        driver.Conn
	batchWriter *clickhouse.BatchWriter[turnlog.TurnLog]
}

// NewTurnLogRepository creates the repository; call Start to enable timed flushes
func NewTurnLogRepository(conn driver.Conn, batchSize int, flushInterval time.Duration) *TurnLogRepository {
	repo := &TurnLogRepository{conn: conn}
	repo.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig[turnlog.TurnLog]{
		FlushFunc:    repo.flushBatch,
		TableName:    "concierge_turns",
		MaxBatchSize: batchSize,
		MaxAge:       flushInterval,
	})
	return repo
}

// Migrate creates the table if needed
func (r *TurnLogRepository) Migrate(ctx context.Context) error {
	if err := r.conn.Exec(ctx, turnsDDL); err != nil {
		return errors.Wrap(err, "failed to create concierge_turns")
	}
	return nil
}

// Start begins the background flush loop
func (r *TurnLogRepository) Start(ctx context.Context) {
	r.batchWriter.Start(ctx)
}

// Stop flushes what is left and stops the loop
func (r *TurnLogRepository) Stop(ctx context.Context) error {
	return r.batchWriter.Stop(ctx)
}

// Record buffers one turn log
func (r *TurnLogRepository) Record(ctx context.Context, log turnlog.TurnLog) error {
	return r.batchWriter.Add(ctx, log)
}

// Stats exposes the batch writer counters
func (r *TurnLogRepository) Stats() clickhouse.BatchWriterStats {
	return r.batchWriter.GetStats()
}

func (r *TurnLogRepository) flushBatch(ctx context.Context, batch []turnlog.TurnLog) error {
	stmt, err := r.conn.PrepareBatch(ctx, turnsInsert)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for i := range batch {
		if err := stmt.AppendStruct(&batch[i]); err != nil {
			_ = stmt.Abort()
			return errors.Wrap(err, "failed to append to batch")
		}
	}

	if err := stmt.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}
	return nil
}
