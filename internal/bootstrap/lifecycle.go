package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "tripconcierge/internal/adapters/clickhouse"
	"tripconcierge/internal/adapters/kafka"
	redisclient "tripconcierge/internal/adapters/redis"
	"tripconcierge/internal/adapters/sqldb"
	"tripconcierge/internal/api"
	chrepo "tripconcierge/internal/repository/clickhouse"
	"tripconcierge/internal/workers"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 60 * time.Second,
	}
}

// ShutdownTargets lists what Shutdown stops; nil fields are skipped
type ShutdownTargets struct {
	WG              *sync.WaitGroup
	HTTPServer      *api.Server
	WorkerScheduler *workers.Scheduler
	// TurnRepository is set only when it is fed directly rather than by the consumer
	TurnRepository *chrepo.TurnLogRepository
	KafkaProducer  *kafka.Producer
	SQL            *sqldb.Client
	CH             *chclient.Client
	Redis          *redisclient.Client
	ErrorTracker   errors.Tracker
}

// Shutdown performs cleanup in order:
// 1. No new turns accepted
// 2. Workers and the turn log consumer finish
// 3. Buffered turn logs flushed, producer closed
// 4. Logs and errors flushed
// 5. Database connections last
func (l *Lifecycle) Shutdown(t ShutdownTargets, log *logger.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// ========================================
	// Step 1: Stop HTTP Server (5s timeout)
	// ========================================
	log.Info("[1/8] Stopping HTTP server...")
	if t.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := t.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		} else {
			log.Info("✓ HTTP server stopped")
		}
		httpCancel()
	}

	// ========================================
	// Step 2: Stop Background Workers
	// ========================================
	log.Info("[2/8] Stopping background workers...")
	if t.WorkerScheduler != nil {
		if err := t.WorkerScheduler.Stop(); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		} else {
			log.Info("✓ Workers stopped")
		}
	}

	// ========================================
	// Step 3: Wait for Goroutines
	// The consumer closes its reader and flushes ClickHouse on exit
	// ========================================
	log.Info("[3/8] Waiting for goroutines...")
	if t.WG != nil {
		l.waitForGoroutines(t.WG, 15*time.Second, log)
	}

	// ========================================
	// Step 4: Flush Direct Turn Log Writer
	// ========================================
	log.Info("[4/8] Flushing turn logs...")
	if t.TurnRepository != nil {
		flushCtx, flushCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		if err := t.TurnRepository.Stop(flushCtx); err != nil {
			log.Errorw("Turn log flush failed", "error", err)
		} else {
			log.Info("✓ Turn logs flushed")
		}
		flushCancel()
	}

	// ========================================
	// Step 5: Close Kafka Producer
	// ========================================
	log.Info("[5/8] Closing Kafka producer...")
	if t.KafkaProducer != nil {
		if err := t.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	// ========================================
	// Step 6: Flush Error Tracker
	// ========================================
	log.Info("[6/8] Flushing error tracker...")
	l.flushErrorTracker(shutdownCtx, t.ErrorTracker, log)

	// ========================================
	// Step 7: Sync Logs
	// ========================================
	log.Info("[7/8] Syncing logs...")
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	} else {
		log.Info("✓ Logs synced")
	}

	// ========================================
	// Step 8: Close Database Connections
	// LAST - the quota store may still be committing in-flight turns
	// ========================================
	log.Info("[8/8] Closing database connections...")
	l.closeDatabases(t, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Warnw("Error tracker flush failed", "error", err)
	} else {
		log.Info("✓ Error tracker flushed")
	}
}

func (l *Lifecycle) closeDatabases(t ShutdownTargets, log *logger.Logger) {
	var dbErrors []error

	if t.SQL != nil {
		if err := t.SQL.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, t.SQL.Dialect()))
		}
	}

	if t.CH != nil {
		if err := t.CH.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "clickhouse"))
		}
	}

	if t.Redis != nil {
		if err := t.Redis.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "redis"))
		}
	}

	if len(dbErrors) > 0 {
		log.Warnw("Database close errors", "error", errors.Join(dbErrors...))
	} else {
		log.Info("✓ Database connections closed")
	}
}
