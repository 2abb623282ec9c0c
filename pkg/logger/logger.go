package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tripconcierge/pkg/errors"
)

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// Logger wraps zap.SugaredLogger with optional error tracking
type Logger struct {
	*zap.SugaredLogger
	tracker errors.Tracker
}

// Init initializes the global logger
func Init(level string, env string) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	zl, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	globalMu.Lock()
	globalLogger = &Logger{SugaredLogger: zl.Sugar()}
	globalMu.Unlock()
	return nil
}

// SetErrorTracker makes Error/Errorw on loggers derived afterwards report to tracker
func SetErrorTracker(tracker errors.Tracker) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		globalLogger.tracker = tracker
	}
}

// Get returns the global logger
func Get() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		zl, _ := zap.NewDevelopment()
		globalLogger = &Logger{SugaredLogger: zl.Sugar()}
	}
	return globalLogger
}

// With creates a child logger with additional fields
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		tracker:       l.tracker,
	}
}

// WithContext adds the user/trip scope carried by ctx, if any
func (l *Logger) WithContext(ctx context.Context) *Logger {
	s, ok := errors.ScopeFrom(ctx)
	if !ok {
		return l
	}
	return l.With("user_id", s.UserID, "trip_id", s.TripID)
}

// Error logs an error and reports it to the tracker
func (l *Logger) Error(args ...interface{}) {
	l.SugaredLogger.Error(args...)
	l.track(context.Background(), fmt.Errorf("%s", fmt.Sprint(args...)), nil)
}

// Errorw logs an error with key/value pairs and reports it to the tracker.
// An "error" key holding an error value is reported as-is.
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)

	var err error
	tags := map[string]string{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if e, ok := keysAndValues[i+1].(error); ok && key == "error" {
			err = e
			continue
		}
		if s, ok := keysAndValues[i+1].(string); ok {
			tags[key] = s
		}
	}
	if err == nil {
		err = errors.New(msg)
	} else {
		err = errors.Wrap(err, msg)
	}
	l.track(context.Background(), err, tags)
}

// ErrorWithContext logs err and reports it with the scope carried by ctx
func (l *Logger) ErrorWithContext(ctx context.Context, err error, tags map[string]string) {
	l.WithContext(ctx).SugaredLogger.Error(err)
	l.track(ctx, err, tags)
}

func (l *Logger) track(ctx context.Context, err error, tags map[string]string) {
	if l.tracker == nil {
		return
	}
	_ = l.tracker.CaptureError(ctx, err, tags)
}

// Sync flushes any buffered log entries
func Sync() error {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
