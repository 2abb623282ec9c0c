// Package turnlog fans finished-turn events out to analytics sinks.
package turnlog

import (
	"context"

	"tripconcierge/internal/adapters/kafka"
	"tripconcierge/internal/domain/turnlog"
	"tripconcierge/internal/metrics"
	"tripconcierge/pkg/errors"
	"tripconcierge/pkg/logger"
)

// Publisher is the slice of the Kafka producer the stream sink needs
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// KafkaSink publishes each turn log to a topic keyed by trip, so one
// trip's turns stay ordered within a partition.
type KafkaSink struct {
	publisher Publisher
	topic     string
}

func NewKafkaSink(publisher Publisher, topic string) *KafkaSink {
	if topic == "" {
		topic = kafka.TopicConciergeTurns
	}
	return &KafkaSink{publisher: publisher, topic: topic}
}

func (s *KafkaSink) Record(ctx context.Context, log turnlog.TurnLog) error {
	return s.publisher.Publish(ctx, s.topic, log.TripID, log)
}

type namedSink struct {
	name string
	sink turnlog.Sink
}

// Recorder implements turnlog.Sink over any number of named sinks.
// A failing sink never stops the others.
type Recorder struct {
	sinks []namedSink
	log   *logger.Logger
}

func NewRecorder() *Recorder {
	return &Recorder{log: logger.Get().With("component", "turnlog")}
}

// Add registers a sink under name; nil sinks are ignored
func (r *Recorder) Add(name string, sink turnlog.Sink) *Recorder {
	if sink != nil {
		r.sinks = append(r.sinks, namedSink{name: name, sink: sink})
	}
	return r
}

// Len returns the number of registered sinks
func (r *Recorder) Len() int {
	return len(r.sinks)
}

// Record delivers log to every sink and joins their errors
func (r *Recorder) Record(ctx context.Context, log turnlog.TurnLog) error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.sink.Record(ctx, log); err != nil {
			metrics.TurnLogsDropped.WithLabelValues(s.name).Inc()
			r.log.Warnw("Turn log sink failed", "sink", s.name, "event_id", log.EventID, "error", err)
			errs = append(errs, errors.Wrapf(err, "sink %s", s.name))
		}
	}
	return errors.Join(errs...)
}
