// Package sink provides alert delivery to external channels (speech
// output, the HTTP relay) behind a narrow interface injected into the
// dashboard, so the alert path never reaches for globals.
package sink

import (
	"context"
	"log"

	"fibwatch/internal/model"
)

// Sink is the interface for all alert delivery backends.
type Sink interface {
	// Deliver sends an alert message. Returns error if delivery fails.
	Deliver(ctx context.Context, ev model.AlertEvent) error
}

// LogSink logs alerts (useful for development and as a default).
type LogSink struct{}

// NewLogSink creates a log-based sink.
func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Deliver(ctx context.Context, ev model.AlertEvent) error {
	log.Printf("[sink] alert: %s", ev.Message)
	return nil
}

// Multi fans one alert out to several sinks. Delivery counts as
// successful when the primary (first) sink succeeds; best-effort sinks
// after it only log their failures.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink. Order matters: the first sink decides
// the recorded delivery outcome.
func NewMulti(sinks ...Sink) *Multi { return &Multi{sinks: sinks} }

func (m *Multi) Deliver(ctx context.Context, ev model.AlertEvent) error {
	var primaryErr error
	for i, s := range m.sinks {
		err := s.Deliver(ctx, ev)
		if err == nil {
			continue
		}
		if i == 0 {
			primaryErr = err
		} else {
			log.Printf("[sink] secondary delivery failed: %v", err)
		}
	}
	return primaryErr
}
