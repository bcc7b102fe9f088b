package alert

import (
	"fibwatch/internal/model"
)

// LogCap is the maximum number of retained alert events.
const LogCap = 200

// Log keeps the most recent alert events, newest first. Appending past
// the cap evicts the oldest entry. Events are appended regardless of
// delivery outcome; the Delivered flag is filled in when a sink reports.
//
// Designed for single-goroutine usage; no locks needed.
type Log struct {
	cap     int
	entries []*model.AlertEvent
}

// NewLog creates an empty log with the given capacity (<=0 means LogCap).
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = LogCap
	}
	return &Log{cap: capacity}
}

// Append records an event at the front, evicting the oldest entry when
// full. Returns the stored entry so the caller can fill in Delivered once
// the sink outcome is known.
func (l *Log) Append(ev model.AlertEvent) *model.AlertEvent {
	stored := &ev
	l.entries = append([]*model.AlertEvent{stored}, l.entries...)
	if len(l.entries) > l.cap {
		l.entries = l.entries[:l.cap]
	}
	return stored
}

// Len returns the number of retained events.
func (l *Log) Len() int { return len(l.entries) }

// Events returns a snapshot copy, newest first.
func (l *Log) Events() []model.AlertEvent {
	out := make([]model.AlertEvent, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}
