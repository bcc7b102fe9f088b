package sink

import (
	"context"
	"log"
	"os/exec"
	"sync"

	"fibwatch/internal/model"
)

// SpeechSink speaks alert messages through an external text-to-speech
// command (e.g. "espeak" or macOS "say"). Starting a new utterance
// cancels any in-flight one. Speech is non-critical: every failure is
// swallowed after a log line, and Deliver always reports success so it
// never taints the recorded delivery outcome.
type SpeechSink struct {
	command string
	enabled bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSpeechSink creates a speech sink running the given command with the
// message as its argument. An empty command disables speech.
func NewSpeechSink(command string, enabled bool) *SpeechSink {
	return &SpeechSink{command: command, enabled: enabled && command != ""}
}

// SetEnabled toggles speech output at runtime.
func (s *SpeechSink) SetEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = v && s.command != ""
}

func (s *SpeechSink) Deliver(ctx context.Context, ev model.AlertEvent) error {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return nil
	}
	// Cancel any utterance still playing.
	if s.cancel != nil {
		s.cancel()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	cmd := exec.CommandContext(runCtx, s.command, ev.Message)
	s.mu.Unlock()

	go func() {
		defer cancel()
		if err := cmd.Run(); err != nil && runCtx.Err() == nil {
			log.Printf("[speech] tts failed: %v", err)
		}
	}()
	return nil
}
