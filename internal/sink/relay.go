package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fibwatch/internal/model"
)

// RelaySink POSTs alert messages to the fibwatch-relay endpoint as
// {"message": "..."}. A non-2xx response or an {"ok":false} body counts
// as a delivery failure; the caller records the outcome on the alert
// log entry.
type RelaySink struct {
	url    string
	client *http.Client
}

// NewRelaySink creates a relay sink for the given base URL
// (e.g. "http://localhost:8787"). The /alert path is appended here.
func NewRelaySink(baseURL string) *RelaySink {
	return &RelaySink{
		url: baseURL + "/alert",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *RelaySink) Deliver(ctx context.Context, ev model.AlertEvent) error {
	body, err := json.Marshal(map[string]string{"message": ev.Message})
	if err != nil {
		return fmt.Errorf("relay: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("relay: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("relay: unexpected status %d", resp.StatusCode)
	}

	// The relay answers 200 with ok:false when it cannot forward, e.g.
	// when its credentials are missing. That is still a failed delivery.
	var ack struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return fmt.Errorf("relay: decode response: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("relay: rejected: %s", ack.Error)
	}
	return nil
}
