// Package relay implements the alert relay: a small HTTP server that
// forwards alert messages to a Telegram channel on behalf of the chart
// engine, so the bot token never lives in the browser-facing process.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Telegram forwards messages via the Telegram Bot API.
type Telegram struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// NewTelegram creates a Telegram forwarder.
// botToken: Bot API token from @BotFather
// chatID: target chat/group/channel id
func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  "https://api.telegram.org",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Configured reports whether both credentials are present.
func (t *Telegram) Configured() bool { return t.botToken != "" && t.chatID != "" }

// SendMessage posts a message to the configured chat, using MarkdownV2
// with a bold alert prefix.
func (t *Telegram) SendMessage(ctx context.Context, text string) error {
	body, _ := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       "🔔 *fibwatch*\n" + escapeMarkdown(text),
		"parse_mode": "MarkdownV2",
	})

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
