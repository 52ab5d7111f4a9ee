// Package slack provides a webhook notifier for sync run updates and a
// Web API client for reading the news channel.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Level classifies a notification.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelSuccess Level = "SUCCESS"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

func (l Level) emoji() string {
	switch l {
	case LevelInfo:
		return "ℹ️"
	case LevelSuccess:
		return "✅"
	case LevelWarning:
		return "⚠️"
	case LevelError:
		return "❌"
	default:
		return "📌"
	}
}

// Notifier posts run updates to a Slack incoming webhook.
type Notifier interface {
	// Notify posts a message at the given level.
	Notify(ctx context.Context, level Level, message string) error
}

// NotifierOption configures the webhook notifier.
type NotifierOption func(*webhookNotifier)

// WithNotifierHTTPClient sets a custom HTTP client.
func WithNotifierHTTPClient(hc *http.Client) NotifierOption {
	return func(n *webhookNotifier) {
		n.http = hc
	}
}

// WithClock overrides the timestamp source (for testing).
func WithClock(now func() time.Time) NotifierOption {
	return func(n *webhookNotifier) {
		n.now = now
	}
}

type webhookNotifier struct {
	webhookURL string
	http       *http.Client
	now        func() time.Time
}

// NewNotifier creates a webhook notifier. An empty webhook URL yields a
// notifier that logs and drops every message, so callers never need to
// branch on whether Slack is configured.
func NewNotifier(webhookURL string, opts ...NotifierOption) Notifier {
	if webhookURL == "" {
		return noopNotifier{}
	}
	n := &webhookNotifier{
		webhookURL: webhookURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type webhookPayload struct {
	Text string `json:"text"`
}

func (n *webhookNotifier) Notify(ctx context.Context, level Level, message string) error {
	payload := webhookPayload{
		Text: fmt.Sprintf("%s *%s* `%s`\n%s",
			level.emoji(), level, n.now().Format("2006-01-02 15:04:05"), message),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "slack: marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return eris.Wrap(err, "slack: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "slack: post webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return eris.Errorf("slack: webhook status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(_ context.Context, level Level, message string) error {
	zap.L().Debug("slack webhook not configured, dropping notification",
		zap.String("level", string(level)),
		zap.String("message", message),
	)
	return nil
}
