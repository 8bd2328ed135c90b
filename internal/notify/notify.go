// Package notify publishes run summaries to Slack and the desktop.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/domain"
)

const (
	slackTimeout  = 10 * time.Second
	slackUsername = "expensify-os"
	desktopTitle  = "expensify-os"
)

// Notifier publishes a run summary.
type Notifier interface {
	Notify(ctx context.Context, s domain.Summary) error
}

var (
	_ Notifier = (*Slack)(nil)
	_ Notifier = (*Desktop)(nil)
)

// SlackConfig configures an incoming-webhook notifier.
type SlackConfig struct {
	WebhookURL string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Slack posts summaries to an incoming webhook.
type Slack struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

// NewSlack creates a Slack notifier.
func NewSlack(cfg SlackConfig) *Slack {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: slackTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Slack{url: cfg.WebhookURL, http: httpClient, logger: logger}
}

type slackMessage struct {
	Text     string `json:"text"`
	Username string `json:"username"`
}

// Notify posts the formatted summary.
func (s *Slack) Notify(ctx context.Context, summary domain.Summary) error {
	return s.Send(ctx, FormatRunSummary(summary))
}

// Send posts raw Slack markdown.
func (s *Slack) Send(ctx context.Context, text string) error {
	if s.url == "" {
		s.logger.Debug("Slack notification skipped, no webhook URL")
		return nil
	}

	payload, err := json.Marshal(slackMessage{Text: text, Username: slackUsername})
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook: status %d", resp.StatusCode)
	}
	s.logger.Info("Slack notification sent")
	return nil
}

// Desktop shows a native notification through beeep.
type Desktop struct {
	show func(title, message string) error
}

// NewDesktop creates a desktop notifier.
func NewDesktop() *Desktop {
	return &Desktop{show: func(title, message string) error {
		return beeep.Notify(title, message, "")
	}}
}

// Notify shows a one-line summary.
func (d *Desktop) Notify(_ context.Context, s domain.Summary) error {
	title := desktopTitle
	if s.Failed() {
		title += ": run failed"
	}
	if err := d.show(title, DesktopMessage(s)); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}
	return nil
}
