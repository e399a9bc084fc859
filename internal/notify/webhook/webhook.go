// Package webhook posts budget alerts as JSON to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"budgetledger/internal/core"
)

const userAgent = "budgetledger-alerts/1.0"

type Config struct {
	URL        string
	MaxRetries int
	RetryWait  time.Duration
	MaxWait    time.Duration
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Payload is the JSON document posted for every alert.
type Payload struct {
	Event         string    `json:"event"`
	Kind          string    `json:"kind"`
	OwnerID       string    `json:"ownerId"`
	TransactionID string    `json:"transactionId,omitempty"`
	Category      string    `json:"category"`
	Spent         string    `json:"spent"`
	Limit         string    `json:"limit"`
	Body          string    `json:"body"`
	RaisedAt      time.Time `json:"raisedAt"`
}

type Client struct {
	url    string
	client *retryablehttp.Client
}

func New(cfg Config) *Client {
	if cfg.RetryWait == 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 5 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.RetryWait
	rc.RetryWaitMax = cfg.MaxWait
	rc.Logger = &retryLogger{logger: cfg.Logger}
	// Return the last response instead of a generic "giving up" error so
	// the status code reaches the caller.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{url: cfg.URL, client: rc}
}

func (c *Client) Name() string { return "webhook" }

func (c *Client) Deliver(ctx context.Context, alert core.Alert) error {
	body, err := json.Marshal(Payload{
		Event:         "budget.alert",
		Kind:          string(alert.Kind),
		OwnerID:       alert.OwnerID,
		TransactionID: alert.TransactionID,
		Category:      alert.Category,
		Spent:         alert.Spent.String(),
		Limit:         alert.Limit.String(),
		Body:          alert.Body,
		RaisedAt:      alert.RaisedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}

	slog.InfoContext(ctx, "Alert webhook delivered",
		"owner_id", alert.OwnerID,
		"alert_kind", alert.Kind,
		"status_code", resp.StatusCode)
	return nil
}

// retryLogger adapts slog to retryablehttp.LeveledLogger
type retryLogger struct {
	logger *slog.Logger
}

func (l *retryLogger) log() *slog.Logger {
	if l.logger == nil {
		return slog.Default()
	}
	return l.logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log().Error(msg, keysAndValues...)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log().Info(msg, keysAndValues...)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log().Debug(msg, keysAndValues...)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log().Warn(msg, keysAndValues...)
}
