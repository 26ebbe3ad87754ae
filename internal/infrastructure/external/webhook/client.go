// Package webhook implements an outbound webhook client for user-facing
// notifications. The receiving end is whatever the user configured: a chat
// bot relay, a phone push bridge, or a plain logging endpoint.
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

	"github.com/classtrack/attendance-ledger/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the webhook client.
type ClientConfig struct {
	// URL is the webhook endpoint to POST to.
	URL string

	// Secret is sent as a bearer token when non-empty.
	Secret string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:     url,
		Timeout: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client posts JSON envelopes to a configured webhook URL. A circuit breaker
// keeps a dead endpoint from stalling every notification attempt.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger
}

// envelope is the wire format of every webhook delivery.
type envelope struct {
	Event   string      `json:"event"`
	SentAt  time.Time   `json:"sent_at"`
	Payload interface{} `json:"payload"`
}

// NewClient creates a new webhook client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: config.Logger,
	}
	c.breaker = circuitbreaker.WebhookBreaker(func(name string, from, to circuitbreaker.State) {
		c.logger.Warn("circuit state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String())
	})
	return c
}

// Post delivers one event envelope to the webhook endpoint.
func (c *Client) Post(ctx context.Context, event string, payload interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.post(ctx, event, payload)
	})
}

func (c *Client) post(ctx context.Context, event string, payload interface{}) error {
	body, err := json.Marshal(envelope{
		Event:   event,
		SentAt:  time.Now().UTC(),
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.logger.Debug("webhook delivered", "event", event, "status", resp.StatusCode)
	return nil
}

// State returns the circuit breaker state, for health reporting.
func (c *Client) State() circuitbreaker.State {
	return c.breaker.State()
}
