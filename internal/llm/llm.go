// Package llm applies amendments to bill text and answers structured
// questions about bills through the Anthropic Messages API.
package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/legislation-cli/internal/model"
	"github.com/sells-group/legislation-cli/internal/resilience"
	"github.com/sells-group/legislation-cli/pkg/anthropic"
)

// Config configures a Client.
type Config struct {
	Model     string
	MaxTokens int64
	// Retry is the retry policy for every call. AttemptTimeout bounds a
	// single API request.
	Retry resilience.RetryConfig
}

// Client implements the text transformer and annotator over Anthropic.
type Client struct {
	api anthropic.Client
	cfg Config
	now func() time.Time

	mu    sync.Mutex
	usage model.TokenUsage
}

// New creates a Client.
func New(api anthropic.Client, cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5-20250929"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 16000
	}
	return &Client{api: api, cfg: cfg, now: time.Now}
}

// Model returns the model name used for requests.
func (c *Client) Model() string { return c.cfg.Model }

// Usage returns the tokens consumed so far.
func (c *Client) Usage() model.TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

func (c *Client) record(resp *anthropic.MessageResponse, phase string) {
	u := resp.Usage
	u.LogCost(c.cfg.Model, phase)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.Add(model.TokenUsage{
		InputTokens:         int(u.InputTokens),
		OutputTokens:        int(u.OutputTokens),
		CacheCreationTokens: int(u.CacheCreationInputTokens),
		CacheReadTokens:     int(u.CacheReadInputTokens),
		Cost:                u.EstimateCost(c.cfg.Model),
	})
}

// retryConfig returns the policy for one call made for doc.
func (c *Client) retryConfig(collaborator, doc string) resilience.RetryConfig {
	cfg := c.cfg.Retry
	cfg.OnRetry = resilience.RetryLogger(collaborator, doc)
	return cfg
}

// classify marks API errors by status and other request failures as
// transient. Errors that already carry a classification keep it.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var te *resilience.TransientError
	if errors.As(err, &te) || resilience.IsPermanent(err) {
		return err
	}
	if status := anthropic.StatusCode(err); status != 0 {
		if resilience.IsTransientHTTPStatus(status) {
			return resilience.NewTransientError(err, status)
		}
		return resilience.Permanent(err)
	}
	if ctx.Err() != nil {
		return err
	}
	return resilience.NewTransientError(eris.Wrap(err, "llm: request failed"), 0)
}
