package helpdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/rumi-monitor/internal/clock"
	"github.com/spec-kit/rumi-monitor/internal/governor"
)

const (
	defaultTimeout    = 20 * time.Second
	defaultRetryDelay = 2 * time.Second
)

// Config holds the values needed to talk to the helpdesk.
type Config struct {
	BaseURL string
	// Email and APIToken are sent as basic auth "email/token:apitoken".
	Email    string
	APIToken string
	// CSRFToken is the statically configured anti-forgery token, if any.
	CSRFToken     string
	AgentPagePath string
	Timeout       time.Duration
	RetryDelay    time.Duration
	MaxViewPages  int
	HTTPClient    *http.Client
}

// RequestOptions alters how a single call is governed.
type RequestOptions struct {
	// CycleAccounted leaves breaker accounting to the caller. The monitor
	// sets it for view fetches so a cycle counts at most once.
	CycleAccounted bool
	// Mutating calls carry the anti-forgery token.
	Mutating bool
}

// Client performs authenticated, governed calls against the helpdesk REST API.
type Client struct {
	baseURL      string
	authHeader   string
	httpClient   *http.Client
	retryDelay   time.Duration
	maxViewPages int
	governor     *governor.Governor
	tokens       *TokenResolver
	clock        clock.Clock
	logger       *zap.Logger
}

// NewClient wires a client to its governor.
func NewClient(cfg Config, gov *governor.Governor, clk clock.Clock, logger *zap.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	retryDelay := cfg.RetryDelay
	if retryDelay < 0 {
		retryDelay = 0
	} else if retryDelay == 0 {
		retryDelay = defaultRetryDelay
	}
	maxPages := cfg.MaxViewPages
	if maxPages <= 0 {
		maxPages = 10
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   httpClient,
		retryDelay:   retryDelay,
		maxViewPages: maxPages,
		governor:     gov,
		clock:        clk,
		logger:       logger,
	}
	if cfg.Email != "" && cfg.APIToken != "" {
		c.authHeader = basicAuth(cfg.Email+"/token", cfg.APIToken)
	}
	c.tokens = NewTokenResolver(logger, DefaultTokenStrategies(c, cfg)...)
	return c
}

// Governor exposes the client's governor to the monitor.
func (c *Client) Governor() *governor.Governor {
	return c.governor
}

// Request performs one governed call and returns the raw JSON body.
func (c *Client) Request(ctx context.Context, method, path string, body any, opts RequestOptions) (json.RawMessage, error) {
	if err := c.acquire(ctx, path); err != nil {
		return nil, err
	}

	var csrf string
	if opts.Mutating {
		csrf = c.tokens.Resolve(ctx)
		if csrf == "" {
			return nil, &AuthTokenMissingError{Tried: c.tokens.Names()}
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure(governor.FailureServer, opts)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure(governor.FailureServer, opts)
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	c.logger.Debug("helpdesk call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", c.clock.Now().Sub(start)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.recordFailure(governor.FailureRateLimited, opts)
		return nil, &RateLimitError{Path: path, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.recordFailure(governor.ClassifyStatus(resp.StatusCode), opts)
		if opts.Mutating && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnprocessableEntity) {
			c.tokens.Invalidate()
		}
		return nil, newHTTPError(path, resp.StatusCode, truncate(string(raw), 512))
	}

	if !opts.CycleAccounted {
		c.governor.RecordSuccess()
	}
	return raw, nil
}

// RequestWithRetry makes at most one more attempt after RetryDelay. Rate
// limits, an open circuit and a missing token are returned unchanged.
func (c *Client) RequestWithRetry(ctx context.Context, method, path string, body any, opts RequestOptions) (json.RawMessage, error) {
	raw, err := c.Request(ctx, method, path, body, opts)
	if err == nil || !retryable(err) {
		return raw, err
	}

	c.logger.Warn("helpdesk call failed, retrying once",
		zap.String("method", method),
		zap.String("path", path),
		zap.Duration("delay", c.retryDelay),
		zap.Error(err))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.clock.After(c.retryDelay):
	}
	return c.Request(ctx, method, path, body, opts)
}

// acquire blocks until the governor grants a call slot. Every waiter
// re-checks after the window rolls over, so a burst of waiters cannot
// overshoot the budget together.
func (c *Client) acquire(ctx context.Context, path string) error {
	for {
		if c.governor.Tripped() {
			return &CircuitOpenError{ConsecutiveErrors: c.governor.ConsecutiveErrors()}
		}
		if c.governor.Acquire() {
			return nil
		}
		wait := c.governor.WaitDuration()
		c.logger.Warn("request budget exhausted, waiting for window",
			zap.String("path", path),
			zap.Duration("wait", wait),
			zap.Int("budget", c.governor.Budget()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(wait):
		}
	}
}

func (c *Client) recordFailure(kind governor.FailureKind, opts RequestOptions) {
	if opts.CycleAccounted {
		return
	}
	if c.governor.RecordFailure(kind) {
		c.logger.Error("circuit breaker tripped",
			zap.Int("consecutive_errors", c.governor.ConsecutiveErrors()),
			zap.Int("threshold", c.governor.Threshold()))
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
