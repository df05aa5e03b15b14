// Package httpclient issues the catalog's GET requests, retrying throttled
// and failing upstream responses with capped exponential backoff.
package httpclient

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// UserAgent is sent with every request.
const UserAgent = "moviefinder/0.1"

// Config holds attempt and timeout configuration.
// MaxAttempts counts the first try, so 1 disables retries.
// A zero Timeout leaves the transport default (no client-side deadline).
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Timeout     time.Duration
}

// DefaultConfig issues each request once with no client-side timeout.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 1,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// retryable lists the statuses worth another attempt.
var retryable = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client is safe for concurrent use and shared by every catalog call.
type Client struct {
	http   *http.Client
	config Config
	logger *slog.Logger
}

// New creates a Client with its own http.Client.
func New(cfg Config, logger *slog.Logger) *Client {
	return NewWithHTTPClient(cfg, &http.Client{Timeout: cfg.Timeout}, logger)
}

// NewWithHTTPClient creates a Client around a caller-provided http.Client.
func NewWithHTTPClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		http:   httpClient,
		config: cfg,
		logger: logger,
	}
}

// Get fetches rawURL with the given Accept header. The last attempt's
// response is returned whatever its status, so callers can report it;
// an error means no response was received at all.
func (c *Client) Get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	var (
		lastErr  error
		waitHint time.Duration
	)
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.pause(ctx, attempt, waitHint, rawURL); err != nil {
				return nil, err
			}
		}

		resp, err := c.once(ctx, rawURL, accept)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr, waitHint = err, 0
		case attempt < c.config.MaxAttempts && retryable[resp.StatusCode]:
			lastErr, waitHint = fmt.Errorf("HTTP %d", resp.StatusCode), retryAfter(resp.Header.Get("Retry-After"), time.Now())
			_ = resp.Body.Close()
		default:
			return resp, nil
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.config.MaxAttempts, lastErr)
}

func (c *Client) once(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", UserAgent)
	return c.http.Do(req)
}

// pause sleeps before the given attempt. The server's Retry-After wins over
// a shorter backoff; both are capped at MaxDelay.
func (c *Client) pause(ctx context.Context, attempt int, hint time.Duration, rawURL string) error {
	delay := max(c.backoff(attempt), hint)
	delay = min(delay, c.config.MaxDelay)

	c.logger.Debug("retrying request",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("url", redact(rawURL)),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoff doubles BaseDelay per retry, capped at MaxDelay, plus up to 20% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.config.BaseDelay << (attempt - 2)
	if delay <= 0 || delay > c.config.MaxDelay {
		delay = c.config.MaxDelay
	}
	jitter := time.Duration(float64(delay) * 0.2 * rand.Float64()) // #nosec G404
	return delay + jitter
}

// retryAfter parses a Retry-After value given in seconds or as an HTTP date.
func retryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// redact drops the query string, which carries the API key.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
