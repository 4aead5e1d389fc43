package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider string
	Path     string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Provider, e.Path, e.Status, e.Body)
}

// ClientConfig configures a provider HTTP client.
type ClientConfig struct {
	Name              string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	// Header is set on every request, e.g. an API key header.
	Header http.Header
	// Query is merged into every request, e.g. an apiKey parameter.
	Query url.Values
}

// Client is the shared rate-limited HTTP client used by all provider
// adapters. Calls go through a per-provider circuit breaker so a dead
// upstream fails fast instead of stalling a whole sweep.
type Client struct {
	name       string
	httpClient *http.Client
	baseURL    string
	header     http.Header
	query      url.Values
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a provider client with rate limiting and a breaker.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	rps := float64(cfg.RequestsPerMinute) / 60.0
	logger = logger.With("provider", cfg.Name)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// A 4xx means the upstream is alive; only transport errors and
		// 5xx responses count against the breaker.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Status < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		name:       cfg.Name,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		header:     cfg.Header,
		query:      cfg.Query,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

// Name returns the provider name used in logs and errors.
func (c *Client) Name() string { return c.name }

// GetJSON performs a rate-limited GET and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", c.name, path, err)
	}
	return nil
}

// Get performs a rate-limited GET and returns the raw body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, path, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s %s: %w", c.name, path, err)
		}
		return nil, err
	}
	return res.([]byte), nil
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	q := url.Values{}
	for k, v := range c.query {
		q[k] = v
	}
	for k, v := range params {
		q[k] = v
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.header {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	c.logger.Debug("Provider request", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Provider: c.name, Path: path, Status: resp.StatusCode, Body: truncate(body, 200)}
	}
	return body, nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
