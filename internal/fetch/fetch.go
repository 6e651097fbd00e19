// Package fetch performs the HTTP retrieval of individual samples.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/datasetops/shardfetch/internal/metrics"
)

// userAgent is sent on every request. Some hosts reject requests without a
// browser-like agent.
const userAgent = "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:72.0) Gecko/20100101 Firefox/72.0"

// ErrEmptyBody is returned when a fetch succeeds at the transport level but
// yields no payload bytes.
var ErrEmptyBody = errors.New("fetch: empty response body")

// Options configures the fetch client.
type Options struct {
	// Timeout bounds each individual attempt.
	// Default: 10s
	Timeout time.Duration

	// Retries is the number of additional attempts after the first.
	// Default: 0
	Retries int

	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 100
	MaxIdleConnsPerHost int
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:             10 * time.Second,
		Retries:             0,
		MaxIdleConnsPerHost: 100,
	}
}

// Client fetches sample payloads over HTTP.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new fetch client with the given options.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = DefaultOptions().MaxIdleConnsPerHost
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		client: &http.Client{Transport: transport},
		opts:   opts,
	}
}

// Fetch performs one GET for url and returns the payload bytes. Transport
// failures, non-2xx statuses, and empty bodies are all errors; nothing is
// retained from a failed attempt.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	return body, nil
}

// FetchWithRetry calls Fetch up to Retries+1 times, returning on the first
// attempt that yields content. Attempts are strictly sequential and do not
// distinguish retryable from permanent errors. When all attempts fail, the
// last attempt's error is returned.
func (c *Client) FetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			if m := metrics.Get(); m != nil {
				m.IncRetryAttempts()
			}
		}

		content, err := c.Fetch(ctx, url)
		if err == nil {
			return content, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
