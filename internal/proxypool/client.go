package proxypool

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// Client fetches tile payloads through the pool's rotating proxies with
// the retry behavior in spec §4.3: one initial attempt plus up to
// cfg.TotalRetries retries,
// backing off by cfg.BackoffFactor * 2^(attempt-1) seconds (the same
// formula urllib3's Retry(backoff_factor=...) uses), retrying only on the
// configured status codes or transport errors.
//
// No retry-HTTP library appears anywhere in the example corpus — the
// teacher's own internal/esri/client.go talks to its provider with a bare
// *http.Client and no retry wrapper — so this is hand-rolled stdlib
// net/http, matching the one idiom the corpus actually shows.
type Client struct {
	pool *Pool
	cfg  Config
}

// NewClient builds a retrying client over pool with cfg.
func NewClient(pool *Pool, cfg Config) *Client {
	return &Client{pool: pool, cfg: cfg}
}

// Fetch performs a GET against url, retrying per Config, and returns the
// response body bytes. On exhausting retries it returns an error whose
// text contains "Max retries exceeded", matching the substring the
// controller recognizes (spec §6).
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.TotalRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(c.cfg.BackoffFactor*math.Pow(2, float64(attempt-1))) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		client := c.pool.HTTPClient(c.cfg)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("proxypool: build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if c.cfg.RetryStatuses[resp.StatusCode] {
			resp.Body.Close()
			lastErr = fmt.Errorf("retryable status %d", resp.StatusCode)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("proxypool: fetch %s: status %d: %s", url, resp.StatusCode, body)
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("Max retries exceeded for %s: %w", url, lastErr)
}
