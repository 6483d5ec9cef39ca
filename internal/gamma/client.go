// Package gamma fetches per-slug event snapshots from the Gamma API: event
// metadata, market list, prices, liquidity, and closed flags.
package gamma

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"polysentry/internal/state"
)

const (
	defaultBaseURL = "https://gamma-api.polymarket.com"
	defaultTimeout = 10 * time.Second
	defaultRetries = 3
	retryBaseDelay = 1 * time.Second
)

// Client polls the Gamma API for one event snapshot per tracked slug.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	logger     *zap.Logger
}

// New creates a Client sharing a single *http.Client across all requests.
func New(logger *zap.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultRetries,
		logger:     logger,
	}
}

// FetchEvent fetches the raw snapshot for one slug. A 404 yields ok=false
// with no error: an unknown slug is a permanent condition the caller
// handles (exclude at startup, skip this cycle at runtime), not a fault.
func (c *Client) FetchEvent(ctx context.Context, slug string) (state.RawEventSnapshot, bool) {
	url := fmt.Sprintf("%s/events/slug/%s", c.baseURL, slug)

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			c.logger.Error("gamma request build failed", zap.String("slug", slug), zap.Error(err))
			return state.RawEventSnapshot{}, false
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("gamma request error", zap.String("slug", slug), zap.Error(err))
			sleepOrDone(ctx, retryBaseDelay)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			c.logger.Warn("gamma event not found", zap.String("slug", slug))
			return state.RawEventSnapshot{}, false
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			delay := time.Duration(float64(retryBaseDelay) * math.Pow(2, float64(attempt)))
			c.logger.Warn("gamma rate limited", zap.String("slug", slug), zap.Duration("backoff", delay))
			sleepOrDone(ctx, delay)
			continue
		case resp.StatusCode >= 500:
			resp.Body.Close()
			c.logger.Warn("gamma server error", zap.Int("status", resp.StatusCode), zap.String("slug", slug))
			sleepOrDone(ctx, retryBaseDelay)
			continue
		case resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			c.logger.Error("gamma unexpected status", zap.Int("status", resp.StatusCode), zap.String("slug", slug))
			return state.RawEventSnapshot{}, false
		}

		var raw state.RawEventSnapshot
		err = json.NewDecoder(resp.Body).Decode(&raw)
		resp.Body.Close()
		if err != nil {
			c.logger.Error("gamma decode failed", zap.String("slug", slug), zap.Error(err))
			return state.RawEventSnapshot{}, false
		}
		return raw, true
	}

	c.logger.Error("gamma retries exhausted", zap.String("slug", slug))
	return state.RawEventSnapshot{}, false
}

// ValidateSlugs fetches each configured slug once and returns only the ones
// that resolve, logging and dropping the rest. Called once at startup.
func (c *Client) ValidateSlugs(ctx context.Context, slugs []string) []string {
	var valid []string
	for _, slug := range slugs {
		c.logger.Info("validating slug", zap.String("slug", slug))
		raw, ok := c.FetchEvent(ctx, slug)
		if !ok {
			c.logger.Warn("invalid slug, skipping", zap.String("slug", slug))
			continue
		}
		c.logger.Info("valid slug", zap.String("slug", slug), zap.String("title", raw.Title))
		valid = append(valid, slug)
	}
	return valid
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
