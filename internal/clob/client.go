// Package clob fetches per-token mid-price and order-book snapshots from
// the central-limit-order-book API and folds them into the shape the
// market-state store expects.
package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"polysentry/internal/state"
)

const (
	defaultBaseURL   = "https://clob.polymarket.com"
	defaultTimeout   = 10 * time.Second
	defaultRetries   = 3
	retryBaseDelay   = 1 * time.Second
)

// Client polls the CLOB API for one or more tokens per cycle.
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

type midpointResponse struct {
	Mid string `json:"mid"`
}

type priceResponse struct {
	Price string `json:"price"`
}

type bookLevel struct {
	Size string `json:"size"`
}

type bookResponse struct {
	Bids []bookLevel `json:"bids"`
	Asks []bookLevel `json:"asks"`
}

// FetchMidpoint returns a token's current midpoint price. A 404 or exhausted
// retries yields ok=false rather than an error the caller must unwind.
func (c *Client) FetchMidpoint(ctx context.Context, tokenID string) (float64, bool) {
	var out midpointResponse
	if !c.getWithRetry(ctx, "/midpoint", tokenID, &out) {
		return 0, false
	}
	v, err := strconv.ParseFloat(out.Mid, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FetchPrice returns a token's current last-traded price from the /price
// endpoint. This is a cross-check against FetchMidpoint, never an input to
// any detector.
func (c *Client) FetchPrice(ctx context.Context, tokenID string) (float64, bool) {
	var out priceResponse
	if !c.getWithRetry(ctx, "/price", tokenID, &out) {
		return 0, false
	}
	v, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FetchBookTotalSize returns the sum of the size field across every bid and
// ask in a token's order book. Invalid or missing sizes count as zero.
func (c *Client) FetchBookTotalSize(ctx context.Context, tokenID string) (float64, bool) {
	var out bookResponse
	if !c.getWithRetry(ctx, "/book", tokenID, &out) {
		return 0, false
	}

	total := 0.0
	for _, lvl := range out.Bids {
		if v, err := strconv.ParseFloat(lvl.Size, 64); err == nil {
			total += v
		}
	}
	for _, lvl := range out.Asks {
		if v, err := strconv.ParseFloat(lvl.Size, 64); err == nil {
			total += v
		}
	}
	return total, true
}

// FetchAll polls midpoint and book size for every tokenID, returning the
// observation set the state store expects. A token whose midpoint and book
// fetches both fail is simply absent from the result; a partial result (one
// of the two present) is kept, with the failed component marked absent.
func (c *Client) FetchAll(ctx context.Context, tokenIDs []string) map[string]state.TokenObservation {
	out := make(map[string]state.TokenObservation, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		var obs state.TokenObservation
		obs.Price, obs.PriceOK = c.FetchMidpoint(ctx, tokenID)
		obs.TotalBookSize, obs.TotalBookSizeOK = c.FetchBookTotalSize(ctx, tokenID)
		if !obs.PriceOK && !obs.TotalBookSizeOK {
			continue
		}
		out[tokenID] = obs
	}
	return out
}

// getWithRetry issues a GET against endpoint with token_id=tokenID, retrying
// on 429 with exponential backoff and on timeout/5xx/transport error with a
// flat delay. 404 and an exhausted retry budget both yield false.
func (c *Client) getWithRetry(ctx context.Context, endpoint, tokenID string, out interface{}) bool {
	u := fmt.Sprintf("%s%s?%s", c.baseURL, endpoint, url.Values{"token_id": {tokenID}}.Encode())

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			c.logger.Error("clob request build failed", zap.String("token_id", tokenID), zap.Error(err))
			return false
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("clob request error", zap.String("endpoint", endpoint), zap.String("token_id", tokenID), zap.Error(err))
			sleepOrDone(ctx, retryBaseDelay)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			c.logger.Warn("clob token not found", zap.String("endpoint", endpoint), zap.String("token_id", tokenID))
			return false
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			delay := time.Duration(float64(retryBaseDelay) * math.Pow(2, float64(attempt)))
			c.logger.Warn("clob rate limited", zap.String("token_id", tokenID), zap.Duration("backoff", delay))
			sleepOrDone(ctx, delay)
			continue
		case resp.StatusCode >= 500:
			resp.Body.Close()
			c.logger.Warn("clob server error", zap.Int("status", resp.StatusCode), zap.String("token_id", tokenID))
			sleepOrDone(ctx, retryBaseDelay)
			continue
		case resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			c.logger.Error("clob unexpected status", zap.Int("status", resp.StatusCode), zap.String("token_id", tokenID))
			return false
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			c.logger.Error("clob decode failed", zap.String("token_id", tokenID), zap.Error(err))
			return false
		}
		return true
	}

	c.logger.Error("clob retries exhausted", zap.String("endpoint", endpoint), zap.String("token_id", tokenID))
	return false
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
