// Package inventory talks to the spreadsheet-backed inventory service that
// owns stock levels. The service authenticates every call with a static
// token and deduplicates stock deltas by idempotency key; this client does
// neither — retry and dedup both live upstream.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"clubshop/pkg/logger"
	"clubshop/pkg/shop"
)

// DeltaItem is one stock mutation; Qty is negative for sales.
type DeltaItem struct {
	Sku   string `json:"sku"`
	Size  string `json:"size"`
	Color string `json:"color,omitempty"`
	Qty   int    `json:"qty"`
}

// Config carries the inventory-service settings. Cache is optional; when
// set, stock reads are served from it for CacheTTL.
type Config struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Cache      *redis.Client
	CacheTTL   time.Duration
	Log        *logger.Logger
}

// Client is the HTTP client for the inventory service.
type Client struct {
	base     string
	token    string
	hc       *http.Client
	cache    *redis.Client
	cacheTTL time.Duration
	log      *logger.Logger
}

// New builds an inventory client.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &Client{
		base:     cfg.BaseURL,
		token:    cfg.Token,
		hc:       hc,
		cache:    cfg.Cache,
		cacheTTL: ttl,
		log:      cfg.Log,
	}
}

func (c *Client) target(action string, extra url.Values) string {
	v := url.Values{}
	v.Set("action", action)
	v.Set("token", c.token)
	for k, vals := range extra {
		for _, val := range vals {
			v.Add(k, val)
		}
	}
	return c.base + "?" + v.Encode()
}

// Stock returns the full catalog listing, served from the cache when
// fresh. Cache population happens after the body is already in hand and
// never delays the caller.
func (c *Client) Stock(ctx context.Context) ([]byte, int, error) {
	tgt := c.target("stock", nil)
	cacheKey := "stock:" + tgt

	if c.cache != nil {
		if b, err := c.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			return b, http.StatusOK, nil
		}
	}

	body, status, err := c.get(ctx, tgt)
	if err != nil {
		return nil, 0, err
	}
	if c.cache != nil && status < 300 {
		go func(b []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := c.cache.Set(ctx, cacheKey, b, c.cacheTTL).Err(); err != nil && c.log != nil {
				c.log.Warn(ctx, "stock cache put failed", "error", err)
			}
		}(body)
	}
	return body, status, nil
}

// SKU looks up one product by sku.
func (c *Client) SKU(ctx context.Context, sku string) ([]byte, int, error) {
	return c.get(ctx, c.target("sku", url.Values{"sku": {sku}}))
}

// StockDelta sends one request carrying every line delta under the given
// idempotency key and returns the refreshed catalog. Any non-success
// outcome is a stock-commit failure — the one error upstream callers are
// expected to retry.
func (c *Client) StockDelta(ctx context.Context, items []DeltaItem, idempotencyKey string) ([]byte, error) {
	payload, err := json.Marshal(struct {
		Items          []DeltaItem `json:"items"`
		IdempotencyKey string      `json:"idempotencyKey,omitempty"`
	}{Items: items, IdempotencyKey: idempotencyKey})
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", shop.ErrStockCommitFailed, err)
	}
	body, status, err := c.ForwardDelta(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shop.ErrStockCommitFailed, err)
	}
	if status >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", shop.ErrStockCommitFailed, status, body)
	}
	return body, nil
}

// ForwardDelta proxies a raw stock-delta body unchanged, for webhook-less
// direct settlement. The caller mirrors the upstream status.
func (c *Client) ForwardDelta(ctx context.Context, body []byte) ([]byte, int, error) {
	if len(body) == 0 {
		body = []byte("{}")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target("stockDelta", nil), bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("inventory: stock delta: %w", err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("inventory: read response: %w", err)
	}
	return out, resp.StatusCode, nil
}

func (c *Client) get(ctx context.Context, tgt string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tgt, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("inventory: fetch: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("inventory: read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
