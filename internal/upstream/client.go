package upstream

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"price-history/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryWait       = 500 * time.Millisecond
	DefaultRetryMaxWait    = 10 * time.Second
	DefaultRateLimitPerMin = 450
)

// ClientConfig holds configuration for the HTTP price-source client.
type ClientConfig struct {
	// BaseURL is the price API base URL. Required.
	BaseURL string

	// APIKey is sent as the x-api-key header when set.
	APIKey string

	// Timeout is the maximum time to wait for a single HTTP request.
	Timeout time.Duration

	// MaxRetries is the retry count for transient failures.
	MaxRetries int

	// RetryWait and RetryMaxWait bound the backoff between retries.
	RetryWait    time.Duration
	RetryMaxWait time.Duration

	// RateLimitPerMin caps outgoing requests per minute.
	RateLimitPerMin int

	// Logger receives client diagnostics. Defaults to log.Default().
	Logger *log.Logger
}

// Client implements PriceSource and OriginLookup against a REST price API.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

// Compile-time interface checks.
var (
	_ PriceSource  = (*Client)(nil)
	_ OriginLookup = (*Client)(nil)
)

// NewClient creates a new HTTP price-source client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = DefaultRetryWait
	}
	if cfg.RetryMaxWait == 0 {
		cfg.RetryMaxWait = DefaultRetryMaxWait
	}
	if cfg.RateLimitPerMin == 0 {
		cfg.RateLimitPerMin = DefaultRateLimitPerMin
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait)
	if cfg.APIKey != "" {
		httpClient.SetHeader("x-api-key", cfg.APIKey)
	}

	rps := float64(cfg.RateLimitPerMin) / 60.0

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  cfg.Logger,
	}
}

// priceResponse is the wire shape of the historical price endpoint.
// Price is a string to preserve decimal precision.
type priceResponse struct {
	Price string `json:"price"`
}

// originResponse is the wire shape of the token origin endpoint.
type originResponse struct {
	FirstSeenAt int64 `json:"first_seen_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// FetchAt returns the price for (token, network) at the given timestamp.
func (c *Client) FetchAt(ctx context.Context, token, network string, ts int64) (_ decimal.Decimal, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	defer func() {
		observability.RecordUpstreamRequest("price_history", time.Since(start).Seconds(), err)
	}()

	var out priceResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"token":     token,
			"network":   network,
			"timestamp": fmt.Sprintf("%d", ts),
		}).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/price/history")
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		c.logger.Printf("upstream price query failed: status=%d token=%s network=%s ts=%d detail=%q",
			resp.StatusCode(), token, network, ts, apiErr.Error)
		return decimal.Zero, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}

	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed price %q", ErrUnavailable, out.Price)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative price %s", ErrUnavailable, price)
	}

	return price, nil
}

// FirstSeen returns the first-seen timestamp of the token on the network.
func (c *Client) FirstSeen(ctx context.Context, token, network string) (_ int64, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	defer func() {
		observability.RecordUpstreamRequest("token_origin", time.Since(start).Seconds(), err)
	}()

	var out originResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"token":   token,
			"network": network,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/token/origin")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		c.logger.Printf("upstream origin query failed: status=%d token=%s network=%s detail=%q",
			resp.StatusCode(), token, network, apiErr.Error)
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}

	if out.FirstSeenAt <= 0 {
		return 0, fmt.Errorf("%w: malformed first_seen_at %d", ErrUnavailable, out.FirstSeenAt)
	}

	return out.FirstSeenAt, nil
}
