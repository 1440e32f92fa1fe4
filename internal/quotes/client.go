// Package quotes fetches market prices from the upstream finance API.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/market-tracker/internal/circuitbreaker"
	"github.com/market-tracker/internal/config"
	apperrors "github.com/market-tracker/internal/errors"
	"github.com/market-tracker/internal/logging"
	"github.com/market-tracker/internal/ratelimit"
	"github.com/market-tracker/internal/retry"
	"github.com/market-tracker/internal/storage"
)

const providerName = "finance-api"

// httpStatusError carries a non-2xx upstream status through the retry loop
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d - %s", e.status, e.body)
}

// retryable reports whether the status is worth another attempt
func (e *httpStatusError) retryable() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

// Client performs guarded GETs against the quote provider. Every call runs
// through a circuit breaker, an outbound rate limiter and exponential-backoff
// retries. Successful bodies are mirrored into Redis so a dead upstream can
// still serve the last known payload.
type Client struct {
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	limiter    *rate.Limiter
	budget     *ratelimit.Budget
	retryCfg   *retry.Config
	cache      *storage.RedisCache
	cacheTTL   time.Duration
	timeout    time.Duration
}

// NewClient creates a quote client from configuration. cache may be nil to
// disable body mirroring.
func NewClient(cfg *config.QuotesConfig, cache *storage.RedisCache) *Client {
	breakerCfg := circuitbreaker.DefaultConfig(providerName)
	if cfg.BreakerFailures > 0 {
		breakerCfg.FailureThreshold = cfg.BreakerFailures
	}
	if cfg.BreakerTimeout > 0 {
		breakerCfg.Timeout = cfg.BreakerTimeout
	}

	retryCfg := retry.DefaultConfig()
	if cfg.RetryAttempts > 0 {
		retryCfg.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		retryCfg.InitialDelay = cfg.RetryBaseDelay
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 4
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuitbreaker.NewCircuitBreaker(breakerCfg),
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		retryCfg:   retryCfg,
		cache:      cache,
		cacheTTL:   cfg.CacheTTL,
		timeout:    timeout,
	}
}

// Breaker exposes the circuit breaker for stats endpoints.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// SetBudget attaches a cross-process request budget. The local token bucket
// still applies; the budget additionally caps combined consumption when
// several processes share the provider quota.
func (c *Client) SetBudget(b *ratelimit.Budget) {
	c.budget = b
}

// GetJSON fetches url and decodes the response body into out. On upstream
// failure the last cached body for the url is used when available.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	body, err := c.GetBody(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.NewProviderError(providerName, fmt.Errorf("malformed response: %w", err))
	}
	return nil
}

// GetBody fetches url and returns the raw response body.
func (c *Client) GetBody(ctx context.Context, url string) ([]byte, error) {
	logger := logging.FromContext(ctx)

	var body []byte
	err := c.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
			b, err := c.doRequest(ctx, url)
			if err != nil {
				var statusErr *httpStatusError
				if errors.As(err, &statusErr) && !statusErr.retryable() {
					// Client errors are final, no point retrying
					return retry.Permanent(err)
				}
				return err
			}
			body = b
			return nil
		})
	})

	if err == nil {
		c.storeCached(ctx, url, body)
		return body, nil
	}

	// Upstream unreachable or breaker open: last cached body keeps us alive
	if cached, ok := c.loadCached(ctx, url); ok {
		logger.WithField("url", url).WithError(err).Warn("Serving cached quote payload after fetch failure")
		return cached, nil
	}

	return nil, c.categorize(ctx, err)
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if c.budget != nil {
		if err := c.budget.Wait(ctx, 1, ratelimit.PriorityFromContext(ctx)); err != nil {
			return nil, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "market-tracker/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{status: resp.StatusCode, body: truncateBody(body)}
	}

	return body, nil
}

func (c *Client) storeCached(ctx context.Context, url string, body []byte) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, storage.URLCacheKey(url), string(body), c.cacheTTL); err != nil {
		logging.FromContext(ctx).WithError(err).Debug("Failed to cache quote payload")
	}
}

func (c *Client) loadCached(ctx context.Context, url string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, storage.URLCacheKey(url))
	if err != nil {
		return nil, false
	}
	return []byte(raw), true
}

func (c *Client) categorize(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return apperrors.NewCircuitOpenError(providerName)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewProviderTimeoutError(providerName)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return apperrors.NewProviderError(providerName, err)
	}
}

func truncateBody(body []byte) string {
	const maxLen = 200
	if len(body) <= maxLen {
		return string(body)
	}
	return string(body[:maxLen]) + "..."
}
