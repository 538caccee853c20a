package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-harvester/internal/observability"
)

// DefaultUserAgent is sent when HTTPClientConfig.UserAgent is empty.
const DefaultUserAgent = "pubmed-harvester/1.0"

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Timeout is the request timeout for HTTP operations.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Zero means unlimited.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the number of retry attempts on transport errors,
	// 429 and 5xx responses. Zero disables retries.
	MaxRetries int

	// RetryDelay is the delay between retries when the server sends no Retry-After.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// Logger receives retry diagnostics. The zero value discards them.
	Logger zerolog.Logger

	// Metrics records response classes and retries when set.
	Metrics *observability.Metrics
}

// HTTPClient wraps http.Client with an optional rate cap and opt-in retries.
// It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
	logger      zerolog.Logger
}

// NewHTTPClient creates a new HTTP client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &HTTPClient{
		client:      &http.Client{Timeout: cfg.Timeout},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
		logger:      observability.WithComponent(cfg.Logger, "transport"),
	}
}

// Do sends req, waiting for the rate limiter before every attempt. When
// MaxRetries > 0, transport errors and 429/5xx responses are retried,
// honoring Retry-After. With the default configuration a request is sent
// exactly once and the caller sees whatever status came back.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		retriesLeft := attempt < c.config.MaxRetries
		resp, err := c.client.Do(req)

		var delay time.Duration
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			c.recordResponse(0)
			if !retriesLeft {
				return nil, fmt.Errorf("request failed: %w", err)
			}
			delay = c.config.RetryDelay
			c.logger.Debug().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying after transport error")

		case retriesLeft && shouldRetry(resp.StatusCode):
			c.recordResponse(resp.StatusCode)
			delay = c.retryDelay(resp)
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			c.logger.Debug().Int("status", resp.StatusCode).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying after server response")

		default:
			c.recordResponse(resp.StatusCode)
			return resp, nil
		}

		if c.config.Metrics != nil {
			c.config.Metrics.RecordHTTPRetry()
		}
		if err := c.waitForRetry(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (c *HTTPClient) recordResponse(status int) {
	if c.config.Metrics != nil {
		c.config.Metrics.RecordHTTPResponse(status)
	}
}

func shouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= 500 && statusCode < 600)
}

// retryDelay honors Retry-After (seconds or HTTP date), falling back to RetryDelay.
func (c *HTTPClient) retryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RetryDelay
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return c.config.RetryDelay
}

func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
