package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"chimera/internal/domain"
	"chimera/internal/logger"
	"chimera/internal/retry"
)

// BreakerOptions trips the breaker once at least MinRequests calls in an
// Interval failed at FailureRatio or worse
type BreakerOptions struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerOptions opens after 5 calls at 60% transient failures and
// probes again after 30s
func DefaultBreakerOptions() BreakerOptions {
	return BreakerOptions{
		MaxRequests:  2,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

// Options configures a Client
type Options struct {
	Name      string
	BaseURL   string
	Headers   map[string]string
	RateLimit float64 // requests per second, <= 0 for unlimited
	Timeout   time.Duration
	Retry     retry.Policy
	Breaker   BreakerOptions
}

// Client is a JSON-over-HTTP client with a request rate limit, a circuit
// breaker and bounded retries of transient failures
type Client struct {
	log     *logger.Logger
	name    string
	baseURL string
	headers map[string]string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	retry   retry.Policy
}

// StatusError is a non-2xx response that is not worth retrying
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// New builds a client. A zero Breaker gets DefaultBreakerOptions.
func New(opts Options, log *logger.Logger) *Client {
	limit := rate.Inf
	burst := 1
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
		burst = max(1, int(opts.RateLimit))
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	bo := opts.Breaker
	if bo == (BreakerOptions{}) {
		bo = DefaultBreakerOptions()
	}

	c := &Client{
		log:     log.With("service", opts.Name),
		name:    opts.Name,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		headers: opts.Headers,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		retry:   opts.Retry,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: bo.MaxRequests,
		Interval:    bo.Interval,
		Timeout:     bo.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bo.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bo.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// Only transport trouble counts against the upstream; a 404 is an answer
		IsSuccessful: func(err error) bool {
			return err == nil || !domain.IsTransient(err)
		},
	})
	return c
}

// Do sends body as JSON to path and decodes the response into out. out
// may be nil. Transient failures (network, 408, 429, 5xx, open breaker)
// come back as *domain.TransientSourceError after the retries are spent.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	op := c.name + " " + method + " " + path
	raw, err := retry.Do(ctx, c.retry, c.log, op, func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		res, err := c.breaker.Execute(func() (any, error) {
			return c.once(ctx, op, method, path, body)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.TransientSourceError{Op: op, Err: err}
		}
		if err != nil {
			return nil, err
		}
		return res.([]byte), nil
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) once(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.TransientSourceError{Op: op, Err: err}
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, &domain.TransientSourceError{Op: op, Err: readErr}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case IsRetryableStatus(resp.StatusCode):
		if wait := retryAfter(resp); wait > 0 {
			c.log.Debug("upstream asked to back off", "op", op, "retry_after", wait.String())
		}
		return nil, &domain.TransientSourceError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)},
		}
	default:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
}

// IsRetryableStatus reports whether a response status is worth retrying
func IsRetryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func retryAfter(resp *http.Response) time.Duration {
	ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	secs, err := strconv.Atoi(ra)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
