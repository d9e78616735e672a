// Package httpclient implements the resilient outbound HTTP client shared
// by every collector: retry with exponential backoff, per-instance rate
// limiting, pluggable authentication, and request/error counters
// (spec.md section 4.3).
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/openfinance/datahub/internal/logging"
	"github.com/openfinance/datahub/internal/metrics"
)

// Request describes one outbound call. Auth, if set, overrides the
// client's configured Authenticator for this call only — used by the
// config-driven collector to resolve per-request secrets at call time.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Params  map[string]string
	Body    []byte
	Timeout time.Duration
	Auth    Authenticator
}

// Response is the normalized result of an outbound call.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Elapsed    time.Duration
	Request    *Request
}

// JSON parses Body as JSON into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Config configures a Client instance.
type Config struct {
	Source    string
	Retry     RetryPolicy
	RateLimit RateLimitPolicy
	Auth      Authenticator
	Timeout   time.Duration
	Logger    *logging.Logger
}

// Client owns one underlying *http.Client, one rate limiter, and request
// counters. Collectors each own a Client instance sized for their upstream.
type Client struct {
	cfg       Config
	http      *http.Client
	limiter   *rateLimiterHandle
	started   atomic.Bool
	requestN  atomic.Int64
	errorN    atomic.Int64
	logger    *logging.Logger
}

type rateLimiterHandle struct {
	wait func(ctx context.Context) error
}

// New constructs a Client. The underlying transport and limiter are created
// lazily by Start so a Client can be configured before use.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDefault("httpclient")
	}
	return &Client{cfg: cfg, logger: logger}
}

// Start initializes the transport and rate limiter. It is idempotent.
func (c *Client) Start() error {
	if c.started.Swap(true) {
		return nil
	}
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c.http = &http.Client{Timeout: timeout}
	limiter := c.cfg.RateLimit.newLimiter()
	c.limiter = &rateLimiterHandle{wait: limiter.Wait}
	return nil
}

// Close releases client resources. The standard library transport needs no
// explicit teardown, but Close exists to match the collector lifecycle
// contract (Start/Stop pairing every long-lived component in this module).
func (c *Client) Close() error {
	c.started.Store(false)
	return nil
}

// RequestCount returns the number of requests attempted so far.
func (c *Client) RequestCount() int64 { return c.requestN.Load() }

// ErrorCount returns the number of requests that ultimately failed after
// retries were exhausted.
func (c *Client) ErrorCount() int64 { return c.errorN.Load() }

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, headers, params map[string]string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: url, Headers: headers, Params: params})
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body []byte) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, URL: url, Headers: headers, Body: body})
}

// Do executes req, retrying on retryable statuses/errors per RetryPolicy and
// honoring the configured rate limit between attempts. It aborts early if
// ctx is cancelled, satisfying the spec's abortability requirement for
// in-flight HTTP during a task timeout (Design Notes (c)).
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if !c.started.Load() {
		if err := c.Start(); err != nil {
			return nil, err
		}
	}

	policy := c.cfg.Retry
	maxRetries := policy.maxRetries()

	var lastErr error
	var lastResp *Response

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(policy.delayFor(attempt - 1)):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.wait(ctx); err != nil {
				return nil, err
			}
		}

		attemptStart := time.Now()
		resp, err := c.attempt(ctx, req)
		elapsed := time.Since(attemptStart)
		c.requestN.Add(1)

		status := "error"
		if resp != nil {
			status = fmt.Sprintf("%d", resp.StatusCode)
		}
		metrics.ObserveHTTPRequest(c.cfg.Source, status, elapsed)

		if err == nil && resp != nil && !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		lastErr = err
		lastResp = resp
		if err != nil {
			c.logger.WithError(err).WithField("attempt", attempt+1).Warn("http request failed")
		}
	}

	c.errorN.Add(1)
	if lastErr != nil {
		return lastResp, lastErr
	}
	return lastResp, fmt.Errorf("httpclient: exhausted %d attempts against %s", maxRetries, req.URL)
}

func (c *Client) attempt(ctx context.Context, r *Request) (*Response, error) {
	var bodyReader io.Reader
	if len(r.Body) > 0 {
		bodyReader = bytes.NewReader(r.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range r.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(r.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if len(r.Params) > 0 {
		q := httpReq.URL.Query()
		for k, v := range r.Params {
			q.Set(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}
	auth := r.Auth
	if auth == nil {
		auth = c.cfg.Auth
	}
	if auth != nil {
		auth.Apply(httpReq)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
		Elapsed:    elapsed,
		Request:    r,
	}, nil
}
