// Package trackclient implements the remote shipment lookup over HTTP.
package trackclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/shiptrack/internal/core"
)

// maxErrorBody is how much of a failed response body is kept in APIError.
const maxErrorBody = 512

// Client posts one lookup per call to the tracking service.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

var _ core.Lookup = (*Client)(nil)

// APIError represents a non-2xx response from the tracking service.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
	retryAfter string // Retry-After header value for 429s
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tracking service: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxRetries sets how many times a 429 or 5xx response is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBaseDelay sets the first backoff delay; later retries double it.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client posting to endpoint, the full lookup URL.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseDelay:  time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Track sends {number, carrier, system_eta} and decodes the service's answer.
// Transport errors, 429s and 5xx responses are retried with backoff up to
// maxRetries times. Returns *APIError for non-2xx responses. Every error is
// prefixed "tracking service" and wraps ctx errors on cancellation.
func (c *Client) Track(ctx context.Context, req core.TrackRequest) (core.TrackResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return core.TrackResponse{}, fmt.Errorf("tracking service: encode request: %w", err)
	}

	var (
		lastErr    error
		lastAPIErr *APIError // nil after a transport error
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoffDelay(attempt, lastAPIErr)
			c.logger.Debug("retrying tracking lookup",
				"number", req.Number,
				"attempt", attempt,
				"error", lastErr,
				"wait", wait,
			)
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return core.TrackResponse{}, fmt.Errorf("tracking service: %w", ctx.Err())
			case <-t.C:
			}
		}

		body, status, header, err := c.post(ctx, payload)
		if err != nil {
			if ctx.Err() != nil {
				return core.TrackResponse{}, fmt.Errorf("tracking service: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("tracking service: %w", err)
			lastAPIErr = nil
			continue
		}

		if status >= 200 && status < 300 {
			var resp core.TrackResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return core.TrackResponse{}, fmt.Errorf("tracking service: malformed response: %w", err)
			}
			return resp, nil
		}

		bodyStr := string(body)
		if len(bodyStr) > maxErrorBody {
			bodyStr = bodyStr[:maxErrorBody]
		}
		apiErr := &APIError{StatusCode: status, Body: bodyStr}

		if status == http.StatusTooManyRequests {
			apiErr.retryAfter = header.Get("Retry-After")
			lastErr, lastAPIErr = apiErr, apiErr
			continue
		}
		if status >= 500 {
			lastErr, lastAPIErr = apiErr, apiErr
			continue
		}
		return core.TrackResponse{}, apiErr
	}

	return core.TrackResponse{}, lastErr
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, int, http.Header, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, resp.Header, nil
}

// backoffDelay returns the wait before a retry: Retry-After for 429s when
// present, else baseDelay doubled per attempt.
func (c *Client) backoffDelay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.StatusCode == http.StatusTooManyRequests && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.baseDelay * time.Duration(1<<(attempt-1))
}
