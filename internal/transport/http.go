package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMaxSizeMB is the default maximum response size if not configured.
const DefaultMaxSizeMB = 10

// HTTPTransport fetches images over HTTP(S).
type HTTPTransport struct {
	client       *http.Client
	maxSizeBytes int64
	limiter      *rate.Limiter
	userAgent    string
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithLimiter throttles outgoing requests. A nil limiter disables throttling.
func WithLimiter(l *rate.Limiter) Option {
	return func(t *HTTPTransport) {
		t.limiter = l
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(t *HTTPTransport) {
		t.userAgent = ua
	}
}

// WithClient replaces the underlying http.Client.
func WithClient(c *http.Client) Option {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// NewHTTPTransport creates an HTTPTransport with the given per-request timeout.
// maxSizeMB bounds the response body (0 uses DefaultMaxSizeMB).
func NewHTTPTransport(timeout time.Duration, maxSizeMB int, opts ...Option) *HTTPTransport {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSizeMB
	}
	t := &HTTPTransport{
		client: &http.Client{
			Timeout: timeout,
		},
		maxSizeBytes: int64(maxSizeMB) * 1024 * 1024,
		userAgent:    "pixfetch/1.0",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Fetch retrieves the body at rawURL.
// Returns:
//   - ErrInvalidURL if rawURL is not an absolute http(s) URL
//   - ErrNotFound on a 404 response
//   - ErrTimeout if the request times out
//   - ErrTooLarge if the body exceeds the size limit
//   - ErrFetchFailed for any other error
func (t *HTTPTransport) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetchFailed, ctx.Err())
		}
		if isTimeoutError(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if resp.ContentLength > t.maxSizeBytes {
			return nil, fmt.Errorf("%w: content length %d exceeds maximum %d bytes",
				ErrTooLarge, resp.ContentLength, t.maxSizeBytes)
		}

		// Read one byte past the limit to detect oversized bodies without Content-Length.
		data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxSizeBytes+1))
		if err != nil {
			if isTimeoutError(err) {
				return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			return nil, fmt.Errorf("%w: failed to read response body: %v", ErrFetchFailed, err)
		}
		if int64(len(data)) > t.maxSizeBytes {
			return nil, fmt.Errorf("%w: response body exceeds maximum %d bytes", ErrTooLarge, t.maxSizeBytes)
		}
		return data, nil

	case http.StatusNotFound, http.StatusGone:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)

	default:
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrFetchFailed, resp.StatusCode)
	}
}

func isTimeoutError(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
