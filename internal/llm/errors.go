package llm

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nugget/moltbot/internal/httpkit"
)

// timeNow is replaced in tests that exercise HTTP-date Retry-After.
var timeNow = time.Now

// TransportError is returned when the provider could not be reached,
// after the transport's own retries were exhausted.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitedError is returned for HTTP 429. It is never retried
// automatically; RetryAfter carries the provider's hint, or zero when
// none was given.
type RateLimitedError struct {
	Provider   string
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited (retry after %s)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Provider)
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds.
func (e *RateLimitedError) RetryAfterSeconds() int {
	return int((e.RetryAfter + time.Second - 1) / time.Second)
}

// UnauthorizedError is returned for HTTP 401. Retrying cannot help.
type UnauthorizedError struct {
	Provider string
	Body     string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s: unauthorized: check the API key", e.Provider)
}

// APIError is any other non-2xx response.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

// checkStatus classifies a provider HTTP response. On a non-2xx status
// it consumes and closes the body and returns the matching typed error.
func checkStatus(provider string, resp *http.Response, now time.Time) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body := httpkit.ReadErrorBody(resp.Body, 4096)
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &RateLimitedError{
			Provider:   provider,
			RetryAfter: httpkit.RetryAfter(resp.Header, now),
			Body:       body,
		}
	case http.StatusUnauthorized:
		return &UnauthorizedError{Provider: provider, Body: body}
	default:
		return &APIError{Provider: provider, StatusCode: resp.StatusCode, Body: body}
	}
}
