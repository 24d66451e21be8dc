package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/moltbot/internal/httpkit"
)

// LevelTrace logs full request and response payloads. It has the value
// of config.LevelTrace so handlers built by config.NewLogger print it as
// TRACE; llm does not import config.
const LevelTrace = slog.Level(-8)

// Adapter translates Items to one provider's wire format and back.
// Implementations are stateless apart from their configuration and
// safe for concurrent use.
type Adapter interface {
	// Name identifies the provider family, e.g. "ollama".
	Name() string

	// Model is the model used when a request leaves Model empty.
	Model() string

	// CreateResponse performs a complete request.
	CreateResponse(ctx context.Context, req *Request) (*Response, error)

	// CreateResponseStream returns a lazy event sequence. The HTTP call
	// is issued when the sequence is first pulled. A non-nil error ends
	// the sequence.
	CreateResponseStream(ctx context.Context, req *Request) iter.Seq2[StreamEvent, error]
}

// ProviderConfig selects and configures an adapter.
type ProviderConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string

	// Options are merged over the Ollama defaults.
	Options map[string]any
	NumCtx  int

	Routing Routing

	// HTTPClient overrides the default retrying client.
	HTTPClient *http.Client
}

// Routing carries OpenRouter provider preferences and attribution.
type Routing struct {
	Only           []string
	Order          []string
	Ignore         []string
	AllowFallbacks *bool
	Referer        string
	Title          string
}

// Transport retry policy: 3 attempts in total, backoff doubling from
// one second.
const (
	retryCount = 2
	retryBase  = time.Second
)

// newProviderHTTPClient builds the HTTP client used for model calls.
// Generation can take minutes before headers arrive, so there is no
// global timeout; callers bound requests with ctx.
func newProviderHTTPClient(logger *slog.Logger) *http.Client {
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 300 * time.Second
	return httpkit.NewClient(
		httpkit.WithTimeout(0),
		httpkit.WithTransport(t),
		httpkit.WithRetry(retryCount, retryBase),
		httpkit.WithLogger(logger),
	)
}

// postJSON sends payload to url and returns the open response on 2xx.
// Failures are classified into TransportError, RateLimitedError,
// UnauthorizedError, or APIError.
func postJSON(ctx context.Context, hc *http.Client, provider, url string, headers map[string]string, payload any, logger *slog.Logger) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	logger.Log(ctx, LevelTrace, "request payload", "url", url, "json", string(body))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Provider: provider, Err: err}
	}

	if err := checkStatus(provider, resp, timeNow()); err != nil {
		logStatusError(logger, err)
		return nil, err
	}
	return resp, nil
}

func logStatusError(logger *slog.Logger, err error) {
	var rl *RateLimitedError
	var apiErr *APIError
	switch {
	case errors.As(err, &rl):
		logger.Warn("rate limited", "retry_after", rl.RetryAfter)
	case errors.As(err, &apiErr):
		logger.Error("API error", "status", apiErr.StatusCode, "body", apiErr.Body)
	default:
		logger.Error("request rejected", "error", err)
	}
}

// Collect drains a stream and returns the response carried by its
// completed event.
func Collect(events iter.Seq2[StreamEvent, error]) (*Response, error) {
	var final *Response
	for ev, err := range events {
		if err != nil {
			return nil, err
		}
		if ev.Type == EventCompleted {
			final = ev.Response
		}
	}
	if final == nil {
		return nil, errors.New("stream ended without a completed event")
	}
	return final, nil
}
