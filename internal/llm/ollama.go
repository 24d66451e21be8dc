package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"github.com/nugget/moltbot/internal/httpkit"
)

// defaultOllamaOptions tune local inference; user options override them.
var defaultOllamaOptions = map[string]any{
	"num_batch":       512,
	"num_gpu":         1,
	"repeat_penalty":  1.1,
	"kv_cache_type":   "q8_0",
	"flash_attention": true,
}

// OllamaAdapter speaks Ollama's OpenAI-compatible chat completions API.
// Every call streams over the wire so long generations do not hold an
// idle connection; CreateResponse collects the stream.
type OllamaAdapter struct {
	baseURL    string
	model      string
	options    map[string]any
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaAdapter creates an adapter for the server at cfg.BaseURL
// (default http://localhost:11434/v1).
func NewOllamaAdapter(cfg ProviderConfig, logger *slog.Logger) *OllamaAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", "ollama")

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "qwen3:4b"
	}

	opts := maps.Clone(defaultOllamaOptions)
	maps.Copy(opts, cfg.Options)
	if cfg.NumCtx > 0 {
		opts["num_ctx"] = cfg.NumCtx
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = newProviderHTTPClient(logger)
	}

	return &OllamaAdapter{
		baseURL:    baseURL,
		model:      model,
		options:    opts,
		httpClient: hc,
		logger:     logger,
	}
}

// Name implements Adapter.
func (a *OllamaAdapter) Name() string { return "ollama" }

// Model implements Adapter.
func (a *OllamaAdapter) Model() string { return a.model }

type ollamaChatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions map[string]any `json:"stream_options,omitempty"`
	Options       map[string]any `json:"options,omitempty"`
	Tools         []chatTool     `json:"tools,omitempty"`
	ToolChoice    any            `json:"tool_choice,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
}

func (a *OllamaAdapter) buildRequest(req *Request) ollamaChatRequest {
	model := req.Model
	if model == "" {
		model = a.model
	}

	opts := maps.Clone(a.options)
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if req.MaxOutputTokens > 0 {
		opts["num_predict"] = req.MaxOutputTokens
	}

	payload := ollamaChatRequest{
		Model:         model,
		Messages:      itemsToChatMessages(req.Items()),
		Stream:        true,
		StreamOptions: map[string]any{"include_usage": true},
		Options:       opts,
		Temperature:   req.Temperature,
	}
	if len(req.Tools) > 0 {
		payload.Tools = toolsToChat(req.Tools)
		payload.ToolChoice = chatToolChoice(req.ToolChoice)
	}
	return payload
}

// CreateResponse implements Adapter.
func (a *OllamaAdapter) CreateResponse(ctx context.Context, req *Request) (*Response, error) {
	return Collect(a.CreateResponseStream(ctx, req))
}

// CreateResponseStream implements Adapter.
func (a *OllamaAdapter) CreateResponseStream(ctx context.Context, req *Request) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		payload := a.buildRequest(req)
		respID := NewID(PrefixResponse)

		if !yield(StreamEvent{
			Type:     EventCreated,
			Response: &Response{ID: respID, Status: StatusInProgress, Model: payload.Model},
		}, nil) {
			return
		}

		a.logger.Debug("preparing request",
			"model", payload.Model,
			"messages", len(payload.Messages),
			"tools", len(payload.Tools),
		)

		httpResp, err := postJSON(ctx, a.httpClient, a.Name(), a.baseURL+"/chat/completions", nil, payload, a.logger)
		if err != nil {
			yield(StreamEvent{}, err)
			return
		}
		defer httpResp.Body.Close()

		acc := newChatAccumulator()
		stopped := false
		readErr := readSSE(httpResp.Body, func(data string) bool {
			var chunk chatCompletion
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				a.logger.Warn("skipping malformed stream chunk", "error", err, "data", truncate(data, 200))
				return true
			}
			if delta := acc.add(&chunk); delta != "" {
				if !yield(StreamEvent{Type: EventTextDelta, Delta: delta}, nil) {
					stopped = true
					return false
				}
			}
			return true
		})
		if stopped {
			return
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(StreamEvent{}, ctxErr)
				return
			}
			yield(StreamEvent{}, &TransportError{Provider: a.Name(), Err: fmt.Errorf("read stream: %w", readErr)})
			return
		}

		model := acc.model
		if model == "" {
			model = payload.Model
		}
		resp := &Response{
			ID:     respID,
			Status: StatusCompleted,
			Output: acc.items(toolNames(req.Tools)),
			Model:  model,
			Usage:  acc.usage,
		}

		a.logger.Debug("stream complete",
			"model", resp.Model,
			"content_len", len(resp.FirstText()),
			"tool_calls", len(resp.FunctionCalls()),
		)
		a.logger.Log(ctx, LevelTrace, "stream final content", "content", resp.FirstText())

		yield(StreamEvent{Type: EventCompleted, Response: resp}, nil)
	}
}

// Ping checks that the server is reachable.
func (a *OllamaAdapter) Ping(ctx context.Context) error {
	_, err := a.ListModels(ctx)
	return err
}

// ListModels returns the models the server reports.
func (a *OllamaAdapter) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Provider: a.Name(), Err: err}
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if err := checkStatus(a.Name(), resp, timeNow()); err != nil {
		return nil, err
	}

	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	names := make([]string, len(result.Data))
	for i, m := range result.Data {
		names[i] = m.ID
	}
	return names, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
