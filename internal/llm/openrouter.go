package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterAdapter speaks the OpenAI-responses style /responses
// endpoint of the OpenRouter aggregator.
type OpenRouterAdapter struct {
	baseURL    string
	apiKey     string
	model      string
	routing    Routing
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenRouterAdapter creates an adapter. An API key is required.
func NewOpenRouterAdapter(cfg ProviderConfig, logger *slog.Logger) (*OpenRouterAdapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter: api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", "openrouter")

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "openai/gpt-4o"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = newProviderHTTPClient(logger)
	}

	return &OpenRouterAdapter{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		routing:    cfg.Routing,
		httpClient: hc,
		logger:     logger,
	}, nil
}

// Name implements Adapter.
func (a *OpenRouterAdapter) Name() string { return "openrouter" }

// Model implements Adapter.
func (a *OpenRouterAdapter) Model() string { return a.model }

type responsesTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
	Strict      bool           `json:"strict,omitempty"`
}

type providerPrefs struct {
	Only           []string `json:"only,omitempty"`
	Order          []string `json:"order,omitempty"`
	Ignore         []string `json:"ignore,omitempty"`
	AllowFallbacks *bool    `json:"allow_fallbacks,omitempty"`
}

type responsesRequest struct {
	Model              string          `json:"model"`
	Input              string          `json:"input"`
	Tools              []responsesTool `json:"tools,omitempty"`
	ToolChoice         *ToolChoice     `json:"tool_choice,omitempty"`
	Temperature        *float64        `json:"temperature,omitempty"`
	MaxOutputTokens    int             `json:"max_output_tokens,omitempty"`
	Stream             bool            `json:"stream,omitempty"`
	PreviousResponseID string          `json:"previous_response_id,omitempty"`
	Provider           *providerPrefs  `json:"provider,omitempty"`
}

func (a *OpenRouterAdapter) buildRequest(req *Request, stream bool) responsesRequest {
	model := req.Model
	if model == "" {
		model = a.model
	}

	input := req.InputText
	if len(req.Input) > 0 {
		input = itemsToPlaintext(req.Input)
	}

	payload := responsesRequest{
		Model:              model,
		Input:              input,
		Temperature:        req.Temperature,
		MaxOutputTokens:    req.MaxOutputTokens,
		Stream:             stream,
		PreviousResponseID: req.PreviousResponseID,
	}
	if len(req.Tools) > 0 {
		payload.Tools = make([]responsesTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			params := t.Parameters
			if params == nil {
				params = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			payload.Tools = append(payload.Tools, responsesTool{
				Type:        "function",
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
				Strict:      t.Strict,
			})
		}
		payload.ToolChoice = req.ToolChoice
		if payload.ToolChoice == nil {
			payload.ToolChoice = &ToolChoice{Mode: ToolChoiceAuto}
		}
	}

	r := a.routing
	if len(r.Only) > 0 || len(r.Order) > 0 || len(r.Ignore) > 0 || r.AllowFallbacks != nil {
		payload.Provider = &providerPrefs{
			Only:           r.Only,
			Order:          r.Order,
			Ignore:         r.Ignore,
			AllowFallbacks: r.AllowFallbacks,
		}
	}
	return payload
}

func (a *OpenRouterAdapter) headers() map[string]string {
	h := map[string]string{"Authorization": "Bearer " + a.apiKey}
	if a.routing.Referer != "" {
		h["HTTP-Referer"] = a.routing.Referer
	}
	if a.routing.Title != "" {
		h["X-Title"] = a.routing.Title
	}
	return h
}

// itemsToPlaintext flattens Items into a single prompt string, one
// line per item, for the string form of the responses input.
func itemsToPlaintext(items []Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		switch it.Type {
		case ItemMessage:
			parts = append(parts, fmt.Sprintf("[%s] %s", it.Role, it.Text()))
		case ItemFunctionCall:
			parts = append(parts, fmt.Sprintf("[tool-call %s] args=%s", it.Name, it.Arguments))
		case ItemFunctionCallOutput:
			parts = append(parts, fmt.Sprintf("[tool-result %s] %s", it.CallID, joinParts(it.Output, " ")))
		case ItemReasoning:
			parts = append(parts, "[reasoning]")
		}
	}
	return strings.Join(parts, "\n")
}

// responsesOutput is one entry of a responses-API output array.
// Content is an array of parts for messages and a plain string for
// function_call_output.
type responsesOutput struct {
	Type             string          `json:"type"`
	ID               string          `json:"id"`
	Role             string          `json:"role"`
	Status           string          `json:"status"`
	Content          json.RawMessage `json:"content"`
	Name             string          `json:"name"`
	Arguments        string          `json:"arguments"`
	CallID           string          `json:"call_id"`
	Output           json.RawMessage `json:"output"`
	Summary          []ContentPart   `json:"summary"`
	EncryptedContent string          `json:"encrypted_content"`
}

type responsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type responsesBody struct {
	ID      string            `json:"id"`
	Status  string            `json:"status"`
	Model   string            `json:"model"`
	Output  []responsesOutput `json:"output"`
	Usage   *responsesUsage   `json:"usage"`
	Error   *ResponseError    `json:"error"`
	Choices []chatChoice      `json:"choices"`
}

// responsesStreamEvent covers the streamed event shapes: typed text
// deltas, output_item.done, completed/failed, and the legacy framing
// that resends an output array per chunk.
type responsesStreamEvent struct {
	Type     string            `json:"type"`
	Delta    string            `json:"delta"`
	Item     *responsesOutput  `json:"item"`
	Response *responsesBody    `json:"response"`
	Output   []responsesOutput `json:"output"`
	Error    *ResponseError    `json:"error"`
}

// outputToItems converts provider output entries to Items. Every
// function call gets an internal id; its call_id is kept verbatim,
// falling back to the provider's item id.
func outputToItems(output []responsesOutput) []Item {
	var items []Item
	for _, o := range output {
		switch o.Type {
		case "message":
			id := o.ID
			if id == "" {
				id = NewID(PrefixMessage)
			}
			role := Role(o.Role)
			if role == "" {
				role = RoleAssistant
			}
			status := o.Status
			if status == "" {
				status = StatusCompleted
			}
			text := strings.Join(textParts(o.Content), " ")
			items = append(items, Item{
				Type:    ItemMessage,
				ID:      id,
				Role:    role,
				Status:  status,
				Content: []ContentPart{{Type: PartOutputText, Text: text}},
			})

		case "function_call":
			callID := o.CallID
			if callID == "" {
				callID = o.ID
			}
			it := toolCallItem(callID, o.Name, o.Arguments)
			if o.Status != "" {
				it.Status = o.Status
			}
			items = append(items, it)

		case "function_call_output":
			text := rawString(o.Output)
			if text == "" {
				text = rawString(o.Content)
			}
			items = append(items, FunctionCallOutput(o.CallID, text))

		case "reasoning":
			items = append(items, Item{
				Type:             ItemReasoning,
				ID:               o.ID,
				Summary:          o.Summary,
				EncryptedContent: o.EncryptedContent,
			})
		}
	}
	return items
}

// textParts extracts output_text/text parts from a message content
// array.
func textParts(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		if s := rawString(raw); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, p := range parts {
		if p.Type == PartOutputText || p.Type == "text" {
			out = append(out, p.Text)
		}
	}
	return out
}

// rawString decodes a JSON string, or returns "" when raw is not one.
func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// toResponse normalizes a responses body, falling back to the
// chat-completions shape some upstreams return.
func (b *responsesBody) toResponse(fallbackModel string) *Response {
	resp := &Response{
		ID:     b.ID,
		Status: b.Status,
		Output: outputToItems(b.Output),
		Model:  b.Model,
		Error:  b.Error,
	}
	if len(resp.Output) == 0 && len(b.Choices) > 0 {
		resp.Output = chatMessageToItems(b.Choices[0].Message)
	}
	if resp.ID == "" {
		resp.ID = NewID(PrefixResponse)
	}
	if resp.Status == "" {
		resp.Status = StatusCompleted
	}
	if resp.Model == "" {
		resp.Model = fallbackModel
	}
	if b.Usage != nil {
		resp.Usage = &Usage{
			InputTokens:  b.Usage.InputTokens,
			OutputTokens: b.Usage.OutputTokens,
			TotalTokens:  b.Usage.TotalTokens,
		}
	}
	return resp
}

// CreateResponse implements Adapter.
func (a *OpenRouterAdapter) CreateResponse(ctx context.Context, req *Request) (*Response, error) {
	payload := a.buildRequest(req, false)

	a.logger.Debug("preparing request",
		"model", payload.Model,
		"input_len", len(payload.Input),
		"tools", len(payload.Tools),
	)

	httpResp, err := postJSON(ctx, a.httpClient, a.Name(), a.baseURL+"/responses", a.headers(), payload, a.logger)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var body responsesBody
	if err := json.NewDecoder(httpResp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	resp := body.toResponse(payload.Model)

	a.logger.Debug("response received",
		"model", resp.Model,
		"status", resp.Status,
		"tool_calls", len(resp.FunctionCalls()),
	)
	a.logger.Log(ctx, LevelTrace, "response content", "content", resp.FirstText())

	return resp, nil
}

// CreateResponseStream implements Adapter.
func (a *OpenRouterAdapter) CreateResponseStream(ctx context.Context, req *Request) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		payload := a.buildRequest(req, true)
		respID := NewID(PrefixResponse)

		if !yield(StreamEvent{
			Type:     EventCreated,
			Response: &Response{ID: respID, Status: StatusInProgress, Model: payload.Model},
		}, nil) {
			return
		}

		httpResp, err := postJSON(ctx, a.httpClient, a.Name(), a.baseURL+"/responses", a.headers(), payload, a.logger)
		if err != nil {
			yield(StreamEvent{}, err)
			return
		}
		defer httpResp.Body.Close()

		var (
			text    strings.Builder
			items   []Item
			final   *Response
			failErr error
			stopped bool
		)

		emit := func(delta string) bool {
			text.WriteString(delta)
			if !yield(StreamEvent{Type: EventTextDelta, Delta: delta}, nil) {
				stopped = true
				return false
			}
			return true
		}

		readErr := readSSE(httpResp.Body, func(data string) bool {
			var ev responsesStreamEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				a.logger.Warn("skipping malformed stream chunk", "error", err, "data", truncate(data, 200))
				return true
			}

			switch ev.Type {
			case EventTextDelta:
				if ev.Delta != "" {
					return emit(ev.Delta)
				}
			case "response.output_item.done":
				if ev.Item != nil && ev.Item.Type != "message" {
					items = append(items, outputToItems([]responsesOutput{*ev.Item})...)
				}
			case EventCompleted:
				if ev.Response != nil {
					final = ev.Response.toResponse(payload.Model)
				}
			case "response.failed", "error":
				e := ev.Error
				if e == nil && ev.Response != nil {
					e = ev.Response.Error
				}
				msg := "response failed"
				if e != nil {
					msg = e.Message
				}
				failErr = &APIError{Provider: a.Name(), StatusCode: http.StatusOK, Body: msg}
				return false
			case "":
				// Legacy framing: each chunk carries output message text.
				for _, o := range ev.Output {
					if o.Type != "message" {
						continue
					}
					for _, t := range textParts(o.Content) {
						if t != "" && !emit(t) {
							return false
						}
					}
				}
			}
			return true
		})
		if stopped {
			return
		}
		if failErr != nil {
			yield(StreamEvent{}, failErr)
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

		resp := final
		if resp == nil || len(resp.Output) == 0 {
			out := []Item{assistantOutput(text.String())}
			resp = &Response{
				Status: StatusCompleted,
				Output: append(out, items...),
				Model:  payload.Model,
			}
			if final != nil {
				resp.Usage = final.Usage
			}
		}
		resp.ID = respID
		resp.Status = StatusCompleted

		yield(StreamEvent{Type: EventCompleted, Response: resp}, nil)
	}
}
