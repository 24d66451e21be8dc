package llm

import (
	"encoding/json"
	"fmt"
)

// Tool declares a function the model may call. Parameters is a JSON
// schema object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Strict      bool           `json:"strict,omitempty"`
}

// Tool choice modes.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
	ToolChoiceNone     = "none"
)

// ToolChoice is either a mode ("auto", "required", "none") or, when
// Function is set, a forced call to that function.
type ToolChoice struct {
	Mode     string
	Function string
}

// ForceFunction returns a ToolChoice that requires a call to name.
func ForceFunction(name string) *ToolChoice {
	return &ToolChoice{Function: name}
}

// MarshalJSON renders the mode as a bare string and a forced function
// as {"type":"function","name":...}.
func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	if tc.Function != "" {
		return json.Marshal(map[string]string{"type": "function", "name": tc.Function})
	}
	mode := tc.Mode
	if mode == "" {
		mode = ToolChoiceAuto
	}
	return json.Marshal(mode)
}

// UnmarshalJSON accepts both shapes produced by MarshalJSON.
func (tc *ToolChoice) UnmarshalJSON(data []byte) error {
	var mode string
	if err := json.Unmarshal(data, &mode); err == nil {
		*tc = ToolChoice{Mode: mode}
		return nil
	}
	var obj struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("tool_choice: %w", err)
	}
	if obj.Type != "function" || obj.Name == "" {
		return fmt.Errorf("tool_choice: unsupported object type %q", obj.Type)
	}
	*tc = ToolChoice{Function: obj.Name}
	return nil
}

// Request is a provider-neutral create-response request. Input holds
// the conversation; InputText is used instead when Input is empty and
// is treated as a single user message.
type Request struct {
	Model              string      `json:"model"`
	Input              []Item      `json:"-"`
	InputText          string      `json:"-"`
	Tools              []Tool      `json:"tools,omitempty"`
	ToolChoice         *ToolChoice `json:"tool_choice,omitempty"`
	Temperature        *float64    `json:"temperature,omitempty"`
	MaxOutputTokens    int         `json:"max_output_tokens,omitempty"`
	Stream             bool        `json:"stream"`
	PreviousResponseID string      `json:"previous_response_id,omitempty"`
}

// Items returns the request input as Items, wrapping InputText in a
// user message when Input is empty.
func (r *Request) Items() []Item {
	if len(r.Input) > 0 {
		return r.Input
	}
	if r.InputText == "" {
		return nil
	}
	return []Item{UserMessage(r.InputText)}
}

// Usage reports token accounting when the provider supplies it.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ResponseError describes a failed response.
type ResponseError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Response is the provider-neutral result of a create-response call.
// Output preserves the order in which the provider emitted items.
type Response struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Output []Item         `json:"output"`
	Model  string         `json:"model,omitempty"`
	Usage  *Usage         `json:"usage,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// FirstText returns the text of the first assistant message, or "".
func (r *Response) FirstText() string {
	if r == nil {
		return ""
	}
	for _, it := range r.Output {
		if it.Type == ItemMessage && it.Role == RoleAssistant {
			return it.Text()
		}
	}
	return ""
}

// FunctionCalls returns every function_call item in emission order.
func (r *Response) FunctionCalls() []Item {
	if r == nil {
		return nil
	}
	var calls []Item
	for _, it := range r.Output {
		if it.Type == ItemFunctionCall {
			calls = append(calls, it)
		}
	}
	return calls
}

// Stream event types. Every adapter emits exactly one Created event,
// zero or more TextDelta events, and exactly one Completed event.
const (
	EventCreated   = "response.created"
	EventTextDelta = "response.output_text.delta"
	EventCompleted = "response.completed"
)

// StreamEvent is one normalized streaming event. Response is set on
// Created (status in_progress) and Completed; Delta on TextDelta.
type StreamEvent struct {
	Type     string    `json:"type"`
	Delta    string    `json:"delta,omitempty"`
	Response *Response `json:"response,omitempty"`
}
