package llm

import (
	"encoding/json"
	"sort"
	"strings"
)

// Chat-completions wire types shared by adapters that speak the
// OpenAI-compatible /chat/completions dialect.

type chatMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *chatUsage) normalize() *Usage {
	if u == nil {
		return nil
	}
	return &Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

type chatChoice struct {
	Index        int          `json:"index"`
	Message      *chatMessage `json:"message,omitempty"`
	Delta        *chatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// chatCompletion is both a full response body and a streaming chunk;
// chunks carry Delta instead of Message.
type chatCompletion struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

// itemsToChatMessages translates Items into chat-completions turns.
// Messages map 1:1 by role. A function_call becomes an assistant turn
// with a single tool call; a function_call_output becomes a tool turn.
// Reasoning items have no chat equivalent and are dropped.
func itemsToChatMessages(items []Item) []chatMessage {
	msgs := make([]chatMessage, 0, len(items))
	for _, it := range items {
		switch it.Type {
		case ItemMessage:
			role := string(it.Role)
			if role == "" {
				role = string(RoleUser)
			}
			text := it.Text()
			msgs = append(msgs, chatMessage{Role: role, Content: &text})

		case ItemFunctionCall:
			args := it.Arguments
			if args == "" {
				args = "{}"
			}
			msgs = append(msgs, chatMessage{
				Role: string(RoleAssistant),
				ToolCalls: []chatToolCall{{
					ID:   it.CallID,
					Type: "function",
					Function: chatFunctionCall{
						Name:      it.Name,
						Arguments: args,
					},
				}},
			})

		case ItemFunctionCallOutput:
			text := it.Text()
			msgs = append(msgs, chatMessage{
				Role:       string(RoleTool),
				Content:    &text,
				ToolCallID: it.CallID,
			})
		}
	}
	return msgs
}

// toolsToChat wraps tool declarations in the chat-completions envelope.
func toolsToChat(tools []Tool) []chatTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// chatToolChoice renders a ToolChoice in the chat-completions shape.
func chatToolChoice(tc *ToolChoice) any {
	if tc == nil {
		return ToolChoiceAuto
	}
	if tc.Function != "" {
		return map[string]any{
			"type":     "function",
			"function": map[string]string{"name": tc.Function},
		}
	}
	if tc.Mode == "" {
		return ToolChoiceAuto
	}
	return tc.Mode
}

// chatMessageToItems converts a complete assistant turn into Items:
// an assistant message when there is text, followed by one
// function_call per tool call in provider order.
func chatMessageToItems(msg *chatMessage) []Item {
	if msg == nil {
		return nil
	}
	var items []Item
	if msg.Content != nil && *msg.Content != "" {
		items = append(items, assistantOutput(*msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		items = append(items, toolCallItem(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	return items
}

// assistantOutput builds an assistant message item with a fresh id.
func assistantOutput(text string) Item {
	it := AssistantMessage(text)
	it.ID = NewID(PrefixMessage)
	return it
}

// toolCallItem builds a function_call item. The provider's call id is
// kept verbatim; one is generated only when the provider omitted it.
func toolCallItem(callID, name, args string) Item {
	if callID == "" {
		callID = NewID(PrefixCall)
	}
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	return FunctionCall(callID, name, args)
}

// chatAccumulator assembles a streamed chat completion. Text deltas
// are concatenated; tool-call fragments are merged by index, with the
// id and name arriving once and argument fragments appended.
type chatAccumulator struct {
	text  strings.Builder
	calls map[int]*chatToolCall
	order []int
	model string
	usage *Usage
}

func newChatAccumulator() *chatAccumulator {
	return &chatAccumulator{calls: make(map[int]*chatToolCall)}
}

// add merges one chunk and returns its text delta, if any.
func (a *chatAccumulator) add(chunk *chatCompletion) string {
	if chunk.Model != "" {
		a.model = chunk.Model
	}
	if u := chunk.Usage.normalize(); u != nil {
		a.usage = u
	}
	if len(chunk.Choices) == 0 {
		return ""
	}
	delta := chunk.Choices[0].Delta
	if delta == nil {
		delta = chunk.Choices[0].Message
	}
	if delta == nil {
		return ""
	}

	for _, frag := range delta.ToolCalls {
		idx := a.fragmentIndex(frag)
		tc, ok := a.calls[idx]
		if !ok {
			tc = &chatToolCall{}
			a.calls[idx] = tc
			a.order = append(a.order, idx)
		}
		if frag.ID != "" {
			tc.ID = frag.ID
		}
		if frag.Function.Name != "" {
			tc.Function.Name = frag.Function.Name
		}
		tc.Function.Arguments += frag.Function.Arguments
	}

	if delta.Content == nil || *delta.Content == "" {
		return ""
	}
	a.text.WriteString(*delta.Content)
	return *delta.Content
}

// fragmentIndex resolves the slot for a tool-call fragment. Servers
// that omit index send each call whole, so a fragment carrying a new id
// opens a new slot and one without continues the latest.
func (a *chatAccumulator) fragmentIndex(frag chatToolCall) int {
	if frag.Index != nil {
		return *frag.Index
	}
	if len(a.order) == 0 {
		return 0
	}
	last := a.order[len(a.order)-1]
	if frag.ID != "" && a.calls[last].ID != "" && a.calls[last].ID != frag.ID {
		return last + 1
	}
	return last
}

// items returns the accumulated turn. When the model produced no
// structured tool calls but wrote a tool call as text naming one of
// knownTools, that text is promoted to a function_call.
func (a *chatAccumulator) items(knownTools []string) []Item {
	text := a.text.String()

	if len(a.calls) == 0 && len(knownTools) > 0 {
		if parsed := parseTextToolCalls(text, knownTools); len(parsed) > 0 {
			return parsed
		}
	}

	var items []Item
	if text != "" || len(a.calls) == 0 {
		items = append(items, assistantOutput(text))
	}
	idxs := append([]int(nil), a.order...)
	sort.Ints(idxs)
	for _, idx := range idxs {
		tc := a.calls[idx]
		items = append(items, toolCallItem(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	return items
}

// parseTextToolCalls extracts tool calls that a model wrote into its
// text instead of the native tool_calls field. Handles:
// - Raw JSON object: {"name": "...", "arguments": {...}}
// - JSON array: [{"name": "...", "arguments": {...}}]
// - Tagged: <tool_call>...</tool_call>
//
// Only names in validTools are accepted.
func parseTextToolCalls(content string, validTools []string) []Item {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		rest := content[start+len("<tool_call>"):]
		if end := strings.Index(rest, "</tool_call>"); end != -1 {
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
	}

	type textCall struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	var calls []textCall
	if err := json.Unmarshal([]byte(content), &calls); err != nil {
		var single textCall
		if err := json.Unmarshal([]byte(content), &single); err != nil {
			return nil
		}
		calls = []textCall{single}
	}

	valid := make(map[string]bool, len(validTools))
	for _, name := range validTools {
		valid[name] = true
	}

	var items []Item
	for _, c := range calls {
		if c.Name == "" || !valid[c.Name] {
			continue
		}
		args := string(c.Arguments)
		if args == "" || args == "null" {
			args = "{}"
		}
		items = append(items, toolCallItem("", c.Name, args))
	}
	return items
}

func toolNames(tools []Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}
