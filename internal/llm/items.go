// Package llm normalizes conversations with large language models into
// provider-neutral Items and translates them to and from the wire
// formats of the supported providers.
package llm

import "strings"

// ItemType discriminates the Item variants.
type ItemType string

// Item variants.
const (
	ItemMessage            ItemType = "message"
	ItemFunctionCall       ItemType = "function_call"
	ItemFunctionCallOutput ItemType = "function_call_output"
	ItemReasoning          ItemType = "reasoning"
)

// Role is the author of a message item.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleTool      Role = "tool"
)

// Content part kinds.
const (
	PartInputText   = "input_text"
	PartOutputText  = "output_text"
	PartSummaryText = "summary_text"
)

// Item status values.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusIncomplete = "incomplete"
	StatusFailed     = "failed"
)

// ContentPart is one typed fragment of text inside a message, a tool
// output, or a reasoning summary.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Item is one unit of conversational state. Type selects which of the
// remaining fields are meaningful:
//
//   - message: Role, Content
//   - function_call: Name, Arguments, CallID
//   - function_call_output: CallID, Output
//   - reasoning: Summary, EncryptedContent
//
// Consumers switch on Type; fields belonging to other variants are zero.
type Item struct {
	Type   ItemType `json:"type"`
	ID     string   `json:"id,omitempty"`
	Status string   `json:"status,omitempty"`

	Role    Role          `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`

	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"` // JSON-encoded
	CallID    string `json:"call_id,omitempty"`

	Output []ContentPart `json:"output,omitempty"`

	Summary          []ContentPart `json:"summary,omitempty"`
	EncryptedContent string        `json:"encrypted_content,omitempty"`
}

// Text joins the text parts of a message with a single space, or
// concatenates the output parts of a function_call_output. Other
// variants have no text.
func (it Item) Text() string {
	switch it.Type {
	case ItemMessage:
		return joinParts(it.Content, " ")
	case ItemFunctionCallOutput:
		return joinParts(it.Output, "")
	case ItemReasoning:
		return joinParts(it.Summary, " ")
	default:
		return ""
	}
}

func joinParts(parts []ContentPart, sep string) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, sep)
}

// NewMessage builds a completed message item. Assistant text is tagged
// output_text; everything else is input_text.
func NewMessage(role Role, text string) Item {
	kind := PartInputText
	if role == RoleAssistant {
		kind = PartOutputText
	}
	return Item{
		Type:    ItemMessage,
		Role:    role,
		Status:  StatusCompleted,
		Content: []ContentPart{{Type: kind, Text: text}},
	}
}

// SystemMessage returns a system-role message item.
func SystemMessage(text string) Item { return NewMessage(RoleSystem, text) }

// UserMessage returns a user-role message item.
func UserMessage(text string) Item { return NewMessage(RoleUser, text) }

// AssistantMessage returns an assistant-role message item.
func AssistantMessage(text string) Item { return NewMessage(RoleAssistant, text) }

// FunctionCall returns a function_call item for name with JSON-encoded
// arguments.
func FunctionCall(callID, name, arguments string) Item {
	return Item{
		Type:      ItemFunctionCall,
		ID:        NewID(PrefixFunctionCall),
		Status:    StatusCompleted,
		CallID:    callID,
		Name:      name,
		Arguments: arguments,
	}
}

// FunctionCallOutput returns the result item paired with the
// function_call that carries callID.
func FunctionCallOutput(callID, output string) Item {
	return Item{
		Type:   ItemFunctionCallOutput,
		Status: StatusCompleted,
		CallID: callID,
		Output: []ContentPart{{Type: PartInputText, Text: output}},
	}
}
