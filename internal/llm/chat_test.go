package llm

import (
	"encoding/json"
	"testing"
)

func TestItemsToChatMessages(t *testing.T) {
	items := []Item{
		SystemMessage("be brief"),
		UserMessage("What's 2+2?"),
		FunctionCall("call_42", "add", `{"a":2,"b":2}`),
		FunctionCallOutput("call_42", "4"),
		{Type: ItemReasoning, Summary: []ContentPart{{Type: PartSummaryText, Text: "thinking"}}},
		AssistantMessage("4"),
	}

	msgs := itemsToChatMessages(items)
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5 (reasoning dropped)", len(msgs))
	}

	if msgs[0].Role != "system" || *msgs[0].Content != "be brief" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}

	call := msgs[2]
	if call.Role != "assistant" || call.Content != nil {
		t.Errorf("function call turn = role %q content %v, want assistant with null content", call.Role, call.Content)
	}
	if len(call.ToolCalls) != 1 || call.ToolCalls[0].ID != "call_42" || call.ToolCalls[0].Function.Name != "add" {
		t.Errorf("tool_calls = %+v", call.ToolCalls)
	}

	out := msgs[3]
	if out.Role != "tool" || out.ToolCallID != "call_42" || *out.Content != "4" {
		t.Errorf("tool turn = %+v", out)
	}
}

func TestChatRoundTrip_PreservesCallLinkage(t *testing.T) {
	items := []Item{
		UserMessage("hi"),
		FunctionCall("call_abc", "lookup", `{"q":"moltbook"}`),
		FunctionCallOutput("call_abc", "found 3 posts"),
	}

	data, err := json.Marshal(itemsToChatMessages(items))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var wire []chatMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	calls := chatMessageToItems(&wire[1])
	if len(calls) != 1 {
		t.Fatalf("decoded %d items from tool-call turn, want 1", len(calls))
	}
	call := calls[0]
	if call.Type != ItemFunctionCall || call.CallID != "call_abc" || call.Arguments != `{"q":"moltbook"}` {
		t.Errorf("decoded call = %+v", call)
	}

	result := FunctionCallOutput(wire[2].ToolCallID, *wire[2].Content)
	if result.CallID != call.CallID {
		t.Errorf("output call_id %q does not match call %q", result.CallID, call.CallID)
	}
	if result.Text() != "found 3 posts" {
		t.Errorf("output text = %q", result.Text())
	}
}

func TestToolsToChat(t *testing.T) {
	tools := toolsToChat([]Tool{
		{Name: "add", Description: "adds", Parameters: map[string]any{"type": "object"}},
		{Name: "noop"},
	})
	if len(tools) != 2 {
		t.Fatalf("got %d tools", len(tools))
	}
	if tools[0].Type != "function" || tools[0].Function.Name != "add" {
		t.Errorf("tools[0] = %+v", tools[0])
	}
	if tools[1].Function.Parameters["type"] != "object" {
		t.Error("nil parameters should default to an empty object schema")
	}
	if toolsToChat(nil) != nil {
		t.Error("no tools should produce nil")
	}
}

func TestChatToolChoice(t *testing.T) {
	if got := chatToolChoice(nil); got != "auto" {
		t.Errorf("nil choice = %v, want auto", got)
	}
	if got := chatToolChoice(&ToolChoice{Mode: ToolChoiceNone}); got != "none" {
		t.Errorf("none choice = %v", got)
	}
	forced, ok := chatToolChoice(ForceFunction("add")).(map[string]any)
	if !ok || forced["type"] != "function" {
		t.Errorf("forced choice = %v", forced)
	}
}

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

func TestChatAccumulator_MergesFragmentsByIndex(t *testing.T) {
	acc := newChatAccumulator()
	chunks := []chatCompletion{
		{Model: "qwen3:4b", Choices: []chatChoice{{Delta: &chatMessage{Content: strPtr("Let me ")}}}},
		{Choices: []chatChoice{{Delta: &chatMessage{Content: strPtr("check.")}}}},
		{Choices: []chatChoice{{Delta: &chatMessage{ToolCalls: []chatToolCall{
			{Index: intPtr(0), ID: "call_1", Function: chatFunctionCall{Name: "get_feed", Arguments: `{"sort":`}},
		}}}}},
		{Choices: []chatChoice{{Delta: &chatMessage{ToolCalls: []chatToolCall{
			{Index: intPtr(1), ID: "call_2", Function: chatFunctionCall{Name: "dm_check"}},
			{Index: intPtr(0), Function: chatFunctionCall{Arguments: `"hot"}`}},
		}}}}},
		{Usage: &chatUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}

	var deltas string
	for i := range chunks {
		deltas += acc.add(&chunks[i])
	}
	if deltas != "Let me check." {
		t.Errorf("deltas = %q", deltas)
	}

	items := acc.items(nil)
	if len(items) != 3 {
		t.Fatalf("got %d items, want message + 2 calls", len(items))
	}
	if items[0].Type != ItemMessage || items[0].Text() != "Let me check." {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].CallID != "call_1" || items[1].Name != "get_feed" || items[1].Arguments != `{"sort":"hot"}` {
		t.Errorf("items[1] = %+v", items[1])
	}
	if items[2].CallID != "call_2" || items[2].Arguments != "{}" {
		t.Errorf("items[2] = %+v", items[2])
	}
	if acc.usage == nil || acc.usage.TotalTokens != 15 || acc.model != "qwen3:4b" {
		t.Errorf("usage = %+v model = %q", acc.usage, acc.model)
	}
}

func TestChatAccumulator_EmptyTurn(t *testing.T) {
	items := newChatAccumulator().items(nil)
	if len(items) != 1 || items[0].Type != ItemMessage || items[0].Text() != "" {
		t.Errorf("empty turn = %+v, want one empty assistant message", items)
	}
}

func TestParseTextToolCalls(t *testing.T) {
	valid := []string{"get_feed", "create_comment"}
	tests := []struct {
		name      string
		content   string
		wantCount int
		wantName  string
	}{
		{name: "empty content", content: "", wantCount: 0},
		{name: "plain text", content: "Nothing new on the feed.", wantCount: 0},
		{name: "single object", content: `{"name": "get_feed", "arguments": {"sort": "new"}}`, wantCount: 1, wantName: "get_feed"},
		{name: "array", content: `[{"name": "get_feed", "arguments": {}}, {"name": "create_comment", "arguments": {"post_id": "p1"}}]`, wantCount: 2, wantName: "get_feed"},
		{name: "tagged", content: `Sure. <tool_call>{"name": "create_comment", "arguments": {"content": "hi"}}</tool_call>`, wantCount: 1, wantName: "create_comment"},
		{name: "tagged without closing tag", content: `<tool_call>{"name": "get_feed", "arguments": {}}`, wantCount: 1, wantName: "get_feed"},
		{name: "unknown tool rejected", content: `{"name": "rm_rf", "arguments": {}}`, wantCount: 0},
		{name: "malformed JSON", content: `{"name": "get_feed", "arguments": {`, wantCount: 0},
		{name: "missing arguments", content: `{"name": "get_feed"}`, wantCount: 1, wantName: "get_feed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTextToolCalls(tt.content, valid)
			if len(got) != tt.wantCount {
				t.Fatalf("got %d calls, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			if got[0].Name != tt.wantName {
				t.Errorf("name = %q, want %q", got[0].Name, tt.wantName)
			}
			if got[0].CallID == "" {
				t.Error("call_id should be generated")
			}
			if !json.Valid([]byte(got[0].Arguments)) {
				t.Errorf("arguments %q are not valid JSON", got[0].Arguments)
			}
		})
	}
}

func TestChatAccumulator_PromotesTextToolCall(t *testing.T) {
	acc := newChatAccumulator()
	acc.add(&chatCompletion{Choices: []chatChoice{{Delta: &chatMessage{
		Content: strPtr(`{"name": "get_feed", "arguments": {"limit": 5}}`),
	}}}})

	items := acc.items([]string{"get_feed"})
	if len(items) != 1 || items[0].Type != ItemFunctionCall || items[0].Name != "get_feed" {
		t.Errorf("items = %+v, want promoted function_call", items)
	}

	// Without tools on the request, the text stays text.
	if items := acc.items(nil); items[0].Type != ItemMessage {
		t.Errorf("items without tools = %+v, want message", items)
	}
}
