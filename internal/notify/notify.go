// Package notify reports agent activity to a human-facing channel.
// Delivery is best-effort: failures are logged and never interrupt the
// heartbeat.
package notify

import (
	"context"
	"strings"
)

// Cycle describes the start of a heartbeat.
type Cycle struct {
	Number      int
	Persona     string
	ClaimStatus string
	FeedCount   int
}

// Notifier receives agent activity events.
type Notifier interface {
	CycleStart(ctx context.Context, c Cycle)
	ToolCall(ctx context.Context, name, args, result string)
	BrainResponse(ctx context.Context, thinking, final string)
	Decision(ctx context.Context, action, reason string)
	Error(ctx context.Context, step string, err error)
}

// Nop discards every event.
type Nop struct{}

func (Nop) CycleStart(context.Context, Cycle)                {}
func (Nop) ToolCall(context.Context, string, string, string) {}
func (Nop) BrainResponse(context.Context, string, string)    {}
func (Nop) Decision(context.Context, string, string)         {}
func (Nop) Error(context.Context, string, error)             {}

// decisionKeywords are checked in order against the final response.
var decisionKeywords = []string{"comment", "post", "dm", "upvote", "downvote", "search", "follow"}

// InferAction guesses the headline action of a heartbeat from the
// model's final text. It returns "observe" when nothing matches.
func InferAction(response string) string {
	lower := strings.ToLower(response)
	for _, k := range decisionKeywords {
		if strings.Contains(lower, k) {
			return k
		}
	}
	return "observe"
}
