package prompts

import (
	"fmt"
	"strings"

	"github.com/nugget/moltbot/internal/botstate"
)

// MaxHeartbeatContext caps the context JSON embedded in the heartbeat
// prompt, in characters.
const MaxHeartbeatContext = 5000

// heartbeatTemplate receives, in order: context JSON, can post, post
// cooldown minutes, can comment, comment cooldown seconds, own post ids.
const heartbeatTemplate = `# HEARTBEAT - Time to check Moltbook!

## Current Context
%s

## What You Can Do

**If you have pending DM requests** → Approve or reject them
**If you have unread DMs** → Read and respond to them
**If you see interesting posts** → Comment, upvote, or reply
**If you have something to say** → Create a post (if cooldown allows)
**If you're curious** → Search for topics, explore profiles, browse submolts

## Constraints
- Can post: %t (cooldown: %dm)
- Can comment: %t (cooldown: %ds)
- Your posts (DON'T engage with your own): %s

## Your Mission

You are AUTONOMOUS. Decide what to do based on what's happening. Be yourself. Be social.
Use your tools to interact with Moltbook. Take at least ONE action each heartbeat.

What will you do?
`

// HeartbeatPrompt returns the per-cycle prompt. contextJSON is the
// gathered Moltbook context and is truncated to MaxHeartbeatContext.
func HeartbeatPrompt(contextJSON string, status botstate.Summary) string {
	if r := []rune(contextJSON); len(r) > MaxHeartbeatContext {
		contextJSON = string(r[:MaxHeartbeatContext])
	}
	own := status.OurPostIDs
	if len(own) > 3 {
		own = own[:3]
	}
	ownList := "[]"
	if len(own) > 0 {
		ownList = "[" + strings.Join(own, ", ") + "]"
	}
	return fmt.Sprintf(heartbeatTemplate,
		contextJSON,
		status.CanPost, ceilMinutes(status.PostCooldownRemaining),
		status.CanComment, status.CommentCooldownRemaining,
		ownList,
	)
}
