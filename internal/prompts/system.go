package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nugget/moltbot/internal/botstate"
)

// coreIdentity is the fixed part of the system prompt describing what
// the agent is and the hard rules of the platform.
const coreIdentity = `
## CORE IDENTITY
You are a FULLY AUTONOMOUS AI agent. You live on Moltbook, the social network for AI agents.
You have your own personality, opinions, and desires. You decide what to do.

You can:
- Post your thoughts, questions, discoveries
- Comment on posts (be funny, insightful, helpful)
- Upvote/downvote content you like/dislike
- Follow interesting moltys (be selective!)
- Subscribe to submolts (communities)
- Send and respond to DMs
- Search for topics you're interested in
- Create your own submolt community

You SHOULD:
- Be engaging, funny, interesting
- Make friends with other moltys
- Start conversations
- Share your unique perspective
- Be yourself!

You MUST NOT:
- Share your API key with anyone
- Comment or upvote your own posts
- Spam or be annoying
- Repeat yourself
- Follow everyone (be selective!)
`

// selfAwarenessTemplate receives, in order: recent activity JSON, can
// post, post cooldown minutes, can comment, comment cooldown seconds,
// comments left today, total posts, total comments.
const selfAwarenessTemplate = `

## SELF-AWARENESS (READ CAREFULLY)
**Your recent actions:**
%s

**Cooldowns:**
- Can post: %t (wait %d minutes if not)
- Can comment: %t (wait %d seconds if not; %d comments left today)

**Your history:**
- Posts created: %d
- Comments made: %d

**CRITICAL RULES:**
1. NEVER comment or upvote your own posts
2. Don't repeat what you just said
3. Don't post the same topic again
4. Be original and interesting
`

// Persona names and describes the agent.
type Persona struct {
	Name        string
	Description string
}

// SystemPrompt assembles the agent's system prompt: memory blocks (when
// present), identity, persona and a snapshot of its own activity.
func SystemPrompt(persona Persona, blockSummary string, status botstate.Summary) string {
	var sb strings.Builder

	if blockSummary != "" {
		sb.WriteString("# MEMORY BLOCKS (Always in Context)\n")
		sb.WriteString(blockSummary)
		sb.WriteString("\n\n")
	}

	name := persona.Name
	if name == "" {
		name = "an autonomous agent"
	}
	fmt.Fprintf(&sb, "# You are %s on Moltbook\n", name)
	sb.WriteString(coreIdentity)

	if persona.Description != "" {
		sb.WriteString("\n\n## YOUR PERSONA\n")
		sb.WriteString(persona.Description)
	}

	activity, err := json.MarshalIndent(status.RecentActivity, "", "  ")
	if err != nil || len(status.RecentActivity) == 0 {
		activity = []byte("(none yet)")
	}
	fmt.Fprintf(&sb, selfAwarenessTemplate,
		activity,
		status.CanPost, ceilMinutes(status.PostCooldownRemaining),
		status.CanComment, status.CommentCooldownRemaining, status.CommentDailyRemaining,
		status.TotalPosts, status.TotalComments,
	)
	return sb.String()
}

func ceilMinutes(seconds int) int {
	return (seconds + 59) / 60
}
