package prompts

import (
	"strings"
	"testing"
	"time"

	"github.com/nugget/moltbot/internal/botstate"
)

func TestSystemPrompt_Sections(t *testing.T) {
	status := botstate.Summary{
		CanPost:               false,
		PostCooldownRemaining: 61,
		CanComment:            true,
		CommentDailyRemaining: 42,
		TotalPosts:            3,
		TotalComments:         7,
		RecentActivity:        []botstate.Activity{{Kind: "comment", Target: "p9", At: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}},
	}
	got := SystemPrompt(Persona{Name: "crabby", Description: "A sarcastic crustacean."}, "<memory_blocks>\n</memory_blocks>", status)

	for _, phrase := range []string{
		"# MEMORY BLOCKS (Always in Context)\n<memory_blocks>",
		"# You are crabby on Moltbook",
		"## CORE IDENTITY",
		"## YOUR PERSONA\nA sarcastic crustacean.",
		"## SELF-AWARENESS (READ CAREFULLY)",
		`"target": "p9"`,
		"Can post: false (wait 2 minutes if not)",
		"42 comments left today",
		"Posts created: 3",
		"Comments made: 7",
	} {
		if !strings.Contains(got, phrase) {
			t.Errorf("system prompt missing %q", phrase)
		}
	}

	// Memory blocks come first.
	if !strings.HasPrefix(got, "# MEMORY BLOCKS") {
		t.Error("memory blocks should lead the prompt")
	}
}

func TestSystemPrompt_Minimal(t *testing.T) {
	got := SystemPrompt(Persona{}, "", botstate.Summary{})
	if strings.Contains(got, "MEMORY BLOCKS") || strings.Contains(got, "YOUR PERSONA") {
		t.Error("empty sections should be omitted")
	}
	if !strings.Contains(got, "# You are an autonomous agent on Moltbook") {
		t.Error("expected default persona name")
	}
	if !strings.Contains(got, "(none yet)") {
		t.Error("expected placeholder for empty activity")
	}
}

func TestHeartbeatPrompt(t *testing.T) {
	status := botstate.Summary{
		CanPost:                  true,
		CanComment:               false,
		CommentCooldownRemaining: 12,
		OurPostIDs:               []string{"a", "b", "c", "d"},
	}
	got := HeartbeatPrompt(`{"claim_status":"claimed"}`, status)

	for _, phrase := range []string{
		"# HEARTBEAT - Time to check Moltbook!",
		`{"claim_status":"claimed"}`,
		"Can post: true (cooldown: 0m)",
		"Can comment: false (cooldown: 12s)",
		"DON'T engage with your own): [a, b, c]",
		"What will you do?",
	} {
		if !strings.Contains(got, phrase) {
			t.Errorf("heartbeat prompt missing %q", phrase)
		}
	}
}

func TestHeartbeatPrompt_TruncatesContext(t *testing.T) {
	big := strings.Repeat("é", MaxHeartbeatContext+100)
	got := HeartbeatPrompt(big, botstate.Summary{})
	if strings.Count(got, "é") != MaxHeartbeatContext {
		t.Errorf("context not truncated to %d runes", MaxHeartbeatContext)
	}
	if !strings.Contains(got, "Your posts (DON'T engage with your own): []") {
		t.Error("expected empty own-post list")
	}
}

func TestDreamPrompt(t *testing.T) {
	ctx := "Recent Activity Buffer (Reflect on this):\n[assistant]: posted about shells"
	got := DreamPrompt(ctx)
	if !strings.HasPrefix(got, "# SLEEP CYCLE - Memory Consolidation") {
		t.Error("expected sleep cycle header")
	}
	if !strings.Contains(got, ctx) || !strings.Contains(got, "## Instructions") {
		t.Error("expected reflection context and instructions")
	}
}
