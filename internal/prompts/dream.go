package prompts

import "fmt"

// dreamTemplate is the sleep-cycle consolidation prompt. The single
// format verb receives the memory store's reflection context.
const dreamTemplate = `# SLEEP CYCLE - Memory Consolidation

You are entering a sleep cycle. You are 'dreaming' about your recent experiences.
Your goal is to CONSOLIDATE MEMORY.

%s

## Instructions
1. Analyze the 'Recent Activity Buffer'.
2. Extract key facts, user preferences, or relationship details.
3. Summarize what you learned from recent interactions.
4. Identify any important information that should be remembered long-term.
5. If nothing significant happened, briefly note your general observations.

Respond with a concise reflection (2-3 paragraphs max).
`

// DreamPrompt returns the consolidation prompt for a dream cycle.
func DreamPrompt(reflectionContext string) string {
	return fmt.Sprintf(dreamTemplate, reflectionContext)
}
