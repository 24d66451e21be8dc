// Package memory implements the agent's persistent memory: labeled core
// blocks that are always in the prompt, an archival store searched by
// vector similarity or keywords, a short FIFO buffer of recent activity,
// and saved reflections from dream cycles.
//
// Everything lives in a single JSON document that is rewritten
// atomically after each mutation.
package memory

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"
)

// Capacity limits.
const (
	MaxArchival        = 1000
	MaxBuffer          = 50
	MaxReflections     = 50
	MaxMemoryChars     = 1000
	MaxMemoryTags      = 5
	MaxBufferChars     = 500
	MaxReflectionChars = 2000

	// reflectionWindow is how many buffer entries ReflectionContext shows.
	reflectionWindow = 30
)

// timeFormat matches the persisted timestamp layout (UTC, second
// precision, literal Z).
const timeFormat = "2006-01-02T15:04:05Z"

// Embedder produces vector embeddings for text. *embeddings.Client
// satisfies it.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Block is a labeled, size-limited piece of core memory that is rendered
// into every system prompt.
type Block struct {
	Label       string `json:"-"`
	Value       string `json:"value"`
	Description string `json:"description"`
	Limit       int    `json:"limit"`
}

// Memory is an archival entry. ID and Hash are the same content digest.
type Memory struct {
	ID          string    `json:"id"`
	Hash        string    `json:"hash"`
	Content     string    `json:"content"`
	Tags        []string  `json:"tags"`
	Importance  int       `json:"importance"`
	CreatedAt   string    `json:"created_at"`
	AccessedAt  string    `json:"accessed_at"`
	AccessCount int       `json:"access_count"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// BufferEntry is one line of recent activity.
type BufferEntry struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// Reflection is the saved output of a dream cycle.
type Reflection struct {
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Stats are running counters kept with the document.
type Stats struct {
	MemoriesWritten int     `json:"memories_written"`
	MemoriesRead    int     `json:"memories_read"`
	ReflectionsDone int     `json:"reflections_done"`
	LastReflection  *string `json:"last_reflection"`
}

// document is the persisted JSON shape.
type document struct {
	Blocks      map[string]*Block `json:"blocks"`
	Archival    []*Memory         `json:"archival"`
	Buffer      []BufferEntry     `json:"buffer"`
	Reflections []Reflection      `json:"reflections"`
	Stats       Stats             `json:"stats"`
}

// ConstraintError reports a rejected memory operation: an unknown block,
// a size limit, an ambiguous replacement, or a duplicate memory. The
// store is left unchanged.
type ConstraintError struct {
	Op     string
	Reason string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("memory %s: %s", e.Op, e.Reason)
}

// defaultBlockOrder is the rendering order for the built-in blocks.
// Other labels follow alphabetically.
var defaultBlockOrder = []string{"persona", "human", "scratchpad"}

func defaultDocument() *document {
	return &document{
		Blocks: map[string]*Block{
			"persona": {
				Value:       "You are a helpful AI agent.",
				Description: "The persona block: Stores details about your current persona, guiding how you behave and respond.",
				Limit:       2000,
			},
			"human": {
				Description: "The human block: Stores key details about the person you are conversing with.",
				Limit:       2000,
			},
			"scratchpad": {
				Description: "The scratchpad block: Use this to track your current state, plans, or working memory.",
				Limit:       5000,
			},
		},
		Archival:    []*Memory{},
		Buffer:      []BufferEntry{},
		Reflections: []Reflection{},
	}
}

// runeLen counts characters the way block limits are expressed.
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}
