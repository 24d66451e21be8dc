package memory

import (
	"fmt"
	"slices"
	"strings"
)

// AddToBuffer appends a line of recent activity. Content is capped and
// only the newest MaxBuffer entries are kept.
func (s *Store) AddToBuffer(role, content string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if metadata == nil {
		metadata = map[string]any{}
	}
	prev := s.doc.clone()
	s.doc.Buffer = append(s.doc.Buffer, BufferEntry{
		Role:      role,
		Content:   truncateRunes(content, MaxBufferChars),
		Timestamp: s.timestamp(),
		Metadata:  metadata,
	})
	if n := len(s.doc.Buffer); n > MaxBuffer {
		s.doc.Buffer = slices.Clone(s.doc.Buffer[n-MaxBuffer:])
	}
	if err := s.commit(prev); err != nil {
		return err
	}
	s.appended++
	return nil
}

// Buffer returns up to limit of the newest entries, oldest first.
func (s *Store) Buffer(limit int) []BufferEntry {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(len(s.doc.Buffer)-limit, 0)
	return slices.Clone(s.doc.Buffer[start:])
}

// BufferLen returns the number of buffered entries.
func (s *Store) BufferLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.doc.Buffer)
}

// ClearBuffer empties the buffer and returns how many entries it held.
func (s *Store) ClearBuffer() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropBuffer(len(s.doc.Buffer))
}

// ClearBufferBefore removes the entries that were in the buffer when
// mark was taken by ReflectionSnapshot. Entries added since then are
// kept. It returns how many entries were removed.
func (s *Store) ClearBufferBefore(mark int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := min(max(s.appended-mark, 0), len(s.doc.Buffer))
	return s.dropBuffer(len(s.doc.Buffer) - keep)
}

// dropBuffer removes the n oldest entries. Callers must hold s.mu.
func (s *Store) dropBuffer(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	prev := s.doc.clone()
	s.doc.Buffer = slices.Clone(s.doc.Buffer[n:])
	if err := s.commit(prev); err != nil {
		return 0, err
	}
	return n, nil
}

// ConversationSearch returns buffer entries whose content contains query
// (case-insensitive), newest first.
func (s *Store) ConversationSearch(query string, limit int) []BufferEntry {
	if limit <= 0 {
		limit = 5
	}
	q := strings.ToLower(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []BufferEntry
	for i := len(s.doc.Buffer) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.doc.Buffer[i]
		if strings.Contains(strings.ToLower(e.Content), q) {
			out = append(out, e)
		}
	}
	return out
}

// ReflectionContext renders recent activity, counters and the core
// blocks as input for a dream cycle.
func (s *Store) ReflectionContext() string {
	text, _ := s.ReflectionSnapshot()
	return text
}

// ReflectionSnapshot returns ReflectionContext together with a buffer
// mark for ClearBufferBefore, both taken under one lock.
func (s *Store) ReflectionSnapshot() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(len(s.doc.Buffer)-reflectionWindow, 0)
	lines := make([]string, 0, len(s.doc.Buffer)-start)
	for _, e := range s.doc.Buffer[start:] {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", e.Timestamp, e.Role, e.Content))
	}

	var b strings.Builder
	b.WriteString("Recent Activity Buffer (Reflect on this):\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\nStatistics:\n")
	fmt.Fprintf(&b, "- Archival memories: %d\n", len(s.doc.Archival))
	fmt.Fprintf(&b, "- Memories written this session: %d\n", s.doc.Stats.MemoriesWritten)
	b.WriteString("\nCurrent Memory Blocks:\n")
	b.WriteString(s.blockSummary())
	b.WriteString("\n")
	return b.String(), s.appended
}

// SaveReflection stores a dream-cycle reflection, newest first, keeping
// at most MaxReflections.
func (s *Store) SaveReflection(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.doc.clone()
	now := s.timestamp()
	s.doc.Reflections = slices.Insert(s.doc.Reflections, 0, Reflection{
		Content:   truncateRunes(text, MaxReflectionChars),
		Timestamp: now,
	})
	if len(s.doc.Reflections) > MaxReflections {
		s.doc.Reflections = s.doc.Reflections[:MaxReflections]
	}
	s.doc.Stats.ReflectionsDone++
	s.doc.Stats.LastReflection = &now
	return s.commit(prev)
}

// Reflections returns up to limit of the newest reflections.
func (s *Store) Reflections(limit int) []Reflection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.doc.Reflections) {
		limit = len(s.doc.Reflections)
	}
	return slices.Clone(s.doc.Reflections[:limit])
}
