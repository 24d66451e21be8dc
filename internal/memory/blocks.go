package memory

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Blocks returns copies of all core blocks in rendering order.
func (s *Store) Blocks() []Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	labels := s.blockLabels()
	out := make([]Block, 0, len(labels))
	for _, label := range labels {
		b := *s.doc.Blocks[label]
		b.Label = label
		out = append(out, b)
	}
	return out
}

// Block returns a copy of the named block.
func (s *Store) Block(label string) (Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.doc.Blocks[label]
	if !ok {
		return Block{}, false
	}
	out := *b
	out.Label = label
	return out, true
}

// blockLabels lists labels with the built-in blocks first. Callers must
// hold s.mu.
func (s *Store) blockLabels() []string {
	var labels, extra []string
	for _, l := range defaultBlockOrder {
		if _, ok := s.doc.Blocks[l]; ok {
			labels = append(labels, l)
		}
	}
	for l := range s.doc.Blocks {
		if !slices.Contains(defaultBlockOrder, l) {
			extra = append(extra, l)
		}
	}
	sort.Strings(extra)
	return append(labels, extra...)
}

// BlockSummary renders the core blocks for the system prompt.
func (s *Store) BlockSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockSummary()
}

func (s *Store) blockSummary() string {
	parts := []string{"<memory_blocks>"}
	for _, label := range s.blockLabels() {
		b := s.doc.Blocks[label]
		parts = append(parts, fmt.Sprintf(` <%s>
  <description>%s</description>
  <metadata>
   - chars_current=%d
   - chars_limit=%d
  </metadata>
  <value>%s</value>
 </%s>`, label, b.Description, runeLen(b.Value), b.Limit, b.Value, label))
	}
	parts = append(parts, "</memory_blocks>")
	return strings.Join(parts, "\n")
}

// lookupBlock returns the named block or a ConstraintError listing the
// available labels. Callers must hold s.mu.
func (s *Store) lookupBlock(op, label string) (*Block, error) {
	b, ok := s.doc.Blocks[label]
	if !ok {
		return nil, &ConstraintError{
			Op:     op,
			Reason: fmt.Sprintf("block %q does not exist (available: %s)", label, strings.Join(s.blockLabels(), ", ")),
		}
	}
	return b, nil
}

// commitBlock checks the limit and persists value into b.
func (s *Store) commitBlock(op string, b *Block, value string) error {
	if n := runeLen(value); n > b.Limit {
		return &ConstraintError{Op: op, Reason: fmt.Sprintf("result exceeds limit (%d/%d chars)", n, b.Limit)}
	}
	prev := s.doc.clone()
	b.Value = value
	return s.commit(prev)
}

// UpdateBlock replaces a block's entire value.
func (s *Store) UpdateBlock(label, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.lookupBlock("update_block", label)
	if err != nil {
		return err
	}
	return s.commitBlock("update_block", b, value)
}

// ReplaceInBlock swaps exactly one occurrence of oldStr for newStr.
// Zero or multiple matches are rejected.
func (s *Store) ReplaceInBlock(label, oldStr, newStr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "replace_in_block"
	b, err := s.lookupBlock(op, label)
	if err != nil {
		return err
	}

	switch n := strings.Count(b.Value, oldStr); {
	case oldStr == "" || n == 0:
		return &ConstraintError{Op: op, Reason: fmt.Sprintf("text %q not found in block %q", truncateRunes(oldStr, 50), label)}
	case n > 1:
		return &ConstraintError{Op: op, Reason: "multiple matches found, be more specific with old_str"}
	}

	return s.commitBlock(op, b, strings.Replace(b.Value, oldStr, newStr, 1))
}

// InsertInBlock inserts newStr as a line of the block. Line 0 prepends;
// a negative line or one past the end appends. It returns the resulting
// line count.
func (s *Store) InsertInBlock(label, newStr string, line int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "insert_in_block"
	b, err := s.lookupBlock(op, label)
	if err != nil {
		return 0, err
	}

	var lines []string
	if b.Value != "" {
		lines = strings.Split(b.Value, "\n")
	}
	switch {
	case line == 0:
		lines = slices.Insert(lines, 0, newStr)
	case line < 0 || line >= len(lines):
		lines = append(lines, newStr)
	default:
		lines = slices.Insert(lines, line, newStr)
	}

	if err := s.commitBlock(op, b, strings.Join(lines, "\n")); err != nil {
		return 0, err
	}
	return len(lines), nil
}
