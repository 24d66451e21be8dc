package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// Store is the agent's memory document plus its on-disk location. All
// methods are safe for concurrent use; the heartbeat and the dream
// goroutine share one Store.
type Store struct {
	mu       sync.Mutex
	path     string
	doc      *document
	embedder Embedder
	logger   *slog.Logger
	now      func() time.Time

	// appended counts buffer entries added since Open. Buffer marks are
	// taken from it.
	appended int
}

// Open loads the memory document at path. A missing file starts from
// defaults; an unreadable or corrupt file is logged and also starts from
// defaults. embedder may be nil, in which case recall is keyword-only.
func Open(path string, embedder Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:     path,
		embedder: embedder,
		logger:   logger.With("component", "memory"),
		now:      time.Now,
	}
	s.doc = s.load()
	return s
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

func (s *Store) load() *document {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultDocument()
	}
	if err != nil {
		s.logger.Warn("memory load failed, using defaults", "path", s.path, "error", err)
		return defaultDocument()
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("memory load failed, using defaults", "path", s.path, "error", err)
		return defaultDocument()
	}

	if len(doc.Blocks) == 0 {
		doc.Blocks = defaultDocument().Blocks
	}
	for label, b := range doc.Blocks {
		if b == nil {
			delete(doc.Blocks, label)
			continue
		}
		if b.Limit <= 0 {
			b.Limit = 2000
		}
	}
	if doc.Archival == nil {
		doc.Archival = []*Memory{}
	}
	if doc.Buffer == nil {
		doc.Buffer = []BufferEntry{}
	}
	if doc.Reflections == nil {
		doc.Reflections = []Reflection{}
	}

	s.logger.Debug("memory loaded",
		"path", s.path,
		"blocks", len(doc.Blocks),
		"archival", len(doc.Archival),
		"buffer", len(doc.Buffer),
	)
	return &doc
}

// clone copies the document deeply enough that mutating the original
// leaves the copy intact.
func (d *document) clone() *document {
	out := &document{
		Blocks:      make(map[string]*Block, len(d.Blocks)),
		Archival:    make([]*Memory, len(d.Archival)),
		Buffer:      slices.Clone(d.Buffer),
		Reflections: slices.Clone(d.Reflections),
		Stats:       d.Stats,
	}
	for label, b := range d.Blocks {
		c := *b
		out.Blocks[label] = &c
	}
	for i, m := range d.Archival {
		c := *m
		out.Archival[i] = &c
	}
	return out
}

// commit saves the document. If the write fails the document is rolled
// back to prev so memory and disk stay in agreement. Callers must hold
// s.mu.
func (s *Store) commit(prev *document) error {
	if err := s.save(); err != nil {
		s.doc = prev
		return err
	}
	return nil
}

// save writes the document atomically: a temp file in the same
// directory is fully written and synced, then renamed over the target.
// Callers must hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".memory-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write memory: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close memory: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace memory file: %w", err)
	}
	return nil
}

// Stats returns a copy of the running counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.doc.Stats
	if st.LastReflection != nil {
		v := *st.LastReflection
		st.LastReflection = &v
	}
	return st
}

// ArchivalCount returns the number of archival memories.
func (s *Store) ArchivalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.doc.Archival)
}

func (s *Store) timestamp() string {
	return formatTime(s.now())
}
