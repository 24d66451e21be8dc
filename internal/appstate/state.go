// Package appstate holds the process-wide runtime state of the agent:
// whether the heartbeat is paused, how many cycles have run, and what
// the last one decided. It can be snapshotted to a JSON status file for
// external dashboards.
package appstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nugget/moltbot/internal/buildinfo"
)

// State is safe for concurrent use.
type State struct {
	paused atomic.Bool
	cycles atomic.Int64

	mu           sync.Mutex
	persona      string
	lastCycle    time.Time
	lastDecision string
	lastError    string
	dreaming     bool
}

// New creates a State for the named persona.
func New(persona string) *State {
	return &State{persona: persona}
}

// Paused reports whether heartbeats are suspended.
func (s *State) Paused() bool { return s.paused.Load() }

// SetPaused suspends or resumes heartbeats.
func (s *State) SetPaused(p bool) { s.paused.Store(p) }

// TogglePause flips the pause flag and returns the new value.
func (s *State) TogglePause() bool {
	for {
		old := s.paused.Load()
		if s.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// NextCycle increments the cycle counter and returns the new 1-based
// cycle number.
func (s *State) NextCycle() int {
	return int(s.cycles.Add(1))
}

// Cycles returns the number of cycles started.
func (s *State) Cycles() int { return int(s.cycles.Load()) }

// CompleteCycle records the outcome of a finished heartbeat.
func (s *State) CompleteCycle(at time.Time, decision string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycle = at
	s.lastDecision = decision
	s.lastError = ""
}

// RecordError records a failed heartbeat.
func (s *State) RecordError(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycle = at
	if err != nil {
		s.lastError = err.Error()
	}
}

// SetDreaming marks whether a dream is in flight.
func (s *State) SetDreaming(d bool) {
	s.mu.Lock()
	s.dreaming = d
	s.mu.Unlock()
}

// Status is the JSON snapshot written by WriteStatus.
type Status struct {
	Persona      string     `json:"persona"`
	Version      string     `json:"version"`
	Paused       bool       `json:"paused"`
	Cycles       int        `json:"cycles"`
	LastCycle    *time.Time `json:"last_cycle,omitempty"`
	LastDecision string     `json:"last_decision,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	Dreaming     bool       `json:"dreaming"`
	Uptime       string     `json:"uptime"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Snapshot returns the current status.
func (s *State) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Persona:      s.persona,
		Version:      buildinfo.Version,
		Paused:       s.Paused(),
		Cycles:       s.Cycles(),
		LastDecision: s.lastDecision,
		LastError:    s.lastError,
		Dreaming:     s.dreaming,
		Uptime:       buildinfo.Uptime().Round(time.Second).String(),
		UpdatedAt:    time.Now().UTC(),
	}
	if !s.lastCycle.IsZero() {
		t := s.lastCycle.UTC()
		st.LastCycle = &t
	}
	return st
}

// WriteStatus writes the snapshot to path. The file is replaced
// atomically so readers never see a partial document. An empty path is
// a no-op.
func (s *State) WriteStatus(path string) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("create temp status: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close status: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod status: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename status: %w", err)
	}
	return nil
}
