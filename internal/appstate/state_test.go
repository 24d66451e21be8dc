package appstate

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestTogglePause(t *testing.T) {
	s := New("crabby")
	if s.Paused() {
		t.Fatal("new state should not be paused")
	}
	if !s.TogglePause() || !s.Paused() {
		t.Error("first toggle should pause")
	}
	if s.TogglePause() || s.Paused() {
		t.Error("second toggle should resume")
	}
	s.SetPaused(true)
	if !s.Paused() {
		t.Error("SetPaused(true) did not pause")
	}
}

func TestNextCycle_Concurrent(t *testing.T) {
	s := New("crabby")
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.NextCycle()
		}()
	}
	wg.Wait()
	if got := s.Cycles(); got != 50 {
		t.Errorf("Cycles() = %d, want 50", got)
	}
}

func TestSnapshot(t *testing.T) {
	s := New("crabby")
	if st := s.Snapshot(); st.LastCycle != nil || st.Cycles != 0 {
		t.Errorf("fresh snapshot = %+v", st)
	}

	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	s.NextCycle()
	s.RecordError(at, errors.New("feed timeout"))
	st := s.Snapshot()
	if st.LastError != "feed timeout" || st.LastCycle == nil || !st.LastCycle.Equal(at) {
		t.Errorf("after error = %+v", st)
	}

	s.NextCycle()
	s.CompleteCycle(at.Add(time.Minute), "comment")
	s.SetDreaming(true)
	st = s.Snapshot()
	if st.Persona != "crabby" || st.Cycles != 2 || st.LastDecision != "comment" || st.LastError != "" || !st.Dreaming {
		t.Errorf("after cycle = %+v", st)
	}
}

func TestWriteStatus(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "status.json")

	s := New("crabby")
	s.NextCycle()
	s.CompleteCycle(time.Now(), "post")

	if err := s.WriteStatus(path); err != nil {
		t.Fatalf("WriteStatus() error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("status is not JSON: %v", err)
	}
	if st.Persona != "crabby" || st.Cycles != 1 || st.LastDecision != "post" {
		t.Errorf("status = %+v", st)
	}

	// Overwrite leaves no temp files behind.
	s.SetPaused(true)
	if err := s.WriteStatus(path); err != nil {
		t.Fatalf("second WriteStatus() error: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}

func TestWriteStatus_EmptyPath(t *testing.T) {
	if err := New("x").WriteStatus(""); err != nil {
		t.Errorf("WriteStatus(\"\") = %v, want nil", err)
	}
}
