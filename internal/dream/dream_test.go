package dream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nugget/moltbot/internal/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRunner returns a canned reflection and records prompts. When
// block is set, each call waits for it to close.
type mockRunner struct {
	mu      sync.Mutex
	text    string
	err     error
	block   chan struct{}
	during  func()
	prompts []string
	calls   atomic.Int32
}

func (m *mockRunner) Run(ctx context.Context, prompt string) (string, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.during != nil {
		m.during()
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.text, m.err
}

func newStore(t *testing.T, entries int) *memory.Store {
	t.Helper()
	store := memory.Open(filepath.Join(t.TempDir(), "memory.json"), nil, discardLogger())
	for i := range entries {
		if err := store.AddToBuffer("assistant", "did thing "+string(rune('A'+i)), nil); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestRun_Consolidates(t *testing.T) {
	store := newStore(t, 4)
	runner := &mockRunner{text: "I learned that crabs like puns."}
	d := New(store, runner.Run, discardLogger())

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if store.BufferLen() != 0 {
		t.Errorf("buffer not cleared: %d", store.BufferLen())
	}
	refl := store.Reflections(1)
	if len(refl) != 1 || refl[0].Content != "I learned that crabs like puns." {
		t.Errorf("reflections = %+v", refl)
	}
	if store.Stats().ReflectionsDone != 1 {
		t.Errorf("ReflectionsDone = %d", store.Stats().ReflectionsDone)
	}

	p := runner.prompts[0]
	if !strings.HasPrefix(p, "# SLEEP CYCLE - Memory Consolidation") || !strings.Contains(p, "did thing D") {
		t.Errorf("prompt = %q", p)
	}
}

func TestRun_KeepsActivityLoggedDuringDream(t *testing.T) {
	store := newStore(t, 4)
	runner := &mockRunner{text: "slept well"}
	runner.during = func() {
		if err := store.AddToBuffer("assistant", "commented while dreaming", nil); err != nil {
			t.Error(err)
		}
	}
	d := New(store, runner.Run, discardLogger())

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := store.Buffer(10)
	if len(got) != 1 || got[0].Content != "commented while dreaming" {
		t.Errorf("buffer = %+v, want only the entry added during the dream", got)
	}
}

func TestRun_SmallBufferIsNoop(t *testing.T) {
	store := newStore(t, MinBufferEntries-1)
	runner := &mockRunner{text: "x"}
	d := New(store, runner.Run, discardLogger())

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if runner.calls.Load() != 0 {
		t.Error("runner called for a small buffer")
	}
	if store.BufferLen() != MinBufferEntries-1 {
		t.Error("small buffer should be left alone")
	}
}

func TestRun_FailureKeepsBuffer(t *testing.T) {
	tests := []struct {
		name    string
		runner  *mockRunner
		wantErr error
	}{
		{"runner error", &mockRunner{err: errors.New("model offline")}, nil},
		{"empty reflection", &mockRunner{text: ""}, ErrEmptyReflection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t, 5)
			d := New(store, tt.runner.Run, discardLogger())

			err := d.Run(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if store.BufferLen() != 5 {
				t.Errorf("buffer = %d, want 5 after failed dream", store.BufferLen())
			}
			if len(store.Reflections(0)) != 0 {
				t.Error("no reflection should be saved")
			}
		})
	}
}

func TestTryStart_NoOverlap(t *testing.T) {
	store := newStore(t, 4)
	runner := &mockRunner{text: "dreamt", block: make(chan struct{})}
	d := New(store, runner.Run, discardLogger())

	if !d.TryStart(context.Background()) {
		t.Fatal("first TryStart should start a dream")
	}

	// Wait until the first dream is inside the runner.
	deadline := time.Now().Add(2 * time.Second)
	for runner.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if d.TryStart(context.Background()) {
		t.Error("second TryStart should skip while a dream is running")
	}

	close(runner.block)
	d.Wait()

	if got := runner.calls.Load(); got != 1 {
		t.Errorf("runner calls = %d, want 1", got)
	}
	if store.BufferLen() != 0 {
		t.Error("dream did not complete")
	}

	// The semaphore is free again.
	if !d.TryStart(context.Background()) {
		t.Error("TryStart after completion should start")
	}
	d.Wait()
}

func TestTryStart_CanceledContext(t *testing.T) {
	store := newStore(t, 4)
	runner := &mockRunner{text: "x", block: make(chan struct{})}
	d := New(store, runner.Run, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	d.TryStart(ctx)
	cancel()
	d.Wait()

	if store.BufferLen() != 4 {
		t.Error("canceled dream should leave the buffer")
	}
}

func TestPolicy_Due(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		cycle   int
		actions int
		want    bool
	}{
		{"every 5 at 5", Policy{EveryCycles: 5}, 5, 0, true},
		{"every 5 at 10", Policy{EveryCycles: 5}, 10, 0, true},
		{"every 5 at 4", Policy{EveryCycles: 5}, 4, 100, false},
		{"cycle zero", Policy{EveryCycles: 5}, 0, 0, false},
		{"actions reached", Policy{AfterActions: 8}, 1, 8, true},
		{"actions short", Policy{AfterActions: 8}, 1, 7, false},
		{"both, actions fire", Policy{EveryCycles: 5, AfterActions: 3}, 2, 3, true},
		{"disabled", Policy{}, 5, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Due(tt.cycle, tt.actions); got != tt.want {
				t.Errorf("Due(%d, %d) = %v, want %v", tt.cycle, tt.actions, got, tt.want)
			}
		})
	}
}
