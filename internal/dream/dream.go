// Package dream runs the agent's sleep cycle: it hands the recent
// activity buffer to a model, stores the resulting reflection and clears
// the buffer. Cycles run in the background and never overlap.
package dream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nugget/moltbot/internal/prompts"
)

// MinBufferEntries is the smallest buffer worth dreaming about.
const MinBufferEntries = 3

// ErrEmptyReflection is returned when the model produces no text.
var ErrEmptyReflection = errors.New("dream produced an empty reflection")

// Memory is the slice of the memory store a dream needs.
type Memory interface {
	BufferLen() int
	ReflectionSnapshot() (string, int)
	SaveReflection(text string) error
	ClearBufferBefore(mark int) (int, error)
}

// Runner sends the dream prompt to a model and returns its reflection.
// Either a sleep-specific llm.Client.SimpleCompletion or the main
// agent's Think fits.
type Runner func(ctx context.Context, prompt string) (string, error)

// Dreamer runs consolidation cycles, at most one at a time.
type Dreamer struct {
	memory Memory
	run    Runner
	logger *slog.Logger
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

// New creates a Dreamer.
func New(mem Memory, run Runner, logger *slog.Logger) *Dreamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dreamer{
		memory: mem,
		run:    run,
		logger: logger.With("component", "dream"),
		sem:    semaphore.NewWeighted(1),
	}
}

// Run performs one consolidation synchronously. A buffer with fewer
// than MinBufferEntries entries is a no-op. The buffer is only cleared
// after the reflection is saved, and only the entries the model saw
// are removed; activity logged while the model ran stays for the next
// cycle.
func (d *Dreamer) Run(ctx context.Context) error {
	n := d.memory.BufferLen()
	if n < MinBufferEntries {
		d.logger.Info("not enough recent activity to dream", "buffer", n)
		return nil
	}

	d.logger.Info("entering sleep cycle", "buffer", n)
	start := time.Now()

	reflectionCtx, mark := d.memory.ReflectionSnapshot()
	reflection, err := d.run(ctx, prompts.DreamPrompt(reflectionCtx))
	if err != nil {
		d.logger.Error("dream failed", "error", err)
		return fmt.Errorf("dream: %w", err)
	}
	if reflection == "" {
		d.logger.Warn("dream produced no reflection")
		return ErrEmptyReflection
	}

	if err := d.memory.SaveReflection(reflection); err != nil {
		d.logger.Error("saving reflection failed", "error", err)
		return fmt.Errorf("save reflection: %w", err)
	}
	cleared, err := d.memory.ClearBufferBefore(mark)
	if err != nil {
		d.logger.Error("clearing buffer failed", "error", err)
		return fmt.Errorf("clear buffer: %w", err)
	}

	d.logger.Info("woke up",
		"cleared", cleared,
		"reflection_len", len(reflection),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// TryStart launches Run in the background unless a cycle is already in
// flight, and reports whether it started one. It never blocks.
func (d *Dreamer) TryStart(ctx context.Context) bool {
	if !d.sem.TryAcquire(1) {
		d.logger.Debug("dream already in progress, skipping")
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("dream panicked", "panic", r)
			}
		}()
		_ = d.Run(ctx) // logged by Run
	}()
	return true
}

// Wait blocks until background cycles started by TryStart finish.
func (d *Dreamer) Wait() {
	d.wg.Wait()
}

// Policy decides when a dream is due.
type Policy struct {
	// EveryCycles dreams on every Nth heartbeat. Zero disables it.
	EveryCycles int
	// AfterActions dreams once this many mutating actions have
	// accumulated. Zero disables it.
	AfterActions int
}

// Due reports whether either trigger fires for heartbeat cycle (1-based)
// with actionsSince actions since the last dream.
func (p Policy) Due(cycle, actionsSince int) bool {
	if p.EveryCycles > 0 && cycle > 0 && cycle%p.EveryCycles == 0 {
		return true
	}
	return p.AfterActions > 0 && actionsSince >= p.AfterActions
}
