package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nugget/moltbot/internal/botstate"
	"github.com/nugget/moltbot/internal/llm"
	"github.com/nugget/moltbot/internal/moltbook"
	"github.com/nugget/moltbot/internal/notify"
	"github.com/nugget/moltbot/internal/prompts"
)

const (
	// unclaimedBackoff is the wait before rechecking an unclaimed account.
	unclaimedBackoff = 60 * time.Second
	// feedLimit is the number of newest posts gathered per heartbeat.
	feedLimit = 15
	// bufferEntryChars caps the response stored in the activity buffer.
	bufferEntryChars = 500
)

// runHeartbeat handles "moltbot run". SIGINT and SIGTERM stop the loop
// after the current step and wait for any running dream; SIGUSR1
// toggles pause.
func runHeartbeat(ctx context.Context, stdout io.Writer, configPath string, once bool) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logger(stdout)
	logger.Info("config loaded", "path", cfgPath)

	if cfg.Moltbook.APIKey == "" {
		return errors.New("moltbook.api_key is required")
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-usr1:
				paused := a.state.TogglePause()
				logger.Info("pause toggled", "paused", paused)
				a.writeStatus()
			}
		}
	}()

	if err := a.authenticate(ctx); err != nil {
		return err
	}

	logger.Info("heartbeat started",
		"persona", cfg.Persona.Name,
		"poll_minutes", cfg.Heartbeat.PollMinutes,
		"dream_every_cycles", cfg.Dream.EveryCycles,
		"dream_after_actions", cfg.Dream.AfterActions,
	)
	err = a.loop(ctx, once)

	logger.Info("shutting down, waiting for any running dream")
	a.dreamer.Wait()
	a.writeStatus()
	return err
}

// authenticate verifies the API key before the loop starts. A rejected
// key is fatal; other failures are left to the heartbeat to retry.
func (a *app) authenticate(ctx context.Context) error {
	res, err := a.moltbook.Status(ctx)
	if err != nil {
		var apiErr *moltbook.APIError
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			return fmt.Errorf("moltbook rejected the API key: %w", err)
		}
		a.logger.Warn("moltbook status check failed", "error", err)
		return nil
	}
	status, _ := res["status"].(string)
	a.logger.Info("authenticated with moltbook", "status", status)
	if status != "claimed" {
		a.logger.Warn("agent is not claimed yet; claim it on moltbook.com", "status", status)
	}
	return nil
}

// loop runs heartbeats until ctx ends. With once set it runs a single
// cycle and returns its error.
func (a *app) loop(ctx context.Context, once bool) error {
	for {
		delay, err := a.heartbeat(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Error("heartbeat failed", "error", err)
			a.notifier.Error(ctx, "heartbeat", err)
			a.state.RecordError(time.Now(), err)
			delay = a.retryDelay(err)
		}
		a.writeStatus()

		if once {
			return err
		}
		a.logger.Debug("sleeping", "for", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// retryDelay is the wait after a failed cycle: the configured error
// backoff, or longer when a rate limit asks for it.
func (a *app) retryDelay(err error) time.Duration {
	delay := a.cfg.Heartbeat.ErrorBackoffDuration()
	var rl *llm.RateLimitedError
	if errors.As(err, &rl) {
		delay = max(delay, rl.RetryAfter)
	}
	var apiErr *moltbook.APIError
	if errors.As(err, &apiErr) && apiErr.RateLimited() {
		delay = max(delay, apiErr.RetryAfter)
	}
	return delay
}

// heartbeatContext is the snapshot handed to the model each cycle.
type heartbeatContext struct {
	ClaimStatus string           `json:"claim_status"`
	MyProfile   moltbook.Result  `json:"my_profile"`
	DMStatus    moltbook.Result  `json:"dm_status"`
	Feed        []map[string]any `json:"feed"`
	State       botstate.Summary `json:"state"`
}

// gatherContext collects claim status, profile, DM status and the newest
// posts not written by us. Only a rejected API key is an error; other
// failures degrade to empty sections.
func (a *app) gatherContext(ctx context.Context) (heartbeatContext, error) {
	hc := heartbeatContext{
		MyProfile: moltbook.Result{},
		DMStatus:  moltbook.Result{},
		Feed:      []map[string]any{},
	}

	status, err := a.moltbook.Status(ctx)
	switch {
	case err == nil:
		hc.ClaimStatus, _ = status["status"].(string)
		if hc.ClaimStatus == "" {
			hc.ClaimStatus = "unknown"
		}
	case ctx.Err() != nil:
		return hc, ctx.Err()
	default:
		var apiErr *moltbook.APIError
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			return hc, err
		}
		hc.ClaimStatus = "error: " + err.Error()
	}

	if me, err := a.moltbook.Me(ctx); err == nil {
		hc.MyProfile = me
	} else {
		a.logger.Debug("profile unavailable", "error", err)
	}
	if dm, err := a.moltbook.DMCheck(ctx); err == nil {
		hc.DMStatus = dm
	} else {
		a.logger.Debug("dm status unavailable", "error", err)
	}
	if feed, err := a.moltbook.Feed(ctx, "new", feedLimit); err == nil {
		for _, p := range moltbook.PostList(feed) {
			if id := moltbook.PostID(p); id != "" && a.tracker.IsOurPost(id) {
				continue
			}
			hc.Feed = append(hc.Feed, p)
		}
	} else {
		a.logger.Debug("feed unavailable", "error", err)
	}

	summary, err := a.tracker.Summary()
	if err != nil {
		return hc, fmt.Errorf("tracker summary: %w", err)
	}
	hc.State = summary
	return hc, nil
}

// heartbeat runs one cycle and returns how long to wait before the next.
func (a *app) heartbeat(ctx context.Context) (time.Duration, error) {
	poll := time.Duration(a.cfg.Heartbeat.PollMinutes) * time.Minute
	if a.state.Paused() {
		a.logger.Info("paused, skipping heartbeat")
		return poll, nil
	}

	cycle := a.state.NextCycle()
	logger := a.logger.With("cycle", cycle)
	logger.Info("heartbeat: checking moltbook")

	hc, err := a.gatherContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("gather context: %w", err)
	}
	if hc.ClaimStatus != "claimed" {
		logger.Warn("agent not claimed, waiting", "status", hc.ClaimStatus)
		return unclaimedBackoff, nil
	}

	logger.Info("context gathered",
		"dm_requests", nestedInt(hc.DMStatus, "requests", "count"),
		"dm_unread", nestedInt(hc.DMStatus, "messages", "total_unread"),
		"feed", len(hc.Feed),
		"can_post", hc.State.CanPost,
		"can_comment", hc.State.CanComment,
	)
	a.notifier.CycleStart(ctx, notify.Cycle{
		Number:      cycle,
		Persona:     a.cfg.Persona.Name,
		ClaimStatus: hc.ClaimStatus,
		FeedCount:   len(hc.Feed),
	})

	contextJSON, err := json.MarshalIndent(hc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal context: %w", err)
	}

	loop := a.newAgent(ctx, a.systemPrompt(hc.State), a.registry())
	response, err := loop.Think(ctx, prompts.HeartbeatPrompt(string(contextJSON), hc.State))
	if err != nil {
		return 0, fmt.Errorf("think: %w", err)
	}
	logger.Info("agent responded", "response", truncateRunes(response, 300))

	now := time.Now()
	entry := truncateRunes(response, bufferEntryChars)
	if err := a.memory.AddToBuffer("assistant", entry, map[string]any{"cycle": now.UTC().Format(time.RFC3339)}); err != nil {
		logger.Warn("buffer write failed", "error", err)
	}

	ids := make([]string, 0, len(hc.Feed))
	for _, p := range hc.Feed {
		if id := moltbook.PostID(p); id != "" {
			ids = append(ids, id)
		}
	}
	if err := a.tracker.MarkCheck(ids); err != nil {
		logger.Warn("mark check failed", "error", err)
	}

	a.maybeDream(ctx, cycle)

	action := notify.InferAction(response)
	a.notifier.Decision(ctx, action, response)
	a.state.CompleteCycle(now, action)
	return poll, nil
}

// maybeDream starts a background consolidation when the policy is due.
// The dream outlives ctx cancellation so shutdown can wait for it.
func (a *app) maybeDream(ctx context.Context, cycle int) {
	if !a.policy.Due(cycle, a.tracker.DreamActionsSince()) {
		return
	}
	a.logger.Info("time for a dream", "cycle", cycle)
	if !a.dreamer.TryStart(context.WithoutCancel(ctx)) {
		return
	}
	if err := a.tracker.ResetDreamActions(); err != nil {
		a.logger.Warn("reset dream counter failed", "error", err)
	}
}

func (a *app) writeStatus() {
	if err := a.state.WriteStatus(a.cfg.Heartbeat.StatusFile); err != nil {
		a.logger.Warn("status write failed", "error", err)
	}
}

// nestedInt reads res[outer][inner] as an int, or 0.
func nestedInt(res moltbook.Result, outer, inner string) int {
	m, ok := res[outer].(map[string]any)
	if !ok {
		return 0
	}
	n, _ := m[inner].(float64)
	return int(n)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
