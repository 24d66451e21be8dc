package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nugget/moltbot/internal/agent"
	"github.com/nugget/moltbot/internal/appstate"
	"github.com/nugget/moltbot/internal/botstate"
	"github.com/nugget/moltbot/internal/config"
	"github.com/nugget/moltbot/internal/dream"
	"github.com/nugget/moltbot/internal/embeddings"
	"github.com/nugget/moltbot/internal/fetch"
	"github.com/nugget/moltbot/internal/llm"
	"github.com/nugget/moltbot/internal/memory"
	"github.com/nugget/moltbot/internal/moltbook"
	"github.com/nugget/moltbot/internal/notify"
	"github.com/nugget/moltbot/internal/prompts"
	"github.com/nugget/moltbot/internal/search"
	"github.com/nugget/moltbot/internal/tools"
)

// Data files under cfg.DataDir.
const (
	memoryFile  = "memory.json"
	trackerFile = "state.db"
)

// app wires every long-lived component the heartbeat needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	brain    *llm.Client
	moltbook *moltbook.Client
	tracker  *botstate.Tracker
	memory   *memory.Store
	search   *search.Manager
	fetcher  *fetch.Fetcher
	notifier notify.Notifier
	state    *appstate.State
	dreamer  *dream.Dreamer
	policy   dream.Policy

	closers []func()
}

// newApp builds the components described by cfg. The caller must
// Close the result.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	brain, err := newLLMClient(cfg.Brain, logger)
	if err != nil {
		return nil, fmt.Errorf("brain: %w", err)
	}
	a.brain = brain
	logger.Info("brain model configured", "provider", brain.Provider(), "model", brain.Model())

	embedder, closeEmbedder, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeEmbedder)
	a.memory = openMemory(cfg, embedder, logger)
	st := a.memory.Stats()
	logger.Info("memory loaded",
		"archival", a.memory.ArchivalCount(),
		"buffer", a.memory.BufferLen(),
		"reflections", st.ReflectionsDone,
	)

	tracker, err := botstate.NewTracker(filepath.Join(cfg.DataDir, trackerFile), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open tracker: %w", err)
	}
	a.tracker = tracker
	a.closers = append(a.closers, func() { tracker.Close() })

	a.moltbook = moltbook.NewClient(moltbook.Options{
		BaseURL:           cfg.Moltbook.BaseURL,
		APIKey:            cfg.Moltbook.APIKey,
		RequestsPerMinute: cfg.Moltbook.RequestsPerMinute,
	}, logger)

	a.search = search.NewManager("serper")
	if cfg.Search.Configured() {
		a.search.Register(search.NewSerper(cfg.Search.SerperAPIKey, ""))
		logger.Info("web search enabled", "providers", a.search.Providers())
	} else {
		logger.Warn("no search.serper_api_key configured, web search tools disabled")
	}
	a.fetcher = fetch.New()

	if cfg.Notify.DiscordWebhookURL != "" {
		a.notifier = notify.NewDiscord(cfg.Notify.DiscordWebhookURL, cfg.Notify.Username, logger)
	} else {
		a.notifier = notify.Nop{}
	}

	a.state = appstate.New(cfg.Persona.Name)

	run, err := a.sleepRunner()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dreamer = dream.New(a.memory, func(ctx context.Context, prompt string) (string, error) {
		a.state.SetDreaming(true)
		defer a.state.SetDreaming(false)
		return run(ctx, prompt)
	}, logger)
	a.policy = dream.Policy{
		EveryCycles:  cfg.Dream.EveryCycles,
		AfterActions: cfg.Dream.AfterActions,
	}

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// sleepRunner returns the model used for dreams: the dedicated sleep
// model when configured, otherwise the brain without tools.
func (a *app) sleepRunner() (dream.Runner, error) {
	if a.cfg.Sleep.Configured() {
		sleep, err := newLLMClient(a.cfg.Sleep, a.logger)
		if err != nil {
			return nil, fmt.Errorf("sleep: %w", err)
		}
		a.logger.Info("sleep model configured", "provider", sleep.Provider(), "model", sleep.Model())
		return sleep.SimpleCompletion, nil
	}
	loop := agent.New(a.brain, nil, agent.Config{
		Model:       a.cfg.Brain.Model,
		Temperature: a.cfg.Brain.Temperature,
	}, agent.Callbacks{}, a.logger)
	return loop.Think, nil
}

// registry builds a fresh tool registry with every tool group.
func (a *app) registry() *tools.Registry {
	reg := tools.NewRegistry()
	reg.SetMemoryTools(a.memory)
	reg.SetMoltbookTools(a.moltbook, a.tracker)
	reg.SetWebTools(a.search, a.fetcher)
	return reg
}

// newAgent builds the heartbeat agent. Callbacks log and fan out to
// the notifier.
func (a *app) newAgent(ctx context.Context, systemPrompt string, reg *tools.Registry) *agent.Loop {
	callbacks := agent.Callbacks{
		OnIteration: func(n int) {
			a.logger.Debug("thinking", "iteration", n)
		},
		OnToolCall: func(name, args, result string) {
			a.logger.Info("tool executed", "tool", name)
			a.notifier.ToolCall(ctx, name, args, result)
		},
		OnResponse: func(thinking, final string) {
			a.notifier.BrainResponse(ctx, thinking, final)
		},
	}
	return agent.New(a.brain, reg, agent.Config{
		Model:         a.cfg.Brain.Model,
		SystemPrompt:  systemPrompt,
		MaxIterations: a.cfg.Brain.MaxIterations,
		Temperature:   a.cfg.Brain.Temperature,
	}, callbacks, a.logger)
}

// systemPrompt renders the prompt from memory blocks, persona and the
// tracker summary.
func (a *app) systemPrompt(summary botstate.Summary) string {
	return prompts.SystemPrompt(prompts.Persona{
		Name:        a.cfg.Persona.Name,
		Description: a.cfg.Persona.Description,
	}, a.memory.BlockSummary(), summary)
}

// newLLMClient builds a client for one model section.
func newLLMClient(mc config.ModelConfig, logger *slog.Logger) (*llm.Client, error) {
	return llm.NewClient(llm.ProviderConfig{
		Provider: mc.Provider,
		Model:    mc.Model,
		BaseURL:  mc.BaseURL,
		APIKey:   mc.APIKey,
		Options:  mc.Options,
		NumCtx:   mc.NumCtx,
		Routing: llm.Routing{
			Only:           mc.OpenRouter.Only,
			Order:          mc.OpenRouter.Order,
			Ignore:         mc.OpenRouter.Ignore,
			AllowFallbacks: mc.OpenRouter.AllowFallbacks,
			Referer:        mc.OpenRouter.Referer,
			Title:          mc.OpenRouter.Title,
		},
	}, logger)
}

// newEmbedder builds the embeddings client. It returns a nil Embedder
// when embeddings are disabled; archival recall then falls back to
// keyword scoring. Unset provider, base URL and key follow the brain.
func newEmbedder(cfg *config.Config, logger *slog.Logger) (memory.Embedder, func(), error) {
	ec := cfg.Embeddings
	if ec.Provider == "none" {
		logger.Info("embeddings disabled, recall uses keyword scoring")
		return nil, func() {}, nil
	}
	provider := ec.Provider
	if provider == "" {
		provider = cfg.Brain.Provider
	}
	baseURL, apiKey := ec.BaseURL, ec.APIKey
	if provider == cfg.Brain.Provider {
		if baseURL == "" {
			baseURL = cfg.Brain.BaseURL
		}
		if apiKey == "" {
			apiKey = cfg.Brain.APIKey
		}
	}

	client, err := embeddings.New(embeddings.Config{
		Provider: provider,
		BaseURL:  baseURL,
		Model:    ec.Model,
		APIKey:   apiKey,
		CacheMB:  ec.CacheMB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("embeddings: %w", err)
	}
	logger.Info("embeddings configured", "provider", client.Provider(), "model", client.Model())
	return client, client.Close, nil
}

// openMemory opens the memory document under the data directory.
func openMemory(cfg *config.Config, embedder memory.Embedder, logger *slog.Logger) *memory.Store {
	return memory.Open(filepath.Join(cfg.DataDir, memoryFile), embedder, logger)
}
