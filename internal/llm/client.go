package llm

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
)

type adapterFactory func(ProviderConfig, *slog.Logger) (Adapter, error)

// providers maps configuration names to adapter constructors.
var providers = map[string]adapterFactory{
	"ollama": func(cfg ProviderConfig, logger *slog.Logger) (Adapter, error) {
		return NewOllamaAdapter(cfg, logger), nil
	},
	"openrouter": func(cfg ProviderConfig, logger *slog.Logger) (Adapter, error) {
		return NewOpenRouterAdapter(cfg, logger)
	},
}

// Providers returns the supported provider names, sorted.
func Providers() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Client is the provider-independent entry point. It holds exactly one
// Adapter and forwards to it.
type Client struct {
	adapter Adapter
}

// NewClient builds the adapter named by cfg.Provider.
func NewClient(cfg ProviderConfig, logger *slog.Logger) (*Client, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (supported: %s)", cfg.Provider, strings.Join(Providers(), ", "))
	}
	adapter, err := factory(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Client{adapter: adapter}, nil
}

// NewClientWithAdapter wraps an existing adapter.
func NewClientWithAdapter(a Adapter) *Client {
	return &Client{adapter: a}
}

// Provider returns the adapter's provider name.
func (c *Client) Provider() string { return c.adapter.Name() }

// Model returns the default model.
func (c *Client) Model() string { return c.adapter.Model() }

// CreateResponse forwards to the adapter.
func (c *Client) CreateResponse(ctx context.Context, req *Request) (*Response, error) {
	return c.adapter.CreateResponse(ctx, req)
}

// CreateResponseStream forwards to the adapter.
func (c *Client) CreateResponseStream(ctx context.Context, req *Request) iter.Seq2[StreamEvent, error] {
	return c.adapter.CreateResponseStream(ctx, req)
}

// SimpleCompletion sends prompt as a single user message without tools
// and returns the assistant text.
func (c *Client) SimpleCompletion(ctx context.Context, prompt string) (string, error) {
	resp, err := c.adapter.CreateResponse(ctx, &Request{InputText: prompt})
	if err != nil {
		return "", err
	}
	return resp.FirstText(), nil
}

// Ping checks provider reachability when the adapter supports it.
func (c *Client) Ping(ctx context.Context) error {
	if p, ok := c.adapter.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
