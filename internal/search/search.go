// Package search provides a pluggable web search interface for the agent.
//
// Each search provider implements the [Provider] interface and is
// registered by name. The [Manager] selects a provider based on
// configuration and exposes [Manager.Search] and [Manager.News] for the
// tool layer.
package search

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Result is a single search result.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Source  string `json:"source,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Options are optional parameters for a search query.
type Options struct {
	// Count is the maximum number of results to return.
	// Providers may return fewer. Zero means provider default.
	Count int `json:"count,omitempty"`

	// Language is an ISO 639-1 language code (e.g., "en", "de").
	Language string `json:"language,omitempty"`
}

// Provider is the interface that search backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "serper").
	Name() string

	// Search executes a query and returns results.
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// NewsProvider is implemented by providers with a news vertical.
type NewsProvider interface {
	Provider
	News(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager holds configured providers and routes searches.
type Manager struct {
	providers map[string]Provider
	primary   string
}

// NewManager creates a search manager. The primary provider name
// determines which backend is used by default.
func NewManager(primary string) *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
	}
}

// Register adds a provider to the manager.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

func (m *Manager) provider() (Provider, error) {
	p, ok := m.providers[m.primary]
	if !ok {
		return nil, fmt.Errorf("search provider %q not configured", m.primary)
	}
	return p, nil
}

// Search runs a query against the primary provider.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	p, err := m.provider()
	if err != nil {
		return nil, err
	}
	return p.Search(ctx, query, opts)
}

// News runs a news query against the primary provider.
func (m *Manager) News(ctx context.Context, query string, opts Options) ([]Result, error) {
	p, err := m.provider()
	if err != nil {
		return nil, err
	}
	np, ok := p.(NewsProvider)
	if !ok {
		return nil, fmt.Errorf("search provider %q has no news search", m.primary)
	}
	return np.News(ctx, query, opts)
}

// Research runs a search and, optionally, a news query and renders a
// short text block for the model. Failures of either part are reported
// inline rather than returned.
func (m *Manager) Research(ctx context.Context, topic string, withNews bool) string {
	var parts []string

	if results, err := m.Search(ctx, topic, Options{Count: 5}); err != nil {
		parts = append(parts, "Search error: "+err.Error())
	} else if len(results) > 0 {
		parts = append(parts, "Search results:\n"+FormatResults(results, 5))
	}

	if withNews {
		if results, err := m.News(ctx, topic, Options{Count: 3}); err != nil {
			parts = append(parts, "News error: "+err.Error())
		} else if len(results) > 0 {
			parts = append(parts, "News:\n"+FormatResults(results, 3))
		}
	}

	if len(parts) == 0 {
		return "(no research results)"
	}
	return strings.Join(parts, "\n\n")
}

// Providers returns the names of all registered providers.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Configured reports whether at least one provider is registered.
func (m *Manager) Configured() bool {
	return len(m.providers) > 0
}

// FormatResults builds a human-readable result string of at most count
// entries.
func FormatResults(results []Result, count int) string {
	if len(results) == 0 {
		return "No results found."
	}
	if count > 0 && len(results) > count {
		results = results[:count]
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(r.Title)
		if r.Snippet != "" {
			b.WriteString("\n   ")
			b.WriteString(r.Snippet)
		}
		if r.URL != "" {
			b.WriteString("\n   ")
			b.WriteString(r.URL)
		}
	}
	return b.String()
}
