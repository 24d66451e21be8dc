// Package config handles Moltbot configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/moltbot/config.yaml, /etc/moltbot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "moltbot", "config.yaml"))
	}

	paths = append(paths, "/etc/moltbot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Provider names accepted in brain.provider and sleep.provider.
const (
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
)

// Config holds all Moltbot configuration.
type Config struct {
	Moltbook   MoltbookConfig   `yaml:"moltbook"`
	Persona    PersonaConfig    `yaml:"persona"`
	Brain      ModelConfig      `yaml:"brain"`
	Sleep      ModelConfig      `yaml:"sleep"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Dream      DreamConfig      `yaml:"dream"`
	Heartbeat  HeartbeatConfig  `yaml:"heartbeat"`
	Search     SearchConfig     `yaml:"search"`
	Notify     NotifyConfig     `yaml:"notify"`
	DataDir    string           `yaml:"data_dir"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"` // text (default) or json
}

// MoltbookConfig defines the social network API connection.
type MoltbookConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// RequestsPerMinute paces outbound API calls. Zero uses the default.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// PersonaConfig names the agent and describes its personality.
type PersonaConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ModelConfig selects an LLM provider and model. It is used for both
// the main "brain" and the optional, usually cheaper, sleep model.
type ModelConfig struct {
	Provider string `yaml:"provider"` // ollama or openrouter
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`

	// Options are merged into the Ollama request options
	// (num_batch, num_gpu, kv_cache_type, ...).
	Options map[string]any `yaml:"options"`
	NumCtx  int            `yaml:"num_ctx"`

	Temperature   *float64 `yaml:"temperature"`
	MaxIterations int      `yaml:"max_iterations"`

	OpenRouter OpenRouterConfig `yaml:"openrouter"`
}

// Configured reports whether a model has been selected.
func (c ModelConfig) Configured() bool {
	return c.Model != ""
}

// OpenRouterConfig holds provider routing preferences forwarded to
// OpenRouter, plus the attribution headers it recommends.
type OpenRouterConfig struct {
	Only           []string `yaml:"only"`
	Order          []string `yaml:"order"`
	Ignore         []string `yaml:"ignore"`
	AllowFallbacks *bool    `yaml:"allow_fallbacks"`
	Referer        string   `yaml:"referer"`
	Title          string   `yaml:"title"`
}

// EmbeddingsConfig defines embedding generation settings. An empty
// provider follows the brain provider; "none" disables embeddings and
// archival recall falls back to keyword scoring.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider"` // ollama, openrouter, openai, none
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	CacheMB  int    `yaml:"cache_mb"`
}

// DreamConfig controls when memory consolidation runs. EveryCycles
// triggers on heartbeat count; AfterActions, when positive, triggers
// after that many mutating actions instead.
type DreamConfig struct {
	EveryCycles  int `yaml:"every_cycles"`
	AfterActions int `yaml:"after_actions"`
}

// HeartbeatConfig controls the main loop cadence.
type HeartbeatConfig struct {
	PollMinutes  int    `yaml:"poll_minutes"`
	ErrorBackoff string `yaml:"error_backoff"` // Go duration, default 30s
	StatusFile   string `yaml:"status_file"`   // optional JSON snapshot path
}

// ErrorBackoffDuration parses ErrorBackoff, falling back to 30s.
func (c HeartbeatConfig) ErrorBackoffDuration() time.Duration {
	if d, err := time.ParseDuration(c.ErrorBackoff); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// SearchConfig enables the web search tools.
type SearchConfig struct {
	SerperAPIKey string `yaml:"serper_api_key"`
}

// Configured reports whether a search backend is available.
func (c SearchConfig) Configured() bool {
	return c.SerperAPIKey != ""
}

// NotifyConfig defines the optional Discord webhook sink.
type NotifyConfig struct {
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
	Username          string `yaml:"username"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Moltbook.BaseURL == "" {
		c.Moltbook.BaseURL = "https://www.moltbook.com/api/v1"
	}
	if c.Moltbook.RequestsPerMinute <= 0 {
		c.Moltbook.RequestsPerMinute = 60
	}
	if c.Persona.Name == "" {
		c.Persona.Name = "moltbot"
	}
	if c.Brain.Provider == "" {
		c.Brain.Provider = ProviderOllama
	}
	if c.Brain.Model == "" {
		c.Brain.Model = defaultModel(c.Brain.Provider)
	}
	if c.Brain.BaseURL == "" {
		c.Brain.BaseURL = defaultBaseURL(c.Brain.Provider)
	}
	if c.Brain.MaxIterations <= 0 {
		c.Brain.MaxIterations = 10
	}
	if c.Sleep.Configured() {
		if c.Sleep.Provider == "" {
			c.Sleep.Provider = c.Brain.Provider
		}
		if c.Sleep.BaseURL == "" {
			if c.Sleep.Provider == c.Brain.Provider {
				c.Sleep.BaseURL = c.Brain.BaseURL
			} else {
				c.Sleep.BaseURL = defaultBaseURL(c.Sleep.Provider)
			}
		}
		if c.Sleep.APIKey == "" && c.Sleep.Provider == c.Brain.Provider {
			c.Sleep.APIKey = c.Brain.APIKey
		}
		if c.Sleep.Options == nil && c.Sleep.Provider == c.Brain.Provider {
			c.Sleep.Options = c.Brain.Options
		}
	}
	if c.Dream.EveryCycles <= 0 {
		c.Dream.EveryCycles = 5
	}
	if c.Heartbeat.PollMinutes <= 0 {
		c.Heartbeat.PollMinutes = 3
	}
	if c.Embeddings.CacheMB <= 0 {
		c.Embeddings.CacheMB = 16
	}
	if c.Notify.Username == "" {
		c.Notify.Username = "MoltBot"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
}

func defaultModel(provider string) string {
	switch provider {
	case ProviderOpenRouter:
		return "openai/gpt-4o"
	default:
		return "qwen3:4b"
	}
}

func defaultBaseURL(provider string) string {
	switch provider {
	case ProviderOpenRouter:
		return "https://openrouter.ai/api/v1"
	default:
		return "http://localhost:11434/v1"
	}
}

// Validate checks the configuration for errors that would only surface
// later at runtime. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q: expected text or json", c.LogFormat))
	}

	errs = append(errs, validateModel("brain", c.Brain)...)
	if c.Sleep.Configured() {
		errs = append(errs, validateModel("sleep", c.Sleep)...)
	}

	switch c.Embeddings.Provider {
	case "", "none", "ollama", "openrouter", "openai":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider %q: expected ollama, openrouter, openai, or none", c.Embeddings.Provider))
	}

	if c.Heartbeat.ErrorBackoff != "" {
		if _, err := time.ParseDuration(c.Heartbeat.ErrorBackoff); err != nil {
			errs = append(errs, fmt.Errorf("heartbeat.error_backoff %q: %w", c.Heartbeat.ErrorBackoff, err))
		}
	}

	return errors.Join(errs...)
}

func validateModel(section string, m ModelConfig) []error {
	var errs []error
	switch m.Provider {
	case ProviderOllama:
	case ProviderOpenRouter:
		if m.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s.api_key is required for provider openrouter", section))
		}
	default:
		errs = append(errs, fmt.Errorf("%s.provider %q: expected ollama or openrouter", section, m.Provider))
	}
	if m.Model == "" {
		errs = append(errs, fmt.Errorf("%s.model is required", section))
	}
	return errs
}
