// Package embeddings provides vector embedding generation via Ollama or
// an OpenAI-style embeddings endpoint, with an in-process cache.
package embeddings

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/nugget/moltbot/internal/httpkit"
)

// Supported providers.
const (
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
)

// ErrEmptyText is returned when asked to embed blank text.
var ErrEmptyText = errors.New("embeddings: empty text")

// Client generates embeddings and caches them by model and text.
type Client struct {
	provider string
	baseURL  string
	model    string
	apiKey   string
	client   *http.Client
	cache    *ristretto.Cache[string, []float32]
}

// Config for embedding client.
type Config struct {
	Provider string // ollama (default), openrouter, openai
	BaseURL  string // e.g. "http://localhost:11434"; a trailing /v1 is stripped for Ollama
	Model    string
	APIKey   string
	CacheMB  int // zero disables the cache
}

// New creates an embedding client.
func New(cfg Config) (*Client, error) {
	c := &Client{
		provider: cfg.Provider,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(2, time.Second),
		),
	}

	switch c.provider {
	case "", ProviderOllama:
		c.provider = ProviderOllama
		if c.baseURL == "" {
			c.baseURL = "http://localhost:11434"
		}
		c.baseURL = strings.TrimSuffix(c.baseURL, "/v1")
		if c.model == "" {
			c.model = "qwen3-embedding:0.6b"
		}
	case ProviderOpenRouter:
		if c.baseURL == "" {
			c.baseURL = "https://openrouter.ai/api/v1"
		}
		if c.model == "" {
			c.model = "openai/text-embedding-3-small"
		}
	case ProviderOpenAI:
		if c.baseURL == "" {
			c.baseURL = "https://api.openai.com/v1"
		}
		if c.model == "" {
			c.model = "text-embedding-3-small"
		}
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}

	if cfg.CacheMB > 0 {
		maxCost := int64(cfg.CacheMB) << 20
		cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
			NumCounters: maxCost / 4096 * 10, // ~10x expected vectors of ~1k dims
			MaxCost:     maxCost,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedding cache: %w", err)
		}
		c.cache = cache
	}
	return c, nil
}

// Provider returns the configured provider name.
func (c *Client) Provider() string { return c.provider }

// Model returns the embedding model.
func (c *Client) Model() string { return c.model }

// Close releases the cache.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

func (c *Client) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.provider + "/" + c.model + "/" + hex.EncodeToString(sum[:])
}

// Generate creates an embedding for the given text.
func (c *Client) Generate(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	key := c.cacheKey(text)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}
	}

	var (
		vec []float32
		err error
	)
	if c.provider == ProviderOllama {
		vec, err = c.generateOllama(ctx, text)
	} else {
		vec, err = c.generateOpenAI(ctx, text)
	}
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%s returned an empty embedding", c.provider)
	}

	if c.cache != nil {
		c.cache.Set(key, vec, int64(len(vec)*4))
	}
	return vec, nil
}

// ollamaRequest is the Ollama native embedding API request.
type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *Client) generateOllama(ctx context.Context, text string) ([]float32, error) {
	var out ollamaResponse
	if err := c.post(ctx, c.baseURL+"/api/embeddings", nil, ollamaRequest{Model: c.model, Prompt: text}, &out); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

type openAIRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) generateOpenAI(ctx context.Context, text string) ([]float32, error) {
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if c.provider == ProviderOpenRouter {
		headers["HTTP-Referer"] = "https://github.com/nugget/moltbot"
		headers["X-Title"] = "Moltbot"
	}
	var out openAIResponse
	if err := c.post(ctx, c.baseURL+"/embeddings", headers, openAIRequest{Model: c.model, Input: text}, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	return out.Data[0].Embedding, nil
}

func (c *Client) post(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 512)
		return fmt.Errorf("%s returned status %d: %s", c.provider, resp.StatusCode, errBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
