package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{
			name:     "identical",
			a:        []float32{1, 0, 0},
			b:        []float32{1, 0, 0},
			expected: 1.0,
		},
		{
			name:     "orthogonal",
			a:        []float32{1, 0},
			b:        []float32{0, 1},
			expected: 0.0,
		},
		{
			name:     "opposite",
			a:        []float32{1, 1},
			b:        []float32{-1, -1},
			expected: -1.0,
		},
		{
			name:     "mismatched length",
			a:        []float32{1},
			b:        []float32{1, 2},
			expected: 0.0,
		},
		{
			name:     "zero vector",
			a:        []float32{0, 0},
			b:        []float32{1, 2},
			expected: 0.0,
		},
		{
			name:     "empty",
			expected: 0.0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineSimilarity(tc.a, tc.b)
			if math.Abs(float64(got-tc.expected)) > 0.0001 {
				t.Errorf("got %f, want %f", got, tc.expected)
			}
		})
	}
}

func TestGenerate_Ollama(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %q, want /api/embeddings", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"embedding":[0.1,0.2,0.3]}`)
	}))
	defer srv.Close()

	// A /v1 suffix from a shared chat base URL is stripped.
	c, err := New(Config{BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	vec, err := c.Generate(context.Background(), "cats like naps")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("len = %d, want 3", len(vec))
	}
	if got.Model != "qwen3-embedding:0.6b" || got.Prompt != "cats like naps" {
		t.Errorf("request = %+v", got)
	}
}

func TestGenerate_OpenAIStyle(t *testing.T) {
	var auth, title string
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		title = r.Header.Get("X-Title")
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"data":[{"embedding":[1,0]}]}`)
	}))
	defer srv.Close()

	c, err := New(Config{Provider: ProviderOpenRouter, BaseURL: srv.URL, APIKey: "sk-or"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vec, err := c.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(vec) != 2 || vec[0] != 1 {
		t.Errorf("vec = %v", vec)
	}
	if auth != "Bearer sk-or" || title != "Moltbot" {
		t.Errorf("headers: auth=%q title=%q", auth, title)
	}
	if got.Model != "openai/text-embedding-3-small" || got.Input != "hello" {
		t.Errorf("request = %+v", got)
	}
}

func TestGenerate_CachesByText(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		io.WriteString(w, `{"embedding":[0.5,0.5]}`)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, CacheMB: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if _, err := c.Generate(ctx, "same"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	c.cache.Wait()
	if _, err := c.Generate(ctx, "same"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hits = %d, want 1 (second call cached)", n)
	}
}

func TestGenerate_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Generate(context.Background(), "x"); err == nil {
		t.Error("expected error on 500")
	}
	if _, err := c.Generate(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("blank text err = %v, want ErrEmptyText", err)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "cohere"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
