package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/moltbot/internal/httpkit"
)

// DefaultSerperURL is the Google search API root at serper.dev.
const DefaultSerperURL = "https://google.serper.dev"

// maxSerperResults is the most results a single call may request.
const maxSerperResults = 10

// Serper implements Provider and NewsProvider using serper.dev.
type Serper struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewSerper creates a Serper provider. An empty baseURL uses
// DefaultSerperURL.
func NewSerper(apiKey, baseURL string) *Serper {
	if baseURL == "" {
		baseURL = DefaultSerperURL
	}
	return &Serper{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15 * time.Second),
		),
	}
}

func (s *Serper) Name() string { return "serper" }

type serperResponse struct {
	Organic []serperResult `json:"organic"`
	News    []serperResult `json:"news"`
}

type serperResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
	Date    string `json:"date"`
}

// Search runs a Google web search.
func (s *Serper) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	sr, count, err := s.query(ctx, "/search", query, opts)
	if err != nil {
		return nil, err
	}
	return convertSerper(sr.Organic, count), nil
}

// News runs a Google News search.
func (s *Serper) News(ctx context.Context, query string, opts Options) ([]Result, error) {
	sr, count, err := s.query(ctx, "/news", query, opts)
	if err != nil {
		return nil, err
	}
	return convertSerper(sr.News, count), nil
}

func (s *Serper) query(ctx context.Context, path, query string, opts Options) (*serperResponse, int, error) {
	if query == "" {
		return nil, 0, fmt.Errorf("serper: query is required")
	}
	count := opts.Count
	if count <= 0 {
		count = 5
	}
	count = min(count, maxSerperResults)

	body := map[string]any{"q": query, "num": count}
	if opts.Language != "" {
		body["hl"] = opts.Language
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("serper: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("serper: build request: %w", err)
	}
	req.Header.Set("X-API-KEY", s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("serper: request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("serper: HTTP %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 512))
	}

	var sr serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, 0, fmt.Errorf("serper: decode response: %w", err)
	}
	return &sr, count, nil
}

func convertSerper(in []serperResult, count int) []Result {
	results := make([]Result, 0, min(len(in), count))
	for i, r := range in {
		if i >= count {
			break
		}
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
			Source:  r.Source,
			Date:    r.Date,
		})
	}
	return results
}
