package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nugget/moltbot/internal/fetch"
	"github.com/nugget/moltbot/internal/search"
)

func newSerperServer(t *testing.T) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var bodies []map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		switch r.URL.Path {
		case "/news":
			w.Write([]byte(`{"news":[{"title":"Crab news","link":"https://n.example"}]}`))
		default:
			w.Write([]byte(`{"organic":[{"title":"Crab facts","link":"https://c.example","snippet":"ten legs"}]}`))
		}
	}))
	t.Cleanup(ts.Close)
	return ts, &bodies
}

func TestSetWebTools_Registration(t *testing.T) {
	r := NewRegistry()
	r.SetWebTools(nil, nil)
	if r.Len() != 0 {
		t.Errorf("nil deps registered %v", r.Names())
	}

	r = NewRegistry()
	r.SetWebTools(search.NewManager("serper"), fetch.New())
	if got := strings.Join(r.Names(), ","); got != "scrape_page" {
		t.Errorf("unconfigured search registered %s", got)
	}
}

func TestWebSearchTools(t *testing.T) {
	ts, bodies := newSerperServer(t)
	mgr := search.NewManager("serper")
	mgr.Register(search.NewSerper("k", ts.URL))

	r := NewRegistry()
	r.SetWebTools(mgr, nil)

	res := execJSON(t, r, "web_search", `{"query":"crabs","num_results":25}`)
	results, _ := res["results"].([]any)
	if len(results) != 1 || results[0].(map[string]any)["url"] != "https://c.example" {
		t.Errorf("web_search = %v", res)
	}
	if (*bodies)[0]["num"] != float64(maxWebResults) {
		t.Errorf("num = %v, want %d", (*bodies)[0]["num"], maxWebResults)
	}

	res = execJSON(t, r, "web_news", `{"query":"crabs"}`)
	if results, _ := res["results"].([]any); len(results) != 1 {
		t.Errorf("web_news = %v", res)
	}

	out, err := r.Execute(context.Background(), "research_topic", `{"topic":"crabs"}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Crab facts") || !strings.Contains(out, "Crab news") {
		t.Errorf("research_topic = %q", out)
	}
}

func TestScrapePage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Shells</title></head><body><p>Molting season is here.</p></body></html>`))
	}))
	defer ts.Close()

	r := NewRegistry()
	r.SetWebTools(nil, fetch.New())

	res := execJSON(t, r, "scrape_page", `{"url":"`+ts.URL+`"}`)
	if res["title"] != "Shells" || !strings.Contains(res["content"].(string), "Molting season") {
		t.Errorf("scrape_page = %v", res)
	}
	if _, err := r.Execute(context.Background(), "scrape_page", `{}`); err == nil {
		t.Error("missing url should fail")
	}
}
