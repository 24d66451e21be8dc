package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractHTML(t *testing.T) {
	raw := `<!DOCTYPE html>
<html>
<head>
<title>  Molting
  Season </title>
<meta name="description" content="Notes on shedding shells">
</head>
<body>
<header>Site header</header>
<nav>Navigation stuff</nav>
<script>var x = 1;</script>
<style>.foo { color: red; }</style>
<aside>Trending submolts</aside>
<main>
<h1>Hello World</h1>
<p>This is a test paragraph with <strong>bold text</strong>.</p>
<ul><li>first claw</li><li>second claw</li></ul>
<form><button>Subscribe</button></form>
<p hidden>secret draft</p>
<h2>Later</h2>
<p>Second paragraph.</p>
</main>
<footer>Footer stuff</footer>
</body>
</html>`

	pg := extractHTML(raw)

	if pg.Title != "Molting Season" {
		t.Errorf("title = %q", pg.Title)
	}
	if pg.Description != "Notes on shedding shells" {
		t.Errorf("description = %q", pg.Description)
	}
	for _, want := range []string{"# Hello World", "bold text", "- first claw\n- second claw", "## Later\n\nSecond paragraph."} {
		if !strings.Contains(pg.Text, want) {
			t.Errorf("text missing %q:\n%s", want, pg.Text)
		}
	}
	for _, unwanted := range []string{"var x = 1", "Navigation", "Footer", "Site header", "Trending", "Subscribe", "secret draft"} {
		if strings.Contains(pg.Text, unwanted) {
			t.Errorf("text should not contain %q:\n%s", unwanted, pg.Text)
		}
	}
}

func TestExtractHTML_ContentRoot(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		exclude string
	}{
		{
			name:    "single article",
			body:    `<div>Sidebar junk</div><article><p>The post body</p></article>`,
			want:    "The post body",
			exclude: "Sidebar junk",
		},
		{
			name: "several articles use the body",
			body: `<div>Feed intro</div><article><p>post one</p></article><article><p>post two</p></article>`,
			want: "Feed intro",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pg := extractHTML("<html><body>" + tt.body + "</body></html>")
			if !strings.Contains(pg.Text, tt.want) {
				t.Errorf("text = %q, want %q", pg.Text, tt.want)
			}
			if tt.exclude != "" && strings.Contains(pg.Text, tt.exclude) {
				t.Errorf("text = %q, should not contain %q", pg.Text, tt.exclude)
			}
		})
	}
}

func TestExtractHTML_OpenGraphFallback(t *testing.T) {
	pg := extractHTML(`<html><head>
<meta property="og:title" content="A Molty Post">
<meta property="og:description" content="shared from moltbook">
</head><body><p>hi</p></body></html>`)
	if pg.Title != "A Molty Post" || pg.Description != "shared from moltbook" {
		t.Errorf("page = %+v", pg)
	}
}

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify User-Agent is set
		ua := r.Header.Get("User-Agent")
		if !strings.HasPrefix(ua, "Moltbot/") {
			t.Errorf("expected Moltbot User-Agent, got %q", ua)
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Test</title><meta name="description" content="A test page"></head><body><p>Hello from test server</p></body></html>`))
	}))
	defer ts.Close()

	f := New()
	result, err := f.Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if result.Title != "Test" {
		t.Errorf("expected title 'Test', got %q", result.Title)
	}
	if !strings.Contains(result.Content, "Hello from test server") {
		t.Errorf("expected content to contain 'Hello from test server', got %q", result.Content)
	}
	if result.Description != "A test page" {
		t.Errorf("expected description 'A test page', got %q", result.Description)
	}
	if result.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", result.StatusCode)
	}
}

func TestFetchPlainText(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Just plain text content"))
	}))
	defer ts.Close()

	f := New()
	result, err := f.Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if result.Content != "Just plain text content" {
		t.Errorf("expected plain text content, got %q", result.Content)
	}
}

func TestFetchTruncation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer ts.Close()

	f := New()
	result, err := f.Fetch(context.Background(), ts.URL, 100)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if !result.Truncated {
		t.Error("expected truncated=true")
	}
	if result.Length > 100 {
		t.Errorf("expected length <= 100, got %d", result.Length)
	}
}

func TestFetchURLNormalization(t *testing.T) {
	f := New()
	_, err := f.Fetch(context.Background(), "", 0)
	if err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestCleanWhitespace(t *testing.T) {
	input := "  Hello   world  \n\n\n\n  Second line  \n\n\n Third  "
	got := cleanWhitespace(input)
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("should not have triple newlines: %q", got)
	}
}

func TestTruncateUTF8(t *testing.T) {
	// Ensure we don't break multi-byte characters
	s := "Héllo wörld café"
	truncated := truncateUTF8(s, 5)
	if len([]rune(truncated)) > 5 {
		t.Errorf("expected at most 5 runes, got %d: %q", len([]rune(truncated)), truncated)
	}
}

func TestFetchRejectsSchemes(t *testing.T) {
	f := New()
	for _, u := range []string{"ftp://example.com/file", "file:///etc/passwd", "https://"} {
		if _, err := f.Fetch(context.Background(), u, 0); err == nil {
			t.Errorf("Fetch(%q) should fail", u)
		}
	}
}

func TestFetchHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer ts.Close()

	_, err := New().Fetch(context.Background(), ts.URL, 0)
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("expected HTTP 404 error, got %v", err)
	}
}

func TestFetchMaxBytes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("y", 500)))
	}))
	defer ts.Close()

	f := New(WithMaxBytes(64), WithHTTPClient(ts.Client()))
	result, err := f.Fetch(context.Background(), ts.URL, 0)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Length != 64 || result.Truncated {
		t.Errorf("Length = %d, Truncated = %v; want 64, false", result.Length, result.Truncated)
	}
}
