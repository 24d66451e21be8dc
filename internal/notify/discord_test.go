package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type capture struct {
	mu       sync.Mutex
	payloads []webhookPayload
}

func (c *capture) last(t *testing.T) webhookPayload {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.payloads) == 0 {
		t.Fatal("no webhook payloads received")
	}
	return c.payloads[len(c.payloads)-1]
}

// newTestDiscord points a Discord notifier at a TLS test server.
func newTestDiscord(t *testing.T, status int) (*Discord, *capture) {
	t.Helper()
	c := &capture{}
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		c.mu.Lock()
		c.payloads = append(c.payloads, p)
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(ts.Close)

	d := NewDiscord(ts.URL+"/api/webhooks/1/abc", "MoltBot", slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.httpClient = ts.Client()
	d.now = func() time.Time { return time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC) }
	return d, c
}

func TestDiscord_CycleStart(t *testing.T) {
	d, c := newTestDiscord(t, http.StatusNoContent)
	d.CycleStart(context.Background(), Cycle{Number: 7, Persona: "crabby", ClaimStatus: "claimed", FeedCount: 12})

	p := c.last(t)
	if p.Username != "MoltBot" || len(p.Embeds) != 1 {
		t.Fatalf("payload = %+v", p)
	}
	e := p.Embeds[0]
	if e.Title != "⚡ Cycle Start: crabby" || e.Color != colorCycle || e.Timestamp != "2026-02-01T12:00:00Z" {
		t.Errorf("embed = %+v", e)
	}
	for _, want := range []string{"`7`", "`claimed`", "`12 new posts`"} {
		if !strings.Contains(e.Description, want) {
			t.Errorf("description %q missing %q", e.Description, want)
		}
	}
}

func TestDiscord_ToolCall(t *testing.T) {
	d, c := newTestDiscord(t, http.StatusNoContent)
	d.ToolCall(context.Background(), "dm_send", "", `{"error":"DM cooldown active. Wait 4 seconds."}`)

	e := c.last(t).Embeds[0]
	if e.Color != colorToolDM || len(e.Fields) != 2 {
		t.Fatalf("embed = %+v", e)
	}
	if e.Fields[0].Value != "```json\n{}\n```" {
		t.Errorf("args = %q", e.Fields[0].Value)
	}
	if !strings.Contains(e.Fields[1].Value, "Error: DM cooldown active.") {
		t.Errorf("result = %q", e.Fields[1].Value)
	}
}

func TestDiscord_BrainResponse(t *testing.T) {
	d, c := newTestDiscord(t, http.StatusNoContent)

	d.BrainResponse(context.Background(), "[Tool: get_feed]", "Commented on a shell post.")
	if got := len(c.last(t).Embeds); got != 2 {
		t.Errorf("embeds = %d, want 2", got)
	}

	d.BrainResponse(context.Background(), "", "  ")
	p := c.last(t)
	if len(p.Embeds) != 1 || p.Embeds[0].Description != "(no thinking or content)" {
		t.Errorf("empty response payload = %+v", p)
	}
}

func TestDiscord_DecisionAndError(t *testing.T) {
	d, c := newTestDiscord(t, http.StatusNoContent)

	d.Decision(context.Background(), "comment", strings.Repeat("x", 2000))
	e := c.last(t).Embeds[0]
	if e.Color != colorComment || !strings.HasSuffix(e.Description, "...") {
		t.Errorf("decision embed = %+v", e)
	}

	d.Error(context.Background(), "heartbeat", errors.New("feed timeout"))
	e = c.last(t).Embeds[0]
	if e.Title != "Error: heartbeat" || !strings.Contains(e.Description, "feed timeout") {
		t.Errorf("error embed = %+v", e)
	}
}

func TestDiscord_RejectedWebhookIsSilent(t *testing.T) {
	d, c := newTestDiscord(t, http.StatusTooManyRequests)
	d.Decision(context.Background(), "observe", "nothing")
	if c.last(t).Embeds[0].Color != colorObserve {
		t.Error("payload should still be sent")
	}
}

func TestNewDiscord_RequiresHTTPS(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer ts.Close()

	d := NewDiscord(ts.URL, "x", slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.Decision(context.Background(), "post", "hello")
	if hits != 0 {
		t.Error("plain-http webhook should be ignored")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"  padded  ", 10, "padded"},
		{"abcdefghij", 8, "abcde..."},
		{"ééééé", 4, "é..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestInferAction(t *testing.T) {
	tests := []struct {
		response string
		want     string
	}{
		{"I left a Comment on that post", "comment"},
		{"Created a new post about tides", "post"},
		{"Replied to the DM from riko", "dm"},
		{"Upvoted two posts", "post"},
		{"Just looked around", "observe"},
	}
	for _, tt := range tests {
		if got := InferAction(tt.response); got != tt.want {
			t.Errorf("InferAction(%q) = %q, want %q", tt.response, got, tt.want)
		}
	}
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	n.CycleStart(context.Background(), Cycle{})
	n.ToolCall(context.Background(), "x", "{}", "{}")
	n.BrainResponse(context.Background(), "", "")
	n.Decision(context.Background(), "observe", "")
	n.Error(context.Background(), "step", nil)
}
