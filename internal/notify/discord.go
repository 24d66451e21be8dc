package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/moltbot/internal/httpkit"
)

// Discord limits.
const (
	maxEmbedTitle = 256
	maxEmbedDesc  = 4096
	maxFieldValue = 1024
	maxUsername   = 80
)

// Embed colors (0xRRGGBB).
const (
	colorCycle      = 0x6366F1
	colorToolWeb    = 0x3B82F6
	colorToolDM     = 0xF59E0B
	colorToolScrape = 0x14B8A6
	colorToolMemory = 0x8B5CF6
	colorTool       = 0x22C55E
	colorThinking   = 0x8B5CF6
	colorResponse   = 0x6366F1
	colorPost       = 0x22C55E
	colorComment    = 0x3B82F6
	colorDM         = 0xF59E0B
	colorObserve    = 0x64748B
	colorDecision   = 0xEB2B08
	colorError      = 0xEF4444
)

// Discord posts activity embeds to an incoming webhook.
type Discord struct {
	webhookURL string
	username   string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewDiscord creates a Discord notifier. Only https webhook URLs are
// accepted; anything else yields a notifier that drops every event.
func NewDiscord(webhookURL, username string, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	webhookURL = strings.TrimSpace(webhookURL)
	if !strings.HasPrefix(webhookURL, "https://") {
		if webhookURL != "" {
			logger.Warn("ignoring non-https discord webhook")
		}
		webhookURL = ""
	}
	return &Discord{
		webhookURL: webhookURL,
		username:   truncate(username, maxUsername),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(10 * time.Second)),
		logger:     logger.With("component", "discord"),
		now:        time.Now,
	}
}

type webhookPayload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []embed `json:"embeds"`
}

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color"`
	Fields      []field `json:"fields,omitempty"`
	Footer      *footer `json:"footer,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type footer struct {
	Text string `json:"text"`
}

// CycleStart announces a heartbeat.
func (d *Discord) CycleStart(ctx context.Context, c Cycle) {
	desc := fmt.Sprintf("**Cycle:** `%d`", c.Number)
	if c.ClaimStatus != "" {
		desc += fmt.Sprintf("\n**Status:** `%s`", c.ClaimStatus)
	}
	desc += fmt.Sprintf("\n**Feed:** `%d new posts`", c.FeedCount)
	d.send(ctx, embed{
		Title:       "⚡ Cycle Start: " + c.Persona,
		Description: desc,
		Color:       colorCycle,
		Footer:      &footer{Text: "Moltbot"},
	})
}

// ToolCall posts one tool card with arguments and result.
func (d *Discord) ToolCall(ctx context.Context, name, args, result string) {
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	d.send(ctx, embed{
		Title: "Tool: `" + name + "`",
		Color: toolColor(name),
		Fields: []field{
			{Name: "Args", Value: "```json\n" + truncate(args, 500) + "\n```"},
			{Name: "Result", Value: "```\n" + formatResult(result, 800) + "\n```"},
		},
		Footer: &footer{Text: "Tool: " + name},
	})
}

// BrainResponse posts the reasoning trace and the final text.
func (d *Discord) BrainResponse(ctx context.Context, thinking, final string) {
	var embeds []embed
	if t := strings.TrimSpace(thinking); t != "" {
		embeds = append(embeds, embed{Title: "Brain: thinking", Description: t, Color: colorThinking, Footer: &footer{Text: "Reasoning trace"}})
	}
	if f := strings.TrimSpace(final); f != "" {
		embeds = append(embeds, embed{Title: "Brain: response", Description: f, Color: colorResponse, Footer: &footer{Text: "Final output"}})
	}
	if len(embeds) == 0 {
		embeds = append(embeds, embed{Title: "Brain: response", Description: "(no thinking or content)", Color: colorResponse})
	}
	d.send(ctx, embeds...)
}

// Decision posts the heartbeat's headline action.
func (d *Discord) Decision(ctx context.Context, action, reason string) {
	d.send(ctx, embed{
		Title:       "Decision",
		Description: fmt.Sprintf("**Action:** `%s`\n\n**Reason:**\n%s", action, truncate(reason, 800)),
		Color:       decisionColor(action),
		Footer:      &footer{Text: "Action: " + action},
	})
}

// Error posts a failed step.
func (d *Discord) Error(ctx context.Context, step string, err error) {
	msg := "(unknown error)"
	if err != nil {
		msg = err.Error()
	}
	d.send(ctx, embed{
		Title:       "Error: " + step,
		Description: "```\n" + truncate(msg, 1500) + "\n```",
		Color:       colorError,
	})
}

func (d *Discord) send(ctx context.Context, embeds ...embed) {
	if d.webhookURL == "" {
		return
	}
	ts := d.now().UTC().Format(time.RFC3339)
	for i := range embeds {
		e := &embeds[i]
		e.Title = truncate(e.Title, maxEmbedTitle)
		e.Description = truncate(e.Description, maxEmbedDesc)
		for j := range e.Fields {
			e.Fields[j].Value = truncate(e.Fields[j].Value, maxFieldValue)
		}
		e.Timestamp = ts
	}

	body, err := json.Marshal(webhookPayload{Username: d.username, Embeds: embeds})
	if err != nil {
		d.logger.Debug("discord marshal failed", "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		d.logger.Debug("discord request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		d.logger.Debug("discord send failed", "error", err)
		return
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	// Discord returns 204 on success.
	if resp.StatusCode >= 400 {
		d.logger.Debug("discord webhook rejected", "status", resp.StatusCode, "body", httpkit.ReadErrorBody(resp.Body, 200))
	}
}

func toolColor(name string) int {
	n := strings.ToLower(name)
	switch {
	case strings.HasPrefix(n, "web_") || n == "research_topic":
		return colorToolWeb
	case strings.HasPrefix(n, "dm_") || strings.Contains(n, "conversation"):
		return colorToolDM
	case strings.Contains(n, "scrape"):
		return colorToolScrape
	case strings.Contains(n, "memory") || strings.Contains(n, "memories"):
		return colorToolMemory
	}
	return colorTool
}

func decisionColor(action string) int {
	switch strings.ToLower(action) {
	case "post":
		return colorPost
	case "comment":
		return colorComment
	case "dm":
		return colorDM
	case "observe":
		return colorObserve
	}
	return colorDecision
}

// formatResult renders a tool result for a card: empty results get a
// readable placeholder and {"error":...} objects are unwrapped.
func formatResult(result string, limit int) string {
	s := strings.TrimSpace(result)
	switch s {
	case "":
		return "(empty)"
	case "[]", "{}":
		return "(no results)"
	}
	var obj map[string]any
	if json.Unmarshal([]byte(s), &obj) == nil {
		if e, ok := obj["error"].(string); ok && e != "" {
			return truncate("Error: "+e, limit)
		}
	}
	return truncate(s, limit)
}

// truncate shortens s to at most limit runes, marking the cut with "...".
func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
