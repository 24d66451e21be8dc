// Package moltbook provides a client for the Moltbook social network API.
package moltbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nugget/moltbot/internal/httpkit"
)

// DefaultBaseURL is the production API root. The API key must never be
// sent anywhere else.
const DefaultBaseURL = "https://www.moltbook.com/api/v1"

// defaultRetryAfter applies to a 429 without a usable Retry-After.
const defaultRetryAfter = 60 * time.Second

// Result is a decoded API response. Moltbook responses are loosely
// shaped and mostly passed straight to the model, so they stay untyped.
type Result = map[string]any

// APIError is a non-2xx application response. It is never retried; the
// transport layer only retries connection failures.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	RetryAfter time.Duration // set for 429
}

func (e *APIError) Error() string {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Sprintf("moltbook %s %s: rate limited (retry after %s)", e.Method, e.Path, e.RetryAfter)
	case http.StatusUnauthorized:
		return fmt.Sprintf("moltbook %s %s: unauthorized", e.Method, e.Path)
	}
	return fmt.Sprintf("moltbook %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unauthorized reports whether the API key was rejected.
func (e *APIError) Unauthorized() bool { return e.StatusCode == http.StatusUnauthorized }

// RateLimited reports whether the request hit a server-side rate limit.
func (e *APIError) RateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	// RequestsPerMinute paces outbound calls. Zero means 60.
	RequestsPerMinute int
	// HTTPClient overrides the default retrying client (tests).
	HTTPClient *http.Client
}

// Client is a Moltbook REST API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Moltbook client.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	rpm := opts.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = httpkit.NewClient(
			httpkit.WithTimeout(60*time.Second),
			httpkit.WithRetry(2, time.Second),
			httpkit.WithLogger(logger),
		)
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), max(1, rpm/10)),
		logger:     logger.With("component", "moltbook"),
	}
}

// Account

// Status returns the claim status ("pending_claim" or "claimed").
func (c *Client) Status(ctx context.Context) (Result, error) {
	return c.get(ctx, "/agents/status", nil)
}

// Me returns the agent's own profile.
func (c *Client) Me(ctx context.Context) (Result, error) {
	return c.get(ctx, "/agents/me", nil)
}

// Profile returns another molty's profile.
func (c *Client) Profile(ctx context.Context, name string) (Result, error) {
	return c.get(ctx, "/agents/profile", url.Values{"name": {name}})
}

// UpdateProfile patches the agent's description and metadata. Empty
// values are left unchanged.
func (c *Client) UpdateProfile(ctx context.Context, description string, metadata map[string]any) (Result, error) {
	body := map[string]any{}
	if description != "" {
		body["description"] = description
	}
	if len(metadata) > 0 {
		body["metadata"] = metadata
	}
	return c.do(ctx, http.MethodPatch, "/agents/me", nil, body)
}

// Posts

// NewPost is the body of CreatePost. Content is optional for link posts.
type NewPost struct {
	Submolt string `json:"submolt"`
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url,omitempty"`
}

// Feed returns the personalized feed (subscriptions and follows).
func (c *Client) Feed(ctx context.Context, sort string, limit int) (Result, error) {
	return c.get(ctx, "/feed", url.Values{"sort": {orDefault(sort, "hot")}, "limit": {strconv.Itoa(limitOr(limit, 25))}})
}

// Posts returns posts from all of Moltbook, optionally limited to one
// submolt.
func (c *Client) Posts(ctx context.Context, sort string, limit int, submolt string) (Result, error) {
	q := url.Values{"sort": {orDefault(sort, "hot")}, "limit": {strconv.Itoa(limitOr(limit, 25))}}
	if submolt != "" {
		q.Set("submolt", submolt)
	}
	return c.get(ctx, "/posts", q)
}

// SubmoltFeed returns posts from one submolt.
func (c *Client) SubmoltFeed(ctx context.Context, name, sort string) (Result, error) {
	return c.get(ctx, "/submolts/"+url.PathEscape(name)+"/feed", url.Values{"sort": {orDefault(sort, "new")}})
}

// Post returns a single post with full details.
func (c *Client) Post(ctx context.Context, id string) (Result, error) {
	return c.get(ctx, "/posts/"+url.PathEscape(id), nil)
}

// CreatePost publishes a post.
func (c *Client) CreatePost(ctx context.Context, p NewPost) (Result, error) {
	return c.do(ctx, http.MethodPost, "/posts", nil, p)
}

// DeletePost removes one of the agent's own posts.
func (c *Client) DeletePost(ctx context.Context, id string) (Result, error) {
	return c.do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(id), nil, nil)
}

// Comments

// Comments lists comments on a post. Sort is top, new or controversial.
func (c *Client) Comments(ctx context.Context, postID, sort string) (Result, error) {
	return c.get(ctx, "/posts/"+url.PathEscape(postID)+"/comments", url.Values{"sort": {orDefault(sort, "top")}})
}

// AddComment comments on a post, or replies to parentID when set.
func (c *Client) AddComment(ctx context.Context, postID, content, parentID string) (Result, error) {
	body := map[string]any{"content": content}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	return c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments", nil, body)
}

// Votes

// Vote targets.
const (
	VotePost    = "posts"
	VoteComment = "comments"
)

// Vote up- or downvotes a post or comment.
func (c *Client) Vote(ctx context.Context, kind, id string, up bool) (Result, error) {
	if kind != VotePost && kind != VoteComment {
		return nil, fmt.Errorf("unknown vote target %q", kind)
	}
	dir := "downvote"
	if up {
		dir = "upvote"
	}
	return c.do(ctx, http.MethodPost, "/"+kind+"/"+url.PathEscape(id)+"/"+dir, nil, nil)
}

// Submolts

// Submolts lists all communities.
func (c *Client) Submolts(ctx context.Context) (Result, error) {
	return c.get(ctx, "/submolts", nil)
}

// Submolt returns community info, including the agent's role in it.
func (c *Client) Submolt(ctx context.Context, name string) (Result, error) {
	return c.get(ctx, "/submolts/"+url.PathEscape(name), nil)
}

// CreateSubmolt creates a community owned by the agent.
func (c *Client) CreateSubmolt(ctx context.Context, name, displayName, description string) (Result, error) {
	return c.do(ctx, http.MethodPost, "/submolts", nil, map[string]any{
		"name":         name,
		"display_name": displayName,
		"description":  description,
	})
}

// Subscribe subscribes to (on) or unsubscribes from a submolt.
func (c *Client) Subscribe(ctx context.Context, name string, on bool) (Result, error) {
	return c.do(ctx, toggleMethod(on), "/submolts/"+url.PathEscape(name)+"/subscribe", nil, nil)
}

// Follow follows (on) or unfollows another molty.
func (c *Client) Follow(ctx context.Context, name string, on bool) (Result, error) {
	return c.do(ctx, toggleMethod(on), "/agents/"+url.PathEscape(name)+"/follow", nil, nil)
}

// Search runs Moltbook's semantic search. Type is posts, comments or all.
func (c *Client) Search(ctx context.Context, query, typ string, limit int) (Result, error) {
	return c.get(ctx, "/search", url.Values{
		"q":     {query},
		"type":  {orDefault(typ, "all")},
		"limit": {strconv.Itoa(limitOr(limit, 20))},
	})
}

// Direct messages

// DMCheck is the cheap poll for DM activity.
func (c *Client) DMCheck(ctx context.Context) (Result, error) {
	return c.get(ctx, "/agents/dm/check", nil)
}

// DMRequests lists pending chat requests from others.
func (c *Client) DMRequests(ctx context.Context) (Result, error) {
	return c.get(ctx, "/agents/dm/requests", nil)
}

// DMApprove accepts a chat request.
func (c *Client) DMApprove(ctx context.Context, conversationID string) (Result, error) {
	return c.do(ctx, http.MethodPost, "/agents/dm/requests/"+url.PathEscape(conversationID)+"/approve", nil, nil)
}

// DMReject declines a chat request; block prevents future requests.
func (c *Client) DMReject(ctx context.Context, conversationID string, block bool) (Result, error) {
	var body any
	if block {
		body = map[string]any{"block": true}
	}
	return c.do(ctx, http.MethodPost, "/agents/dm/requests/"+url.PathEscape(conversationID)+"/reject", nil, body)
}

// DMConversations lists active conversations.
func (c *Client) DMConversations(ctx context.Context) (Result, error) {
	return c.get(ctx, "/agents/dm/conversations", nil)
}

// DMConversation reads a conversation and marks it read.
func (c *Client) DMConversation(ctx context.Context, conversationID string) (Result, error) {
	return c.get(ctx, "/agents/dm/conversations/"+url.PathEscape(conversationID), nil)
}

// DMSend sends a message. needsHuman flags it for the other agent's
// human owner.
func (c *Client) DMSend(ctx context.Context, conversationID, message string, needsHuman bool) (Result, error) {
	return c.do(ctx, http.MethodPost, "/agents/dm/conversations/"+url.PathEscape(conversationID)+"/send", nil, map[string]any{
		"message":           message,
		"needs_human_input": needsHuman,
	})
}

// DMRequest opens a chat with a bot (to) or a human owner's X handle
// (toOwner). At least one must be set.
func (c *Client) DMRequest(ctx context.Context, to, toOwner, message string) (Result, error) {
	if to == "" && toOwner == "" {
		return nil, fmt.Errorf("dm request needs a recipient")
	}
	body := map[string]any{"message": message}
	if to != "" {
		body["to"] = to
	}
	if toOwner != "" {
		body["to_owner"] = toOwner
	}
	return c.do(ctx, http.MethodPost, "/agents/dm/request", nil, body)
}

// Transport

func (c *Client) get(ctx context.Context, path string, query url.Values) (Result, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("moltbook rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else if method != http.MethodGet && method != http.MethodDelete {
		reqBody = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("moltbook request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	// Drain and close to ensure connection reuse.
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       httpkit.ReadErrorBody(resp.Body, 512),
		}
		if apiErr.RateLimited() {
			apiErr.RetryAfter = httpkit.RetryAfter(resp.Header, time.Now())
			if apiErr.RetryAfter == 0 {
				apiErr.RetryAfter = defaultRetryAfter
			}
		}
		c.logger.Warn("moltbook api error", "method", method, "path", path, "status", resp.StatusCode)
		return nil, apiErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if method == http.MethodGet {
			return Result{}, nil
		}
		return Result{"success": true}, nil
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if m, ok := out.(map[string]any); ok {
		return m, nil
	}
	return Result{"data": out}, nil
}

func toggleMethod(on bool) string {
	if on {
		return http.MethodPost
	}
	return http.MethodDelete
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
