package tools

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nugget/moltbot/internal/botstate"
	"github.com/nugget/moltbot/internal/moltbook"
)

// fakeMoltbook answers every endpoint with canned JSON and counts hits
// per "METHOD path".
type fakeMoltbook struct {
	mu   sync.Mutex
	hits map[string]int
}

func (f *fakeMoltbook) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func (f *fakeMoltbook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api/v1")
	f.mu.Lock()
	f.hits[key]++
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch key {
	case "POST /posts":
		_, _ = io.WriteString(w, `{"success":true,"post":{"id":"new-post"}}`)
	case "POST /posts/p1/comments":
		_, _ = io.WriteString(w, `{"success":true,"comment":{"id":"c1"}}`)
	case "GET /posts/p1":
		_, _ = io.WriteString(w, `{"post":{"id":"p1","title":"hello"}}`)
	default:
		_, _ = io.WriteString(w, `{"success":true}`)
	}
}

func newSocialRegistry(t *testing.T) (*Registry, *fakeMoltbook, *botstate.Tracker) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fake := &fakeMoltbook{hits: map[string]int{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	mb := moltbook.NewClient(moltbook.Options{
		BaseURL:           srv.URL + "/api/v1",
		APIKey:            "k",
		RequestsPerMinute: 6000,
		HTTPClient:        srv.Client(),
	}, logger)

	tracker, err := botstate.NewTracker(filepath.Join(t.TempDir(), "state.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tracker.Close() })

	r := NewRegistry()
	r.SetMoltbookTools(mb, tracker)
	return r, fake, tracker
}

func TestSetMoltbookTools_Registered(t *testing.T) {
	r, _, _ := newSocialRegistry(t)
	for _, name := range []string{
		"check_claim_status", "search_moltbook", "get_feed", "get_global_posts", "get_submolt_posts",
		"get_post", "create_post", "delete_post", "get_comments", "create_comment",
		"upvote_post", "downvote_post", "upvote_comment", "downvote_comment",
		"list_submolts", "get_submolt", "create_submolt", "subscribe_submolt", "unsubscribe_submolt",
		"get_profile", "follow_molty", "unfollow_molty", "get_my_profile", "update_my_profile",
		"dm_check", "dm_list_requests", "dm_approve", "dm_reject", "dm_list_conversations",
		"dm_read", "dm_send", "dm_start",
	} {
		if r.Get(name) == nil {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestCreatePost_Cooldown(t *testing.T) {
	r, fake, tracker := newSocialRegistry(t)

	res := execJSON(t, r, "create_post", `{"submolt":"general","title":"hi","content":"first"}`)
	if res["success"] != true {
		t.Fatalf("create_post = %v", res)
	}
	if !tracker.IsOurPost("new-post") {
		t.Error("created post not tracked as ours")
	}

	res = execJSON(t, r, "create_post", `{"submolt":"general","title":"again"}`)
	if msg, _ := res["error"].(string); msg != "Post cooldown active. Wait 30 minutes." {
		t.Errorf("second post = %v", res)
	}
	if got := fake.count("POST /posts"); got != 1 {
		t.Errorf("API posts = %d, want 1", got)
	}
}

func TestCreateComment_Guards(t *testing.T) {
	r, fake, tracker := newSocialRegistry(t)
	if err := tracker.RecordPost("mine"); err != nil {
		t.Fatal(err)
	}

	res := execJSON(t, r, "create_comment", `{"post_id":"mine","content":"nice"}`)
	if res["error"] != "Cannot comment on your own post!" {
		t.Errorf("own post = %v", res)
	}

	res = execJSON(t, r, "create_comment", `{"post_id":"p1","content":"nice"}`)
	if res["success"] != true {
		t.Fatalf("comment = %v", res)
	}
	if !tracker.CommentedRecently("p1", botstate.RecentCommentWindow) {
		t.Error("comment not tracked")
	}

	res = execJSON(t, r, "create_comment", `{"post_id":"p1","content":"again"}`)
	if msg, _ := res["error"].(string); !strings.HasPrefix(msg, "Comment cooldown active.") {
		t.Errorf("cooldown = %v", res)
	}
	if got := fake.count("POST /posts/p1/comments"); got != 1 {
		t.Errorf("API comments = %d, want 1", got)
	}
}

func TestVoteTools(t *testing.T) {
	r, fake, tracker := newSocialRegistry(t)
	_ = tracker.RecordPost("mine")

	res := execJSON(t, r, "upvote_post", `{"post_id":"mine"}`)
	if res["error"] == nil {
		t.Errorf("self upvote = %v", res)
	}

	execJSON(t, r, "upvote_post", `{"post_id":"p1"}`)
	execJSON(t, r, "downvote_comment", `{"comment_id":"c7"}`)
	if fake.count("POST /posts/p1/upvote") != 1 || fake.count("POST /comments/c7/downvote") != 1 {
		t.Errorf("hits = %v", fake.hits)
	}

	s, err := tracker.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalUpvotes != 1 {
		t.Errorf("TotalUpvotes = %d, want 1", s.TotalUpvotes)
	}
}

func TestDeletePost_OnlyOwn(t *testing.T) {
	r, fake, tracker := newSocialRegistry(t)
	_ = tracker.RecordPost("mine")

	res := execJSON(t, r, "delete_post", `{"post_id":"theirs"}`)
	if res["error"] == nil {
		t.Errorf("delete foreign = %v", res)
	}
	execJSON(t, r, "delete_post", `{"post_id":"mine"}`)
	if fake.count("DELETE /posts/mine") != 1 || tracker.IsOurPost("mine") {
		t.Error("own post not deleted")
	}
}

func TestGetPost_MarksOwnership(t *testing.T) {
	r, _, tracker := newSocialRegistry(t)
	_ = tracker.RecordPost("p1")
	res := execJSON(t, r, "get_post", `{"post_id":"p1"}`)
	if res["is_your_post"] != true {
		t.Errorf("get_post = %v", res)
	}
}

func TestDMTools(t *testing.T) {
	r, fake, tracker := newSocialRegistry(t)

	execJSON(t, r, "dm_send", `{"conversation_id":"conv1","message":"hey"}`)
	if fake.count("POST /agents/dm/conversations/conv1/send") != 1 {
		t.Error("dm_send did not reach the API")
	}
	if tracker.CanPerform(botstate.ActionDM) {
		t.Error("dm cooldown not started")
	}

	res := execJSON(t, r, "dm_start", `{"to":"riko","message":"hello"}`)
	if msg, _ := res["error"].(string); !strings.HasPrefix(msg, "DM cooldown active.") {
		t.Errorf("dm_start during cooldown = %v", res)
	}

	if _, err := r.Execute(context.Background(), "dm_start", `{"message":"hello"}`); err == nil {
		t.Error("dm_start without recipient should fail")
	}
}

func TestSocialTools_RequiredArgs(t *testing.T) {
	r, fake, _ := newSocialRegistry(t)
	for _, name := range []string{"get_post", "create_comment", "search_moltbook", "get_submolt", "dm_read"} {
		if _, err := r.Execute(context.Background(), name, `{}`); err == nil {
			t.Errorf("%s with no args should fail", name)
		}
	}
	if len(fake.hits) != 0 {
		t.Errorf("invalid calls reached the API: %v", fake.hits)
	}
}
