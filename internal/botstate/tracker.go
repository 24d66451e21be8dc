// Package botstate tracks the agent's own Moltbook activity: cooldowns,
// the activity log, posts it authored and posts it has already seen.
// It is the persistent counterpart of the platform's rate limits, so the
// agent refuses actions locally instead of burning API calls on 429s.
package botstate

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Action kinds recorded in the activity log.
const (
	KindPost       = "post"
	KindComment    = "comment"
	KindUpvote     = "upvote"
	KindDMReply    = "dm_reply"
	KindDMRequest  = "dm_request"
	KindDeletePost = "delete_post"
)

// Cooldown names accepted by CanPerform and RemainingSeconds.
const (
	ActionPost         = "post"
	ActionComment      = "comment"
	ActionDM           = "dm"
	ActionCommentDaily = "comment_daily"
)

// Platform limits.
const (
	PostCooldown      = 30 * time.Minute
	CommentCooldown   = 20 * time.Second
	DMCooldown        = 10 * time.Second
	CommentDailyLimit = 50

	// RecentCommentWindow is how long a commented post stays off the
	// agent's to-do list.
	RecentCommentWindow = 2 * time.Hour

	maxSeenPosts    = 100
	activityHistory = 7 * 24 * time.Hour
)

const counterDreamActions = "dream_actions_since"

// Activity is one row of the activity log.
type Activity struct {
	ID     string    `json:"id"`
	Kind   string    `json:"action"`
	Target string    `json:"target,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"timestamp"`
}

// Tracker persists activity in SQLite. All public methods are safe for
// concurrent use.
type Tracker struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker opens (or creates) the tracker database at dbPath.
func NewTracker(dbPath string, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	t := &Tracker{
		db:     db,
		logger: logger.With("component", "botstate"),
		now:    time.Now,
	}
	if err := t.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return t, nil
}

// Close closes the database connection.
func (t *Tracker) Close() error {
	return t.db.Close()
}

func (t *Tracker) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS actions (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		target     TEXT NOT NULL DEFAULT '',
		detail     TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_actions_kind_time ON actions (kind, created_at);

	CREATE TABLE IF NOT EXISTS seen_posts (
		post_id TEXT PRIMARY KEY,
		seen_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS counters (
		name  TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	`
	_, err := t.db.Exec(schema)
	return err
}

func (t *Tracker) clock() time.Time {
	return t.now().UTC()
}

// record appends an activity row and bumps the kind's lifetime counter.
// Mutating actions also count toward the next dream.
func (t *Tracker) record(kind, target, detail string, dreamable bool) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate id: %w", err)
	}
	now := t.clock()

	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(
		`INSERT INTO actions (id, kind, target, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), kind, target, detail, now.UnixMilli(),
	); err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	if err := incr(tx, "total_"+kind, 1); err != nil {
		return err
	}
	if dreamable {
		if err := incr(tx, counterDreamActions, 1); err != nil {
			return err
		}
	}
	// Authored posts are kept forever; everything else only needs to
	// cover the longest cooldown window.
	if _, err := tx.Exec(
		`DELETE FROM actions WHERE kind != ? AND created_at < ?`,
		KindPost, now.Add(-activityHistory).UnixMilli(),
	); err != nil {
		return fmt.Errorf("prune actions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", kind, err)
	}

	t.logger.Debug("activity recorded", "action", kind, "target", target)
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func incr(db execer, name string, delta int) error {
	_, err := db.Exec(
		`INSERT INTO counters (name, value) VALUES (?, ?)
		 ON CONFLICT (name) DO UPDATE SET value = value + excluded.value`,
		name, delta,
	)
	if err != nil {
		return fmt.Errorf("increment %s: %w", name, err)
	}
	return nil
}

func (t *Tracker) counter(name string) (int, error) {
	var v int
	err := t.db.QueryRow(`SELECT value FROM counters WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter %s: %w", name, err)
	}
	return v, nil
}

// RecordPost records a post the agent authored.
func (t *Tracker) RecordPost(postID string) error {
	return t.record(KindPost, postID, "", true)
}

// RecordDeletePost removes postID from the authored set.
func (t *Tracker) RecordDeletePost(postID string) error {
	if _, err := t.db.Exec(`DELETE FROM actions WHERE kind = ? AND target = ?`, KindPost, postID); err != nil {
		return fmt.Errorf("forget post %s: %w", postID, err)
	}
	return t.record(KindDeletePost, postID, "", false)
}

// RecordComment records a comment on postID.
func (t *Tracker) RecordComment(postID, commentID string) error {
	return t.record(KindComment, postID, commentID, true)
}

// RecordUpvote records an upvote on postID.
func (t *Tracker) RecordUpvote(postID string) error {
	return t.record(KindUpvote, postID, "", true)
}

// RecordDMReply records a message sent in conversationID.
func (t *Tracker) RecordDMReply(conversationID string) error {
	return t.record(KindDMReply, conversationID, "", true)
}

// RecordDMRequest records a new chat request to recipient.
func (t *Tracker) RecordDMRequest(recipient string) error {
	return t.record(KindDMRequest, recipient, "", true)
}

// lastAt returns the most recent time any of kinds was recorded.
func (t *Tracker) lastAt(kinds ...string) (time.Time, bool) {
	query := `SELECT MAX(created_at) FROM actions WHERE kind IN (?` + strings.Repeat(", ?", len(kinds)-1) + `)`
	args := make([]any, len(kinds))
	for i, k := range kinds {
		args[i] = k
	}
	var ms sql.NullInt64
	if err := t.db.QueryRow(query, args...).Scan(&ms); err != nil {
		t.logger.Warn("last action lookup failed", "kinds", kinds, "error", err)
		return time.Time{}, false
	}
	if !ms.Valid {
		return time.Time{}, false
	}
	return time.UnixMilli(ms.Int64).UTC(), true
}

func (t *Tracker) commentsToday() int {
	now := t.clock()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var n int
	if err := t.db.QueryRow(
		`SELECT COUNT(*) FROM actions WHERE kind = ? AND created_at >= ?`,
		KindComment, midnight.UnixMilli(),
	).Scan(&n); err != nil {
		t.logger.Warn("daily comment count failed", "error", err)
	}
	return n
}

// remaining returns how long until cooldown has elapsed since the last
// of kinds.
func (t *Tracker) remaining(cooldown time.Duration, kinds ...string) time.Duration {
	last, ok := t.lastAt(kinds...)
	if !ok {
		return 0
	}
	return max(0, cooldown-t.clock().Sub(last))
}

func (t *Tracker) cooldown(action string) time.Duration {
	switch action {
	case ActionPost:
		return t.remaining(PostCooldown, KindPost)
	case ActionComment:
		return t.remaining(CommentCooldown, KindComment)
	case ActionDM:
		return t.remaining(DMCooldown, KindDMReply, KindDMRequest)
	case ActionCommentDaily:
		if t.commentsToday() < CommentDailyLimit {
			return 0
		}
		now := t.clock()
		tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		return tomorrow.Sub(now)
	}
	return 0
}

// CanPerform reports whether action is off cooldown. Unknown actions
// are always allowed.
func (t *Tracker) CanPerform(action string) bool {
	return t.cooldown(action) == 0
}

// RemainingSeconds returns the seconds left on action's cooldown,
// rounded up.
func (t *Tracker) RemainingSeconds(action string) int {
	d := t.cooldown(action)
	return int((d + time.Second - 1) / time.Second)
}

// CommentDailyRemaining returns how many comments are left today.
func (t *Tracker) CommentDailyRemaining() int {
	return max(0, CommentDailyLimit-t.commentsToday())
}

// IsOurPost reports whether the agent authored postID.
func (t *Tracker) IsOurPost(postID string) bool {
	if postID == "" {
		return false
	}
	var n int
	if err := t.db.QueryRow(
		`SELECT COUNT(*) FROM actions WHERE kind = ? AND target = ?`, KindPost, postID,
	).Scan(&n); err != nil {
		t.logger.Warn("own post lookup failed", "post_id", postID, "error", err)
		return false
	}
	return n > 0
}

// OurPostIDs returns authored post ids, newest first.
func (t *Tracker) OurPostIDs(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.Query(
		`SELECT target FROM actions WHERE kind = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		KindPost, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CommentedRecently reports whether the agent commented on postID
// within window.
func (t *Tracker) CommentedRecently(postID string, window time.Duration) bool {
	var n int
	if err := t.db.QueryRow(
		`SELECT COUNT(*) FROM actions WHERE kind = ? AND target = ? AND created_at >= ?`,
		KindComment, postID, t.clock().Add(-window).UnixMilli(),
	).Scan(&n); err != nil {
		t.logger.Warn("recent comment lookup failed", "post_id", postID, "error", err)
		return false
	}
	return n > 0
}

// RecentActivity returns the newest activity rows, newest first.
func (t *Tracker) RecentActivity(limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.Query(
		`SELECT id, kind, target, detail, created_at FROM actions
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	out := []Activity{}
	for rows.Next() {
		var a Activity
		var ms int64
		if err := rows.Scan(&a.ID, &a.Kind, &a.Target, &a.Detail, &ms); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.At = time.UnixMilli(ms).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// DreamActionsSince returns the mutating actions since the last dream.
func (t *Tracker) DreamActionsSince() int {
	n, err := t.counter(counterDreamActions)
	if err != nil {
		t.logger.Warn("dream counter lookup failed", "error", err)
	}
	return n
}

// ResetDreamActions zeroes the dream action counter.
func (t *Tracker) ResetDreamActions() error {
	if _, err := t.db.Exec(
		`INSERT INTO counters (name, value) VALUES (?, 0)
		 ON CONFLICT (name) DO UPDATE SET value = 0`,
		counterDreamActions,
	); err != nil {
		return fmt.Errorf("reset dream counter: %w", err)
	}
	return nil
}

// MarkCheck records a heartbeat check and the posts it saw. Only the
// newest posts are remembered.
func (t *Tracker) MarkCheck(postIDs []string) error {
	now := t.clock().UnixMilli()

	tx, err := t.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, id := range postIDs {
		if id == "" {
			continue
		}
		if _, err := tx.Exec(
			`INSERT INTO seen_posts (post_id, seen_at) VALUES (?, ?)
			 ON CONFLICT (post_id) DO UPDATE SET seen_at = excluded.seen_at`,
			id, now,
		); err != nil {
			return fmt.Errorf("mark seen %s: %w", id, err)
		}
	}
	if _, err := tx.Exec(
		`DELETE FROM seen_posts WHERE post_id NOT IN (
			SELECT post_id FROM seen_posts ORDER BY seen_at DESC, post_id DESC LIMIT ?)`,
		maxSeenPosts,
	); err != nil {
		return fmt.Errorf("prune seen posts: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO counters (name, value) VALUES ('last_check', ?)
		 ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
		now,
	); err != nil {
		return fmt.Errorf("set last check: %w", err)
	}
	return tx.Commit()
}

// Seen reports whether postID was in a previous check's feed.
func (t *Tracker) Seen(postID string) bool {
	var n int
	if err := t.db.QueryRow(`SELECT COUNT(*) FROM seen_posts WHERE post_id = ?`, postID).Scan(&n); err != nil {
		return false
	}
	return n > 0
}

// LastCheck returns the time of the previous MarkCheck, if any.
func (t *Tracker) LastCheck() (time.Time, bool) {
	ms, err := t.counter("last_check")
	if err != nil || ms == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}
