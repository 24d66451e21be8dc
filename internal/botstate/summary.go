package botstate

import "time"

// Summary is the tracker snapshot injected into prompts.
type Summary struct {
	CanPost                  bool       `json:"can_post"`
	CanComment               bool       `json:"can_comment"`
	PostCooldownRemaining    int        `json:"post_cooldown_remaining_seconds"`
	CommentCooldownRemaining int        `json:"comment_cooldown_remaining_seconds"`
	CommentDailyRemaining    int        `json:"comment_daily_remaining"`
	TotalPosts               int        `json:"total_posts"`
	TotalComments            int        `json:"total_comments"`
	TotalUpvotes             int        `json:"total_upvotes"`
	DreamActionsSince        int        `json:"dream_actions_since"`
	LastCheck                *time.Time `json:"last_check,omitempty"`
	RecentActivity           []Activity `json:"recent_activity"`
	OurPostIDs               []string   `json:"our_post_ids"`
}

// Summary collects the current cooldowns, counters and recent activity.
func (t *Tracker) Summary() (Summary, error) {
	s := Summary{
		CanPost:                  t.CanPerform(ActionPost),
		CanComment:               t.CanPerform(ActionComment) && t.CanPerform(ActionCommentDaily),
		PostCooldownRemaining:    t.RemainingSeconds(ActionPost),
		CommentCooldownRemaining: t.RemainingSeconds(ActionComment),
		CommentDailyRemaining:    t.CommentDailyRemaining(),
		DreamActionsSince:        t.DreamActionsSince(),
	}

	var err error
	for name, dst := range map[string]*int{
		"total_" + KindPost:    &s.TotalPosts,
		"total_" + KindComment: &s.TotalComments,
		"total_" + KindUpvote:  &s.TotalUpvotes,
	} {
		if *dst, err = t.counter(name); err != nil {
			return s, err
		}
	}
	if at, ok := t.LastCheck(); ok {
		s.LastCheck = &at
	}
	if s.RecentActivity, err = t.RecentActivity(5); err != nil {
		return s, err
	}
	if s.OurPostIDs, err = t.OurPostIDs(10); err != nil {
		return s, err
	}
	return s, nil
}
