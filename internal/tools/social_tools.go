package tools

import (
	"context"
	"fmt"

	"github.com/nugget/moltbot/internal/botstate"
	"github.com/nugget/moltbot/internal/moltbook"
)

// track attaches a tracker failure to an otherwise successful result.
// The platform action already happened, so the model must not retry it.
func track(res moltbook.Result, err error) (string, error) {
	if err != nil {
		res["tracking_error"] = err.Error()
	}
	return jsonResult(res)
}

func apiResult(res moltbook.Result, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return jsonResult(res)
}

// SetMoltbookTools adds the Moltbook social tools. Side-effecting tools
// check tracker cooldowns before calling the API and record what they
// did afterwards.
func (r *Registry) SetMoltbookTools(mb *moltbook.Client, tracker *botstate.Tracker) {
	r.setFeedTools(mb, tracker)
	r.setVoteTools(mb, tracker)
	r.setCommunityTools(mb)
	r.setDMTools(mb, tracker)
}

func (r *Registry) setFeedTools(mb *moltbook.Client, tracker *botstate.Tracker) {
	sortProp := enumProp("Sort order", "hot", "new", "top", "rising")

	r.mustRegister(&Tool{
		Name:        "check_claim_status",
		Description: "Check whether your human has claimed this agent.",
		Parameters:  objectSchema(nil),
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			return apiResult(mb.Status(ctx))
		},
	})

	r.mustRegister(&Tool{
		Name:        "search_moltbook",
		Description: "Semantic search across Moltbook posts and comments. Use natural language.",
		Parameters: objectSchema(map[string]any{
			"query": prop("string", "What to look for"),
			"type":  enumProp("What to search", "posts", "comments", "all"),
			"limit": prop("integer", "Max results (default 20, max 50)"),
		}, "query"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			q, err := requireString(args, "query")
			if err != nil {
				return "", err
			}
			return apiResult(mb.Search(ctx, q, stringArg(args, "type"), min(intArg(args, "limit", 20), 50)))
		},
	})

	r.mustRegister(&Tool{
		Name:        "get_feed",
		Description: "Get your personalized feed of posts from subscribed submolts and followed moltys.",
		Parameters: objectSchema(map[string]any{
			"sort":  sortProp,
			"limit": prop("integer", "Number of posts (default 25)"),
		}),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return apiResult(mb.Feed(ctx, stringArg(args, "sort"), intArg(args, "limit", 25)))
		},
	})

	r.mustRegister(&Tool{
		Name:        "get_global_posts",
		Description: "Get posts from all of Moltbook, optionally restricted to one submolt.",
		Parameters: objectSchema(map[string]any{
			"sort":    sortProp,
			"limit":   prop("integer", "Number of posts (default 25)"),
			"submolt": prop("string", "Optional submolt name"),
		}),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return apiResult(mb.Posts(ctx, stringArg(args, "sort"), intArg(args, "limit", 25), stringArg(args, "submolt")))
		},
	})

	r.mustRegister(&Tool{
		Name:        "get_submolt_posts",
		Description: "Get the feed of a single submolt.",
		Parameters: objectSchema(map[string]any{
			"submolt": prop("string", "Submolt name"),
			"sort":    sortProp,
		}, "submolt"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			name, err := requireString(args, "submolt")
			if err != nil {
				return "", err
			}
			return apiResult(mb.SubmoltFeed(ctx, name, stringArg(args, "sort")))
		},
	})

	r.mustRegister(&Tool{
		Name:        "get_post",
		Description: "Get a single post with full details.",
		Parameters: objectSchema(map[string]any{
			"post_id": prop("string", "Post id"),
		}, "post_id"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id, err := requireString(args, "post_id")
			if err != nil {
				return "", err
			}
			res, err := mb.Post(ctx, id)
			if err != nil {
				return "", err
			}
			res["is_your_post"] = tracker.IsOurPost(id)
			return jsonResult(res)
		},
	})

	r.mustRegister(&Tool{
		Name:        "create_post",
		Description: "Create a new post. You can post once every 30 minutes, so make it count.",
		Parameters: objectSchema(map[string]any{
			"submolt": prop("string", "Submolt to post in (e.g. general)"),
			"title":   prop("string", "Post title"),
			"content": prop("string", "Post body"),
			"url":     prop("string", "Optional link for link posts"),
		}, "submolt", "title"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if !tracker.CanPerform(botstate.ActionPost) {
				mins := (tracker.RemainingSeconds(botstate.ActionPost) + 59) / 60
				return errorResult("Post cooldown active. Wait %d minutes.", mins)
			}
			submolt, err := requireString(args, "submolt")
			if err != nil {
				return "", err
			}
			title, err := requireString(args, "title")
			if err != nil {
				return "", err
			}
			res, err := mb.CreatePost(ctx, moltbook.NewPost{
				Submolt: submolt,
				Title:   title,
				Content: stringArg(args, "content"),
				URL:     stringArg(args, "url"),
			})
			if err != nil {
				return "", err
			}
			return track(res, tracker.RecordPost(moltbook.ExtractID(res, "post")))
		},
	})

	r.mustRegister(&Tool{
		Name:        "delete_post",
		Description: "Delete one of your own posts.",
		Parameters: objectSchema(map[string]any{
			"post_id": prop("string", "Post id"),
		}, "post_id"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id, err := requireString(args, "post_id")
			if err != nil {
				return "", err
			}
			if !tracker.IsOurPost(id) {
				return errorResult("Post %s is not yours to delete.", id)
			}
			res, err := mb.DeletePost(ctx, id)
			if err != nil {
				return "", err
			}
			return track(res, tracker.RecordDeletePost(id))
		},
	})

	r.mustRegister(&Tool{
		Name:        "get_comments",
		Description: "Get comments on a post.",
		Parameters: objectSchema(map[string]any{
			"post_id": prop("string", "Post id"),
			"sort":    enumProp("Sort order (default top)", "top", "new", "controversial"),
		}, "post_id"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id, err := requireString(args, "post_id")
			if err != nil {
				return "", err
			}
			return apiResult(mb.Comments(ctx, id, stringArg(args, "sort")))
		},
	})

	r.mustRegister(&Tool{
		Name:        "create_comment",
		Description: "Comment on a post, or reply to a comment with parent_id. Never comment on your own posts.",
		Parameters: objectSchema(map[string]any{
			"post_id":   prop("string", "Post id"),
			"content":   prop("string", "Comment text"),
			"parent_id": prop("string", "Optional comment id to reply to"),
		}, "post_id", "content"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			postID, err := requireString(args, "post_id")
			if err != nil {
				return "", err
			}
			content, err := requireString(args, "content")
			if err != nil {
				return "", err
			}
			switch {
			case tracker.IsOurPost(postID):
				return errorResult("Cannot comment on your own post!")
			case !tracker.CanPerform(botstate.ActionComment):
				return errorResult("Comment cooldown active. Wait %d seconds.", tracker.RemainingSeconds(botstate.ActionComment))
			case !tracker.CanPerform(botstate.ActionCommentDaily):
				return errorResult("Daily comment limit reached (%d). Try again tomorrow.", botstate.CommentDailyLimit)
			}
			res, err := mb.AddComment(ctx, postID, content, stringArg(args, "parent_id"))
			if err != nil {
				return "", err
			}
			return track(res, tracker.RecordComment(postID, moltbook.ExtractID(res, "comment")))
		},
	})
}

func (r *Registry) setVoteTools(mb *moltbook.Client, tracker *botstate.Tracker) {
	vote := func(kind, idKey string, up bool) Handler {
		return func(ctx context.Context, args map[string]any) (string, error) {
			id, err := requireString(args, idKey)
			if err != nil {
				return "", err
			}
			if kind == moltbook.VotePost && tracker.IsOurPost(id) {
				return errorResult("Cannot vote on your own post!")
			}
			res, err := mb.Vote(ctx, kind, id, up)
			if err != nil {
				return "", err
			}
			if kind == moltbook.VotePost && up {
				return track(res, tracker.RecordUpvote(id))
			}
			return jsonResult(res)
		}
	}

	for _, v := range []struct {
		name, kind, idKey, desc string
		up                      bool
	}{
		{"upvote_post", moltbook.VotePost, "post_id", "Upvote a post you found valuable.", true},
		{"downvote_post", moltbook.VotePost, "post_id", "Downvote a low-quality post.", false},
		{"upvote_comment", moltbook.VoteComment, "comment_id", "Upvote a comment.", true},
		{"downvote_comment", moltbook.VoteComment, "comment_id", "Downvote a comment.", false},
	} {
		r.mustRegister(&Tool{
			Name:        v.name,
			Description: v.desc,
			Parameters: objectSchema(map[string]any{
				v.idKey: prop("string", "Target id"),
			}, v.idKey),
			Handler: vote(v.kind, v.idKey, v.up),
		})
	}
}

func (r *Registry) setCommunityTools(mb *moltbook.Client) {
	nameArg := func(key string, call func(ctx context.Context, name string) (moltbook.Result, error)) Handler {
		return func(ctx context.Context, args map[string]any) (string, error) {
			name, err := requireString(args, key)
			if err != nil {
				return "", err
			}
			return apiResult(call(ctx, name))
		}
	}
	submoltSchema := objectSchema(map[string]any{"name": prop("string", "Submolt name")}, "name")
	moltySchema := objectSchema(map[string]any{"name": prop("string", "Molty (agent) name")}, "name")

	r.mustRegister(&Tool{
		Name:        "list_submolts",
		Description: "List all submolts (communities).",
		Parameters:  objectSchema(nil),
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			return apiResult(mb.Submolts(ctx))
		},
	})

	r.mustRegister(&Tool{
		Name:        "get_submolt",
		Description: "Get info about a submolt, including your role in it.",
		Parameters:  submoltSchema,
		Handler:     nameArg("name", mb.Submolt),
	})

	r.mustRegister(&Tool{
		Name:        "create_submolt",
		Description: "Create a new submolt. Only do this for a topic that has no home yet.",
		Parameters: objectSchema(map[string]any{
			"name":         prop("string", "URL-safe name (lowercase, no spaces)"),
			"display_name": prop("string", "Human-readable name"),
			"description":  prop("string", "What the community is about"),
		}, "name", "display_name", "description"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			name, err := requireString(args, "name")
			if err != nil {
				return "", err
			}
			display := stringArg(args, "display_name")
			if display == "" {
				display = name
			}
			return apiResult(mb.CreateSubmolt(ctx, name, display, stringArg(args, "description")))
		},
	})

	r.mustRegister(&Tool{
		Name:        "subscribe_submolt",
		Description: "Subscribe to a submolt so its posts appear in your feed.",
		Parameters:  submoltSchema,
		Handler: nameArg("name", func(ctx context.Context, name string) (moltbook.Result, error) {
			return mb.Subscribe(ctx, name, true)
		}),
	})

	r.mustRegister(&Tool{
		Name:        "unsubscribe_submolt",
		Description: "Unsubscribe from a submolt.",
		Parameters:  submoltSchema,
		Handler: nameArg("name", func(ctx context.Context, name string) (moltbook.Result, error) {
			return mb.Subscribe(ctx, name, false)
		}),
	})

	r.mustRegister(&Tool{
		Name:        "get_profile",
		Description: "View another molty's profile.",
		Parameters:  moltySchema,
		Handler:     nameArg("name", mb.Profile),
	})

	r.mustRegister(&Tool{
		Name:        "follow_molty",
		Description: "Follow a molty. Be selective: only follow after seeing several valuable posts.",
		Parameters:  moltySchema,
		Handler: nameArg("name", func(ctx context.Context, name string) (moltbook.Result, error) {
			return mb.Follow(ctx, name, true)
		}),
	})

	r.mustRegister(&Tool{
		Name:        "unfollow_molty",
		Description: "Unfollow a molty.",
		Parameters:  moltySchema,
		Handler: nameArg("name", func(ctx context.Context, name string) (moltbook.Result, error) {
			return mb.Follow(ctx, name, false)
		}),
	})

	r.mustRegister(&Tool{
		Name:        "get_my_profile",
		Description: "Get your own Moltbook profile.",
		Parameters:  objectSchema(nil),
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			return apiResult(mb.Me(ctx))
		},
	})

	r.mustRegister(&Tool{
		Name:        "update_my_profile",
		Description: "Update your profile description.",
		Parameters: objectSchema(map[string]any{
			"description": prop("string", "New profile description"),
		}, "description"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			desc, err := requireString(args, "description")
			if err != nil {
				return "", err
			}
			return apiResult(mb.UpdateProfile(ctx, desc, nil))
		},
	})
}

func (r *Registry) setDMTools(mb *moltbook.Client, tracker *botstate.Tracker) {
	convSchema := objectSchema(map[string]any{
		"conversation_id": prop("string", "Conversation id"),
	}, "conversation_id")
	dmCooldown := func() (string, bool) {
		if tracker.CanPerform(botstate.ActionDM) {
			return "", false
		}
		s, _ := errorResult("DM cooldown active. Wait %d seconds.", tracker.RemainingSeconds(botstate.ActionDM))
		return s, true
	}

	r.mustRegister(&Tool{
		Name:        "dm_check",
		Description: "Check for pending DM requests and unread messages.",
		Parameters:  objectSchema(nil),
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			return apiResult(mb.DMCheck(ctx))
		},
	})

	r.mustRegister(&Tool{
		Name:        "dm_list_requests",
		Description: "List pending chat requests from other moltys.",
		Parameters:  objectSchema(nil),
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			return apiResult(mb.DMRequests(ctx))
		},
	})

	r.mustRegister(&Tool{
		Name:        "dm_approve",
		Description: "Approve a chat request.",
		Parameters:  convSchema,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id, err := requireString(args, "conversation_id")
			if err != nil {
				return "", err
			}
			return apiResult(mb.DMApprove(ctx, id))
		},
	})

	r.mustRegister(&Tool{
		Name:        "dm_reject",
		Description: "Reject a chat request, optionally blocking future requests.",
		Parameters: objectSchema(map[string]any{
			"conversation_id": prop("string", "Conversation id"),
			"block":           prop("boolean", "Block future requests from this molty"),
		}, "conversation_id"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id, err := requireString(args, "conversation_id")
			if err != nil {
				return "", err
			}
			return apiResult(mb.DMReject(ctx, id, boolArg(args, "block")))
		},
	})

	r.mustRegister(&Tool{
		Name:        "dm_list_conversations",
		Description: "List your active DM conversations.",
		Parameters:  objectSchema(nil),
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			return apiResult(mb.DMConversations(ctx))
		},
	})

	r.mustRegister(&Tool{
		Name:        "dm_read",
		Description: "Read a conversation. This marks its messages as read.",
		Parameters:  convSchema,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id, err := requireString(args, "conversation_id")
			if err != nil {
				return "", err
			}
			return apiResult(mb.DMConversation(ctx, id))
		},
	})

	r.mustRegister(&Tool{
		Name:        "dm_send",
		Description: "Send a message in an approved conversation. Set needs_human_input to flag it for the other molty's human.",
		Parameters: objectSchema(map[string]any{
			"conversation_id":   prop("string", "Conversation id"),
			"message":           prop("string", "Message text"),
			"needs_human_input": prop("boolean", "Escalate to the other molty's human"),
		}, "conversation_id", "message"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id, err := requireString(args, "conversation_id")
			if err != nil {
				return "", err
			}
			msg, err := requireString(args, "message")
			if err != nil {
				return "", err
			}
			if refusal, blocked := dmCooldown(); blocked {
				return refusal, nil
			}
			res, err := mb.DMSend(ctx, id, msg, boolArg(args, "needs_human_input"))
			if err != nil {
				return "", err
			}
			return track(res, tracker.RecordDMReply(id))
		},
	})

	r.mustRegister(&Tool{
		Name:        "dm_start",
		Description: "Send a chat request to a molty by name, or to a human owner by X handle.",
		Parameters: objectSchema(map[string]any{
			"to":       prop("string", "Molty name"),
			"to_owner": prop("string", "Owner's X handle (@name), instead of to"),
			"message":  prop("string", "Why you want to chat"),
		}, "message"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			msg, err := requireString(args, "message")
			if err != nil {
				return "", err
			}
			to, owner := stringArg(args, "to"), stringArg(args, "to_owner")
			if to == "" && owner == "" {
				return "", fmt.Errorf("to or to_owner is required")
			}
			if refusal, blocked := dmCooldown(); blocked {
				return refusal, nil
			}
			res, err := mb.DMRequest(ctx, to, owner, msg)
			if err != nil {
				return "", err
			}
			recipient := to
			if recipient == "" {
				recipient = owner
			}
			return track(res, tracker.RecordDMRequest(recipient))
		},
	})
}
