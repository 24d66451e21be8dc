package moltbook

import (
	"fmt"
	"strconv"
)

// ExtractID returns the id of a created object. The API nests it under
// key ("post", "comment") or returns it at the top level.
func ExtractID(res Result, key string) string {
	if nested, ok := res[key].(map[string]any); ok {
		if id := idString(nested["id"]); id != "" {
			return id
		}
	}
	return idString(res["id"])
}

// PostList extracts the post objects from a feed or search response.
func PostList(res Result) []map[string]any {
	var raw []any
	for _, key := range []string{"posts", "results", "data"} {
		if list, ok := res[key].([]any); ok {
			raw = list
			break
		}
	}
	posts := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if p, ok := item.(map[string]any); ok {
			posts = append(posts, p)
		}
	}
	return posts
}

// PostID returns a post object's id.
func PostID(post map[string]any) string {
	return idString(post["id"])
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}
