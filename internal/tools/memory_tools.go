package tools

import (
	"context"
	"errors"

	"github.com/nugget/moltbot/internal/memory"
)

// memoryResult renders a memory operation outcome. Constraint
// violations go back to the model as data so it can correct itself;
// storage failures remain errors.
func memoryResult(v any, err error) (string, error) {
	var ce *memory.ConstraintError
	if errors.As(err, &ce) {
		return jsonResult(map[string]any{"status": "error", "message": ce.Reason})
	}
	if err != nil {
		return "", err
	}
	return jsonResult(v)
}

// SetMemoryTools adds the core-block, buffer and archival memory tools.
func (r *Registry) SetMemoryTools(store *memory.Store) {
	rethink := func(label, value string) (string, error) {
		err := store.UpdateBlock(label, value)
		return memoryResult(map[string]any{"status": "success", "updated": label, "length": len([]rune(value))}, err)
	}
	insert := func(label, content string, line int) (string, error) {
		lines, err := store.InsertInBlock(label, content, line)
		b, _ := store.Block(label)
		return memoryResult(map[string]any{
			"status":     "success",
			"block":      label,
			"new_length": len([]rune(b.Value)),
			"line_count": lines,
		}, err)
	}

	// Block editing

	r.mustRegister(&Tool{
		Name:        "memory_rethink",
		Description: "Completely rewrite a memory block's contents. Use when major reorganization is needed.",
		Parameters: objectSchema(map[string]any{
			"label":      prop("string", "Block label (persona, human, scratchpad)"),
			"new_memory": prop("string", "Complete new contents for the block"),
		}, "label", "new_memory"),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return rethink(stringArg(args, "label"), stringArg(args, "new_memory"))
		},
	})

	r.mustRegister(&Tool{
		Name:        "memory_replace",
		Description: "Replace specific text in a memory block. old_str must match exactly once.",
		Parameters: objectSchema(map[string]any{
			"label":   prop("string", "Block label"),
			"old_str": prop("string", "Exact text to find and replace"),
			"new_str": prop("string", "Replacement text"),
		}, "label", "old_str", "new_str"),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			label := stringArg(args, "label")
			before, _ := store.Block(label)
			err := store.ReplaceInBlock(label, stringArg(args, "old_str"), stringArg(args, "new_str"))
			after, _ := store.Block(label)
			return memoryResult(map[string]any{
				"status":     "success",
				"block":      label,
				"old_length": len([]rune(before.Value)),
				"new_length": len([]rune(after.Value)),
			}, err)
		},
	})

	r.mustRegister(&Tool{
		Name:        "memory_insert",
		Description: "Insert text at a specific line in a memory block.",
		Parameters: objectSchema(map[string]any{
			"label":       prop("string", "Block label"),
			"new_str":     prop("string", "Text to insert"),
			"insert_line": prop("integer", "Line number (0=beginning, -1=end)"),
		}, "label", "new_str"),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return insert(stringArg(args, "label"), stringArg(args, "new_str"), intArg(args, "insert_line", -1))
		},
	})

	// Recall memory

	r.mustRegister(&Tool{
		Name:        "conversation_search",
		Description: "Search past messages in the recent activity buffer.",
		Parameters: objectSchema(map[string]any{
			"query": prop("string", "What to search for"),
			"limit": prop("integer", "Max results (default 5)"),
		}, "query"),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			query := stringArg(args, "query")
			found := store.ConversationSearch(query, intArg(args, "limit", 5))
			msgs := make([]map[string]any, 0, len(found))
			for _, e := range found {
				msgs = append(msgs, map[string]any{"role": e.Role, "content": e.Content, "timestamp": e.Timestamp})
			}
			return jsonResult(map[string]any{"status": "success", "query": query, "found": len(msgs), "messages": msgs})
		},
	})

	// Archival memory

	r.mustRegister(&Tool{
		Name:        "archival_memory_insert",
		Description: "Store content in archival memory for long-term retrieval.",
		Parameters: objectSchema(map[string]any{
			"content":    prop("string", "Text to store"),
			"tags":       stringArrayProp("Optional tags for organization"),
			"importance": prop("integer", "1-10 importance score"),
		}, "content"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			content, err := requireString(args, "content")
			if err != nil {
				return "", err
			}
			id, err := store.Remember(ctx, content, stringSliceArg(args, "tags"), intArg(args, "importance", 5))
			var ce *memory.ConstraintError
			if errors.As(err, &ce) {
				return jsonResult(map[string]any{"success": false, "error": ce.Reason})
			}
			if err != nil {
				return "", err
			}
			return jsonResult(map[string]any{"success": true, "memory_id": id})
		},
	})

	r.mustRegister(&Tool{
		Name:        "archival_memory_search",
		Description: "Search archival memory using semantic (embedding-based) search, falling back to keywords.",
		Parameters: objectSchema(map[string]any{
			"query": prop("string", "What to search for"),
			"limit": prop("integer", "Max results (default 5)"),
			"tags":  stringArrayProp("Optional tag filters"),
		}, "query"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			res, err := store.Recall(ctx, stringArg(args, "query"), intArg(args, "limit", 5), stringSliceArg(args, "tags")...)
			return memoryResult(res, err)
		},
	})

	r.mustRegister(&Tool{
		Name:        "archival_memory_forget",
		Description: "Delete an archival memory by id.",
		Parameters: objectSchema(map[string]any{
			"memory_id": prop("string", "Id returned by archival_memory_insert or search"),
		}, "memory_id"),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			id, err := requireString(args, "memory_id")
			if err != nil {
				return "", err
			}
			ok, err := store.Forget(id)
			return memoryResult(map[string]any{"success": ok}, err)
		},
	})

	r.mustRegister(&Tool{
		Name:        "list_memories",
		Description: "Browse archival memory with pagination.",
		Parameters: objectSchema(map[string]any{
			"limit": prop("integer", "Items per page (default 10)"),
			"page":  prop("integer", "Page number (1-indexed)"),
			"tag":   prop("string", "Filter by tag"),
		}),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return jsonResult(store.ListMemories(intArg(args, "limit", 10), intArg(args, "page", 1), stringArg(args, "tag")))
		},
	})

	// Deprecated aliases kept for prompts written against the old names.

	r.mustRegister(&Tool{
		Name:        "core_memory_replace",
		Description: "[DEPRECATED: Use memory_rethink] Replace entire block contents.",
		Parameters: objectSchema(map[string]any{
			"label": prop("string", ""),
			"value": prop("string", ""),
		}, "label", "value"),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return rethink(stringArg(args, "label"), stringArg(args, "value"))
		},
	})

	r.mustRegister(&Tool{
		Name:        "core_memory_append",
		Description: "[DEPRECATED: Use memory_insert] Append to a block.",
		Parameters: objectSchema(map[string]any{
			"label":   prop("string", ""),
			"content": prop("string", ""),
		}, "label", "content"),
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return insert(stringArg(args, "label"), stringArg(args, "content"), -1)
		},
	})
}
