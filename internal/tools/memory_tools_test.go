package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nugget/moltbot/internal/memory"
)

func newMemoryRegistry(t *testing.T) (*Registry, *memory.Store) {
	t.Helper()
	store := memory.Open(filepath.Join(t.TempDir(), "memory.json"), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := NewRegistry()
	r.SetMemoryTools(store)
	return r, store
}

func execJSON(t *testing.T, r *Registry, name, args string) map[string]any {
	t.Helper()
	out, err := r.Execute(context.Background(), name, args)
	if err != nil {
		t.Fatalf("Execute(%s): %v", name, err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("result of %s is not JSON: %q", name, out)
	}
	return m
}

func TestSetMemoryTools_Names(t *testing.T) {
	r, _ := newMemoryRegistry(t)
	want := "memory_rethink,memory_replace,memory_insert,conversation_search," +
		"archival_memory_insert,archival_memory_search,archival_memory_forget,list_memories," +
		"core_memory_replace,core_memory_append"
	if got := strings.Join(r.Names(), ","); got != want {
		t.Errorf("Names() = %s", got)
	}
}

func TestMemoryTools_BlockEditing(t *testing.T) {
	r, store := newMemoryRegistry(t)

	res := execJSON(t, r, "memory_rethink", `{"label":"human","new_memory":"likes crabs"}`)
	if res["status"] != "success" {
		t.Fatalf("rethink = %v", res)
	}

	res = execJSON(t, r, "memory_replace", `{"label":"human","old_str":"crabs","new_str":"lobsters"}`)
	if res["status"] != "success" || res["new_length"] != float64(len("likes lobsters")) {
		t.Errorf("replace = %v", res)
	}

	res = execJSON(t, r, "memory_insert", `{"label":"human","new_str":"first","insert_line":0}`)
	if res["line_count"] != float64(2) {
		t.Errorf("insert = %v", res)
	}

	execJSON(t, r, "core_memory_append", `{"label":"human","content":"last"}`)
	if b, _ := store.Block("human"); b.Value != "first\nlikes lobsters\nlast" {
		t.Errorf("human = %q", b.Value)
	}

	// Constraint violations come back as data, not errors.
	res = execJSON(t, r, "memory_replace", `{"label":"human","old_str":"missing","new_str":"x"}`)
	if res["status"] != "error" || !strings.Contains(res["message"].(string), "not found") {
		t.Errorf("replace miss = %v", res)
	}
	res = execJSON(t, r, "core_memory_replace", `{"label":"nope","value":"x"}`)
	if res["status"] != "error" {
		t.Errorf("unknown block = %v", res)
	}
}

func TestMemoryTools_Archival(t *testing.T) {
	r, _ := newMemoryRegistry(t)

	res := execJSON(t, r, "archival_memory_insert", `{"content":"riko runs the crab submolt","tags":["people","crabs"],"importance":8}`)
	if res["success"] != true {
		t.Fatalf("insert = %v", res)
	}
	id := res["memory_id"].(string)

	res = execJSON(t, r, "archival_memory_insert", `{"content":"riko runs the crab submolt"}`)
	if res["success"] != false || res["error"] != "duplicate memory" {
		t.Errorf("duplicate = %v", res)
	}

	res = execJSON(t, r, "archival_memory_search", `{"query":"crab","limit":3}`)
	if res["method"] != "keyword" || res["found"] != float64(1) {
		t.Errorf("search = %v", res)
	}

	res = execJSON(t, r, "list_memories", `{"tag":"PEOPLE"}`)
	if res["total_items"] != float64(1) {
		t.Errorf("list = %v", res)
	}

	res = execJSON(t, r, "archival_memory_forget", `{"memory_id":"`+id+`"}`)
	if res["success"] != true {
		t.Errorf("forget = %v", res)
	}

	if _, err := r.Execute(context.Background(), "archival_memory_insert", `{"content":""}`); err == nil {
		t.Error("blank content should be an error")
	}
}

func TestMemoryTools_ConversationSearch(t *testing.T) {
	r, store := newMemoryRegistry(t)
	for _, c := range []string{"commented on a crab post", "upvoted a lobster"} {
		if err := store.AddToBuffer("assistant", c, nil); err != nil {
			t.Fatal(err)
		}
	}

	res := execJSON(t, r, "conversation_search", `{"query":"CRAB"}`)
	if res["found"] != float64(1) {
		t.Errorf("search = %v", res)
	}
	msgs := res["messages"].([]any)
	if msgs[0].(map[string]any)["content"] != "commented on a crab post" {
		t.Errorf("messages = %v", msgs)
	}
}
