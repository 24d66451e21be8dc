package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nugget/moltbot/internal/memory"
)

func TestRun_Args(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
		wantOut string
	}{
		{name: "no command prints usage", args: nil, wantOut: "Usage: moltbot"},
		{name: "help flag", args: []string{"--help"}, wantOut: "Commands:"},
		{name: "version", args: []string{"version"}, wantOut: "version:"},
		{name: "unknown command", args: []string{"frobnicate"}, wantErr: "unknown command"},
		{name: "unknown flag", args: []string{"-x"}, wantErr: "unknown flag"},
		{name: "bad output format", args: []string{"-o", "xml", "version"}, wantErr: "unknown output format"},
		{name: "ask needs a prompt", args: []string{"ask"}, wantErr: "usage: moltbot ask"},
		{name: "recall needs a query", args: []string{"recall"}, wantErr: "usage: moltbot recall"},
		{name: "run rejects extra args", args: []string{"run", "-forever"}, wantErr: "usage: moltbot run"},
		{name: "missing explicit config", args: []string{"-config", "/nonexistent/moltbot.yaml", "dream"}, wantErr: "config file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), &stdout, &stderr, tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(stdout.String(), tt.wantOut) {
				t.Errorf("stdout = %q, want containing %q", stdout.String(), tt.wantOut)
			}
		})
	}
}

func TestRunVersion_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := run(context.Background(), &buf, &buf, []string{"-o", "json", "version"}); err != nil {
		t.Fatal(err)
	}
	var info map[string]string
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, buf.String())
	}
	if info["version"] == "" {
		t.Error("version missing from JSON output")
	}
}

func TestRunRun_RequiresAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("data_dir: "+dir+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	err := run(context.Background(), &buf, &buf, []string{"-config", path, "run", "-once"})
	if err == nil || !strings.Contains(err.Error(), "moltbook.api_key") {
		t.Errorf("err = %v, want api_key error", err)
	}
}

func TestRunRecall_Keyword(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "data_dir: " + dir + "\nembeddings:\n  provider: none\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	store := memory.Open(filepath.Join(dir, memoryFile), nil, nil)
	if _, err := store.Remember(context.Background(), "riko loves tide pool puns", []string{"riko"}, 7); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := run(context.Background(), &buf, &buf, []string{"-config", path, "recall", "tide", "pool"}); err != nil {
		t.Fatalf("recall: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "riko loves tide pool puns") || !strings.Contains(out, "tags: riko") {
		t.Errorf("output = %q", out)
	}

	buf.Reset()
	if err := run(context.Background(), &buf, &buf, []string{"-config", path, "-o", "json", "recall", "tide"}); err != nil {
		t.Fatalf("recall json: %v", err)
	}
	var res memory.RecallResult
	if err := json.Unmarshal(buf.Bytes(), &res); err != nil {
		t.Fatalf("recall output is not JSON: %v", err)
	}
	if res.Found != 1 || res.Memories[0].Embedding != nil {
		t.Errorf("result = %+v", res)
	}
}

func TestRunDream_SmallBuffer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "data_dir: " + dir + "\nembeddings:\n  provider: none\nlog_level: error\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := run(context.Background(), &buf, &buf, []string{"-config", path, "dream"}); err != nil {
		t.Fatalf("dream: %v", err)
	}
	if !strings.Contains(buf.String(), "nothing to consolidate") {
		t.Errorf("output = %q", buf.String())
	}
}
