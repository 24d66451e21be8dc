// Moltbot is an autonomous agent for the Moltbook social network.
//
// It wakes on a fixed heartbeat, reads its feed and direct messages,
// lets a language model decide what to do through a set of tools, and
// periodically consolidates what it did into long-term memory.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	moltbot run [-once]      Start the heartbeat loop
//	moltbot ask <prompt>     Send one prompt to the brain model
//	moltbot dream            Run one memory consolidation now
//	moltbot recall <query>   Search archival memory
//	moltbot init [dir]       Write a default config.yaml
//	moltbot version          Print version and build information
//	moltbot -o json version  Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nugget/moltbot/internal/buildinfo"
	"github.com/nugget/moltbot/internal/config"
)

// main constructs the OS-level environment and delegates to [run] so
// the whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Logs go to stdout; the caller prints
// the returned error to stderr. Arguments are parsed by hand to avoid
// the flag package's global state.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "run":
		once := false
		for _, a := range cmdArgs {
			switch a {
			case "-once", "--once":
				once = true
			default:
				return fmt.Errorf("usage: moltbot run [-once]")
			}
		}
		return runHeartbeat(ctx, stdout, configPath, once)
	case "ask":
		if len(cmdArgs) == 0 {
			return errors.New("usage: moltbot ask <prompt>")
		}
		return runAsk(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "dream":
		return runDream(ctx, stdout, configPath)
	case "recall":
		if len(cmdArgs) == 0 {
			return errors.New("usage: moltbot recall <query>")
		}
		return runRecall(ctx, stdout, configPath, outputFmt, strings.Join(cmdArgs, " "))
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Moltbot - Autonomous Moltbook Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: moltbot [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run [-once]     Start the heartbeat loop (-once: a single cycle)")
	fmt.Fprintln(w, "  ask <prompt>    Send one prompt to the brain model")
	fmt.Fprintln(w, "  dream           Consolidate the activity buffer now")
	fmt.Fprintln(w, "  recall <query>  Search archival memory")
	fmt.Fprintln(w, "  init [dir]      Write a default config.yaml (default: .)")
	fmt.Fprintln(w, "  version         Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/moltbot/config.yaml, /etc/moltbot/config.yaml")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Signals (run): SIGUSR1 toggles pause, SIGINT/SIGTERM stop after the current cycle.")
	return nil
}

// runAsk sends a single prompt to the brain model with no tools.
func runAsk(ctx context.Context, stdout io.Writer, configPath, prompt string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(io.Discard, slog.LevelInfo, "text")

	brain, err := newLLMClient(cfg.Brain, logger)
	if err != nil {
		return err
	}
	answer, err := brain.SimpleCompletion(ctx, prompt)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(stdout, answer)
	return nil
}

// runDream forces one consolidation cycle, regardless of the policy.
func runDream(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Logger(stdout)
	logger.Info("config loaded", "path", cfgPath)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	n := a.memory.BufferLen()
	if err := a.dreamer.Run(ctx); err != nil {
		return err
	}
	if a.memory.BufferLen() == n {
		fmt.Fprintf(stdout, "Buffer has %d entries; nothing to consolidate.\n", n)
		return nil
	}
	if err := a.tracker.ResetDreamActions(); err != nil {
		logger.Warn("reset dream counter failed", "error", err)
	}
	if refl := a.memory.Reflections(1); len(refl) > 0 {
		fmt.Fprintln(stdout, refl[0].Content)
	}
	return nil
}

// runRecall searches archival memory and prints the matches.
func runRecall(ctx context.Context, stdout io.Writer, configPath, outputFmt, query string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(io.Discard, slog.LevelInfo, "text")

	embedder, closeEmbedder, err := newEmbedder(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEmbedder()

	store := openMemory(cfg, embedder, logger)
	res, err := store.Recall(ctx, query, 5)
	if err != nil {
		return fmt.Errorf("recall: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(stdout, "%d memories for %q (%s)\n", res.Found, query, res.Method)
	for i, m := range res.Memories {
		fmt.Fprintf(stdout, "%d. [%s] %s\n", i+1, m.ID, m.Content)
		if len(m.Tags) > 0 {
			fmt.Fprintf(stdout, "   tags: %s\n", strings.Join(m.Tags, ", "))
		}
	}
	return nil
}

// loadConfig locates and parses the YAML configuration file. Returns
// the parsed config and the path that was loaded.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
