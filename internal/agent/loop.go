// Package agent implements the tool-calling agent loop: send the
// conversation to the model, run any function calls it emits, feed the
// outputs back, and repeat until the model answers in plain text.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/moltbot/internal/llm"
)

// DefaultMaxIterations bounds model round trips per run.
const DefaultMaxIterations = 10

// MaxIterationsText is the final text when the bound is reached.
const MaxIterationsText = "Agent reached maximum iterations without completing."

// State is the loop's position in a run.
type State string

const (
	StateThinking       State = "thinking"
	StateExecutingTools State = "executing_tools"
	StateDone           State = "done"
	StateMaxIterations  State = "max_iterations_reached"
)

// Responder produces model responses. *llm.Client satisfies it.
type Responder interface {
	CreateResponse(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// ToolExecutor declares and runs tools. *tools.Registry satisfies it.
type ToolExecutor interface {
	Definitions() []llm.Tool
	Execute(ctx context.Context, name string, argsJSON string) (string, error)
}

// Callbacks observe a run. Any may be nil. A panicking callback is
// logged and does not affect the run.
type Callbacks struct {
	OnIteration func(n int)
	OnToolCall  func(name, args, result string)
	OnResponse  func(thinking, final string)
}

// Config holds per-loop settings.
type Config struct {
	Model         string
	SystemPrompt  string
	MaxIterations int
	Temperature   *float64
}

// ToolCall records one executed call.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Output    string `json:"output"`
	Failed    bool   `json:"failed,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	Text       string     `json:"text"`
	State      State      `json:"state"`
	Iterations int        `json:"iterations"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Thinking   string     `json:"thinking,omitempty"`
	Usage      llm.Usage  `json:"usage"`
	// Items is the full conversation after the run, system prompt
	// included.
	Items []llm.Item `json:"-"`
}

// Loop runs the agent. It holds no per-run state; concurrent Runs are
// safe when the callbacks are.
type Loop struct {
	client    Responder
	tools     ToolExecutor
	cfg       Config
	callbacks Callbacks
	logger    *slog.Logger
}

// New creates a loop. tools may be nil for a tool-less agent.
func New(client Responder, tools ToolExecutor, cfg Config, callbacks Callbacks, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Loop{
		client:    client,
		tools:     tools,
		cfg:       cfg,
		callbacks: callbacks,
		logger:    logger.With("component", "agent"),
	}
}

// Think runs input with no prior conversation and returns the final text.
func (l *Loop) Think(ctx context.Context, input string) (string, error) {
	res, err := l.Run(ctx, input, nil)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Run executes the loop. Model and transport errors end the run and are
// returned; tool failures are fed back to the model as text.
func (l *Loop) Run(ctx context.Context, input string, prior []llm.Item) (*Result, error) {
	start := time.Now()

	items := make([]llm.Item, 0, len(prior)+2)
	if l.cfg.SystemPrompt != "" {
		items = append(items, llm.SystemMessage(l.cfg.SystemPrompt))
	}
	items = append(items, prior...)
	items = append(items, llm.UserMessage(input))

	var defs []llm.Tool
	if l.tools != nil {
		defs = l.tools.Definitions()
	}

	res := &Result{State: StateThinking}
	var thinking []string

	for iter := 1; iter <= l.cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Iterations = iter
		res.State = StateThinking
		l.safeCall("on_iteration", func() {
			if l.callbacks.OnIteration != nil {
				l.callbacks.OnIteration(iter)
			}
		})

		req := &llm.Request{
			Model:       l.cfg.Model,
			Input:       items,
			Temperature: l.cfg.Temperature,
		}
		if len(defs) > 0 {
			req.Tools = defs
			req.ToolChoice = &llm.ToolChoice{Mode: llm.ToolChoiceAuto}
		}

		resp, err := l.client.CreateResponse(ctx, req)
		if err != nil {
			l.logger.Error("model call failed", "iteration", iter, "error", err)
			return nil, fmt.Errorf("iteration %d: %w", iter, err)
		}
		if resp.Usage != nil {
			res.Usage.InputTokens += resp.Usage.InputTokens
			res.Usage.OutputTokens += resp.Usage.OutputTokens
			res.Usage.TotalTokens += resp.Usage.TotalTokens
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			res.State = StateDone
			res.Text = resp.FirstText()
			items = append(items, llm.AssistantMessage(res.Text))
			res.Items = items
			res.Thinking = strings.Join(thinking, "\n")
			l.logger.Info("agent run complete",
				"iterations", iter,
				"tool_calls", len(res.ToolCalls),
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			l.respond(res.Thinking, res.Text)
			return res, nil
		}

		if text := resp.FirstText(); text != "" {
			thinking = append(thinking, text)
		}

		res.State = StateExecutingTools
		for _, call := range calls {
			tc := l.execute(ctx, call)
			res.ToolCalls = append(res.ToolCalls, tc)
			thinking = append(thinking, "[Tool: "+tc.Name+"]")
			items = append(items, call, llm.FunctionCallOutput(call.CallID, tc.Output))
		}
	}

	res.State = StateMaxIterations
	res.Text = MaxIterationsText
	res.Items = items
	res.Thinking = strings.Join(thinking, "\n")
	l.logger.Warn("agent hit iteration limit",
		"max_iterations", l.cfg.MaxIterations,
		"tool_calls", len(res.ToolCalls),
	)
	l.respond(res.Thinking, res.Text)
	return res, nil
}

// execute runs one function call. Every failure becomes output text.
func (l *Loop) execute(ctx context.Context, call llm.Item) ToolCall {
	tc := ToolCall{Name: call.Name, Arguments: call.Arguments}
	if strings.TrimSpace(tc.Arguments) == "" {
		tc.Arguments = "{}"
	}

	var out string
	var err error
	switch {
	case !json.Valid([]byte(tc.Arguments)):
		err = fmt.Errorf("invalid JSON arguments for %s", call.Name)
	case l.tools == nil:
		err = fmt.Errorf("no tools available")
	default:
		out, err = l.runTool(ctx, call.Name, tc.Arguments)
	}
	if err != nil {
		tc.Failed = true
		out = "Error: " + err.Error()
		l.logger.Warn("tool call failed", "tool", call.Name, "error", err)
	} else {
		l.logger.Debug("tool call complete", "tool", call.Name, "output_len", len(out))
	}
	tc.Output = out

	l.safeCall("on_tool_call", func() {
		if l.callbacks.OnToolCall != nil {
			l.callbacks.OnToolCall(tc.Name, tc.Arguments, tc.Output)
		}
	})
	return tc
}

// runTool executes a tool and turns a handler panic into an error.
func (l *Loop) runTool(ctx context.Context, name, args string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("tool panicked", "tool", name, "panic", r)
			out, err = "", fmt.Errorf("tool %s panicked: %v", name, r)
		}
	}()
	return l.tools.Execute(ctx, name, args)
}

func (l *Loop) respond(thinking, final string) {
	l.safeCall("on_response", func() {
		if l.callbacks.OnResponse != nil {
			l.callbacks.OnResponse(thinking, final)
		}
	})
}

func (l *Loop) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}
