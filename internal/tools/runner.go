package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/permissions"
	"github.com/roelfdiedericks/llamar/internal/session"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// Runner gates, validates and executes tool calls. One runner serves all
// connections; per-call state lives in the context.
type Runner struct {
	registry *Registry
	cfg      func() *config.Config
	approver permissions.Approver
	store    *session.Store
}

// NewRunner creates a runner over the given registry. cfg must return the
// current config; approver and store may be nil (no interactive approval,
// no tracing).
func NewRunner(registry *Registry, cfg func() *config.Config, approver permissions.Approver, store *session.Store) *Runner {
	return &Runner{
		registry: registry,
		cfg:      cfg,
		approver: approver,
		store:    store,
	}
}

// Registry returns the underlying tool registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Run executes one tool call end to end: permission gate, argument
// validation, dry-run short circuit, bounded execution, trace. Errors are
// returned inside the result envelope, never as a transport failure.
func (r *Runner) Run(ctx context.Context, name string, args map[string]any) *types.ToolResult {
	start := time.Now()
	cfg := r.cfg()

	tool, ok := r.registry.Get(name)
	if !ok {
		return types.ErrorResult(fmt.Sprintf("Unknown tool: %s", name))
	}

	decision := permissions.Gate(ctx, name, args, cfg, r.approver)
	if !decision.Allowed {
		result := types.ErrorResult(decision.Reason)
		r.trace(ctx, name, args, result, start, decision.ApprovedBy)
		return result
	}

	if err := ValidateArgs(name, tool.Schema(), args); err != nil {
		result := types.ErrorResult(err.Error())
		r.trace(ctx, name, args, result, start, decision.ApprovedBy)
		return result
	}

	if cfg.DryRun {
		result := types.TextResult(r.preview(tool, args))
		r.trace(ctx, name, args, result, start, decision.ApprovedBy)
		return result
	}

	timeout := time.Duration(cfg.SkillTimeout) * time.Second
	result := r.execute(ctx, tool, args, timeout)
	r.trace(ctx, name, args, result, start, decision.ApprovedBy)
	return result
}

type execOutcome struct {
	result *types.ToolResult
	err    error
}

// execute runs the handler in its own goroutine with a wall-clock bound.
// Panics become errors; a timed-out handler is cancelled and abandoned.
func (r *Runner) execute(ctx context.Context, tool Tool, args map[string]any, timeout time.Duration) *types.ToolResult {
	raw, err := json.Marshal(args)
	if err != nil {
		return types.ErrorResult(fmt.Sprintf("Invalid arguments: %s", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				L_error("runner: tool panicked", "tool", tool.Name(), "panic", p)
				done <- execOutcome{err: fmt.Errorf("%v", p)}
			}
		}()
		result, err := tool.Execute(runCtx, raw)
		done <- execOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return types.ErrorResult(out.err.Error())
		}
		if out.result == nil {
			return types.ErrorResult("Tool returned no result")
		}
		return out.result

	case <-runCtx.Done():
		if ctx.Err() != nil {
			return types.ErrorResult("Tool call cancelled")
		}
		L_warn("runner: tool timed out", "tool", tool.Name(), "timeout", timeout)
		return types.ErrorResult(fmt.Sprintf("Skill timed out after %d seconds", int(timeout.Seconds())))
	}
}

// preview renders the dry-run text: header, description, arguments sorted
// by key, plus whatever the tool itself can say about the call.
func (r *Runner) preview(tool Tool, args map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[DRY RUN] Would execute: %s\n", tool.Name())
	sb.WriteString(tool.Description())
	sb.WriteString("\nArguments:\n")

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %s: %v\n", k, args[k])
	}

	if p, ok := tool.(Previewer); ok {
		if hint := p.Preview(args); hint != "" {
			sb.WriteString(hint)
			if !strings.HasSuffix(hint, "\n") {
				sb.WriteString("\n")
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// trace appends a call record to the session's trace log. Best effort:
// failures are logged and swallowed.
func (r *Runner) trace(ctx context.Context, name string, args map[string]any, result *types.ToolResult, start time.Time, approvedBy string) {
	if r.store == nil {
		return
	}
	rc := types.GetRunContext(ctx)
	if rc == nil || rc.SessionID == "" {
		return
	}

	entry := session.NewTraceEntry(name, args, result.GetText(), !result.IsError, time.Since(start).Milliseconds(), approvedBy)
	if err := r.store.TraceAdd(rc.SessionID, entry); err != nil {
		L_debug("runner: trace write failed", "session", rc.SessionID, "error", err)
	}
}
