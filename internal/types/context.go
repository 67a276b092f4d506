package types

import "context"

// RunContext carries per-call session information into tool handlers.
// Tools retrieve the active config and session identity from here rather
// than from globals, so a server can host several sessions at once.
type RunContext struct {
	SessionID  string // uuid of the owning session, empty for sessionless calls
	SessionKey string // "llamar:{id}" or "agent:main:subagent:{id}"
	AgentID    string // agent namespace, default "main"
	Turn       int    // conversation turn counter, 0 when unknown
	CWD        string // working directory tools resolve relative paths against
}

// runContextKey is used to store RunContext in context.Context
type runContextKey struct{}

// WithRunContext adds run context to a context.Context
func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// GetRunContext retrieves run context from a context.Context.
// Returns nil if no run context is set.
func GetRunContext(ctx context.Context) *RunContext {
	if rc, ok := ctx.Value(runContextKey{}).(*RunContext); ok {
		return rc
	}
	return nil
}
