// Package permissions decides whether a tool may run. The engine only
// returns decisions; interactive confirmation belongs to whoever hosts
// the server (the CLI, a test harness, a parent agent).
package permissions

import (
	"context"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
)

// Mode is a permission decision for a tool.
type Mode string

const (
	Allow Mode = config.ModeAllow
	Ask   Mode = config.ModeAsk
	Deny  Mode = config.ModeDeny
)

// Approver supplies interactive confirmation for tools resolved to Ask.
// It returns whether the call may proceed and a label recorded in the
// trace as approved_by (e.g. "user", "auto-policy").
type Approver interface {
	Approve(ctx context.Context, tool string, args map[string]any) (approved bool, approvedBy string)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, tool string, args map[string]any) (bool, string)

func (f ApproverFunc) Approve(ctx context.Context, tool string, args map[string]any) (bool, string) {
	return f(ctx, tool, args)
}

// Resolve returns the decision for a tool:
// an explicit permissions[tool] entry wins verbatim, then the default
// gate (approval_mode) applies to tools listed in dangerous_tools,
// and everything else is allowed.
func Resolve(tool string, cfg *config.Config) Mode {
	if m, ok := cfg.Permissions[tool]; ok {
		return normalize(m)
	}
	for _, dangerous := range cfg.DangerousTools {
		if dangerous == tool {
			return normalize(cfg.ApprovalMode)
		}
	}
	return Allow
}

func normalize(m string) Mode {
	switch Mode(m) {
	case Allow, Ask, Deny:
		return Mode(m)
	default:
		// Unrecognized modes fail closed.
		return Deny
	}
}

// Decision is the outcome of gating one call.
type Decision struct {
	Allowed    bool
	Reason     string // set when not allowed
	ApprovedBy string // set when an approver said yes
}

// Gate resolves the tool's mode and, for Ask, consults the approver.
// A server running without an approver treats Ask as Deny.
func Gate(ctx context.Context, tool string, args map[string]any, cfg *config.Config, approver Approver) Decision {
	switch Resolve(tool, cfg) {
	case Allow:
		return Decision{Allowed: true}

	case Deny:
		L_info("permissions: denied", "tool", tool)
		return Decision{Allowed: false, Reason: "Permission denied for tool: " + tool}

	case Ask:
		if approver == nil {
			L_info("permissions: ask with no approver, denying", "tool", tool)
			return Decision{Allowed: false, Reason: "Permission denied for tool: " + tool + " (approval required but no approver is available)"}
		}
		approved, by := approver.Approve(ctx, tool, args)
		if !approved {
			L_info("permissions: approval refused", "tool", tool, "by", by)
			return Decision{Allowed: false, Reason: "Permission denied for tool: " + tool + " (approval refused)"}
		}
		L_debug("permissions: approved", "tool", tool, "by", by)
		return Decision{Allowed: true, ApprovedBy: by}
	}
	return Decision{Allowed: false, Reason: "Permission denied for tool: " + tool}
}
