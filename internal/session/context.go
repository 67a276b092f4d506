package session

import (
	"fmt"

	"github.com/roelfdiedericks/llamar/internal/config"
)

// ContextLevel classifies how full a session's context window is.
type ContextLevel string

const (
	ContextOK       ContextLevel = "ok"
	ContextWarn     ContextLevel = "warn"
	ContextHigh     ContextLevel = "high"
	ContextCritical ContextLevel = "critical"
)

// Context window sizes by model. Unknown models get the default.
var modelContextWindows = map[string]int{
	"claude-opus-4-5":            200000,
	"claude-sonnet-4":            200000,
	"claude-3-5-sonnet-20241022": 200000,
	"claude-3-5-haiku-20241022":  200000,
}

const defaultContextWindow = 200000

// ContextWindow returns the context window size for a model.
func ContextWindow(model string) int {
	if w, ok := modelContextWindows[model]; ok {
		return w
	}
	return defaultContextWindow
}

// usagePct returns context usage as whole percent.
func usagePct(totalTokens, window int) int {
	if window <= 0 {
		return 0
	}
	return totalTokens * 100 / window
}

// Classify maps token usage onto the configured thresholds.
func Classify(totalTokens, window int, cfg *config.Config) ContextLevel {
	pct := usagePct(totalTokens, window)
	switch {
	case pct >= cfg.ContextCritPct:
		return ContextCritical
	case pct >= cfg.ContextHighPct:
		return ContextHigh
	case pct >= cfg.ContextWarnPct:
		return ContextWarn
	default:
		return ContextOK
	}
}

// ShouldCompact reports whether usage has crossed the auto-compaction
// threshold.
func ShouldCompact(totalTokens, window int, cfg *config.Config) bool {
	return usagePct(totalTokens, window) >= cfg.ContextCompactPct
}

// FormatContextStatus renders usage for display, e.g.
// "[Context: 12k/200k tokens (6%)]".
func FormatContextStatus(totalTokens, window int) string {
	if window <= 0 {
		return ""
	}
	return fmt.Sprintf("[Context: %dk/%dk tokens (%d%%)]", totalTokens/1000, window/1000, usagePct(totalTokens, window))
}
