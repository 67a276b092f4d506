package sandbox

import (
	"regexp"

	. "github.com/roelfdiedericks/llamar/internal/logging"
)

// dangerousCommands is the heuristic screen applied to shell commands
// before execution. Each pattern maps to a human-readable reason so the
// refusal names what was matched.
var dangerousCommands = []struct {
	pattern *regexp.Regexp
	reason  string
}{
	{regexp.MustCompile(`(?i)\brm\s+-[a-z]*[rf][a-z]*\s+(-[a-z]*\s+)*/(\s|$|\*)`), "recursive delete of the filesystem root"},
	{regexp.MustCompile(`(?i)\brm\s+-[a-z]*[rf][a-z]*\s+(-[a-z]*\s+)*~(/)?(\s|$|\*)`), "recursive delete of the home directory"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;?\s*:`), "fork bomb"},
	{regexp.MustCompile(`>\s*/dev/(sd|hd|vd|nvme|mmcblk)`), "write to a raw block device"},
	{regexp.MustCompile(`(?i)\bdd\b[^|;]*\bof=/dev/`), "dd onto a device node"},
	{regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`), "filesystem format"},
	{regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]*\s+)*-?R[a-z]*\s+777\s+/(\s|$)`), "recursive chmod 777 of the filesystem root"},
	{regexp.MustCompile(`(?i)\bchmod\s+777\s+/(\s|$)`), "chmod 777 of the filesystem root"},
	{regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;]*\|\s*(sudo\s+)?(ba|z|da)?sh\b`), "piping a download straight into a shell"},
}

// ValidateCommand screens a shell command against the dangerous-pattern
// list. A match yields a structured refusal naming the matched rule;
// anything else passes. This is a heuristic layer, not a parser.
func ValidateCommand(cmd string) Result {
	normalized := normalizeUnicodeSpaces(cmd)
	for _, entry := range dangerousCommands {
		if entry.pattern.MatchString(normalized) {
			L_warn("sandbox: dangerous command blocked", "reason", entry.reason)
			return fail("Dangerous command blocked: %s", entry.reason)
		}
	}
	return ok()
}
