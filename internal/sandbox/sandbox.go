// Package sandbox validates filesystem paths and shell commands before
// tools touch them. Path rules come from the merged config
// (denied_paths always win, then allowed_paths); command screening is a
// fixed heuristic list. It runs alongside the permission engine and is
// not a process-level sandbox.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
)

// Unicode spaces that should be normalized to regular space
var unicodeSpaces = regexp.MustCompile(`[\x{00A0}\x{2000}-\x{200A}\x{202F}\x{205F}\x{3000}]`)

func normalizeUnicodeSpaces(s string) string {
	return unicodeSpaces.ReplaceAllString(s, " ")
}

// expandTilde handles ~ expansion after unicode normalization.
func expandTilde(path string) string {
	normalized := strings.TrimSpace(normalizeUnicodeSpaces(path))

	if normalized == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(normalized, "~/") {
		home, _ := os.UserHomeDir()
		return home + normalized[1:]
	}
	return normalized
}

// Normalize expands a leading tilde, resolves the path to absolute
// against cwd (the process working directory when cwd is empty), and
// collapses "." and ".." lexically. The path does not have to exist.
func Normalize(path, cwd string) string {
	expanded := expandTilde(path)
	if expanded == "" {
		return ""
	}
	if !filepath.IsAbs(expanded) {
		if cwd == "" {
			cwd, _ = os.Getwd()
		}
		expanded = filepath.Join(cwd, expanded)
	}
	return filepath.Clean(expanded)
}

// Under reports whether p equals base or lies beneath it. Both inputs
// are normalized first, so Under("~/x/../y", "~") holds.
func Under(p, base string) bool {
	p = Normalize(p, "")
	base = Normalize(base, "")
	if p == "" || base == "" {
		return false
	}
	return p == base || strings.HasPrefix(p, base+string(filepath.Separator))
}

// Result is the outcome of a validation check.
type Result struct {
	OK      bool
	Message string
}

func ok() Result { return Result{OK: true} }

func fail(format string, args ...any) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}

// ValidatePath checks a path against the configured allow/deny lists.
// Rules apply in order: empty path, denied prefixes, allowed prefixes.
// op names the operation ("read", "write", ...) for logging only.
func ValidatePath(path string, cfg *config.Config, cwd, op string) Result {
	if strings.TrimSpace(normalizeUnicodeSpaces(path)) == "" {
		return fail("Path is empty")
	}

	p := Normalize(path, cwd)

	for _, denied := range cfg.DeniedPaths {
		if Under(p, Normalize(denied, cwd)) {
			L_warn("sandbox: denied path", "path", p, "rule", denied, "op", op)
			return fail("Access denied: %s is in restricted area %s", p, denied)
		}
	}

	if len(cfg.AllowedPaths) > 0 {
		for _, allowed := range cfg.AllowedPaths {
			if Under(p, Normalize(allowed, cwd)) {
				L_trace("sandbox: path allowed", "path", p, "rule", allowed, "op", op)
				return ok()
			}
		}
		L_warn("sandbox: path outside allowed list", "path", p, "op", op)
		return fail("Access denied: %s is outside allowed paths", p)
	}

	return ok()
}

// AtomicWriteFile writes data to a file atomically (temp file + rename),
// preserving the permissions of an existing target.
func AtomicWriteFile(path string, data []byte, defaultPerm os.FileMode) error {
	perm := defaultPerm
	if perm == 0 {
		perm = 0600
	}

	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
		L_trace("sandbox: preserving file permissions", "path", path, "perm", perm)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".llamar-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("atomic rename failed: %w", err)
	}

	success = true
	return nil
}
