// Package paths provides centralized path resolution for llamar.
// This package has NO internal imports (only stdlib) to avoid import cycles.
// All functions return errors to allow callers to log appropriately.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// BaseDir returns the llamar base directory (~/.llamar).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".llamar"), nil
}

// DataPath returns a path within the llamar data directory (~/.llamar/<subpath>).
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// GlobalConfigPath returns the user-global config location (~/.llamar/config.json).
func GlobalConfigPath() (string, error) {
	return DataPath("config.json")
}

// ProjectConfigPath returns the project-local config location (<cwd>/.llamar/config.json).
func ProjectConfigPath(cwd string) string {
	return filepath.Join(cwd, ".llamar", "config.json")
}

// AgentDir returns the per-agent directory (~/.llamar/agents/<agentID>).
func AgentDir(agentID string) (string, error) {
	return DataPath(filepath.Join("agents", agentID))
}

// SessionsDir returns the session store directory for an agent
// (~/.llamar/agents/<agentID>/sessions).
func SessionsDir(agentID string) (string, error) {
	dir, err := AgentDir(agentID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions"), nil
}

// WorkspaceDir returns the shared workspace (~/.llamar/workspace).
func WorkspaceDir() (string, error) {
	return DataPath("workspace")
}

// GlobalMemoryFile returns the global memory document (~/.llamar/workspace/MEMORY.md).
func GlobalMemoryFile() (string, error) {
	ws, err := WorkspaceDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(ws, "MEMORY.md"), nil
}

// ProjectMemoryFile returns the project memory document (<cwd>/.llamar/MEMORY.md).
func ProjectMemoryFile(cwd string) string {
	return filepath.Join(cwd, ".llamar", "MEMORY.md")
}

// MemoryDir returns the daily-log and index directory (~/.llamar/workspace/memory).
func MemoryDir() (string, error) {
	ws, err := WorkspaceDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(ws, "memory"), nil
}

// MemoryIndexPath returns the chunk index database for an agent
// (~/.llamar/workspace/memory/<agentID>.sqlite).
func MemoryIndexPath(agentID string) (string, error) {
	dir, err := MemoryDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, agentID+".sqlite"), nil
}

// SkillsDir returns the user skill directory (~/.llamar/skills).
func SkillsDir() (string, error) {
	return DataPath("skills")
}

// TasksDBPath returns the scheduler database (~/.llamar/tasks.sqlite).
func TasksDBPath() (string, error) {
	return DataPath("tasks.sqlite")
}

// EnsureDir creates a directory if it doesn't exist.
// Uses 0750 permissions (owner: rwx, group: rx, other: none).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// EnsureParentDir creates the parent directory of a file path if it doesn't exist.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// ExpandTilde expands a path that starts with ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
