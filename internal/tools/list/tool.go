// Package list implements the list_files tool.
package list

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/sandbox"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// Tool lists directory contents, optionally filtered by a glob pattern
// and optionally recursive.
type Tool struct {
	cwd string
	cfg func() *config.Config
}

func NewTool(cwd string, cfg func() *config.Config) *Tool {
	return &Tool{cwd: cwd, cfg: cfg}
}

func (t *Tool) Name() string {
	return "list_files"
}

func (t *Tool) Description() string {
	return "List files in a directory. Optionally filter by a glob pattern and recurse into subdirectories."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The directory to list.",
			},
			"pattern": map[string]any{
				"type":        "string",
				"description": "Optional glob pattern, e.g. *.R",
			},
			"recursive": map[string]any{
				"type":        "boolean",
				"description": "Descend into subdirectories.",
			},
		},
		"required": []string{"path"},
	}
}

type input struct {
	Path      string `json:"path"`
	Pattern   string `json:"pattern,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
}

func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (*types.ToolResult, error) {
	var params input
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if v := sandbox.ValidatePath(params.Path, t.cfg(), t.cwd, "list"); !v.OK {
		return types.ErrorResult(v.Message), nil
	}
	dir := sandbox.Normalize(params.Path, t.cwd)

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return types.ErrorResult(fmt.Sprintf("Directory not found: %s", dir)), nil
		}
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return types.ErrorResult(fmt.Sprintf("Not a directory: %s", dir)), nil
	}

	var names []string
	if params.Recursive {
		names, err = t.walk(dir, params.Pattern)
	} else {
		names, err = t.readDir(dir, params.Pattern)
	}
	if err != nil {
		return nil, err
	}

	L_debug("list_files: listed", "path", dir, "count", len(names), "recursive", params.Recursive)
	if len(names) == 0 {
		return types.TextResult("No files found"), nil
	}
	sort.Strings(names)
	return types.TextResult(strings.Join(names, "\n")), nil
}

func (t *Tool) readDir(dir, pattern string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if pattern != "" {
			matched, err := filepath.Match(pattern, name)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
			}
			if !matched {
				continue
			}
		}
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

func (t *Tool) walk(root, pattern string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			L_trace("list_files: skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		if pattern != "" {
			matched, merr := filepath.Match(pattern, d.Name())
			if merr != nil {
				return fmt.Errorf("bad pattern %q: %w", pattern, merr)
			}
			if !matched {
				return nil
			}
		}
		names = append(names, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return names, nil
}
