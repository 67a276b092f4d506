// Package gittool implements git_status, git_diff and git_log as thin
// wrappers over the git CLI.
package gittool

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/roelfdiedericks/llamar/internal/config"
	"github.com/roelfdiedericks/llamar/internal/sandbox"
	"github.com/roelfdiedericks/llamar/internal/tools/exec"
	"github.com/roelfdiedericks/llamar/internal/types"
)

const defaultLogCount = 10

// baseTool carries what every git wrapper needs.
type baseTool struct {
	cwd    string
	cfg    func() *config.Config
	runner *exec.Runner
}

// resolveRepo validates and normalizes the target repository path.
func (b *baseTool) resolveRepo(repo string) (string, *types.ToolResult) {
	if repo == "" {
		repo = b.cwd
	}
	if v := sandbox.ValidatePath(repo, b.cfg(), b.cwd, "git"); !v.OK {
		return "", types.ErrorResult(v.Message)
	}
	return sandbox.Normalize(repo, b.cwd), nil
}

// runGit executes git with the given args in the repository.
func (b *baseTool) runGit(ctx context.Context, repo string, args ...string) (*types.ToolResult, error) {
	argv := append([]string{"git", "-C", repo}, args...)
	res, err := b.runner.RunArgs(ctx, argv, b.cwd, exec.DefaultTimeout)
	if err != nil {
		return types.TextResult("Error: " + err.Error()), nil
	}
	return types.TextResult(exec.FormatResult(res)), nil
}

func repoProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Path to the git repository. Defaults to the working directory.",
	}
}

// StatusTool reports working tree status.
type StatusTool struct{ baseTool }

func NewStatusTool(cwd string, cfg func() *config.Config, runner *exec.Runner) *StatusTool {
	return &StatusTool{baseTool{cwd: cwd, cfg: cfg, runner: runner}}
}

func (t *StatusTool) Name() string        { return "git_status" }
func (t *StatusTool) Description() string { return "Show the git working tree status." }

func (t *StatusTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"repo": repoProperty(),
		},
	}
}

func (t *StatusTool) Execute(ctx context.Context, raw json.RawMessage) (*types.ToolResult, error) {
	var params struct {
		Repo string `json:"repo,omitempty"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	repo, errResult := t.resolveRepo(params.Repo)
	if errResult != nil {
		return errResult, nil
	}
	return t.runGit(ctx, repo, "status")
}

// DiffTool shows changes against the index or a given ref.
type DiffTool struct{ baseTool }

func NewDiffTool(cwd string, cfg func() *config.Config, runner *exec.Runner) *DiffTool {
	return &DiffTool{baseTool{cwd: cwd, cfg: cfg, runner: runner}}
}

func (t *DiffTool) Name() string        { return "git_diff" }
func (t *DiffTool) Description() string { return "Show git diff output, optionally limited to one path." }

func (t *DiffTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"repo": repoProperty(),
			"path": map[string]any{
				"type":        "string",
				"description": "Optional: limit the diff to this path.",
			},
			"staged": map[string]any{
				"type":        "boolean",
				"description": "Diff the staged changes instead of the working tree.",
			},
		},
	}
}

func (t *DiffTool) Execute(ctx context.Context, raw json.RawMessage) (*types.ToolResult, error) {
	var params struct {
		Repo   string `json:"repo,omitempty"`
		Path   string `json:"path,omitempty"`
		Staged bool   `json:"staged,omitempty"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	repo, errResult := t.resolveRepo(params.Repo)
	if errResult != nil {
		return errResult, nil
	}

	args := []string{"diff"}
	if params.Staged {
		args = append(args, "--staged")
	}
	if params.Path != "" {
		args = append(args, "--", params.Path)
	}
	return t.runGit(ctx, repo, args...)
}

// LogTool shows recent commits.
type LogTool struct{ baseTool }

func NewLogTool(cwd string, cfg func() *config.Config, runner *exec.Runner) *LogTool {
	return &LogTool{baseTool{cwd: cwd, cfg: cfg, runner: runner}}
}

func (t *LogTool) Name() string        { return "git_log" }
func (t *LogTool) Description() string { return "Show recent git commits, one line each." }

func (t *LogTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"repo": repoProperty(),
			"count": map[string]any{
				"type":        "integer",
				"description": "Number of commits to show. Default 10.",
			},
		},
	}
}

func (t *LogTool) Execute(ctx context.Context, raw json.RawMessage) (*types.ToolResult, error) {
	var params struct {
		Repo  string `json:"repo,omitempty"`
		Count int    `json:"count,omitempty"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	repo, errResult := t.resolveRepo(params.Repo)
	if errResult != nil {
		return errResult, nil
	}

	count := params.Count
	if count <= 0 {
		count = defaultLogCount
	}
	return t.runGit(ctx, repo, "log", "--oneline", "-n", strconv.Itoa(count))
}
