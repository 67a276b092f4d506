// Package write implements the write_file tool.
package write

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/sandbox"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// Tool writes file contents atomically, replacing any existing file.
type Tool struct {
	cwd string
	cfg func() *config.Config
}

func NewTool(cwd string, cfg func() *config.Config) *Tool {
	return &Tool{cwd: cwd, cfg: cfg}
}

func (t *Tool) Name() string {
	return "write_file"
}

func (t *Tool) Description() string {
	return "Write content to a file, replacing it if it exists. Parent directories are created as needed."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path of the file to write.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The full content to write.",
			},
		},
		"required": []string{"path", "content"},
	}
}

type input struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (*types.ToolResult, error) {
	var params input
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if v := sandbox.ValidatePath(params.Path, t.cfg(), t.cwd, "write"); !v.OK {
		return types.ErrorResult(v.Message), nil
	}
	resolved := sandbox.Normalize(params.Path, t.cwd)

	if err := sandbox.AtomicWriteFile(resolved, []byte(params.Content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	L_info("write_file: wrote", "path", resolved, "bytes", len(params.Content))
	return types.TextResult(fmt.Sprintf("Wrote %d bytes to %s", len(params.Content), resolved)), nil
}

// Preview describes the write for dry runs without touching the file.
func (t *Tool) Preview(args map[string]any) string {
	content, _ := args["content"].(string)
	path, _ := args["path"].(string)
	if path == "" {
		return ""
	}
	return fmt.Sprintf("Would write %d bytes to %s", len(content), sandbox.Normalize(path, t.cwd))
}
