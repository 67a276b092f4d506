// Package read implements the read_file tool.
package read

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/media"
	"github.com/roelfdiedericks/llamar/internal/sandbox"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// Tool reads file contents. Text files come back as text; supported
// images are optimized and embedded as an image content block.
type Tool struct {
	cwd string
	cfg func() *config.Config
}

// NewTool creates a read tool resolving relative paths against cwd.
func NewTool(cwd string, cfg func() *config.Config) *Tool {
	return &Tool{cwd: cwd, cfg: cfg}
}

func (t *Tool) Name() string {
	return "read_file"
}

func (t *Tool) Description() string {
	return "Read the contents of a file. Returns the whole file, or only the first N lines when lines is given. Image files (jpeg, png, gif, webp) are returned as an embedded image."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to read. Absolute, relative to the working directory, or ~-prefixed.",
			},
			"lines": map[string]any{
				"type":        "integer",
				"description": "Optional: return only the first N lines.",
			},
		},
		"required": []string{"path"},
	}
}

type input struct {
	Path  string `json:"path"`
	Lines int    `json:"lines,omitempty"`
}

func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (*types.ToolResult, error) {
	var params input
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if v := sandbox.ValidatePath(params.Path, t.cfg(), t.cwd, "read"); !v.OK {
		return types.ErrorResult(v.Message), nil
	}
	resolved := sandbox.Normalize(params.Path, t.cwd)

	content, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			L_debug("read_file: not found", "path", resolved)
			return types.ErrorResult(fmt.Sprintf("File not found: %s", resolved)), nil
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Detect MIME from magic bytes, not the extension.
	mimeType := media.DetectMIME(content)
	if media.IsSupported(mimeType) {
		img, err := media.Optimize(content)
		if err != nil {
			L_warn("read_file: image optimize failed", "path", resolved, "error", err)
			return types.ErrorResult(fmt.Sprintf("Cannot read image: %s", err)), nil
		}
		L_info("read_file: image", "path", resolved, "mimeType", img.MimeType, "bytes", img.Size())
		caption := fmt.Sprintf("Image: %s (%s, %dx%d)", filepath.Base(resolved), img.MimeType, img.Width, img.Height)
		return types.ImageResult(img.Base64(), img.MimeType, caption), nil
	}

	text := string(content)
	if params.Lines > 0 {
		lines := strings.Split(text, "\n")
		if params.Lines < len(lines) {
			text = strings.Join(lines[:params.Lines], "\n")
		}
	}

	L_debug("read_file: read", "path", resolved, "bytes", len(text))
	return types.TextResult(text), nil
}
