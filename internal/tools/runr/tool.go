// Package runr implements the run_r tool: execute a snippet of R code in
// a fresh interpreter.
package runr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/tools/exec"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// Tool writes R code to a temp file and runs it with Rscript --vanilla.
type Tool struct {
	cwd    string
	runner *exec.Runner
}

func NewTool(cwd string, runner *exec.Runner) *Tool {
	return &Tool{cwd: cwd, runner: runner}
}

func (t *Tool) Name() string {
	return "run_r"
}

func (t *Tool) Description() string {
	return "Execute R code and return the printed output. The code runs in a fresh Rscript --vanilla process in the working directory."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "The R code to execute.",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds. Default 30.",
			},
		},
		"required": []string{"code"},
	}
}

type input struct {
	Code    string `json:"code"`
	Timeout int    `json:"timeout,omitempty"`
}

func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (*types.ToolResult, error) {
	var params input
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	tmp, err := os.CreateTemp("", "llamar-*.R")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp script: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(params.Code); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp script: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp script: %w", err)
	}

	timeout := exec.DefaultTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
	}

	L_debug("run_r: executing", "bytes", len(params.Code), "timeout", timeout)
	res, err := t.runner.RunArgs(ctx, []string{"Rscript", "--vanilla", tmpPath}, t.cwd, timeout)
	if err != nil {
		return types.TextResult("Error: " + err.Error()), nil
	}
	return types.TextResult(exec.FormatResult(res)), nil
}

// Preview echoes the code for dry runs.
func (t *Tool) Preview(args map[string]any) string {
	code, _ := args["code"].(string)
	if code == "" {
		return ""
	}
	return "R code:\n" + code
}
