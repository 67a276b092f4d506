package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/sandbox"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// Tool runs shell commands. Dangerous commands are screened before the
// shell ever sees them; non-zero exits surface as Ok text starting with
// "Error:" so the model can read stderr.
type Tool struct {
	cwd    string
	cfg    func() *config.Config
	runner *Runner
}

func NewTool(cwd string, cfg func() *config.Config, runner *Runner) *Tool {
	return &Tool{cwd: cwd, cfg: cfg, runner: runner}
}

func (t *Tool) Name() string {
	return "bash"
}

func (t *Tool) Description() string {
	return "Execute a shell command and return its output. Commands run in the working directory with a timeout."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The command to execute.",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds. Default 30.",
			},
		},
		"required": []string{"command"},
	}
}

type input struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (*types.ToolResult, error) {
	var params input
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if v := sandbox.ValidateCommand(params.Command); !v.OK {
		L_warn("bash: blocked command", "command", preview(params.Command))
		return types.ErrorResult(v.Message), nil
	}

	timeout := DefaultTimeout
	if params.Timeout > 0 {
		timeout = time.Duration(params.Timeout) * time.Second
	}

	res, err := t.runner.RunShell(ctx, params.Command, t.cwd, timeout)
	if err != nil {
		// Timeouts and spawn failures are still LLM-visible text.
		return types.TextResult("Error: " + err.Error()), nil
	}
	return types.TextResult(FormatResult(res)), nil
}

// Preview echoes the command for dry runs.
func (t *Tool) Preview(args map[string]any) string {
	command, _ := args["command"].(string)
	if command == "" {
		return ""
	}
	return "Command: " + command
}
