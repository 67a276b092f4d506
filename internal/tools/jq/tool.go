// Package jq implements the jq tool: query and transform JSON with jq
// syntax, evaluated in-process.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/sandbox"
	"github.com/roelfdiedericks/llamar/internal/tools/exec"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// Tool queries JSON from a file, an inline string or a command's stdout.
type Tool struct {
	cwd    string
	cfg    func() *config.Config
	runner *exec.Runner
}

func NewTool(cwd string, cfg func() *config.Config, runner *exec.Runner) *Tool {
	return &Tool{cwd: cwd, cfg: cfg, runner: runner}
}

func (t *Tool) Name() string {
	return "jq"
}

func (t *Tool) Description() string {
	return "Query and transform JSON using jq syntax. Can read from a file, inline JSON, or command output."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "jq query/filter expression (e.g., '.items[] | .name')",
			},
			"file": map[string]any{
				"type":        "string",
				"description": "Path to a JSON file to query. Mutually exclusive with 'input' and 'exec'.",
			},
			"input": map[string]any{
				"type":        "string",
				"description": "Inline JSON string to query. Mutually exclusive with 'file' and 'exec'.",
			},
			"exec": map[string]any{
				"type":        "string",
				"description": "Shell command whose stdout is piped through jq. Mutually exclusive with 'file' and 'input'.",
			},
			"raw": map[string]any{
				"type":        "boolean",
				"description": "Output raw strings without JSON encoding (like jq -r). Default: false",
			},
			"compact": map[string]any{
				"type":        "boolean",
				"description": "Compact output (no pretty-printing). Default: false",
			},
		},
		"required": []string{"query"},
	}
}

type input struct {
	Query   string `json:"query"`
	File    string `json:"file,omitempty"`
	Input   string `json:"input,omitempty"`
	Exec    string `json:"exec,omitempty"`
	Raw     bool   `json:"raw,omitempty"`
	Compact bool   `json:"compact,omitempty"`
}

func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (*types.ToolResult, error) {
	var params input
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	sources := 0
	for _, s := range []string{params.File, params.Input, params.Exec} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		return types.ErrorResult("Cannot specify multiple input sources (file, input, exec)"), nil
	}
	if sources == 0 {
		return types.ErrorResult("Must specify one of: 'file', 'input', or 'exec'"), nil
	}

	var data []byte
	switch {
	case params.File != "":
		if v := sandbox.ValidatePath(params.File, t.cfg(), t.cwd, "read"); !v.OK {
			return types.ErrorResult(v.Message), nil
		}
		var err error
		data, err = os.ReadFile(sandbox.Normalize(params.File, t.cwd))
		if err != nil {
			return types.ErrorResult(fmt.Sprintf("Cannot read file: %s", err)), nil
		}
		L_debug("jq: read file", "file", params.File, "bytes", len(data))

	case params.Input != "":
		data = []byte(params.Input)

	case params.Exec != "":
		if v := sandbox.ValidateCommand(params.Exec); !v.OK {
			return types.ErrorResult(v.Message), nil
		}
		res, err := t.runner.RunShell(ctx, params.Exec, t.cwd, exec.DefaultTimeout)
		if err != nil {
			return types.TextResult("Error: " + err.Error()), nil
		}
		if res.ExitCode != 0 {
			return types.TextResult(exec.FormatResult(res)), nil
		}
		data = res.Stdout
		L_debug("jq: exec completed", "bytes", len(data))
	}

	result, err := runQuery(params.Query, data, params.Raw, params.Compact)
	if err != nil {
		return types.ErrorResult(err.Error()), nil
	}
	return types.TextResult(result), nil
}

// runQuery parses and evaluates a jq program against JSON data.
func runQuery(query string, data []byte, raw, compact bool) (string, error) {
	var in any
	if err := json.Unmarshal(data, &in); err != nil {
		return "", fmt.Errorf("invalid JSON input: %w", err)
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return "", fmt.Errorf("invalid jq query: %w", err)
	}

	var lines []string
	iter := parsed.Run(in)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if qerr, isErr := v.(error); isErr {
			return "", fmt.Errorf("jq error: %w", qerr)
		}

		line, err := formatValue(v, raw, compact)
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func formatValue(v any, raw, compact bool) (string, error) {
	if raw {
		if s, ok := v.(string); ok {
			return s, nil
		}
		if v == nil {
			return "null", nil
		}
	}

	var (
		b   []byte
		err error
	)
	if compact || raw {
		b, err = json.Marshal(v)
	} else {
		b, err = json.MarshalIndent(v, "", "  ")
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(b), nil
}
