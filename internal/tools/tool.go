// Package tools provides the skill registry and execution runner.
package tools

import (
	"context"
	"encoding/json"

	"github.com/roelfdiedericks/llamar/internal/types"
)

// Tool is the interface that all skills must implement
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a human-readable description for the client
	Description() string

	// Schema returns the JSON Schema for the tool's input parameters
	Schema() map[string]any

	// Execute runs the tool with the given input
	Execute(ctx context.Context, input json.RawMessage) (*types.ToolResult, error)
}

// Previewer is an optional interface for tools that can describe what a
// call would do without doing it. The runner appends the preview to
// dry-run output.
type Previewer interface {
	Preview(args map[string]any) string
}

// ToDefinition converts a Tool to the MCP wire format
func ToDefinition(t Tool) types.ToolDefinition {
	return types.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Schema(),
	}
}
