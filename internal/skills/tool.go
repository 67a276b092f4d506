package skills

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roelfdiedericks/llamar/internal/types"
)

// Tool exposes a file skill as a callable tool. Invocation returns the
// skill body with {baseDir} tokens already substituted.
type Tool struct {
	skill *Skill
}

// NewTool wraps a loaded skill.
func NewTool(skill *Skill) *Tool {
	return &Tool{skill: skill}
}

func (t *Tool) Name() string {
	return t.skill.Name
}

func (t *Tool) Description() string {
	if t.skill.Description != "" {
		return t.skill.Description
	}
	return fmt.Sprintf("File skill %s", t.skill.Name)
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*types.ToolResult, error) {
	return types.TextResult(t.skill.Body), nil
}
