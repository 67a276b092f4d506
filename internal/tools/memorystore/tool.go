package memorystore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/memory"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// Tool appends facts to the memory documents.
type Tool struct {
	store *memory.Store
}

// NewTool creates a memory store tool.
func NewTool(store *memory.Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string {
	return "memory_store"
}

func (t *Tool) Description() string {
	return "Store a durable fact in memory. USE THIS when the user states a preference, decision, or fact worth recalling in later sessions. Project scope writes to the repository's .llamar/MEMORY.md; global scope writes to the shared workspace memory and the daily log. Hashtags embedded in the fact become tags."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fact": map[string]any{
				"type":        "string",
				"description": "The fact to remember. May embed #hashtags; they are stripped into tags.",
			},
			"tags": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Explicit tags to attach to the entry.",
			},
			"category": map[string]any{
				"type":        "string",
				"description": "Target section: 'preferences', 'facts', or 'context'. Auto-detected when omitted.",
			},
			"scope": map[string]any{
				"type":        "string",
				"description": "'project' (default) or 'global'.",
			},
		},
		"required": []string{"fact"},
	}
}

type memoryStoreInput struct {
	Fact     string   `json:"fact"`
	Tags     []string `json:"tags,omitempty"`
	Category string   `json:"category,omitempty"`
	Scope    string   `json:"scope,omitempty"`
}

type memoryStoreOutput struct {
	Stored  bool     `json:"stored"`
	File    string   `json:"file"`
	Section string   `json:"section"`
	Entry   string   `json:"entry"`
	Tags    []string `json:"tags,omitempty"`
	Date    string   `json:"date"`
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*types.ToolResult, error) {
	var params memoryStoreInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if strings.TrimSpace(params.Fact) == "" {
		return nil, fmt.Errorf("fact is required")
	}

	scope := memory.Scope(strings.ToLower(strings.TrimSpace(params.Scope)))
	if scope == memory.ScopeAll {
		scope = memory.ScopeProject
	}
	if scope != memory.ScopeProject && scope != memory.ScopeGlobal {
		return nil, fmt.Errorf("scope must be 'project' or 'global'")
	}

	rec, err := t.store.Append(params.Fact, params.Tags, params.Category, scope)
	if err != nil {
		return nil, err
	}

	L_info("memory_store: stored", "scope", scope, "section", rec.Section, "tags", len(rec.Tags))

	return marshalOutput(memoryStoreOutput{
		Stored:  true,
		File:    rec.File,
		Section: rec.Section,
		Entry:   rec.Line,
		Tags:    rec.Tags,
		Date:    rec.Date,
	})
}

// Preview describes the write without performing it.
func (t *Tool) Preview(args map[string]any) string {
	fact, _ := args["fact"].(string)
	if fact == "" {
		return ""
	}
	scope, _ := args["scope"].(string)
	if scope == "" {
		scope = string(memory.ScopeProject)
	}
	return fmt.Sprintf("Scope: %s\nFact: %s", scope, fact)
}

func marshalOutput(v any) (*types.ToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return types.TextResult(string(b)), nil
}
