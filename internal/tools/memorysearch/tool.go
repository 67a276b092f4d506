package memorysearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/memory"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// Tool searches stored memory: the MEMORY.md entry scan plus, when the
// chunk index is open, a full-text search over indexed files.
type Tool struct {
	store *memory.Store
	index *memory.Index
}

// NewTool creates a memory search tool. index may be nil, in which case
// only the Markdown documents are scanned.
func NewTool(store *memory.Store, index *memory.Index) *Tool {
	return &Tool{store: store, index: index}
}

func (t *Tool) Name() string {
	return "memory_search"
}

func (t *Tool) Description() string {
	return "Search stored memory. USE THIS when the user asks 'what did we decide', 'what's my preference', or references stored decisions or context. Scans MEMORY.md entries and runs a full-text search over indexed memory files and session transcripts. Returns matching entries with file and line, plus ranked chunks."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query. Matched case-insensitively against memory entries and as keywords against the chunk index.",
			},
			"scope": map[string]any{
				"type":        "string",
				"description": "Restrict the entry scan: 'project' or 'global'. Omit to search both.",
			},
			"source": map[string]any{
				"type":        "string",
				"description": "Restrict chunk results to one source, e.g. 'memory' or 'session'. Omit for all sources.",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of chunk results. Default: 10.",
			},
		},
		"required": []string{"query"},
	}
}

type memorySearchInput struct {
	Query  string `json:"query"`
	Scope  string `json:"scope,omitempty"`
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type memorySearchOutput struct {
	Entries []memory.Hit       `json:"entries"`
	Chunks  []memory.SearchHit `json:"chunks,omitempty"`
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (*types.ToolResult, error) {
	var params memorySearchInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	if params.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	scope := memory.Scope(strings.ToLower(strings.TrimSpace(params.Scope)))
	switch scope {
	case memory.ScopeAll, memory.ScopeProject, memory.ScopeGlobal:
	default:
		return nil, fmt.Errorf("unknown scope: %q", params.Scope)
	}

	L_debug("memory_search: executing", "query", truncate(params.Query, 50), "scope", scope, "source", params.Source)

	entries, err := t.store.Search(params.Query, scope)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []memory.Hit{}
	}

	output := memorySearchOutput{Entries: entries}
	if t.index != nil {
		chunks, err := t.index.SearchFTS(params.Query, params.Limit, params.Source)
		if err != nil {
			L_warn("memory_search: fts query failed", "error", err)
		} else {
			output.Chunks = chunks
		}
	}

	L_info("memory_search: completed", "query", truncate(params.Query, 30), "entries", len(output.Entries), "chunks", len(output.Chunks))

	return marshalOutput(output)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func marshalOutput(v any) (*types.ToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return types.TextResult(string(b)), nil
}
