package memorysearch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/roelfdiedericks/llamar/internal/memory"
)

func newTestStore(t *testing.T) (*memory.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := memory.NewStoreAt(
		filepath.Join(dir, "MEMORY.md"),
		filepath.Join(dir, "project", "MEMORY.md"),
		filepath.Join(dir, "daily"),
	)
	return store, dir
}

func call(t *testing.T, tool *Tool, args map[string]any) memorySearchOutput {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	res, err := tool.Execute(context.Background(), raw)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var out memorySearchOutput
	if err := json.Unmarshal([]byte(res.GetText()), &out); err != nil {
		t.Fatalf("decode output: %v\n%s", err, res.GetText())
	}
	return out
}

func TestMemorySearchEntriesWithoutIndex(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Append("Prefers ggplot2 over base graphics", nil, "", memory.ScopeProject); err != nil {
		t.Fatal(err)
	}
	tool := NewTool(store, nil)

	out := call(t, tool, map[string]any{"query": "ggplot2"})
	if len(out.Entries) != 1 {
		t.Fatalf("entries = %+v", out.Entries)
	}
	if out.Entries[0].Text != "Prefers ggplot2 over base graphics" {
		t.Errorf("text = %q", out.Entries[0].Text)
	}
	if out.Entries[0].Scope != memory.ScopeProject {
		t.Errorf("scope = %q", out.Entries[0].Scope)
	}
	if out.Chunks != nil {
		t.Errorf("chunks = %+v, want none without an index", out.Chunks)
	}
}

func TestMemorySearchNoMatchesReturnsEmptyList(t *testing.T) {
	store, _ := newTestStore(t)
	tool := NewTool(store, nil)

	out := call(t, tool, map[string]any{"query": "nonexistent"})
	if out.Entries == nil || len(out.Entries) != 0 {
		t.Errorf("entries = %#v, want empty list", out.Entries)
	}
}

func TestMemorySearchScopeFilter(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Append("shared topic project side", nil, "", memory.ScopeProject); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append("shared topic global side", nil, "", memory.ScopeGlobal); err != nil {
		t.Fatal(err)
	}
	tool := NewTool(store, nil)

	out := call(t, tool, map[string]any{"query": "shared topic", "scope": "global"})
	if len(out.Entries) != 1 || out.Entries[0].Scope != memory.ScopeGlobal {
		t.Errorf("entries = %+v", out.Entries)
	}

	out = call(t, tool, map[string]any{"query": "shared topic"})
	if len(out.Entries) != 2 {
		t.Errorf("entries = %+v", out.Entries)
	}
}

func TestMemorySearchWithIndex(t *testing.T) {
	store, dir := newTestStore(t)
	index, err := memory.NewIndex(filepath.Join(dir, "index.sqlite"))
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer index.Close()

	notes := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(notes, []byte("the osprey nests near the river\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := index.IndexFile(notes, "memory"); err != nil {
		t.Fatal(err)
	}

	tool := NewTool(store, index)
	out := call(t, tool, map[string]any{"query": "osprey"})
	if len(out.Chunks) != 1 {
		t.Fatalf("chunks = %+v", out.Chunks)
	}
	if out.Chunks[0].Path != notes {
		t.Errorf("path = %q", out.Chunks[0].Path)
	}

	out = call(t, tool, map[string]any{"query": "osprey", "source": "session"})
	if len(out.Chunks) != 0 {
		t.Errorf("chunks = %+v, want none for session source", out.Chunks)
	}
}

func TestMemorySearchRejectsBadInput(t *testing.T) {
	store, _ := newTestStore(t)
	tool := NewTool(store, nil)

	cases := []map[string]any{
		{},
		{"query": ""},
		{"query": "ok", "scope": "secret"},
		{"query": "[unclosed"},
	}
	for _, args := range cases {
		raw, _ := json.Marshal(args)
		if _, err := tool.Execute(context.Background(), raw); err == nil {
			t.Errorf("no error for %v", args)
		}
	}
}

func TestMemorySearchSchema(t *testing.T) {
	store, _ := newTestStore(t)
	tool := NewTool(store, nil)
	if tool.Name() != "memory_search" {
		t.Errorf("name = %q", tool.Name())
	}
	required, ok := tool.Schema()["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "query" {
		t.Errorf("required = %v", tool.Schema()["required"])
	}
}
