package list

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roelfdiedericks/llamar/internal/config"
)

func testTool(t *testing.T) (*Tool, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	return NewTool(dir, func() *config.Config { return &cfg }), dir
}

func call(t *testing.T, tool *Tool, args map[string]any) (string, bool) {
	t.Helper()
	raw, _ := json.Marshal(args)
	result, err := tool.Execute(context.Background(), raw)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return result.GetText(), result.IsError
}

func seed(t *testing.T, dir string) {
	t.Helper()
	os.WriteFile(filepath.Join(dir, "analysis.R"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "model.R"), []byte("y"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.md"), []byte("z"), 0644)
	os.MkdirAll(filepath.Join(dir, "data"), 0755)
	os.WriteFile(filepath.Join(dir, "data", "clean.R"), []byte("w"), 0644)
}

func TestListDirectory(t *testing.T) {
	tool, dir := testTool(t)
	seed(t, dir)

	text, isErr := call(t, tool, map[string]any{"path": dir})
	if isErr {
		t.Fatalf("unexpected error: %s", text)
	}
	lines := strings.Split(text, "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d entries: %q", len(lines), text)
	}
	// Sorted, directories get a trailing slash.
	if lines[0] != "analysis.R" || lines[1] != "data/" {
		t.Errorf("entries = %v", lines)
	}
}

func TestListPattern(t *testing.T) {
	tool, dir := testTool(t)
	seed(t, dir)

	text, _ := call(t, tool, map[string]any{"path": dir, "pattern": "*.R"})
	lines := strings.Split(text, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d entries: %q", len(lines), text)
	}
	for _, line := range lines {
		if !strings.HasSuffix(line, ".R") {
			t.Errorf("non-R entry: %q", line)
		}
	}
}

func TestListRecursive(t *testing.T) {
	tool, dir := testTool(t)
	seed(t, dir)

	text, _ := call(t, tool, map[string]any{"path": dir, "pattern": "*.R", "recursive": true})
	lines := strings.Split(text, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d entries: %q", len(lines), text)
	}
	if !strings.Contains(text, filepath.Join("data", "clean.R")) {
		t.Errorf("nested file missing: %q", text)
	}
}

func TestListEmpty(t *testing.T) {
	tool, dir := testTool(t)

	text, isErr := call(t, tool, map[string]any{"path": dir})
	if isErr {
		t.Fatalf("unexpected error: %s", text)
	}
	if text != "No files found" {
		t.Errorf("text = %q", text)
	}

	// Pattern with no hits also reports empty.
	seed(t, dir)
	text, _ = call(t, tool, map[string]any{"path": dir, "pattern": "*.py"})
	if text != "No files found" {
		t.Errorf("text = %q", text)
	}
}

func TestListMissingDir(t *testing.T) {
	tool, dir := testTool(t)
	text, isErr := call(t, tool, map[string]any{"path": filepath.Join(dir, "ghost")})
	if !isErr {
		t.Fatal("expected error result")
	}
	if !strings.Contains(text, "Directory not found") {
		t.Errorf("text = %q", text)
	}
}

func TestListFileNotDir(t *testing.T) {
	tool, dir := testTool(t)
	seed(t, dir)
	text, isErr := call(t, tool, map[string]any{"path": filepath.Join(dir, "notes.md")})
	if !isErr {
		t.Fatal("expected error result")
	}
	if !strings.Contains(text, "Not a directory") {
		t.Errorf("text = %q", text)
	}
}
