package grep

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

func TestGrepFindsMatches(t *testing.T) {
	tool, dir := testTool(t)
	os.WriteFile(filepath.Join(dir, "model.R"), []byte("fit <- lm(y ~ x)\nsummary(fit)\nplot(fit)"), 0644)

	text, isErr := call(t, tool, map[string]any{"pattern": "fit"})
	if isErr {
		t.Fatalf("unexpected error: %s", text)
	}
	lines := strings.Split(text, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d matches: %q", len(lines), text)
	}
	if lines[0] != "model.R:1: fit <- lm(y ~ x)" {
		t.Errorf("first match = %q", lines[0])
	}
	if lines[1] != "model.R:2: summary(fit)" {
		t.Errorf("second match = %q", lines[1])
	}
}

func TestGrepDefaultFilePattern(t *testing.T) {
	tool, dir := testTool(t)
	os.WriteFile(filepath.Join(dir, "analysis.R"), []byte("library(dplyr)"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("library books"), 0644)

	// Default *.R must skip notes.txt.
	text, _ := call(t, tool, map[string]any{"pattern": "library"})
	if strings.Contains(text, "notes.txt") {
		t.Errorf("default pattern matched non-R file: %q", text)
	}
	if !strings.Contains(text, "analysis.R:1:") {
		t.Errorf("R file not matched: %q", text)
	}

	// Explicit file_pattern widens the search.
	text, _ = call(t, tool, map[string]any{"pattern": "library", "file_pattern": "*.txt"})
	if !strings.Contains(text, "notes.txt:1: library books") {
		t.Errorf("explicit pattern missed file: %q", text)
	}
}

func TestGrepSubdirectories(t *testing.T) {
	tool, dir := testTool(t)
	os.MkdirAll(filepath.Join(dir, "R"), 0755)
	os.WriteFile(filepath.Join(dir, "R", "utils.R"), []byte("helper <- function() 1"), 0644)

	text, _ := call(t, tool, map[string]any{"pattern": "helper"})
	want := filepath.Join("R", "utils.R") + ":1: helper <- function() 1"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestGrepNoMatches(t *testing.T) {
	tool, dir := testTool(t)
	os.WriteFile(filepath.Join(dir, "empty.R"), []byte("# nothing here"), 0644)

	text, isErr := call(t, tool, map[string]any{"pattern": "unicorns"})
	if isErr {
		t.Fatalf("unexpected error: %s", text)
	}
	if text != "No matches found" {
		t.Errorf("text = %q", text)
	}
}

func TestGrepInvalidPattern(t *testing.T) {
	tool, _ := testTool(t)
	text, isErr := call(t, tool, map[string]any{"pattern": "[unclosed"})
	if !isErr {
		t.Fatal("expected error result")
	}
	if !strings.Contains(text, "Invalid pattern") {
		t.Errorf("text = %q", text)
	}
}

func TestGrepExplicitPath(t *testing.T) {
	tool, dir := testTool(t)
	sub := filepath.Join(dir, "scripts")
	os.MkdirAll(sub, 0755)
	os.WriteFile(filepath.Join(sub, "go.R"), []byte("run()"), 0644)
	os.WriteFile(filepath.Join(dir, "top.R"), []byte("run()"), 0644)

	text, _ := call(t, tool, map[string]any{"pattern": "run", "path": sub})
	if strings.Contains(text, "top.R") {
		t.Errorf("search escaped the given path: %q", text)
	}
	if !strings.Contains(text, "go.R:1: run()") {
		t.Errorf("match missing: %q", text)
	}
}
