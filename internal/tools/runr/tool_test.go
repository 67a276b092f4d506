package runr

import (
	"context"
	"encoding/json"
	osexec "os/exec"
	"strings"
	"testing"

	"github.com/roelfdiedericks/llamar/internal/tools/exec"
)

func requireRscript(t *testing.T) {
	t.Helper()
	if _, err := osexec.LookPath("Rscript"); err != nil {
		t.Skip("Rscript not installed")
	}
}

func TestRunRSimpleExpression(t *testing.T) {
	requireRscript(t)
	dir := t.TempDir()
	tool := NewTool(dir, exec.NewRunner(dir))
	raw, _ := json.Marshal(map[string]any{"code": "cat(6 * 7)"})
	result, err := tool.Execute(context.Background(), raw)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.GetText())
	}
	if got := result.GetText(); got != "42" {
		t.Errorf("text = %q", got)
	}
}

func TestRunRErrorIsOkText(t *testing.T) {
	requireRscript(t)
	dir := t.TempDir()
	tool := NewTool(dir, exec.NewRunner(dir))
	raw, _ := json.Marshal(map[string]any{"code": `stop("boom")`})
	result, err := tool.Execute(context.Background(), raw)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatal("R error should be Ok text, not an Error envelope")
	}
	text := result.GetText()
	if !strings.HasPrefix(text, "Error:") {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains(text, "boom") {
		t.Errorf("R error message missing: %q", text)
	}
}

func TestRunRPreview(t *testing.T) {
	tool := NewTool(t.TempDir(), exec.NewRunner(t.TempDir()))
	hint := tool.Preview(map[string]any{"code": "summary(df)"})
	if hint != "R code:\nsummary(df)" {
		t.Errorf("Preview = %q", hint)
	}
	if tool.Preview(map[string]any{}) != "" {
		t.Error("Preview without code should be empty")
	}
}

func TestRunRSchema(t *testing.T) {
	tool := NewTool(t.TempDir(), exec.NewRunner(t.TempDir()))
	if tool.Name() != "run_r" {
		t.Errorf("Name = %q", tool.Name())
	}
	schema := tool.Schema()
	required, _ := schema["required"].([]string)
	if len(required) != 1 || required[0] != "code" {
		t.Errorf("required = %v", schema["required"])
	}
}
