package session

import (
	"strings"
	"testing"
)

func TestTraceAddAndLoad(t *testing.T) {
	store := newTestStore(t)
	sess, _ := store.Create("anthropic", "claude-opus-4-5", "/tmp")

	e1 := NewTraceEntry("read_file", map[string]any{"path": "/tmp/a.R"}, "data <- 1", true, 12, "")
	e2 := NewTraceEntry("bash", map[string]any{"command": "ls"}, "Error: nope", false, 40, "cli")
	if err := store.TraceAdd(sess.ID, e1); err != nil {
		t.Fatalf("TraceAdd: %v", err)
	}
	if err := store.TraceAdd(sess.ID, e2); err != nil {
		t.Fatalf("TraceAdd: %v", err)
	}

	entries, err := store.TraceLoad(sess.ID, 0)
	if err != nil {
		t.Fatalf("TraceLoad: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("loaded %d entries, want 2", len(entries))
	}
	if entries[0].Tool != "read_file" || !entries[0].Success {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Tool != "bash" || entries[1].Success {
		t.Errorf("second entry = %+v", entries[1])
	}
	if entries[1].ApprovedBy != "cli" {
		t.Errorf("ApprovedBy = %q, want cli", entries[1].ApprovedBy)
	}
}

func TestTraceLoadLimit(t *testing.T) {
	store := newTestStore(t)
	sess, _ := store.Create("anthropic", "claude-opus-4-5", "/tmp")

	for i := 0; i < 5; i++ {
		entry := NewTraceEntry("grep_files", map[string]any{"pattern": "x"}, "No matches found", true, int64(i), "")
		store.TraceAdd(sess.ID, entry)
	}

	entries, err := store.TraceLoad(sess.ID, 2)
	if err != nil {
		t.Fatalf("TraceLoad: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("loaded %d entries, want 2", len(entries))
	}
	if entries[0].ElapsedMS != 3 || entries[1].ElapsedMS != 4 {
		t.Errorf("limit did not keep the newest entries: %+v", entries)
	}
}

func TestTraceLoadMissingFile(t *testing.T) {
	store := newTestStore(t)
	entries, err := store.TraceLoad("no-such-session", 0)
	if err != nil {
		t.Fatalf("TraceLoad: %v", err)
	}
	if entries != nil {
		t.Errorf("entries = %v, want nil", entries)
	}
}

func TestTraceTruncation(t *testing.T) {
	longArg := strings.Repeat("a", 300)
	longResult := strings.Repeat("b", 900)

	entry := NewTraceEntry("write_file", map[string]any{"content": longArg}, longResult, true, 1, "")
	if got := len([]rune(entry.Args["content"])); got != traceArgLimit+3 {
		t.Errorf("arg length = %d, want %d plus ellipsis", got, traceArgLimit)
	}
	if !strings.HasSuffix(entry.Args["content"], "...") {
		t.Error("truncated arg should end with ellipsis")
	}
	if got := len([]rune(entry.Result)); got != traceResultLimit+3 {
		t.Errorf("result length = %d, want %d plus ellipsis", got, traceResultLimit)
	}

	short := NewTraceEntry("bash", map[string]any{"command": "ls"}, "ok", true, 1, "")
	if short.Args["command"] != "ls" {
		t.Errorf("short arg modified: %q", short.Args["command"])
	}
	if short.Result != "ok" {
		t.Errorf("short result modified: %q", short.Result)
	}
}

func TestTraceOrderPreserved(t *testing.T) {
	store := newTestStore(t)
	sess, _ := store.Create("anthropic", "claude-opus-4-5", "/tmp")

	tools := []string{"read_file", "grep_files", "bash", "write_file"}
	for _, name := range tools {
		store.TraceAdd(sess.ID, NewTraceEntry(name, nil, "", true, 0, ""))
	}

	entries, _ := store.TraceLoad(sess.ID, 0)
	if len(entries) != len(tools) {
		t.Fatalf("loaded %d entries, want %d", len(entries), len(tools))
	}
	for i, name := range tools {
		if entries[i].Tool != name {
			t.Errorf("entry %d = %s, want %s", i, entries[i].Tool, name)
		}
	}
}

func TestFormatTrace(t *testing.T) {
	entries := []TraceEntry{
		NewTraceEntry("read_file", map[string]any{"path": "/tmp/x.R"}, "x <- 42\ny <- 1", true, 7, ""),
		NewTraceEntry("bash", map[string]any{"command": "rm -rf /"}, "Dangerous command blocked", false, 1, ""),
	}

	out := FormatTrace(entries)
	if !strings.Contains(out, "read_file ok (7ms)") {
		t.Errorf("missing ok line:\n%s", out)
	}
	if !strings.Contains(out, "bash error (1ms)") {
		t.Errorf("missing error line:\n%s", out)
	}
	if !strings.Contains(out, "path: /tmp/x.R") {
		t.Errorf("missing args line:\n%s", out)
	}
	if !strings.Contains(out, "x <- 42 ...") {
		t.Errorf("multi-line result should be collapsed to first line:\n%s", out)
	}

	if FormatTrace(nil) != "No trace entries" {
		t.Errorf("empty trace = %q", FormatTrace(nil))
	}
}
