package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := NewIndex(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func writeLines(t *testing.T, path string, n int, marker string) {
	t.Helper()
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %03d %s\n", i, marker)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIndexFileDedup(t *testing.T) {
	ix := newTestIndex(t)
	path := filepath.Join(t.TempDir(), "notes.md")
	writeLines(t, path, 120, "alpha")

	n, err := ix.IndexFile(path, "memory")
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if n != 3 {
		t.Errorf("first index = %d chunks, want 3", n)
	}

	n, err = ix.IndexFile(path, "memory")
	if err != nil {
		t.Fatalf("IndexFile (repeat): %v", err)
	}
	if n != 0 {
		t.Errorf("repeat index = %d chunks, want 0", n)
	}

	// Modify one line; re-index must do work again.
	data, _ := os.ReadFile(path)
	modified := strings.Replace(string(data), "line 060 alpha", "line 060 OMEGA", 1)
	if err := os.WriteFile(path, []byte(modified), 0644); err != nil {
		t.Fatal(err)
	}

	n, err = ix.IndexFile(path, "memory")
	if err != nil {
		t.Fatalf("IndexFile (modified): %v", err)
	}
	if n <= 0 {
		t.Errorf("modified index = %d chunks, want > 0", n)
	}
}

func TestIndexFreshness(t *testing.T) {
	ix := newTestIndex(t)
	path := filepath.Join(t.TempDir(), "2026-03-01.md")
	content := "# 2026-03-01\n\n- Investigated the zebrafish dataset (2026-03-01) #biology\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ix.IndexFile(path, "memory"); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}

	hits, err := ix.SearchFTS("zebrafish", 0, "")
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for a term literally present in the file")
	}
	if hits[0].Path != path {
		t.Errorf("hit path = %q, want %q", hits[0].Path, path)
	}
	if hits[0].Score <= 0 {
		t.Errorf("score = %f", hits[0].Score)
	}
	if !strings.Contains(hits[0].Text, "zebrafish") {
		t.Errorf("hit text = %q", hits[0].Text)
	}
}

func TestIndexChunkIDs(t *testing.T) {
	ix := newTestIndex(t)
	path := filepath.Join(t.TempDir(), "notes.md")
	writeLines(t, path, 120, "beta")

	if _, err := ix.IndexFile(path, "memory"); err != nil {
		t.Fatal(err)
	}

	rows, err := ix.db.Query("SELECT id FROM chunks WHERE path = ? ORDER BY start_line", path)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	want := []string{"notes.md:1-50", "notes.md:41-90", "notes.md:81-120"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("id[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestIndexEmptyFile(t *testing.T) {
	ix := newTestIndex(t)
	path := filepath.Join(t.TempDir(), "empty.md")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}

	n, err := ix.IndexFile(path, "memory")
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if n != 0 {
		t.Errorf("chunks = %d, want 0", n)
	}

	files, chunks, err := ix.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if files != 1 || chunks != 0 {
		t.Errorf("stats = %d files, %d chunks", files, chunks)
	}
}

func TestIndexFileMissing(t *testing.T) {
	ix := newTestIndex(t)
	if _, err := ix.IndexFile(filepath.Join(t.TempDir(), "nope.md"), "memory"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIndexClaudeSession(t *testing.T) {
	ix := newTestIndex(t)
	path := filepath.Join(t.TempDir(), "abc123.jsonl")
	transcript := strings.Join([]string{
		`{"type":"session","version":2,"id":"abc123","cwd":"/tmp"}`,
		`{"type":"message","role":"user","content":"where is the quarterly report","timestamp":1}`,
		`{"type":"message","role":"assistant","content":"It lives in reports/q2.Rmd","timestamp":2}`,
		`{"type":"checkpoint","label":"x"}`,
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(transcript), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := ix.IndexClaudeSession(path)
	if err != nil {
		t.Fatalf("IndexClaudeSession: %v", err)
	}
	if n == 0 {
		t.Fatal("expected chunks from transcript")
	}

	hits, err := ix.SearchFTS("quarterly", 0, "session")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for transcript term")
	}
	if !strings.Contains(hits[0].Text, "User: where is the quarterly report") {
		t.Errorf("text = %q", hits[0].Text)
	}
	if !strings.Contains(hits[0].Text, "Assistant: It lives in reports/q2.Rmd") {
		t.Errorf("text = %q", hits[0].Text)
	}
}

func TestIndexClaudeSessionNestedFormat(t *testing.T) {
	ix := newTestIndex(t)
	path := filepath.Join(t.TempDir(), "cc.jsonl")
	transcript := strings.Join([]string{
		`{"type":"user","message":{"role":"user","content":[{"type":"text","text":"summarize the churn model"}]},"timestamp":"2026-01-01T00:00:00Z"}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"It is a gradient boosted tree"},{"type":"tool_use","id":"t1"}]}}`,
		`{"type":"user","message":{"role":"user","content":"plain string content"}}`,
		`{"type":"queue-operation","operation":"enqueue"}`,
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(transcript), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := ix.IndexClaudeSession(path)
	if err != nil {
		t.Fatalf("IndexClaudeSession: %v", err)
	}
	if n == 0 {
		t.Fatal("expected chunks")
	}

	hits, err := ix.SearchFTS("churn", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	text := hits[0].Text
	for _, want := range []string{
		"User: summarize the churn model",
		"Assistant: It is a gradient boosted tree",
		"User: plain string content",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("chunk missing %q:\n%s", want, text)
		}
	}
}

func TestSearchFTSSourceFilter(t *testing.T) {
	ix := newTestIndex(t)
	dir := t.TempDir()

	memPath := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(memPath, []byte("the flamingo walked home\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.IndexFile(memPath, "memory"); err != nil {
		t.Fatal(err)
	}

	sessPath := filepath.Join(dir, "sess.jsonl")
	line := `{"type":"message","role":"user","content":"tell me about the flamingo"}`
	if err := os.WriteFile(sessPath, []byte(line+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.IndexClaudeSession(sessPath); err != nil {
		t.Fatal(err)
	}

	all, err := ix.SearchFTS("flamingo", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("unfiltered hits = %d, want 2", len(all))
	}

	sessOnly, err := ix.SearchFTS("flamingo", 0, "session")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessOnly) != 1 || sessOnly[0].Path != sessPath {
		t.Errorf("session hits = %+v", sessOnly)
	}
}

func TestSearchFTSLimit(t *testing.T) {
	ix := newTestIndex(t)
	dir := t.TempDir()
	for i := 0; i < 4; i++ {
		path := filepath.Join(dir, fmt.Sprintf("f%d.md", i))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("pelican sighting number %d\n", i)), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := ix.IndexFile(path, "memory"); err != nil {
			t.Fatal(err)
		}
	}

	hits, err := ix.SearchFTS("pelican", 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Errorf("hits = %d, want 2", len(hits))
	}
}

func TestSearchFTSEmptyQuery(t *testing.T) {
	ix := newTestIndex(t)
	hits, err := ix.SearchFTS("  \"'*  ", 5, "")
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if hits != nil {
		t.Errorf("hits = %v, want none", hits)
	}
}

func TestRemoveFile(t *testing.T) {
	ix := newTestIndex(t)
	path := filepath.Join(t.TempDir(), "gone.md")
	if err := os.WriteFile(path, []byte("ephemeral walrus note\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.IndexFile(path, "memory"); err != nil {
		t.Fatal(err)
	}

	if err := ix.RemoveFile(path); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}

	hits, err := ix.SearchFTS("walrus", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("hits after removal = %d", len(hits))
	}

	files, chunks, err := ix.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if files != 0 || chunks != 0 {
		t.Errorf("stats after removal = %d files, %d chunks", files, chunks)
	}
}

func TestIndexDir(t *testing.T) {
	ix := newTestIndex(t)
	dir := t.TempDir()
	for _, name := range []string{"a.md", "b.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("indexed content "+name+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("not markdown\n"), 0644); err != nil {
		t.Fatal(err)
	}

	files, chunks, err := ix.IndexDir(dir, "memory")
	if err != nil {
		t.Fatalf("IndexDir: %v", err)
	}
	if files != 2 {
		t.Errorf("files = %d, want 2", files)
	}
	if chunks != 2 {
		t.Errorf("chunks = %d, want 2", chunks)
	}
}

func TestIndexDirMissing(t *testing.T) {
	ix := newTestIndex(t)
	files, chunks, err := ix.IndexDir(filepath.Join(t.TempDir(), "absent"), "memory")
	if err != nil {
		t.Fatalf("IndexDir: %v", err)
	}
	if files != 0 || chunks != 0 {
		t.Errorf("files = %d chunks = %d", files, chunks)
	}
}

func TestChunkRowsHaveParentFile(t *testing.T) {
	ix := newTestIndex(t)
	path := filepath.Join(t.TempDir(), "parent.md")
	writeLines(t, path, 60, "gamma")
	if _, err := ix.IndexFile(path, "memory"); err != nil {
		t.Fatal(err)
	}

	var orphans int
	err := ix.db.QueryRow(`
		SELECT COUNT(*) FROM chunks c LEFT JOIN files f ON c.path = f.path
		WHERE f.path IS NULL
	`).Scan(&orphans)
	if err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("orphan chunks = %d", orphans)
	}
}
