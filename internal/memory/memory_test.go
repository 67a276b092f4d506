package memory

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestFormatEntryRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		text string
		tags []string
	}{
		{"User prefers tidyverse over base R", []string{"r", "style"}},
		{"Project deadline is next Friday", nil},
		{"Met with Sam about the pipeline (second revision)", []string{"meetings"}},
		{"Note about (2024-01-01) migration", []string{"dates"}},
	}

	for _, tt := range tests {
		line := FormatEntry(tt.text, tt.tags, ts)
		entry, ok := ParseEntry(line)
		if !ok {
			t.Fatalf("ParseEntry failed for %q", line)
		}
		if entry.Text != tt.text {
			t.Errorf("text = %q, want %q", entry.Text, tt.text)
		}
		if !reflect.DeepEqual(entry.Tags, tt.tags) {
			t.Errorf("tags = %v, want %v", entry.Tags, tt.tags)
		}
		if entry.Date != "2026-03-14" {
			t.Errorf("date = %q", entry.Date)
		}
	}
}

func TestParseEntryTolerant(t *testing.T) {
	entry, ok := ParseEntry("  -   spaced out fact (2026-01-02)  #a  #b  ")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if entry.Text != "spaced out fact" {
		t.Errorf("text = %q", entry.Text)
	}
	if len(entry.Tags) != 2 || entry.Tags[0] != "a" || entry.Tags[1] != "b" {
		t.Errorf("tags = %v", entry.Tags)
	}
}

func TestParseEntryRejectsNonEntries(t *testing.T) {
	for _, line := range []string{
		"## Facts",
		"just prose",
		"- bullet without a date",
		"- almost (2026-1-2)",
		"",
	} {
		if _, ok := ParseEntry(line); ok {
			t.Errorf("ParseEntry accepted %q", line)
		}
	}
}

func TestExtractTags(t *testing.T) {
	clean, tags := ExtractTags("Prefers #r and #tidyverse for analysis #r")
	if clean != "Prefers and for analysis" {
		t.Errorf("clean = %q", clean)
	}
	if !reflect.DeepEqual(tags, []string{"r", "tidyverse"}) {
		t.Errorf("tags = %v", tags)
	}

	clean, tags = ExtractTags("no tags here")
	if clean != "no tags here" || tags != nil {
		t.Errorf("clean = %q tags = %v", clean, tags)
	}
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		fact string
		want string
	}{
		{"User prefers ggplot2 over lattice", CategoryPreferences},
		{"Always use styler before committing", CategoryPreferences},
		{"Currently working on the revenue model", CategoryContext},
		{"Deadline is Thursday", CategoryContext},
		{"The data lives in /srv/data", CategoryFacts},
		{"Sam owns the ETL pipeline", CategoryFacts},
	}
	for _, tt := range tests {
		if got := DetectCategory(tt.fact); got != tt.want {
			t.Errorf("DetectCategory(%q) = %q, want %q", tt.fact, got, tt.want)
		}
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStoreAt(
		filepath.Join(dir, "MEMORY.md"),
		filepath.Join(dir, "project", "MEMORY.md"),
		filepath.Join(dir, "daily"),
	)
}

func TestAppendCreatesDocument(t *testing.T) {
	store := newTestStore(t)

	rec, err := store.Append("The dataset has 14000 rows", nil, "", ScopeProject)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if rec.Section != CategoryFacts {
		t.Errorf("section = %q", rec.Section)
	}

	data, err := os.ReadFile(store.projectFile)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# Memory\n") {
		t.Errorf("missing header:\n%s", content)
	}
	if !strings.Contains(content, "## Facts\n") {
		t.Errorf("missing section:\n%s", content)
	}
	if !strings.Contains(content, rec.Line) {
		t.Errorf("missing entry %q:\n%s", rec.Line, content)
	}
}

func TestAppendInsertsAtSectionTail(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Append("first fact", nil, "facts", ScopeProject); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append("prefers dark mode", nil, "", ScopeProject); err != nil {
		t.Fatal(err)
	}
	rec, err := store.Append("second fact", nil, "facts", ScopeProject)
	if err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(store.projectFile)
	lines := strings.Split(string(data), "\n")

	firstIdx, secondIdx, prefHeadIdx := -1, -1, -1
	for i, line := range lines {
		switch {
		case strings.Contains(line, "first fact"):
			firstIdx = i
		case strings.Contains(line, "second fact"):
			secondIdx = i
		case strings.EqualFold(strings.TrimSpace(line), "## Preferences"):
			prefHeadIdx = i
		}
	}
	if firstIdx < 0 || secondIdx < 0 || prefHeadIdx < 0 {
		t.Fatalf("layout missing pieces:\n%s", data)
	}
	if secondIdx != firstIdx+1 {
		t.Errorf("second fact not at section tail (first=%d second=%d):\n%s", firstIdx, secondIdx, data)
	}
	if rec.Section != "facts" {
		t.Errorf("section = %q", rec.Section)
	}
}

func TestAppendMatchesHeadingCaseInsensitively(t *testing.T) {
	store := newTestStore(t)
	seed := "# Memory\n\n## FACTS\n\n- old note (2026-01-01)\n"
	os.MkdirAll(filepath.Dir(store.projectFile), 0755)
	if err := os.WriteFile(store.projectFile, []byte(seed), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Append("new note", nil, "facts", ScopeProject); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(store.projectFile)
	if strings.Count(string(data), "## ") != 1 {
		t.Errorf("duplicate section created:\n%s", data)
	}
	oldIdx := strings.Index(string(data), "old note")
	newIdx := strings.Index(string(data), "new note")
	if newIdx < oldIdx {
		t.Errorf("new entry not after existing one:\n%s", data)
	}
}

func TestAppendIntoBlankSection(t *testing.T) {
	store := newTestStore(t)
	seed := "# Memory\n\n## Context\n\n## Facts\n\n- existing (2026-01-01)\n"
	os.MkdirAll(filepath.Dir(store.projectFile), 0755)
	if err := os.WriteFile(store.projectFile, []byte(seed), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Append("working on ingest this week", nil, "context", ScopeProject); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(store.projectFile)
	content := string(data)
	ctxIdx := strings.Index(content, "## Context")
	factsIdx := strings.Index(content, "## Facts")
	entryIdx := strings.Index(content, "working on ingest")
	if !(ctxIdx < entryIdx && entryIdx < factsIdx) {
		t.Errorf("entry not inside blank section:\n%s", content)
	}
}

func TestAppendExtractsHashtags(t *testing.T) {
	store := newTestStore(t)
	rec, err := store.Append("Use renv for deps #r #tooling", []string{"setup"}, "preferences", ScopeProject)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rec.Tags, []string{"setup", "r", "tooling"}) {
		t.Errorf("tags = %v", rec.Tags)
	}
	if strings.Contains(rec.Line, "deps #r #tooling (") {
		t.Errorf("hashtags not stripped from text: %q", rec.Line)
	}
	if !strings.HasSuffix(rec.Line, "#setup #r #tooling") {
		t.Errorf("tags not appended: %q", rec.Line)
	}
}

func TestAppendGlobalWritesDailyLog(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Append("global fact one", nil, "", ScopeGlobal); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append("global fact two", nil, "", ScopeGlobal); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append("project only", nil, "", ScopeProject); err != nil {
		t.Fatal(err)
	}

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(store.dailyDir, date+".md"))
	if err != nil {
		t.Fatalf("daily log missing: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# "+date+"\n") {
		t.Errorf("daily log missing date header:\n%s", content)
	}
	if !strings.Contains(content, "global fact one") || !strings.Contains(content, "global fact two") {
		t.Errorf("daily log missing entries:\n%s", content)
	}
	if strings.Contains(content, "project only") {
		t.Errorf("project fact leaked into daily log:\n%s", content)
	}
}

func TestAppendRejectsEmptyFact(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Append("   #only-tags  ", nil, "", ScopeProject); err == nil {
		t.Error("expected error for empty fact")
	}
	if _, err := store.Append("fine", nil, "", Scope("weird")); err == nil {
		t.Error("expected error for unknown scope")
	}
}

func TestSearchFindsEntries(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Append("Prefers ggplot2 for charts #r", nil, "preferences", ScopeProject); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append("The cluster runs Slurm", nil, "facts", ScopeGlobal); err != nil {
		t.Fatal(err)
	}

	hits, err := store.Search("GGPLOT2", ScopeProject)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	hit := hits[0]
	if hit.Text != "Prefers ggplot2 for charts" {
		t.Errorf("text = %q", hit.Text)
	}
	if len(hit.Tags) != 1 || hit.Tags[0] != "r" {
		t.Errorf("tags = %v", hit.Tags)
	}
	if hit.Section != "preferences" {
		t.Errorf("section = %q", hit.Section)
	}
	if hit.Scope != ScopeProject {
		t.Errorf("scope = %q", hit.Scope)
	}
	if hit.Date != time.Now().Format("2006-01-02") {
		t.Errorf("date = %q", hit.Date)
	}
	if hit.Line <= 0 {
		t.Errorf("line = %d", hit.Line)
	}
}

func TestSearchAllScopes(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Append("shared term alpha", nil, "facts", ScopeProject); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append("shared term beta", nil, "facts", ScopeGlobal); err != nil {
		t.Fatal(err)
	}

	hits, err := store.Search("shared term", ScopeAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].Scope != ScopeProject || hits[1].Scope != ScopeGlobal {
		t.Errorf("scope order = %q, %q", hits[0].Scope, hits[1].Scope)
	}
}

func TestSearchInvalidRegex(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Search("[unclosed", ScopeAll); err == nil {
		t.Error("expected error for invalid regex")
	}
}

func TestSearchMissingFiles(t *testing.T) {
	store := newTestStore(t)
	hits, err := store.Search("anything", ScopeAll)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits != nil {
		t.Errorf("hits = %v, want none", hits)
	}
}
