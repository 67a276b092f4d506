// Package memory is the long-term store: human-editable Markdown files
// (MEMORY.md plus daily logs) and an SQLite FTS index over chunked
// memory and transcript files. The Markdown face is the write path the
// memory_store tool uses; the Index face answers memory_search queries.
package memory

import (
	"regexp"
	"strings"
	"time"
)

// Scope selects which memory document an operation targets.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"

	// ScopeAll matches both documents in searches.
	ScopeAll Scope = ""
)

// Well-known category sections. User-defined sections are accepted by
// the parser; these are the ones auto-detection can produce.
const (
	CategoryPreferences = "preferences"
	CategoryFacts       = "facts"
	CategoryContext     = "context"
)

// Entry is one parsed memory line.
type Entry struct {
	Text string
	Tags []string
	Date string // YYYY-MM-DD
}

var (
	hashtagPattern = regexp.MustCompile(`#([A-Za-z0-9_-]+)`)
	entryPattern   = regexp.MustCompile(`^\s*-\s+(.+?)\s+\((\d{4}-\d{2}-\d{2})\)((?:\s+#[A-Za-z0-9_-]+)*)\s*$`)
	spaceRun       = regexp.MustCompile(`\s+`)
)

// FormatEntry renders a memory line: "- <text> (YYYY-MM-DD) #tag #tag".
// The result parses back to the same text, tag set and date.
func FormatEntry(text string, tags []string, ts time.Time) string {
	var b strings.Builder
	b.WriteString("- ")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString(" (")
	b.WriteString(ts.Format("2006-01-02"))
	b.WriteString(")")
	for _, tag := range tags {
		b.WriteString(" #")
		b.WriteString(tag)
	}
	return b.String()
}

// ParseEntry decodes a memory line produced by FormatEntry. Leading and
// trailing whitespace is tolerated. Returns false for anything that is
// not an entry line.
func ParseEntry(line string) (*Entry, bool) {
	m := entryPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	entry := &Entry{Text: m[1], Date: m[2]}
	for _, tag := range hashtagPattern.FindAllStringSubmatch(m[3], -1) {
		entry.Tags = append(entry.Tags, tag[1])
	}
	return entry, true
}

// ExtractTags pulls embedded hashtags out of a fact and returns the
// cleaned text plus the tags in order of first appearance.
func ExtractTags(fact string) (string, []string) {
	var tags []string
	seen := make(map[string]bool)
	for _, m := range hashtagPattern.FindAllStringSubmatch(fact, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			tags = append(tags, m[1])
		}
	}
	clean := hashtagPattern.ReplaceAllString(fact, "")
	clean = strings.TrimSpace(spaceRun.ReplaceAllString(clean, " "))
	return clean, tags
}

// Keyword lists for category auto-detection. First match wins;
// everything else lands in facts.
var (
	preferenceWords = []string{"prefer", "like", "dislike", "favorite", "favourite", "always", "never", "style", "convention", "instead of"}
	contextWords    = []string{"currently", "working on", "this week", "this month", "today", "right now", "in progress", "deadline", "blocked"}
)

// DetectCategory classifies a fact into preferences, context or facts
// by keyword. Used when the caller supplies no category.
func DetectCategory(fact string) string {
	lower := strings.ToLower(fact)
	for _, w := range preferenceWords {
		if strings.Contains(lower, w) {
			return CategoryPreferences
		}
	}
	for _, w := range contextWords {
		if strings.Contains(lower, w) {
			return CategoryContext
		}
	}
	return CategoryFacts
}

// sectionTitle renders a category as a heading: "preferences" -> "Preferences".
func sectionTitle(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return ""
	}
	return strings.ToUpper(category[:1]) + strings.ToLower(category[1:])
}
