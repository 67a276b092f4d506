package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/paths"
	"github.com/roelfdiedericks/llamar/internal/sandbox"
)

// Store is the Markdown face of memory: the global workspace document,
// the project-local document, and the daily append logs.
type Store struct {
	globalFile  string
	projectFile string
	dailyDir    string
}

// NewStore resolves the memory documents for a working directory.
func NewStore(cwd string) (*Store, error) {
	global, err := paths.GlobalMemoryFile()
	if err != nil {
		return nil, err
	}
	daily, err := paths.MemoryDir()
	if err != nil {
		return nil, err
	}
	return &Store{
		globalFile:  global,
		projectFile: paths.ProjectMemoryFile(cwd),
		dailyDir:    daily,
	}, nil
}

// NewStoreAt builds a store over explicit file locations (used by tests).
func NewStoreAt(globalFile, projectFile, dailyDir string) *Store {
	return &Store{globalFile: globalFile, projectFile: projectFile, dailyDir: dailyDir}
}

// Record describes one stored entry.
type Record struct {
	Line    string
	File    string
	Section string
	Tags    []string
	Date    string
}

// Append stores a fact in the scoped memory document. Hashtags embedded
// in the fact are extracted into tags; the category section is created
// on demand and the entry lands at its tail. Global facts are also
// appended to the daily log; that write is best-effort.
func (s *Store) Append(fact string, tags []string, category string, scope Scope) (*Record, error) {
	clean, embedded := ExtractTags(fact)
	if clean == "" {
		return nil, fmt.Errorf("fact is empty")
	}

	allTags := append([]string{}, tags...)
	for _, tag := range embedded {
		if !containsTag(allTags, tag) {
			allTags = append(allTags, tag)
		}
	}

	if category = strings.ToLower(strings.TrimSpace(category)); category == "" {
		category = DetectCategory(clean)
	}

	path, err := s.fileFor(scope)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entry := FormatEntry(clean, allTags, now)

	content := "# Memory\n"
	if data, err := os.ReadFile(path); err == nil {
		content = string(data)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read memory file: %w", err)
	}

	updated := insertEntry(content, category, entry)
	if err := sandbox.AtomicWriteFile(path, []byte(updated), 0644); err != nil {
		return nil, fmt.Errorf("write memory file: %w", err)
	}

	if scope == ScopeGlobal {
		if err := s.appendDaily(entry, now); err != nil {
			L_warn("memory: daily log append failed", "error", err)
		}
	}

	L_debug("memory: stored entry", "scope", scope, "section", category, "tags", len(allTags))
	return &Record{
		Line:    entry,
		File:    path,
		Section: category,
		Tags:    allTags,
		Date:    now.Format("2006-01-02"),
	}, nil
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (s *Store) fileFor(scope Scope) (string, error) {
	switch scope {
	case ScopeGlobal:
		return s.globalFile, nil
	case ScopeProject:
		return s.projectFile, nil
	default:
		return "", fmt.Errorf("unknown scope: %q", scope)
	}
}

// insertEntry places an entry at the tail of its category section,
// appending the section when it does not exist. Headings match
// case-insensitively and surrounding whitespace is ignored.
func insertEntry(content, category, entry string) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")

	secIdx := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "##") {
			continue
		}
		heading := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		if strings.EqualFold(heading, category) {
			secIdx = i
			break
		}
	}

	if secIdx < 0 {
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
		lines = append(lines, "", "## "+sectionTitle(category), "", entry)
		return strings.Join(lines, "\n") + "\n"
	}

	insertAt := secIdx + 1
	for j := secIdx + 1; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		if strings.HasPrefix(trimmed, "#") {
			break
		}
		if trimmed != "" {
			insertAt = j + 1
		}
	}

	toInsert := []string{entry}
	if insertAt == secIdx+1 {
		// Blank section: keep one empty line under the heading.
		toInsert = []string{"", entry}
	}

	out := make([]string, 0, len(lines)+len(toInsert))
	out = append(out, lines[:insertAt]...)
	out = append(out, toInsert...)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, "\n") + "\n"
}

// appendDaily writes an entry to the workspace daily log,
// creating the file with a date header on first use.
func (s *Store) appendDaily(entry string, now time.Time) error {
	if err := os.MkdirAll(s.dailyDir, 0750); err != nil {
		return err
	}
	path := filepath.Join(s.dailyDir, now.Format("2006-01-02")+".md")
	_, statErr := os.Stat(path)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if os.IsNotExist(statErr) {
		if _, err := f.WriteString("# " + now.Format("2006-01-02") + "\n\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(entry + "\n")
	return err
}

// Hit is one line matched by Search.
type Hit struct {
	Text    string   `json:"text"`
	Tags    []string `json:"tags,omitempty"`
	Date    string   `json:"date,omitempty"`
	Section string   `json:"section,omitempty"`
	Scope   Scope    `json:"scope"`
	Line    int      `json:"line"`
	Raw     string   `json:"raw,omitempty"`
}

type searchTarget struct {
	path  string
	scope Scope
}

func (s *Store) targets(scope Scope) []searchTarget {
	switch scope {
	case ScopeGlobal:
		return []searchTarget{{s.globalFile, ScopeGlobal}}
	case ScopeProject:
		return []searchTarget{{s.projectFile, ScopeProject}}
	default:
		return []searchTarget{
			{s.projectFile, ScopeProject},
			{s.globalFile, ScopeGlobal},
		}
	}
}

// Search scans the scoped memory documents line by line with a
// case-insensitive regex. Section headings update the current section
// and are not hits themselves.
func (s *Store) Search(query string, scope Scope) ([]Hit, error) {
	re, err := regexp.Compile("(?i)" + query)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	var hits []Hit
	for _, target := range s.targets(scope) {
		data, err := os.ReadFile(target.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read memory file: %w", err)
		}

		section := ""
		for i, line := range strings.Split(string(data), "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "#") {
				section = strings.ToLower(strings.TrimSpace(strings.TrimLeft(trimmed, "#")))
				continue
			}
			if trimmed == "" || !re.MatchString(line) {
				continue
			}

			hit := Hit{Section: section, Scope: target.scope, Line: i + 1, Raw: line}
			if entry, ok := ParseEntry(line); ok {
				hit.Text = entry.Text
				hit.Tags = entry.Tags
				hit.Date = entry.Date
			} else {
				hit.Text = trimmed
			}
			hits = append(hits, hit)
		}
	}

	L_debug("memory: search", "scope", scope, "hits", len(hits))
	return hits, nil
}
