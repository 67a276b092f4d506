package skills

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	. "github.com/roelfdiedericks/llamar/internal/logging"
)

// Loader discovers skills under a root directory: one subdirectory per
// skill, each containing a SKILL.md. Parsed files are cached by mtime.
type Loader struct {
	dir string

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	skill   *Skill
	modTime time.Time
}

// NewLoader creates a loader over the skills root directory.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:   dir,
		cache: make(map[string]cacheEntry),
	}
}

// LoadAll scans the root and loads every skill, sorted by name. A
// missing root is not an error. Individual files that fail to parse are
// logged and skipped.
func (l *Loader) LoadAll() ([]*Skill, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			L_debug("skills: directory does not exist", "path", l.dir)
			return nil, nil
		}
		return nil, err
	}

	var loaded []*Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(l.dir, entry.Name(), "SKILL.md")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		skill, err := l.Load(path)
		if err != nil {
			L_warn("skills: failed to load", "path", path, "error", err)
			continue
		}
		loaded = append(loaded, skill)
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Name < loaded[j].Name })
	L_debug("skills: loaded", "dir", l.dir, "count", len(loaded))
	return loaded, nil
}

// Load parses one skill file, reusing the cached result while the
// file's mtime is unchanged.
func (l *Loader) Load(path string) (*Skill, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if cached, ok := l.cache[path]; ok && cached.modTime.Equal(info.ModTime()) {
		return cached.skill, nil
	}

	skill, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	l.cache[path] = cacheEntry{skill: skill, modTime: info.ModTime()}
	return skill, nil
}
