// Package skills loads file-based skills: directories under the skills
// root containing a SKILL.md whose body becomes the tool's output. The
// file format is optional YAML front matter between --- lines followed
// by markdown.
package skills

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Skill is one loaded SKILL.md.
type Skill struct {
	Name        string
	Description string
	Dir         string
	Path        string
	Body        string
	Metadata    map[string]any
	LoadedAt    time.Time
}

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Metadata    any    `yaml:"metadata"`
}

// ParseFile parses a SKILL.md file. Files without front matter are
// accepted; the name falls back to the enclosing directory (or the file
// stem for files not named SKILL.md). {baseDir} tokens in the body are
// substituted with the skill directory.
func ParseFile(path string) (*Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill file: %w", err)
	}

	dir := filepath.Dir(path)
	skill := &Skill{
		Dir:      dir,
		Path:     path,
		LoadedAt: time.Now(),
	}

	raw, body, ok := splitFrontmatter(content)
	if !ok {
		skill.Name = nameFromPath(path)
		skill.Body = substitute(string(content), dir)
		return skill, nil
	}

	var fm frontmatter
	if err := yaml.Unmarshal(raw, &fm); err != nil {
		// Unquoted colons in values are common; fall back to a line parser.
		fm = parseSimpleFrontmatter(raw)
	}

	skill.Name = fm.Name
	if skill.Name == "" {
		skill.Name = nameFromPath(path)
	}
	skill.Description = fm.Description
	skill.Metadata = parseMetadata(fm.Metadata)
	skill.Body = substitute(strings.TrimLeft(string(body), "\n"), dir)
	return skill, nil
}

// splitFrontmatter returns the front matter bytes and the remaining body.
// ok is false when the file does not start with a --- delimiter.
func splitFrontmatter(content []byte) (raw, body []byte, ok bool) {
	if !bytes.HasPrefix(content, []byte("---")) {
		return nil, nil, false
	}
	rest := content[3:]
	idx := bytes.Index(rest, []byte("\n---"))
	if idx < 0 {
		return nil, nil, false
	}
	return rest[:idx], rest[idx+4:], true
}

// parseSimpleFrontmatter handles key: value lines when YAML parsing
// fails. Only top-level keys are recognized; metadata must be JSON on
// the same line.
func parseSimpleFrontmatter(raw []byte) frontmatter {
	var fm frontmatter
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		switch key {
		case "name":
			fm.Name = value
		case "description":
			fm.Description = value
		case "metadata":
			fm.Metadata = value
		}
	}
	return fm
}

// parseMetadata accepts either a nested map or a JSON string.
func parseMetadata(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(m), &out); err != nil {
			return nil
		}
		return out
	}
	return nil
}

func nameFromPath(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.EqualFold(stem, "SKILL") {
		return filepath.Base(filepath.Dir(path))
	}
	return stem
}

func substitute(body, dir string) string {
	return strings.ReplaceAll(body, "{baseDir}", dir)
}
