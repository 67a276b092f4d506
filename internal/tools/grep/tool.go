// Package grep implements the grep_files tool.
package grep

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/sandbox"
	"github.com/roelfdiedericks/llamar/internal/types"
)

// DefaultFilePattern narrows searches to R sources unless overridden.
const DefaultFilePattern = "*.R"

// maxMatches bounds output so one broad pattern cannot flood the client.
const maxMatches = 500

// Tool searches file contents with a regular expression.
type Tool struct {
	cwd string
	cfg func() *config.Config
}

func NewTool(cwd string, cfg func() *config.Config) *Tool {
	return &Tool{cwd: cwd, cfg: cfg}
}

func (t *Tool) Name() string {
	return "grep_files"
}

func (t *Tool) Description() string {
	return "Search file contents with a regular expression. Returns path:line: text entries."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "The regular expression to search for.",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to search. Defaults to the working directory.",
			},
			"file_pattern": map[string]any{
				"type":        "string",
				"description": "Glob filter on file names. Defaults to *.R",
			},
		},
		"required": []string{"pattern"},
	}
}

type input struct {
	Pattern     string `json:"pattern"`
	Path        string `json:"path,omitempty"`
	FilePattern string `json:"file_pattern,omitempty"`
}

func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (*types.ToolResult, error) {
	var params input
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return types.ErrorResult(fmt.Sprintf("Invalid pattern: %s", err)), nil
	}

	searchPath := params.Path
	if searchPath == "" {
		searchPath = t.cwd
	}
	if v := sandbox.ValidatePath(searchPath, t.cfg(), t.cwd, "grep"); !v.OK {
		return types.ErrorResult(v.Message), nil
	}
	root := sandbox.Normalize(searchPath, t.cwd)

	filePattern := params.FilePattern
	if filePattern == "" {
		filePattern = DefaultFilePattern
	}

	var matches []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if matched, _ := filepath.Match(filePattern, d.Name()); !matched {
			return nil
		}

		found, err := grepFile(path, root, re, maxMatches-len(matches))
		if err != nil {
			L_trace("grep_files: skipping file", "path", path, "error", err)
			return nil
		}
		matches = append(matches, found...)
		if len(matches) >= maxMatches {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	L_debug("grep_files: searched", "root", root, "pattern", params.Pattern, "matches", len(matches))
	if len(matches) == 0 {
		return types.TextResult("No matches found"), nil
	}
	return types.TextResult(strings.Join(matches, "\n")), nil
}

// grepFile scans one file, emitting "relpath:line: text" per hit.
func grepFile(path, root string, re *regexp.Regexp, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	var found []string
	scanner := bufio.NewScanner(f)
	const maxLine = 1024 * 1024
	buf := make([]byte, maxLine)
	scanner.Buffer(buf, maxLine)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			found = append(found, fmt.Sprintf("%s:%d: %s", rel, lineNum, line))
			if len(found) >= limit {
				break
			}
		}
	}
	return found, scanner.Err()
}
