package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	. "github.com/roelfdiedericks/llamar/internal/logging"
)

// Trace values are truncated on write so a single huge tool result
// cannot bloat the trace file.
const (
	traceArgLimit    = 200
	traceResultLimit = 500
)

// TraceEntry is one tool call record in <id>_trace.jsonl.
type TraceEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	Args       map[string]string `json:"args,omitempty"`
	Result     string            `json:"result,omitempty"`
	Success    bool              `json:"success"`
	ElapsedMS  int64             `json:"elapsed_ms"`
	ApprovedBy string            `json:"approved_by,omitempty"`
}

// NewTraceEntry builds an entry from a completed call, stringifying and
// truncating args and result.
func NewTraceEntry(tool string, args map[string]any, result string, success bool, elapsedMS int64, approvedBy string) TraceEntry {
	entry := TraceEntry{
		Timestamp:  time.Now(),
		Tool:       tool,
		Result:     truncate(result, traceResultLimit),
		Success:    success,
		ElapsedMS:  elapsedMS,
		ApprovedBy: approvedBy,
	}
	if len(args) > 0 {
		entry.Args = make(map[string]string, len(args))
		for k, v := range args {
			entry.Args[k] = truncate(fmt.Sprintf("%v", v), traceArgLimit)
		}
	}
	return entry
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// TraceAdd appends one entry to the session's trace file.
func (s *Store) TraceAdd(sessionID string, entry TraceEntry) error {
	if err := s.appendLine(s.tracePath(sessionID), entry); err != nil {
		return err
	}
	L_trace("session: trace appended", "id", sessionID, "tool", entry.Tool, "success", entry.Success)
	return nil
}

// TraceLoad reads the session's trace entries. n > 0 limits the result
// to the newest n entries.
func (s *Store) TraceLoad(sessionID string, n int) ([]TraceEntry, error) {
	f, err := os.Open(s.tracePath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()

	var entries []TraceEntry
	scanner := bufio.NewScanner(f)
	buf := make([]byte, maxTranscriptLine)
	scanner.Buffer(buf, maxTranscriptLine)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry TraceEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			L_warn("session: skipping bad trace line", "id", sessionID, "line", lineNum, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// FormatTrace renders trace entries for display, one block per call.
func FormatTrace(entries []TraceEntry) string {
	if len(entries) == 0 {
		return "No trace entries"
	}

	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		status := "ok"
		if !e.Success {
			status = "error"
		}
		fmt.Fprintf(&sb, "[%s] %s %s (%dms)", e.Timestamp.Format("2006-01-02 15:04:05"), e.Tool, status, e.ElapsedMS)
		if e.ApprovedBy != "" {
			fmt.Fprintf(&sb, " approved by %s", e.ApprovedBy)
		}
		sb.WriteString("\n")
		if len(e.Args) > 0 {
			keys := make([]string, 0, len(e.Args))
			for k := range e.Args {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&sb, "  %s: %s\n", k, e.Args[k])
			}
		}
		if e.Result != "" {
			fmt.Fprintf(&sb, "  -> %s\n", firstLine(e.Result))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
