package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	. "github.com/roelfdiedericks/llamar/internal/logging"
)

// TranscriptVersion is written into every session header. Readers accept
// newer versions and ignore fields they do not know.
const TranscriptVersion = 2

// CompactionMarker prefixes the assistant message that replaces
// compacted history.
const CompactionMarker = "[Compaction Summary]\n\n"

// headerRecord is the first line of every transcript file.
type headerRecord struct {
	Type      string    `json:"type"`
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	CWD       string    `json:"cwd,omitempty"`
}

// messageRecord is every subsequent line.
type messageRecord struct {
	Type string `json:"type"`
	Message
}

// recordProbe sniffs the type tag before full decoding.
type recordProbe struct {
	Type string `json:"type"`
}

// maxTranscriptLine bounds a single JSONL line; tool results can be huge.
const maxTranscriptLine = 10 * 1024 * 1024

// writeHeader creates the transcript with its header line. An existing
// transcript is left untouched.
func (s *Store) writeHeader(sess *Session) error {
	path := s.transcriptPath(sess.ID)
	if _, err := os.Stat(path); err == nil {
		L_trace("session: transcript exists, keeping header", "path", path)
		return nil
	}

	header := headerRecord{
		Type:      "session",
		Version:   TranscriptVersion,
		ID:        sess.ID,
		Timestamp: sess.CreatedAt,
		CWD:       sess.CWD,
	}
	return s.appendLine(path, header)
}

// appendLine marshals v and appends it as one JSONL line.
func (s *Store) appendLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript record: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append transcript record: %w", err)
	}
	return nil
}

// Append persists one message to the session's transcript and mirrors it
// into the in-memory message list.
func (s *Store) Append(sess *Session, role, content string) (Message, error) {
	msg := sess.AddMessage(role, content)
	record := messageRecord{Type: "message", Message: msg}
	if err := s.appendLine(s.transcriptPath(sess.ID), record); err != nil {
		return msg, err
	}
	L_trace("session: appended message", "id", sess.ID, "role", role, "bytes", len(content))
	return msg, nil
}

// Compact appends an assistant message carrying the compaction summary
// and bumps the session's compaction count. Loaders started with
// fromCompaction resume from this marker.
func (s *Store) Compact(sess *Session, summary string) error {
	if _, err := s.Append(sess, RoleAssistant, CompactionMarker+summary); err != nil {
		return err
	}
	sess.CompactionCount++
	if err := s.Save(sess); err != nil {
		return err
	}
	L_info("session: compacted", "id", sess.ID, "compactions", sess.CompactionCount)
	return nil
}

// readTranscript parses a transcript file into messages. Unknown record
// types are skipped so newer writers stay readable. With fromCompaction,
// only the latest compaction summary and what follows are returned.
func (s *Store) readTranscript(id string, fromCompaction bool) ([]Message, error) {
	path := s.transcriptPath(id)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	var messages []Message
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

		var probe recordProbe
		if err := json.Unmarshal(line, &probe); err != nil {
			L_warn("session: skipping bad transcript line", "id", id, "line", lineNum, "error", err)
			continue
		}

		switch probe.Type {
		case "session":
			// header, nothing to collect
		case "message":
			var record messageRecord
			if err := json.Unmarshal(line, &record); err != nil {
				L_warn("session: skipping bad message record", "id", id, "line", lineNum, "error", err)
				continue
			}
			messages = append(messages, record.Message)
		default:
			L_trace("session: skipping unknown record type", "id", id, "type", probe.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	if cut := latestCompaction(messages); cut > 0 {
		if fromCompaction {
			L_debug("session: resuming from compaction", "id", id, "dropped", cut, "kept", len(messages)-cut)
			messages = messages[cut:]
		} else {
			L_debug("session: compaction summary present, loading full history", "id", id, "marker_at", cut)
		}
	}
	return messages, nil
}

// latestCompaction returns the index of the newest compaction summary,
// or 0 when there is none.
func latestCompaction(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleAssistant && strings.HasPrefix(messages[i].Content, CompactionMarker) {
			return i
		}
	}
	return 0
}

// countMessages counts message records without decoding their bodies.
func (s *Store) countMessages(id string) int {
	f, err := os.Open(s.transcriptPath(id))
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	buf := make([]byte, maxTranscriptLine)
	scanner.Buffer(buf, maxTranscriptLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var probe recordProbe
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}
		if probe.Type == "message" {
			count++
		}
	}
	return count
}
