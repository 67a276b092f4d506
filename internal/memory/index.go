package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roelfdiedericks/llamar/internal/chunk"
	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/paths"
)

const (
	// sessionChunkSize and sessionChunkOverlap are the smaller windows
	// used for transcript lines, which are denser than prose.
	sessionChunkSize    = 30
	sessionChunkOverlap = 5

	// DefaultSearchLimit bounds SearchFTS when the caller passes no limit.
	DefaultSearchLimit = 10
)

// Index is the chunk database: one row per indexed file, overlapping
// line chunks, and an FTS5 table for keyword search. Writes serialize
// through a single mutex; reads go straight to SQLite.
type Index struct {
	db *sql.DB
	mu sync.Mutex
}

// NewIndex opens (or creates) the chunk database at dbPath.
func NewIndex(dbPath string) (*Index, error) {
	if err := paths.EnsureParentDir(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open index database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init index schema: %w", err)
	}

	L_info("memory: index open", "path", dbPath)
	return &Index{db: db}, nil
}

func (ix *Index) Close() error {
	return ix.db.Close()
}

// IndexFile chunks a file into overlapping line windows and replaces its
// rows. A file whose content hash matches the stored row is a no-op
// returning 0. Returns the number of chunks written.
func (ix *Index) IndexFile(path, source string) (int, error) {
	content, info, err := readForIndex(path)
	if err != nil {
		return 0, err
	}

	var lines []string
	if strings.TrimSpace(string(content)) != "" {
		lines = strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	}
	return ix.reindex(path, source, content, info, lines, chunk.DefaultLineSize, chunk.DefaultLineOverlap)
}

// IndexClaudeSession indexes a JSONL agent transcript. Messages become
// "User: …" / "Assistant: …" lines before chunking with smaller windows.
func (ix *Index) IndexClaudeSession(path string) (int, error) {
	content, info, err := readForIndex(path)
	if err != nil {
		return 0, err
	}
	return ix.reindex(path, "session", content, info, transcriptLines(content), sessionChunkSize, sessionChunkOverlap)
}

// IndexDir walks a directory and indexes every markdown file in it.
// Returns the number of files visited and the chunks written.
func (ix *Index) IndexDir(dir, source string) (int, int, error) {
	files, chunks := 0, 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".md") {
			return nil
		}
		n, err := ix.IndexFile(path, source)
		if err != nil {
			L_warn("memory: failed to index file", "path", path, "error", err)
			return nil
		}
		files++
		chunks += n
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return files, chunks, err
	}
	return files, chunks, nil
}

func readForIndex(path string) ([]byte, os.FileInfo, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read file: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}
	return content, info, nil
}

// reindex is the single-writer core: dedup check, then an atomic
// per-path replacement of the files row and its chunks.
func (ix *Index) reindex(path, source string, content []byte, info os.FileInfo, lines []string, size, overlap int) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	mtime := info.ModTime().UnixMilli()
	fileSize := info.Size()

	var storedHash string
	err := ix.db.QueryRow("SELECT hash FROM files WHERE path = ?", path).Scan(&storedHash)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("query file record: %w", err)
	}

	hash := chunk.Hash(string(content))
	if err == nil && storedHash == hash {
		// Content unchanged; keep the stat columns current.
		if _, err := ix.db.Exec(
			"UPDATE files SET mtime_ms = ?, size = ?, indexed_at = ? WHERE path = ?",
			mtime, fileSize, time.Now().UnixMilli(), path,
		); err != nil {
			return 0, fmt.Errorf("refresh file record: %w", err)
		}
		L_trace("memory: file unchanged", "path", path)
		return 0, nil
	}

	var chunks []chunk.LineChunk
	if len(lines) > 0 {
		chunks = chunk.Lines(lines, size, overlap)
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	if _, err := tx.Exec(`
		INSERT INTO files (path, source, hash, mtime_ms, size, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET source=excluded.source, hash=excluded.hash,
			mtime_ms=excluded.mtime_ms, size=excluded.size, indexed_at=excluded.indexed_at
	`, path, source, hash, mtime, fileSize, now); err != nil {
		return 0, fmt.Errorf("upsert file record: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM chunks WHERE path = ?", path); err != nil {
		return 0, fmt.Errorf("delete existing chunks: %w", err)
	}

	base := filepath.Base(path)
	for _, c := range chunks {
		id := fmt.Sprintf("%s:%d-%d", base, c.Start, c.End)
		if _, err := tx.Exec(`
			INSERT INTO chunks (id, path, source, start_line, end_line, hash, text, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, id, path, source, c.Start, c.End, chunk.Hash(c.Text), c.Text, now); err != nil {
			return 0, fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	L_debug("memory: file indexed", "path", path, "source", source, "chunks", len(chunks))
	return len(chunks), nil
}

// RemoveFile drops a file and its chunks from the index.
func (ix *Index) RemoveFile(path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	L_debug("memory: file removed from index", "path", path)
	return nil
}

// SearchHit is one FTS match.
type SearchHit struct {
	ID        string  `json:"id"`
	Path      string  `json:"path"`
	Source    string  `json:"source,omitempty"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// SearchFTS runs a keyword query against the chunk table, ordered by
// BM25 relevance. Query terms get prefix matching for better recall.
// A non-empty source restricts results to that source.
func (ix *Index) SearchFTS(query string, limit int, source string) ([]SearchHit, error) {
	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	sqlText := `
		SELECT id, path, source, start_line, end_line, text, bm25(chunks_fts) AS rank
		FROM chunks_fts
		WHERE chunks_fts MATCH ?`
	args := []any{ftsQuery}
	if source != "" {
		sqlText += " AND source = ?"
		args = append(args, source)
	}
	sqlText += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := ix.db.Query(sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var rank float64
		if err := rows.Scan(&h.ID, &h.Path, &h.Source, &h.StartLine, &h.EndLine, &h.Text, &rank); err != nil {
			continue
		}
		// BM25 ranks are negative, lower is better; fold into 0-1.
		h.Score = 1.0 / (1.0 + math.Abs(rank))
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	L_debug("memory: fts search", "query", ftsQuery, "hits", len(hits))
	return hits, nil
}

// buildFTSQuery converts a natural query into FTS5 syntax: special
// characters stripped, terms AND-ed with a prefix-match suffix.
func buildFTSQuery(query string) string {
	var parts []string
	for _, word := range strings.Fields(query) {
		word = strings.ReplaceAll(word, "*", "")
		word = strings.ReplaceAll(word, "\"", "")
		word = strings.ReplaceAll(word, "'", "")
		if word = strings.TrimSpace(word); word != "" {
			parts = append(parts, word+"*")
		}
	}
	return strings.Join(parts, " ")
}

// Stats returns the number of indexed files and chunks.
func (ix *Index) Stats() (files int, chunks int, err error) {
	if err := ix.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&files); err != nil {
		return 0, 0, err
	}
	if err := ix.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&chunks); err != nil {
		return 0, 0, err
	}
	return files, chunks, nil
}

// transcriptLine covers both the llamar transcript shape
// ({type:"message",role,content}) and the Claude Code shape
// ({type:"user"|"assistant",message:{role,content}}).
type transcriptLine struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Message *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// transcriptLines flattens a JSONL transcript into prefixed text lines.
// Lines that do not decode, and roles other than user/assistant, are
// skipped.
func transcriptLines(content []byte) []string {
	var out []string
	for _, raw := range strings.Split(string(content), "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		var rec transcriptLine
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}

		role, text := rec.Role, rec.Content
		if rec.Message != nil {
			role = rec.Message.Role
			if role == "" {
				role = rec.Type
			}
			text = flattenContent(rec.Message.Content)
		} else if rec.Type != "message" {
			continue
		}

		var prefix string
		switch role {
		case "user":
			prefix = "User: "
		case "assistant":
			prefix = "Assistant: "
		default:
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, strings.Split(prefix+text, "\n")...)
	}
	return out
}

// flattenContent extracts text from a message content value that is
// either a plain string or an array of content blocks.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}

	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
