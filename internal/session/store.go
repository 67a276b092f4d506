package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/paths"
)

var ErrSessionNotFound = errors.New("session not found")

// IndexEntry is one record in sessions.json, keyed by session key.
// Subagent supervisors reuse the index for their lifecycle records, so a
// few fields only apply to "agent:main:subagent:*" keys.
type IndexEntry struct {
	SessionID       string `json:"sessionId"`
	UpdatedAt       int64  `json:"updatedAt"` // ms since epoch
	CreatedAt       int64  `json:"createdAt,omitempty"`
	SessionFile     string `json:"sessionFile,omitempty"`
	Provider        string `json:"provider,omitempty"`
	Model           string `json:"model,omitempty"`
	CWD             string `json:"cwd,omitempty"`
	InputTokens     int    `json:"inputTokens,omitempty"`
	OutputTokens    int    `json:"outputTokens,omitempty"`
	TotalTokens     int    `json:"totalTokens,omitempty"`
	CompactionCount int    `json:"compactionCount,omitempty"`

	// Subagent lifecycle fields
	Status string `json:"status,omitempty"` // starting, running, completed
	Task   string `json:"task,omitempty"`
	Port   int    `json:"port,omitempty"`
	PID    int    `json:"pid,omitempty"`
}

// Index is the sessions.json file structure.
type Index map[string]*IndexEntry

// Store manages all sessions for one agent. The mutex serializes
// in-process index writes; cross-process writers are ordered by the
// advisory lock taken in withIndexLock.
type Store struct {
	dir     string
	agentID string
	mu      sync.Mutex
}

// NewStore opens the session store for an agent under ~/.llamar.
func NewStore(agentID string) (*Store, error) {
	dir, err := paths.SessionsDir(agentID)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create sessions dir: %w", err)
	}
	return &Store{dir: dir, agentID: agentID}, nil
}

// NewStoreAt opens a session store rooted at an explicit directory.
func NewStoreAt(dir, agentID string) (*Store, error) {
	if err := paths.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create sessions dir: %w", err)
	}
	return &Store{dir: dir, agentID: agentID}, nil
}

// Dir returns the sessions directory.
func (s *Store) Dir() string {
	return s.dir
}

// AgentID returns the agent this store belongs to.
func (s *Store) AgentID() string {
	return s.agentID
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dir, "sessions.json")
}

func (s *Store) transcriptPath(id string) string {
	return filepath.Join(s.dir, id+".jsonl")
}

func (s *Store) tracePath(id string) string {
	return filepath.Join(s.dir, id+"_trace.jsonl")
}

// readIndex parses sessions.json. A missing file is an empty index; a
// corrupt one is logged and treated as empty rather than blocking writes.
func (s *Store) readIndex() Index {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if !os.IsNotExist(err) {
			L_warn("session: cannot read index", "path", s.indexPath(), "error", err)
		}
		return make(Index)
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		L_warn("session: corrupt index, starting fresh", "path", s.indexPath(), "error", err)
		return make(Index)
	}
	if index == nil {
		index = make(Index)
	}
	return index
}

// writeIndex atomically replaces sessions.json. Caller must hold the lock.
func (s *Store) writeIndex(index Index) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session index: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp index: %w", err)
	}
	if err := os.Rename(tmpPath, s.indexPath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session index: %w", err)
	}
	return nil
}

// UpdateEntry runs a read-modify-write on one index entry under the
// exclusive file lock. fn receives the existing entry or a fresh one.
func (s *Store) UpdateEntry(key string, fn func(*IndexEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withIndexLock(func() error {
		index := s.readIndex()
		entry, ok := index[key]
		if !ok {
			entry = &IndexEntry{CreatedAt: time.Now().UnixMilli()}
			index[key] = entry
		}
		fn(entry)
		entry.UpdatedAt = time.Now().UnixMilli()
		return s.writeIndex(index)
	})
}

// RemoveEntry deletes one index entry. Missing keys are a no-op.
func (s *Store) RemoveEntry(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withIndexLock(func() error {
		index := s.readIndex()
		if _, ok := index[key]; !ok {
			return nil
		}
		delete(index, key)
		return s.writeIndex(index)
	})
}

// GetEntry returns a copy of one index entry.
func (s *Store) GetEntry(key string) (IndexEntry, bool) {
	index := s.readIndex()
	entry, ok := index[key]
	if !ok {
		return IndexEntry{}, false
	}
	return *entry, true
}

// ReadIndex returns a snapshot of the whole index.
func (s *Store) ReadIndex() Index {
	return s.readIndex()
}

// Create mints a new session, writes the transcript header and upserts
// the index entry.
func (s *Store) Create(provider, model, cwd string) (*Session, error) {
	id := NewID()
	now := time.Now()
	sess := &Session{
		ID:        id,
		Key:       KeyFor(id),
		CreatedAt: now,
		UpdatedAt: now,
		Provider:  provider,
		Model:     model,
		CWD:       cwd,
	}

	if err := s.writeHeader(sess); err != nil {
		return nil, err
	}
	if err := s.Save(sess); err != nil {
		return nil, err
	}

	L_debug("session: created", "id", id, "key", sess.Key, "agent", s.agentID)
	return sess, nil
}

// Save upserts the session's index entry: token counters, compaction
// count, model identity and updatedAt.
func (s *Store) Save(sess *Session) error {
	return s.UpdateEntry(sess.Key, func(e *IndexEntry) {
		e.SessionID = sess.ID
		e.SessionFile = s.transcriptPath(sess.ID)
		e.Provider = sess.Provider
		e.Model = sess.Model
		e.CWD = sess.CWD
		e.InputTokens = sess.InputTokens
		e.OutputTokens = sess.OutputTokens
		e.TotalTokens = sess.TotalTokens
		e.CompactionCount = sess.CompactionCount
		if e.CreatedAt == 0 {
			e.CreatedAt = sess.CreatedAt.UnixMilli()
		}
	})
}

// Load reads a session by key: index entry plus transcript messages.
// With fromCompaction, messages before the latest compaction summary are
// dropped so callers resume from the compacted context.
func (s *Store) Load(key string, fromCompaction bool) (*Session, error) {
	entry, ok := s.GetEntry(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}

	messages, err := s.readTranscript(entry.SessionID, fromCompaction)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:              entry.SessionID,
		Key:             key,
		CreatedAt:       time.UnixMilli(entry.CreatedAt),
		UpdatedAt:       time.UnixMilli(entry.UpdatedAt),
		Provider:        entry.Provider,
		Model:           entry.Model,
		CWD:             entry.CWD,
		InputTokens:     entry.InputTokens,
		OutputTokens:    entry.OutputTokens,
		TotalTokens:     entry.TotalTokens,
		CompactionCount: entry.CompactionCount,
		Messages:        messages,
	}

	L_debug("session: loaded", "key", key, "messages", len(messages), "fromCompaction", fromCompaction)
	return sess, nil
}

// ListEntry is one row of List output.
type ListEntry struct {
	Key             string `json:"key"`
	SessionID       string `json:"sessionId"`
	UpdatedAt       int64  `json:"updatedAt"`
	Provider        string `json:"provider,omitempty"`
	Model           string `json:"model,omitempty"`
	CWD             string `json:"cwd,omitempty"`
	TotalTokens     int    `json:"totalTokens,omitempty"`
	CompactionCount int    `json:"compactionCount,omitempty"`
	Status          string `json:"status,omitempty"`
	MessageCount    int    `json:"messageCount"`
}

// List returns up to n entries sorted by updatedAt descending, each
// augmented with its live message count from disk. n <= 0 returns all.
func (s *Store) List(n int) []ListEntry {
	index := s.readIndex()

	entries := make([]ListEntry, 0, len(index))
	for key, e := range index {
		entries = append(entries, ListEntry{
			Key:             key,
			SessionID:       e.SessionID,
			UpdatedAt:       e.UpdatedAt,
			Provider:        e.Provider,
			Model:           e.Model,
			CWD:             e.CWD,
			TotalTokens:     e.TotalTokens,
			CompactionCount: e.CompactionCount,
			Status:          e.Status,
			MessageCount:    s.countMessages(e.SessionID),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UpdatedAt != entries[j].UpdatedAt {
			return entries[i].UpdatedAt > entries[j].UpdatedAt
		}
		return entries[i].Key < entries[j].Key
	})

	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
