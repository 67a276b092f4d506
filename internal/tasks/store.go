package tasks

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/paths"
)

// Store persists tasks and their run history. Writes serialize through
// a single mutex; WAL mode keeps external readers unblocked.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewStore opens (or creates) the task database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := paths.EnsureParentDir(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open tasks database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tasks schema: %w", err)
	}

	L_info("tasks: store open", "path", dbPath)
	return &Store{db: db, path: dbPath}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

const taskColumns = `id, name, description, schedule, prompt, status,
	created_at, updated_at, last_run, next_run, run_count, last_result,
	last_error, notification_sink`

// Create inserts a task, assigning an id when absent and computing
// next_run from the schedule. Status defaults to active.
func (s *Store) Create(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task name is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	if !validStatus(t.Status) {
		return fmt.Errorf("invalid status %q", t.Status)
	}

	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := t.refreshNextRun(now); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, t.Schedule, t.Prompt, t.Status,
		t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
		msOrNil(t.LastRun), msOrNil(t.NextRun),
		t.RunCount, t.LastResult, t.LastError, t.NotificationSink)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	L_info("tasks: created", "id", t.ID, "name", t.Name, "schedule", t.Schedule)
	return nil
}

// Get returns one task by id.
func (s *Store) Get(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return t, nil
}

// GetByName returns one task by its (caller-unique) name.
func (s *Store) GetByName(name string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE name = ? ORDER BY created_at LIMIT 1`, name)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return t, nil
}

// List returns all tasks, oldest first.
func (s *Store) List() ([]*Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// DueTasks returns active tasks whose next_run is at or before now,
// soonest first.
func (s *Store) DueTasks(now time.Time) ([]*Task, error) {
	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE status = ? AND next_run IS NOT NULL AND next_run <= ?
		ORDER BY next_run ASC`,
		StatusActive, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query due tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// Update rewrites a task row. next_run is recomputed so pausing,
// completing, or rescheduling keeps the invariant.
func (s *Store) Update(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validStatus(t.Status) {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	t.UpdatedAt = time.Now()
	if err := t.refreshNextRun(t.UpdatedAt); err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE tasks SET name=?, description=?, schedule=?, prompt=?, status=?,
			updated_at=?, last_run=?, next_run=?, run_count=?, last_result=?,
			last_error=?, notification_sink=?
		WHERE id=?`,
		t.Name, t.Description, t.Schedule, t.Prompt, t.Status,
		t.UpdatedAt.UnixMilli(), msOrNil(t.LastRun), msOrNil(t.NextRun),
		t.RunCount, t.LastResult, t.LastError, t.NotificationSink, t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task not found: %s", t.ID)
	}
	return nil
}

// Delete removes a task and its run history.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM task_runs WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("delete runs: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task not found: %s", id)
	}
	return tx.Commit()
}

// RecordRun appends a run row and rolls the task's last_run, counters,
// and next_run forward in one transaction. The task is mutated to
// reflect the committed row.
func (s *Store) RecordRun(t *Task, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}

	var next *time.Time
	if t.Status == StatusActive && t.HasSchedule() {
		n, err := NextRun(t.Schedule, run.FinishedAt)
		if err != nil {
			return err
		}
		next = &n
	}
	runCount := t.RunCount + 1
	updatedAt := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO task_runs (task_id, started_at, finished_at, status, result, error, tokens_used)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.Status, run.Result, run.Error, run.TokensUsed); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE tasks SET last_run=?, next_run=?, run_count=?, last_result=?,
			last_error=?, updated_at=?
		WHERE id=?`,
		run.StartedAt.UnixMilli(), msOrNil(next), runCount,
		run.Result, run.Error, updatedAt.UnixMilli(), t.ID); err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}

	started := run.StartedAt
	t.LastRun = &started
	t.NextRun = next
	t.RunCount = runCount
	t.LastResult = run.Result
	t.LastError = run.Error
	t.UpdatedAt = updatedAt
	return nil
}

// Runs returns the most recent runs for a task, newest first.
func (s *Store) Runs(taskID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, task_id, started_at, finished_at, status, result, error, tokens_used
		FROM task_runs WHERE task_id = ?
		ORDER BY started_at DESC, id DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedMs, finishedMs int64
		if err := rows.Scan(&r.ID, &r.TaskID, &startedMs, &finishedMs,
			&r.Status, &r.Result, &r.Error, &r.TokensUsed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs)
		r.FinishedAt = time.UnixMilli(finishedMs)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func validStatus(status string) bool {
	switch status {
	case StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var createdMs, updatedMs int64
	var lastRun, nextRun sql.NullInt64
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Schedule, &t.Prompt,
		&t.Status, &createdMs, &updatedMs, &lastRun, &nextRun,
		&t.RunCount, &t.LastResult, &t.LastError, &t.NotificationSink); err != nil {
		return nil, err
	}
	t.CreatedAt = time.UnixMilli(createdMs)
	t.UpdatedAt = time.UnixMilli(updatedMs)
	if lastRun.Valid {
		v := time.UnixMilli(lastRun.Int64)
		t.LastRun = &v
	}
	if nextRun.Valid {
		v := time.UnixMilli(nextRun.Int64)
		t.NextRun = &v
	}
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*Task, error) {
	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func msOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
