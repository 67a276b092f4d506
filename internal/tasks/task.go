// Package tasks persists scheduled prompts in SQLite and runs them when
// due. The store owns the tasks and task_runs tables; the scheduler
// drives execution through an injected run function and routes outcomes
// to notification sinks.
package tasks

import (
	"strings"
	"time"
)

// Task status constants.
const (
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// Run status constants.
const (
	RunOK    = "ok"
	RunError = "error"
)

// Task is one scheduled prompt.
type Task struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	Schedule         string     `json:"schedule,omitempty"`
	Prompt           string     `json:"prompt"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	LastRun          *time.Time `json:"lastRun,omitempty"`
	NextRun          *time.Time `json:"nextRun,omitempty"`
	RunCount         int        `json:"runCount"`
	LastResult       string     `json:"lastResult,omitempty"`
	LastError        string     `json:"lastError,omitempty"`
	NotificationSink string     `json:"notificationSink,omitempty"`
}

// Run is one execution of a task.
type Run struct {
	ID         int64     `json:"id"`
	TaskID     string    `json:"taskId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Status     string    `json:"status"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	TokensUsed int       `json:"tokensUsed,omitempty"`
}

// RunOutcome is what the injected run function reports back.
type RunOutcome struct {
	Success    bool
	Result     string
	Error      string
	TokensUsed int
}

// HasSchedule reports whether the task has a recurrence expression.
func (t *Task) HasSchedule() bool {
	return strings.TrimSpace(t.Schedule) != ""
}

// refreshNextRun enforces the invariant that next_run is set exactly
// when the task is active and has a schedule.
func (t *Task) refreshNextRun(from time.Time) error {
	if t.Status != StatusActive || !t.HasSchedule() {
		t.NextRun = nil
		return nil
	}
	next, err := NextRun(t.Schedule, from)
	if err != nil {
		return err
	}
	t.NextRun = &next
	return nil
}
