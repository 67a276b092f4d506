package tasks

import (
	"fmt"
	"os"
	"strings"
	"time"

	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/paths"
)

// Sink receives the outcome of a task run. The scheduler resolves a
// task's notification_sink name against its registered sinks and falls
// back to the console.
type Sink interface {
	Notify(task *Task, outcome RunOutcome) error
}

// SinkFunc adapts a function to a Sink, for callers that deliver
// outcomes over an external channel.
type SinkFunc func(task *Task, outcome RunOutcome) error

func (f SinkFunc) Notify(task *Task, outcome RunOutcome) error {
	return f(task, outcome)
}

// ConsoleSink logs outcomes. It is the default.
type ConsoleSink struct{}

func (ConsoleSink) Notify(task *Task, outcome RunOutcome) error {
	if outcome.Success {
		L_info("tasks: run ok", "task", task.Name, "result", firstLine(outcome.Result))
	} else {
		L_warn("tasks: run failed", "task", task.Name, "error", firstLine(outcome.Error))
	}
	return nil
}

// FileSink appends one line per outcome to a log file.
type FileSink struct {
	Path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

func (s *FileSink) Notify(task *Task, outcome RunOutcome) error {
	if err := paths.EnsureParentDir(s.Path); err != nil {
		return err
	}
	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open notification log: %w", err)
	}
	defer f.Close()

	status := RunOK
	detail := firstLine(outcome.Result)
	if !outcome.Success {
		status = RunError
		detail = firstLine(outcome.Error)
	}
	line := fmt.Sprintf("%s\t%s\t%s\t%s\n",
		time.Now().Format(time.RFC3339), task.Name, status, detail)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
