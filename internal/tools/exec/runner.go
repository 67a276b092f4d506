// Package exec implements the bash tool and the command runner shared by
// the other process-spawning tools (run_r, git, jq).
package exec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	. "github.com/roelfdiedericks/llamar/internal/logging"
)

// DefaultTimeout bounds a command when the caller does not say otherwise.
const DefaultTimeout = 30 * time.Second

// Result holds the outcome of one command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes commands with captured output and a wall-clock bound.
type Runner struct {
	workingDir string
}

// NewRunner creates a runner whose commands default to workingDir.
func NewRunner(workingDir string) *Runner {
	return &Runner{workingDir: workingDir}
}

// WorkingDir returns the runner's default working directory.
func (r *Runner) WorkingDir() string {
	return r.workingDir
}

// RunShell executes a command line via the system shell.
func (r *Runner) RunShell(ctx context.Context, command, workDir string, timeout time.Duration) (*Result, error) {
	return r.run(ctx, []string{"sh", "-c", command}, workDir, timeout, preview(command))
}

// RunArgs executes an argv directly, without a shell.
func (r *Runner) RunArgs(ctx context.Context, argv []string, workDir string, timeout time.Duration) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return r.run(ctx, argv, workDir, timeout, preview(strings.Join(argv, " ")))
}

func (r *Runner) run(ctx context.Context, argv []string, workDir string, timeout time.Duration, cmdPreview string) (*Result, error) {
	if workDir == "" {
		workDir = r.workingDir
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	L_debug("exec: running", "cmd", cmdPreview, "workDir", workDir, "timeout", timeout)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			L_warn("exec: timed out", "cmd", cmdPreview, "timeout", timeout)
			return nil, fmt.Errorf("command timed out after %d seconds", int(timeout.Seconds()))
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			L_debug("exec: non-zero exit", "cmd", cmdPreview, "exitCode", exitCode, "elapsed", elapsed)
		} else {
			return nil, fmt.Errorf("exec failed: %w", err)
		}
	} else {
		L_debug("exec: completed", "cmd", cmdPreview, "elapsed", elapsed, "stdoutLen", stdout.Len(), "stderrLen", stderr.Len())
	}

	return &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
	}, nil
}

// preview flattens a command for log lines.
func preview(command string) string {
	p := strings.ReplaceAll(command, "\n", " ")
	p = strings.ReplaceAll(p, "\r", "")
	if len(p) > 50 {
		p = p[:50] + "..."
	}
	return p
}

// FormatResult renders a result the way shell tools surface it: plain
// stdout on success, an "Error:" text on failure so the model sees what
// went wrong instead of a transport error.
func FormatResult(res *Result) string {
	stdout := strings.TrimRight(string(res.Stdout), "\n")
	stderr := strings.TrimRight(string(res.Stderr), "\n")

	if res.ExitCode == 0 {
		if stdout == "" && stderr != "" {
			return stderr
		}
		if stdout == "" {
			return "(no output)"
		}
		return stdout
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: command exited with code %d", res.ExitCode)
	if stdout != "" {
		sb.WriteString("\n")
		sb.WriteString(stdout)
	}
	if stderr != "" {
		sb.WriteString("\n")
		sb.WriteString(stderr)
	}
	return sb.String()
}
