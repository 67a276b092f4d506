// Package subagent spawns and supervises child tool servers. A subagent
// is another copy of this binary bound to a probed TCP port; the parent
// records it in the sessions metadata and talks to it over MCP.
package subagent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/session"
)

// Subagent lifecycle statuses, mirrored into the session index.
const (
	StatusStarting  = "starting"
	StatusRunning   = "running"
	StatusCompleted = "completed"
)

const (
	// spawnWait bounds how long Spawn waits for the child to accept.
	spawnWait = 10 * time.Second

	dialTimeout = 2 * time.Second

	// portProbeSpan is how many ports above base_port are tried.
	portProbeSpan = 100

	// DefaultSweepInterval drives the background reap of expired
	// subagents between queries.
	DefaultSweepInterval = time.Minute
)

// Record describes one live subagent.
type Record struct {
	ID         string        `json:"id"`
	SessionKey string        `json:"sessionKey"`
	Port       int           `json:"port"`
	PID        int           `json:"pid"`
	Task       string        `json:"task"`
	StartedAt  time.Time     `json:"startedAt"`
	Timeout    time.Duration `json:"timeout"`
	Status     string        `json:"status"`
}

type agent struct {
	record Record
	cmd    *exec.Cmd
	client *Client
}

// Supervisor owns the live subagent registry. The sessions store holds
// the durable records under agent:main:subagent:{id}; the in-memory map
// is the source of truth for what is actually running.
type Supervisor struct {
	cfg      func() *config.Config
	sessions *session.Store
	cwd      string
	binary   string
	nested   bool

	mu     sync.Mutex
	agents map[string]*agent
}

// NewSupervisor wires a supervisor to the parent agent's session store.
// nested marks this process as a subagent itself, which blocks further
// spawns unless allow_nested is set.
func NewSupervisor(cfg func() *config.Config, sessions *session.Store, cwd string, nested bool) *Supervisor {
	binary, err := os.Executable()
	if err != nil {
		L_warn("subagent: cannot resolve own binary", "error", err)
	}
	return &Supervisor{
		cfg:      cfg,
		sessions: sessions,
		cwd:      cwd,
		binary:   binary,
		nested:   nested,
		agents:   make(map[string]*agent),
	}
}

func sessionKey(id string) string {
	return "agent:main:subagent:" + id
}

// Spawn starts a new subagent for task: policy gates, port probe,
// process start, then a wait for the port to accept.
func (s *Supervisor) Spawn(ctx context.Context, task string) (Record, error) {
	cfg := s.cfg()

	if !cfg.SubagentsEnabled() {
		return Record{}, errors.New("subagents are disabled")
	}
	if s.nested && !cfg.SubagentsAllowNested() {
		return Record{}, errors.New("nested subagents are not allowed")
	}

	s.reapExpired()

	s.mu.Lock()
	active := len(s.agents)
	s.mu.Unlock()
	if max := cfg.Subagents.MaxConcurrent; max > 0 && active >= max {
		return Record{}, fmt.Errorf("subagent limit reached: %d of %d active", active, max)
	}

	if s.binary == "" {
		return Record{}, errors.New("cannot spawn: own binary path unknown")
	}

	port, err := s.probePort(cfg.Subagents.BasePort)
	if err != nil {
		return Record{}, err
	}

	id := uuid.NewString()
	key := sessionKey(id)
	rec := Record{
		ID:         id,
		SessionKey: key,
		Port:       port,
		Task:       task,
		StartedAt:  time.Now(),
		Timeout:    time.Duration(cfg.Subagents.TimeoutMinutes) * time.Minute,
		Status:     StatusStarting,
	}

	if err := s.sessions.UpdateEntry(key, func(e *session.IndexEntry) {
		e.Status = StatusStarting
		e.Task = task
		e.Port = port
		e.CWD = s.cwd
	}); err != nil {
		L_warn("subagent: failed to record starting state", "id", id, "error", err)
	}

	args := []string{
		"--port", strconv.Itoa(port),
		"--cwd", s.cwd,
		"--agent", "subagent",
	}
	if len(cfg.Subagents.DefaultTools) > 0 {
		args = append(args, "--tools", strings.Join(cfg.Subagents.DefaultTools, ","))
	}

	cmd := exec.Command(s.binary, args...)
	if err := cmd.Start(); err != nil {
		s.sessions.RemoveEntry(key)
		return Record{}, fmt.Errorf("start subagent: %w", err)
	}
	rec.PID = cmd.Process.Pid

	if err := s.waitForPort(ctx, port); err != nil {
		cmd.Process.Kill()
		go cmd.Wait()
		s.sessions.RemoveEntry(key)
		return Record{}, fmt.Errorf("subagent did not come up on port %d: %w", port, err)
	}

	rec.Status = StatusRunning
	if err := s.sessions.UpdateEntry(key, func(e *session.IndexEntry) {
		e.Status = StatusRunning
		e.PID = rec.PID
	}); err != nil {
		L_warn("subagent: failed to record running state", "id", id, "error", err)
	}

	s.mu.Lock()
	s.agents[id] = &agent{record: rec, cmd: cmd}
	s.mu.Unlock()

	L_info("subagent: spawned", "id", id, "port", port, "pid", rec.PID, "task", truncate(task, 120))
	return rec, nil
}

// Query sends one chat message to a subagent and returns the reply.
// Expired subagents are reaped first, so a query can come back
// "not found" after a timeout.
func (s *Supervisor) Query(ctx context.Context, id, message string) (string, error) {
	s.reapExpired()

	s.mu.Lock()
	a, ok := s.agents[id]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("subagent not found: %s", id)
	}

	client, err := s.clientFor(ctx, a)
	if err != nil {
		return "", err
	}
	return client.CallTool(ctx, "chat", map[string]any{"message": message})
}

// clientFor returns the agent's cached MCP client, dialing and
// handshaking on first use.
func (s *Supervisor) clientFor(ctx context.Context, a *agent) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	addr := fmt.Sprintf("127.0.0.1:%d", a.record.Port)
	client, err := DialClient(addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to subagent %s: %w", a.record.ID, err)
	}
	if err := client.Initialize(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("handshake with subagent %s: %w", a.record.ID, err)
	}
	a.client = client
	return client, nil
}

// Kill terminates a subagent and removes its records.
func (s *Supervisor) Kill(id string) error {
	s.mu.Lock()
	a, ok := s.agents[id]
	if ok {
		delete(s.agents, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("subagent not found: %s", id)
	}
	s.stop(a)
	return nil
}

// stop marks the metadata record completed, closes the connection,
// kills the process, and drops the record. The registry entry has
// already been removed by the caller.
func (s *Supervisor) stop(a *agent) {
	if err := s.sessions.UpdateEntry(a.record.SessionKey, func(e *session.IndexEntry) {
		e.Status = StatusCompleted
	}); err != nil {
		L_warn("subagent: failed to update status", "id", a.record.ID, "error", err)
	}

	if a.client != nil {
		a.client.Close()
		a.client = nil
	}
	if a.cmd != nil && a.cmd.Process != nil {
		if err := a.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			L_debug("subagent: kill process", "id", a.record.ID, "error", err)
		}
		go a.cmd.Wait()
	}

	if err := s.sessions.RemoveEntry(a.record.SessionKey); err != nil {
		L_warn("subagent: failed to remove record", "id", a.record.ID, "error", err)
	}
	L_info("subagent: stopped", "id", a.record.ID)
}

// reapExpired kills subagents past their timeout.
func (s *Supervisor) reapExpired() {
	now := time.Now()

	s.mu.Lock()
	var expired []*agent
	for id, a := range s.agents {
		if a.record.Timeout > 0 && now.Sub(a.record.StartedAt) > a.record.Timeout {
			expired = append(expired, a)
			delete(s.agents, id)
		}
	}
	s.mu.Unlock()

	for _, a := range expired {
		L_info("subagent: expired", "id", a.record.ID, "age", now.Sub(a.record.StartedAt).Round(time.Second))
		s.stop(a)
	}
}

// List returns a snapshot of live subagents, oldest first.
func (s *Supervisor) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a.record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Active returns the live subagent count.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.agents)
}

// StartCleanup launches the periodic reap sweep.
func (s *Supervisor) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reapExpired()
			}
		}
	}()
}

// Shutdown kills every live subagent.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	agents := make([]*agent, 0, len(s.agents))
	for id, a := range s.agents {
		agents = append(agents, a)
		delete(s.agents, id)
	}
	s.mu.Unlock()

	for _, a := range agents {
		s.stop(a)
	}
}

// probePort finds a free port by binding from base upward. Ports held
// by live subagents are skipped without probing.
func (s *Supervisor) probePort(base int) (int, error) {
	if base <= 0 {
		base = 9300
	}

	s.mu.Lock()
	used := make(map[int]bool, len(s.agents))
	for _, a := range s.agents {
		used[a.record.Port] = true
	}
	s.mu.Unlock()

	for port := base; port < base+portProbeSpan; port++ {
		if used[port] {
			continue
		}
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port in %d-%d", base, base+portProbeSpan-1)
}

func (s *Supervisor) waitForPort(ctx context.Context, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	deadline := time.Now().Add(spawnWait)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timed out after %s", spawnWait)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
