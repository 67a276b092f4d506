// Command llamar-server is the MCP tool server: JSON-RPC 2.0 over stdio
// by default, or TCP when started with --port (how subagents run).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/memory"
	"github.com/roelfdiedericks/llamar/internal/paths"
	"github.com/roelfdiedericks/llamar/internal/ratelimit"
	"github.com/roelfdiedericks/llamar/internal/rpc"
	"github.com/roelfdiedericks/llamar/internal/server"
	"github.com/roelfdiedericks/llamar/internal/session"
	"github.com/roelfdiedericks/llamar/internal/skills"
	"github.com/roelfdiedericks/llamar/internal/subagent"
	"github.com/roelfdiedericks/llamar/internal/tasks"
	"github.com/roelfdiedericks/llamar/internal/tokens"
	"github.com/roelfdiedericks/llamar/internal/tools"
	"github.com/roelfdiedericks/llamar/internal/tools/chat"
	"github.com/roelfdiedericks/llamar/internal/tools/exec"
	"github.com/roelfdiedericks/llamar/internal/tools/gittool"
	"github.com/roelfdiedericks/llamar/internal/tools/grep"
	"github.com/roelfdiedericks/llamar/internal/tools/jq"
	"github.com/roelfdiedericks/llamar/internal/tools/list"
	"github.com/roelfdiedericks/llamar/internal/tools/memorysearch"
	"github.com/roelfdiedericks/llamar/internal/tools/memorystore"
	"github.com/roelfdiedericks/llamar/internal/tools/read"
	"github.com/roelfdiedericks/llamar/internal/tools/runr"
	"github.com/roelfdiedericks/llamar/internal/tools/write"
	"github.com/roelfdiedericks/llamar/internal/types"
)

const version = "0.1.0"

var cli struct {
	Port     int              `help:"Listen for MCP clients on this TCP port instead of stdio." placeholder:"PORT"`
	CWD      string           `help:"Directory tools resolve paths against." default:"."`
	Agent    string           `help:"Agent id owning sessions, memory and tasks." default:"main"`
	LogLevel string           `help:"Log level: trace, debug, info, warn or error." default:"info"`
	Tools    []string         `help:"Expose only the named tools." placeholder:"NAME,NAME"`
	Version  kong.VersionFlag `help:"Print version and exit."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("llamar-server"),
		kong.Description("MCP tool server for R-centric coding agents."),
		kong.Vars{"version": "llamar-server " + version},
	)

	Init(&Config{
		Level:      ParseLevel(cli.LogLevel),
		ShowCaller: true,
	})

	cwd, err := filepath.Abs(cli.CWD)
	if err != nil {
		L_fatal("cannot resolve working directory: %v", err)
	}

	L_info("llamar-server starting", "version", version, "agent", cli.Agent, "cwd", cwd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := config.NewManager(cwd)
	if err != nil {
		L_fatal("failed to load config: %v", err)
	}
	cfg := manager.Current

	sessions, err := session.NewStore(cli.Agent)
	if err != nil {
		L_fatal("failed to open session store: %v", err)
	}
	sess := openSession(sessions, cfg(), cwd)
	defer closeSession(sessions, sess)

	memStore, err := memory.NewStore(cwd)
	if err != nil {
		L_fatal("failed to resolve memory files: %v", err)
	}
	memIndex := openMemoryIndex(cli.Agent, cwd)
	if memIndex != nil {
		defer memIndex.Close()
	}
	if watcher := startMemoryWatcher(memIndex, cwd); watcher != nil {
		defer watcher.Stop()
	}

	limiter := ratelimit.NewLimiter(func() map[string]config.RateLimit {
		return cfg().RateLimits
	})

	registry := buildRegistry(cwd, cfg, memStore, memIndex, limiter)
	runner := tools.NewRunner(registry, cfg, nil, sessions)

	// Only the main agent steps tasks; a subagent stepping the shared
	// database would run every due task twice.
	if cli.Agent == "main" {
		if sched, taskStore := startScheduler(ctx, cfg, runner); sched != nil {
			defer taskStore.Close()
			defer sched.Stop()
		}
	}

	sup := subagent.NewSupervisor(cfg, sessions, cwd, cli.Agent != "main")
	sup.StartCleanup(ctx, subagent.DefaultSweepInterval)
	defer sup.Shutdown()

	ctx = types.WithRunContext(ctx, &types.RunContext{
		SessionID:  sess.ID,
		SessionKey: sess.Key,
		AgentID:    cli.Agent,
		CWD:        cwd,
	})

	srv := server.New(rpc.NewHandler(runner, version, cli.Tools))
	if cli.Port > 0 {
		err = srv.ServeTCP(ctx, fmt.Sprintf("127.0.0.1:%d", cli.Port))
	} else {
		err = srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	}
	if err != nil {
		L_fatal("server failed: %v", err)
	}

	L_info("llamar-server exiting")
}

// buildRegistry assembles the tool set: built-in tools plus one tool per
// file skill found under the skills directory.
func buildRegistry(cwd string, cfg func() *config.Config, memStore *memory.Store, memIndex *memory.Index, limiter *ratelimit.Limiter) *tools.Registry {
	registry := tools.NewRegistry()
	shell := exec.NewRunner(cwd)

	registry.Register(read.NewTool(cwd, cfg))
	registry.Register(write.NewTool(cwd, cfg))
	registry.Register(list.NewTool(cwd, cfg))
	registry.Register(grep.NewTool(cwd, cfg))
	registry.Register(exec.NewTool(cwd, cfg, shell))
	registry.Register(runr.NewTool(cwd, shell))
	registry.Register(gittool.NewStatusTool(cwd, cfg, shell))
	registry.Register(gittool.NewDiffTool(cwd, cfg, shell))
	registry.Register(gittool.NewLogTool(cwd, cfg, shell))
	registry.Register(jq.NewTool(cwd, cfg, shell))
	registry.Register(memorystore.NewTool(memStore))
	registry.Register(memorysearch.NewTool(memStore, memIndex))

	// The chat handler is wired by whatever embeds this server next to
	// an LLM loop; standalone servers answer with an error envelope.
	chatTool := chat.NewTool(nil)
	chatTool.SetLimiter(limiter, func() string { return cfg().Provider })
	registry.Register(chatTool)

	registerSkills(registry)

	L_debug("registry assembled", "tools", registry.Count())
	return registry
}

func registerSkills(registry *tools.Registry) {
	dir, err := paths.SkillsDir()
	if err != nil {
		L_warn("skills: cannot resolve skills dir", "error", err)
		return
	}
	loaded, err := skills.NewLoader(dir).LoadAll()
	if err != nil {
		L_warn("skills: load failed", "error", err)
		return
	}
	for _, sk := range loaded {
		registry.Register(skills.NewTool(sk))
	}
	if len(loaded) > 0 {
		L_info("skills: registered", "count", len(loaded))
	}
}

// openSession creates this server run's session and marks it running.
func openSession(sessions *session.Store, cfg *config.Config, cwd string) *session.Session {
	sess, err := sessions.Create(cfg.Provider, cfg.Model, cwd)
	if err != nil {
		L_fatal("failed to create session: %v", err)
	}
	err = sessions.UpdateEntry(sess.Key, func(e *session.IndexEntry) {
		e.Status = "running"
		e.PID = os.Getpid()
		e.Port = cli.Port
	})
	if err != nil {
		L_warn("session: failed to mark running", "error", err)
	}
	return sess
}

func closeSession(sessions *session.Store, sess *session.Session) {
	err := sessions.UpdateEntry(sess.Key, func(e *session.IndexEntry) {
		e.Status = "completed"
	})
	if err != nil {
		L_warn("session: failed to mark completed", "error", err)
	}
}

// openMemoryIndex opens the agent's chunk index and seeds it from the
// memory documents. The server runs without full-text search when the
// index cannot be opened.
func openMemoryIndex(agentID, cwd string) *memory.Index {
	dbPath, err := paths.MemoryIndexPath(agentID)
	if err != nil {
		L_warn("memory: index disabled", "error", err)
		return nil
	}
	index, err := memory.NewIndex(dbPath)
	if err != nil {
		L_warn("memory: index disabled", "error", err)
		return nil
	}

	if dir, err := paths.MemoryDir(); err == nil {
		if files, chunks, err := index.IndexDir(dir, "memory"); err == nil && files > 0 {
			L_debug("memory: indexed daily files", "files", files, "chunks", chunks)
		}
	}
	if global, err := paths.GlobalMemoryFile(); err == nil {
		indexIfPresent(index, global)
	}
	indexIfPresent(index, paths.ProjectMemoryFile(cwd))

	return index
}

func indexIfPresent(index *memory.Index, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if _, err := index.IndexFile(path, "memory"); err != nil {
		L_warn("memory: index failed", "path", path, "error", err)
	}
}

// startMemoryWatcher keeps the chunk index current as memory documents
// change on disk. Returns nil when the index is disabled.
func startMemoryWatcher(index *memory.Index, cwd string) *memory.Watcher {
	if index == nil {
		return nil
	}
	watcher, err := memory.NewWatcher(index, "memory")
	if err != nil {
		L_warn("memory: watcher disabled", "error", err)
		return nil
	}

	if dir, err := paths.MemoryDir(); err == nil {
		if err := paths.EnsureDir(dir); err == nil {
			watchPath(watcher, dir)
		}
	}
	// The workspace dir covers the global MEMORY.md.
	if workspace, err := paths.WorkspaceDir(); err == nil {
		watchPath(watcher, workspace)
	}
	if projectDir := filepath.Dir(paths.ProjectMemoryFile(cwd)); dirExists(projectDir) {
		watchPath(watcher, projectDir)
	}

	watcher.Start()
	return watcher
}

func watchPath(watcher *memory.Watcher, path string) {
	if err := watcher.Add(path); err != nil {
		L_warn("memory: cannot watch", "path", path, "error", err)
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// startScheduler opens the task store and launches the daemon loop.
// Task prompts execute as chat tool calls, so they share the permission
// gate, rate limit and trace path of every other call.
func startScheduler(ctx context.Context, cfg func() *config.Config, runner *tools.Runner) (*tasks.Scheduler, *tasks.Store) {
	dbPath, err := paths.TasksDBPath()
	if err != nil {
		L_warn("tasks: disabled", "error", err)
		return nil, nil
	}
	store, err := tasks.NewStore(dbPath)
	if err != nil {
		L_warn("tasks: disabled", "error", err)
		return nil, nil
	}

	sched := tasks.NewScheduler(store, cfg, runTaskViaChat(runner))
	if err := sched.Start(ctx, tasks.DefaultStepInterval); err != nil {
		L_warn("tasks: scheduler start failed", "error", err)
		store.Close()
		return nil, nil
	}
	return sched, store
}

func runTaskViaChat(runner *tools.Runner) tasks.RunTaskFunc {
	return func(ctx context.Context, task tasks.Task, cfg *config.Config) tasks.RunOutcome {
		result := runner.Run(ctx, "chat", map[string]any{"message": task.Prompt})
		text := result.GetText()
		if result.IsError {
			return tasks.RunOutcome{Error: text}
		}
		return tasks.RunOutcome{
			Success:    true,
			Result:     text,
			TokensUsed: tokens.Estimate(task.Prompt) + tokens.Estimate(text),
		}
	}
}
