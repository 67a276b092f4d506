// Package config resolves the merged llamar configuration from the
// user-global file (~/.llamar/config.json) and the project-local file
// (<cwd>/.llamar/config.json). The project file wins per top-level key;
// hard-coded defaults fill whatever remains.
package config

import (
	"encoding/json"
	"os"
	"sync/atomic"

	"dario.cat/mergo"

	"github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/paths"
)

// Permission modes used by approval_mode and the permissions table.
const (
	ModeAllow = "allow"
	ModeAsk   = "ask"
	ModeDeny  = "deny"
)

// RateLimit is the per-provider windowed cap configuration.
type RateLimit struct {
	TokensPerHour     int `json:"tokens_per_hour,omitempty"`
	RequestsPerMinute int `json:"requests_per_minute,omitempty"`
}

// SubagentConfig is the child-process policy.
// Enabled and AllowNested are pointers so an explicit false in a config
// file survives the defaults fill.
type SubagentConfig struct {
	Enabled        *bool    `json:"enabled,omitempty"`
	MaxConcurrent  int      `json:"max_concurrent,omitempty"`
	TimeoutMinutes int      `json:"timeout_minutes,omitempty"`
	AllowNested    *bool    `json:"allow_nested,omitempty"`
	DefaultTools   []string `json:"default_tools,omitempty"`
	BasePort       int      `json:"base_port,omitempty"`
}

// Config is the merged llamar configuration.
type Config struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	ContextFiles []string `json:"context_files,omitempty"`

	ApprovalMode   string            `json:"approval_mode,omitempty"`
	DangerousTools []string          `json:"dangerous_tools,omitempty"`
	Permissions    map[string]string `json:"permissions,omitempty"`

	AllowedPaths []string `json:"allowed_paths,omitempty"`
	DeniedPaths  []string `json:"denied_paths,omitempty"`

	SkillTimeout int  `json:"skill_timeout,omitempty"` // seconds
	DryRun       bool `json:"dry_run,omitempty"`

	RateLimits map[string]RateLimit `json:"rate_limits,omitempty"`

	Subagents SubagentConfig `json:"subagents,omitempty"`

	ContextWarnPct    int `json:"context_warn_pct,omitempty"`
	ContextHighPct    int `json:"context_high_pct,omitempty"`
	ContextCritPct    int `json:"context_crit_pct,omitempty"`
	ContextCompactPct int `json:"context_compact_pct,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// Defaults returns the hard-coded configuration defaults.
func Defaults() Config {
	return Config{
		Provider:     "anthropic",
		Model:        "claude-opus-4-5",
		ContextFiles: []string{"CLAUDE.md", "LLAMAR.md"},
		ApprovalMode: ModeAsk,
		SkillTimeout: 60,
		Subagents: SubagentConfig{
			Enabled:        boolPtr(true),
			MaxConcurrent:  3,
			TimeoutMinutes: 30,
			AllowNested:    boolPtr(false),
			DefaultTools:   []string{"read_file", "list_files", "grep_files", "bash"},
			BasePort:       9300,
		},
		ContextWarnPct:    70,
		ContextHighPct:    85,
		ContextCritPct:    95,
		ContextCompactPct: 80,
	}
}

// SubagentsEnabled reports the effective subagents.enabled flag.
func (c *Config) SubagentsEnabled() bool {
	return c.Subagents.Enabled != nil && *c.Subagents.Enabled
}

// SubagentsAllowNested reports the effective subagents.allow_nested flag.
func (c *Config) SubagentsAllowNested() bool {
	return c.Subagents.AllowNested != nil && *c.Subagents.AllowNested
}

// readRaw loads one config file as a raw top-level key map.
// A missing file yields nil. Malformed JSON yields an empty map and a
// warning; startup never aborts on a bad config file.
func readRaw(path string) map[string]json.RawMessage {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.L_warn("config: unreadable file, ignoring", "path", path, "error", err)
		}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logging.L_warn("config: malformed JSON, treating as empty", "path", path, "error", err)
		return map[string]json.RawMessage{}
	}
	return raw
}

// mergeRaw shallow-merges two raw key maps; keys in over replace keys in
// base wholesale.
func mergeRaw(base, over map[string]json.RawMessage) map[string]json.RawMessage {
	merged := make(map[string]json.RawMessage, len(base)+len(over))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range over {
		merged[k] = v
	}
	return merged
}

// Load resolves the effective configuration for a working directory.
// Pure given the file contents: global + project shallow merge (project
// precedence), then defaults fill the gaps.
func Load(cwd string) (*Config, error) {
	globalPath, err := paths.GlobalConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFiles(globalPath, paths.ProjectConfigPath(cwd))
}

// LoadFiles is Load with explicit file locations (used by tests).
func LoadFiles(globalPath, projectPath string) (*Config, error) {
	global := readRaw(globalPath)
	project := readRaw(projectPath)
	merged := mergeRaw(global, project)

	var cfg Config
	if len(merged) > 0 {
		data, err := json.Marshal(merged)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			logging.L_warn("config: merged config does not match schema, using defaults", "error", err)
			cfg = Config{}
		}
	}

	defaults := Defaults()
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return nil, err
	}

	logging.L_debug("config: loaded",
		"global", globalPath,
		"project", projectPath,
		"approval_mode", cfg.ApprovalMode,
		"dry_run", cfg.DryRun)
	return &cfg, nil
}

// Manager holds the live configuration pointer. Reload swaps it
// atomically; readers pin cur once per request.
type Manager struct {
	cwd string
	cur atomic.Pointer[Config]
}

// NewManager loads the initial configuration for cwd.
func NewManager(cwd string) (*Manager, error) {
	m := &Manager{cwd: cwd}
	cfg, err := Load(cwd)
	if err != nil {
		return nil, err
	}
	m.cur.Store(cfg)
	return m, nil
}

// Current returns the live configuration.
func (m *Manager) Current() *Config {
	return m.cur.Load()
}

// Reload re-resolves the configuration and swaps the pointer.
func (m *Manager) Reload() error {
	cfg, err := Load(m.cwd)
	if err != nil {
		return err
	}
	m.cur.Store(cfg)
	logging.L_info("config: reloaded")
	return nil
}
