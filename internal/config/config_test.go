package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaultsOnly(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFiles(filepath.Join(dir, "missing.json"), filepath.Join(dir, "also-missing.json"))
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if cfg.ApprovalMode != ModeAsk {
		t.Errorf("approval_mode = %q, want ask", cfg.ApprovalMode)
	}
	if cfg.SkillTimeout != 60 {
		t.Errorf("skill_timeout = %d, want 60", cfg.SkillTimeout)
	}
	if !cfg.SubagentsEnabled() {
		t.Error("subagents should default to enabled")
	}
	if cfg.Subagents.BasePort != 9300 {
		t.Errorf("base_port = %d, want 9300", cfg.Subagents.BasePort)
	}
	if cfg.ContextWarnPct != 70 || cfg.ContextCompactPct != 80 {
		t.Errorf("context thresholds = %d/%d, want 70/80", cfg.ContextWarnPct, cfg.ContextCompactPct)
	}
}

func TestLoadProjectWinsPerKey(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.json", `{
		"model": "global-model",
		"provider": "global-provider",
		"skill_timeout": 10
	}`)
	project := writeFile(t, dir, "project.json", `{
		"model": "project-model"
	}`)

	cfg, err := LoadFiles(global, project)
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if cfg.Model != "project-model" {
		t.Errorf("model = %q, want project-model", cfg.Model)
	}
	if cfg.Provider != "global-provider" {
		t.Errorf("provider = %q, want global-provider (untouched key)", cfg.Provider)
	}
	if cfg.SkillTimeout != 10 {
		t.Errorf("skill_timeout = %d, want 10 from global", cfg.SkillTimeout)
	}
}

// Top-level keys replace wholesale: a project subagents section hides
// every field of the global one.
func TestLoadShallowMerge(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.json", `{
		"subagents": {"enabled": false, "max_concurrent": 9}
	}`)
	project := writeFile(t, dir, "project.json", `{
		"subagents": {"max_concurrent": 2}
	}`)

	cfg, err := LoadFiles(global, project)
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if cfg.Subagents.MaxConcurrent != 2 {
		t.Errorf("max_concurrent = %d, want 2", cfg.Subagents.MaxConcurrent)
	}
	// Global's enabled:false was replaced along with its section; the
	// default applies again.
	if !cfg.SubagentsEnabled() {
		t.Error("shallow merge should have dropped global's enabled:false")
	}
}

func TestLoadExplicitFalseSurvivesDefaults(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.json", `{
		"subagents": {"enabled": false}
	}`)

	cfg, err := LoadFiles(global, filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if cfg.SubagentsEnabled() {
		t.Error("explicit enabled:false was clobbered by defaults")
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.json", `{not json at all`)
	project := writeFile(t, dir, "project.json", `{"model": "still-works"}`)

	cfg, err := LoadFiles(global, project)
	if err != nil {
		t.Fatalf("malformed global must not abort: %v", err)
	}
	if cfg.Model != "still-works" {
		t.Errorf("model = %q, want still-works", cfg.Model)
	}
	if cfg.ApprovalMode != ModeAsk {
		t.Errorf("defaults missing after malformed file: %q", cfg.ApprovalMode)
	}
}

func TestLoadPermissionsAndPaths(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.json", `{
		"permissions": {"bash": "deny"},
		"dangerous_tools": ["bash", "write_file"],
		"denied_paths": ["/etc"],
		"allowed_paths": ["/home/user/project"],
		"rate_limits": {"anthropic": {"tokens_per_hour": 100000, "requests_per_minute": 50}}
	}`)

	cfg, err := LoadFiles(global, filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if cfg.Permissions["bash"] != ModeDeny {
		t.Errorf("permissions.bash = %q, want deny", cfg.Permissions["bash"])
	}
	if len(cfg.DangerousTools) != 2 {
		t.Errorf("dangerous_tools = %v", cfg.DangerousTools)
	}
	if len(cfg.DeniedPaths) != 1 || cfg.DeniedPaths[0] != "/etc" {
		t.Errorf("denied_paths = %v", cfg.DeniedPaths)
	}
	rl, ok := cfg.RateLimits["anthropic"]
	if !ok || rl.TokensPerHour != 100000 || rl.RequestsPerMinute != 50 {
		t.Errorf("rate_limits.anthropic = %+v", rl)
	}
}

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.json")

	if err := AtomicWriteJSON(path, map[string]int{"a": 1}, 0600); err != nil {
		t.Fatalf("AtomicWriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), `"a": 1`) {
		t.Errorf("content = %s", data)
	}

	// No temp droppings left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}
