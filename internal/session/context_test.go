package session

import (
	"testing"

	"github.com/roelfdiedericks/llamar/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	return &cfg
}

func TestClassify(t *testing.T) {
	cfg := testConfig() // warn 70, high 85, crit 95
	window := 100000

	tests := []struct {
		tokens int
		want   ContextLevel
	}{
		{0, ContextOK},
		{50000, ContextOK},
		{69999, ContextOK},
		{70000, ContextWarn},
		{84999, ContextWarn},
		{85000, ContextHigh},
		{94999, ContextHigh},
		{95000, ContextCritical},
		{120000, ContextCritical},
	}
	for _, tt := range tests {
		if got := Classify(tt.tokens, window, cfg); got != tt.want {
			t.Errorf("Classify(%d) = %s, want %s", tt.tokens, got, tt.want)
		}
	}
}

func TestShouldCompact(t *testing.T) {
	cfg := testConfig() // compact at 80
	if ShouldCompact(79999, 100000, cfg) {
		t.Error("79% should not compact")
	}
	if !ShouldCompact(80000, 100000, cfg) {
		t.Error("80% should compact")
	}
}

func TestContextWindow(t *testing.T) {
	if w := ContextWindow("claude-opus-4-5"); w != 200000 {
		t.Errorf("known model window = %d", w)
	}
	if w := ContextWindow("mystery-model-9000"); w != defaultContextWindow {
		t.Errorf("unknown model window = %d, want default", w)
	}
}

func TestFormatContextStatus(t *testing.T) {
	got := FormatContextStatus(12000, 200000)
	want := "[Context: 12k/200k tokens (6%)]"
	if got != want {
		t.Errorf("FormatContextStatus = %q, want %q", got, want)
	}
	if FormatContextStatus(1, 0) != "" {
		t.Error("zero window should produce empty status")
	}
}
