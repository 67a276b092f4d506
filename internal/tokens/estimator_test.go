package tokens

import (
	"strings"
	"testing"
)

func TestFallbackCount(t *testing.T) {
	e := &Estimator{}
	if got := e.Count("abcdefgh"); got != 2 {
		t.Errorf("Count = %d, want 2 (chars/4 fallback)", got)
	}
	if got := e.Count(""); got != 0 {
		t.Errorf("Count of empty string = %d, want 0", got)
	}
}

func TestNilEstimatorCounts(t *testing.T) {
	var e *Estimator
	if got := e.Count("abcdefgh"); got != 2 {
		t.Errorf("Count on nil estimator = %d, want 2", got)
	}
}

func TestCountWithOverhead(t *testing.T) {
	e := &Estimator{}
	if got := e.CountWithOverhead("abcdefgh", 4); got != 6 {
		t.Errorf("CountWithOverhead = %d, want 6", got)
	}
}

func TestEstimateScalesWithLength(t *testing.T) {
	// Whether tiktoken data loaded or the fallback kicked in, more text
	// must never estimate as fewer tokens.
	short := Estimate(strings.Repeat("word ", 10))
	long := Estimate(strings.Repeat("word ", 1000))
	if long <= short {
		t.Errorf("Estimate(long) = %d <= Estimate(short) = %d", long, short)
	}
}
