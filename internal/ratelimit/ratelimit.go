// Package ratelimit enforces per-provider caps over two independent
// windows: tokens per hour and requests per minute. Check is advisory
// and never blocks; callers surface the message to the LLM and retry
// later.
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/roelfdiedericks/llamar/internal/config"
	. "github.com/roelfdiedericks/llamar/internal/logging"
	"github.com/roelfdiedericks/llamar/internal/tokens"
)

// warnPct is the hourly usage percentage that triggers a warning.
const warnPct = 80

// Result is the outcome of a Check call.
type Result struct {
	OK      bool
	Message string // set when OK is false
	Warning string // set when usage approaches the hourly cap
}

type window struct {
	tokensHour     int
	requestsMinute int
	hourStart      time.Time
	minuteStart    time.Time
}

// Limiter tracks usage per provider. Providers without configured caps
// always pass.
type Limiter struct {
	limits func() map[string]config.RateLimit

	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewLimiter creates a limiter. limits must return the current
// per-provider caps; it is consulted on every call so config reloads
// take effect immediately.
func NewLimiter(limits func() map[string]config.RateLimit) *Limiter {
	return &Limiter{
		limits:  limits,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check reports whether a request estimated at estTokens may proceed
// for the provider. Expired windows roll over first; exceeding a cap
// yields a message with the retry horizon.
func (l *Limiter) Check(provider string, estTokens int) Result {
	caps, ok := l.limits()[provider]
	if !ok || (caps.TokensPerHour <= 0 && caps.RequestsPerMinute <= 0) {
		return Result{OK: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.window(provider, now)
	w.roll(now)

	if caps.RequestsPerMinute > 0 && w.requestsMinute >= caps.RequestsPerMinute {
		wait := secondsUntil(w.minuteStart.Add(time.Minute), now)
		L_warn("ratelimit: request cap hit", "provider", provider, "requests", w.requestsMinute)
		return Result{Message: fmt.Sprintf(
			"Rate limit exceeded: %d requests this minute (limit %d); try again in %d seconds",
			w.requestsMinute, caps.RequestsPerMinute, wait)}
	}

	if caps.TokensPerHour > 0 && w.tokensHour+estTokens > caps.TokensPerHour {
		wait := minutesUntil(w.hourStart.Add(time.Hour), now)
		L_warn("ratelimit: token cap hit", "provider", provider, "tokens", w.tokensHour, "estimate", estTokens)
		return Result{Message: fmt.Sprintf(
			"Rate limit exceeded: %d tokens used this hour (limit %d); try again in %d minutes",
			w.tokensHour, caps.TokensPerHour, wait)}
	}

	res := Result{OK: true}
	if caps.TokensPerHour > 0 && (w.tokensHour+estTokens)*100 >= caps.TokensPerHour*warnPct {
		res.Warning = fmt.Sprintf("Approaching token limit: %d of %d tokens this hour",
			w.tokensHour+estTokens, caps.TokensPerHour)
	}
	return res
}

// Track records completed usage against the provider's windows.
func (l *Limiter) Track(provider string, usedTokens, requests int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.window(provider, now)
	w.roll(now)
	w.tokensHour += usedTokens
	w.requestsMinute += requests
}

// EstimateTokens estimates the token count of text for Check calls.
func (l *Limiter) EstimateTokens(text string) int {
	return tokens.Estimate(text)
}

// window returns the provider's state, creating it with fresh windows
// on first use. Callers hold the mutex.
func (l *Limiter) window(provider string, now time.Time) *window {
	w, ok := l.windows[provider]
	if !ok {
		w = &window{hourStart: now, minuteStart: now}
		l.windows[provider] = w
	}
	return w
}

func (w *window) roll(now time.Time) {
	if now.Sub(w.hourStart) >= time.Hour {
		w.hourStart = now
		w.tokensHour = 0
	}
	if now.Sub(w.minuteStart) >= time.Minute {
		w.minuteStart = now
		w.requestsMinute = 0
	}
}

func secondsUntil(deadline, now time.Time) int {
	s := int(math.Ceil(deadline.Sub(now).Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

func minutesUntil(deadline, now time.Time) int {
	m := int(math.Ceil(deadline.Sub(now).Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}
