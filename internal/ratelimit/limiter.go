// Package ratelimit tracks per-provider request quotas. Each provider has an
// independent counter that resets when its window elapses, plus an optional
// short-term throttle so bursts do not burn through a daily allowance.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrQuotaExceeded is returned when a provider has used up its allowance for
// the current window. Callers should skip the provider rather than retry.
var ErrQuotaExceeded = errors.New("provider quota exceeded")

// Quota describes a provider's allowance.
type Quota struct {
	// Limit is the number of fetches allowed per Window (0 = unlimited).
	// Each retry is a fetch; the HTTP calls inside one fetch, such as the
	// NWS points and forecast lookups, count once.
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`

	// RequestsPerSecond and Burst configure the short-term throttle.
	// A zero RequestsPerSecond disables it.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// State is the externally visible counter for one provider.
type State struct {
	Provider    string    `json:"provider"`
	Limit       int       `json:"limit"`
	Count       int       `json:"requestCount"`
	WindowReset time.Time `json:"windowResetTimestamp"`
}

type providerState struct {
	count    int
	resetAt  time.Time
	throttle *rate.Limiter
}

// Limiter is safe for concurrent use. Critical sections are short and never
// span a network call.
type Limiter struct {
	mu     sync.Mutex
	quotas map[string]Quota
	states map[string]*providerState
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New builds a Limiter for the given quotas. Providers without an entry are
// unlimited but still counted.
func New(quotas map[string]Quota, opts ...Option) *Limiter {
	l := &Limiter{
		quotas: make(map[string]Quota, len(quotas)),
		states: make(map[string]*providerState),
		now:    time.Now,
	}
	for name, q := range quotas {
		if q.Window <= 0 {
			q.Window = 24 * time.Hour
		}
		l.quotas[name] = q
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records one request for provider, or returns ErrQuotaExceeded without
// counting it.
func (l *Limiter) Allow(provider string) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.quotas[provider]
	st := l.stateLocked(provider, q, now)

	if !now.Before(st.resetAt) {
		st.count = 0
		st.resetAt = now.Add(q.windowOrDefault())
	}

	if q.Limit > 0 && st.count >= q.Limit {
		return fmt.Errorf("%w: %s used %d/%d, resets at %s",
			ErrQuotaExceeded, provider, st.count, q.Limit, st.resetAt.Format(time.RFC3339))
	}
	if st.throttle != nil && !st.throttle.AllowN(now, 1) {
		return fmt.Errorf("%w: %s throttled", ErrQuotaExceeded, provider)
	}

	st.count++
	return nil
}

// Snapshot returns the current state for every provider seen so far.
func (l *Limiter) Snapshot() []State {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]State, 0, len(l.states))
	for name, st := range l.states {
		out = append(out, State{
			Provider:    name,
			Limit:       l.quotas[name].Limit,
			Count:       st.count,
			WindowReset: st.resetAt,
		})
	}
	return out
}

// Reset clears all counters. Intended for tests and admin tooling.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.states = make(map[string]*providerState)
	l.mu.Unlock()
}

func (l *Limiter) stateLocked(provider string, q Quota, now time.Time) *providerState {
	st, ok := l.states[provider]
	if ok {
		return st
	}
	st = &providerState{resetAt: now.Add(q.windowOrDefault())}
	if q.RequestsPerSecond > 0 {
		burst := q.Burst
		if burst <= 0 {
			burst = 1
		}
		st.throttle = rate.NewLimiter(rate.Limit(q.RequestsPerSecond), burst)
	}
	l.states[provider] = st
	return st
}

func (q Quota) windowOrDefault() time.Duration {
	if q.Window <= 0 {
		return 24 * time.Hour
	}
	return q.Window
}
