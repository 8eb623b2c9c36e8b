package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestLimiterDeniesAtCeiling(t *testing.T) {
	clk := &clock{t: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)}
	l := New(map[string]Quota{
		"openweathermap": {Limit: 2, Window: time.Hour},
	}, WithClock(clk.Now))

	require.NoError(t, l.Allow("openweathermap"))
	require.NoError(t, l.Allow("openweathermap"))

	err := l.Allow("openweathermap")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	// counters are independent per provider
	assert.NoError(t, l.Allow("weatherapi"))
}

func TestLimiterResetsAfterWindow(t *testing.T) {
	clk := &clock{t: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)}
	l := New(map[string]Quota{"weatherapi": {Limit: 1, Window: time.Hour}}, WithClock(clk.Now))

	require.NoError(t, l.Allow("weatherapi"))
	require.ErrorIs(t, l.Allow("weatherapi"), ErrQuotaExceeded)

	clk.Advance(time.Hour)
	require.NoError(t, l.Allow("weatherapi"))

	snap := l.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].Count)
	assert.Equal(t, clk.Now().Add(time.Hour), snap[0].WindowReset)
}

func TestLimiterThrottle(t *testing.T) {
	clk := &clock{t: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)}
	l := New(map[string]Quota{
		"nws": {Limit: 1000, Window: 24 * time.Hour, RequestsPerSecond: 1, Burst: 1},
	}, WithClock(clk.Now))

	require.NoError(t, l.Allow("nws"))
	assert.ErrorIs(t, l.Allow("nws"), ErrQuotaExceeded)

	clk.Advance(time.Second)
	assert.NoError(t, l.Allow("nws"))
}

func TestLimiterReset(t *testing.T) {
	l := New(map[string]Quota{"a": {Limit: 1}})
	require.NoError(t, l.Allow("a"))
	require.Error(t, l.Allow("a"))

	l.Reset()
	assert.NoError(t, l.Allow("a"))
}
