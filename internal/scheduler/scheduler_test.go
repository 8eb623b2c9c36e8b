package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/agroweather/internal/weather"
)

type fakeRefresher struct {
	runs    atomic.Int32
	horizon atomic.Int32
}

func (f *fakeRefresher) RefreshAll(_ context.Context, locs []weather.Location, horizon int, _ time.Duration) weather.RefreshReport {
	f.runs.Add(1)
	f.horizon.Store(int32(horizon))
	return weather.RefreshReport{RunID: "run", Succeeded: len(locs)}
}

type fakePruner struct{ calls atomic.Int32 }

func (p *fakePruner) Prune(context.Context, time.Time) (int64, error) {
	p.calls.Add(1)
	return 2, nil
}

var locs = []weather.Location{{Name: "Durham", Coordinates: weather.Coordinates{Latitude: 35.99, Longitude: -78.9}}}

func TestRunOnce(t *testing.T) {
	ref := &fakeRefresher{}
	pr := &fakePruner{}
	s := New(locs, ref, Options{Horizon: 10, Pruner: pr})

	report := s.RunOnce(context.Background())
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, int32(1), ref.runs.Load())
	assert.Equal(t, int32(10), ref.horizon.Load())
	assert.Equal(t, int32(1), pr.calls.Load())
}

func TestStartRunsImmediately(t *testing.T) {
	ref := &fakeRefresher{}
	s := New(locs, ref, Options{Interval: time.Hour})
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool { return ref.runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestStartWithoutLocationsIsNoop(t *testing.T) {
	ref := &fakeRefresher{}
	s := New(nil, ref, Options{})
	require.NoError(t, s.Start())
	s.Stop()
	assert.Zero(t, ref.runs.Load())
}
