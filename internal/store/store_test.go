package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/agroweather/internal/weather"
)

func record(key string, ts time.Time, source string) weather.ForecastRecord {
	return weather.ForecastRecord{
		LocationKey: key,
		Location:    weather.Location{Name: key, Coordinates: weather.Coordinates{Latitude: 35.99, Longitude: -78.9}},
		Forecast: weather.EnrichedForecast{
			HorizonDays: 3,
			Source:      source,
			Days: []weather.EnrichedDailyForecast{
				{DailyForecast: weather.DailyForecast{Date: time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), TempHigh: 70, TempLow: 50}},
			},
		},
		Timestamp: ts,
		ExpiresAt: ts.Add(6 * time.Hour),
	}
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLite(filepath.Join(t.TempDir(), "records.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(0, 0),
		"sqlite": sq,
	}
}

func TestStoreLatestRecord(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC)

	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetRecord(ctx, "durham")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.SaveRecord(ctx, record("durham", base, "nws")))
			require.NoError(t, s.SaveRecord(ctx, record("durham", base.Add(6*time.Hour), "weatherapi")))
			require.NoError(t, s.SaveRecord(ctx, record("raleigh", base, "nws")))

			got, err := s.GetRecord(ctx, "durham")
			require.NoError(t, err)
			assert.Equal(t, "weatherapi", got.Forecast.Source)
			assert.True(t, got.Timestamp.Equal(base.Add(6*time.Hour)))
			require.Len(t, got.Forecast.Days, 1)
			assert.Equal(t, 70.0, got.Forecast.Days[0].TempHigh)
		})
	}
}

func TestStoreRange(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 4; i++ {
				require.NoError(t, s.SaveRecord(ctx, record("durham", base.Add(time.Duration(i)*6*time.Hour), "nws")))
			}

			recs, err := s.GetRange(ctx, "durham", base.Add(6*time.Hour), base.Add(12*time.Hour))
			require.NoError(t, err)
			assert.Len(t, recs, 2)

			_, err = s.GetRange(ctx, "durham", base.Add(48*time.Hour), base.Add(72*time.Hour))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryStoreRetention(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	s := NewMemoryStore(2, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveRecord(ctx, record("durham", now.Add(time.Duration(i)*time.Minute), "nws")))
	}
	recs, err := s.GetRange(ctx, "durham", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	aged := NewMemoryStore(0, time.Hour)
	aged.now = func() time.Time { return now }
	require.NoError(t, aged.SaveRecord(ctx, record("durham", now.Add(-3*time.Hour), "old")))
	require.NoError(t, aged.SaveRecord(ctx, record("durham", now.Add(-2*time.Hour), "old")))
	// The newest record survives even when it is past maxAge.
	got, err := aged.GetRecord(ctx, "durham")
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(now.Add(-2*time.Hour)))

	require.NoError(t, aged.SaveRecord(ctx, record("durham", now, "fresh")))
	recs, err = aged.GetRange(ctx, "durham", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "fresh", recs[0].Forecast.Source)
}

func TestSQLitePrune(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "prune.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveRecord(ctx, record("durham", base, "nws")))
	require.NoError(t, s.SaveRecord(ctx, record("durham", base.Add(12*time.Hour), "nws")))

	n, err := s.Prune(ctx, base.Add(7*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetRecord(ctx, "durham")
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(base.Add(12*time.Hour)))
}

func TestOpenDriver(t *testing.T) {
	s, err := Open("memory", "", 5, time.Hour, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open("bolt", "", 0, 0, nil)
	assert.Error(t, err)
}
