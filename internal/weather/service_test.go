package weather_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/agroweather/internal/agro"
	"github.com/i474232898/agroweather/internal/cache"
	"github.com/i474232898/agroweather/internal/ratelimit"
	"github.com/i474232898/agroweather/internal/weather"
	"github.com/i474232898/agroweather/internal/weather/providers"
)

var fixedNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// stubProvider serves a flat forecast or a fixed error and counts fetches.
type stubProvider struct {
	name     string
	priority int
	horizon  int
	needsKey bool
	err      error
	high     float64
	low      float64
	humidity float64
	fetches  atomic.Int32
	delay    time.Duration
}

func (p *stubProvider) Name() string              { return p.name }
func (p *stubProvider) Priority() int             { return p.priority }
func (p *stubProvider) MaxHorizon() int           { return p.horizon }
func (p *stubProvider) RequiresCredentials() bool { return p.needsKey }

func (p *stubProvider) Fetch(ctx context.Context, coords weather.Coordinates, days int, _ string) (weather.RawResponse, error) {
	p.fetches.Add(1)
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return weather.RawResponse{}, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if p.err != nil {
		return weather.RawResponse{}, p.err
	}
	return weather.RawResponse{Provider: p.name, Coordinates: coords, Days: days}, nil
}

func (p *stubProvider) Normalize(raw weather.RawResponse) ([]weather.DailyForecast, error) {
	high, low, hum := p.high, p.low, p.humidity
	if high == 0 {
		high, low, hum = 72, 50, 55
	}
	out := make([]weather.DailyForecast, raw.Days)
	for i := range out {
		out[i] = weather.DailyForecast{
			Date:       weather.CalendarDay(fixedNow).AddDate(0, 0, i),
			TempHigh:   high,
			TempLow:    low,
			TempAvg:    (high + low) / 2,
			Humidity:   hum,
			Confidence: 0.9,
			Source:     p.name,
		}
	}
	return out, nil
}

var durham = weather.Coordinates{Latitude: 35.9940, Longitude: -78.8986}

func fastBackoff() weather.BackoffConfig {
	return weather.BackoffConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func newService(t *testing.T, provs []weather.Provider, limiter weather.RateLimiter, creds map[string]string) *weather.Service {
	t.Helper()
	fc := cache.New[[]weather.DailyForecast](cache.WithClock[[]weather.DailyForecast](clock))
	return weather.NewService(provs, providers.NewHistoricalProvider(), limiter, fc, nil, weather.Options{
		Backoff:     fastBackoff(),
		Credentials: creds,
		Now:         clock,
	})
}

func request(days int) weather.ForecastRequest {
	c := durham
	return weather.ForecastRequest{Coordinates: &c, HorizonDays: days}
}

func TestQuotaDeniedProviderIsSkipped(t *testing.T) {
	a := &stubProvider{name: "a", priority: 1, horizon: 10, needsKey: true}
	b := &stubProvider{name: "b", priority: 2, horizon: 10, needsKey: true}

	limiter := ratelimit.New(map[string]ratelimit.Quota{"a": {Limit: 1, Window: time.Hour}}, ratelimit.WithClock(clock))
	require.NoError(t, limiter.Allow("a"))

	svc := newService(t, []weather.Provider{a, b}, limiter, map[string]string{"a": "ka", "b": "kb"})
	res, err := svc.GetForecast(context.Background(), request(5))
	require.NoError(t, err)

	assert.Equal(t, "b", res.Source)
	assert.False(t, res.Fallback)
	assert.Len(t, res.Days, 5)
	assert.Zero(t, a.fetches.Load(), "quota denial must not reach the network")
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, weather.OutcomeQuotaExceeded, res.Attempts[0].Outcome)
	assert.Equal(t, weather.OutcomeOK, res.Attempts[1].Outcome)
}

func TestRetriesSpendQuota(t *testing.T) {
	n := &stubProvider{name: "nws", priority: 100, horizon: 7, err: weather.ErrTransientNetwork}
	limiter := ratelimit.New(map[string]ratelimit.Quota{"nws": {Limit: 2, Window: time.Hour}}, ratelimit.WithClock(clock))
	svc := newService(t, []weather.Provider{n}, limiter, nil)

	res, err := svc.GetForecast(context.Background(), request(3))
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Equal(t, int32(2), n.fetches.Load(), "the third try is denied before the network")
	require.NotEmpty(t, res.Attempts)
	assert.Equal(t, weather.OutcomeQuotaExceeded, res.Attempts[0].Outcome)

	snap := limiter.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 2, snap[0].Count)
}

func TestTotalFailureFallsBackToHistorical(t *testing.T) {
	for _, horizon := range []int{1, 7, 10, 14} {
		a := &stubProvider{name: "a", priority: 1, horizon: 10, needsKey: true, err: weather.ErrMalformedResponse}
		n := &stubProvider{name: "nws", priority: 100, horizon: 7, err: weather.ErrTransientNetwork}

		svc := newService(t, []weather.Provider{a, n}, nil, map[string]string{"a": "k"})
		res, err := svc.GetForecast(context.Background(), request(horizon))
		require.NoError(t, err)

		assert.True(t, res.Fallback)
		assert.Equal(t, providers.HistoricalName, res.Source)
		assert.Len(t, res.Days, horizon)
		assert.Equal(t, int32(1), a.fetches.Load(), "malformed responses are not retried")
		assert.Equal(t, int32(3), n.fetches.Load(), "transient errors are retried up to the cap")
	}
}

func TestRepeatCallsServeFromCache(t *testing.T) {
	a := &stubProvider{name: "a", priority: 1, horizon: 10, needsKey: true}
	svc := newService(t, []weather.Provider{a}, nil, map[string]string{"a": "k"})

	first, err := svc.GetForecast(context.Background(), request(5))
	require.NoError(t, err)
	second, err := svc.GetForecast(context.Background(), request(5))
	require.NoError(t, err)

	assert.Equal(t, int32(1), a.fetches.Load())
	assert.Equal(t, first.Days, second.Days)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, weather.OutcomeCacheHit, second.Attempts[0].Outcome)
}

func TestCacheHitBypassesRateLimiter(t *testing.T) {
	a := &stubProvider{name: "a", priority: 1, horizon: 10, needsKey: true}
	limiter := ratelimit.New(map[string]ratelimit.Quota{"a": {Limit: 1, Window: time.Hour}}, ratelimit.WithClock(clock))
	svc := newService(t, []weather.Provider{a}, limiter, map[string]string{"a": "k"})

	for i := 0; i < 3; i++ {
		res, err := svc.GetForecast(context.Background(), request(3))
		require.NoError(t, err)
		assert.Equal(t, "a", res.Source)
	}
	assert.Equal(t, int32(1), a.fetches.Load())
}

func TestPreferredProviderTriedFirst(t *testing.T) {
	a := &stubProvider{name: "a", priority: 1, horizon: 10, needsKey: true}
	b := &stubProvider{name: "b", priority: 2, horizon: 10, needsKey: true}
	svc := newService(t, []weather.Provider{a, b}, nil, map[string]string{"a": "ka", "b": "kb"})

	req := request(3)
	req.PreferredProvider = "b"
	res, err := svc.GetForecast(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "b", res.Source)
	assert.Zero(t, a.fetches.Load())
}

func TestPreferredProviderFailureFallsThrough(t *testing.T) {
	a := &stubProvider{name: "a", priority: 1, horizon: 10, needsKey: true}
	b := &stubProvider{name: "b", priority: 2, horizon: 10, needsKey: true, err: weather.ErrMalformedResponse}
	svc := newService(t, []weather.Provider{a, b}, nil, map[string]string{"a": "ka", "b": "kb"})

	req := request(3)
	req.PreferredProvider = "b"
	res, err := svc.GetForecast(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Source)
	assert.Equal(t, int32(1), b.fetches.Load(), "failed preferred provider is not retried in the ordered pass")
}

func TestCallerCredentialsEnableProvider(t *testing.T) {
	a := &stubProvider{name: "a", priority: 1, horizon: 10, needsKey: true}
	n := &stubProvider{name: "nws", priority: 100, horizon: 7}
	svc := newService(t, []weather.Provider{a, n}, nil, nil)

	res, err := svc.GetForecast(context.Background(), request(3))
	require.NoError(t, err)
	assert.Equal(t, "nws", res.Source)

	req := request(4)
	req.Credentials = map[string]string{"a": "caller-key"}
	res, err = svc.GetForecast(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Source)
}

func TestShortProviderHorizonIsPadded(t *testing.T) {
	n := &stubProvider{name: "nws", priority: 100, horizon: 7}
	svc := newService(t, []weather.Provider{n}, nil, nil)

	res, err := svc.GetForecast(context.Background(), request(10))
	require.NoError(t, err)
	require.Len(t, res.Days, 10)
	assert.Equal(t, "nws", res.Source)
	assert.False(t, res.Fallback)
	for i := 0; i < 7; i++ {
		assert.Equal(t, "nws", res.Days[i].Source)
	}
	for i := 7; i < 10; i++ {
		assert.Equal(t, providers.HistoricalName, res.Days[i].Source)
	}
	for i := 1; i < len(res.Days); i++ {
		assert.Equal(t, res.Days[i-1].Date.AddDate(0, 0, 1), res.Days[i].Date)
	}
}

func TestInvalidInputIsSurfaced(t *testing.T) {
	svc := newService(t, nil, nil, nil)

	_, err := svc.GetForecast(context.Background(), weather.ForecastRequest{HorizonDays: 5})
	assert.ErrorIs(t, err, weather.ErrInvalidInput)

	bad := weather.Coordinates{Latitude: 95, Longitude: 0}
	_, err = svc.GetForecast(context.Background(), weather.ForecastRequest{Coordinates: &bad, HorizonDays: 5})
	assert.True(t, weather.IsInvalidInput(err))

	_, err = svc.GetForecast(context.Background(), request(15))
	assert.ErrorIs(t, err, weather.ErrInvalidInput)
	_, err = svc.GetForecast(context.Background(), request(0))
	assert.ErrorIs(t, err, weather.ErrInvalidInput)
}

func TestCallerTimeoutFallsBackToHistorical(t *testing.T) {
	slow := &stubProvider{name: "nws", priority: 100, horizon: 7, delay: time.Second}
	svc := newService(t, []weather.Provider{slow}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := svc.GetForecast(ctx, request(5))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, res.Fallback)
	assert.Len(t, res.Days, 5)
}

// No credentials, government provider down: ten historical days with frost
// classification and a frost alert for a January start.
func TestDurhamNoCredentialsGovernmentOutage(t *testing.T) {
	n := &stubProvider{name: "nws", priority: 100, horizon: 7, err: errors.Join(weather.ErrTransientNetwork, errors.New("connection refused"))}
	a := &stubProvider{name: "openweathermap", priority: 10, horizon: 10, needsKey: true}
	svc := newService(t, []weather.Provider{a, n}, nil, nil)

	ef, err := svc.Forecast(context.Background(), request(10))
	require.NoError(t, err)

	assert.Zero(t, a.fetches.Load(), "keyed providers are ineligible without credentials")
	assert.True(t, ef.Fallback)
	assert.Equal(t, providers.HistoricalName, ef.Source)
	assert.Equal(t, 0.6, ef.Confidence)
	require.Len(t, ef.Days, 10)

	frostInFirstThree := false
	for i, d := range ef.Days {
		assert.Equal(t, agro.FrostRiskFor(d.TempLow), d.FrostRisk)
		if i < 3 && d.TempLow < 35 {
			frostInFirstThree = true
		}
	}
	require.True(t, frostInFirstThree)

	var frostAlert *weather.GardenAlert
	for i := range ef.Alerts {
		if ef.Alerts[i].Type == weather.AlertFrost {
			frostAlert = &ef.Alerts[i]
		}
	}
	require.NotNil(t, frostAlert)
	assert.Equal(t, weather.SeverityHigh, frostAlert.Severity)
}

func TestHeatAlertNeedsMoreThanThreeDays(t *testing.T) {
	hot := &stubProvider{name: "hot", priority: 1, horizon: 14, high: 95, low: 75, humidity: 60}
	svc := newService(t, []weather.Provider{hot}, nil, nil)

	for _, tc := range []struct {
		days      int
		wantAlert bool
	}{
		{3, false},
		{4, true},
	} {
		ef, err := svc.Forecast(context.Background(), request(tc.days))
		require.NoError(t, err)

		found := false
		for _, a := range ef.Alerts {
			if a.Type == weather.AlertHeat {
				found = true
			}
		}
		assert.Equal(t, tc.wantAlert, found, "horizon %d", tc.days)
		assert.Equal(t, agro.HeatExtreme, ef.Days[0].HeatStressRisk)
	}
}
