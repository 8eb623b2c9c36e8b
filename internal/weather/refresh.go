package weather

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RefreshResult reports the outcome for one location of a refresh run.
type RefreshResult struct {
	Location string `json:"location"`
	Success  bool   `json:"success"`
	Source   string `json:"source,omitempty"`
	Fallback bool   `json:"fallback"`
	Error    string `json:"error,omitempty"`
}

// RefreshReport is the result of one scheduled refresh run.
type RefreshReport struct {
	RunID      string          `json:"runId"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Results    []RefreshResult `json:"results"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
}

// saveTimeout bounds a record write once the forecast is built.
const saveTimeout = 5 * time.Second

// RefreshLocation fetches and enriches a forecast for loc and writes it to
// the record store with a RecordMaxAge expiry. Only a missing store or an
// invalid request is an error.
func (s *Service) RefreshLocation(ctx context.Context, loc Location, horizon int) (ForecastRecord, error) {
	if s.store == nil {
		return ForecastRecord{}, errors.New("no record store configured")
	}

	coords := loc.Coordinates
	ef, err := s.Forecast(ctx, ForecastRequest{Coordinates: &coords, HorizonDays: horizon})
	if err != nil {
		return ForecastRecord{}, err
	}

	now := s.opts.Now().UTC()
	rec := ForecastRecord{
		LocationKey: loc.Key(),
		Location:    loc,
		Forecast:    *ef,
		Timestamp:   now,
		FromCache:   false,
		ExpiresAt:   now.Add(s.opts.RecordMaxAge),
	}
	// The forecast is usable even when the caller's deadline has passed or
	// the store is unavailable, so a failed save is logged, not returned.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := s.store.SaveRecord(sctx, rec); err != nil {
		s.logger.Warn("saving forecast record failed", zap.String("location", loc.Key()), zap.Error(err))
	}
	return rec, nil
}

// CachedForecast serves the stored record for loc unless refresh is set or
// the record is stale, in which case it refetches. The bool reports whether
// the stored record was used.
func (s *Service) CachedForecast(ctx context.Context, loc Location, horizon int, refresh bool) (ForecastRecord, bool, error) {
	if err := loc.Coordinates.Validate(); err != nil {
		return ForecastRecord{}, false, err
	}

	if !refresh && s.store != nil {
		rec, err := s.store.GetRecord(ctx, loc.Key())
		switch {
		case err == nil && !rec.Stale(s.opts.Now(), s.opts.RecordMaxAge) && rec.Forecast.HorizonDays == horizon:
			rec.FromCache = true
			return rec, true, nil
		case err != nil && !errors.Is(err, ErrRecordNotFound):
			s.logger.Warn("reading forecast record failed", zap.String("location", loc.Key()), zap.Error(err))
		}
	}

	if s.store == nil {
		coords := loc.Coordinates
		ef, err := s.Forecast(ctx, ForecastRequest{Coordinates: &coords, HorizonDays: horizon})
		if err != nil {
			return ForecastRecord{}, false, err
		}
		return ForecastRecord{LocationKey: loc.Key(), Location: loc, Forecast: *ef, Timestamp: s.opts.Now().UTC()}, false, nil
	}

	rec, err := s.RefreshLocation(ctx, loc, horizon)
	return rec, false, err
}

// RefreshAll refreshes every location concurrently. One location failing
// never aborts the others; the report lists each outcome.
func (s *Service) RefreshAll(ctx context.Context, locations []Location, horizon int, perLocationTimeout time.Duration) RefreshReport {
	report := RefreshReport{
		RunID:     uuid.NewString(),
		StartedAt: s.opts.Now().UTC(),
		Results:   make([]RefreshResult, len(locations)),
	}
	logger := s.logger.With(zap.String("run_id", report.RunID))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, loc := range locations {
		i, loc := i, loc
		g.Go(func() error {
			lctx := gctx
			if perLocationTimeout > 0 {
				var cancel context.CancelFunc
				lctx, cancel = context.WithTimeout(gctx, perLocationTimeout)
				defer cancel()
			}

			result := RefreshResult{Location: loc.Key()}
			rec, err := s.RefreshLocation(lctx, loc, horizon)
			if err != nil {
				logger.Warn("refresh failed", zap.String("location", loc.Key()), zap.Error(err))
				result.Error = err.Error()
			} else {
				result.Success = true
				result.Source = rec.Forecast.Source
				result.Fallback = rec.Forecast.Fallback
			}

			mu.Lock()
			report.Results[i] = result
			mu.Unlock()
			// Errors stay in the report so the group keeps running.
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range report.Results {
		if r.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	report.FinishedAt = s.opts.Now().UTC()
	logger.Info("refresh run complete", zap.Int("succeeded", report.Succeeded), zap.Int("failed", report.Failed))
	return report
}
