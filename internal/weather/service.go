package weather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Options tunes a Service. Zero values fall back to sensible defaults.
type Options struct {
	LiveTTL        time.Duration
	HistoricalTTL  time.Duration
	AttemptTimeout time.Duration
	Backoff        BackoffConfig
	// Credentials are the process-wide API keys, keyed by provider name.
	Credentials map[string]string
	// RecordMaxAge is the staleness threshold for persisted refresh records.
	RecordMaxAge time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
}

// Service orchestrates provider selection, caching, rate limiting and the
// historical fallback. It exclusively owns the limiter and cache it is given.
type Service struct {
	providers  []Provider
	historical Fallback
	limiter    RateLimiter
	cache      ForecastCache
	store      RecordStore

	opts   Options
	logger *zap.Logger
}

// NewService creates a new Service. providers are sorted by Priority.
func NewService(providers []Provider, historical Fallback, limiter RateLimiter, cache ForecastCache, store RecordStore, opts Options) *Service {
	sorted := make([]Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })

	if opts.LiveTTL <= 0 {
		opts.LiveTTL = time.Hour
	}
	if opts.HistoricalTTL <= 0 {
		opts.HistoricalTTL = 24 * time.Hour
	}
	if opts.Backoff.MaxAttempts <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.RecordMaxAge <= 0 {
		opts.RecordMaxAge = 6 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Service{
		providers:  sorted,
		historical: historical,
		limiter:    limiter,
		cache:      cache,
		store:      store,
		opts:       opts,
		logger:     opts.Logger.With(zap.String("component", "orchestrator")),
	}
}

// Providers returns the live providers in priority order.
func (s *Service) Providers() []Provider {
	out := make([]Provider, len(s.providers))
	copy(out, s.providers)
	return out
}

type fallbackState int

const (
	stateTryPreferred fallbackState = iota
	stateTryPriorityOrdered
	stateTryHistorical
	stateDone
)

// CacheKey composes the cache key for one provider request.
func CacheKey(provider string, coords Coordinates, days int, now time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%s", provider, coords.String(), days, now.UTC().Format("2006-01-02"))
}

// GetForecast returns exactly req.HorizonDays normalized days. Provider
// failures are absorbed; only ErrInvalidInput is returned.
func (s *Service) GetForecast(ctx context.Context, req ForecastRequest) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	coords := *req.Coordinates
	creds := s.mergeCredentials(req.Credentials)
	logger := s.logger.With(zap.String("coordinates", coords.String()), zap.Int("horizon", req.HorizonDays))

	res := Result{GeneratedAt: s.opts.Now().UTC()}
	tried := make(map[string]bool)

	try := func(p Provider) bool {
		tried[p.Name()] = true
		days, cached, err := s.attempt(ctx, p, coords, req.HorizonDays, creds[p.Name()])
		if err != nil {
			res.Attempts = append(res.Attempts, Attempt{Provider: p.Name(), Outcome: outcomeFor(err), Error: err.Error()})
			logger.Warn("provider failed, falling through",
				zap.String("provider", p.Name()),
				zap.Error(err))
			return false
		}

		outcome := OutcomeOK
		if cached {
			outcome = OutcomeCacheHit
		}
		res.Attempts = append(res.Attempts, Attempt{Provider: p.Name(), Outcome: outcome})
		res.Days = s.pad(coords, days, req.HorizonDays)
		res.Source = p.Name()
		res.Cached = cached
		return true
	}

	state := stateTryPreferred
	for state != stateDone {
		switch state {
		case stateTryPreferred:
			state = stateTryPriorityOrdered
			if p := s.preferred(req.PreferredProvider, creds); p != nil && try(p) {
				state = stateDone
			}

		case stateTryPriorityOrdered:
			state = stateTryHistorical
			for _, p := range s.eligible(creds) {
				if tried[p.Name()] {
					continue
				}
				if try(p) {
					state = stateDone
					break
				}
			}

		case stateTryHistorical:
			logger.Info("serving historical averages", zap.Error(ErrAllProvidersExhausted))
			days, cached := s.historicalDays(coords, req.HorizonDays)
			res.Days = days
			res.Source = s.historical.Name()
			res.Fallback = true
			res.Cached = cached
			res.Attempts = append(res.Attempts, Attempt{Provider: s.historical.Name(), Outcome: OutcomeOK})
			state = stateDone
		}
	}

	return res, nil
}

// Forecast runs GetForecast and enriches the result.
func (s *Service) Forecast(ctx context.Context, req ForecastRequest) (*EnrichedForecast, error) {
	res, err := s.GetForecast(ctx, req)
	if err != nil {
		return nil, err
	}
	ef := Enrich(*req.Coordinates, res)
	return &ef, nil
}

// attempt is the per-candidate pipeline: cache, rate-limited fetch with retry,
// normalize, store in cache.
func (s *Service) attempt(ctx context.Context, p Provider, coords Coordinates, horizon int, credential string) ([]DailyForecast, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	days := horizon
	if limit := p.MaxHorizon(); limit > 0 && days > limit {
		days = limit
	}

	key := CacheKey(p.Name(), coords, days, s.opts.Now())
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return copyDays(cached), true, nil
		}
	}

	var raw RawResponse
	err := withRetry(ctx, s.opts.Backoff, s.opts.AttemptTimeout, func(ctx context.Context) error {
		// Every fetch, retries included, spends quota.
		if s.limiter != nil {
			if err := s.limiter.Allow(p.Name()); err != nil {
				return err
			}
		}
		var fetchErr error
		raw, fetchErr = p.Fetch(ctx, coords, days, credential)
		if fetchErr != nil {
			s.logger.Debug("fetch attempt failed", zap.String("provider", p.Name()), zap.Error(fetchErr))
		}
		return fetchErr
	})
	if err != nil {
		return nil, false, err
	}

	normalized, err := p.Normalize(raw)
	if err != nil {
		return nil, false, err
	}
	normalized = NormalizeDays(normalized)
	if len(normalized) == 0 {
		return nil, false, fmt.Errorf("%w: %s returned no days", ErrMalformedResponse, p.Name())
	}
	if len(normalized) > days {
		normalized = normalized[:days]
	}

	if s.cache != nil {
		s.cache.Set(key, copyDays(normalized), s.opts.LiveTTL)
	}
	return normalized, false, nil
}

// historicalDays synthesizes the full horizon starting today.
func (s *Service) historicalDays(coords Coordinates, horizon int) ([]DailyForecast, bool) {
	now := s.opts.Now()
	key := CacheKey(s.historical.Name(), coords, horizon, now)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return copyDays(cached), true
		}
	}

	days := NormalizeDays(s.historical.Synthesize(coords, CalendarDay(now), horizon))
	if s.cache != nil {
		s.cache.Set(key, copyDays(days), s.opts.HistoricalTTL)
	}
	return days, false
}

// pad extends a short live forecast to horizon with historical days.
func (s *Service) pad(coords Coordinates, days []DailyForecast, horizon int) []DailyForecast {
	if len(days) >= horizon {
		return days
	}
	next := CalendarDay(s.opts.Now())
	if len(days) > 0 {
		next = days[len(days)-1].Date.AddDate(0, 0, 1)
	}
	extra := s.historical.Synthesize(coords, next, horizon-len(days))
	return NormalizeDays(append(days, extra...))
}

func (s *Service) preferred(name string, creds map[string]string) Provider {
	if name == "" {
		return nil
	}
	for _, p := range s.providers {
		if p.Name() != name {
			continue
		}
		if p.RequiresCredentials() && creds[name] == "" {
			s.logger.Info("preferred provider has no credentials; skipping", zap.String("provider", name))
			return nil
		}
		return p
	}
	s.logger.Info("unknown preferred provider", zap.String("provider", name))
	return nil
}

// eligible lists providers that can be called with the given credentials.
func (s *Service) eligible(creds map[string]string) []Provider {
	out := make([]Provider, 0, len(s.providers))
	for _, p := range s.providers {
		if p.RequiresCredentials() && creds[p.Name()] == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Service) mergeCredentials(overrides map[string]string) map[string]string {
	out := make(map[string]string, len(s.opts.Credentials)+len(overrides))
	for k, v := range s.opts.Credentials {
		out[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func copyDays(days []DailyForecast) []DailyForecast {
	out := make([]DailyForecast, len(days))
	copy(out, days)
	return out
}

// IsInvalidInput reports whether err should be surfaced to the caller as bad input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
