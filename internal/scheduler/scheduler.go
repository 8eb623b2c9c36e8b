package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/agroweather/internal/weather"
)

// Refresher refreshes stored forecasts. *weather.Service satisfies it.
type Refresher interface {
	RefreshAll(ctx context.Context, locations []weather.Location, horizon int, perLocationTimeout time.Duration) weather.RefreshReport
}

// Pruner drops expired records. Stores that cannot prune are skipped.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

type Options struct {
	Interval           time.Duration
	Horizon            int
	PerLocationTimeout time.Duration
	// RetainFor keeps expired records this long before pruning.
	RetainFor time.Duration
	Pruner    Pruner
	Logger    *zap.Logger
}

// Scheduler periodically refreshes forecasts for configured locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	refresher Refresher
	locations []weather.Location
	opts      Options
	logger    *zap.Logger
}

// New creates a new Scheduler.
func New(locations []weather.Location, refresher Refresher, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 6 * time.Hour
	}
	if opts.Horizon <= 0 {
		opts.Horizon = 7
	}
	if opts.PerLocationTimeout <= 0 {
		opts.PerLocationTimeout = 30 * time.Second
	}
	if opts.RetainFor <= 0 {
		opts.RetainFor = 7 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		refresher: refresher,
		locations: locations,
		opts:      opts,
		logger:    opts.Logger.With(zap.String("component", "scheduler")),
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		s.logger.Info("no locations configured; nothing to schedule")
		return nil
	}

	minutes := int(s.opts.Interval.Minutes())
	if minutes <= 0 {
		minutes = 360
	}

	_, err := s.scheduler.Every(minutes).Minutes().SingletonMode().Do(func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("refresh scheduled",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("locations", len(s.locations)))
	return nil
}

// RunOnce refreshes every location and prunes expired records.
func (s *Scheduler) RunOnce(ctx context.Context) weather.RefreshReport {
	s.logger.Info("running forecast refresh job")
	report := s.refresher.RefreshAll(ctx, s.locations, s.opts.Horizon, s.opts.PerLocationTimeout)

	if s.opts.Pruner != nil {
		n, err := s.opts.Pruner.Prune(ctx, time.Now().Add(-s.opts.RetainFor))
		if err != nil {
			s.logger.Warn("pruning expired records failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Debug("pruned expired records", zap.Int64("count", n))
		}
	}

	s.logger.Info("completed forecast refresh job",
		zap.String("run_id", report.RunID),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed))
	return report
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
