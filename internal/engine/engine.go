package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/agroweather/internal/weather"
)

// Forecaster is the weather stage. *weather.Service satisfies it.
type Forecaster interface {
	Forecast(ctx context.Context, req weather.ForecastRequest) (*weather.EnrichedForecast, error)
}

type Options struct {
	// MonthlyInflation is the input-cost growth rate, e.g. 0.005 for 0.5%.
	MonthlyInflation decimal.Decimal
	// EconomicMonths is the cost projection length.
	EconomicMonths int
	Now            func() time.Time
	Logger         *zap.Logger
}

type Engine struct {
	forecaster Forecaster
	opts       Options
	logger     *zap.Logger
}

func New(forecaster Forecaster, opts Options) *Engine {
	if opts.EconomicMonths <= 0 {
		opts.EconomicMonths = 6
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		forecaster: forecaster,
		opts:       opts,
		logger:     opts.Logger.With(zap.String("component", "engine")),
	}
}

type ReportRequest struct {
	Coordinates       weather.Coordinates
	HorizonDays       int
	Region            string
	PreferredProvider string
	Credentials       map[string]string
	Plantings         []Planting
}

type Metadata struct {
	ID          string              `json:"id"`
	GeneratedAt time.Time           `json:"generatedAt"`
	HorizonDays int                 `json:"horizonDays"`
	Region      string              `json:"region,omitempty"`
	Coordinates weather.Coordinates `json:"coordinates"`
	Source      string              `json:"source"`
	Fallback    bool                `json:"fallback"`
	// Degraded lists sub-forecasts that failed and were replaced by defaults.
	Degraded []string `json:"degraded,omitempty"`
}

type Report struct {
	Metadata        Metadata                  `json:"metadata"`
	Weather         *weather.EnrichedForecast `json:"weather"`
	Growth          GrowthForecast            `json:"growth"`
	Risk            RiskAssessment            `json:"risk"`
	Economics       EconomicForecast          `json:"economics"`
	Recommendations []Recommendation          `json:"recommendations"`
}

// Generate runs the weather stage, then the growth, risk, economic and
// recommendation sub-forecasts concurrently. A failing sub-forecast degrades
// to its zero value and is listed in Metadata.Degraded. Only invalid input
// fails the whole report.
func (e *Engine) Generate(ctx context.Context, req ReportRequest) (*Report, error) {
	coords := req.Coordinates
	ef, err := e.forecaster.Forecast(ctx, weather.ForecastRequest{
		Coordinates:       &coords,
		HorizonDays:       req.HorizonDays,
		PreferredProvider: req.PreferredProvider,
		Credentials:       req.Credentials,
	})
	if err != nil {
		return nil, err
	}

	plantings := req.Plantings
	if len(plantings) == 0 {
		plantings = defaultPlantings()
	}

	report := &Report{
		Metadata: Metadata{
			ID:          uuid.NewString(),
			GeneratedAt: e.opts.Now().UTC(),
			HorizonDays: ef.HorizonDays,
			Region:      req.Region,
			Coordinates: coords,
			Source:      ef.Source,
			Fallback:    ef.Fallback,
		},
		Weather: ef,
	}
	logger := e.logger.With(zap.String("report_id", report.Metadata.ID))

	var (
		mu       sync.Mutex
		degraded []string
	)
	run := func(name string, fn func() error) func() error {
		return func() error {
			if err := safely(fn); err != nil {
				logger.Warn("sub-forecast degraded", zap.String("stage", name), zap.Error(err))
				mu.Lock()
				degraded = append(degraded, name)
				mu.Unlock()
			}
			return nil
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(run("growth", func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		report.Growth = ProjectGrowth(ef.Days, plantings)
		return nil
	}))
	g.Go(run("risk", func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		report.Risk = AssessRisk(ef, plantings, e.opts.MonthlyInflation)
		return nil
	}))
	g.Go(run("economics", func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		report.Economics = ProjectEconomics(ef, plantings, e.opts.EconomicMonths, e.opts.MonthlyInflation)
		return nil
	}))
	g.Go(run("recommendations", func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		report.Recommendations = Recommend(ef, plantings)
		return nil
	}))
	_ = g.Wait()

	applyDefaults(report)
	sort.Strings(degraded)
	report.Metadata.Degraded = degraded
	return report, nil
}

// safely runs fn and turns a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func applyDefaults(r *Report) {
	if r.Growth.Projections == nil {
		r.Growth.Projections = []GrowthProjection{}
	}
	if r.Growth.HarvestCalendar == nil {
		r.Growth.HarvestCalendar = []HarvestEntry{}
	}
	if r.Risk.Level == "" {
		r.Risk = Aggregate(nil)
	}
	if r.Economics.Trend == "" {
		r.Economics = EconomicForecast{Projection: []CostPoint{}, Trend: TrendStable}
	}
	if r.Recommendations == nil {
		r.Recommendations = []Recommendation{}
	}
}
