package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	httpapi "github.com/i474232898/agroweather/internal/api/http"
	"github.com/i474232898/agroweather/internal/cache"
	"github.com/i474232898/agroweather/internal/config"
	"github.com/i474232898/agroweather/internal/engine"
	"github.com/i474232898/agroweather/internal/geo"
	"github.com/i474232898/agroweather/internal/ratelimit"
	"github.com/i474232898/agroweather/internal/scheduler"
	"github.com/i474232898/agroweather/internal/store"
	"github.com/i474232898/agroweather/internal/weather"
	"github.com/i474232898/agroweather/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	recordStore, err := store.Open(cfg.StoreDriver, cfg.SQLitePath, cfg.StoreMaxHistory, cfg.StoreMaxAge, zlog)
	if err != nil {
		zlog.Fatal("failed to open record store", zap.Error(err))
	}
	defer recordStore.Close()

	// Providers with a circuit breaker each; retries happen in the service.
	provs := []weather.Provider{
		providers.NewOpenWeatherProvider(httpClient),
		providers.NewWeatherAPIProvider(httpClient),
		providers.NewNWSProvider(httpClient, cfg.NWSUserAgent),
	}

	limiter := ratelimit.New(cfg.Quotas)
	forecastCache := cache.New[[]weather.DailyForecast]()

	service := weather.NewService(provs, providers.NewHistoricalProvider(), limiter, forecastCache, recordStore, weather.Options{
		LiveTTL:        cfg.CacheTTL,
		HistoricalTTL:  cfg.HistoricalCacheTTL,
		AttemptTimeout: cfg.AttemptTimeout,
		Backoff: weather.BackoffConfig{
			MaxAttempts:     cfg.RetryMaxAttempts,
			InitialInterval: cfg.RetryInitial,
			MaxInterval:     cfg.RetryMax,
		},
		Credentials:  cfg.Credentials(),
		RecordMaxAge: cfg.StoreMaxAge,
		Logger:       zlog,
	})

	eng := engine.New(service, engine.Options{
		MonthlyInflation: decimal.RequireFromString("0.004"),
		Logger:           zlog,
	})

	var gc geo.Geocoder
	if cfg.GeocoderAPIKey != "" {
		gc = geo.NewGoogleGeocoder(cfg.GeocoderAPIKey)
	}
	resolver := geo.NewResolver(cfg.Locations, gc)

	// Scheduler that periodically refreshes stored forecasts.
	schedOpts := scheduler.Options{
		Interval: cfg.RefreshInterval,
		Horizon:  cfg.RefreshHorizon,
		Logger:   zlog,
	}
	if p, ok := recordStore.(scheduler.Pruner); ok {
		schedOpts.Pruner = p
	}
	sched := scheduler.New(cfg.Locations, service, schedOpts)
	if err := sched.Start(); err != nil {
		zlog.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "agroweather",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.RequestTimeout + 5*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "agroweather",
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Service:        service,
		Engine:         eng,
		Resolver:       resolver,
		Quotas:         limiter,
		Cache:          forecastCache,
		History:        recordStore,
		Credentials:    cfg.Credentials(),
		RequestTimeout: cfg.RequestTimeout,
		Logger:         zlog,
	})

	go func() {
		zlog.Info("listening", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			zlog.Warn("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zlog.Error("error during shutdown", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}
