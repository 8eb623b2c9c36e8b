package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/i474232898/agroweather/internal/engine"
	"github.com/i474232898/agroweather/internal/geo"
	"github.com/i474232898/agroweather/internal/ratelimit"
	"github.com/i474232898/agroweather/internal/store"
	"github.com/i474232898/agroweather/internal/weather"
)

var validate = validator.New()

const defaultHorizon = 7

// Per-request credential headers, keyed by provider name.
var credentialHeaders = map[string]string{
	"openweathermap": "X-OpenWeather-Key",
	"weatherapi":     "X-WeatherAPI-Key",
}

// QuotaSource reports rate-limit state. *ratelimit.Limiter satisfies it.
type QuotaSource interface {
	Snapshot() []ratelimit.State
}

// CacheStats reports forecast cache hits and misses.
type CacheStats interface {
	Stats() (hits, misses int)
}

// HistorySource serves stored records over a time range.
type HistorySource interface {
	GetRange(ctx context.Context, key string, from, to time.Time) ([]weather.ForecastRecord, error)
}

// Deps are the handlers' collaborators. Engine, Quotas, Cache and History
// are optional; their routes degrade or are not registered.
type Deps struct {
	Service        *weather.Service
	Engine         *engine.Engine
	Resolver       *geo.Resolver
	Quotas         QuotaSource
	Cache          CacheStats
	History        HistorySource
	Credentials    map[string]string
	RequestTimeout time.Duration
	Logger         *zap.Logger
	Now            func() time.Time
}

type handler struct {
	Deps
	logger *zap.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Resolver == nil {
		deps.Resolver = geo.NewResolver(nil, nil)
	}
	h := &handler{Deps: deps, logger: deps.Logger.With(zap.String("component", "http"))}

	app.Get("/forecast", h.forecast)

	v1 := app.Group("/api/v1")
	v1.Get("/forecast", h.forecast)
	v1.Get("/providers", h.providers)
	if deps.Engine != nil {
		v1.Get("/report", h.report)
	}
	if deps.History != nil {
		v1.Get("/forecast/history", h.history)
	}
}

// ErrorHandler renders errors as {success:false,error}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}

// forecastQuery holds query parameters for the forecast endpoints.
type forecastQuery struct {
	Location    string `query:"location"`
	Coordinates string `query:"coordinates"`
	Days        int    `query:"days" validate:"gte=1,lte=14"`
	Refresh     bool   `query:"refresh"`
	Provider    string `query:"provider" validate:"omitempty,oneof=nws openweathermap weatherapi"`
	Region      string `query:"region"`
	Plants      string `query:"plants"`
}

func parseForecastQuery(c *fiber.Ctx) (forecastQuery, error) {
	q := forecastQuery{Days: defaultHorizon}
	if err := c.QueryParser(&q); err != nil {
		return q, err
	}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	if q.Location == "" && q.Coordinates == "" {
		return q, errors.New("location or coordinates query parameter is required")
	}
	return q, nil
}

func (h *handler) resolve(ctx context.Context, q forecastQuery) (weather.Location, error) {
	if q.Coordinates != "" {
		coords, err := geo.ParseCoordinates(q.Coordinates)
		if err != nil {
			return weather.Location{}, err
		}
		return weather.Location{Name: q.Location, Coordinates: coords}, nil
	}
	return h.Resolver.Resolve(ctx, q.Location)
}

func (h *handler) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.RequestTimeout > 0 {
		return context.WithTimeout(c.UserContext(), h.RequestTimeout)
	}
	return context.WithCancel(c.UserContext())
}

func (h *handler) credentials(c *fiber.Ctx) map[string]string {
	creds := make(map[string]string)
	for provider, header := range credentialHeaders {
		if v := c.Get(header); v != "" {
			creds[provider] = v
		}
	}
	return creds
}

func (h *handler) forecast(c *fiber.Ctx) error {
	q, err := parseForecastQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	loc, err := h.resolve(ctx, q)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var (
		ef     *weather.EnrichedForecast
		cached bool
	)
	creds := h.credentials(c)
	if q.Provider != "" || len(creds) > 0 {
		// Caller-specific requests bypass the shared record store.
		coords := loc.Coordinates
		ef, err = h.Service.Forecast(ctx, weather.ForecastRequest{
			Coordinates:       &coords,
			HorizonDays:       q.Days,
			PreferredProvider: q.Provider,
			Credentials:       creds,
		})
		if ef != nil {
			cached = ef.Cached
		}
	} else {
		var rec weather.ForecastRecord
		rec, cached, err = h.Service.CachedForecast(ctx, loc, q.Days, q.Refresh)
		if err == nil {
			ef = &rec.Forecast
		}
	}
	if err != nil {
		if weather.IsInvalidInput(err) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		h.logger.Error("forecast failed", zap.String("location", loc.Key()), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to build forecast")
	}

	ts := h.Now().UTC()
	if ef.Fallback {
		return c.JSON(fiber.Map{
			"success":   false,
			"error":     "live weather providers unavailable; serving historical averages",
			"data":      ef,
			"fallback":  true,
			"cached":    cached,
			"timestamp": ts,
		})
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"data":      ef,
		"cached":    cached,
		"timestamp": ts,
	})
}

func (h *handler) report(c *fiber.Ctx) error {
	q, err := parseForecastQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	plantings, err := parsePlantings(q.Plants)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	loc, err := h.resolve(ctx, q)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	region := q.Region
	if region == "" {
		region = loc.Name
	}

	rep, err := h.Engine.Generate(ctx, engine.ReportRequest{
		Coordinates:       loc.Coordinates,
		HorizonDays:       q.Days,
		Region:            region,
		PreferredProvider: q.Provider,
		Credentials:       h.credentials(c),
		Plantings:         plantings,
	})
	if err != nil {
		if weather.IsInvalidInput(err) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		h.logger.Error("report failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to build report")
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"data":      rep,
		"fallback":  rep.Metadata.Fallback,
		"timestamp": h.Now().UTC(),
	})
}

// parsePlantings parses "tomato:4,lettuce" into plantings.
func parsePlantings(s string) ([]engine.Planting, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []engine.Planting
	for _, item := range strings.Split(s, ",") {
		name, countStr, hasCount := strings.Cut(strings.TrimSpace(item), ":")
		p := engine.Planting{Plant: name, Count: 1}
		if hasCount {
			n, err := strconv.Atoi(countStr)
			if err != nil {
				return nil, fmt.Errorf("invalid count for %s: %w", name, err)
			}
			p.Count = n
		}
		if err := validate.Struct(p); err != nil {
			return nil, err
		}
		if _, ok := engine.LookupPlant(p.Plant); !ok {
			return nil, fmt.Errorf("unknown plant %q", p.Plant)
		}
		out = append(out, p)
	}
	return out, nil
}

type providerStatus struct {
	Name                string           `json:"name"`
	Priority            int              `json:"priority"`
	MaxHorizon          int              `json:"maxHorizon"`
	RequiresCredentials bool             `json:"requiresCredentials"`
	Configured          bool             `json:"configured"`
	Quota               *ratelimit.State `json:"quota,omitempty"`
}

func (h *handler) providers(c *fiber.Ctx) error {
	quotas := make(map[string]ratelimit.State)
	if h.Quotas != nil {
		for _, st := range h.Quotas.Snapshot() {
			quotas[st.Provider] = st
		}
	}

	provs := h.Service.Providers()
	out := make([]providerStatus, 0, len(provs))
	for _, p := range provs {
		ps := providerStatus{
			Name:                p.Name(),
			Priority:            p.Priority(),
			MaxHorizon:          p.MaxHorizon(),
			RequiresCredentials: p.RequiresCredentials(),
			Configured:          !p.RequiresCredentials() || h.Credentials[p.Name()] != "",
		}
		if st, ok := quotas[p.Name()]; ok {
			ps.Quota = &st
		}
		out = append(out, ps)
	}

	resp := fiber.Map{"providers": out}
	if h.Cache != nil {
		hits, misses := h.Cache.Stats()
		resp["cache"] = fiber.Map{"hits": hits, "misses": misses}
	}
	return c.JSON(resp)
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Location string    `validate:"required"`
	From     time.Time `validate:"required"`
	To       time.Time `validate:"required,gtefield=From"`
}

func (hq *historyQuery) bind(c *fiber.Ctx) error {
	hq.Location = strings.ToLower(strings.TrimSpace(c.Query("location")))

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	hq.From = from
	hq.To = to
	return nil
}

func (h *handler) history(c *fiber.Ctx) error {
	var req historyQuery
	if err := req.bind(c); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	recs, err := h.History.GetRange(c.UserContext(), req.Location, req.From, req.To)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no forecast history for requested range")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch forecast history")
	}

	return c.JSON(fiber.Map{
		"location": req.Location,
		"from":     req.From,
		"to":       req.To,
		"records":  recs,
	})
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
