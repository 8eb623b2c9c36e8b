package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/i474232898/agroweather/internal/ratelimit"
	"github.com/i474232898/agroweather/internal/weather"
)

type AppConfig struct {
	OpenWeatherAPIKey string
	WeatherAPIKey     string
	NWSUserAgent      string `validate:"required"`
	GeocoderAPIKey    string

	HTTPTimeout    time.Duration `validate:"gt=0"`
	AttemptTimeout time.Duration `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gt=0"`

	RetryMaxAttempts int           `validate:"gte=1,lte=10"`
	RetryInitial     time.Duration `validate:"gt=0"`
	RetryMax         time.Duration `validate:"gtefield=RetryInitial"`

	CacheTTL           time.Duration `validate:"gt=0"`
	HistoricalCacheTTL time.Duration `validate:"gt=0"`

	// RefreshInterval controls how often stored forecasts are refreshed.
	RefreshInterval time.Duration `validate:"gte=1m"`
	RefreshHorizon  int           `validate:"gte=1,lte=14"`

	StoreDriver     string `validate:"oneof=memory sqlite"`
	SQLitePath      string `validate:"required_if=StoreDriver sqlite"`
	StoreMaxHistory int    `validate:"gte=0"`
	// StoreMaxAge is also the staleness window for stored forecasts.
	StoreMaxAge time.Duration `validate:"gt=0"`

	// Locations to refresh and resolve by name.
	Locations []weather.Location `validate:"dive"`
	Quotas    map[string]ratelimit.Quota

	Port     string `validate:"required,numeric"`
	LogLevel string `validate:"oneof=debug info warn error"`
}

// Credentials returns the configured API keys by provider name.
func (c *AppConfig) Credentials() map[string]string {
	creds := make(map[string]string, 2)
	if c.OpenWeatherAPIKey != "" {
		creds["openweathermap"] = c.OpenWeatherAPIKey
	}
	if c.WeatherAPIKey != "" {
		creds["weatherapi"] = c.WeatherAPIKey
	}
	return creds
}

// DefaultQuotas are the free-tier allowances of each provider.
func DefaultQuotas() map[string]ratelimit.Quota {
	return map[string]ratelimit.Quota{
		"openweathermap": {Limit: 1000, Window: 24 * time.Hour, RequestsPerSecond: 1, Burst: 5},
		"weatherapi":     {Limit: 30000, Window: 24 * time.Hour, RequestsPerSecond: 2, Burst: 5},
		"nws":            {Limit: 0, Window: time.Hour, RequestsPerSecond: 5, Burst: 10},
	}
}

// Load reads configuration from environment with sensible defaults. A YAML
// file named by CONFIG_FILE may add locations and override quotas.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration without touching .env.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		WeatherAPIKey:     os.Getenv("WEATHERAPI_API_KEY"),
		NWSUserAgent:      getenvDefault("NWS_USER_AGENT", "agroweather (ops@example.com)"),
		GeocoderAPIKey:    os.Getenv("GEOCODER_API_KEY"),
		RetryMaxAttempts:  getenvInt("RETRY_MAX_ATTEMPTS", 3),
		RefreshHorizon:    getenvInt("REFRESH_HORIZON", 7),
		StoreDriver:       getenvDefault("STORE_DRIVER", "memory"),
		SQLitePath:        getenvDefault("SQLITE_PATH", "agroweather.db"),
		StoreMaxHistory:   getenvInt("STORE_MAX_HISTORY", 8),
		Port:              getenvDefault("PORT", "8080"),
		LogLevel:          strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
		Quotas:            DefaultQuotas(),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"HTTP_TIMEOUT", "10s", &cfg.HTTPTimeout},
		{"ATTEMPT_TIMEOUT", "8s", &cfg.AttemptTimeout},
		{"REQUEST_TIMEOUT", "25s", &cfg.RequestTimeout},
		{"RETRY_INITIAL", "500ms", &cfg.RetryInitial},
		{"RETRY_MAX", "5s", &cfg.RetryMax},
		{"CACHE_TTL", "1h", &cfg.CacheTTL},
		{"HISTORICAL_CACHE_TTL", "24h", &cfg.HistoricalCacheTTL},
		{"REFRESH_INTERVAL", "6h", &cfg.RefreshInterval},
		{"STORE_MAX_AGE", "6h", &cfg.StoreMaxAge},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	locs, err := ParseLocations(os.Getenv("WEATHER_LOCATIONS"))
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ParseLocations parses "name:lat:lon;name:lat:lon".
func ParseLocations(s string) ([]weather.Location, error) {
	var locs []weather.Location
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid location %q: want name:lat:lon", entry)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q: %w", entry, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q: %w", entry, err)
		}
		loc := weather.Location{
			Name:        strings.TrimSpace(parts[0]),
			Coordinates: weather.Coordinates{Latitude: lat, Longitude: lon},
		}
		if err := loc.Coordinates.Validate(); err != nil {
			return nil, fmt.Errorf("location %q: %w", loc.Name, err)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

type fileLocation struct {
	Name      string  `yaml:"name" validate:"required"`
	Latitude  float64 `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `yaml:"longitude" validate:"gte=-180,lte=180"`
}

type fileQuota struct {
	Limit             int     `yaml:"limit" validate:"gte=0"`
	Window            string  `yaml:"window"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

type fileConfig struct {
	Locations []fileLocation       `yaml:"locations" validate:"dive"`
	Quotas    map[string]fileQuota `yaml:"quotas" validate:"dive"`
}

func (c *AppConfig) applyFile(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(buf, &fc); err != nil {
		return fmt.Errorf("parsing yaml: %v", err)
	}
	if err := validator.New().Struct(fc); err != nil {
		return fmt.Errorf("invalid %s: %w", path, err)
	}

	seen := make(map[string]bool, len(c.Locations))
	for _, l := range c.Locations {
		seen[l.Key()] = true
	}
	for _, fl := range fc.Locations {
		loc := weather.Location{Name: fl.Name, Coordinates: weather.Coordinates{Latitude: fl.Latitude, Longitude: fl.Longitude}}
		if seen[loc.Key()] {
			continue
		}
		seen[loc.Key()] = true
		c.Locations = append(c.Locations, loc)
	}

	for name, fq := range fc.Quotas {
		q := ratelimit.Quota{Limit: fq.Limit, RequestsPerSecond: fq.RequestsPerSecond, Burst: fq.Burst}
		if fq.Window != "" {
			w, err := time.ParseDuration(fq.Window)
			if err != nil {
				return fmt.Errorf("quota %s: invalid window: %w", name, err)
			}
			q.Window = w
		}
		c.Quotas[name] = q
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
