package weather

import (
	"context"
	"time"
)

// RawResponse is an undecoded provider payload. Adapters produce it in Fetch
// and consume it in Normalize, so the orchestrator never needs to know a
// provider's wire format.
type RawResponse struct {
	Provider    string
	Endpoint    string
	Body        []byte
	Coordinates Coordinates
	Days        int
	FetchedAt   time.Time
}

// Provider abstracts a forecast source (NWS, OpenWeatherMap, WeatherAPI, ...).
// Implementations are stateless and must not retry internally.
type Provider interface {
	Name() string
	// Priority orders auto-selection; lower values are tried first.
	Priority() int
	// MaxHorizon is the longest horizon in days the provider supports.
	MaxHorizon() int
	// RequiresCredentials reports whether an API key is needed.
	RequiresCredentials() bool
	Fetch(ctx context.Context, coords Coordinates, days int, credential string) (RawResponse, error)
	Normalize(raw RawResponse) ([]DailyForecast, error)
}

// Fallback synthesizes days without any I/O. It cannot fail.
type Fallback interface {
	Name() string
	Synthesize(coords Coordinates, start time.Time, days int) []DailyForecast
}

// RateLimiter gates outbound requests per provider.
type RateLimiter interface {
	Allow(provider string) error
}

// ForecastCache holds normalized provider output.
type ForecastCache interface {
	Get(key string) ([]DailyForecast, bool)
	Set(key string, days []DailyForecast, ttl time.Duration)
}

// ForecastRecord is the persisted refresh payload for one location.
type ForecastRecord struct {
	LocationKey string           `json:"locationKey"`
	Location    Location         `json:"location"`
	Forecast    EnrichedForecast `json:"forecast"`
	Timestamp   time.Time        `json:"timestamp"`
	FromCache   bool             `json:"fromCache"`
	ExpiresAt   time.Time        `json:"expiresAt"`
}

// Stale reports whether the record is older than maxAge at now.
func (r ForecastRecord) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(r.Timestamp) > maxAge
}

// RecordStore is the contract the in-memory store (and the SQLite store) must satisfy.
type RecordStore interface {
	SaveRecord(ctx context.Context, rec ForecastRecord) error
	GetRecord(ctx context.Context, key string) (ForecastRecord, error)
}
