// Package geo turns user supplied location strings into coordinates.
package geo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/agroweather/internal/cache"
	"github.com/i474232898/agroweather/internal/weather"
)

// Geocoder looks up a free-form place name.
type Geocoder interface {
	Geocode(ctx context.Context, place string) (weather.Coordinates, error)
}

// Resolver checks configured locations first, then the geocoder. Geocoder
// answers are cached for a day.
type Resolver struct {
	named    map[string]weather.Location
	geocoder Geocoder
	cache    *cache.TTLCache[weather.Coordinates]
	ttl      time.Duration
}

func NewResolver(locations []weather.Location, gc Geocoder) *Resolver {
	named := make(map[string]weather.Location, len(locations))
	for _, l := range locations {
		named[l.Key()] = l
	}
	return &Resolver{
		named:    named,
		geocoder: gc,
		cache:    cache.New[weather.Coordinates](),
		ttl:      24 * time.Hour,
	}
}

// Resolve maps a place name to a Location. Unknown names without a geocoder
// are invalid input.
func (r *Resolver) Resolve(ctx context.Context, place string) (weather.Location, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return weather.Location{}, fmt.Errorf("%w: location is empty", weather.ErrInvalidInput)
	}
	key := strings.ToLower(place)
	if l, ok := r.named[key]; ok {
		return l, nil
	}
	if coords, ok := r.cache.Get(key); ok {
		return weather.Location{Name: place, Coordinates: coords}, nil
	}
	if r.geocoder == nil {
		return weather.Location{}, fmt.Errorf("%w: unknown location %q", weather.ErrInvalidInput, place)
	}

	coords, err := r.geocoder.Geocode(ctx, place)
	if err != nil {
		return weather.Location{}, fmt.Errorf("%w: geocoding %q: %v", weather.ErrInvalidInput, place, err)
	}
	if err := coords.Validate(); err != nil {
		return weather.Location{}, err
	}
	r.cache.Set(key, coords, r.ttl)
	return weather.Location{Name: place, Coordinates: coords}, nil
}

// Locations lists the configured named locations.
func (r *Resolver) Locations() []weather.Location {
	out := make([]weather.Location, 0, len(r.named))
	for _, l := range r.named {
		out = append(out, l)
	}
	return out
}

// ParseCoordinates parses "lat,lon".
func ParseCoordinates(s string) (weather.Coordinates, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return weather.Coordinates{}, fmt.Errorf("%w: coordinates must be \"lat,lon\", got %q", weather.ErrInvalidInput, s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("%w: latitude: %v", weather.ErrInvalidInput, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("%w: longitude: %v", weather.ErrInvalidInput, err)
	}
	c := weather.Coordinates{Latitude: lat, Longitude: lon}
	if err := c.Validate(); err != nil {
		return weather.Coordinates{}, err
	}
	return c, nil
}

// GoogleGeocoder uses the Google Maps geocoding API through kelvins/geocoder.
// The library keeps its key in a package variable, so calls are serialized.
type GoogleGeocoder struct {
	mu sync.Mutex
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{}
}

// Geocode accepts "City", "City, State" or "City, State, Country".
func (g *GoogleGeocoder) Geocode(ctx context.Context, place string) (weather.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return weather.Coordinates{}, err
	}
	addr := AddressFor(place)

	type result struct {
		loc geocoder.Location
		err error
	}
	done := make(chan result, 1)
	go func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		loc, err := geocoder.Geocoding(addr)
		done <- result{loc, err}
	}()

	select {
	case <-ctx.Done():
		return weather.Coordinates{}, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return weather.Coordinates{}, res.err
		}
		return weather.Coordinates{Latitude: res.loc.Latitude, Longitude: res.loc.Longitude}, nil
	}
}

// AddressFor splits a comma separated place into geocoder address parts.
func AddressFor(place string) geocoder.Address {
	parts := strings.Split(place, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	addr := geocoder.Address{City: parts[0]}
	if len(parts) > 1 {
		addr.State = parts[1]
	}
	if len(parts) > 2 {
		addr.Country = parts[2]
	}
	return addr
}
