package store

import (
	"context"
	"sync"
	"time"

	"github.com/i474232898/agroweather/internal/weather"
)

// ErrNotFound is returned when no record is available for a given location.
var ErrNotFound = weather.ErrRecordNotFound

// RecordHistory holds a time-ordered list of forecast records for a location.
type RecordHistory struct {
	Records []weather.ForecastRecord
}

// MemoryStore is a concurrency-safe in-memory implementation of weather.RecordStore.
type MemoryStore struct {
	mu sync.RWMutex

	// key: location key, value: history
	data map[string]*RecordHistory

	// retention configuration
	maxHistory int           // max number of records per location
	maxAge     time.Duration // optional max age for records
	now        func() time.Time
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*RecordHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveRecord appends a new record for its location and enforces retention.
func (s *MemoryStore) SaveRecord(_ context.Context, rec weather.ForecastRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[rec.LocationKey]
	if !ok {
		history = &RecordHistory{}
		s.data[rec.LocationKey] = history
	}

	history.Records = append(history.Records, rec)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Records) > s.maxHistory {
		over := len(history.Records) - s.maxHistory
		history.Records = history.Records[over:]
	}

	// Enforce retention by age, always keeping the newest record.
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.Records)-1; i++ {
			if !history.Records[i].Timestamp.Before(cutoff) {
				break
			}
		}
		if i > 0 {
			history.Records = history.Records[i:]
		}
	}
	return nil
}

// GetRecord returns the most recent record for a location key.
func (s *MemoryStore) GetRecord(_ context.Context, key string) (weather.ForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok || len(history.Records) == 0 {
		return weather.ForecastRecord{}, ErrNotFound
	}
	return history.Records[len(history.Records)-1], nil
}

// GetRange returns all records for a location between from and to (inclusive).
func (s *MemoryStore) GetRange(_ context.Context, key string, from, to time.Time) ([]weather.ForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[key]
	if !ok || len(history.Records) == 0 {
		return nil, ErrNotFound
	}

	var result []weather.ForecastRecord
	for _, rec := range history.Records {
		if !rec.Timestamp.Before(from) && !rec.Timestamp.After(to) {
			result = append(result, rec)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Keys lists the stored location keys.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

func (s *MemoryStore) Close() error { return nil }
