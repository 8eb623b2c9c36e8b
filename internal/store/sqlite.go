package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/i474232898/agroweather/internal/weather"
)

// Store is a weather.RecordStore that can be closed on shutdown.
type Store interface {
	weather.RecordStore
	GetRange(ctx context.Context, key string, from, to time.Time) ([]weather.ForecastRecord, error)
	Close() error
}

// SQLiteStore persists forecast records with the pure Go modernc.org/sqlite
// driver. Each row holds the full record as JSON.
type SQLiteStore struct {
	db *sql.DB
}

// tsLayout is fixed width so stored timestamps order lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

const recordSchema = `CREATE TABLE IF NOT EXISTS forecast_records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	location_key TEXT NOT NULL,
	source       TEXT NOT NULL,
	fallback     INTEGER NOT NULL,
	timestamp    TEXT NOT NULL,
	expires_at   TEXT NOT NULL,
	payload      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_forecast_records_key_ts ON forecast_records(location_key, timestamp);`

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent refreshes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		logger.Warn("could not set WAL mode", zap.Error(err))
	}
	if _, err := db.Exec(recordSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, rec weather.ForecastRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO forecast_records(location_key, source, fallback, timestamp, expires_at, payload) VALUES(?,?,?,?,?,?)`,
		rec.LocationKey, rec.Forecast.Source, rec.Forecast.Fallback,
		rec.Timestamp.UTC().Format(tsLayout), rec.ExpiresAt.UTC().Format(tsLayout), string(payload))
	return err
}

func (s *SQLiteStore) GetRecord(ctx context.Context, key string) (weather.ForecastRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM forecast_records WHERE location_key = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, key)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return weather.ForecastRecord{}, ErrNotFound
		}
		return weather.ForecastRecord{}, err
	}
	return decodeRecord(payload)
}

func (s *SQLiteStore) GetRange(ctx context.Context, key string, from, to time.Time) ([]weather.ForecastRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM forecast_records WHERE location_key = ? AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp, id`,
		key, from.UTC().Format(tsLayout), to.UTC().Format(tsLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []weather.ForecastRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Prune deletes records that expired before cutoff and reports how many went.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM forecast_records WHERE expires_at < ?`, cutoff.UTC().Format(tsLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeRecord(payload string) (weather.ForecastRecord, error) {
	var rec weather.ForecastRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return weather.ForecastRecord{}, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}

// Open returns the store selected by driver ("memory" or "sqlite").
// maxHistory and maxAge only bound the memory store; sqlite is pruned.
func Open(driver, path string, maxHistory int, maxAge time.Duration, logger *zap.Logger) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(maxHistory, maxAge), nil
	case "sqlite":
		return NewSQLite(path, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
