package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenki/internal/metrics"
	"tenki/internal/models"
)

const (
	pgInsertForecastSQL = `INSERT INTO weather_forecast (area_code, area_name, forecast_time, weather, wind, wave, min_temp, max_temp)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	pgSelectForecastSQL = `
    SELECT id, area_code, area_name, forecast_time, weather, wind, wave, min_temp, max_temp
    FROM weather_forecast
    WHERE area_code = $1
    ORDER BY forecast_time, id
`

	pgSelectWarmRegionsSQL = `SELECT DISTINCT area_code FROM weather_forecast`
)

// pgxPool is the part of *pgxpool.Pool the store uses
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore is a ForecastStore backed by a pgx pool
type PostgresStore struct {
	pool pgxPool
}

// NewPostgresStore connects to databaseURL and creates the table if needed
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create pool: %w", ErrStore, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", ErrStore, err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %w", ErrStore, err)
	}

	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS weather_forecast (
			id BIGSERIAL PRIMARY KEY,
			area_code TEXT NOT NULL,
			area_name TEXT NOT NULL,
			forecast_time TEXT NOT NULL,
			weather TEXT,
			wind TEXT,
			wave TEXT,
			min_temp DOUBLE PRECISION,
			max_temp DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_weather_forecast_area_time ON weather_forecast (area_code, forecast_time)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Insert stores a single record
func (s *PostgresStore) Insert(ctx context.Context, r models.ForecastRecord) error {
	queryStart := time.Now()
	_, err := s.pool.Exec(ctx, pgInsertForecastSQL,
		r.RegionCode, r.RegionName, r.Timestamp, r.Weather, r.Wind, r.Wave, r.MinTemp, r.MaxTemp)
	metrics.RecordDBQuery("INSERT", "weather_forecast", time.Since(queryStart), err)
	if err != nil {
		return fmt.Errorf("%w: failed to insert forecast for %s at %s: %w", ErrStore, r.RegionCode, r.Timestamp, err)
	}
	return nil
}

// InsertAll stores records in one transaction
func (s *PostgresStore) InsertAll(ctx context.Context, records []models.ForecastRecord) (err error) {
	if len(records) == 0 {
		return nil
	}

	queryStart := time.Now()
	defer func() {
		metrics.RecordDBQuery("INSERT", "weather_forecast", time.Since(queryStart), err)
		if p, ok := s.pool.(*pgxpool.Pool); ok {
			stat := p.Stat()
			metrics.UpdateDBConnectionStats(int(stat.TotalConns()), int(stat.AcquiredConns()), int(stat.IdleConns()))
		}
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrStore, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range records {
		_, err = tx.Exec(ctx, pgInsertForecastSQL,
			r.RegionCode, r.RegionName, r.Timestamp, r.Weather, r.Wind, r.Wave, r.MinTemp, r.MaxTemp)
		if err != nil {
			return fmt.Errorf("%w: failed to insert forecast for %s at %s: %w", ErrStore, r.RegionCode, r.Timestamp, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", ErrStore, err)
	}
	return nil
}

// QueryByRegion returns every record for a region ordered by forecast time
func (s *PostgresStore) QueryByRegion(ctx context.Context, code string) ([]models.ForecastRecord, error) {
	queryStart := time.Now()
	rows, err := s.pool.Query(ctx, pgSelectForecastSQL, code)
	metrics.RecordDBQuery("SELECT", "weather_forecast", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query forecasts for %s: %w", ErrStore, code, err)
	}
	defer rows.Close()

	var records []models.ForecastRecord
	for rows.Next() {
		var r models.ForecastRecord
		if err := rows.Scan(
			&r.ID,
			&r.RegionCode,
			&r.RegionName,
			&r.Timestamp,
			&r.Weather,
			&r.Wind,
			&r.Wave,
			&r.MinTemp,
			&r.MaxTemp,
		); err != nil {
			return nil, fmt.Errorf("%w: failed to scan forecast: %w", ErrStore, err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating forecasts: %w", ErrStore, err)
	}
	return records, nil
}

// WarmRegions returns the distinct region codes present in the table
func (s *PostgresStore) WarmRegions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, pgSelectWarmRegionsSQL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get regions with data: %w", ErrStore, err)
	}
	defer rows.Close()

	regions := make(map[string]bool)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("%w: failed to scan region: %w", ErrStore, err)
		}
		regions[code] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating regions: %w", ErrStore, err)
	}
	return regions, nil
}

// Close releases the pool resources
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
