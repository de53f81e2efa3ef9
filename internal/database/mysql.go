package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"tenki/internal/metrics"
	"tenki/internal/models"
)

const (
	insertForecastSQL = `INSERT INTO weather_forecast (area_code, area_name, forecast_time, weather, wind, wave, min_temp, max_temp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	selectForecastSQL = `SELECT id, area_code, area_name, forecast_time, weather, wind, wave, min_temp, max_temp FROM weather_forecast WHERE area_code = ? ORDER BY forecast_time, id`

	selectWarmRegionsSQL = `SELECT DISTINCT area_code FROM weather_forecast`
)

// MySQLStore is the MySQL-backed ForecastStore
type MySQLStore struct {
	conn *sql.DB
}

// NewMySQLStore creates a new database connection and initializes the schema
// dsn format: "username:password@tcp(host:port)/dbname"
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrStore, err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", ErrStore, err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &MySQLStore{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %w", ErrStore, err)
	}

	return db, nil
}

func (db *MySQLStore) initSchema() error {
	// no unique key on (area_code, forecast_time): one region holds several sub-areas per timestamp
	statements := []string{
		`CREATE TABLE IF NOT EXISTS weather_forecast (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			area_code VARCHAR(16) NOT NULL,
			area_name VARCHAR(255) NOT NULL,
			forecast_time VARCHAR(64) NOT NULL,
			weather TEXT NULL,
			wind TEXT NULL,
			wave TEXT NULL,
			min_temp DOUBLE NULL,
			max_temp DOUBLE NULL,
			INDEX idx_weather_forecast_area_time (area_code, forecast_time)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Insert stores a single record
func (db *MySQLStore) Insert(ctx context.Context, r models.ForecastRecord) error {
	queryStart := time.Now()
	_, err := db.conn.ExecContext(ctx, insertForecastSQL,
		r.RegionCode, r.RegionName, r.Timestamp, r.Weather, r.Wind, r.Wave, r.MinTemp, r.MaxTemp)
	metrics.RecordDBQuery("INSERT", "weather_forecast", time.Since(queryStart), err)
	if err != nil {
		return fmt.Errorf("%w: failed to insert forecast for %s at %s: %w", ErrStore, r.RegionCode, r.Timestamp, err)
	}
	return nil
}

// InsertAll stores records in one transaction
func (db *MySQLStore) InsertAll(ctx context.Context, records []models.ForecastRecord) error {
	if len(records) == 0 {
		return nil
	}

	queryStart := time.Now()
	defer func() {
		stats := db.conn.Stats()
		metrics.UpdateDBConnectionStats(stats.OpenConnections, stats.InUse, stats.Idle)
	}()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", ErrStore, err)
	}
	defer tx.Rollback() // Will be ignored if committed

	stmt, err := tx.PrepareContext(ctx, insertForecastSQL)
	if err != nil {
		return fmt.Errorf("%w: failed to prepare statement: %w", ErrStore, err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err = stmt.ExecContext(ctx,
			r.RegionCode, r.RegionName, r.Timestamp, r.Weather, r.Wind, r.Wave, r.MinTemp, r.MaxTemp)
		if err != nil {
			metrics.RecordDBQuery("INSERT", "weather_forecast", time.Since(queryStart), err)
			return fmt.Errorf("%w: failed to insert forecast for %s at %s: %w", ErrStore, r.RegionCode, r.Timestamp, err)
		}
	}

	err = tx.Commit()
	metrics.RecordDBQuery("INSERT", "weather_forecast", time.Since(queryStart), err)
	if err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", ErrStore, err)
	}

	log.Printf("stored %d forecast records for %s", len(records), records[0].RegionCode)
	return nil
}

// QueryByRegion returns every record for a region ordered by forecast time
func (db *MySQLStore) QueryByRegion(ctx context.Context, code string) ([]models.ForecastRecord, error) {
	queryStart := time.Now()
	rows, err := db.conn.QueryContext(ctx, selectForecastSQL, code)
	metrics.RecordDBQuery("SELECT", "weather_forecast", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query forecasts for %s: %w", ErrStore, code, err)
	}
	defer rows.Close()

	var records []models.ForecastRecord
	for rows.Next() {
		var r models.ForecastRecord
		if err := rows.Scan(&r.ID, &r.RegionCode, &r.RegionName, &r.Timestamp,
			&r.Weather, &r.Wind, &r.Wave, &r.MinTemp, &r.MaxTemp); err != nil {
			return nil, fmt.Errorf("%w: failed to scan forecast: %w", ErrStore, err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating forecasts: %w", ErrStore, err)
	}

	return records, nil
}

// WarmRegions returns a set of all region codes that have data in the database
func (db *MySQLStore) WarmRegions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx, selectWarmRegionsSQL)
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

// Close closes the database connection
func (db *MySQLStore) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
