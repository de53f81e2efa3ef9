package database

import (
	"context"
	"errors"
	"fmt"

	"tenki/internal/config"
	"tenki/internal/models"
)

// ErrStore marks failures of the persistence layer itself
var ErrStore = errors.New("store failure")

// ForecastStore persists normalized forecast records. It is insert-only and
// does not enforce uniqueness; reads are ordered by forecast time, then by
// insertion order.
type ForecastStore interface {
	Insert(ctx context.Context, record models.ForecastRecord) error
	// InsertAll writes every record or none of them
	InsertAll(ctx context.Context, records []models.ForecastRecord) error
	QueryByRegion(ctx context.Context, code string) ([]models.ForecastRecord, error)
	// WarmRegions returns the set of region codes that have at least one row
	WarmRegions(ctx context.Context) (map[string]bool, error)
	Close() error
}

// Open connects the store selected by store.driver
func Open(ctx context.Context, driver string) (ForecastStore, error) {
	switch driver {
	case "mysql":
		db, err := NewMySQLStore(config.GetDatabaseDSN())
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres":
		db, err := NewPostgresStore(ctx, config.GetPostgresURL())
		if err != nil {
			return nil, err
		}
		return db, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
