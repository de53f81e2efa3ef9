package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tenki/internal/models"
)

// MemoryStore keeps records in process. Used by tests and the memory driver.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	rows   []models.ForecastRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Insert(ctx context.Context, record models.ForecastRecord) error {
	return m.InsertAll(ctx, []models.ForecastRecord{record})
}

func (m *MemoryStore) InsertAll(ctx context.Context, records []models.ForecastRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: failed to insert forecasts: %w", ErrStore, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		m.nextID++
		r = cloneRecord(r)
		r.ID = m.nextID
		m.rows = append(m.rows, r)
	}
	return nil
}

func (m *MemoryStore) QueryByRegion(ctx context.Context, code string) ([]models.ForecastRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to query forecasts for %s: %w", ErrStore, code, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.ForecastRecord
	for _, r := range m.rows {
		if r.RegionCode == code {
			out = append(out, cloneRecord(r))
		}
	}

	// rows are held in id order, so a stable sort breaks timestamp ties by id
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

func (m *MemoryStore) WarmRegions(ctx context.Context) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to get regions with data: %w", ErrStore, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	regions := make(map[string]bool)
	for _, r := range m.rows {
		regions[r.RegionCode] = true
	}
	return regions, nil
}

// Len returns the number of stored rows
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func (m *MemoryStore) Close() error { return nil }

func cloneRecord(r models.ForecastRecord) models.ForecastRecord {
	r.Weather = cloneString(r.Weather)
	r.Wind = cloneString(r.Wind)
	r.Wave = cloneString(r.Wave)
	r.MinTemp = cloneFloat(r.MinTemp)
	r.MaxTemp = cloneFloat(r.MaxTemp)
	return r
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
