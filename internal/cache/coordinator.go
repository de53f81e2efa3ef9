// Package cache serves forecasts from the store and populates a region from
// JMA the first time it is requested. A region with any stored row is warm
// forever; there is no TTL and no invalidation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tenki/internal/database"
	"tenki/internal/metrics"
	"tenki/internal/models"
	"tenki/internal/normalizer"
)

var (
	// ErrFetchFailed wraps a remote failure during Miss. Nothing was written.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrNoForecastData means the remote document produced zero records
	ErrNoForecastData = errors.New("no forecast data")
)

// State names a step of a single Forecast call
type State int

const (
	StateCheck State = iota
	StateMiss
	StatePopulate
	StateServe
	StateError
)

func (s State) String() string {
	switch s {
	case StateCheck:
		return "check"
	case StateMiss:
		return "miss"
	case StatePopulate:
		return "populate"
	case StateServe:
		return "serve"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Fetcher retrieves the raw forecast document for a region
type Fetcher interface {
	GetForecast(ctx context.Context, code string) ([]models.ForecastSection, error)
}

// TransitionFunc observes every state change of a Forecast call
type TransitionFunc func(code string, from, to State)

type Option func(*Coordinator)

// WithLocker replaces the in-process region lock
func WithLocker(l Locker) Option {
	return func(c *Coordinator) {
		c.locker = l
	}
}

func WithTransitionHook(fn TransitionFunc) Option {
	return func(c *Coordinator) {
		c.onTransition = fn
	}
}

// Coordinator is a read-through cache in front of a ForecastStore
type Coordinator struct {
	store        database.ForecastStore
	fetcher      Fetcher
	locker       Locker
	onTransition TransitionFunc
}

func NewCoordinator(store database.ForecastStore, fetcher Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		fetcher: fetcher,
		locker:  NewLocalLocker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lookup carries the data of one Forecast call between states
type lookup struct {
	code     string
	records  []models.ForecastRecord
	sections []models.ForecastSection
	lease    Lease
	fetched  bool
	relocked bool
	err      error
}

// Forecast returns the stored records for code ordered by forecast time,
// fetching and storing them first if the region has never been populated.
// Concurrent calls for the same code populate at most once.
func (c *Coordinator) Forecast(ctx context.Context, code string) ([]models.ForecastRecord, error) {
	l := &lookup{code: code}
	defer func() {
		if l.lease != nil {
			l.lease.Release()
		}
	}()

	state := StateCheck
	for {
		var next State
		switch state {
		case StateCheck:
			next = c.check(ctx, l)
		case StateMiss:
			next = c.miss(ctx, l)
		case StatePopulate:
			next = c.populate(ctx, l)
		case StateServe:
			if l.fetched {
				metrics.RecordCacheLookup("miss")
			} else {
				metrics.RecordCacheLookup("hit")
			}
			return l.records, nil
		case StateError:
			metrics.RecordCacheLookup("error")
			return nil, l.err
		}

		if c.onTransition != nil {
			c.onTransition(code, state, next)
		}
		state = next
	}
}

// check serves warm regions. A cold region is re-checked under the region
// lock so a concurrent populate is observed instead of repeated.
func (c *Coordinator) check(ctx context.Context, l *lookup) State {
	records, err := c.store.QueryByRegion(ctx, l.code)
	if err != nil {
		l.err = err
		return StateError
	}
	if len(records) > 0 {
		l.records = records
		return StateServe
	}

	lease, err := c.locker.Lock(ctx, lockKey(l.code))
	if err != nil {
		l.err = fmt.Errorf("failed to lock region %s: %w", l.code, err)
		return StateError
	}
	l.lease = lease

	records, err = c.store.QueryByRegion(ctx, l.code)
	if err != nil {
		l.err = err
		return StateError
	}
	if len(records) > 0 {
		log.Printf("region %s populated while waiting for lock", l.code)
		l.records = records
		return StateServe
	}
	return StateMiss
}

func (c *Coordinator) miss(ctx context.Context, l *lookup) State {
	sections, err := c.fetcher.GetForecast(ctx, l.code)
	if err != nil {
		l.err = fmt.Errorf("%w for %s: %w", ErrFetchFailed, l.code, err)
		return StateError
	}
	l.sections = sections
	l.fetched = true
	return StatePopulate
}

// populate writes the normalized document in one batch and re-reads it, so the
// caller always sees what the store persisted. If the region lock was lost
// during the fetch, another caller may be populating, so the region is checked
// again instead of written.
func (c *Coordinator) populate(ctx context.Context, l *lookup) State {
	records := normalizer.Normalize(l.code, l.sections)
	if len(records) == 0 {
		l.err = fmt.Errorf("%w for %s", ErrNoForecastData, l.code)
		return StateError
	}

	if err := l.lease.Held(ctx); err != nil {
		l.lease.Release()
		l.lease = nil
		if !errors.Is(err, ErrLockLost) || l.relocked {
			l.err = fmt.Errorf("failed to populate %s: %w", l.code, err)
			return StateError
		}
		log.Printf("lost region lock for %s during fetch, checking again", l.code)
		l.relocked = true
		return StateCheck
	}

	if err := c.store.InsertAll(ctx, records); err != nil {
		l.err = err
		return StateError
	}
	log.Printf("populated %d forecast records for %s", len(records), l.code)

	stored, err := c.store.QueryByRegion(ctx, l.code)
	if err != nil {
		l.err = err
		return StateError
	}
	if len(stored) == 0 {
		l.err = fmt.Errorf("%w: no rows for %s after insert", database.ErrStore, l.code)
		return StateError
	}
	l.records = stored
	return StateServe
}

func lockKey(code string) string {
	return "tenki:lock:forecast:" + code
}
