package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tenki/internal/api"
	"tenki/internal/database"
	"tenki/internal/models"
)

type fakeFetcher struct {
	sections []models.ForecastSection
	err      error
	delay    time.Duration
	calls    int32
}

func (f *fakeFetcher) GetForecast(ctx context.Context, code string) ([]models.ForecastSection, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.sections, f.err
}

func (f *fakeFetcher) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

// flakyStore wraps a MemoryStore and fails chosen operations
type flakyStore struct {
	*database.MemoryStore
	mu          sync.Mutex
	queries     int
	failQueryAt int // 1-based call number, 0 never fails
	insertErr   error
	dropInserts bool
}

func (s *flakyStore) QueryByRegion(ctx context.Context, code string) ([]models.ForecastRecord, error) {
	s.mu.Lock()
	s.queries++
	n := s.queries
	s.mu.Unlock()

	if n == s.failQueryAt {
		return nil, fmt.Errorf("%w: connection refused", database.ErrStore)
	}
	return s.MemoryStore.QueryByRegion(ctx, code)
}

func (s *flakyStore) InsertAll(ctx context.Context, records []models.ForecastRecord) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.dropInserts {
		return nil
	}
	return s.MemoryStore.InsertAll(ctx, records)
}

func twoDaySections() []models.ForecastSection {
	return []models.ForecastSection{
		{
			TimeSeries: []models.TimeSeries{
				{
					TimeDefines: []string{"2024-01-02T00:00:00+09:00", "2024-01-01T00:00:00+09:00"},
					Areas: []models.SeriesArea{
						{Area: models.AreaRef{Name: "東京地方", Code: "130010"}, Weathers: []string{"雨", "晴れ"}},
					},
				},
			},
		},
	}
}

type transition struct{ from, to State }

func recordTransitions(path *[]transition) Option {
	return WithTransitionHook(func(code string, from, to State) {
		*path = append(*path, transition{from, to})
	})
}

func assertPath(t *testing.T, got []transition, want ...State) {
	t.Helper()
	if len(got) != len(want)-1 {
		t.Fatalf("transitions = %v, want path %v", got, want)
	}
	for i, tr := range got {
		if tr.from != want[i] || tr.to != want[i+1] {
			t.Errorf("transition %d = %s->%s, want %s->%s", i, tr.from, tr.to, want[i], want[i+1])
		}
	}
}

func TestForecast_MissPopulatesAndServes(t *testing.T) {
	store := database.NewMemoryStore()
	fetcher := &fakeFetcher{sections: twoDaySections()}
	var path []transition
	c := NewCoordinator(store, fetcher, recordTransitions(&path))

	records, err := c.Forecast(context.Background(), "130000")
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}

	assertPath(t, path, StateCheck, StateMiss, StatePopulate, StateServe)

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	// served from the store, so sorted by timestamp with ids assigned
	if records[0].Timestamp != "2024-01-01T00:00:00+09:00" || records[0].ID == 0 {
		t.Errorf("records[0] = %+v, want earliest stored record", records[0])
	}
	if *records[0].Weather != "☀️" {
		t.Errorf("records[0].Weather = %q", *records[0].Weather)
	}
	if store.Len() != 2 {
		t.Errorf("store holds %d rows, want 2", store.Len())
	}
}

func TestForecast_WarmRegionSkipsFetch(t *testing.T) {
	store := database.NewMemoryStore()
	fetcher := &fakeFetcher{sections: twoDaySections()}
	c := NewCoordinator(store, fetcher)
	ctx := context.Background()

	first, err := c.Forecast(ctx, "130000")
	if err != nil {
		t.Fatalf("first Forecast() error = %v", err)
	}

	// remote data changes, the warm region must not notice
	fetcher.sections = nil
	fetcher.err = errors.New("should not be called")

	var path []transition
	c.onTransition = func(code string, from, to State) { path = append(path, transition{from, to}) }

	second, err := c.Forecast(ctx, "130000")
	if err != nil {
		t.Fatalf("second Forecast() error = %v", err)
	}

	assertPath(t, path, StateCheck, StateServe)

	if fetcher.Calls() != 1 {
		t.Errorf("fetcher called %d times, want 1", fetcher.Calls())
	}
	if len(second) != len(first) {
		t.Fatalf("second read returned %d records, want %d", len(second), len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Timestamp != second[i].Timestamp || *first[i].Weather != *second[i].Weather {
			t.Errorf("record %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
	if store.Len() != 2 {
		t.Errorf("store holds %d rows, want 2", store.Len())
	}
}

func TestForecast_FetchFailureWritesNothing(t *testing.T) {
	store := database.NewMemoryStore()
	netErr := &api.FetchError{Kind: api.ErrNetwork, URL: "http://jma", Err: errors.New("dial tcp: timeout")}
	fetcher := &fakeFetcher{err: netErr}
	var path []transition
	c := NewCoordinator(store, fetcher, recordTransitions(&path))

	_, err := c.Forecast(context.Background(), "130000")
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("Forecast() error = %v, want ErrFetchFailed", err)
	}
	if !errors.Is(err, api.ErrNetwork) {
		t.Errorf("Forecast() error should keep the network cause: %v", err)
	}

	assertPath(t, path, StateCheck, StateMiss, StateError)

	if store.Len() != 0 {
		t.Errorf("store holds %d rows after failed fetch", store.Len())
	}

	// the region stays cold and the next call fetches again
	fetcher.err = nil
	fetcher.sections = twoDaySections()
	if _, err := c.Forecast(context.Background(), "130000"); err != nil {
		t.Fatalf("retry Forecast() error = %v", err)
	}
	if fetcher.Calls() != 2 {
		t.Errorf("fetcher called %d times, want 2", fetcher.Calls())
	}
}

func TestForecast_EmptyDocument(t *testing.T) {
	store := database.NewMemoryStore()
	fetcher := &fakeFetcher{sections: []models.ForecastSection{}}
	var path []transition
	c := NewCoordinator(store, fetcher, recordTransitions(&path))

	_, err := c.Forecast(context.Background(), "999999")
	if !errors.Is(err, ErrNoForecastData) {
		t.Fatalf("Forecast() error = %v, want ErrNoForecastData", err)
	}

	assertPath(t, path, StateCheck, StateMiss, StatePopulate, StateError)

	if store.Len() != 0 {
		t.Errorf("store holds %d rows", store.Len())
	}
}

func TestForecast_StoreFailures(t *testing.T) {
	tests := []struct {
		name  string
		store *flakyStore
		path  []State
	}{
		{
			name:  "initial check",
			store: &flakyStore{failQueryAt: 1},
			path:  []State{StateCheck, StateError},
		},
		{
			name:  "check under lock",
			store: &flakyStore{failQueryAt: 2},
			path:  []State{StateCheck, StateError},
		},
		{
			name:  "insert",
			store: &flakyStore{insertErr: fmt.Errorf("%w: deadlock", database.ErrStore)},
			path:  []State{StateCheck, StateMiss, StatePopulate, StateError},
		},
		{
			name:  "re-read",
			store: &flakyStore{failQueryAt: 3},
			path:  []State{StateCheck, StateMiss, StatePopulate, StateError},
		},
		{
			name:  "rows missing after insert",
			store: &flakyStore{dropInserts: true},
			path:  []State{StateCheck, StateMiss, StatePopulate, StateError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.store.MemoryStore = database.NewMemoryStore()
			var path []transition
			c := NewCoordinator(tt.store, &fakeFetcher{sections: twoDaySections()}, recordTransitions(&path))

			records, err := c.Forecast(context.Background(), "130000")
			if !errors.Is(err, database.ErrStore) {
				t.Fatalf("Forecast() error = %v, want ErrStore", err)
			}
			if records != nil {
				t.Errorf("Forecast() returned records alongside an error")
			}

			assertPath(t, path, tt.path...)
		})
	}
}

func TestForecast_InsertFailureLeavesRegionCold(t *testing.T) {
	store := &flakyStore{
		MemoryStore: database.NewMemoryStore(),
		insertErr:   fmt.Errorf("%w: lost connection", database.ErrStore),
	}
	c := NewCoordinator(store, &fakeFetcher{sections: twoDaySections()})

	if _, err := c.Forecast(context.Background(), "130000"); err == nil {
		t.Fatal("Expected insert failure")
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d rows after failed insert", store.Len())
	}

	store.insertErr = nil
	records, err := c.Forecast(context.Background(), "130000")
	if err != nil {
		t.Fatalf("retry Forecast() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records after retry, got %d", len(records))
	}
}

func TestForecast_ConcurrentCallersPopulateOnce(t *testing.T) {
	store := database.NewMemoryStore()
	fetcher := &fakeFetcher{sections: twoDaySections(), delay: 20 * time.Millisecond}
	c := NewCoordinator(store, fetcher)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := c.Forecast(context.Background(), "130000")
			if err != nil {
				errs <- err
				return
			}
			if len(records) != 2 {
				errs <- fmt.Errorf("got %d records", len(records))
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("caller failed: %v", err)
	}
	if fetcher.Calls() != 1 {
		t.Errorf("fetcher called %d times, want 1", fetcher.Calls())
	}
	if store.Len() != 2 {
		t.Errorf("store holds %d rows, want 2", store.Len())
	}
}

func TestForecast_LockCanceled(t *testing.T) {
	store := database.NewMemoryStore()
	locker := NewLocalLocker()
	c := NewCoordinator(store, &fakeFetcher{sections: twoDaySections()}, WithLocker(locker))

	lease, err := locker.Lock(context.Background(), lockKey("130000"))
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.Forecast(ctx, "130000")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Forecast() error = %v, want deadline exceeded", err)
	}
}

// lostLocker hands out leases that report lost when checked
type lostLocker struct {
	locks int32
}

func (l *lostLocker) Lock(ctx context.Context, key string) (Lease, error) {
	atomic.AddInt32(&l.locks, 1)
	return lostLease{}, nil
}

type lostLease struct{}

func (lostLease) Held(ctx context.Context) error { return ErrLockLost }
func (lostLease) Release() {}

func TestForecast_LockLostTwiceFails(t *testing.T) {
	store := database.NewMemoryStore()
	fetcher := &fakeFetcher{sections: twoDaySections()}
	locker := &lostLocker{}
	var transitions []string
	c := NewCoordinator(store, fetcher, WithLocker(locker), WithTransitionHook(func(code string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}))

	_, err := c.Forecast(context.Background(), "130000")
	if !errors.Is(err, ErrLockLost) {
		t.Fatalf("Forecast() error = %v, want ErrLockLost", err)
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d rows, want none written without the lock", store.Len())
	}
	if fetcher.Calls() != 2 || atomic.LoadInt32(&locker.locks) != 2 {
		t.Errorf("fetches = %d, locks = %d; want one retry", fetcher.Calls(), locker.locks)
	}

	want := "check->miss miss->populate populate->check check->miss miss->populate populate->error"
	if got := strings.Join(transitions, " "); got != want {
		t.Errorf("transitions = %q, want %q", got, want)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateCheck:    "check",
		StateMiss:     "miss",
		StatePopulate: "populate",
		StateServe:    "serve",
		StateError:    "error",
		State(42):     "state(42)",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
