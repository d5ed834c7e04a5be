package slots

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// memCounterStore implements CounterStore with the same conditional-write
// semantics as the Redis scripts, guarded by a mutex so concurrent tests
// exercise the atomicity contract.
type memCounterStore struct {
	mu       sync.Mutex
	counters map[string]int64
	times    map[string]time.Time
	failing  bool
	setCalls int
}

func newMemCounterStore() *memCounterStore {
	return &memCounterStore{
		counters: make(map[string]int64),
		times:    make(map[string]time.Time),
	}
}

func (m *memCounterStore) IncrIfBelow(ctx context.Context, key string, max int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, errors.New("store unreachable")
	}
	if m.counters[key] >= max {
		return false, nil
	}
	m.counters[key]++
	return true, nil
}

func (m *memCounterStore) DecrIfAbove(ctx context.Context, key string, min int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, errors.New("store unreachable")
	}
	if m.counters[key] <= min {
		return false, nil
	}
	m.counters[key]--
	return true, nil
}

func (m *memCounterStore) GetCounter(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return 0, errors.New("store unreachable")
	}
	return m.counters[key], nil
}

func (m *memCounterStore) SetCounter(ctx context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.failing {
		return errors.New("store unreachable")
	}
	m.counters[key] = value
	return nil
}

func (m *memCounterStore) SetTime(ctx context.Context, key string, t time.Time, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("store unreachable")
	}
	m.times[key] = t
	return nil
}

func (m *memCounterStore) value(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

func newTestAllocator(cs CounterStore) *Allocator {
	return NewAllocator(cs, 2500, zerolog.Nop())
}

// ============================================================================
// TEST: Capacity derivation from capital
// ============================================================================

func TestMaxSlots(t *testing.T) {
	a := newTestAllocator(newMemCounterStore())

	testCases := []struct {
		capital  float64
		expected int64
	}{
		{10000, 4},
		{9999, 3},
		{2500, 1},
		{1000, 1}, // Floor of one even below the unit
		{0, 1},
		{-500, 1},
	}

	for _, tc := range testCases {
		if got := a.MaxSlots(tc.capital); got != tc.expected {
			t.Errorf("MaxSlots(%.0f): expected %d, got %d", tc.capital, tc.expected, got)
		}
	}
}

// ============================================================================
// TEST: Acquire respects the bound, Release never underflows
// ============================================================================

func TestAcquireRelease_Bounds(t *testing.T) {
	cs := newMemCounterStore()
	a := newTestAllocator(cs)
	ctx := context.Background()

	// Fill to capacity.
	for i := 0; i < 3; i++ {
		ok, err := a.Acquire(ctx, 3)
		if err != nil || !ok {
			t.Fatalf("Acquire %d failed: ok=%v err=%v", i, ok, err)
		}
	}

	// Fourth acquire is a clean denial, not an error.
	ok, err := a.Acquire(ctx, 3)
	if err != nil {
		t.Fatalf("Acquire at capacity returned error: %v", err)
	}
	if ok {
		t.Fatal("Expected acquire to fail at capacity")
	}

	// Release all, then one extra: the extra is a no-op.
	for i := 0; i < 3; i++ {
		if err := a.Release(ctx); err != nil {
			t.Fatalf("Release %d failed: %v", i, err)
		}
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("Duplicate release returned error: %v", err)
	}

	if got := cs.value("controller:slots:active"); got != 0 {
		t.Errorf("Expected counter 0 after releases, got %d", got)
	}
}

func TestAcquire_FailsClosedOnStoreError(t *testing.T) {
	cs := newMemCounterStore()
	cs.failing = true
	a := newTestAllocator(cs)

	ok, err := a.Acquire(context.Background(), 3)
	if ok {
		t.Error("Expected no slot granted when the store is unreachable")
	}
	if err == nil {
		t.Error("Expected error to propagate")
	}
}

// ============================================================================
// TEST: Concurrent acquires never exceed capacity
// ============================================================================

func TestAcquire_ConcurrentInvariant(t *testing.T) {
	cs := newMemCounterStore()
	a := newTestAllocator(cs)
	ctx := context.Background()

	const workers = 50
	const maxSlots = 5

	var granted int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := a.Acquire(ctx, maxSlots)
			if err != nil {
				t.Errorf("Acquire error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != maxSlots {
		t.Errorf("Expected exactly %d grants, got %d", maxSlots, granted)
	}
	if got := cs.value("controller:slots:active"); got != maxSlots {
		t.Errorf("Expected counter %d, got %d", maxSlots, got)
	}
}

// ============================================================================
// TEST: Sync reconciles drift and retries
// ============================================================================

func TestSync_OverwritesCounter(t *testing.T) {
	cs := newMemCounterStore()
	a := newTestAllocator(cs)
	ctx := context.Background()

	// Simulate drift: two acquires but only one real position at the venue.
	a.Acquire(ctx, 5)
	a.Acquire(ctx, 5)

	if err := a.Sync(ctx, 1); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if got := cs.value("controller:slots:active"); got != 1 {
		t.Errorf("Expected counter 1 after sync, got %d", got)
	}
}

func TestSync_RejectsNegativeCount(t *testing.T) {
	a := newTestAllocator(newMemCounterStore())

	if err := a.Sync(context.Background(), -1); err == nil {
		t.Error("Expected error for negative count")
	}
}
