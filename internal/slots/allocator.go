// Package slots bounds the number of concurrent open positions. The
// counter lives in the shared store so overlapping ticks can never
// observe it above capacity: acquire and release are single conditional
// writes, and this package fails CLOSED when the store is unreachable.
package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"trading-tick-controller/internal/store"
)

// CounterStore is the conditional-write surface the allocator needs from
// the shared store.
type CounterStore interface {
	IncrIfBelow(ctx context.Context, key string, max int64) (bool, error)
	DecrIfAbove(ctx context.Context, key string, min int64) (bool, error)
	GetCounter(ctx context.Context, key string) (int64, error)
	SetCounter(ctx context.Context, key string, value int64) error
	SetTime(ctx context.Context, key string, t time.Time, ttl time.Duration) error
}

// Allocator reserves and releases concurrency slots.
type Allocator struct {
	store           CounterStore
	slotCapitalUnit float64
	logger          zerolog.Logger
}

// NewAllocator creates a slot allocator. slotCapitalUnit is the capital
// required to back one slot.
func NewAllocator(cs CounterStore, slotCapitalUnit float64, logger zerolog.Logger) *Allocator {
	return &Allocator{
		store:           cs,
		slotCapitalUnit: slotCapitalUnit,
		logger:          logger.With().Str("component", "slots").Logger(),
	}
}

// MaxSlots derives slot capacity from available capital, one slot per
// capital unit with a floor of one.
func (a *Allocator) MaxSlots(capital float64) int64 {
	if a.slotCapitalUnit <= 0 || capital <= 0 {
		return 1
	}
	n := int64(capital / a.slotCapitalUnit)
	if n < 1 {
		return 1
	}
	return n
}

// Acquire attempts to reserve one slot. It succeeds only if the shared
// counter is currently below maxSlots; the check and the increment are a
// single write on the store. A store error denies the slot.
func (a *Allocator) Acquire(ctx context.Context, maxSlots int64) (bool, error) {
	ok, err := a.store.IncrIfBelow(ctx, store.SlotCounterKey, maxSlots)
	if err != nil {
		a.logger.Error().Err(err).Msg("slot acquire failed, denying admission")
		return false, fmt.Errorf("slots: acquire: %w", err)
	}
	if !ok {
		a.logger.Debug().Int64("max_slots", maxSlots).Msg("slot capacity exhausted")
	}
	return ok, nil
}

// Release frees one slot. The decrement is guarded by count > 0, so a
// duplicate release after a crash or retry is a no-op rather than an
// underflow.
func (a *Allocator) Release(ctx context.Context) error {
	ok, err := a.store.DecrIfAbove(ctx, store.SlotCounterKey, 0)
	if err != nil {
		return fmt.Errorf("slots: release: %w", err)
	}
	if !ok {
		a.logger.Warn().Msg("release called with counter already at zero")
	}
	return nil
}

// Active returns the current counter value.
func (a *Allocator) Active(ctx context.Context) (int64, error) {
	return a.store.GetCounter(ctx, store.SlotCounterKey)
}

// Sync overwrites the counter with the true open-position count observed
// at the execution venue. This heals drift from ticks that acquired a
// slot and crashed before releasing it. Retries with exponential backoff
// since a failed sync leaves known drift in place.
func (a *Allocator) Sync(ctx context.Context, trueCount int64) error {
	if trueCount < 0 {
		return fmt.Errorf("slots: sync with negative count %d", trueCount)
	}

	op := func() error {
		if err := a.store.SetCounter(ctx, store.SlotCounterKey, trueCount); err != nil {
			return err
		}
		return a.store.SetTime(ctx, store.SlotSyncedAtKey, time.Now(), 0)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("slots: sync: %w", err)
	}

	a.logger.Info().Int64("true_count", trueCount).Msg("slot counter reconciled with venue")
	return nil
}
