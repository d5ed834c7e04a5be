// Package cooldown tracks the last trade time per instrument and gates
// re-entry frequency. Reads fail OPEN: a transient store outage must not
// block all trading, which is the opposite policy from the slot
// allocator. The cost of a missed cooldown is one early re-entry, bounded
// by the risk manager's caps.
package cooldown

import (
	"context"
	"fmt"
	"time"

	"trading-tick-controller/internal/logging"
	"trading-tick-controller/internal/store"
)

// TimeStore is the timestamp surface the registry needs from the store.
type TimeStore interface {
	GetTime(ctx context.Context, key string) (time.Time, bool, error)
	SetTime(ctx context.Context, key string, t time.Time, ttl time.Duration) error
}

// Registry gates per-instrument re-entry.
type Registry struct {
	store  TimeStore
	logger *logging.Logger
	now    func() time.Time
}

// NewRegistry creates a cooldown registry.
func NewRegistry(ts TimeStore, logger *logging.Logger) *Registry {
	return &Registry{store: ts, logger: logger.WithComponent("cooldown"), now: time.Now}
}

func key(instrument string) string {
	return fmt.Sprintf("%s:%s", store.CooldownKeyPrefix, instrument)
}

// InCooldown reports whether the instrument traded within the window.
// A store read failure logs a warning and returns false (fail-open).
func (r *Registry) InCooldown(ctx context.Context, instrument string, window time.Duration) bool {
	last, found, err := r.store.GetTime(ctx, key(instrument))
	if err != nil {
		r.logger.Warn("cooldown read failed, failing open", "instrument", instrument, "error", err)
		return false
	}
	if !found {
		return false
	}
	return r.now().Sub(last) < window
}

// Record stamps the instrument's last trade time. Called only after a
// successful admission and execution. The key expires on its own once
// any plausible window has passed.
func (r *Registry) Record(ctx context.Context, instrument string, window time.Duration) error {
	ttl := 2 * window
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := r.store.SetTime(ctx, key(instrument), r.now(), ttl); err != nil {
		return fmt.Errorf("cooldown: record %s: %w", instrument, err)
	}
	return nil
}
