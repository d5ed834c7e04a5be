// Package circuit implements the market-wide circuit breaker. The breaker
// is a pure function of the benchmark's recent returns plus the previous
// state; it holds no position-specific state. The controller persists the
// resulting state in the shared store between ticks (last-writer-wins).
package circuit

import (
	"fmt"
	"math"
	"time"
)

// Level represents the circuit breaker escalation level
type Level string

const (
	LevelNone Level = "NONE" // Normal operation
	LevelL1   Level = "L1"   // Halve sizing, no halt
	LevelL2   Level = "L2"   // Full halt for a fixed cooldown window
	LevelL3   Level = "L3"   // Survival mode, halt until 7d recovers
)

// rank orders levels for escalation comparisons
func (l Level) rank() int {
	switch l {
	case LevelL1:
		return 1
	case LevelL2:
		return 2
	case LevelL3:
		return 3
	default:
		return 0
	}
}

// Config holds the breaker thresholds. Returns are fractional, e.g.
// -0.05 for a 5% drop.
type Config struct {
	L1Drop24h  float64       `json:"l1_drop_24h"`
	L2Drop24h  float64       `json:"l2_drop_24h"`
	L3Drop7d   float64       `json:"l3_drop_7d"`
	L2Cooldown time.Duration `json:"l2_cooldown"`
	L3Cooldown time.Duration `json:"l3_cooldown"` // Zero means recovery-only de-escalation
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		L1Drop24h:  -0.05,
		L2Drop24h:  -0.10,
		L3Drop7d:   -0.20,
		L2Cooldown: 48 * time.Hour,
	}
}

// State is the persisted breaker state shared between ticks.
type State struct {
	Level         Level     `json:"level"`
	TrippedAt     time.Time `json:"tripped_at,omitempty"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// Evaluate re-derives the breaker state from the benchmark's 24h and 7d
// returns. Escalation is immediate; de-escalation drops at most one level
// per tick and, for L2, only after the cooldown window has elapsed.
func Evaluate(prev State, return24h, return7d float64, now time.Time, cfg Config) State {
	if math.IsNaN(return24h) || math.IsNaN(return7d) || math.IsInf(return24h, 0) || math.IsInf(return7d, 0) {
		// Garbage feed data must not move the breaker.
		return prev
	}

	target := LevelNone
	var reason string
	switch {
	case return7d <= cfg.L3Drop7d:
		target = LevelL3
		reason = fmt.Sprintf("benchmark 7d return %.2f%% <= %.2f%%", return7d*100, cfg.L3Drop7d*100)
	case return24h <= cfg.L2Drop24h:
		target = LevelL2
		reason = fmt.Sprintf("benchmark 24h return %.2f%% <= %.2f%%", return24h*100, cfg.L2Drop24h*100)
	case return24h <= cfg.L1Drop24h:
		target = LevelL1
		reason = fmt.Sprintf("benchmark 24h return %.2f%% <= %.2f%%", return24h*100, cfg.L1Drop24h*100)
	}

	// Escalation: jump straight to the target level and start its cooldown.
	if target.rank() > prev.Level.rank() {
		next := State{Level: target, TrippedAt: now, Reason: reason}
		switch target {
		case LevelL2:
			next.CooldownUntil = now.Add(cfg.L2Cooldown)
		case LevelL3:
			if cfg.L3Cooldown > 0 {
				next.CooldownUntil = now.Add(cfg.L3Cooldown)
			}
		}
		return next
	}

	// Same level: refresh the reason, keep the original trip clock. An L2
	// whose cooldown expired while the trigger still holds re-arms its
	// window; the halt only ends once the drawdown itself clears.
	if target == prev.Level {
		if target != LevelNone {
			prev.Reason = reason
		}
		if target == LevelL2 && now.After(prev.CooldownUntil) {
			prev.CooldownUntil = now.Add(cfg.L2Cooldown)
		}
		return prev
	}

	// De-escalation. The trigger no longer holds; step down one level at a
	// time so the breaker never snaps from L3 to NONE on a single tick.
	switch prev.Level {
	case LevelL3:
		if !prev.CooldownUntil.IsZero() && now.Before(prev.CooldownUntil) {
			return prev
		}
		return State{Level: LevelL2, TrippedAt: prev.TrippedAt, CooldownUntil: prev.CooldownUntil, Reason: "de-escalated from L3"}
	case LevelL2:
		if now.Before(prev.CooldownUntil) {
			return prev
		}
		return State{Level: LevelL1, TrippedAt: prev.TrippedAt, Reason: "de-escalated from L2"}
	case LevelL1:
		return State{Level: target, TrippedAt: prev.TrippedAt, Reason: reason}
	default:
		return State{Level: LevelNone}
	}
}

// AllowsNewEntries reports whether new admissions are permitted under the
// current state. L2 halts until the cooldown elapses; L3 halts outright
// until it de-escalates. Existing positions may still be closed at any level.
func (s State) AllowsNewEntries(now time.Time) bool {
	switch s.Level {
	case LevelL3:
		return false
	case LevelL2:
		return !now.Before(s.CooldownUntil)
	default:
		return true
	}
}

// SizeMultiplier returns the position-size multiplier for the level.
func (s State) SizeMultiplier() float64 {
	switch s.Level {
	case LevelL1:
		return 0.5
	case LevelL2, LevelL3:
		return 0
	default:
		return 1.0
	}
}
