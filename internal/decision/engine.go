// Package decision composes the layered admission filters into a single
// admit/reject verdict. Evaluate is pure: every input is a snapshot taken
// by the caller at tick start, and identical inputs always produce the
// identical verdict. The caller re-validates if significant time passes
// between evaluation and execution.
package decision

import (
	"fmt"
	"time"

	"trading-tick-controller/internal/circuit"
	"trading-tick-controller/internal/regime"
	"trading-tick-controller/internal/signal"
)

// Rejection reason prefixes, stable for the audit trail
const (
	ReasonMalformed      = "MALFORMED_CANDIDATE"
	ReasonCircuitHalt    = "CIRCUIT_HALT"
	ReasonCorridorClosed = "CORRIDOR_CLOSED"
	ReasonCooldown       = "COOLDOWN_ACTIVE"
	ReasonScoreBelow     = "SCORE_BELOW_THRESHOLD"
	ReasonBenchmarkVeto  = "BENCHMARK_VETO"
	ReasonAdmitted       = "ADMITTED"
)

// Config holds the engine's thresholds.
type Config struct {
	// Minimum technical score per asset class before regime hurdles.
	BaseThresholds map[signal.AssetClass]float64
	// Fallback threshold for unknown asset classes.
	DefaultThreshold float64
	// Benchmark momentum outside [VetoOversold, VetoOverbought] triggers
	// the single-dominant-asset veto.
	VetoOversold   float64
	VetoOverbought float64
	// Candidates scoring above this bypass the veto as elite counter-trades.
	EliteScore float64
	// Scale of the sentiment adjustment applied to confidence.
	SentimentWeight float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		BaseThresholds: map[signal.AssetClass]float64{
			signal.AssetCryptoMajor: 55,
			signal.AssetCryptoAlt:   62,
			signal.AssetFX:          58,
			signal.AssetIndex:       60,
		},
		DefaultThreshold: 65,
		VetoOversold:     20,
		VetoOverbought:   80,
		EliteScore:       80,
		SentimentWeight:  0.2,
	}
}

// Inputs are the state snapshots the engine evaluates against.
type Inputs struct {
	Regime         regime.Regime
	Macro          regime.MacroSnapshot
	Circuit        circuit.State
	Corridor       regime.Corridor
	CooldownActive bool
	Now            time.Time
}

// Verdict is the engine's output.
type Verdict struct {
	Admit      bool
	Reason     string
	Confidence float64
}

// Engine evaluates candidates. It holds configuration only; no mutable
// state, no side effects.
type Engine struct {
	config Config
}

// NewEngine creates a decision engine.
func NewEngine(cfg Config) *Engine {
	if cfg.BaseThresholds == nil {
		cfg = DefaultConfig()
	}
	return &Engine{config: cfg}
}

// Evaluate runs the candidate through the filter stack in rejection-cost
// order: hard halts first, score thresholds, then the correlation veto.
func (e *Engine) Evaluate(c *signal.Candidate, in Inputs) Verdict {
	if err := c.Validate(); err != nil {
		return Verdict{Reason: fmt.Sprintf("%s: %v", ReasonMalformed, err)}
	}

	if !in.Circuit.AllowsNewEntries(in.Now) {
		return Verdict{Reason: fmt.Sprintf("%s: level %s until %s",
			ReasonCircuitHalt, in.Circuit.Level, in.Circuit.CooldownUntil.UTC().Format(time.RFC3339))}
	}

	if in.Corridor.State == regime.CorridorClosed {
		return Verdict{Reason: fmt.Sprintf("%s: session %s", ReasonCorridorClosed, in.Corridor.Session)}
	}

	if in.CooldownActive {
		return Verdict{Reason: fmt.Sprintf("%s: %s traded recently", ReasonCooldown, c.Instrument)}
	}

	threshold := e.effectiveThreshold(c.AssetClass, in.Regime)
	if c.Score < threshold {
		return Verdict{Reason: fmt.Sprintf("%s: score %.1f below %.1f (gap %.1f, regime %s)",
			ReasonScoreBelow, c.Score, threshold, threshold-c.Score, in.Regime)}
	}

	// Single-dominant-asset veto: when the benchmark's momentum is pinned
	// at an extreme, most signals are the same correlated trade. Only an
	// elite counter-trade gets through.
	momentum := in.Macro.BenchmarkMomentum
	if (momentum <= e.config.VetoOversold || momentum >= e.config.VetoOverbought) && c.Score <= e.config.EliteScore {
		return Verdict{Reason: fmt.Sprintf("%s: benchmark momentum %.1f extreme, score %.1f not elite (> %.0f required)",
			ReasonBenchmarkVeto, momentum, c.Score, e.config.EliteScore)}
	}

	confidence := c.Score / 100
	if in.Macro.HasSentiment {
		confidence *= 1 + e.config.SentimentWeight*in.Macro.Sentiment
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Verdict{Admit: true, Reason: ReasonAdmitted, Confidence: confidence}
}

// effectiveThreshold returns the asset-class base plus the regime hurdle.
func (e *Engine) effectiveThreshold(class signal.AssetClass, r regime.Regime) float64 {
	base, ok := e.config.BaseThresholds[class]
	if !ok {
		base = e.config.DefaultThreshold
	}
	return base + r.ScoreHurdle()
}
