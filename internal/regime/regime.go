// Package regime classifies broad market stress into a regime enum and
// exposes the time-of-day corridor parameters. Both are consumed by the
// decision engine to raise or lower admission thresholds.
package regime

// Regime represents the macro market state
type Regime string

const (
	RiskOn  Regime = "RISK_ON"
	Neutral Regime = "NEUTRAL"
	RiskOff Regime = "RISK_OFF"
	Crash   Regime = "CRASH"
)

// MacroSnapshot holds the external market-stress indicators sampled once
// per tick by the macro feed adapter.
type MacroSnapshot struct {
	Benchmark24hReturn float64 `json:"benchmark_24h_return"` // e.g. -0.05 for -5%
	Benchmark7dReturn  float64 `json:"benchmark_7d_return"`
	VolatilityIndex    float64 `json:"volatility_index"`   // VIX-style level
	BenchmarkMomentum  float64 `json:"benchmark_momentum"` // RSI-style [0,100]
	Sentiment          float64 `json:"sentiment"`          // [-1,1], 0 when absent
	HasSentiment       bool    `json:"has_sentiment"`
}

// ClassifierConfig holds the regime boundaries
type ClassifierConfig struct {
	VolRiskOff   float64 // Volatility index at or above -> RISK_OFF
	VolCrash     float64 // Volatility index at or above -> CRASH
	Crash24hDrop float64 // 24h benchmark drop at or below -> CRASH
}

// DefaultClassifierConfig returns the regime boundaries used in production.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		VolRiskOff:   25,
		VolCrash:     40,
		Crash24hDrop: -0.08,
	}
}

// Classify maps a macro snapshot to a regime. Crash dominates: either an
// extreme volatility reading or a severe 24h benchmark drop is enough.
func Classify(snap MacroSnapshot, cfg ClassifierConfig) Regime {
	if snap.VolatilityIndex >= cfg.VolCrash || snap.Benchmark24hReturn <= cfg.Crash24hDrop {
		return Crash
	}
	if snap.VolatilityIndex >= cfg.VolRiskOff || snap.Benchmark24hReturn <= -0.03 {
		return RiskOff
	}
	if snap.Benchmark24hReturn >= 0.02 && snap.VolatilityIndex < 18 {
		return RiskOn
	}
	return Neutral
}

// ScoreHurdle returns the additional score threshold applied on top of
// the per-asset-class base when the regime is stressed.
func (r Regime) ScoreHurdle() float64 {
	switch r {
	case RiskOff:
		return 5
	case Crash:
		return 12
	default:
		return 0
	}
}
