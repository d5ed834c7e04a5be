// Package trim implements the capital-reallocation fallback: when the
// slot allocator denies capacity but a materially stronger signal
// arrives, one weaker open position may be partially closed to fund it.
// At most one position is trimmed per evaluation, and never by more than
// half, so a burst of strong signals cannot unwind the whole book.
package trim

import (
	"math"

	"github.com/rs/zerolog"

	"trading-tick-controller/internal/signal"
)

// Action values
const (
	ActionTrimmed  = "TRIMMED"
	ActionNoAction = "NO_ACTION"
)

// PositionView is the evaluator's read-only view of an open position,
// joined with the current market price by the caller.
type PositionView struct {
	ID           string
	Instrument   string
	Direction    signal.Direction
	EntryPrice   float64
	CurrentPrice float64
	TakeProfit   float64
	Quantity     float64
	RiskDollars  float64
}

// pnlPct returns the signed unrealized move in percent.
func (p PositionView) pnlPct() float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	raw := (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100
	if p.Direction == signal.DirectionShort {
		return -raw
	}
	return raw
}

// Config holds the trim thresholds.
type Config struct {
	MinCandidateConfidence float64 `json:"min_candidate_confidence"`
	WinnerConfidenceDelta  float64 `json:"winner_confidence_delta"`
	LoserConfidenceDelta   float64 `json:"loser_confidence_delta"`
	AdverseThresholdPct    float64 `json:"adverse_threshold_pct"` // Loss % beyond which a loser becomes cuttable
	MaxAcceptableLossPct   float64 `json:"max_acceptable_loss_pct"`
	TrimFraction           float64 `json:"trim_fraction"`
}

// DefaultConfig returns the production trim thresholds. Cutting losers
// needs a smaller confidence edge than trimming winners.
func DefaultConfig() Config {
	return Config{
		MinCandidateConfidence: 0.75,
		WinnerConfidenceDelta:  0.15,
		LoserConfidenceDelta:   0.10,
		AdverseThresholdPct:    0.5,
		MaxAcceptableLossPct:   5.0,
		TrimFraction:           0.5,
	}
}

// Outcome reports what the evaluator decided.
type Outcome struct {
	Action       string
	PositionID   string
	Instrument   string
	TrimQuantity float64
	FreedCapital float64
	Retention    float64 // Score of the trimmed position, for the audit log
}

// Evaluator scores open positions by remaining potential.
type Evaluator struct {
	config Config
	logger zerolog.Logger
}

// NewEvaluator creates a trim evaluator.
func NewEvaluator(cfg Config, logger zerolog.Logger) *Evaluator {
	return &Evaluator{config: cfg, logger: logger.With().Str("component", "trim").Logger()}
}

// retention scores how much reason there is to keep a position, in [0,1].
// Winners near their target have little left to give; losers past the
// adverse threshold score by loss magnitude. The second return is false
// when the position is not a trim candidate at all.
func (e *Evaluator) retention(p PositionView) (float64, bool) {
	pnl := p.pnlPct()

	if pnl > 0 {
		if p.TakeProfit <= 0 {
			return 0, false // No target, cannot judge remaining potential
		}
		targetDistance := p.TakeProfit - p.EntryPrice
		if p.Direction == signal.DirectionShort {
			targetDistance = p.EntryPrice - p.TakeProfit
		}
		if targetDistance <= 0 {
			return 0, false
		}
		progress := math.Abs(p.CurrentPrice-p.EntryPrice) / targetDistance
		remaining := 1 - progress
		if remaining < 0 {
			remaining = 0
		}
		if remaining > 1 {
			remaining = 1
		}
		return remaining, true
	}

	loss := -pnl
	if loss < e.config.AdverseThresholdPct {
		// Flat or barely underwater: too early to call it a loser.
		return 0, false
	}
	retained := 1 - loss/e.config.MaxAcceptableLossPct
	if retained < 0 {
		retained = 0
	}
	return retained, true
}

// Evaluate decides whether to halve one open position in favor of the
// candidate. Only called after the slot allocator denied capacity.
func (e *Evaluator) Evaluate(openPositions []PositionView, candidate *signal.Candidate, candidateConfidence float64) Outcome {
	if candidateConfidence < e.config.MinCandidateConfidence {
		return Outcome{Action: ActionNoAction}
	}

	best := -1
	bestRetention := math.MaxFloat64
	for i, p := range openPositions {
		if p.Instrument == candidate.Instrument {
			continue // Never trim the instrument we are about to enter
		}
		score, ok := e.retention(p)
		if !ok {
			continue
		}
		if score < bestRetention {
			bestRetention = score
			best = i
		}
	}
	if best < 0 {
		return Outcome{Action: ActionNoAction}
	}

	chosen := openPositions[best]
	delta := e.config.WinnerConfidenceDelta
	if chosen.pnlPct() <= 0 {
		delta = e.config.LoserConfidenceDelta
	}
	if candidateConfidence-bestRetention < delta {
		e.logger.Debug().
			Str("instrument", chosen.Instrument).
			Float64("retention", bestRetention).
			Float64("candidate_confidence", candidateConfidence).
			Msg("confidence edge too small to trim")
		return Outcome{Action: ActionNoAction}
	}

	trimQty := chosen.Quantity * e.config.TrimFraction
	freed := trimQty * chosen.CurrentPrice

	e.logger.Info().
		Str("position_id", chosen.ID).
		Str("trimmed", chosen.Instrument).
		Str("for", candidate.Instrument).
		Float64("trim_quantity", trimQty).
		Float64("freed_capital", freed).
		Float64("retention", bestRetention).
		Msg("trimming weaker position for stronger signal")

	return Outcome{
		Action:       ActionTrimmed,
		PositionID:   chosen.ID,
		Instrument:   chosen.Instrument,
		TrimQuantity: trimQty,
		FreedCapital: freed,
		Retention:    bestRetention,
	}
}
