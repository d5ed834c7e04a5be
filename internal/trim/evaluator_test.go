package trim

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"trading-tick-controller/internal/signal"
)

func floatEquals(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func newTestEvaluator() *Evaluator {
	return NewEvaluator(DefaultConfig(), zerolog.Nop())
}

func strongCandidate(confidence float64) (*signal.Candidate, float64) {
	return &signal.Candidate{
		Instrument:   "SOLUSDT",
		Direction:    signal.DirectionLong,
		Score:        confidence * 100,
		Price:        150,
		StopDistance: 3,
		AssetClass:   signal.AssetCryptoAlt,
	}, confidence
}

// winnerNearTarget is a long 90% of the way to its take-profit: entry
// 100, target 105, mark 104.5 (+4.5%, retention 0.1).
func winnerNearTarget() PositionView {
	return PositionView{
		ID:           "pos-1",
		Instrument:   "BTCUSDT",
		Direction:    signal.DirectionLong,
		EntryPrice:   100,
		CurrentPrice: 104.5,
		TakeProfit:   105,
		Quantity:     10,
		RiskDollars:  200,
	}
}

// ============================================================================
// TEST: Winner near target is trimmed for a strong candidate
// ============================================================================

func TestEvaluate_TrimsWinnerNearTarget(t *testing.T) {
	e := newTestEvaluator()
	cand, conf := strongCandidate(0.80)

	out := e.Evaluate([]PositionView{winnerNearTarget()}, cand, conf)

	if out.Action != ActionTrimmed {
		t.Fatalf("Expected TRIMMED, got %s", out.Action)
	}
	if out.PositionID != "pos-1" {
		t.Errorf("Expected position pos-1 trimmed, got %s", out.PositionID)
	}
	if !floatEquals(out.TrimQuantity, 5.0, 1e-9) {
		t.Errorf("Expected half the quantity (5.0), got %.4f", out.TrimQuantity)
	}
	if !floatEquals(out.FreedCapital, 5.0*104.5, 1e-9) {
		t.Errorf("Expected freed capital %.2f, got %.2f", 5.0*104.5, out.FreedCapital)
	}
	if !floatEquals(out.Retention, 0.1, 1e-9) {
		t.Errorf("Expected retention 0.10, got %.4f", out.Retention)
	}
}

// ============================================================================
// TEST: Gates that suppress trimming
// ============================================================================

func TestEvaluate_NoAction(t *testing.T) {
	e := newTestEvaluator()

	freshWinner := winnerNearTarget()
	freshWinner.CurrentPrice = 100.5 // +0.5%, retention 0.9

	smallLoser := winnerNearTarget()
	smallLoser.ID = "pos-2"
	smallLoser.CurrentPrice = 99.8 // -0.2%, under the adverse threshold

	noTarget := winnerNearTarget()
	noTarget.ID = "pos-3"
	noTarget.TakeProfit = 0

	testCases := []struct {
		name       string
		positions  []PositionView
		confidence float64
	}{
		{"candidate below the confidence floor", []PositionView{winnerNearTarget()}, 0.74},
		{"no open positions", nil, 0.90},
		{"winner too fresh, edge too small", []PositionView{freshWinner}, 0.90},
		{"small loser not yet cuttable", []PositionView{smallLoser}, 0.90},
		{"winner without a target is not judged", []PositionView{noTarget}, 0.90},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cand, conf := strongCandidate(tc.confidence)
			out := e.Evaluate(tc.positions, cand, conf)
			if out.Action != ActionNoAction {
				t.Errorf("Expected NO_ACTION, got %s (%s)", out.Action, out.Instrument)
			}
		})
	}
}

func TestEvaluate_NeverTrimsCandidateInstrument(t *testing.T) {
	e := newTestEvaluator()

	same := winnerNearTarget()
	same.Instrument = "SOLUSDT"

	cand, conf := strongCandidate(0.95)
	out := e.Evaluate([]PositionView{same}, cand, conf)

	if out.Action != ActionNoAction {
		t.Errorf("Expected the candidate's own instrument to be exempt, got %s", out.Action)
	}
}

// ============================================================================
// TEST: Losers need a smaller confidence edge than winners
// ============================================================================

func TestEvaluate_LoserDeltaIsSmaller(t *testing.T) {
	e := newTestEvaluator()

	// -4% loser: retention 1 - 4/5 = 0.2.
	loser := winnerNearTarget()
	loser.CurrentPrice = 96
	loser.TakeProfit = 0

	// Confidence 0.29 fails the floor; use 0.75+ per the floor, then
	// check the delta boundary against retention 0.2.
	cand, conf := strongCandidate(0.75)
	out := e.Evaluate([]PositionView{loser}, cand, conf)
	if out.Action != ActionTrimmed {
		t.Fatalf("Expected loser cut with edge %.2f >= 0.10, got %s", conf-0.2, out.Action)
	}

	// A winner with the same retention would need a 0.15 edge: 0.2 + 0.15
	// = 0.35, so confidence 0.30 is not enough. Build a winner with
	// retention 0.65 and test the boundary at 0.75.
	winner := winnerNearTarget()
	winner.CurrentPrice = 101.75 // progress 35%, retention 0.65
	cand2, conf2 := strongCandidate(0.79)
	out = e.Evaluate([]PositionView{winner}, cand2, conf2)
	if out.Action != ActionNoAction {
		t.Fatalf("Expected winner kept with edge %.2f < 0.15, got %s", conf2-0.65, out.Action)
	}

	cand3, conf3 := strongCandidate(0.80)
	out = e.Evaluate([]PositionView{winner}, cand3, conf3)
	if out.Action != ActionTrimmed {
		t.Fatalf("Expected winner trimmed with edge %.2f >= 0.15, got %s", conf3-0.65, out.Action)
	}
}

// ============================================================================
// TEST: The weakest position is chosen, and only one per evaluation
// ============================================================================

func TestEvaluate_PicksLowestRetention(t *testing.T) {
	e := newTestEvaluator()

	near := winnerNearTarget() // retention 0.1
	mid := winnerNearTarget()  // retention 0.5
	mid.ID = "pos-2"
	mid.Instrument = "ETHUSDT"
	mid.CurrentPrice = 102.5

	cand, conf := strongCandidate(0.90)
	out := e.Evaluate([]PositionView{mid, near}, cand, conf)

	if out.Action != ActionTrimmed {
		t.Fatalf("Expected a trim, got %s", out.Action)
	}
	if out.PositionID != "pos-1" {
		t.Errorf("Expected the weaker pos-1 (retention 0.1) over pos-2 (0.5), got %s", out.PositionID)
	}
}

// ============================================================================
// TEST: Short positions score symmetrically
// ============================================================================

func TestEvaluate_ShortWinnerNearTarget(t *testing.T) {
	e := newTestEvaluator()

	short := PositionView{
		ID:           "pos-s",
		Instrument:   "ETHUSDT",
		Direction:    signal.DirectionShort,
		EntryPrice:   100,
		CurrentPrice: 95.5, // 90% of the way to a 95 target
		TakeProfit:   95,
		Quantity:     8,
	}

	cand, conf := strongCandidate(0.80)
	out := e.Evaluate([]PositionView{short}, cand, conf)

	if out.Action != ActionTrimmed {
		t.Fatalf("Expected short winner near target trimmed, got %s", out.Action)
	}
	if !floatEquals(out.Retention, 0.1, 1e-9) {
		t.Errorf("Expected retention 0.10, got %.4f", out.Retention)
	}
}
