package regime

import (
	"testing"
	"time"
)

// ============================================================================
// TEST: Regime classification boundaries
// ============================================================================

func TestClassify(t *testing.T) {
	cfg := DefaultClassifierConfig()

	testCases := []struct {
		name     string
		snap     MacroSnapshot
		expected Regime
	}{
		{"quiet market", MacroSnapshot{Benchmark24hReturn: 0.005, VolatilityIndex: 15}, Neutral},
		{"rally with low vol", MacroSnapshot{Benchmark24hReturn: 0.03, VolatilityIndex: 14}, RiskOn},
		{"rally with elevated vol", MacroSnapshot{Benchmark24hReturn: 0.03, VolatilityIndex: 20}, Neutral},
		{"elevated volatility", MacroSnapshot{Benchmark24hReturn: 0.01, VolatilityIndex: 25}, RiskOff},
		{"moderate drawdown", MacroSnapshot{Benchmark24hReturn: -0.04, VolatilityIndex: 18}, RiskOff},
		{"vol spike", MacroSnapshot{Benchmark24hReturn: 0.00, VolatilityIndex: 40}, Crash},
		{"severe 24h drop", MacroSnapshot{Benchmark24hReturn: -0.09, VolatilityIndex: 22}, Crash},
		{"crash beats risk off", MacroSnapshot{Benchmark24hReturn: -0.10, VolatilityIndex: 30}, Crash},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.snap, cfg); got != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestScoreHurdle(t *testing.T) {
	testCases := []struct {
		r        Regime
		expected float64
	}{
		{RiskOn, 0},
		{Neutral, 0},
		{RiskOff, 5},
		{Crash, 12},
	}

	for _, tc := range testCases {
		if got := tc.r.ScoreHurdle(); got != tc.expected {
			t.Errorf("%s: expected hurdle %.0f, got %.0f", tc.r, tc.expected, got)
		}
	}
}

// ============================================================================
// TEST: Session corridor covers the full day
// ============================================================================

func TestCurrentCorridor_Sessions(t *testing.T) {
	day := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		hour            int
		session         string
		state           CorridorState
		riskMultiplier  float64
		targetMultplier float64
	}{
		{0, "ASIA", CorridorReduced, 0.7, 0.8},
		{6, "ASIA", CorridorReduced, 0.7, 0.8},
		{7, "EUROPE", CorridorOpen, 1.0, 1.0},
		{12, "EUROPE", CorridorOpen, 1.0, 1.0},
		{13, "US", CorridorOpen, 1.0, 1.1},
		{20, "US", CorridorOpen, 1.0, 1.1},
		{21, "OFF_HOURS", CorridorClosed, 0, 0},
		{23, "OFF_HOURS", CorridorClosed, 0, 0},
	}

	for _, tc := range testCases {
		c := CurrentCorridor(day.Add(time.Duration(tc.hour) * time.Hour))
		if c.Session != tc.session || c.State != tc.state {
			t.Errorf("Hour %d: expected %s/%s, got %s/%s", tc.hour, tc.session, tc.state, c.Session, c.State)
		}
		if c.RiskMultiplier != tc.riskMultiplier || c.TargetMultiplier != tc.targetMultplier {
			t.Errorf("Hour %d: expected multipliers %.1f/%.1f, got %.1f/%.1f",
				tc.hour, tc.riskMultiplier, tc.targetMultplier, c.RiskMultiplier, c.TargetMultiplier)
		}
	}
}

func TestCurrentCorridor_EveryHourHasASession(t *testing.T) {
	day := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24; h++ {
		c := CurrentCorridor(day.Add(time.Duration(h) * time.Hour))
		if c.Session == "UNKNOWN" {
			t.Errorf("Hour %d has no session window", h)
		}
	}
}

func TestCurrentCorridor_NormalizesToUTC(t *testing.T) {
	// 23:00 in New York during DST is 03:00 UTC the next day, inside ASIA.
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	local := time.Date(2025, 6, 16, 23, 0, 0, 0, ny)

	c := CurrentCorridor(local)
	if c.Session != "ASIA" {
		t.Errorf("Expected ASIA for %v, got %s", local, c.Session)
	}
}
