package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-tick-controller/internal/logging"
	"trading-tick-controller/internal/signal"
)

// fakeLedger is an in-memory stand-in for the Postgres ledger.
type fakeLedger struct {
	openRisk float64
	dailyPnL float64
	err      error
}

func (f *fakeLedger) OpenRiskDollars(ctx context.Context) (float64, error) {
	return f.openRisk, f.err
}

func (f *fakeLedger) DailyRealizedPnL(ctx context.Context, dayStart time.Time) (float64, error) {
	return f.dailyPnL, f.err
}

func newTestManager(cfg Config, ledger Ledger) *Manager {
	m := NewManager(cfg, ledger, logging.New(&logging.Config{Level: "ERROR", Output: "stderr"}))
	m.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	return m
}

func testCandidate(price float64) *signal.Candidate {
	return &signal.Candidate{
		Instrument: "BTCUSDT",
		Direction:  signal.DirectionLong,
		Score:      70,
		Confidence: 0.7,
		Price:      price,
		AssetClass: signal.AssetCryptoMajor,
	}
}

// ============================================================================
// TEST: Baseline sizing with the fee buffer haircut
// ============================================================================

func TestSize_BaselineQuantity(t *testing.T) {
	// $10,000 capital, 2% risk, full confidence, $5 stop distance:
	// risk budget $200, quantity 40 less the 2% fee buffer.
	m := newTestManager(DefaultConfig(), &fakeLedger{})

	s := m.Size(context.Background(), testCandidate(100), 10000, 95, 1.0, 1.0)

	require.False(t, s.Blocked, "expected sizing to succeed: %s", s.Reason)
	assert.InDelta(t, 200.0, s.RiskDollars, 1e-9)
	assert.InDelta(t, 39.2, s.Quantity, 1e-9)
	assert.False(t, s.Reduced)
}

func TestSize_ConfidenceAndMultiplierScaleRisk(t *testing.T) {
	m := newTestManager(DefaultConfig(), &fakeLedger{})

	testCases := []struct {
		name         string
		confidence   float64
		multiplier   float64
		expectedRisk float64
	}{
		{"full size", 1.0, 1.0, 200},
		{"half confidence", 0.5, 1.0, 100},
		{"circuit L1 halves sizing", 1.0, 0.5, 100},
		{"both halved", 0.5, 0.5, 50},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := m.Size(context.Background(), testCandidate(100), 10000, 95, tc.confidence, tc.multiplier)
			require.False(t, s.Blocked)
			assert.InDelta(t, tc.expectedRisk, s.RiskDollars, 1e-9)
		})
	}
}

func TestSize_ZeroMultiplierBlocks(t *testing.T) {
	m := newTestManager(DefaultConfig(), &fakeLedger{})

	s := m.Size(context.Background(), testCandidate(100), 10000, 95, 0.8, 0)

	assert.True(t, s.Blocked)
	assert.Contains(t, s.Reason, "zero risk budget")
}

// ============================================================================
// TEST: Portfolio risk cap reduces to headroom
// ============================================================================

func TestSize_PortfolioCapReducesToHeadroom(t *testing.T) {
	// $50,000 capital: 2% per trade requests $1,000, but open risk of
	// $9,500 against a $10,000 cap leaves only $500 of headroom.
	m := newTestManager(DefaultConfig(), &fakeLedger{openRisk: 9500})

	s := m.Size(context.Background(), testCandidate(100), 50000, 95, 1.0, 1.0)

	require.False(t, s.Blocked, "expected reduced sizing, got block: %s", s.Reason)
	assert.True(t, s.Reduced)
	assert.InDelta(t, 500.0, s.RiskDollars, 1e-9)
	assert.InDelta(t, 500.0/5*0.98, s.Quantity, 1e-9)
}

func TestSize_PortfolioCapExhaustedBlocks(t *testing.T) {
	m := newTestManager(DefaultConfig(), &fakeLedger{openRisk: 2000})

	s := m.Size(context.Background(), testCandidate(100), 10000, 95, 1.0, 1.0)

	assert.True(t, s.Blocked)
	assert.Equal(t, ReasonPortfolioRiskCap, s.Reason)
}

// ============================================================================
// TEST: Daily loss breaker
// ============================================================================

func TestSize_DailyLossLimit(t *testing.T) {
	testCases := []struct {
		name     string
		dailyPnL float64
		blocked  bool
	}{
		{"no losses", 0, false},
		{"small loss", -200, false},
		{"just under the cap", -499.99, false},
		{"exactly at the cap", -500, true},
		{"past the cap", -800, true},
		{"profitable day", 300, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(DefaultConfig(), &fakeLedger{dailyPnL: tc.dailyPnL})
			s := m.Size(context.Background(), testCandidate(100), 10000, 95, 1.0, 1.0)
			assert.Equal(t, tc.blocked, s.Blocked)
			if tc.blocked {
				assert.Equal(t, ReasonDailyLossLimit, s.Reason)
			}
		})
	}
}

// ============================================================================
// TEST: Ledger failures fail closed
// ============================================================================

func TestSize_LedgerErrorBlocks(t *testing.T) {
	m := newTestManager(DefaultConfig(), &fakeLedger{err: errors.New("connection refused")})

	s := m.Size(context.Background(), testCandidate(100), 10000, 95, 1.0, 1.0)

	assert.True(t, s.Blocked)
	assert.Equal(t, ReasonStoreUnavailable, s.Reason)
}

func TestSize_InvalidStopBlocks(t *testing.T) {
	m := newTestManager(DefaultConfig(), &fakeLedger{})

	// Stop at the entry price gives zero stop distance.
	s := m.Size(context.Background(), testCandidate(100), 10000, 100, 1.0, 1.0)

	assert.True(t, s.Blocked)
	assert.Equal(t, ReasonInvalidStop, s.Reason)
}
