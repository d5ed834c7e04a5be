// Package risk sizes admitted candidates against portfolio-wide limits.
// The ledger it reads lives in PostgreSQL, not process memory, so
// overlapping ticks agree on committed risk. When the ledger cannot be
// read the manager blocks: unlike the cooldown registry, risk checks
// fail CLOSED.
package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"trading-tick-controller/internal/logging"
	"trading-tick-controller/internal/signal"
)

// Block reasons surfaced to the audit trail
const (
	ReasonDailyLossLimit   = "DAILY_LOSS_LIMIT"
	ReasonPortfolioRiskCap = "PORTFOLIO_RISK_CAP"
	ReasonStoreUnavailable = "STORE_UNAVAILABLE"
	ReasonInvalidStop      = "INVALID_STOP"
)

// Ledger is the persisted portfolio view the manager sizes against.
type Ledger interface {
	OpenRiskDollars(ctx context.Context) (float64, error)
	DailyRealizedPnL(ctx context.Context, dayStart time.Time) (float64, error)
}

// Config holds risk limits. Percentages are whole numbers: 2.0 means 2%.
type Config struct {
	RiskPerTradePct     float64 `json:"risk_per_trade_pct"`
	MaxDailyLossPct     float64 `json:"max_daily_loss_pct"`
	MaxPortfolioRiskPct float64 `json:"max_portfolio_risk_pct"`
	FeeBufferPct        float64 `json:"fee_buffer_pct"` // Quantity haircut for fees/slippage
}

// DefaultConfig returns production risk limits.
func DefaultConfig() Config {
	return Config{
		RiskPerTradePct:     2.0,
		MaxDailyLossPct:     5.0,
		MaxPortfolioRiskPct: 20.0,
		FeeBufferPct:        2.0,
	}
}

// Sizing is the outcome of a sizing request. Blocked sizings are normal
// control flow, not errors.
type Sizing struct {
	Quantity    float64
	RiskDollars float64
	Blocked     bool
	Reason      string
	Reduced     bool // True when the portfolio cap shrank the request
}

// Manager computes position sizes and enforces the daily-loss breaker
// and the aggregate portfolio-risk cap.
type Manager struct {
	config Config
	ledger Ledger
	logger *logging.Logger
	now    func() time.Time
}

// NewManager creates a risk manager.
func NewManager(cfg Config, ledger Ledger, logger *logging.Logger) *Manager {
	return &Manager{
		config: cfg,
		ledger: ledger,
		logger: logger.WithComponent("risk"),
		now:    time.Now,
	}
}

// Size computes quantity and committed risk for an admitted candidate.
// sizeMultiplier folds in the circuit-breaker multiplier and the
// corridor risk multiplier; confidence comes from the decision engine.
func (m *Manager) Size(ctx context.Context, c *signal.Candidate, capital, stopLossPrice, confidence, sizeMultiplier float64) Sizing {
	stopDistance := math.Abs(c.Price - stopLossPrice)
	if stopDistance <= 0 || capital <= 0 {
		return Sizing{Blocked: true, Reason: ReasonInvalidStop}
	}

	// Daily loss breaker: block outright once today's realized losses
	// reach the cap. The day boundary is the calendar day in UTC.
	dayStart := m.now().UTC().Truncate(24 * time.Hour)
	dailyPnL, err := m.ledger.DailyRealizedPnL(ctx, dayStart)
	if err != nil {
		m.logger.Error("daily pnl read failed, blocking", "instrument", c.Instrument, "error", err)
		return Sizing{Blocked: true, Reason: ReasonStoreUnavailable}
	}
	maxDailyLoss := capital * m.config.MaxDailyLossPct / 100
	if -dailyPnL >= maxDailyLoss {
		m.logger.Warn("daily loss limit reached",
			"daily_pnl", dailyPnL, "max_daily_loss", maxDailyLoss)
		return Sizing{Blocked: true, Reason: ReasonDailyLossLimit}
	}

	riskDollars := capital * m.config.RiskPerTradePct / 100 * confidence * sizeMultiplier
	if riskDollars <= 0 {
		return Sizing{Blocked: true, Reason: fmt.Sprintf("zero risk budget (confidence=%.2f, multiplier=%.2f)", confidence, sizeMultiplier)}
	}

	// Portfolio risk cap: reduce to the remaining headroom instead of
	// rejecting; block only when no headroom is left.
	openRisk, err := m.ledger.OpenRiskDollars(ctx)
	if err != nil {
		m.logger.Error("risk ledger read failed, blocking", "instrument", c.Instrument, "error", err)
		return Sizing{Blocked: true, Reason: ReasonStoreUnavailable}
	}
	maxPortfolioRisk := capital * m.config.MaxPortfolioRiskPct / 100
	headroom := maxPortfolioRisk - openRisk
	if headroom <= 0 {
		return Sizing{Blocked: true, Reason: ReasonPortfolioRiskCap}
	}

	reduced := false
	if riskDollars > headroom {
		m.logger.Info("reducing risk to portfolio headroom",
			"instrument", c.Instrument, "requested", riskDollars, "headroom", headroom)
		riskDollars = headroom
		reduced = true
	}

	quantity := riskDollars / stopDistance * (1 - m.config.FeeBufferPct/100)
	if quantity <= 0 {
		return Sizing{Blocked: true, Reason: ReasonInvalidStop}
	}

	return Sizing{
		Quantity:    quantity,
		RiskDollars: riskDollars,
		Reduced:     reduced,
	}
}
