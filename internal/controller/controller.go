// Package controller orchestrates one tick of the admission pipeline:
// signal, decision, sizing, slot reservation, execution, cooldown stamp.
// Ticks are stateless and may overlap; everything shared between them
// lives in the Redis store or PostgreSQL, never in this struct.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trading-tick-controller/internal/circuit"
	"trading-tick-controller/internal/cooldown"
	"trading-tick-controller/internal/database"
	"trading-tick-controller/internal/decision"
	"trading-tick-controller/internal/events"
	"trading-tick-controller/internal/logging"
	"trading-tick-controller/internal/metrics"
	"trading-tick-controller/internal/regime"
	"trading-tick-controller/internal/risk"
	"trading-tick-controller/internal/signal"
	"trading-tick-controller/internal/slots"
	"trading-tick-controller/internal/store"
	"trading-tick-controller/internal/trim"
	"trading-tick-controller/internal/venue"
)

// Audit outcomes. CAPACITY_EXCEEDED and RISK_BLOCKED are normal control
// flow, not failures.
const (
	OutcomeAdmitted         = "ADMITTED"
	OutcomeRejected         = "REJECTED"
	OutcomeRiskBlocked      = "RISK_BLOCKED"
	OutcomeCapacityExceeded = "CAPACITY_EXCEEDED"
	OutcomeTrimmed          = "TRIMMED"
	OutcomeExecutionFailed  = "EXECUTION_FAILED"
	OutcomeSkipped          = "SKIPPED"
)

// MacroFeed supplies the per-tick market stress snapshot.
type MacroFeed interface {
	Snapshot(ctx context.Context) (regime.MacroSnapshot, error)
}

// StateStore is the slice of the shared store the controller itself uses
// for circuit state persistence.
type StateStore interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// PositionLedger is the slice of the position repository the controller
// writes through.
type PositionLedger interface {
	Create(ctx context.Context, p *database.Position) (string, error)
	OpenPositions(ctx context.Context) ([]database.Position, error)
	Reduce(ctx context.Context, positionID string, reduceBy, pnl float64) error
}

// AuditLog records one row per decision.
type AuditLog interface {
	Record(ctx context.Context, rec *database.DecisionRecord) error
}

// Config holds controller-level settings.
type Config struct {
	CooldownWindow  time.Duration
	RewardRiskRatio float64 // Take-profit distance as a multiple of stop distance
	Circuit         circuit.Config
	Regime          regime.ClassifierConfig
}

// Controller wires the admission pipeline together.
type Controller struct {
	config    Config
	source    signal.Source
	macro     MacroFeed
	engine    *decision.Engine
	riskMgr   *risk.Manager
	allocator *slots.Allocator
	cooldowns *cooldown.Registry
	trimmer   *trim.Evaluator
	venue     venue.Venue
	positions PositionLedger
	audit     AuditLog
	state     StateStore
	bus       *events.EventBus
	logger    *logging.Logger
	now       func() time.Time
}

// New creates a controller.
func New(
	cfg Config,
	source signal.Source,
	macro MacroFeed,
	engine *decision.Engine,
	riskMgr *risk.Manager,
	allocator *slots.Allocator,
	cooldowns *cooldown.Registry,
	trimmer *trim.Evaluator,
	v venue.Venue,
	positions PositionLedger,
	audit AuditLog,
	state StateStore,
	bus *events.EventBus,
	logger *logging.Logger,
) *Controller {
	if cfg.RewardRiskRatio <= 0 {
		cfg.RewardRiskRatio = 2.0
	}
	return &Controller{
		config:    cfg,
		source:    source,
		macro:     macro,
		engine:    engine,
		riskMgr:   riskMgr,
		allocator: allocator,
		cooldowns: cooldowns,
		trimmer:   trimmer,
		venue:     v,
		positions: positions,
		audit:     audit,
		state:     state,
		bus:       bus,
		logger:    logger.WithComponent("controller"),
		now:       time.Now,
	}
}

// RunTick executes one full cycle. It never returns a fatal condition;
// the worst outcome is skipping the cycle with a logged reason.
func (c *Controller) RunTick(ctx context.Context) {
	started := c.now()
	traceID := uuid.New().String()
	log := c.logger.WithTraceID(traceID)
	defer func() {
		metrics.TickDuration.Observe(time.Since(started).Seconds())
	}()

	snap, err := c.macro.Snapshot(ctx)
	if err != nil {
		log.Warn("macro feed unavailable, skipping cycle", "error", err)
		return
	}

	circuitState, ok := c.refreshCircuit(ctx, snap, log)
	if !ok {
		return
	}

	candidate, err := c.source.Next()
	if err != nil {
		log.Warn("signal source failed, skipping cycle", "error", err)
		return
	}
	if candidate == nil {
		log.Debug("no candidate this cycle")
		return
	}

	marketRegime := regime.Classify(snap, c.config.Regime)
	corridor := regime.CurrentCorridor(c.now())
	cooldownActive := c.cooldowns.InCooldown(ctx, candidate.Instrument, c.config.CooldownWindow)

	verdict := c.engine.Evaluate(candidate, decision.Inputs{
		Regime:         marketRegime,
		Macro:          snap,
		Circuit:        circuitState,
		Corridor:       corridor,
		CooldownActive: cooldownActive,
		Now:            c.now(),
	})
	if !verdict.Admit {
		c.record(ctx, log, &database.DecisionRecord{
			TraceID: traceID, Instrument: candidate.Instrument,
			Outcome: OutcomeRejected, Reason: verdict.Reason,
			Score: candidate.Score, CircuitLevel: string(circuitState.Level), Regime: string(marketRegime),
		})
		c.bus.PublishRejection(traceID, candidate.Instrument, OutcomeRejected, verdict.Reason)
		return
	}

	capital, err := c.venue.Balance(ctx)
	if err != nil {
		log.Warn("venue balance unavailable, skipping cycle", "error", err)
		return
	}

	stopLoss, takeProfit := c.protectionPrices(candidate, corridor)
	sizing := c.riskMgr.Size(ctx, candidate, capital, stopLoss, verdict.Confidence, circuitState.SizeMultiplier()*corridor.RiskMultiplier)
	if sizing.Blocked {
		c.record(ctx, log, &database.DecisionRecord{
			TraceID: traceID, Instrument: candidate.Instrument,
			Outcome: OutcomeRiskBlocked, Reason: sizing.Reason,
			Score: candidate.Score, Confidence: verdict.Confidence,
			CircuitLevel: string(circuitState.Level), Regime: string(marketRegime),
		})
		c.bus.PublishRejection(traceID, candidate.Instrument, OutcomeRiskBlocked, sizing.Reason)
		return
	}
	if sizing.Reduced {
		metrics.RiskReductions.Inc()
	}

	maxSlots := c.allocator.MaxSlots(capital)
	acquired, err := c.allocator.Acquire(ctx, maxSlots)
	if err != nil {
		// Fail closed: a store outage denies admission rather than risk
		// overshooting the slot bound.
		c.record(ctx, log, &database.DecisionRecord{
			TraceID: traceID, Instrument: candidate.Instrument,
			Outcome: OutcomeSkipped, Reason: fmt.Sprintf("%s: %v", risk.ReasonStoreUnavailable, err),
		})
		return
	}
	if !acquired {
		c.handleCapacity(ctx, log, traceID, candidate, verdict.Confidence, maxSlots, capital, stopLoss, takeProfit, sizing, circuitState, marketRegime)
		return
	}

	c.execute(ctx, log, traceID, candidate, stopLoss, takeProfit, sizing, verdict.Confidence, circuitState, marketRegime)
}

// refreshCircuit loads the persisted breaker state, re-evaluates it from
// the snapshot and stores the result. A failed read skips the cycle: an
// unknown breaker state must not be traded through.
func (c *Controller) refreshCircuit(ctx context.Context, snap regime.MacroSnapshot, log *logging.Logger) (circuit.State, bool) {
	var prev circuit.State
	if err := c.state.GetJSON(ctx, store.CircuitStateKey, &prev); err != nil {
		if err != store.ErrNotFound {
			log.Error("circuit state unreadable, skipping cycle", "error", err)
			return circuit.State{}, false
		}
		prev = circuit.State{Level: circuit.LevelNone}
	}

	next := circuit.Evaluate(prev, snap.Benchmark24hReturn, snap.Benchmark7dReturn, c.now(), c.config.Circuit)
	if next.Level != prev.Level {
		log.Warn("circuit breaker level changed",
			"from", string(prev.Level), "to", string(next.Level), "reason", next.Reason)
		c.bus.PublishCircuitUpdate(string(next.Level), next.Reason, next.CooldownUntil)
	}
	metrics.SetCircuitLevel(string(next.Level))

	// Last-writer-wins is acceptable here: overlapping ticks derive the
	// same level from the same feed.
	if err := c.state.SetJSON(ctx, store.CircuitStateKey, next, 0); err != nil {
		log.Warn("circuit state write failed", "error", err)
	}
	return next, true
}

// protectionPrices derives stop and target from the candidate's stop
// distance and the corridor's target multiplier.
func (c *Controller) protectionPrices(cand *signal.Candidate, corridor regime.Corridor) (stopLoss, takeProfit float64) {
	targetDistance := cand.StopDistance * c.config.RewardRiskRatio * corridor.TargetMultiplier
	if cand.Direction == signal.DirectionLong {
		return cand.Price - cand.StopDistance, cand.Price + targetDistance
	}
	return cand.Price + cand.StopDistance, cand.Price - targetDistance
}

// handleCapacity runs the trim-and-switch fallback after a slot denial.
func (c *Controller) handleCapacity(
	ctx context.Context,
	log *logging.Logger,
	traceID string,
	candidate *signal.Candidate,
	confidence float64,
	maxSlots int64,
	capital, stopLoss, takeProfit float64,
	sizing risk.Sizing,
	circuitState circuit.State,
	marketRegime regime.Regime,
) {
	views, err := c.openPositionViews(ctx)
	if err != nil {
		log.Warn("cannot build position views for trim", "error", err)
		c.record(ctx, log, &database.DecisionRecord{
			TraceID: traceID, Instrument: candidate.Instrument,
			Outcome: OutcomeCapacityExceeded, Reason: "slots full, trim evaluation unavailable",
		})
		return
	}

	outcome := c.trimmer.Evaluate(views, candidate, confidence)
	if outcome.Action != trim.ActionTrimmed {
		c.record(ctx, log, &database.DecisionRecord{
			TraceID: traceID, Instrument: candidate.Instrument,
			Outcome: OutcomeCapacityExceeded, Reason: "slots full, no position worth trimming",
			Score: candidate.Score, Confidence: confidence,
			CircuitLevel: string(circuitState.Level), Regime: string(marketRegime),
		})
		return
	}

	pnl, err := c.venue.ReducePosition(ctx, outcome.Instrument, outcome.TrimQuantity)
	if err != nil {
		log.Error("trim execution failed", "instrument", outcome.Instrument, "error", err)
		c.record(ctx, log, &database.DecisionRecord{
			TraceID: traceID, Instrument: candidate.Instrument,
			Outcome: OutcomeExecutionFailed, Reason: fmt.Sprintf("trim of %s failed: %v", outcome.Instrument, err),
		})
		return
	}
	if err := c.positions.Reduce(ctx, outcome.PositionID, outcome.TrimQuantity, pnl); err != nil {
		log.Error("trim executed but ledger update failed", "position_id", outcome.PositionID, "error", err)
	}

	metrics.Trims.Inc()
	c.bus.PublishTrim(traceID, outcome.Instrument, candidate.Instrument, outcome.TrimQuantity, outcome.FreedCapital)
	c.record(ctx, log, &database.DecisionRecord{
		TraceID: traceID, Instrument: candidate.Instrument,
		Outcome: OutcomeTrimmed,
		Reason: fmt.Sprintf("trimmed %s (retention %.2f) freeing %.2f for %s",
			outcome.Instrument, outcome.Retention, outcome.FreedCapital, candidate.Instrument),
		Score: candidate.Score, Confidence: confidence,
		CircuitLevel: string(circuitState.Level), Regime: string(marketRegime),
	})

	// The trimmed position still holds its slot; the freed capital only
	// raises capacity when it crosses a slot-unit boundary. Retry once in
	// case it did, otherwise the candidate waits for the next cycle.
	newCapital := capital + outcome.FreedCapital
	newMax := c.allocator.MaxSlots(newCapital)
	if newMax > maxSlots {
		acquired, err := c.allocator.Acquire(ctx, newMax)
		if err == nil && acquired {
			c.execute(ctx, log, traceID, candidate, stopLoss, takeProfit, sizing, confidence, circuitState, marketRegime)
		}
	}
}

// execute places the order for an admitted, sized, slot-holding
// candidate. An execution failure triggers the compensating release so
// the slot cannot leak.
func (c *Controller) execute(
	ctx context.Context,
	log *logging.Logger,
	traceID string,
	candidate *signal.Candidate,
	stopLoss, takeProfit float64,
	sizing risk.Sizing,
	confidence float64,
	circuitState circuit.State,
	marketRegime regime.Regime,
) {
	fill, err := c.venue.PlaceOrder(ctx, venue.OrderRequest{
		Instrument: candidate.Instrument,
		Direction:  candidate.Direction,
		Quantity:   sizing.Quantity,
		Price:      candidate.Price,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
	if err != nil {
		if relErr := c.allocator.Release(ctx); relErr != nil {
			// Slot leaked until the next sync heals it.
			log.Error("compensating release failed after execution failure", "error", relErr)
		}
		c.record(ctx, log, &database.DecisionRecord{
			TraceID: traceID, Instrument: candidate.Instrument,
			Outcome: OutcomeExecutionFailed, Reason: fmt.Sprintf("venue rejected order: %v", err),
			Score: candidate.Score, Confidence: confidence,
			RiskDollars: sizing.RiskDollars, Quantity: sizing.Quantity,
			CircuitLevel: string(circuitState.Level), Regime: string(marketRegime),
		})
		c.bus.PublishRejection(traceID, candidate.Instrument, OutcomeExecutionFailed, err.Error())
		return
	}

	if _, err := c.positions.Create(ctx, &database.Position{
		Instrument:  candidate.Instrument,
		Direction:   string(candidate.Direction),
		EntryPrice:  fill.FillPrice,
		Quantity:    fill.Quantity,
		StopLoss:    stopLoss,
		TakeProfit:  takeProfit,
		RiskDollars: sizing.RiskDollars,
	}); err != nil {
		// The position exists at the venue but not in the ledger; the
		// risk cap is temporarily understated until the next sync pass
		// surfaces the mismatch. Loud log, no rollback of a real fill.
		log.Error("order filled but position insert failed", "instrument", candidate.Instrument, "error", err)
	}

	if err := c.cooldowns.Record(ctx, candidate.Instrument, c.config.CooldownWindow); err != nil {
		log.Warn("cooldown stamp failed", "instrument", candidate.Instrument, "error", err)
	}

	c.record(ctx, log, &database.DecisionRecord{
		TraceID: traceID, Instrument: candidate.Instrument,
		Outcome: OutcomeAdmitted, Reason: decision.ReasonAdmitted,
		Score: candidate.Score, Confidence: confidence,
		RiskDollars: sizing.RiskDollars, Quantity: fill.Quantity,
		CircuitLevel: string(circuitState.Level), Regime: string(marketRegime),
	})
	c.bus.PublishAdmission(traceID, candidate.Instrument, fill.Quantity, sizing.RiskDollars, fill.FillPrice)
	log.Info("position opened",
		"instrument", candidate.Instrument, "quantity", fill.Quantity,
		"risk_dollars", sizing.RiskDollars, "fill_price", fill.FillPrice)
}

// openPositionViews joins the persisted position records with the
// venue's current marks for the trim evaluator.
func (c *Controller) openPositionViews(ctx context.Context) ([]trim.PositionView, error) {
	open, err := c.positions.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load open positions: %w", err)
	}
	marks, err := c.venue.SnapshotOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("venue snapshot: %w", err)
	}
	priceByInstrument := make(map[string]float64, len(marks))
	for _, m := range marks {
		priceByInstrument[m.Instrument] = m.CurrentPrice
	}

	views := make([]trim.PositionView, 0, len(open))
	for _, p := range open {
		price, ok := priceByInstrument[p.Instrument]
		if !ok {
			continue // Ledger/venue drift; sync will reconcile
		}
		views = append(views, trim.PositionView{
			ID:           p.ID,
			Instrument:   p.Instrument,
			Direction:    signal.Direction(p.Direction),
			EntryPrice:   p.EntryPrice,
			CurrentPrice: price,
			TakeProfit:   p.TakeProfit,
			Quantity:     p.Quantity,
			RiskDollars:  p.RiskDollars,
		})
	}
	return views, nil
}

// SyncSlots reconciles the slot counter with the venue's ground truth.
// Run on its own slower schedule; this is what heals a counter left
// incremented by a tick that died between acquire and release.
func (c *Controller) SyncSlots(ctx context.Context) error {
	positions, err := c.venue.SnapshotOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("sync slots: venue snapshot: %w", err)
	}
	trueCount := int64(len(positions))
	if err := c.allocator.Sync(ctx, trueCount); err != nil {
		return err
	}
	metrics.SlotsActive.Set(float64(trueCount))
	c.bus.PublishSlotSync(trueCount)
	return nil
}

// record writes an audit row and bumps the outcome counter. Audit
// failures are logged, never propagated into the pipeline.
func (c *Controller) record(ctx context.Context, log *logging.Logger, rec *database.DecisionRecord) {
	metrics.Decisions.WithLabelValues(rec.Outcome).Inc()
	if err := c.audit.Record(ctx, rec); err != nil {
		log.Warn("audit write failed", "outcome", rec.Outcome, "error", err)
	}
	log.Info("decision recorded", "instrument", rec.Instrument, "outcome", rec.Outcome, "reason", rec.Reason)
}
