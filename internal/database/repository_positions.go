package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PositionRepository persists positions and realized PnL.
type PositionRepository struct {
	db *DB
}

// NewPositionRepository creates a position repository.
func NewPositionRepository(db *DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create inserts a new OPEN position and returns its ID.
func (r *PositionRepository) Create(ctx context.Context, p *Position) (string, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO positions (id, instrument, direction, entry_price, quantity, stop_loss, take_profit, risk_dollars, status, opened_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.Instrument, p.Direction, p.EntryPrice, p.Quantity, p.StopLoss, p.TakeProfit, p.RiskDollars, StatusOpen, time.Now())
	if err != nil {
		return "", fmt.Errorf("create position for %s: %w", p.Instrument, err)
	}
	return p.ID, nil
}

// OpenPositions returns all positions with status OPEN.
func (r *PositionRepository) OpenPositions(ctx context.Context) ([]Position, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, instrument, direction, entry_price, quantity, stop_loss, take_profit, risk_dollars, status, opened_at, closed_at
		 FROM positions WHERE status = $1 ORDER BY opened_at`, StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.ID, &p.Instrument, &p.Direction, &p.EntryPrice, &p.Quantity,
			&p.StopLoss, &p.TakeProfit, &p.RiskDollars, &p.Status, &p.OpenedAt, &p.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// OpenRiskDollars returns the portfolio risk ledger: the sum of committed
// risk across all OPEN positions.
func (r *PositionRepository) OpenRiskDollars(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(risk_dollars), 0) FROM positions WHERE status = $1`, StatusOpen).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum open risk: %w", err)
	}
	return total, nil
}

// DailyRealizedPnL returns the net realized PnL since the given day start.
func (r *PositionRepository) DailyRealizedPnL(ctx context.Context, dayStart time.Time) (float64, error) {
	var total float64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(pnl), 0) FROM realizations WHERE realized_at >= $1`, dayStart).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum daily realized pnl: %w", err)
	}
	return total, nil
}

// Close fully exits a position: marks it CLOSED and records the realized
// PnL. Quantity at close is whatever remains after any trims.
func (r *PositionRepository) Close(ctx context.Context, positionID string, pnl float64) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin close tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var instrument string
	var quantity float64
	err = tx.QueryRow(ctx,
		`UPDATE positions SET status = $1, closed_at = NOW() WHERE id = $2 AND status = $3
		 RETURNING instrument, quantity`, StatusClosed, positionID, StatusOpen).Scan(&instrument, &quantity)
	if err != nil {
		return fmt.Errorf("close position %s: %w", positionID, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO realizations (position_id, instrument, quantity, pnl, kind) VALUES ($1, $2, $3, $4, $5)`,
		positionID, instrument, quantity, pnl, RealizationFull)
	if err != nil {
		return fmt.Errorf("record realization for %s: %w", positionID, err)
	}

	return tx.Commit(ctx)
}

// Reduce trims a position by the given quantity, shrinking its committed
// risk proportionally, and records the realized PnL of the trimmed part.
// The condition quantity > reduceBy keeps a trim from emptying the
// position through this path; full exits go through Close.
func (r *PositionRepository) Reduce(ctx context.Context, positionID string, reduceBy, pnl float64) error {
	if reduceBy <= 0 {
		return fmt.Errorf("reduce position %s: non-positive quantity %.8f", positionID, reduceBy)
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reduce tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var instrument string
	err = tx.QueryRow(ctx,
		`UPDATE positions
		 SET quantity = quantity - $1,
		     risk_dollars = risk_dollars * (quantity - $1) / quantity
		 WHERE id = $2 AND status = $3 AND quantity > $1
		 RETURNING instrument`, reduceBy, positionID, StatusOpen).Scan(&instrument)
	if err != nil {
		return fmt.Errorf("reduce position %s: %w", positionID, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO realizations (position_id, instrument, quantity, pnl, kind) VALUES ($1, $2, $3, $4, $5)`,
		positionID, instrument, reduceBy, pnl, RealizationTrim)
	if err != nil {
		return fmt.Errorf("record trim realization for %s: %w", positionID, err)
	}

	return tx.Commit(ctx)
}
