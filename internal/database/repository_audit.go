package database

import (
	"context"
	"fmt"
)

// AuditRepository records every admission verdict so "no opportunity"
// and "system degraded" stay distinguishable after the fact.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates an audit repository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record inserts one decision row.
func (r *AuditRepository) Record(ctx context.Context, rec *DecisionRecord) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO decision_audit (trace_id, instrument, outcome, reason, score, confidence, risk_dollars, quantity, circuit_level, regime)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.TraceID, rec.Instrument, rec.Outcome, rec.Reason, rec.Score, rec.Confidence,
		rec.RiskDollars, rec.Quantity, rec.CircuitLevel, rec.Regime)
	if err != nil {
		return fmt.Errorf("record decision for %s: %w", rec.Instrument, err)
	}
	return nil
}

// ListRecent returns the most recent decisions, newest first.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]DecisionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, trace_id, instrument, outcome, reason, score, confidence, risk_dollars, quantity, circuit_level, regime, decided_at
		 FROM decision_audit ORDER BY decided_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decision audit: %w", err)
	}
	defer rows.Close()

	var records []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		if err := rows.Scan(&rec.ID, &rec.TraceID, &rec.Instrument, &rec.Outcome, &rec.Reason,
			&rec.Score, &rec.Confidence, &rec.RiskDollars, &rec.Quantity, &rec.CircuitLevel,
			&rec.Regime, &rec.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan decision record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountByOutcome returns total decision counts per outcome.
func (r *AuditRepository) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT outcome, COUNT(*) FROM decision_audit GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count decisions by outcome: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
