// Package database persists positions, realized PnL and the decision
// audit trail in PostgreSQL. The position table is the authoritative
// record of open exposure; no in-process cache survives across ticks.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			id UUID PRIMARY KEY,
			instrument VARCHAR(32) NOT NULL,
			direction VARCHAR(8) NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			quantity DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			take_profit DOUBLE PRECISION,
			risk_dollars DOUBLE PRECISION NOT NULL,
			status VARCHAR(8) NOT NULL DEFAULT 'OPEN',
			opened_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_instrument ON positions(instrument)`,
		`CREATE TABLE IF NOT EXISTS realizations (
			id BIGSERIAL PRIMARY KEY,
			position_id UUID NOT NULL REFERENCES positions(id),
			instrument VARCHAR(32) NOT NULL,
			quantity DOUBLE PRECISION NOT NULL,
			pnl DOUBLE PRECISION NOT NULL,
			kind VARCHAR(16) NOT NULL,
			realized_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_realizations_realized_at ON realizations(realized_at)`,
		`CREATE TABLE IF NOT EXISTS decision_audit (
			id BIGSERIAL PRIMARY KEY,
			trace_id VARCHAR(64) NOT NULL,
			instrument VARCHAR(32) NOT NULL,
			outcome VARCHAR(32) NOT NULL,
			reason TEXT NOT NULL,
			score DOUBLE PRECISION,
			confidence DOUBLE PRECISION,
			risk_dollars DOUBLE PRECISION,
			quantity DOUBLE PRECISION,
			circuit_level VARCHAR(8),
			regime VARCHAR(16),
			decided_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decision_audit_decided_at ON decision_audit(decided_at)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	return nil
}
