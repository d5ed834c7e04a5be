package database

import "time"

// Position status values
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Realization kinds
const (
	RealizationFull = "FULL_EXIT"
	RealizationTrim = "TRIM"
)

// Position is the persisted record of an open or closed position.
type Position struct {
	ID          string     `json:"id"`
	Instrument  string     `json:"instrument"`
	Direction   string     `json:"direction"`
	EntryPrice  float64    `json:"entry_price"`
	Quantity    float64    `json:"quantity"`
	StopLoss    float64    `json:"stop_loss"`
	TakeProfit  float64    `json:"take_profit"`
	RiskDollars float64    `json:"risk_dollars"`
	Status      string     `json:"status"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// DecisionRecord is one row of the admission audit trail.
type DecisionRecord struct {
	ID           int64     `json:"id"`
	TraceID      string    `json:"trace_id"`
	Instrument   string    `json:"instrument"`
	Outcome      string    `json:"outcome"`
	Reason       string    `json:"reason"`
	Score        float64   `json:"score"`
	Confidence   float64   `json:"confidence"`
	RiskDollars  float64   `json:"risk_dollars"`
	Quantity     float64   `json:"quantity"`
	CircuitLevel string    `json:"circuit_level"`
	Regime       string    `json:"regime"`
	DecidedAt    time.Time `json:"decided_at"`
}
