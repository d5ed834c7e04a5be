// Package venue defines the execution-venue boundary. The controller
// treats order placement as an opaque operation: retries and fill
// confirmation polling belong to the adapter behind this interface, not
// to the admission pipeline.
package venue

import (
	"context"

	"trading-tick-controller/internal/signal"
)

// OrderRequest is a sized, admitted trade ready for execution.
type OrderRequest struct {
	Instrument string
	Direction  signal.Direction
	Quantity   float64
	Price      float64 // Reference price; the venue reports the actual fill
	StopLoss   float64
	TakeProfit float64
}

// Fill reports an executed order.
type Fill struct {
	OrderID   string
	FillPrice float64
	Quantity  float64
}

// VenuePosition is the venue's own view of an open position, used for
// slot reconciliation and trim pricing.
type VenuePosition struct {
	Instrument   string
	Direction    signal.Direction
	Quantity     float64
	EntryPrice   float64
	CurrentPrice float64
}

// Venue is the execution boundary.
type Venue interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*Fill, error)
	// ReducePosition partially closes a position and returns the realized
	// PnL of the closed part.
	ReducePosition(ctx context.Context, instrument string, quantity float64) (float64, error)
	SnapshotOpenPositions(ctx context.Context) ([]VenuePosition, error)
	Balance(ctx context.Context) (float64, error)
}
