package venue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"trading-tick-controller/internal/signal"
)

// PaperVenue is an in-memory venue used in dry-run mode. Orders fill
// instantly at the reference price; balance moves with realized PnL.
type PaperVenue struct {
	mu        sync.Mutex
	balance   float64
	positions map[string]*VenuePosition
}

// NewPaperVenue creates a paper venue with the given starting balance.
func NewPaperVenue(startingBalance float64) *PaperVenue {
	return &PaperVenue{
		balance:   startingBalance,
		positions: make(map[string]*VenuePosition),
	}
}

// PlaceOrder fills immediately at the reference price.
func (v *PaperVenue) PlaceOrder(ctx context.Context, req OrderRequest) (*Fill, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("paper venue: non-positive quantity %.8f for %s", req.Quantity, req.Instrument)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if existing, ok := v.positions[req.Instrument]; ok && existing.Direction != req.Direction {
		return nil, fmt.Errorf("paper venue: opposing position already open on %s", req.Instrument)
	}

	pos := v.positions[req.Instrument]
	if pos == nil {
		pos = &VenuePosition{Instrument: req.Instrument, Direction: req.Direction, EntryPrice: req.Price}
		v.positions[req.Instrument] = pos
	}
	pos.Quantity += req.Quantity
	pos.CurrentPrice = req.Price

	return &Fill{
		OrderID:   uuid.New().String(),
		FillPrice: req.Price,
		Quantity:  req.Quantity,
	}, nil
}

// ReducePosition closes part of a position at the current mark.
func (v *PaperVenue) ReducePosition(ctx context.Context, instrument string, quantity float64) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pos, ok := v.positions[instrument]
	if !ok {
		return 0, fmt.Errorf("paper venue: no open position on %s", instrument)
	}
	if quantity <= 0 || quantity > pos.Quantity {
		return 0, fmt.Errorf("paper venue: invalid reduce quantity %.8f on %s (open %.8f)", quantity, instrument, pos.Quantity)
	}

	move := pos.CurrentPrice - pos.EntryPrice
	if pos.Direction == signal.DirectionShort {
		move = -move
	}
	pnl := move * quantity

	pos.Quantity -= quantity
	if pos.Quantity == 0 {
		delete(v.positions, instrument)
	}
	v.balance += pnl

	return pnl, nil
}

// SnapshotOpenPositions returns a copy of the paper book.
func (v *PaperVenue) SnapshotOpenPositions(ctx context.Context) ([]VenuePosition, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]VenuePosition, 0, len(v.positions))
	for _, p := range v.positions {
		out = append(out, *p)
	}
	return out, nil
}

// Balance returns the current paper balance.
func (v *PaperVenue) Balance(ctx context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balance, nil
}

// MarkPrice updates the mark used for unrealized PnL and trims. The
// price feed adapter calls this in dry-run mode.
func (v *PaperVenue) MarkPrice(instrument string, price float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if pos, ok := v.positions[instrument]; ok {
		pos.CurrentPrice = price
	}
}
