// Package signal defines the trade candidate model produced by the external
// signal source. The controller only consumes candidates; scoring and
// indicator math live outside this repository.
package signal

import (
	"fmt"
	"time"
)

// Direction of a proposed trade
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// AssetClass groups instruments for threshold purposes
type AssetClass string

const (
	AssetCryptoMajor AssetClass = "CRYPTO_MAJOR"
	AssetCryptoAlt   AssetClass = "CRYPTO_ALT"
	AssetFX          AssetClass = "FX"
	AssetIndex       AssetClass = "INDEX"
)

// Candidate is a scored trade proposal for the current tick.
// Produced fresh each cycle; never persisted.
type Candidate struct {
	Instrument string     `json:"instrument"`
	Direction  Direction  `json:"direction"`
	Score      float64    `json:"score"`      // Technical score [0,100]
	Confidence float64    `json:"confidence"` // Source confidence [0,1]
	ATR          float64  `json:"atr"`
	StopDistance float64  `json:"stop_distance"` // Price distance to the proposed stop
	Price        float64  `json:"price"`         // Reference price at signal time
	AssetClass AssetClass `json:"asset_class"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Validate checks a candidate for structural problems before it enters
// the admission pipeline. A malformed candidate is rejected, not fatal.
func (c *Candidate) Validate() error {
	if c.Instrument == "" {
		return fmt.Errorf("candidate missing instrument")
	}
	if c.Direction != DirectionLong && c.Direction != DirectionShort {
		return fmt.Errorf("invalid direction %q for %s", c.Direction, c.Instrument)
	}
	if c.Score < 0 || c.Score > 100 {
		return fmt.Errorf("score %.2f out of range [0,100] for %s", c.Score, c.Instrument)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %.4f out of range [0,1] for %s", c.Confidence, c.Instrument)
	}
	if c.Price <= 0 {
		return fmt.Errorf("non-positive reference price %.8f for %s", c.Price, c.Instrument)
	}
	if c.ATR < 0 {
		return fmt.Errorf("negative ATR %.8f for %s", c.ATR, c.Instrument)
	}
	if c.StopDistance <= 0 {
		return fmt.Errorf("non-positive stop distance %.8f for %s", c.StopDistance, c.Instrument)
	}
	return nil
}

// Source produces one candidate per tick. Returning a nil candidate with
// a nil error means the source sees no opportunity this cycle.
type Source interface {
	Next() (*Candidate, error)
}
