package model

import (
	"encoding/json"
	"time"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Lot is an open inventory slice with its own entry price. Quantity is
// signed: positive = long, negative = short. Lots are never re-priced;
// FIFO liquidation shrinks or removes them in creation order.
type Lot struct {
	ID        string    `json:"id"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// Trade is an executed order event. RealizedPL is fixed at creation time
// and never recomputed.
type Trade struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Side       string    `json:"side"` // buy or sell
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	RealizedPL float64   `json:"realized_pl"`
}

// PositionSummary is the aggregate ledger view, recomputed from lots,
// trades, and the current price on every relevant mutation.
type PositionSummary struct {
	TotalPosition float64 `json:"total_position"`
	AvgPrice      float64 `json:"avg_price"`
	UnrealizedPL  float64 `json:"unrealized_pl"`
	RealizedPL    float64 `json:"realized_pl"`
	PLPerShare    float64 `json:"pl_per_share"`
}

// TotalPL returns realized plus unrealized profit/loss.
func (s *PositionSummary) TotalPL() float64 {
	return s.RealizedPL + s.UnrealizedPL
}

// JSON returns the JSON-encoded summary.
func (s *PositionSummary) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
