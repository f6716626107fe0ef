// Package ledger tracks positions and P&L for a replay session.
//
// Inventory is kept as an ordered list of lots with FIFO cost-basis
// accounting: sells consume the oldest lots first and lock in realized
// P&L at trade time. Buys always append a new long lot and never close
// an existing short lot; the sell side is the only FIFO path. The
// summary nets lot quantities, so a flat position still reports zero.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tickreplay/internal/model"
)

// Ledger owns the lot and trade lists. The current price used for
// unrealized P&L is the only value shared with the quote pipeline and is
// written only through UpdateCurrentPrice.
type Ledger struct {
	mu      sync.RWMutex
	lots    []model.Lot
	trades  []model.Trade
	summary model.PositionSummary

	currentPrice float64
	hasPrice     bool

	now func() time.Time
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{now: time.Now}
}

// Buy opens a new lot of +quantity at price and records a trade with zero
// realized P&L. Quantities and prices are accepted as given.
func (l *Ledger) Buy(quantity, price float64) model.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now()
	id := uuid.NewString()

	l.lots = append(l.lots, model.Lot{
		ID:        id,
		Quantity:  quantity,
		Price:     price,
		CreatedAt: ts,
	})

	trade := model.Trade{
		ID:        id,
		Timestamp: ts,
		Side:      model.SideBuy,
		Quantity:  quantity,
		Price:     price,
	}
	l.trades = append(l.trades, trade)
	l.recomputeLocked()
	return trade
}

// Sell liquidates inventory FIFO against existing lots in creation order.
// If the quantity exceeds all open inventory, the remainder opens a short
// lot at price. The trade records the total accumulated realized P&L.
func (l *Ledger) Sell(quantity, price float64) model.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now()
	id := uuid.NewString()

	remaining := quantity
	realized := 0.0
	kept := l.lots[:0]

	for _, lot := range l.lots {
		if remaining <= 0 {
			kept = append(kept, lot)
			continue
		}
		if lot.Quantity <= remaining {
			// Close the whole lot.
			realized += (price - lot.Price) * lot.Quantity
			remaining -= lot.Quantity
		} else {
			// Partially close, shrink in place.
			realized += (price - lot.Price) * remaining
			lot.Quantity -= remaining
			remaining = 0
			kept = append(kept, lot)
		}
	}

	if remaining > 0 {
		// No inventory left to FIFO against: open a short lot.
		kept = append(kept, model.Lot{
			ID:        id,
			Quantity:  -remaining,
			Price:     price,
			CreatedAt: ts,
		})
	}
	l.lots = kept

	trade := model.Trade{
		ID:         id,
		Timestamp:  ts,
		Side:       model.SideSell,
		Quantity:   quantity,
		Price:      price,
		RealizedPL: realized,
	}
	l.trades = append(l.trades, trade)
	l.recomputeLocked()
	return trade
}

// UpdateCurrentPrice marks the open lot set against the quote midpoint
// without creating a trade.
func (l *Ledger) UpdateCurrentPrice(q model.Quote) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentPrice = q.Mid()
	l.hasPrice = true
	l.recomputeLocked()
}

// Reset clears all lots and trades, zeroes the summary, and clears the
// cached current price.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lots = nil
	l.trades = nil
	l.summary = model.PositionSummary{}
	l.currentPrice = 0
	l.hasPrice = false
}

// Summary returns the current aggregate view.
func (l *Ledger) Summary() model.PositionSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.summary
}

// Lots returns a snapshot of the open lots in creation order.
func (l *Ledger) Lots() []model.Lot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]model.Lot, len(l.lots))
	copy(cp, l.lots)
	return cp
}

// Trades returns a snapshot of all recorded trades.
func (l *Ledger) Trades() []model.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]model.Trade, len(l.trades))
	copy(cp, l.trades)
	return cp
}

// recomputeLocked rebuilds the summary from lots, trades, and the cached
// current price. Realized P&L is cumulative across all trades and does not
// depend on current inventory. Caller holds l.mu.
func (l *Ledger) recomputeLocked() {
	realized := 0.0
	for _, t := range l.trades {
		realized += t.RealizedPL
	}

	total := 0.0
	cost := 0.0
	for _, lot := range l.lots {
		total += lot.Quantity
		cost += lot.Price * lot.Quantity
	}

	if total == 0 {
		l.summary = model.PositionSummary{RealizedPL: realized}
		return
	}

	avg := cost / total
	l.summary = model.PositionSummary{
		TotalPosition: total,
		AvgPrice:      avg,
		RealizedPL:    realized,
	}
	if l.hasPrice {
		l.summary.UnrealizedPL = (l.currentPrice - avg) * total
		l.summary.PLPerShare = l.currentPrice - avg
	}
}
