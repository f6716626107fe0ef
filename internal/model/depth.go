package model

import "encoding/json"

// Depth entry sides as encoded in the L2 export.
const (
	EntryTypeBid = 0
	EntryTypeAsk = 1
)

// L2Entry is one externally supplied depth-of-book row.
type L2Entry struct {
	TimestampMS int64   `json:"timestamp_ms"`
	EntryType   int     `json:"entry_type"` // 0 = bid, 1 = ask
	Exchange    string  `json:"exchange"`
	Price       float64 `json:"price"`
	Size        float64 `json:"size"`
}

// BookLevel is a single displayed row of the order book.
type BookLevel struct {
	Maker string  `json:"maker"`
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBookSnapshot holds the current depth view. Bids are ordered by price
// descending (best first), asks ascending.
type OrderBookSnapshot struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// Empty reports whether neither side has any levels.
func (s *OrderBookSnapshot) Empty() bool {
	return len(s.Bids) == 0 && len(s.Asks) == 0
}

// JSON returns the JSON-encoded snapshot.
func (s *OrderBookSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
