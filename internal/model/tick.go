package model

import "encoding/json"

// TickRecord represents a single recorded market update as supplied by the
// session loader. AdjustedTS is the replay clock in seconds; source exports
// disagree on field naming, so decoding accepts both spellings
// (bid_price/priceBid etc.) and re-encodes to the snake_case form.
type TickRecord struct {
	AdjustedTS float64 `json:"adjustedTimestamp"`
	BidPrice   float64 `json:"bid_price"`
	AskPrice   float64 `json:"ask_price"`
	BidSize    float64 `json:"bid_size"`
	AskSize    float64 `json:"ask_size"`
	Timestamp  float64 `json:"timestamp"` // raw source timestamp (epoch seconds)
}

// HasTimestamp reports whether the record carries a usable replay timestamp.
// Records without one degrade to the player's default pacing.
func (t *TickRecord) HasTimestamp() bool {
	return t.AdjustedTS > 0
}

// tickRecordAlias mirrors TickRecord with every accepted field spelling.
type tickRecordAlias struct {
	AdjustedTS *float64 `json:"adjustedTimestamp"`
	BidPrice   *float64 `json:"bid_price"`
	PriceBid   *float64 `json:"priceBid"`
	AskPrice   *float64 `json:"ask_price"`
	PriceAsk   *float64 `json:"priceAsk"`
	BidSize    *float64 `json:"bid_size"`
	SizeBid    *float64 `json:"sizeBid"`
	AskSize    *float64 `json:"ask_size"`
	SizeAsk    *float64 `json:"sizeAsk"`
	Timestamp  *float64 `json:"timestamp"`
	Time       *float64 `json:"time"`
}

func pick(a, b *float64) float64 {
	if a != nil {
		return *a
	}
	if b != nil {
		return *b
	}
	return 0
}

// UnmarshalJSON decodes a tick accepting either field naming convention.
func (t *TickRecord) UnmarshalJSON(data []byte) error {
	var alias tickRecordAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	t.AdjustedTS = pick(alias.AdjustedTS, nil)
	t.BidPrice = pick(alias.BidPrice, alias.PriceBid)
	t.AskPrice = pick(alias.AskPrice, alias.PriceAsk)
	t.BidSize = pick(alias.BidSize, alias.SizeBid)
	t.AskSize = pick(alias.AskSize, alias.SizeAsk)
	t.Timestamp = pick(alias.Timestamp, alias.Time)
	return nil
}

// Quote is the normalized current market state derived once per emitted tick.
type Quote struct {
	T         float64 `json:"t"` // replay time in seconds
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	BidSize   float64 `json:"bidSize"`
	AskSize   float64 `json:"askSize"`
	Timestamp float64 `json:"timestamp"`
}

// QuoteFromTick normalizes a raw tick record into a Quote.
func QuoteFromTick(t TickRecord) Quote {
	return Quote{
		T:         t.AdjustedTS,
		Bid:       t.BidPrice,
		Ask:       t.AskPrice,
		BidSize:   t.BidSize,
		AskSize:   t.AskSize,
		Timestamp: t.Timestamp,
	}
}

// Mid returns the bid/ask midpoint used for mark-to-market.
func (q *Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// JSON returns the JSON-encoded quote (ignoring errors for hot-path usage).
func (q *Quote) JSON() []byte {
	b, _ := json.Marshal(q)
	return b
}

// SessionMeta summarizes a replay session, computed once at load.
type SessionMeta struct {
	SessionID  string  `json:"session_id"`
	Symbol     string  `json:"symbol"`
	TotalTicks int     `json:"total_ticks"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
}
