package replay

import (
	"encoding/json"

	"tickreplay/internal/book"
	"tickreplay/internal/model"
)

// EventType discriminates engine events.
type EventType string

const (
	EventInit   EventType = "init"
	EventQuote  EventType = "quote"
	EventTrade  EventType = "trade"
	EventEnd    EventType = "end"
	EventStatus EventType = "status"
)

// Event is the per-quote pulse shared by every consumer: the normalized
// quote plus the book snapshot and ledger summary derived from it.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`

	Meta    *model.SessionMeta       `json:"meta,omitempty"`
	Quote   *model.Quote             `json:"quote,omitempty"`
	Book    *model.OrderBookSnapshot `json:"book,omitempty"`
	Colors  *book.ColorMap           `json:"colors,omitempty"`
	Summary *model.PositionSummary   `json:"summary,omitempty"`
	Trade   *model.Trade             `json:"trade,omitempty"`

	// Timeframes rides the init event only: chart grouping values the
	// consumer may offer, never consulted by the pacing loop.
	Timeframes []int `json:"timeframes,omitempty"`

	Progress  float64 `json:"progress"`
	Speed     float64 `json:"speed,omitempty"`
	State     string  `json:"state,omitempty"`
	RealDepth bool    `json:"real_depth,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// JSON returns the JSON-encoded event.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
