package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the replay engines from concrete storage
// implementations (SQLite, Redis). Each implementation satisfies one or
// more of these interfaces.

// SessionData is the payload returned by a session loader: an ordered tick
// array plus an optional Level 2 depth array.
type SessionData struct {
	Ticks []TickRecord
	Depth []L2Entry
}

// SessionInfo describes a stored session for browsing.
type SessionInfo struct {
	ID      string  `json:"id"`
	Symbol  string  `json:"symbol"`
	Date    string  `json:"date"`
	PxStart float64 `json:"px_start"`
	PxEnd   float64 `json:"px_end"`
}

// SessionLoader fetches recorded session data. Load errors are surfaced
// verbatim to the caller; the player never retains partial state on failure.
type SessionLoader interface {
	// LoadSessionData returns the ordered ticks and any attached depth data.
	LoadSessionData(ctx context.Context, sessionID string) (*SessionData, error)

	// ListSessions returns all stored sessions.
	ListSessions(ctx context.Context) ([]SessionInfo, error)
}

// EventPublisher distributes per-quote replay output to external consumers.
type EventPublisher interface {
	PublishQuote(ctx context.Context, sessionID string, q Quote)
	PublishBook(ctx context.Context, sessionID string, book OrderBookSnapshot)
	PublishSummary(ctx context.Context, sessionID string, sum PositionSummary)

	// Close releases underlying resources.
	Close() error
}
