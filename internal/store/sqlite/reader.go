// Package sqlite stores recorded sessions: tick arrays, Level 2 depth
// rows, and per-session metadata. The Reader implements the session
// loader contract consumed by the replay engine.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"tickreplay/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to stored sessions.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// LoadSessionData reads the ordered tick array and any attached depth rows
// for a session. A session with no ticks is a load failure.
func (r *Reader) LoadSessionData(ctx context.Context, sessionID string) (*model.SessionData, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT adjusted_ts, bid_price, ask_price, bid_size, ask_size, ts
		FROM ticks
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []model.TickRecord
	for rows.Next() {
		var t model.TickRecord
		if err := rows.Scan(&t.AdjustedTS, &t.BidPrice, &t.AskPrice, &t.BidSize, &t.AskSize, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite ticks rows: %w", err)
	}
	if len(ticks) == 0 {
		return nil, fmt.Errorf("session %s: no ticks stored", sessionID)
	}

	depth, err := r.loadDepth(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &model.SessionData{Ticks: ticks, Depth: depth}, nil
}

func (r *Reader) loadDepth(ctx context.Context, sessionID string) ([]model.L2Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT timestamp_ms, entry_type, exchange, price, size
		FROM l2_entries
		WHERE session_id = ?
		ORDER BY timestamp_ms ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query l2_entries: %w", err)
	}
	defer rows.Close()

	var depth []model.L2Entry
	for rows.Next() {
		var e model.L2Entry
		if err := rows.Scan(&e.TimestampMS, &e.EntryType, &e.Exchange, &e.Price, &e.Size); err != nil {
			return nil, fmt.Errorf("sqlite scan l2 entry: %w", err)
		}
		depth = append(depth, e)
	}
	return depth, rows.Err()
}

// ListSessions returns all stored sessions, newest first.
func (r *Reader) ListSessions(ctx context.Context) ([]model.SessionInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, date, px_start, px_end
		FROM sessions
		ORDER BY date DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.SessionInfo
	for rows.Next() {
		var s model.SessionInfo
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Date, &s.PxStart, &s.PxEnd); err != nil {
			return nil, fmt.Errorf("sqlite scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
