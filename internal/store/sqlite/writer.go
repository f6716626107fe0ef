package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	"tickreplay/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to the session database, e.g. "data/sessions.db"
}

// Writer ingests recorded sessions with transaction batching.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id       TEXT PRIMARY KEY,
			symbol   TEXT NOT NULL,
			date     TEXT NOT NULL,
			px_start REAL NOT NULL DEFAULT 0,
			px_end   REAL NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS ticks (
			session_id  TEXT    NOT NULL,
			seq         INTEGER NOT NULL,
			adjusted_ts REAL    NOT NULL,
			bid_price   REAL    NOT NULL,
			ask_price   REAL    NOT NULL,
			bid_size    REAL    NOT NULL,
			ask_size    REAL    NOT NULL,
			ts          REAL    NOT NULL,
			PRIMARY KEY (session_id, seq)
		);

		CREATE TABLE IF NOT EXISTS l2_entries (
			session_id   TEXT    NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			entry_type   INTEGER NOT NULL,
			exchange     TEXT    NOT NULL,
			price        REAL    NOT NULL,
			size         REAL    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_l2_session_ts
			ON l2_entries (session_id, timestamp_ms);
	`)
	return err
}

// WriteSession stores a full session (metadata, ticks, depth rows) in one
// transaction, replacing any prior copy of the same session ID.
func (w *Writer) WriteSession(info model.SessionInfo, data *model.SessionData) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM ticks WHERE session_id = ?`,
		`DELETE FROM l2_entries WHERE session_id = ?`,
	} {
		if _, err := tx.Exec(stmt, info.ID); err != nil {
			return fmt.Errorf("sqlite clear session: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO sessions (id, symbol, date, px_start, px_end)
		VALUES (?, ?, ?, ?, ?)
	`, info.ID, info.Symbol, info.Date, info.PxStart, info.PxEnd); err != nil {
		return fmt.Errorf("sqlite insert session: %w", err)
	}

	tickStmt, err := tx.Prepare(`
		INSERT INTO ticks (session_id, seq, adjusted_ts, bid_price, ask_price, bid_size, ask_size, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare ticks: %w", err)
	}
	defer tickStmt.Close()
	for i, t := range data.Ticks {
		if _, err := tickStmt.Exec(info.ID, i, t.AdjustedTS, t.BidPrice, t.AskPrice, t.BidSize, t.AskSize, t.Timestamp); err != nil {
			return fmt.Errorf("sqlite insert tick %d: %w", i, err)
		}
	}

	l2Stmt, err := tx.Prepare(`
		INSERT INTO l2_entries (session_id, timestamp_ms, entry_type, exchange, price, size)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare l2: %w", err)
	}
	defer l2Stmt.Close()
	for i, e := range data.Depth {
		if _, err := l2Stmt.Exec(info.ID, e.TimestampMS, e.EntryType, e.Exchange, e.Price, e.Size); err != nil {
			return fmt.Errorf("sqlite insert l2 entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	log.Printf("[sqlite] stored session %s: %d ticks, %d depth rows",
		info.ID, len(data.Ticks), len(data.Depth))
	return nil
}

// Close closes the writer.
func (w *Writer) Close() error {
	return w.db.Close()
}
