// cmd/tickgen writes a synthetic session into the SQLite store: a
// random-walk quote stream, optionally with matching L2 depth rows, so
// the replay service has data to play without a recorded capture.
//
// Usage:
//
//	go run ./cmd/tickgen -db=data/sessions.db -symbol=AAPL -date=2024-01-05 -ticks=5000
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"tickreplay/internal/model"
	sqlitestore "tickreplay/internal/store/sqlite"
)

// venues used for generated depth rows.
var venues = []string{"NSDQ", "NYSE", "ARCA", "BATS", "EDGX", "MEMX", "IEXG"}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	dbPath := flag.String("db", "data/sessions.db", "Path to SQLite database")
	symbol := flag.String("symbol", "AAPL", "Ticker symbol")
	date := flag.String("date", time.Now().Format("2006-01-02"), "Session date (YYYY-MM-DD)")
	ticks := flag.Int("ticks", 5000, "Number of quote ticks to generate")
	startPx := flag.Float64("px", 100.0, "Starting price")
	spreadBps := flag.Float64("spread", 2, "Quoted spread in basis points")
	l2Every := flag.Int("l2-every", 3, "Generate L2 rows for every Nth tick (0=none)")
	levels := flag.Int("levels", 15, "L2 levels per side")
	seed := flag.Int64("seed", 0, "RNG seed (0=time-based)")
	flag.Parse()

	if *ticks <= 0 {
		log.Fatal("[tickgen] -ticks must be positive")
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(s))

	sessionStart, err := time.Parse("2006-01-02", *date)
	if err != nil {
		log.Fatalf("[tickgen] bad -date: %v", err)
	}
	// Open at 09:30 local exchange time
	sessionStart = sessionStart.Add(9*time.Hour + 30*time.Minute)

	data := generate(rng, *ticks, *startPx, *spreadBps, *l2Every, *levels, float64(sessionStart.Unix()))

	sessionID := fmt.Sprintf("%s-%s", *symbol, *date)
	info := model.SessionInfo{
		ID:      sessionID,
		Symbol:  *symbol,
		Date:    *date,
		PxStart: mid(data.Ticks[0]),
		PxEnd:   mid(data.Ticks[len(data.Ticks)-1]),
	}

	os.MkdirAll(filepath.Dir(*dbPath), 0o755)
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath})
	if err != nil {
		log.Fatalf("[tickgen] sqlite open failed: %v", err)
	}
	defer writer.Close()

	if err := writer.WriteSession(info, data); err != nil {
		log.Fatalf("[tickgen] write failed: %v", err)
	}

	span := data.Ticks[len(data.Ticks)-1].AdjustedTS - data.Ticks[0].AdjustedTS
	log.Printf("[tickgen] wrote session %s: %d ticks, %d L2 rows, %.0fs span, %.4f -> %.4f",
		sessionID, len(data.Ticks), len(data.Depth), span, info.PxStart, info.PxEnd)
}

func mid(t model.TickRecord) float64 {
	return (t.BidPrice + t.AskPrice) / 2
}

// generate builds the random-walk quote stream. Depth rows share the
// tick's millisecond timestamp so the synthesizer matches them.
func generate(rng *rand.Rand, n int, startPx, spreadBps float64, l2Every, levels int, epochStart float64) *model.SessionData {
	data := &model.SessionData{
		Ticks: make([]model.TickRecord, 0, n),
	}

	px := startPx
	adj := 0.0
	for i := 0; i < n; i++ {
		// 50ms to 2s between quotes
		adj += 0.05 + rng.Float64()*1.95

		// Walk the mid ±0.05% per tick
		pct := (rng.Float64()*0.1 - 0.05) / 100.0
		px += px * pct
		if px < 1 {
			px = 1
		}

		spread := px * spreadBps / 10000.0
		if spread < 0.01 {
			spread = 0.01
		}

		tick := model.TickRecord{
			AdjustedTS: adj,
			BidPrice:   px - spread/2,
			AskPrice:   px + spread/2,
			BidSize:    float64((rng.Intn(10) + 1) * 100),
			AskSize:    float64((rng.Intn(10) + 1) * 100),
			Timestamp:  epochStart + adj,
		}
		data.Ticks = append(data.Ticks, tick)

		if l2Every > 0 && i%l2Every == 0 {
			data.Depth = append(data.Depth, depthRows(rng, tick, levels)...)
		}
	}

	return data
}

func depthRows(rng *rand.Rand, tick model.TickRecord, levels int) []model.L2Entry {
	tsMS := int64(tick.AdjustedTS * 1000)
	rows := make([]model.L2Entry, 0, levels*2)
	for i := 0; i < levels; i++ {
		rows = append(rows, model.L2Entry{
			TimestampMS: tsMS,
			EntryType:   model.EntryTypeBid,
			Exchange:    venues[rng.Intn(len(venues))],
			Price:       tick.BidPrice - float64(i)*0.01,
			Size:        float64((rng.Intn(10) + 1) * 100),
		})
		rows = append(rows, model.L2Entry{
			TimestampMS: tsMS,
			EntryType:   model.EntryTypeAsk,
			Exchange:    venues[rng.Intn(len(venues))],
			Price:       tick.AskPrice + float64(i)*0.01,
			Size:        float64((rng.Intn(10) + 1) * 100),
		})
	}
	return rows
}
