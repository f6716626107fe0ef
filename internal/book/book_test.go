package book

import (
	"math/rand"
	"testing"

	"tickreplay/internal/model"
)

func seeded() *Synthesizer {
	return New(rand.New(rand.NewSource(42)))
}

func testQuote(t float64) model.Quote {
	return model.Quote{T: t, Bid: 10.00, Ask: 10.02, BidSize: 200, AskSize: 300}
}

func depthAt(ms int64) []model.L2Entry {
	return []model.L2Entry{
		{TimestampMS: ms, EntryType: model.EntryTypeBid, Exchange: "NSDQ", Price: 9.99, Size: 400},
		{TimestampMS: ms, EntryType: model.EntryTypeBid, Exchange: "NYSE", Price: 10.00, Size: 100},
		{TimestampMS: ms, EntryType: model.EntryTypeAsk, Exchange: "ARCA", Price: 10.02, Size: 250},
		{TimestampMS: ms, EntryType: model.EntryTypeAsk, Exchange: "EDGX", Price: 10.01, Size: 150},
	}
}

func TestSnapshot_RealDepthSorted(t *testing.T) {
	s := seeded()
	snap := s.Snapshot(testQuote(0.9), depthAt(900), 15)

	if len(snap.Bids) != 2 || len(snap.Asks) != 2 {
		t.Fatalf("expected 2x2 levels, got %dx%d", len(snap.Bids), len(snap.Asks))
	}
	if snap.Bids[0].Price != 10.00 || snap.Bids[1].Price != 9.99 {
		t.Errorf("bids not descending: %+v", snap.Bids)
	}
	if snap.Asks[0].Price != 10.01 || snap.Asks[1].Price != 10.02 {
		t.Errorf("asks not ascending: %+v", snap.Asks)
	}
	if snap.Bids[0].Maker != "NYSE" || snap.Asks[0].Maker != "EDGX" {
		t.Errorf("maker mapping wrong: %+v / %+v", snap.Bids[0], snap.Asks[0])
	}
	if _, src := s.SnapshotSource(testQuote(0.9), depthAt(900), 15); src != SourceReal {
		t.Errorf("source = %v, want real", src)
	}
}

func TestSnapshot_WindowEdges(t *testing.T) {
	s := seeded()

	// 1000ms quote vs 900ms rows: exactly at the ±100ms boundary, inside.
	snap := s.Snapshot(testQuote(1.0), depthAt(900), 15)
	if len(snap.Bids) != 2 {
		t.Fatalf("boundary match failed, bids=%d", len(snap.Bids))
	}

	// Fresh synthesizer, rows 101ms away: outside the window, nothing
	// cached, so the book is generated at the requested depth.
	s2 := seeded()
	snap = s2.Snapshot(testQuote(1.001), depthAt(900), 15)
	if len(snap.Bids) != 15 || len(snap.Asks) != 15 {
		t.Fatalf("expected generated 15x15 book, got %dx%d", len(snap.Bids), len(snap.Asks))
	}
}

func TestSnapshot_ForwardFill(t *testing.T) {
	s := seeded()
	depth := depthAt(900)

	first := s.Snapshot(testQuote(0.9), depth, 15)
	if len(first.Bids) != 2 {
		t.Fatalf("setup: no real match")
	}

	// Quote at t=1.5s has no rows in window; the 900ms snapshot is
	// forward-filled rather than returning an empty or generated book.
	filled := s.Snapshot(testQuote(1.5), depth, 15)
	if len(filled.Bids) != 2 || len(filled.Asks) != 2 {
		t.Fatalf("forward-fill lost levels: %dx%d", len(filled.Bids), len(filled.Asks))
	}
	if filled.Bids[0] != first.Bids[0] {
		t.Errorf("forward-filled snapshot differs from cached one")
	}
	if _, src := s.SnapshotSource(testQuote(1.5), depth, 15); src != SourceForwardFill {
		t.Errorf("source = %v, want forward_fill", src)
	}
}

func TestSnapshot_ResetClearsForwardFill(t *testing.T) {
	s := seeded()
	depth := depthAt(900)
	s.Snapshot(testQuote(0.9), depth, 15)
	s.Reset()

	snap := s.Snapshot(testQuote(1.5), depth, 5)
	if len(snap.Bids) != 5 {
		t.Fatalf("expected generated book after reset, got %d bids", len(snap.Bids))
	}
}

func TestSnapshot_GeneratedLevels(t *testing.T) {
	s := seeded()
	q := testQuote(1.0)
	snap := s.Snapshot(q, nil, 10)

	if len(snap.Bids) != 10 || len(snap.Asks) != 10 {
		t.Fatalf("expected 10x10 book, got %dx%d", len(snap.Bids), len(snap.Asks))
	}

	// Level 0 carries the quote's own price and size.
	if snap.Bids[0].Price != q.Bid || snap.Bids[0].Size != q.BidSize {
		t.Errorf("bid level 0 = %+v, want quote values", snap.Bids[0])
	}
	if snap.Asks[0].Price != q.Ask || snap.Asks[0].Size != q.AskSize {
		t.Errorf("ask level 0 = %+v, want quote values", snap.Asks[0])
	}

	seenBid := map[string]bool{}
	seenAsk := map[string]bool{}
	for i := 1; i < 10; i++ {
		wantBid := q.Bid - float64(i)*0.01
		wantAsk := q.Ask + float64(i)*0.01
		if diff := snap.Bids[i].Price - wantBid; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("bid[%d].Price = %v, want %v", i, snap.Bids[i].Price, wantBid)
		}
		if diff := snap.Asks[i].Price - wantAsk; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("ask[%d].Price = %v, want %v", i, snap.Asks[i].Price, wantAsk)
		}
		for _, size := range []float64{snap.Bids[i].Size, snap.Asks[i].Size} {
			if size < 100 || size > 1000 || int(size)%100 != 0 {
				t.Errorf("level %d size %v not a multiple of 100 in [100,1000]", i, size)
			}
		}
	}
	for i := 0; i < 10; i++ {
		if seenBid[snap.Bids[i].Maker] {
			t.Errorf("bid exchange %s reused on same side", snap.Bids[i].Maker)
		}
		if seenAsk[snap.Asks[i].Maker] {
			t.Errorf("ask exchange %s reused on same side", snap.Asks[i].Maker)
		}
		seenBid[snap.Bids[i].Maker] = true
		seenAsk[snap.Asks[i].Maker] = true
	}
}

func TestSnapshot_DefaultSizeWhenQuoteHasNone(t *testing.T) {
	s := seeded()
	snap := s.Snapshot(model.Quote{Bid: 10.00, Ask: 10.02}, nil, 5)
	if snap.Bids[0].Size != 100 || snap.Asks[0].Size != 100 {
		t.Errorf("level 0 default size = %v/%v, want 100/100",
			snap.Bids[0].Size, snap.Asks[0].Size)
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	a := New(rand.New(rand.NewSource(7)))
	b := New(rand.New(rand.NewSource(7)))
	q := testQuote(1.0)

	sa := a.Snapshot(q, nil, 8)
	sb := b.Snapshot(q, nil, 8)
	for i := range sa.Bids {
		if sa.Bids[i] != sb.Bids[i] || sa.Asks[i] != sb.Asks[i] {
			t.Fatalf("same seed produced different books at level %d", i)
		}
	}
}

func TestColors_RanksDistinctPrices(t *testing.T) {
	snap := model.OrderBookSnapshot{
		Bids: []model.BookLevel{
			{Maker: "NSDQ", Price: 10.00, Size: 100},
			{Maker: "NYSE", Price: 10.00, Size: 200}, // same price, same rank
			{Maker: "ARCA", Price: 9.99, Size: 100},
			{Maker: "BATS", Price: 9.98, Size: 100},
			{Maker: "EDGX", Price: 9.97, Size: 100},
			{Maker: "MEMX", Price: 9.96, Size: 100},
			{Maker: "IEXG", Price: 9.95, Size: 100},
		},
		Asks: []model.BookLevel{
			{Maker: "NSDQ", Price: 10.02, Size: 100},
			{Maker: "NYSE", Price: 10.03, Size: 100},
		},
	}

	cm := Colors(snap)
	if got := cm.Bids[PriceKey(10.00)]; got != "#57fe01" {
		t.Errorf("best bid color = %s, want green", got)
	}
	if got := cm.Bids[PriceKey(9.99)]; got != "#fd807f" {
		t.Errorf("2nd bid color = %s, want pink", got)
	}
	// Ranks past the palette cap at grey.
	if got := cm.Bids[PriceKey(9.96)]; got != "#c1c1c1" {
		t.Errorf("6th bid color = %s, want grey", got)
	}
	if got := cm.Bids[PriceKey(9.95)]; got != "#c1c1c1" {
		t.Errorf("7th bid color = %s, want grey", got)
	}
	if got := cm.Asks[PriceKey(10.02)]; got != "#57fe01" {
		t.Errorf("best ask color = %s, want green", got)
	}
	if len(cm.Bids) != 6 {
		t.Errorf("expected 6 distinct bid prices, got %d", len(cm.Bids))
	}
}
