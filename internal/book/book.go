// Package book synthesizes a multi-level order-book view per quote. Real
// Level 2 depth data is preferred, matched against the quote time with
// forward-fill; without it a randomized book is generated from a weighted
// venue distribution.
package book

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"tickreplay/internal/model"
)

// matchWindowMS is the tolerance when matching L2 rows to a quote time.
const matchWindowMS = 100

// fallbackSize is used for level 0 when the quote carries no size.
const fallbackSize = 100

// maxDrawAttempts caps exchange re-draws before the synthetic placeholder.
const maxDrawAttempts = 100

type exchangeWeight struct {
	Name   string
	Weight float64
}

// Relative venue participation, weights summing to ~100.
var exchanges = []exchangeWeight{
	{"NSDQ", 28.03},
	{"NYSE", 23.86},
	{"ARCA", 14.91},
	{"AMEX", 1.19},
	{"BATS", 6.94},
	{"BATY", 1.37},
	{"EDGX", 5.67},
	{"EDGA", 0.91},
	{"MEMX", 8.95},
	{"IEXG", 5.57},
	{"MIAX", 2.58},
	{"LTSE", 0.02},
	{"PHLX", 0.00},
	{"BOSX", 0.00},
}

// Synthesizer builds OrderBookSnapshots. It caches the last non-empty L2
// snapshot for forward-fill when a quote falls in a depth gap.
type Synthesizer struct {
	mu    sync.Mutex
	rng   *rand.Rand
	cum   []float64
	total float64
	last  *model.OrderBookSnapshot
}

// New creates a Synthesizer. rng may be nil, in which case a time-seeded
// source is used; tests pass a fixed seed for determinism.
func New(rng *rand.Rand) *Synthesizer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	s := &Synthesizer{rng: rng}
	for _, e := range exchanges {
		s.total += e.Weight
		s.cum = append(s.cum, s.total)
	}
	return s
}

// Reset clears the forward-fill cache. Called when a session restarts.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
}

// Source tells where a snapshot came from.
type Source int

const (
	// SourceGenerated marks a synthetic randomized book.
	SourceGenerated Source = iota
	// SourceReal marks a direct L2 window match.
	SourceReal
	// SourceForwardFill marks the cached last-known L2 snapshot.
	SourceForwardFill
)

func (s Source) String() string {
	switch s {
	case SourceReal:
		return "real"
	case SourceForwardFill:
		return "forward_fill"
	}
	return "generated"
}

// Snapshot produces the depth view for the given quote. With depth data it
// selects rows within ±100 ms of the quote time, forward-filling from the
// last non-empty match; otherwise it synthesizes `levels` rows per side.
func (s *Synthesizer) Snapshot(q model.Quote, depth []model.L2Entry, levels int) model.OrderBookSnapshot {
	snap, _ := s.SnapshotSource(q, depth, levels)
	return snap
}

// SnapshotSource is Snapshot plus the origin of the returned book.
func (s *Synthesizer) SnapshotSource(q model.Quote, depth []model.L2Entry, levels int) (model.OrderBookSnapshot, Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(depth) > 0 {
		snap, src := s.matchDepthLocked(q, depth)
		if snap != nil && !snap.Empty() {
			return *snap, src
		}
	}
	return s.generateLocked(q, levels), SourceGenerated
}

// matchDepthLocked returns the windowed L2 snapshot for q, or the cached
// one when no rows match. Caller holds s.mu.
func (s *Synthesizer) matchDepthLocked(q model.Quote, depth []model.L2Entry) (*model.OrderBookSnapshot, Source) {
	quoteMS := int64(q.T * 1000)

	var bids, asks []model.BookLevel
	for _, e := range depth {
		d := e.TimestampMS - quoteMS
		if d < -matchWindowMS || d > matchWindowMS {
			continue
		}
		level := model.BookLevel{Maker: e.Exchange, Price: e.Price, Size: e.Size}
		switch e.EntryType {
		case model.EntryTypeBid:
			bids = append(bids, level)
		case model.EntryTypeAsk:
			asks = append(asks, level)
		}
	}

	if len(bids) == 0 && len(asks) == 0 {
		// Depth gap: forward-fill from the last known snapshot.
		return s.last, SourceForwardFill
	}

	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	snap := &model.OrderBookSnapshot{Bids: bids, Asks: asks}
	s.last = snap
	return snap, SourceReal
}

// generateLocked synthesizes `levels` rows per side around the quote.
// Level 0 uses the quote's own price and size; deeper levels step by one
// cent with randomized sizes and weighted-random venues. Caller holds s.mu.
func (s *Synthesizer) generateLocked(q model.Quote, levels int) model.OrderBookSnapshot {
	snap := model.OrderBookSnapshot{
		Bids: make([]model.BookLevel, 0, levels),
		Asks: make([]model.BookLevel, 0, levels),
	}

	usedBid := make(map[string]bool, levels)
	usedAsk := make(map[string]bool, levels)

	for i := 0; i < levels; i++ {
		bid := model.BookLevel{Maker: s.drawExchangeLocked(usedBid, i)}
		if i == 0 {
			bid.Price = q.Bid
			bid.Size = q.BidSize
			if bid.Size == 0 {
				bid.Size = fallbackSize
			}
		} else {
			bid.Price = q.Bid - float64(i)*0.01
			bid.Size = s.drawSizeLocked()
		}
		snap.Bids = append(snap.Bids, bid)

		ask := model.BookLevel{Maker: s.drawExchangeLocked(usedAsk, i)}
		if i == 0 {
			ask.Price = q.Ask
			ask.Size = q.AskSize
			if ask.Size == 0 {
				ask.Size = fallbackSize
			}
		} else {
			ask.Price = q.Ask + float64(i)*0.01
			ask.Size = s.drawSizeLocked()
		}
		snap.Asks = append(snap.Asks, ask)
	}
	return snap
}

// drawSizeLocked returns a uniformly random multiple of 100 in [100, 1000].
func (s *Synthesizer) drawSizeLocked() float64 {
	return float64(s.rng.Intn(10)+1) * 100
}

// drawExchangeLocked samples a venue by cumulative weight, re-drawing to
// avoid reusing one already chosen on the same side of this snapshot. After
// the attempt cap, a synthetic placeholder code is used.
func (s *Synthesizer) drawExchangeLocked(used map[string]bool, level int) string {
	name := ""
	for attempts := 0; ; attempts++ {
		name = s.sampleLocked()
		if !used[name] {
			break
		}
		if attempts >= maxDrawAttempts {
			name = fmt.Sprintf("MKT%d", level)
			break
		}
	}
	used[name] = true
	return name
}

func (s *Synthesizer) sampleLocked() string {
	r := s.rng.Float64() * s.total
	for i, c := range s.cum {
		if r <= c {
			return exchanges[i].Name
		}
	}
	return exchanges[0].Name
}
