// Package replay wires the playback scheduler, position ledger, and
// order-book synthesizer around one shared current-quote pulse. Each
// emitted tick becomes a normalized quote that marks the ledger to market
// and produces a book snapshot; the combined event fans out to
// subscribers (WebSocket gateway, Redis publisher, batch runner).
package replay

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"tickreplay/internal/book"
	"tickreplay/internal/ledger"
	"tickreplay/internal/metrics"
	"tickreplay/internal/model"
	"tickreplay/internal/player"
)

// Speeds are the recognized playback multipliers.
var Speeds = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 50, 100}

// Timeframes are the recognized chart grouping values in seconds. They are
// informational to the engine and surfaced to consumers in the init event.
var Timeframes = []int{1, 5, 10, 15, 30, 60, 300, 900}

// Depth setting bounds.
const (
	MinDepth     = 5
	MaxDepth     = 30
	DefaultDepth = 15
)

// DefaultTradeSize is the share count consumers preselect for market orders.
const DefaultTradeSize = 100

// SpeedRecognized reports whether v is one of the supported multipliers.
func SpeedRecognized(v float64) bool {
	for _, s := range Speeds {
		if s == v {
			return true
		}
	}
	return false
}

// ClampDepth bounds a depth setting to the supported range.
func ClampDepth(d int) int {
	if d < MinDepth {
		return MinDepth
	}
	if d > MaxDepth {
		return MaxDepth
	}
	return d
}

// Config configures an Engine.
type Config struct {
	Depth int   // order book levels per side, clamped to [5, 30]
	Seed  int64 // book randomness seed, 0 = time-seeded
}

// Engine owns one replay session at a time.
type Engine struct {
	loader model.SessionLoader
	pub    model.EventPublisher // optional
	met    *metrics.Metrics     // optional

	player *player.Player
	ledger *ledger.Ledger
	book   *book.Synthesizer

	mu        sync.Mutex
	sessionID string
	depthRows []model.L2Entry
	depth     int
	lastQuote *model.Quote

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New creates an Engine driving the given frame loop. pub and met may be
// nil when the engine runs without Redis distribution or metrics (batch
// mode).
func New(loop player.FrameLoop, loader model.SessionLoader, pub model.EventPublisher, met *metrics.Metrics, cfg Config) *Engine {
	var rng *rand.Rand
	if cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}

	e := &Engine{
		loader: loader,
		pub:    pub,
		met:    met,
		ledger: ledger.New(),
		book:   book.New(rng),
		depth:  ClampDepth(cfg.Depth),
		subs:   make(map[chan Event]struct{}),
	}
	e.player = player.New(loop, player.Callbacks{
		OnTick: e.onTick,
		OnInit: e.onInit,
		OnEnd:  e.onEnd,
	})
	return e
}

// Subscribe registers an event channel with the given buffer. Events are
// dropped for a subscriber whose channel is full, so a slow consumer never
// stalls the pacing loop. The returned func unsubscribes and closes the
// channel.
func (e *Engine) Subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	e.subMu.Lock()
	e.subs[ch] = struct{}{}
	e.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, ch)
			e.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (e *Engine) broadcast(ev Event) {
	e.subMu.Lock()
	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
			if e.met != nil {
				e.met.EventsDropped.Inc()
			}
		}
	}
	e.subMu.Unlock()
}

// Play loads the session through the external loader and starts playback.
// A loader failure is surfaced verbatim; the scheduler lands in Error with
// no dangling frame and no partial state.
func (e *Engine) Play(ctx context.Context, sessionID string) error {
	e.player.MarkLoading()
	e.broadcast(e.statusEvent())

	data, err := e.loader.LoadSessionData(ctx, sessionID)
	if err != nil {
		e.player.MarkError()
		if e.met != nil {
			e.met.LoadFailures.Inc()
		}
		ev := e.statusEvent()
		ev.Error = err.Error()
		e.broadcast(ev)
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}

	e.mu.Lock()
	e.sessionID = sessionID
	e.depthRows = data.Depth
	e.lastQuote = nil
	e.mu.Unlock()

	// A restarted session starts from a clean ledger and book cache.
	e.ledger.Reset()
	e.book.Reset()

	if e.met != nil {
		e.met.SessionsLoaded.Inc()
	}
	log.Printf("[replay] session %s: %d ticks, %d depth rows",
		sessionID, len(data.Ticks), len(data.Depth))

	e.player.Load(sessionID, data.Ticks)
	return nil
}

// Pause suspends the pacing loop without touching the cursor.
func (e *Engine) Pause() {
	e.player.Pause()
	e.broadcast(e.statusEvent())
}

// Resume continues a paused replay.
func (e *Engine) Resume() {
	e.player.Resume()
	e.broadcast(e.statusEvent())
}

// Stop cancels playback and returns to Idle.
func (e *Engine) Stop() {
	e.player.Stop()
	e.broadcast(e.statusEvent())
}

// SetSpeed applies a recognized playback multiplier.
func (e *Engine) SetSpeed(v float64) error {
	if !SpeedRecognized(v) {
		return fmt.Errorf("unrecognized speed %v", v)
	}
	e.player.ChangeSpeed(v)
	if e.met != nil {
		e.met.ReplaySpeed.Set(v)
	}
	e.broadcast(e.statusEvent())
	return nil
}

// SetDepth changes the synthesized book depth, clamped to [5, 30].
func (e *Engine) SetDepth(d int) {
	e.mu.Lock()
	e.depth = ClampDepth(d)
	e.mu.Unlock()
}

// Depth returns the current book depth setting.
func (e *Engine) Depth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.depth
}

// Buy executes a market buy of qty at the current ask.
func (e *Engine) Buy(qty float64) (model.Trade, error) {
	return e.trade(model.SideBuy, qty)
}

// Sell executes a market sell of qty at the current bid.
func (e *Engine) Sell(qty float64) (model.Trade, error) {
	return e.trade(model.SideSell, qty)
}

func (e *Engine) trade(side string, qty float64) (model.Trade, error) {
	if qty <= 0 {
		return model.Trade{}, fmt.Errorf("quantity must be positive, got %v", qty)
	}

	e.mu.Lock()
	q := e.lastQuote
	sessionID := e.sessionID
	e.mu.Unlock()
	if q == nil {
		return model.Trade{}, fmt.Errorf("no active quote")
	}

	var trade model.Trade
	if side == model.SideBuy {
		trade = e.ledger.Buy(qty, q.Ask)
	} else {
		trade = e.ledger.Sell(qty, q.Bid)
	}
	if e.met != nil {
		e.met.TradesTotal.WithLabelValues(side).Inc()
	}

	sum := e.ledger.Summary()
	ev := Event{
		Type:      EventTrade,
		SessionID: sessionID,
		Trade:     &trade,
		Summary:   &sum,
		Progress:  e.player.Progress(),
	}
	e.broadcast(ev)
	if e.pub != nil {
		e.pub.PublishSummary(context.Background(), sessionID, sum)
	}
	return trade, nil
}

// Ledger exposes the session ledger for read access.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Player exposes the playback scheduler for read access.
func (e *Engine) Player() *player.Player { return e.player }

// Status returns a status event describing the current scheduler state.
func (e *Engine) Status() Event { return e.statusEvent() }

func (e *Engine) statusEvent() Event {
	e.mu.Lock()
	sessionID := e.sessionID
	e.mu.Unlock()
	return Event{
		Type:      EventStatus,
		SessionID: sessionID,
		State:     e.player.State().String(),
		Progress:  e.player.Progress(),
		Speed:     e.player.Speed(),
	}
}

// onInit relays session metadata once the tick array is installed.
func (e *Engine) onInit(meta model.SessionMeta) {
	e.broadcast(Event{
		Type:       EventInit,
		SessionID:  meta.SessionID,
		Meta:       &meta,
		Timeframes: Timeframes,
		Speed:      e.player.Speed(),
		State:      player.StatePlaying.String(),
	})
}

// onTick is the per-quote pulse: normalize, mark to market, snapshot the
// book, fan out.
func (e *Engine) onTick(tick model.TickRecord) {
	start := time.Now()

	q := model.QuoteFromTick(tick)
	e.ledger.UpdateCurrentPrice(q)

	e.mu.Lock()
	e.lastQuote = &q
	depthRows := e.depthRows
	depth := e.depth
	sessionID := e.sessionID
	e.mu.Unlock()

	snap, src := e.book.SnapshotSource(q, depthRows, depth)
	colors := book.Colors(snap)
	sum := e.ledger.Summary()
	progress := e.player.Progress()

	if e.met != nil {
		e.met.TicksEmitted.Inc()
		e.met.BookSnapshots.WithLabelValues(src.String()).Inc()
		if src == book.SourceForwardFill {
			e.met.ForwardFills.Inc()
		}
		e.met.ReplayProgress.Set(progress)
		e.met.TickEmitDur.Observe(time.Since(start).Seconds())
	}

	e.broadcast(Event{
		Type:      EventQuote,
		SessionID: sessionID,
		Quote:     &q,
		Book:      &snap,
		Colors:    &colors,
		Summary:   &sum,
		Progress:  progress,
		RealDepth: src != book.SourceGenerated,
	})

	if e.pub != nil {
		ctx := context.Background()
		e.pub.PublishQuote(ctx, sessionID, q)
		e.pub.PublishBook(ctx, sessionID, snap)
		e.pub.PublishSummary(ctx, sessionID, sum)
	}
}

// onEnd relays playback completion.
func (e *Engine) onEnd() {
	if e.met != nil {
		e.met.SessionsEnded.Inc()
		e.met.ReplayProgress.Set(0)
	}
	e.mu.Lock()
	sessionID := e.sessionID
	e.mu.Unlock()
	log.Printf("[replay] session %s: playback completed", sessionID)
	e.broadcast(Event{
		Type:      EventEnd,
		SessionID: sessionID,
		State:     player.StateCompleted.String(),
	})
}
