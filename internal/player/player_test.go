package player

import (
	"testing"
	"time"

	"tickreplay/internal/model"
)

func testTicks() []model.TickRecord {
	return []model.TickRecord{
		{AdjustedTS: 100.00, BidPrice: 9.99, AskPrice: 10.01, BidSize: 200, AskSize: 300, Timestamp: 1000},
		{AdjustedTS: 100.05, BidPrice: 10.00, AskPrice: 10.02, BidSize: 100, AskSize: 100, Timestamp: 1001},
		{AdjustedTS: 100.15, BidPrice: 10.01, AskPrice: 10.03, BidSize: 400, AskSize: 200, Timestamp: 1002},
	}
}

// harness wires a Player to a ManualLoop and records emissions.
type harness struct {
	loop   *ManualLoop
	player *Player
	ticks  []model.TickRecord
	metas  []model.SessionMeta
	ends   int
}

func newHarness() *harness {
	h := &harness{loop: &ManualLoop{}}
	h.player = New(h.loop, Callbacks{
		OnTick: func(t model.TickRecord) { h.ticks = append(h.ticks, t) },
		OnInit: func(m model.SessionMeta) { h.metas = append(h.metas, m) },
		OnEnd:  func() { h.ends++ },
	})
	return h
}

func TestPlayer_InitMeta(t *testing.T) {
	h := newHarness()
	h.player.Load("TSLA-2024-03-08", testTicks())

	if len(h.metas) != 1 {
		t.Fatalf("expected 1 OnInit, got %d", len(h.metas))
	}
	m := h.metas[0]
	if m.Symbol != "TSLA" {
		t.Errorf("symbol = %q, want TSLA", m.Symbol)
	}
	if m.TotalTicks != 3 {
		t.Errorf("total_ticks = %d, want 3", m.TotalTicks)
	}
	if m.StartTime != 1000 || m.EndTime != 1002 {
		t.Errorf("start/end = %v/%v, want 1000/1002", m.StartTime, m.EndTime)
	}
	if h.player.State() != StatePlaying {
		t.Errorf("state = %v, want playing", h.player.State())
	}
}

func TestPlayer_PacesBySourceDeltas(t *testing.T) {
	h := newHarness()
	base := time.Unix(1700000000, 0)

	h.player.Load("AAPL-x", testTicks())

	// First frame anchors the clock; deltas are 50ms then 100ms at 1x.
	h.loop.Step(base)
	if len(h.ticks) != 0 {
		t.Fatalf("tick emitted on anchor frame")
	}
	h.loop.Step(base.Add(49 * time.Millisecond))
	if len(h.ticks) != 0 {
		t.Fatalf("tick emitted before delay elapsed")
	}
	h.loop.Step(base.Add(50 * time.Millisecond))
	if len(h.ticks) != 1 {
		t.Fatalf("expected 1 tick after 50ms, got %d", len(h.ticks))
	}
	h.loop.Step(base.Add(149 * time.Millisecond))
	if len(h.ticks) != 1 {
		t.Fatalf("second tick emitted before its 100ms delay")
	}
	h.loop.Step(base.Add(150 * time.Millisecond))
	if len(h.ticks) != 2 {
		t.Fatalf("expected 2 ticks after 150ms, got %d", len(h.ticks))
	}
	// Last record has no successor: default 10ms pace.
	h.loop.Step(base.Add(160 * time.Millisecond))
	if len(h.ticks) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(h.ticks))
	}

	// One more frame completes playback and resets progress.
	h.loop.Step(base.Add(161 * time.Millisecond))
	if h.ends != 1 {
		t.Errorf("expected OnEnd once, got %d", h.ends)
	}
	if h.player.State() != StateCompleted {
		t.Errorf("state = %v, want completed", h.player.State())
	}
	if h.player.Progress() != 0 {
		t.Errorf("progress = %v, want 0 after completion", h.player.Progress())
	}
	if h.loop.Pending() {
		t.Errorf("frame still scheduled after completion")
	}
}

func TestPlayer_SpeedScalesDelay(t *testing.T) {
	h := newHarness()
	base := time.Unix(1700000000, 0)

	h.player.Load("AAPL-x", testTicks())
	h.player.ChangeSpeed(10)

	h.loop.Step(base)
	// 50ms source delta at 10x = 5ms.
	h.loop.Step(base.Add(4 * time.Millisecond))
	if len(h.ticks) != 0 {
		t.Fatalf("tick emitted before scaled delay")
	}
	h.loop.Step(base.Add(5 * time.Millisecond))
	if len(h.ticks) != 1 {
		t.Fatalf("expected 1 tick at 10x after 5ms, got %d", len(h.ticks))
	}
}

func TestPlayer_OneTickPerFrame(t *testing.T) {
	h := newHarness()
	base := time.Unix(1700000000, 0)

	h.player.Load("AAPL-x", testTicks())
	h.loop.Step(base)

	// A very slow frame covers every remaining delay, but the cursor must
	// advance by exactly one tick per invocation (no silent catch-up).
	h.loop.Step(base.Add(10 * time.Second))
	if len(h.ticks) != 1 {
		t.Fatalf("expected 1 tick on slow frame, got %d", len(h.ticks))
	}
}

func TestPlayer_PauseResume(t *testing.T) {
	h := newHarness()
	base := time.Unix(1700000000, 0)

	h.player.Load("AAPL-x", testTicks())
	h.loop.Step(base)
	h.loop.Step(base.Add(50 * time.Millisecond))
	if len(h.ticks) != 1 {
		t.Fatalf("setup: expected 1 tick, got %d", len(h.ticks))
	}

	h.player.Pause()
	if h.loop.Pending() {
		t.Fatalf("pause left a scheduled frame")
	}
	if h.player.State() != StatePaused {
		t.Errorf("state = %v, want paused", h.player.State())
	}
	if got := h.player.Progress(); got == 0 {
		t.Errorf("pause reset progress to 0")
	}

	// Resume long after: the cleared anchor prevents a catch-up burst
	// covering the paused interval.
	h.player.Resume()
	h.loop.Step(base.Add(time.Hour))
	if len(h.ticks) != 1 {
		t.Fatalf("resume emitted a catch-up tick, got %d total", len(h.ticks))
	}
	h.loop.Step(base.Add(time.Hour + 100*time.Millisecond))
	if len(h.ticks) != 2 {
		t.Fatalf("expected 2 ticks after resume interval, got %d", len(h.ticks))
	}
}

func TestPlayer_ResumeOnlyWhenPaused(t *testing.T) {
	h := newHarness()
	h.player.Resume()
	if h.player.State() != StateIdle {
		t.Errorf("resume from idle changed state to %v", h.player.State())
	}
}

func TestPlayer_Stop(t *testing.T) {
	h := newHarness()
	base := time.Unix(1700000000, 0)

	h.player.Load("AAPL-x", testTicks())
	h.loop.Step(base)
	h.player.Stop()

	if h.player.State() != StateIdle {
		t.Errorf("state = %v, want idle", h.player.State())
	}
	if h.player.Progress() != 0 {
		t.Errorf("progress = %v, want 0", h.player.Progress())
	}
	if h.loop.Pending() {
		t.Errorf("stop left a scheduled frame")
	}
}

// leakyLoop ignores Cancel, simulating a stray late frame invocation that
// slipped past cancellation.
type leakyLoop struct {
	fns []FrameFunc
}

func (l *leakyLoop) Request(fn FrameFunc) { l.fns = append(l.fns, fn) }
func (l *leakyLoop) Cancel()              {}

func TestPlayer_StaleFrameNeverEmitsAfterReload(t *testing.T) {
	loop := &leakyLoop{}
	var emitted []model.TickRecord
	p := New(loop, Callbacks{
		OnTick: func(t model.TickRecord) { emitted = append(emitted, t) },
	})

	oldTicks := testTicks()
	p.Load("OLD-session", oldTicks)
	stale := loop.fns[len(loop.fns)-1]

	p.Stop()
	p.Load("NEW-session", []model.TickRecord{
		{AdjustedTS: 500, BidPrice: 1, AskPrice: 2, Timestamp: 5000},
	})

	// The stale frame fires way past every delay; the generation guard
	// must keep it from emitting a tick from the old session.
	stale(time.Unix(1800000000, 0))
	if len(emitted) != 0 {
		t.Fatalf("stale frame emitted %d ticks", len(emitted))
	}
}

func TestPlayer_DefaultPaceWithoutTimestamps(t *testing.T) {
	h := newHarness()
	base := time.Unix(1700000000, 0)

	h.player.Load("X-y", []model.TickRecord{
		{BidPrice: 1, AskPrice: 2},
		{BidPrice: 1, AskPrice: 2},
	})
	h.loop.Step(base)
	h.loop.Step(base.Add(9 * time.Millisecond))
	if len(h.ticks) != 0 {
		t.Fatalf("tick emitted before default 10ms pace")
	}
	h.loop.Step(base.Add(10 * time.Millisecond))
	if len(h.ticks) != 1 {
		t.Fatalf("expected 1 tick at default pace, got %d", len(h.ticks))
	}
}

func TestPlayer_LoaderFailureLandsInError(t *testing.T) {
	h := newHarness()
	h.player.MarkLoading()
	if h.player.State() != StateLoading {
		t.Fatalf("state = %v, want loading", h.player.State())
	}
	h.player.MarkError()
	if h.player.State() != StateError {
		t.Fatalf("state = %v, want error", h.player.State())
	}
	if h.loop.Pending() {
		t.Errorf("error state left a scheduled frame")
	}
}
