// Package player implements the playback scheduler: it turns a static
// ordered tick array into a time-paced event stream with pause/resume/
// speed/stop control, driven cooperatively by a FrameLoop.
package player

import (
	"strings"
	"sync"
	"time"

	"tickreplay/internal/model"
)

// State is the scheduler lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Callbacks are invoked by the player as playback progresses. They are
// called without the player lock held, so they may call back into the
// player (e.g. OnEnd triggering a new Load).
type Callbacks struct {
	OnTick func(model.TickRecord)
	OnInit func(model.SessionMeta)
	OnEnd  func()
}

// defaultDelayMS is the pacing used when a record lacks a usable timestamp.
const defaultDelayMS = 10.0

// Player paces emission of a loaded tick array. All mutable state (cursor,
// speed, pause flag, frame-time anchor) is owned by the Player and mutated
// only through its methods.
type Player struct {
	mu   sync.Mutex
	loop FrameLoop
	cb   Callbacks

	ticks    []model.TickRecord
	meta     model.SessionMeta
	cursor   int
	progress float64
	speed    float64
	state    State

	// lastFrame anchors elapsed-time measurement; the zero value means
	// "re-anchor on the next frame" and is reset on resume/speed change
	// to avoid a false catch-up burst.
	lastFrame time.Time

	// gen invalidates frame callbacks from a previous run: a stale
	// callback that slipped past Cancel compares its captured gen and
	// no-ops instead of emitting into the new session.
	gen uint64
}

// New creates a Player driven by the given frame loop.
func New(loop FrameLoop, cb Callbacks) *Player {
	return &Player{
		loop:  loop,
		cb:    cb,
		speed: 1,
		state: StateIdle,
	}
}

// Load stops any prior run, installs the tick array, emits OnInit with the
// derived session metadata, and begins the pacing loop.
func (p *Player) Load(sessionID string, ticks []model.TickRecord) {
	p.mu.Lock()
	p.stopLocked()

	p.ticks = ticks
	p.cursor = 0
	p.progress = 0
	p.lastFrame = time.Time{}
	p.meta = deriveMeta(sessionID, ticks)
	p.state = StatePlaying

	gen := p.gen
	meta := p.meta
	onInit := p.cb.OnInit
	p.loop.Request(p.frame(gen))
	p.mu.Unlock()

	if onInit != nil {
		onInit(meta)
	}
}

// MarkLoading records that the external loader is fetching session data.
func (p *Player) MarkLoading() {
	p.mu.Lock()
	p.stopLocked()
	p.state = StateLoading
	p.mu.Unlock()
}

// MarkError records a loader failure. The player lands in Error with no
// dangling scheduled callback and no partial state retained.
func (p *Player) MarkError() {
	p.mu.Lock()
	p.stopLocked()
	p.state = StateError
	p.mu.Unlock()
}

// Pause cancels the pending frame and marks the player paused. Cursor and
// progress are untouched.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return
	}
	p.state = StatePaused
	p.loop.Cancel()
}

// Resume clears the frame-time anchor and resumes scheduling. No-op unless
// paused.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePaused {
		return
	}
	p.state = StatePlaying
	p.lastFrame = time.Time{}
	p.loop.Request(p.frame(p.gen))
}

// ChangeSpeed updates the pacing divisor for all future delay computations
// and clears the frame-time anchor to avoid one incorrectly-scaled interval.
func (p *Player) ChangeSpeed(speed float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if speed <= 0 {
		return
	}
	p.speed = speed
	p.lastFrame = time.Time{}
}

// Stop cancels scheduling, resets cursor and progress, and returns to Idle.
func (p *Player) Stop() {
	p.mu.Lock()
	p.stopLocked()
	p.state = StateIdle
	p.mu.Unlock()
}

// stopLocked cancels the pending frame and invalidates in-flight callbacks.
// Caller holds p.mu.
func (p *Player) stopLocked() {
	p.loop.Cancel()
	p.gen++
	p.cursor = 0
	p.progress = 0
	p.lastFrame = time.Time{}
}

// State returns the current lifecycle state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Progress returns playback progress in percent (0–100).
func (p *Player) Progress() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Speed returns the current speed multiplier.
func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// Meta returns the metadata of the loaded session.
func (p *Player) Meta() model.SessionMeta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta
}

// frame builds the per-frame callback for generation gen. Each invocation
// emits at most one tick, then reschedules itself.
func (p *Player) frame(gen uint64) FrameFunc {
	return func(now time.Time) {
		p.mu.Lock()
		if gen != p.gen || p.state != StatePlaying {
			p.mu.Unlock()
			return
		}

		if p.cursor >= len(p.ticks) {
			p.loop.Cancel()
			p.gen++
			p.cursor = 0
			p.progress = 0
			p.state = StateCompleted
			onEnd := p.cb.OnEnd
			p.mu.Unlock()
			if onEnd != nil {
				onEnd()
			}
			return
		}

		cur := p.ticks[p.cursor]
		var next *model.TickRecord
		if p.cursor+1 < len(p.ticks) {
			next = &p.ticks[p.cursor+1]
		}

		if p.lastFrame.IsZero() {
			p.lastFrame = now
		}
		elapsed := now.Sub(p.lastFrame)

		var emit *model.TickRecord
		if elapsed >= p.delayLocked(&cur, next) {
			emit = &cur
			p.cursor++
			p.progress = float64(p.cursor) / float64(len(p.ticks)) * 100
			p.lastFrame = now
		}

		p.loop.Request(p.frame(gen))
		onTick := p.cb.OnTick
		p.mu.Unlock()

		if emit != nil && onTick != nil {
			onTick(*emit)
		}
	}
}

// delayLocked computes the target delay before the next tick should fire.
// Malformed or missing timestamps degrade to the default minimal pace
// rather than failing the session. Caller holds p.mu.
func (p *Player) delayLocked(cur, next *model.TickRecord) time.Duration {
	ms := defaultDelayMS / p.speed
	if next != nil && cur.HasTimestamp() && next.HasTimestamp() {
		ms = (next.AdjustedTS - cur.AdjustedTS) * 1000 / p.speed
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// deriveMeta computes session metadata: symbol from the leading token of
// the session ID, start/end from the first/last record's raw timestamp.
func deriveMeta(sessionID string, ticks []model.TickRecord) model.SessionMeta {
	meta := model.SessionMeta{
		SessionID:  sessionID,
		Symbol:     strings.SplitN(sessionID, "-", 2)[0],
		TotalTicks: len(ticks),
	}
	if len(ticks) > 0 {
		meta.StartTime = ticks[0].Timestamp
		meta.EndTime = ticks[len(ticks)-1].Timestamp
	}
	return meta
}
