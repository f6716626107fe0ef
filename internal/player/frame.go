package player

import (
	"context"
	"sync"
	"time"
)

// FrameFunc is a callback invoked once on the next tick of a cooperative
// frame loop, with the frame timestamp.
type FrameFunc func(now time.Time)

// FrameLoop abstracts the host's per-frame scheduler: a callback scheduled
// with Request fires at most once, and Cancel synchronously guarantees a
// previously requested callback will not fire afterwards.
type FrameLoop interface {
	Request(fn FrameFunc)
	Cancel()
}

const defaultFrameInterval = 4 * time.Millisecond

// TickerLoop drives frame callbacks from a single goroutine at a fixed
// interval, approximating a UI frame scheduler. Callbacks are dispatched
// serially; Request from within a callback schedules the next frame.
type TickerLoop struct {
	mu       sync.Mutex
	pending  FrameFunc
	interval time.Duration
}

// NewTickerLoop creates a TickerLoop. A non-positive interval falls back to
// the default frame interval.
func NewTickerLoop(interval time.Duration) *TickerLoop {
	if interval <= 0 {
		interval = defaultFrameInterval
	}
	return &TickerLoop{interval: interval}
}

// Run dispatches pending callbacks until ctx is cancelled.
func (l *TickerLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.mu.Lock()
			fn := l.pending
			l.pending = nil
			l.mu.Unlock()
			if fn != nil {
				fn(now)
			}
		}
	}
}

// Request schedules fn for the next frame, replacing any pending callback.
func (l *TickerLoop) Request(fn FrameFunc) {
	l.mu.Lock()
	l.pending = fn
	l.mu.Unlock()
}

// Cancel drops the pending callback, if any.
func (l *TickerLoop) Cancel() {
	l.mu.Lock()
	l.pending = nil
	l.mu.Unlock()
}

// ManualLoop is a frame loop stepped explicitly by the caller. The batch
// replayer drives it with virtual time; tests drive it with a fake clock.
// Not safe for concurrent use.
type ManualLoop struct {
	pending FrameFunc
}

// Request schedules fn for the next Step.
func (l *ManualLoop) Request(fn FrameFunc) { l.pending = fn }

// Cancel drops the pending callback.
func (l *ManualLoop) Cancel() { l.pending = nil }

// Pending reports whether a callback is scheduled.
func (l *ManualLoop) Pending() bool { return l.pending != nil }

// Step invokes the pending callback with the given frame time. Returns
// false when nothing was scheduled.
func (l *ManualLoop) Step(now time.Time) bool {
	fn := l.pending
	l.pending = nil
	if fn == nil {
		return false
	}
	fn(now)
	return true
}
