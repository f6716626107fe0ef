package gateway

import "sync"

// bufferEntry holds a single broadcasted envelope for backfill.
type bufferEntry struct {
	Seq  int64
	Data []byte // pre-built envelope JSON
}

// EventBuffer is a fixed-size circular buffer of recent WS envelopes
// per channel. Supports Range queries for client gap backfill.
//
// Thread-safe for concurrent writes and reads.
type EventBuffer struct {
	mu   sync.RWMutex
	buf  []bufferEntry
	cap  int
	pos  int // next write position
	full bool
}

// NewEventBuffer creates an event buffer with the given capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &EventBuffer{
		buf: make([]bufferEntry, capacity),
		cap: capacity,
	}
}

// Push appends an envelope to the buffer. Overwrites oldest entry when full.
func (eb *EventBuffer) Push(seq int64, data []byte) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	// Copy data to avoid holding onto the caller's slice
	cp := make([]byte, len(data))
	copy(cp, data)

	eb.buf[eb.pos] = bufferEntry{Seq: seq, Data: cp}
	eb.pos = (eb.pos + 1) % eb.cap
	if eb.pos == 0 && !eb.full {
		eb.full = true
	}
}

// Range returns all entries with seq in [fromSeq, toSeq] (inclusive),
// in seq order.
func (eb *EventBuffer) Range(fromSeq, toSeq int64) []bufferEntry {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var result []bufferEntry
	count := eb.len()

	for i := 0; i < count; i++ {
		idx := eb.index(i)
		e := eb.buf[idx]
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			result = append(result, e)
		}
	}
	return result
}

// Len returns the number of entries currently in the buffer.
func (eb *EventBuffer) Len() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return eb.len()
}

func (eb *EventBuffer) len() int {
	if eb.full {
		return eb.cap
	}
	return eb.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (eb *EventBuffer) index(logical int) int {
	if eb.full {
		return (eb.pos + logical) % eb.cap
	}
	return logical
}
