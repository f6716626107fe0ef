// Package gateway exposes the replay engine over WebSocket and REST.
// It fans engine events out to connected clients and translates client
// control messages into engine commands.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"tickreplay/internal/model"
	"tickreplay/internal/replay"

	"github.com/gorilla/websocket"
)

// Hub manages WebSocket clients and engine event fan-out.
type Hub struct {
	engine *replay.Engine
	loader model.SessionLoader
	tfs    []int

	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel envelope buffers for gap backfill
	backfill map[string]*EventBuffer
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a Hub bridging the engine to WS clients.
func NewHub(engine *replay.Engine, loader model.SessionLoader, tfs []int) *Hub {
	return &Hub{
		engine:      engine,
		loader:      loader,
		tfs:         tfs,
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		backfill:    make(map[string]*EventBuffer),
	}
}

// Engine returns the replay engine driven by this hub.
func (h *Hub) Engine() *replay.Engine { return h.engine }

// Run consumes the engine event stream and fans it out. Blocks until
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	events, cancel := h.engine.Subscribe(256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.broadcast("replay:"+string(ev.Type), ev.JSON())
		}
	}
}

// broadcast wraps data in an envelope and sends it to every client.
// Uses hand-crafted JSON for the envelope to keep the quote path cheap.
func (h *Hub) broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.seq++
	seq := h.seq
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	eb, exists := h.backfill[channel]
	if !exists {
		eb = NewEventBuffer(500)
		h.backfill[channel] = eb
	}
	h.mu.Unlock()

	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')

	eb.Push(channelSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
		}
	}
}

// HandleWSRequest registers an upgraded WebSocket connection.
func (h *Hub) HandleWSRequest(conn *websocket.Conn) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState()
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// GetLatestAll returns a snapshot of the latest payload per channel.
func (h *Hub) GetLatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// GetMissedRange returns buffered envelopes for a channel in
// [fromSeq, toSeq]. Used by the /api/missed endpoint for client gap
// backfill.
func (h *Hub) GetMissedRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	eb, exists := h.backfill[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := eb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
