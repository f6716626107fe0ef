package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"tickreplay/internal/model"
	"tickreplay/internal/player"
	"tickreplay/internal/replay"
)

type stubLoader struct {
	data map[string]*model.SessionData
}

func (s *stubLoader) LoadSessionData(ctx context.Context, sessionID string) (*model.SessionData, error) {
	d, ok := s.data[sessionID]
	if !ok {
		return nil, errors.New("session not found")
	}
	return d, nil
}

func (s *stubLoader) ListSessions(ctx context.Context) ([]model.SessionInfo, error) {
	return []model.SessionInfo{{ID: "AAPL-2024-01-05", Symbol: "AAPL"}}, nil
}

func newTestHub() (*Hub, *player.ManualLoop) {
	loader := &stubLoader{data: map[string]*model.SessionData{
		"AAPL-2024-01-05": {Ticks: []model.TickRecord{
			{AdjustedTS: 10.00, BidPrice: 9.99, AskPrice: 10.01, BidSize: 200, AskSize: 300},
			{AdjustedTS: 10.05, BidPrice: 10.00, AskPrice: 10.02, BidSize: 100, AskSize: 100},
		}},
	}}
	loop := &player.ManualLoop{}
	eng := replay.New(loop, loader, nil, nil, replay.Config{Depth: 10, Seed: 42})
	return NewHub(eng, loader, replay.Timeframes), loop
}

func newTestClient(h *Hub) *Client {
	return &Client{send: make(chan []byte, 64), hub: h}
}

// drainMsgs reads every queued message from the client's send channel.
func drainMsgs(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func lastTyped(t *testing.T, msgs [][]byte, typ string) map[string]interface{} {
	t.Helper()
	var found map[string]interface{}
	for _, msg := range msgs {
		var m map[string]interface{}
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Fatalf("bad message %s: %v", msg, err)
		}
		if m["type"] == typ {
			found = m
		}
	}
	if found == nil {
		t.Fatalf("no %q message in %d messages", typ, len(msgs))
	}
	return found
}

func TestHandleCommand_PlaybackControls(t *testing.T) {
	hub, _ := newTestHub()
	c := newTestClient(hub)

	c.handleCommand(CommandMsg{Type: "play", ReqID: "r1", SessionID: "AAPL-2024-01-05"})
	if st := hub.Engine().Player().State(); st != player.StatePlaying {
		t.Fatalf("state after play: %v", st)
	}
	ack := lastTyped(t, drainMsgs(c), "ack")
	if ack["cmd"] != "play" || ack["req_id"] != "r1" {
		t.Errorf("unexpected ack: %v", ack)
	}

	c.handleCommand(CommandMsg{Type: "pause"})
	if st := hub.Engine().Player().State(); st != player.StatePaused {
		t.Fatalf("state after pause: %v", st)
	}

	c.handleCommand(CommandMsg{Type: "resume"})
	if st := hub.Engine().Player().State(); st != player.StatePlaying {
		t.Fatalf("state after resume: %v", st)
	}

	c.handleCommand(CommandMsg{Type: "speed", Value: 10})
	if sp := hub.Engine().Player().Speed(); sp != 10 {
		t.Fatalf("speed: got %v, want 10", sp)
	}

	c.handleCommand(CommandMsg{Type: "stop"})
	if st := hub.Engine().Player().State(); st != player.StateIdle {
		t.Fatalf("state after stop: %v", st)
	}
}

func TestHandleCommand_Rejections(t *testing.T) {
	hub, _ := newTestHub()
	c := newTestClient(hub)

	c.handleCommand(CommandMsg{Type: "play", ReqID: "r1"})
	errMsg := lastTyped(t, drainMsgs(c), "error")
	if errMsg["req_id"] != "r1" {
		t.Errorf("error missing req_id: %v", errMsg)
	}

	c.handleCommand(CommandMsg{Type: "speed", Value: 3})
	lastTyped(t, drainMsgs(c), "error")

	// No quote seen yet, trades must be refused
	c.handleCommand(CommandMsg{Type: "buy", Size: 100})
	lastTyped(t, drainMsgs(c), "error")

	c.handleCommand(CommandMsg{Type: "warp"})
	lastTyped(t, drainMsgs(c), "error")
}

func TestHandleCommand_Ping(t *testing.T) {
	hub, _ := newTestHub()
	c := newTestClient(hub)

	c.handleCommand(CommandMsg{Ping: 1234})
	pong := lastTyped(t, drainMsgs(c), "pong")
	if pong["ping"] != float64(1234) {
		t.Errorf("pong echo: %v", pong)
	}
}

type wsEnvelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

func TestBroadcast_EnvelopeFormat(t *testing.T) {
	hub, _ := newTestHub()
	c := newTestClient(hub)
	hub.clients[c] = true

	data := []byte(`{"type":"quote","progress":50}`)
	hub.broadcast("replay:quote", data)

	msgs := drainMsgs(c)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	var env wsEnvelope
	if err := json.Unmarshal(msgs[0], &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, msgs[0])
	}
	if env.Channel != "replay:quote" {
		t.Errorf("channel: got %q", env.Channel)
	}
	if env.Seq != 1 || env.ChannelSeq != 1 {
		t.Errorf("seq: got %d/%d, want 1/1", env.Seq, env.ChannelSeq)
	}
	if string(env.Data) != string(data) {
		t.Errorf("data: got %s", env.Data)
	}
	if _, err := time.Parse(time.RFC3339Nano, env.TS); err != nil {
		t.Errorf("ts is not valid RFC3339Nano: %v", err)
	}
}

func TestBroadcast_BackfillRange(t *testing.T) {
	hub, _ := newTestHub()

	for i := 0; i < 10; i++ {
		hub.broadcast("replay:quote", []byte(`{"type":"quote"}`))
	}

	if seq := hub.GetChannelSeq("replay:quote"); seq != 10 {
		t.Fatalf("channel seq: got %d, want 10", seq)
	}

	envelopes := hub.GetMissedRange("replay:quote", 3, 7)
	if len(envelopes) != 5 {
		t.Fatalf("missed range: expected 5 envelopes, got %d", len(envelopes))
	}
	var env wsEnvelope
	if err := json.Unmarshal(envelopes[0], &env); err != nil {
		t.Fatalf("backfilled envelope invalid: %v", err)
	}
	if env.ChannelSeq != 3 {
		t.Errorf("first backfilled channel_seq: got %d, want 3", env.ChannelSeq)
	}

	if got := hub.GetMissedRange("replay:book", 1, 10); got != nil {
		t.Errorf("unknown channel should return nil, got %d entries", len(got))
	}
}

func TestSendInitialState(t *testing.T) {
	hub, _ := newTestHub()
	hub.broadcast("replay:quote", []byte(`{"type":"quote","progress":50}`))

	c := newTestClient(hub)
	c.sendInitialState()

	msgs := drainMsgs(c)
	if len(msgs) != 2 {
		t.Fatalf("expected status + latest quote, got %d messages", len(msgs))
	}

	seen := map[string]bool{}
	for _, msg := range msgs {
		var m struct {
			Channel string `json:"channel"`
			Initial bool   `json:"initial"`
		}
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Fatalf("bad initial message: %v", err)
		}
		if !m.Initial {
			t.Errorf("message on %s missing initial flag", m.Channel)
		}
		seen[m.Channel] = true
	}
	if !seen["replay:status"] || !seen["replay:quote"] {
		t.Errorf("initial channels: %v", seen)
	}
}
