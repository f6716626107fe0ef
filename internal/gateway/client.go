package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// sendInitialState pushes the engine status plus the latest payload per
// channel so a late joiner renders immediately.
func (c *Client) sendInitialState() {
	status := c.hub.engine.Status()
	envelope, _ := json.Marshal(map[string]interface{}{
		"channel": "replay:status",
		"data":    json.RawMessage(status.JSON()),
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"initial": true,
	})
	select {
	case c.send <- envelope:
	default:
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for channel, entry := range c.hub.latest {
		envelope, _ := json.Marshal(map[string]interface{}{
			"channel": channel,
			"data":    json.RawMessage(entry.Data),
			"ts":      entry.TS.Format(time.RFC3339Nano),
			"seq":     entry.Seq,
			"initial": true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: use NextWriter to batch queued messages
			// into a single WebSocket frame with newline separators
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var cmd CommandMsg
		if json.Unmarshal(msg, &cmd) != nil {
			continue
		}
		c.handleCommand(cmd)
	}
}

// handleCommand dispatches a control message to the engine. Rejections
// go back to the client as error messages, accepted commands as acks.
func (c *Client) handleCommand(cmd CommandMsg) {
	eng := c.hub.engine

	switch cmd.Type {
	case "play":
		if cmd.SessionID == "" {
			SendError(c, cmd.ReqID, "session_id is required")
			return
		}
		if err := eng.Play(context.Background(), cmd.SessionID); err != nil {
			SendError(c, cmd.ReqID, err.Error())
			return
		}

	case "pause":
		eng.Pause()

	case "resume":
		eng.Resume()

	case "stop":
		eng.Stop()

	case "speed":
		if err := eng.SetSpeed(cmd.Value); err != nil {
			SendError(c, cmd.ReqID, err.Error())
			return
		}

	case "depth":
		eng.SetDepth(cmd.Depth)

	case "buy":
		if _, err := eng.Buy(cmd.Size); err != nil {
			SendError(c, cmd.ReqID, err.Error())
			return
		}

	case "sell":
		if _, err := eng.Sell(cmd.Size); err != nil {
			SendError(c, cmd.ReqID, err.Error())
			return
		}

	default:
		if cmd.Ping > 0 {
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      "pong",
				"ping":      cmd.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			select {
			case c.send <- pong:
			default:
			}
			return
		}
		SendError(c, cmd.ReqID, fmt.Sprintf("unknown command %q", cmd.Type))
		return
	}

	SendJSON(c, AckMsg{Type: "ack", ReqID: cmd.ReqID, Cmd: cmd.Type})
}
