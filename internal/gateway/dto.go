package gateway

import "encoding/json"

// CommandMsg is the client-to-server control message.
type CommandMsg struct {
	Type      string  `json:"type"`
	ReqID     string  `json:"req_id,omitempty"`
	SessionID string  `json:"session_id,omitempty"`
	Value     float64 `json:"value,omitempty"` // speed for "speed"
	Depth     int     `json:"depth,omitempty"` // levels for "depth"
	Size      float64 `json:"size,omitempty"`  // shares for "buy"/"sell"
	Ping      int64   `json:"ping,omitempty"`
}

// AckMsg acknowledges an accepted command.
type AckMsg struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`
	Cmd   string `json:"cmd"`
}

// ErrorMsg reports a rejected command back to the client.
type ErrorMsg struct {
	Type  string `json:"type"`
	ReqID string `json:"req_id,omitempty"`
	Error string `json:"error"`
}

// SessionOut is the REST response type for /api/sessions.
type SessionOut struct {
	ID      string  `json:"id"`
	Symbol  string  `json:"symbol"`
	Date    string  `json:"date"`
	PxStart float64 `json:"px_start"`
	PxEnd   float64 `json:"px_end"`
}

// TFInfo is the REST response type for the timeframe list in /api/config.
type TFInfo struct {
	Seconds int    `json:"seconds"`
	Label   string `json:"label"`
}

// SendJSON marshals v and queues it on the client's send channel.
// Drops the message if the client is backed up.
func SendJSON(c *Client, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// SendError queues an error message for the client.
func SendError(c *Client, reqID, msg string) {
	SendJSON(c, ErrorMsg{Type: "error", ReqID: reqID, Error: msg})
}
