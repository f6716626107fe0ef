package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"tickreplay/internal/replay"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// TFLabel renders a timeframe in seconds as a short label, "60" -> "1m".
func TFLabel(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds%3600 == 0 {
		return fmt.Sprintf("%dh", seconds/3600)
	}
	return fmt.Sprintf("%dm", seconds/60)
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, processStart time.Time) {
	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		hub.HandleWSRequest(conn)
	})

	// REST: stored sessions
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		infos, err := hub.loader.ListSessions(r.Context())
		if err != nil {
			http.Error(w, `{"error":"session listing failed"}`, http.StatusInternalServerError)
			return
		}
		out := make([]SessionOut, len(infos))
		for i, s := range infos {
			out[i] = SessionOut{
				ID:      s.ID,
				Symbol:  s.Symbol,
				Date:    s.Date,
				PxStart: s.PxStart,
				PxEnd:   s.PxEnd,
			}
		}
		json.NewEncoder(w).Encode(out)
	})

	// REST: playback capabilities and current settings
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		tfList := make([]TFInfo, len(hub.tfs))
		for i, tf := range hub.tfs {
			tfList[i] = TFInfo{Seconds: tf, Label: TFLabel(tf)}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"speeds":       replay.Speeds,
			"tfs":          tfList,
			"depth_min":    replay.MinDepth,
			"depth_max":    replay.MaxDepth,
			"depth":        hub.engine.Depth(),
			"default_size": replay.DefaultTradeSize,
			"speed":        hub.engine.Player().Speed(),
			"state":        hub.engine.Player().State().String(),
		})
	})

	// REST: gap backfill for a channel in [from, to]
	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		channel := r.URL.Query().Get("channel")
		from, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		to, _ := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		if channel == "" || from <= 0 || to < from {
			http.Error(w, `{"error":"channel, from and to are required"}`, http.StatusBadRequest)
			return
		}

		envelopes := hub.GetMissedRange(channel, from, to)
		w.Write([]byte("["))
		for i, env := range envelopes {
			if i > 0 {
				w.Write([]byte(","))
			}
			w.Write(env)
		}
		w.Write([]byte("]"))
	})

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		status := hub.engine.Status()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "ok",
			"state":      status.State,
			"session":    status.SessionID,
			"progress":   status.Progress,
			"ws_clients": hub.ClientCount(),
			"uptime_sec": int64(time.Since(processStart).Seconds()),
			"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
