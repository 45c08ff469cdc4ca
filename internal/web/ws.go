package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"sumpwatch/internal/status"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMsgSize      = 1 << 12 // 4 KB
	defaultInterval = 1 * time.Second
	minInterval     = 100 * time.Millisecond
	maxInterval     = 30 * time.Second
)

// wsEnvelope wraps every websocket message.
type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// The page is only reachable on the LAN, so any origin may connect.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams status snapshots. Clients may tune the cadence with
// ?interval=2s, bounded to [100ms, 30s].
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	interval := parseInterval(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMsgSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine: handles control frames and detects disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	// Initial snapshot right away, then on every tick.
	if err := s.sendSnapshot(conn); err != nil {
		s.log.Debugw("ws initial write failed", "err", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.sendSnapshot(conn); err != nil {
				s.log.Debugw("ws write failed", "err", err)
				return
			}
		}
	}
}

func (s *Server) sendSnapshot(conn *websocket.Conn) error {
	snap := s.tracker.Snapshot()
	sys := status.ReadSystemInfo()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: "status", Data: status.BuildJSON(snap, sys)})
}

// parseInterval reads ?interval=2s with bounds.
func parseInterval(r *http.Request) time.Duration {
	if v := r.URL.Query().Get("interval"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= minInterval && d <= maxInterval {
			return d
		}
	}
	return defaultInterval
}
