package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/sensor-dashboard/internal/dashboard"
	"github.com/sweeney/sensor-dashboard/internal/telemetry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamMessage is pushed to websocket subscribers every poll interval.
type StreamMessage struct {
	Type     string              `json:"type"`
	Snapshot telemetry.Snapshot  `json:"snapshot"`
	Sections []dashboard.Section `json:"sections"`
}

// handleStream handles GET /api/stream. Each subscriber gets a snapshot
// immediately and then one per poll interval until it disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// The read side only exists to notice the peer going away and to
	// process control frames.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	if err := s.sendSnapshot(conn, r); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-s.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.sendSnapshot(conn, r); err != nil {
				s.logger.Debug("stream subscriber gone", "err", err)
				return
			}
		}
	}
}

func (s *Server) sendSnapshot(conn *websocket.Conn, r *http.Request) error {
	snap := s.telemetry.Snapshot(r.Context())
	msg := StreamMessage{Type: "snapshot", Snapshot: snap, Sections: s.rules.Build(snap)}
	conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	return conn.WriteJSON(msg)
}
