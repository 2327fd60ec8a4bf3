package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsCatchUp      = 50
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The feed is read-only telemetry for local dashboards.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEventFeed streams run events over a WebSocket: a catch-up batch of
// recent events, then live events as they publish.
func (s *Server) handleEventFeed(w http.ResponseWriter, req *http.Request) {
	r := s.getRun(mux.Vars(req)["id"])
	if r == nil {
		writeError(w, http.StatusNotFound, "no such run")
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID, events := r.Subscribe()
	defer r.Unsubscribe(subID)

	for _, ev := range r.Events(wsCatchUp, 0) {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}

	// Drain the client's side so close frames are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case <-clientGone:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
