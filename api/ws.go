package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Artfain/triad-fedchain/logging"
)

const writeWait = 10 * time.Second

// handleWebSocket streams every block announced on the network until the client
// disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("Failed to upgrade to WebSocket", logging.API, "error", err)
		return
	}
	defer conn.Close()

	feed, cancel := s.sim.Network().Subscribe(64)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case a, ok := <-feed:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, closeMessage("feed closed"), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(a); err != nil {
				logging.Error("Failed to write block to WebSocket", logging.API, "error", err)
				return
			}
		}
	}
}

// closeMessage is sent before the server drops a client.
func closeMessage(reason string) []byte {
	return websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
}
