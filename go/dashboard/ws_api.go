package dashboard

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/kyled7/queue-vision/go/adapter"
)

// Maximum time we'll wait for a write we initiate to complete.
// We don't use websocket's ping-pong mechanism, instead relying on TCP keep-alive.
const wsWriteTimeout = 10 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI may be served from a development host on another origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// serveWebsocket streams job events as JSON text frames, one JobEvent per
// frame, matching the SSE data payloads.
func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	var conn, err = wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// A response has already been sent to client by |wsUpgrader|.
		log.WithFields(log.Fields{"err": err, "url": r.URL.String(), "client": r.RemoteAddr}).
			Warn("failed to upgrade event stream request to websocket")
		return
	}

	client, err := s.bus.addClient("ws", r.URL.Query().Get("queue"))
	if err != nil {
		var deadline = time.Now().Add(wsWriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, adapter.KindOf(err).String()),
			deadline)
		_ = conn.Close()
		return
	}

	// The read pump discards client frames and surfaces the peer closing
	// or failing the connection.
	var readErr = make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	defer func() {
		s.bus.removeClient(client)
		_ = conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				log.WithFields(log.Fields{"err": err, "client": client.id}).
					Debug("websocket event write failed")
				return
			}

		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				log.WithFields(log.Fields{"err": err, "client": client.id}).
					Warn("websocket event stream failed")
			}
			return

		case <-r.Context().Done():
			return
		}
	}
}
