package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// sseKeepAlive is the interval of comment frames which keep intermediary
// proxies from timing out an otherwise quiet stream.
const sseKeepAlive = 15 * time.Second

// serveSSE streams job events as text/event-stream frames. The event name
// carries the JobEvent kind and the data line its JSON encoding, so
// EventSource consumers can bind per-kind handlers.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request) {
	var flusher, ok = w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var client, err = s.bus.addClient("sse", r.URL.Query().Get("queue"))
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	defer s.bus.removeClient(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// An opening comment gives clients awaiting a first byte immediate
	// confirmation of the stream.
	fmt.Fprintf(w, ": connected %s\n\n", client.id)
	flusher.Flush()

	var keepAlive = time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case event, ok := <-client.events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				log.WithFields(log.Fields{"err": err, "client": client.id}).
					Warn("failed to encode job event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
