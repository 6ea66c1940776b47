// Package dashboard hosts the read-only HTTP surface of the dashboard:
// a JSON API over a broker adapter, live event streaming over SSE and
// websocket, Prometheus metrics, and the embedded single-page UI.
package dashboard

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kyled7/queue-vision/go/adapter"
)

// Config carries the serving options of a dashboard Server.
type Config struct {
	// UIPath optionally overrides the embedded UI with an on-disk
	// directory, for development against a running broker.
	UIPath string
}

// Server is the dashboard's http.Handler. It consumes only the adapter
// contract and never mutates broker state.
type Server struct {
	adapter adapter.Adapter
	bus     *bus
	router  *mux.Router
}

// NewServer builds a Server around the given adapter and registers all
// routes.
func NewServer(a adapter.Adapter, cfg Config) *Server {
	var s = &Server{
		adapter: a,
		bus:     newBus(a),
		router:  mux.NewRouter(),
	}

	s.router.Path("/api/queues").Methods("GET").
		Name("queues").HandlerFunc(s.serveQueues)
	s.router.Path("/api/queues/{queue}/jobs").Methods("GET").
		Name("jobs").HandlerFunc(s.serveJobs)
	s.router.Path("/api/queues/{queue}/jobs/{id}").Methods("GET").
		Name("job").HandlerFunc(s.serveJob)
	s.router.Path("/api/queues/{queue}/metrics").Methods("GET").
		Name("queue-metrics").HandlerFunc(s.serveQueueMetrics)
	s.router.Path("/api/events").Methods("GET").
		Name("events-sse").HandlerFunc(s.serveSSE)
	s.router.Path("/api/events/ws").Methods("GET").
		Name("events-ws").HandlerFunc(s.serveWebsocket)
	s.router.Path("/healthz").Methods("GET").
		Name("healthz").HandlerFunc(s.serveHealth)
	s.router.Path("/metrics").Methods("GET").
		Name("prometheus").Handler(promhttp.Handler())
	s.router.PathPrefix("/").Methods("GET").
		Name("ui").Handler(uiHandler(cfg.UIPath))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
