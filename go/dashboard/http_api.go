package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/kyled7/queue-vision/go/adapter"
)

// defaultPageLimit is the page size of a jobs listing when the request
// names none. The contract itself has no default; this is the HTTP
// layer's choice within [1, adapter.MaxListLimit].
const defaultPageLimit = 20

type queuesResponse struct {
	Queues []adapter.Queue `json:"queues"`
}

type jobsResponse struct {
	Queue  string        `json:"queue"`
	Status string        `json:"status"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
	Jobs   []adapter.Job `json:"jobs"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Endpoint string `json:"endpoint"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) serveQueues(w http.ResponseWriter, r *http.Request) {
	var queues, err = s.adapter.Discover(r.Context())
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	if queues == nil {
		queues = []adapter.Queue{} // Encode as [], not null.
	}
	s.serveJSON(w, r, http.StatusOK, queuesResponse{Queues: queues})
}

func (s *Server) serveJobs(w http.ResponseWriter, r *http.Request) {
	var query = r.URL.Query()
	var req = adapter.ListJobsRequest{
		Queue: mux.Vars(r)["queue"],
		Limit: defaultPageLimit,
	}

	status, err := adapter.ParseJobStatus(query.Get("status"))
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	req.Status = status

	if raw := query.Get("offset"); raw != "" {
		if req.Offset, err = strconv.Atoi(raw); err != nil {
			s.serveError(w, r, adapter.Errorf(adapter.InvalidArgument, "offset %q is not an integer", raw))
			return
		}
	}
	if raw := query.Get("limit"); raw != "" {
		if req.Limit, err = strconv.Atoi(raw); err != nil {
			s.serveError(w, r, adapter.Errorf(adapter.InvalidArgument, "limit %q is not an integer", raw))
			return
		}
	}
	if err = req.Validate(); err != nil {
		s.serveError(w, r, err)
		return
	}

	jobs, err := s.adapter.ListJobs(r.Context(), req)
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []adapter.Job{}
	}
	s.serveJSON(w, r, http.StatusOK, jobsResponse{
		Queue:  req.Queue,
		Status: string(req.Status),
		Offset: req.Offset,
		Limit:  req.Limit,
		Jobs:   jobs,
	})
}

func (s *Server) serveJob(w http.ResponseWriter, r *http.Request) {
	var vars = mux.Vars(r)

	var job, err = s.adapter.FetchJob(r.Context(), vars["queue"], vars["id"])
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	s.serveJSON(w, r, http.StatusOK, job)
}

func (s *Server) serveQueueMetrics(w http.ResponseWriter, r *http.Request) {
	var metrics, err = s.adapter.Metrics(r.Context(), mux.Vars(r)["queue"])
	if err != nil {
		s.serveError(w, r, err)
		return
	}
	s.serveJSON(w, r, http.StatusOK, metrics)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	s.serveJSON(w, r, http.StatusOK, healthResponse{
		Status:   "ok",
		Endpoint: s.adapter.Endpoint().String(),
	})
}

// httpStatus maps an adapter error kind onto an HTTP status code.
func httpStatus(kind adapter.ErrorKind) int {
	switch kind {
	case adapter.InvalidArgument:
		return http.StatusBadRequest
	case adapter.NotFound:
		return http.StatusNotFound
	case adapter.NotConnected, adapter.Cancelled:
		return http.StatusServiceUnavailable
	case adapter.Transport, adapter.Decode:
		return http.StatusBadGateway
	case adapter.AlreadySubscribed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) serveError(w http.ResponseWriter, r *http.Request, err error) {
	var kind = adapter.KindOf(err)
	var status = httpStatus(kind)

	if status >= http.StatusInternalServerError {
		log.WithFields(log.Fields{"err": err, "url": r.URL.String(), "client": r.RemoteAddr}).
			Warn("dashboard request failed")
	}
	s.serveJSON(w, r, status, errorResponse{Error: err.Error(), Kind: kind.String()})
}

func (s *Server) serveJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithFields(log.Fields{"err": err, "url": r.URL.String(), "client": r.RemoteAddr}).
			Warn("failed to encode response body")
	}
	httpRequestsCounter.WithLabelValues(routeName(r), strconv.Itoa(status)).Inc()
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if name := route.GetName(); name != "" {
			return name
		}
	}
	return "unknown"
}
