package dashboard

import (
	"context"
	"sync"

	"github.com/kyled7/queue-vision/go/adapter"
)

// stubAdapter implements the adapter contract with canned responses and
// records listener registrations, so tests can emit events the way a real
// adapter's delivery loop would.
type stubAdapter struct {
	discover func(context.Context) ([]adapter.Queue, error)
	list     func(context.Context, adapter.ListJobsRequest) ([]adapter.Job, error)
	fetch    func(ctx context.Context, queue, id string) (adapter.Job, error)
	metrics  func(ctx context.Context, queue string) (adapter.Metrics, error)

	mu           sync.Mutex
	nextID       int
	listeners    map[int]adapter.Listener
	subscribeErr error
}

var _ adapter.Adapter = (*stubAdapter)(nil)

func newStubAdapter() *stubAdapter {
	return &stubAdapter{listeners: make(map[int]adapter.Listener)}
}

func (s *stubAdapter) Connect(context.Context, string) error { return nil }
func (s *stubAdapter) Disconnect() error                     { return nil }

func (s *stubAdapter) Endpoint() adapter.Endpoint {
	return adapter.Endpoint{Host: "localhost", Port: 6379, DB: 0}
}

func (s *stubAdapter) Discover(ctx context.Context) ([]adapter.Queue, error) {
	if s.discover == nil {
		return nil, nil
	}
	return s.discover(ctx)
}

func (s *stubAdapter) ListJobs(ctx context.Context, req adapter.ListJobsRequest) ([]adapter.Job, error) {
	if s.list == nil {
		return nil, nil
	}
	return s.list(ctx, req)
}

func (s *stubAdapter) FetchJob(ctx context.Context, queue, id string) (adapter.Job, error) {
	if s.fetch == nil {
		return adapter.Job{}, adapter.Errorf(adapter.NotFound, "job %q not found in queue %q", id, queue)
	}
	return s.fetch(ctx, queue, id)
}

func (s *stubAdapter) Metrics(ctx context.Context, queue string) (adapter.Metrics, error) {
	if s.metrics == nil {
		return adapter.Metrics{}, nil
	}
	return s.metrics(ctx, queue)
}

func (s *stubAdapter) Subscribe(fn adapter.Listener) (adapter.Unregister, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	var id = s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}, nil
}

func (s *stubAdapter) emit(event adapter.JobEvent) {
	s.mu.Lock()
	var snapshot = make([]adapter.Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		snapshot = append(snapshot, fn)
	}
	s.mu.Unlock()

	for _, fn := range snapshot {
		fn(event)
	}
}

func (s *stubAdapter) listenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
