// Package adapter defines the normalized contract between broker adapters
// and their consumers (the HTTP API, the event streams, the CLI). A broker
// adapter translates a broker's native storage layout into Queues, Jobs and
// JobEvents; consumers never see broker keys, indexes or wire payloads.
package adapter

import "context"

// Listener receives translated job-lifecycle events. Listeners are invoked
// synchronously from the adapter's delivery loop and must not block for long.
type Listener func(JobEvent)

// Unregister releases a Listener registered via Subscribe. It is idempotent.
type Unregister func()

// Adapter is the read-only contract implemented per broker.
//
// All operations except Connect require a connected adapter and fail with a
// NotConnected error otherwise. Operations taking a context abort promptly
// with a Cancelled error when the context fires; Subscribe is the exception,
// as its delivery loop is bound to the adapter lifetime and is torn down by
// Disconnect or by releasing the last listener.
//
// Subscribe supports any number of concurrent listeners sharing one
// underlying broker subscription, opened lazily with the first listener and
// closed with the last. Adapters for brokers that can serve only a single
// exclusive subscriber instead reject a second Subscribe with
// AlreadySubscribed; such adapters must say so in their documentation.
type Adapter interface {
	// Connect validates the endpoint URL, opens the command connection, and
	// waits for it to become ready (bounded by the adapter's configured
	// connect timeout).
	Connect(ctx context.Context, endpoint string) error
	// Disconnect releases the subscriber and command connections. It is
	// idempotent, and after it returns no delivery goroutine remains.
	Disconnect() error

	// Discover enumerates queues known to the broker, with status counts
	// captured at the moment of the call. The result is unordered.
	Discover(ctx context.Context) ([]Queue, error)
	// ListJobs returns one page of jobs in the requested status. Ids whose
	// record has been pruned by the broker are dropped from the page.
	ListJobs(ctx context.Context, req ListJobsRequest) ([]Job, error)
	// FetchJob resolves a single job and its current status.
	FetchJob(ctx context.Context, queue, id string) (Job, error)
	// Metrics computes a rolling snapshot over the newest terminal jobs.
	Metrics(ctx context.Context, queue string) (Metrics, error)

	// Subscribe registers fn for job-lifecycle events.
	Subscribe(fn Listener) (Unregister, error)

	// Endpoint describes the connected broker. Diagnostic only; the zero
	// Endpoint is returned while disconnected.
	Endpoint() Endpoint
}
