package dashboard

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kyled7/queue-vision/go/adapter"
)

// clientBuffer is the per-client event buffer. A client which falls this
// far behind starts losing events rather than slowing the delivery loop.
const clientBuffer = 64

// busClient is one registered consumer of the event bus.
type busClient struct {
	id        string
	transport string // "sse" or "ws", used for logs and metrics
	queue     string // optional filter; empty matches every queue
	events    chan adapter.JobEvent
}

// bus fans job events of a single adapter subscription out to any number
// of stream clients. It registers its adapter listener lazily with the
// first client and unregisters it when the last client leaves, so an idle
// dashboard keeps no broker subscription open.
type bus struct {
	source adapter.Adapter

	mu      sync.Mutex
	clients map[string]*busClient
	stop    adapter.Unregister
}

func newBus(source adapter.Adapter) *bus {
	return &bus{
		source:  source,
		clients: make(map[string]*busClient),
	}
}

// addClient registers a new stream client. The first client also installs
// the bus's adapter listener; a failure to subscribe unwinds the client.
//
// Subscribe opens the broker's subscriber connection, so it runs outside
// the bus lock: broadcast to existing clients must not stall behind a
// dial. Two racing first clients may both subscribe; the loser's handle
// is released.
func (b *bus) addClient(transport, queue string) (*busClient, error) {
	var client = &busClient{
		id:        uuid.NewString(),
		transport: transport,
		queue:     queue,
		events:    make(chan adapter.JobEvent, clientBuffer),
	}

	b.mu.Lock()
	b.clients[client.id] = client
	var needSubscribe = b.stop == nil
	streamClientsGauge.WithLabelValues(transport).Inc()
	b.mu.Unlock()

	if needSubscribe {
		var stop, err = b.source.Subscribe(b.broadcast)
		if err != nil {
			b.removeClient(client)
			return nil, fmt.Errorf("subscribing to broker events: %w", err)
		}

		b.mu.Lock()
		if b.stop == nil && len(b.clients) != 0 {
			b.stop, stop = stop, nil
		}
		b.mu.Unlock()

		if stop != nil {
			stop() // Lost the install race, or every client already left.
		}
	}

	log.WithFields(log.Fields{
		"client":    client.id,
		"transport": transport,
		"queue":     queue,
	}).Info("event stream client connected")

	return client, nil
}

// removeClient unregisters a client and closes its channel. Removing the
// last client also releases the adapter listener.
//
// The release runs outside the bus lock. The adapter's delivery loop may
// at this moment be inside broadcast, blocked on that lock; releasing
// under it would have the unregister and the loop each waiting on the
// other.
func (b *bus) removeClient(client *busClient) {
	b.mu.Lock()
	if _, ok := b.clients[client.id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.clients, client.id)
	close(client.events)
	streamClientsGauge.WithLabelValues(client.transport).Dec()

	var stop adapter.Unregister
	if len(b.clients) == 0 {
		stop, b.stop = b.stop, nil
	}
	b.mu.Unlock()

	if stop != nil {
		stop()
	}

	log.WithFields(log.Fields{
		"client":    client.id,
		"transport": client.transport,
	}).Info("event stream client disconnected")
}

// broadcast delivers one event to every matching client. It never blocks:
// a client with a full buffer loses the event.
func (b *bus) broadcast(event adapter.JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	eventsBroadcastCounter.Inc()

	for _, client := range b.clients {
		if client.queue != "" && client.queue != event.Queue {
			continue
		}
		select {
		case client.events <- event:
		default:
			eventsDroppedCounter.WithLabelValues(client.transport).Inc()
			log.WithFields(log.Fields{
				"client":    client.id,
				"transport": client.transport,
				"kind":      event.Kind,
			}).Warn("dropping event for slow stream client")
		}
	}
}

func (b *bus) clientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}
