package bullmq

import (
	"context"
	"strings"
	"time"

	"github.com/kyled7/queue-vision/go/adapter"
	"github.com/kyled7/queue-vision/go/redisclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	eventsTranslated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_vision_broker_events_translated_total",
		Help: "Keyspace notifications translated into job events, by kind.",
	}, []string{"kind"})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_vision_broker_events_dropped_total",
		Help: "Keyspace notifications dropped by the translator.",
	})
	listenerPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_vision_listener_panics_total",
		Help: "Listener callbacks which panicked during event delivery.",
	})
)

// Subscribe registers |fn| for translated job events. The first
// registration lazily opens the subscriber connection; later ones share
// it. The returned handle is idempotent, and releasing the last
// registration closes the subscriber again (a later Subscribe re-opens
// it). Disconnect drops all registrations.
//
// Callbacks run serially on the delivery goroutine, in the order the
// broker emitted the underlying notifications, and must not block for
// long. A panicking callback is logged and delivery continues.
func (a *Adapter) Subscribe(fn adapter.Listener) (adapter.Unregister, error) {
	if fn == nil {
		return nil, adapter.Errorf(adapter.InvalidArgument, "listener must not be nil")
	}

	a.mu.Lock()
	if a.client == nil {
		a.mu.Unlock()
		return nil, adapter.Errorf(adapter.NotConnected, "not connected to a broker")
	}
	if a.delivery != nil {
		var id = a.addListenerLocked(fn)
		a.mu.Unlock()
		return func() { a.removeListener(id) }, nil
	}
	var client = a.client
	a.mu.Unlock()

	// Open the shared subscriber without holding the lock, then race to
	// install it.
	var sub, err = a.openSubscriber(client)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if a.client != client {
		a.mu.Unlock()
		_ = sub.Close()
		return nil, adapter.Errorf(adapter.NotConnected, "disconnected during subscribe")
	}
	var extra *redisclient.Subscriber
	if a.delivery == nil {
		a.delivery = a.startDelivery(client, sub)
	} else {
		extra = sub // Another Subscribe installed one first.
	}
	var id = a.addListenerLocked(fn)
	a.mu.Unlock()

	if extra != nil {
		_ = extra.Close()
	}
	return func() { a.removeListener(id) }, nil
}

func (a *Adapter) addListenerLocked(fn adapter.Listener) int {
	a.nextID++
	a.listeners[a.nextID] = fn
	return a.nextID
}

// removeListener drops one registration. Dropping the last deposes the
// current delivery and closes the shared subscriber, without waiting for
// the delivery goroutine to exit: that goroutine may at this moment be
// inside a listener callback, and the callback may in turn be waiting on
// state the unregisterer holds. A deposed delivery drains its remaining
// messages without invoking anyone and exits on its own; Disconnect is
// the one place that waits for it. Unknown ids are no-ops, which makes
// handles idempotent.
func (a *Adapter) removeListener(id int) {
	a.mu.Lock()
	var d *delivery
	if _, ok := a.listeners[id]; ok {
		delete(a.listeners, id)
		if len(a.listeners) == 0 {
			d, a.delivery = a.delivery, nil
		}
	}
	a.mu.Unlock()

	if d != nil {
		d.shutdown()
	}
}

// openSubscriber verifies the broker will emit keyspace notifications
// (when verification is enabled and the broker exposes its configuration)
// and opens the pattern subscription.
func (a *Adapter) openSubscriber(client *redisclient.Client) (*redisclient.Subscriber, error) {
	var ctx, cancel = context.WithTimeout(context.Background(), a.cfg.ConnectTimeout)
	defer cancel()

	if a.cfg.VerifyNotifications {
		var value, err = client.ConfigValue(ctx, "notify-keyspace-events")
		if err != nil {
			// CONFIG is often administratively disabled; events may still
			// flow, so an unreadable configuration is not a failure.
			log.WithField("error", err).Debug("could not verify keyspace notification configuration")
		} else if !NotificationsEnabled(value) {
			return nil, adapter.Errorf(adapter.Transport,
				"keyspace notifications disabled (notify-keyspace-events=%q, need K plus g, h, l, z or A)", value)
		}
	}

	return client.OpenSubscriber(ctx, a.keys.KeyspacePattern(client.Endpoint().DB))
}

// NotificationsEnabled reports whether a notify-keyspace-events value
// covers keyspace channels plus the generic, hash, list, and sorted-set
// mutation classes the translator consumes.
func NotificationsEnabled(value string) bool {
	if !strings.ContainsRune(value, 'K') {
		return false
	}
	if strings.ContainsRune(value, 'A') {
		return true
	}
	for _, class := range "ghlz" {
		if !strings.ContainsRune(value, class) {
			return false
		}
	}
	return true
}

// delivery owns the subscriber connection and the goroutine translating
// its notifications for the listener set.
type delivery struct {
	sub *redisclient.Subscriber
}

func (a *Adapter) startDelivery(client *redisclient.Client, sub *redisclient.Subscriber) *delivery {
	var d = &delivery{sub: sub}
	var tr = translator{envelope: a.keys.NotificationEnvelope(client.Endpoint().DB)}
	a.deliveries.Add(1)
	go a.deliverLoop(d, tr)
	return d
}

// shutdown closes the subscriber, which ends the delivery loop once its
// channel drains. It does not wait for the loop to exit.
func (d *delivery) shutdown() {
	_ = d.sub.Close()
}

// deliverLoop runs until the subscriber closes. Translation never fails
// the loop: notifications that do not map to an event are counted and
// dropped. Each listener observes events in broker order. A deposed
// delivery (no longer the adapter's current one) drains its remaining
// messages without invoking any listener, so a replacement installed by
// a later Subscribe never produces duplicate events.
func (a *Adapter) deliverLoop(d *delivery, tr translator) {
	defer a.deliveries.Done()
	for msg := range d.sub.Messages() {
		var fns = a.snapshotListeners(d)
		if fns == nil {
			continue // Deposed.
		}
		var event, ok = tr.translate(msg.Channel, msg.Payload, time.Now().UTC())
		if !ok {
			eventsDropped.Inc()
			continue
		}
		eventsTranslated.WithLabelValues(string(event.Kind)).Inc()
		for _, fn := range fns {
			invokeListener(fn, event)
		}
	}
}

// snapshotListeners copies the listener set so delivery never holds the
// adapter lock while callbacks run. It returns nil when |d| is no longer
// the adapter's current delivery.
func (a *Adapter) snapshotListeners(d *delivery) []adapter.Listener {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.delivery != d {
		return nil
	}
	var fns = make([]adapter.Listener, 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func invokeListener(fn adapter.Listener, event adapter.JobEvent) {
	defer func() {
		if r := recover(); r != nil {
			listenerPanics.Inc()
			log.WithFields(log.Fields{
				"recover": r,
				"kind":    event.Kind,
				"queue":   event.Queue,
			}).Error("event listener panicked")
		}
	}()
	fn(event)
}

// translator maps keyspace notifications onto job events for one prefix
// and database, both fixed in the precomputed channel envelope.
type translator struct {
	envelope string
}

// translate classifies one notification. Channels outside the envelope,
// meta mutations, and index mutations with no lifecycle meaning are
// dropped (ok=false).
//
// Index mutations become queue-level events with an empty job id, since
// the notification does not carry one. Every other tail is a job id,
// with ':' preserved: hset and hmset mean the record changed, del means
// it was removed, and verbs the broker adds later default to updated
// rather than being lost.
func (t translator) translate(channel, op string, at time.Time) (adapter.JobEvent, bool) {
	if !strings.HasPrefix(channel, t.envelope) {
		return adapter.JobEvent{}, false
	}
	var rest = channel[len(t.envelope):]
	var i = strings.Index(rest, ":")
	if i <= 0 || i == len(rest)-1 {
		return adapter.JobEvent{}, false
	}
	var queue, tail = rest[:i], rest[i+1:]

	var kind adapter.EventKind
	switch tail {
	case suffixMeta:
		return adapter.JobEvent{}, false
	case suffixWait:
		switch op {
		case "lpush", "rpush":
			kind = adapter.EventWaiting
		case "lrem":
			kind = adapter.EventDequeued
		default:
			return adapter.JobEvent{}, false
		}
	case suffixActive:
		switch op {
		case "lpush", "rpush":
			kind = adapter.EventActive
		default:
			return adapter.JobEvent{}, false
		}
	case suffixCompleted:
		if op != "zadd" {
			return adapter.JobEvent{}, false
		}
		kind = adapter.EventCompleted
	case suffixFailed:
		if op != "zadd" {
			return adapter.JobEvent{}, false
		}
		kind = adapter.EventFailed
	case suffixDelayed:
		if op != "zadd" {
			return adapter.JobEvent{}, false
		}
		kind = adapter.EventDelayed
	default:
		switch op {
		case "del":
			return adapter.JobEvent{Kind: adapter.EventRemoved, Queue: queue, JobID: tail, At: at}, true
		default:
			return adapter.JobEvent{Kind: adapter.EventUpdated, Queue: queue, JobID: tail, At: at}, true
		}
	}
	return adapter.JobEvent{Kind: kind, Queue: queue, At: at}, true
}
