package bullmq

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kyled7/queue-vision/go/adapter"
	"github.com/kyled7/queue-vision/go/redisclient"
	log "github.com/sirupsen/logrus"
)

// Config parameterizes an Adapter.
type Config struct {
	// Prefix under which the broker keeps its keys.
	Prefix string
	// SampleHorizon is how many of the newest terminal jobs Metrics
	// inspects per index.
	SampleHorizon int
	// ConnectTimeout bounds Connect's wait for the broker to answer, and
	// Subscribe's wait for subscription confirmation.
	ConnectTimeout time.Duration
	// VerifyNotifications makes the first Subscribe check the broker's
	// notify-keyspace-events configuration, failing fast when the broker
	// verifiably will not emit events.
	VerifyNotifications bool
}

// Adapter reads one BullMQ deployment behind the normalized contract.
// It is safe for concurrent use. The zero value is unusable; build with
// New, then Connect.
type Adapter struct {
	cfg  Config
	keys Keys

	mu        sync.Mutex
	client    *redisclient.Client
	delivery  *delivery // Present while at least one listener is registered.
	listeners map[int]adapter.Listener
	nextID    int

	// deliveries tracks every delivery goroutine, current or deposed, so
	// Disconnect can wait for all of them to exit.
	deliveries sync.WaitGroup

	// durations caches processing durations of terminal jobs, which are
	// immutable once written.
	durations *lru.Cache[string, durationSample]
}

var _ adapter.Adapter = (*Adapter)(nil)

// New builds a disconnected Adapter. Zero-valued Config fields take
// defaults; an unusable Config is InvalidArgument.
func New(cfg Config) (*Adapter, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if strings.Contains(cfg.Prefix, ":") {
		return nil, adapter.Errorf(adapter.InvalidArgument, "key prefix %q must not contain ':'", cfg.Prefix)
	}
	if cfg.SampleHorizon < 0 {
		return nil, adapter.Errorf(adapter.InvalidArgument, "sample horizon %d must be positive", cfg.SampleHorizon)
	}
	if cfg.SampleHorizon == 0 {
		cfg.SampleHorizon = DefaultSampleHorizon
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = redisclient.DefaultConnectTimeout
	}

	var cacheSize = 4 * cfg.SampleHorizon
	if cacheSize < minDurationCache {
		cacheSize = minDurationCache
	}
	var durations, err = lru.New[string, durationSample](cacheSize)
	if err != nil {
		panic(err) // Size is always positive.
	}

	return &Adapter{
		cfg:       cfg,
		keys:      Keys{Prefix: cfg.Prefix},
		listeners: make(map[int]adapter.Listener),
		durations: durations,
	}, nil
}

// Connect validates |endpoint| and opens the command connection, waiting
// up to ConnectTimeout for the broker to answer a ping. Connecting an
// already-connected Adapter is InvalidArgument; Disconnect first.
func (a *Adapter) Connect(ctx context.Context, endpoint string) error {
	a.mu.Lock()
	if a.client != nil {
		a.mu.Unlock()
		return adapter.Errorf(adapter.InvalidArgument, "already connected to %s", a.client.Endpoint())
	}
	a.mu.Unlock()

	var client, err = redisclient.Dial(ctx, endpoint, a.cfg.ConnectTimeout)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		_ = client.Close()
		return adapter.Errorf(adapter.InvalidArgument, "already connected to %s", a.client.Endpoint())
	}
	a.client = client

	log.WithFields(log.Fields{
		"endpoint": client.Endpoint().String(),
		"prefix":   a.cfg.Prefix,
	}).Info("connected to broker")
	return nil
}

// Disconnect closes the subscriber connection (when present) and then the
// command connection, dropping every listener registration. It is
// idempotent, and after it returns no delivery goroutine remains.
func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	var client, delivery = a.client, a.delivery
	a.client, a.delivery = nil, nil
	a.listeners = make(map[int]adapter.Listener)
	a.mu.Unlock()

	if delivery != nil {
		delivery.shutdown()
	}
	// Listeners were already dropped and any remaining delivery deposed, so
	// the loops deliver nothing more; wait for them to drain and exit.
	a.deliveries.Wait()

	if client == nil {
		return nil
	}
	a.durations.Purge() // Cached keys are only meaningful per endpoint.

	if err := client.Close(); err != nil {
		return adapter.WrapErr(adapter.Transport, err, "closing broker connection")
	}
	log.WithField("endpoint", client.Endpoint().String()).Info("disconnected from broker")
	return nil
}

// Endpoint reports the connected broker, or a zero Endpoint while
// disconnected.
func (a *Adapter) Endpoint() adapter.Endpoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return adapter.Endpoint{}
	}
	return a.client.Endpoint()
}

// conn returns the command client, or NotConnected.
func (a *Adapter) conn() (*redisclient.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil, adapter.Errorf(adapter.NotConnected, "not connected to a broker")
	}
	return a.client, nil
}
