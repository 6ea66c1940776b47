package redisclient

import (
	"context"

	"github.com/kyled7/queue-vision/go/adapter"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// subscriberBuffer is the capacity of a Subscriber's delivery channel.
// The driver buffers further messages internally; the consumer is expected
// to keep draining until the channel closes.
const subscriberBuffer = 128

// Message is one push notification received by a pattern subscriber.
type Message struct {
	Pattern string // Subscription pattern which matched.
	Channel string // Concrete channel published to.
	Payload string
}

// Subscriber is a dedicated pattern-subscription connection. Received
// messages are pumped to the channel returned by Messages until Close,
// which then closes it.
type Subscriber struct {
	ps *redis.PubSub
	ch chan Message
}

// OpenSubscriber opens a push connection subscribed to |patterns|, and
// confirms the subscription with the server before returning so that
// failures surface here rather than on first message.
func (c *Client) OpenSubscriber(ctx context.Context, patterns ...string) (*Subscriber, error) {
	var ps = c.cmd.PSubscribe(ctx, patterns...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, adapter.WrapErr(adapter.Transport, err, "subscribing to %v", patterns)
	}
	var s = &Subscriber{ps: ps, ch: make(chan Message, subscriberBuffer)}
	go s.pump()

	log.WithField("patterns", patterns).Debug("opened redis pattern subscriber")
	return s, nil
}

// Messages returns the delivery channel. It is closed after Close.
func (s *Subscriber) Messages() <-chan Message { return s.ch }

// Close unsubscribes and tears down the connection. The delivery channel
// drains and then closes; consumers must keep reading until it does.
func (s *Subscriber) Close() error { return s.ps.Close() }

func (s *Subscriber) pump() {
	defer close(s.ch)
	for m := range s.ps.Channel() {
		s.ch <- Message{Pattern: m.Pattern, Channel: m.Channel, Payload: m.Payload}
	}
}
