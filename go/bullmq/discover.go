package bullmq

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kyled7/queue-vision/go/adapter"
	"github.com/kyled7/queue-vision/go/redisclient"
	log "github.com/sirupsen/logrus"
)

// Discover scans the broker for queue meta keys and assembles a
// point-in-time summary of each queue found, sorted by name. The six
// probes of a queue (five index counts plus the paused flag) run
// concurrently, and their results are all-or-nothing: a failed probe
// fails the whole call rather than returning partial counts.
func (a *Adapter) Discover(ctx context.Context) ([]adapter.Queue, error) {
	var client, err = a.conn()
	if err != nil {
		return nil, err
	}

	keys, err := client.ScanKeys(ctx, a.keys.MetaPattern())
	if err != nil {
		return nil, adapter.WrapErr(adapter.Transport, err, "scanning queue meta keys")
	}

	var names []string
	for _, key := range keys {
		var queue, ok = a.keys.ParseMetaKey(key)
		if !ok {
			continue
		}
		if IsReserved(queue) {
			// Such a queue is indistinguishable from another queue's index.
			log.WithFields(log.Fields{
				"key":   key,
				"queue": queue,
			}).Debug("dropping queue named after a reserved suffix")
			continue
		}
		names = append(names, queue)
	}
	sort.Strings(names)

	var queues = make([]adapter.Queue, len(names))
	var fe firstError
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			var queue, err = a.describeQueue(ctx, client, name)
			if err != nil {
				fe.SetIfNil(err)
				return
			}
			queues[i] = queue
		}(i, name)
	}
	wg.Wait()

	if err = fe.First(); err != nil {
		return nil, adapter.WrapErr(adapter.Transport, err, "describing queues")
	}
	return queues, nil
}

func (a *Adapter) describeQueue(ctx context.Context, client *redisclient.Client, name string) (adapter.Queue, error) {
	var counts adapter.StatusCounts
	var paused bool
	var fe firstError
	var wg sync.WaitGroup

	var listLen = func(key string, into *int64) func() error {
		return func() error {
			var n, err = client.ListLen(ctx, key)
			*into = n
			return err
		}
	}
	var sortedCard = func(key string, into *int64) func() error {
		return func() error {
			var n, err = client.SortedCard(ctx, key)
			*into = n
			return err
		}
	}

	// Each probe writes a distinct field; wg.Wait orders the reads.
	var probes = []func() error{
		listLen(a.keys.Wait(name), &counts.Waiting),
		listLen(a.keys.Active(name), &counts.Active),
		sortedCard(a.keys.Completed(name), &counts.Completed),
		sortedCard(a.keys.Failed(name), &counts.Failed),
		sortedCard(a.keys.Delayed(name), &counts.Delayed),
		func() error {
			var fields, err = client.RecordFields(ctx, a.keys.Meta(name))
			if err != nil {
				return err
			}
			// The broker sets this field while paused and removes it on
			// resume; presence is the signal.
			_, paused = fields["paused"]
			return nil
		},
	}
	for _, probe := range probes {
		wg.Add(1)
		go func(probe func() error) {
			defer wg.Done()
			fe.SetIfNil(probe())
		}(probe)
	}
	wg.Wait()

	if err := fe.First(); err != nil {
		return adapter.Queue{}, fmt.Errorf("probing queue %q: %w", name, err)
	}
	return adapter.Queue{
		Name:     name,
		Counts:   counts,
		Paused:   paused,
		Endpoint: client.Endpoint(),
	}, nil
}
