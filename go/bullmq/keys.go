// Package bullmq reads the BullMQ-on-Redis storage layout and presents it
// behind the normalized adapter contract. The broker's keys, index
// structures, and keyspace notifications are treated as an external wire
// format: this package owns the mapping in both directions and never
// writes to the broker.
package bullmq

import (
	"fmt"
	"strings"

	"github.com/kyled7/queue-vision/go/adapter"
)

// DefaultPrefix is the key prefix BullMQ deployments use unless configured
// otherwise.
const DefaultPrefix = "bull"

// Index suffixes of the layout. Any other final key token is a job id.
const (
	suffixMeta      = "meta"
	suffixWait      = "wait"
	suffixActive    = "active"
	suffixCompleted = "completed"
	suffixFailed    = "failed"
	suffixDelayed   = "delayed"
)

var reservedSuffixes = map[string]struct{}{
	suffixMeta:      {},
	suffixWait:      {},
	suffixActive:    {},
	suffixCompleted: {},
	suffixFailed:    {},
	suffixDelayed:   {},
}

// IsReserved reports whether |token| is a status-index or meta suffix.
// Queues carrying a reserved name cannot be told apart from an index key
// of another queue, so discovery drops them.
func IsReserved(token string) bool {
	var _, ok = reservedSuffixes[token]
	return ok
}

// Keys builds and parses storage keys under one prefix. Keys have the
// shape <prefix>:<queue>:<suffix> where the suffix is an index name,
// "meta", or a job id. The prefix must not contain the ':' delimiter;
// with that held, building and parsing are inverses.
type Keys struct {
	Prefix string
}

func (k Keys) Meta(queue string) string      { return k.join(queue, suffixMeta) }
func (k Keys) Wait(queue string) string      { return k.join(queue, suffixWait) }
func (k Keys) Active(queue string) string    { return k.join(queue, suffixActive) }
func (k Keys) Completed(queue string) string { return k.join(queue, suffixCompleted) }
func (k Keys) Failed(queue string) string    { return k.join(queue, suffixFailed) }
func (k Keys) Delayed(queue string) string   { return k.join(queue, suffixDelayed) }

// Job returns the record key of one job.
func (k Keys) Job(queue, id string) string { return k.join(queue, id) }

// Index returns the key of the index backing |status|. It panics for
// paused, which is a queue flag and has no index; callers exclude it.
func (k Keys) Index(queue string, status adapter.JobStatus) string {
	switch status {
	case adapter.Waiting:
		return k.Wait(queue)
	case adapter.Active:
		return k.Active(queue)
	case adapter.Completed:
		return k.Completed(queue)
	case adapter.Failed:
		return k.Failed(queue)
	case adapter.Delayed:
		return k.Delayed(queue)
	default:
		panic(fmt.Sprintf("status %q has no backing index", status))
	}
}

// MetaPattern is the scan pattern matching every queue's meta key.
func (k Keys) MetaPattern() string { return k.Prefix + ":*:" + suffixMeta }

// ParseMetaKey recovers a queue name from a scanned meta key: the first
// token must be the prefix, the last must be "meta", and the joined middle
// tokens are the name. Queue names may themselves contain ':'.
func (k Keys) ParseMetaKey(key string) (queue string, ok bool) {
	var parts = strings.Split(key, ":")
	if len(parts) < 3 || parts[0] != k.Prefix || parts[len(parts)-1] != suffixMeta {
		return "", false
	}
	queue = strings.Join(parts[1:len(parts)-1], ":")
	if queue == "" {
		return "", false
	}
	return queue, true
}

// KeyspacePattern is the subscription pattern covering every keyspace
// notification for keys under this prefix in database |db|.
func (k Keys) KeyspacePattern(db int) string {
	return k.NotificationEnvelope(db) + "*"
}

// NotificationEnvelope is the channel prefix of keyspace notifications for
// keys under this prefix in database |db|, delimiter included.
func (k Keys) NotificationEnvelope(db int) string {
	return fmt.Sprintf("__keyspace@%d__:%s:", db, k.Prefix)
}

func (k Keys) join(queue, suffix string) string {
	return k.Prefix + ":" + queue + ":" + suffix
}
