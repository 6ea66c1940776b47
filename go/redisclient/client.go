// Package redisclient wraps the go-redis driver with the narrow, read-only
// command surface the dashboard requires, plus pattern subscribers for
// keyspace notifications. The driver never leaks: callers hold a *Client
// and receive tagged adapter errors, not raw redis replies.
package redisclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kyled7/queue-vision/go/adapter"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultConnectTimeout bounds Dial's reachability probe when the caller
// does not supply a timeout of its own.
const DefaultConnectTimeout = 10 * time.Second

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 256

// Client is a command connection to one Redis endpoint, safe for concurrent
// use. Push subscriptions run on dedicated connections created by
// OpenSubscriber, and are closed independently of the Client.
type Client struct {
	cmd      *redis.Client
	endpoint adapter.Endpoint
}

// Dial validates |endpoint| as a redis:// or rediss:// URL, connects, and
// verifies reachability with a single bounded PING. Driver-level retries
// are disabled so later failures surface promptly instead of stalling
// inside the driver.
func Dial(ctx context.Context, endpoint string, connectTimeout time.Duration) (*Client, error) {
	if !strings.HasPrefix(endpoint, "redis://") && !strings.HasPrefix(endpoint, "rediss://") {
		return nil, adapter.Errorf(adapter.InvalidArgument, "endpoint must be a redis:// or rediss:// URL")
	}
	var opts, err = redis.ParseURL(endpoint)
	if err != nil {
		return nil, adapter.WrapErr(adapter.InvalidArgument, err, "parsing redis endpoint")
	}
	opts.MaxRetries = -1

	var host, port = splitAddr(opts.Addr)
	var client = &Client{
		cmd:      redis.NewClient(opts),
		endpoint: adapter.Endpoint{Host: host, Port: port, DB: opts.DB},
	}

	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	var pingCtx, cancel = context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err = client.cmd.Ping(pingCtx).Err(); err != nil {
		_ = client.cmd.Close()
		if ctx.Err() != nil {
			return nil, adapter.WrapErr(adapter.Cancelled, ctx.Err(), "connecting to %s", client.endpoint)
		}
		// The deadline here is ours, not the caller's: an unreachable
		// broker is a transport failure.
		return nil, &adapter.Error{
			Kind:    adapter.Transport,
			Message: fmt.Sprintf("connecting to %s", client.endpoint),
			Cause:   err,
		}
	}

	log.WithFields(log.Fields{
		"addr": opts.Addr,
		"db":   opts.DB,
	}).Debug("connected to redis")

	return client, nil
}

// Endpoint reports the host, port, and database this client dialed.
func (c *Client) Endpoint() adapter.Endpoint { return c.endpoint }

// Close releases the command connection pool.
func (c *Client) Close() error { return c.cmd.Close() }

// ListRange returns elements [start, stop] of a list key, both inclusive,
// in list order. An absent key yields an empty result.
func (c *Client) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var vals, err = c.cmd.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, adapter.WrapErr(adapter.Transport, err, "LRANGE %s", key)
	}
	return vals, nil
}

// ListLen returns the length of a list key, zero when absent.
func (c *Client) ListLen(ctx context.Context, key string) (int64, error) {
	var n, err = c.cmd.LLen(ctx, key).Result()
	if err != nil {
		return 0, adapter.WrapErr(adapter.Transport, err, "LLEN %s", key)
	}
	return n, nil
}

// ListContains reports whether |element| is a member of the list at |key|.
func (c *Client) ListContains(ctx context.Context, key, element string) (bool, error) {
	var _, err = c.cmd.LPos(ctx, key, element, redis.LPosArgs{}).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, adapter.WrapErr(adapter.Transport, err, "LPOS %s", key)
	}
	return true, nil
}

// SortedRange returns members [start, stop] of a sorted set in ascending
// score order, both bounds inclusive.
func (c *Client) SortedRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var vals, err = c.cmd.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, adapter.WrapErr(adapter.Transport, err, "ZRANGE %s", key)
	}
	return vals, nil
}

// SortedRevRange returns members [start, stop] of a sorted set in
// descending score order, both bounds inclusive.
func (c *Client) SortedRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	var vals, err = c.cmd.ZRevRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, adapter.WrapErr(adapter.Transport, err, "ZREVRANGE %s", key)
	}
	return vals, nil
}

// ScoredMember is one sorted-set member together with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// SortedRevRangeWithScores returns members [start, stop] of a sorted set
// in descending score order, scores included.
func (c *Client) SortedRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	var zs, err = c.cmd.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, adapter.WrapErr(adapter.Transport, err, "ZREVRANGE WITHSCORES %s", key)
	}
	var members = make([]ScoredMember, len(zs))
	for i, z := range zs {
		var member, _ = z.Member.(string)
		members[i] = ScoredMember{Member: member, Score: z.Score}
	}
	return members, nil
}

// SortedCard returns the cardinality of a sorted set, zero when absent.
func (c *Client) SortedCard(ctx context.Context, key string) (int64, error) {
	var n, err = c.cmd.ZCard(ctx, key).Result()
	if err != nil {
		return 0, adapter.WrapErr(adapter.Transport, err, "ZCARD %s", key)
	}
	return n, nil
}

// SortedScore returns the score of |member| within the sorted set at |key|,
// with ok=false when the member is not present.
func (c *Client) SortedScore(ctx context.Context, key, member string) (score float64, ok bool, err error) {
	score, err = c.cmd.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, adapter.WrapErr(adapter.Transport, err, "ZSCORE %s", key)
	}
	return score, true, nil
}

// RecordFields returns all fields of the hash at |key|. An absent key
// yields an empty map: empty hashes cannot exist, so len()==0 means the
// record is gone.
func (c *Client) RecordFields(ctx context.Context, key string) (map[string]string, error) {
	var fields, err = c.cmd.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, adapter.WrapErr(adapter.Transport, err, "HGETALL %s", key)
	}
	return fields, nil
}

// ScanKeys walks SCAN MATCH |match| to completion and returns every
// matched key. SCAN may return a key more than once across iterations,
// so results are de-duplicated. Order is unspecified.
func (c *Client) ScanKeys(ctx context.Context, match string) ([]string, error) {
	var keys []string
	var seen = make(map[string]struct{})
	var cursor uint64

	for {
		var batch, next, err = c.cmd.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, adapter.WrapErr(adapter.Transport, err, "SCAN %s", match)
		}
		for _, key := range batch {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
		}
		if cursor = next; cursor == 0 {
			return keys, nil
		}
	}
}

// ConfigValue returns one server configuration parameter, or "" when the
// server does not report it. Servers which disable CONFIG (common on
// managed offerings) return a Transport error instead.
func (c *Client) ConfigValue(ctx context.Context, parameter string) (string, error) {
	var vals, err = c.cmd.ConfigGet(ctx, parameter).Result()
	if err != nil {
		return "", adapter.WrapErr(adapter.Transport, err, "CONFIG GET %s", parameter)
	}
	return vals[parameter], nil
}

func splitAddr(addr string) (string, int) {
	var host, portStr, err = net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	var port, _ = strconv.Atoi(portStr)
	return host, port
}
