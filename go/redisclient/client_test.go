package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kyled7/queue-vision/go/adapter"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func mustDial(t *testing.T, m *miniredis.Miniredis) *Client {
	var c, err = Dial(context.Background(), "redis://"+m.Addr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// seedClient writes fixtures directly; the Client under test is read-only.
func seedClient(t *testing.T, m *miniredis.Miniredis) *redis.Client {
	var c = redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDialValidation(t *testing.T) {
	var ctx = context.Background()

	// Case: scheme other than redis / rediss.
	var _, err = Dial(ctx, "http://localhost:6379", time.Second)
	require.Equal(t, adapter.InvalidArgument, adapter.KindOf(err))

	// Case: well-formed scheme, malformed remainder.
	_, err = Dial(ctx, "redis://localhost:6379/not-a-db", time.Second)
	require.Equal(t, adapter.InvalidArgument, adapter.KindOf(err))

	// Case: valid URL, unreachable server.
	var m = miniredis.RunT(t)
	var addr = m.Addr()
	m.Close()
	_, err = Dial(ctx, "redis://"+addr, 500*time.Millisecond)
	require.Equal(t, adapter.Transport, adapter.KindOf(err))
}

func TestDialEndpoint(t *testing.T) {
	var m = miniredis.RunT(t)
	var c, err = Dial(context.Background(), "redis://"+m.Addr()+"/2", time.Second)
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, m.Addr()+"/2", c.Endpoint().String())
	require.Equal(t, 2, c.Endpoint().DB)
}

func TestListOps(t *testing.T) {
	var m = miniredis.RunT(t)
	var ctx = context.Background()
	var seed = seedClient(t, m)
	require.NoError(t, seed.RPush(ctx, "bull:q:wait", "3", "2", "1").Err())

	var c = mustDial(t, m)

	var vals, err = c.ListRange(ctx, "bull:q:wait", 0, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"3", "2"}, vals)

	vals, err = c.ListRange(ctx, "bull:q:absent", 0, -1)
	require.NoError(t, err)
	require.Empty(t, vals)

	n, err := c.ListLen(ctx, "bull:q:wait")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	n, err = c.ListLen(ctx, "bull:q:absent")
	require.NoError(t, err)
	require.Zero(t, n)

	ok, err := c.ListContains(ctx, "bull:q:wait", "2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.ListContains(ctx, "bull:q:wait", "9")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = c.ListContains(ctx, "bull:q:absent", "1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSortedOps(t *testing.T) {
	var m = miniredis.RunT(t)
	var ctx = context.Background()
	var seed = seedClient(t, m)
	require.NoError(t, seed.ZAdd(ctx, "bull:q:completed",
		redis.Z{Score: 1, Member: "a"},
		redis.Z{Score: 2, Member: "b"},
		redis.Z{Score: 3, Member: "c"},
	).Err())

	var c = mustDial(t, m)

	var vals, err = c.SortedRange(ctx, "bull:q:completed", 0, -1)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, vals)

	vals, err = c.SortedRevRange(ctx, "bull:q:completed", 0, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, vals)

	n, err := c.SortedCard(ctx, "bull:q:completed")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	score, ok, err := c.SortedScore(ctx, "bull:q:completed", "b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2.0, score)

	_, ok, err = c.SortedScore(ctx, "bull:q:completed", "zz")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = c.SortedScore(ctx, "bull:q:absent", "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecordFields(t *testing.T) {
	var m = miniredis.RunT(t)
	var ctx = context.Background()
	var seed = seedClient(t, m)
	require.NoError(t, seed.HSet(ctx, "bull:q:7", "name", "send", "attemptsMade", "2").Err())

	var c = mustDial(t, m)

	var fields, err = c.RecordFields(ctx, "bull:q:7")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"name": "send", "attemptsMade": "2"}, fields)

	fields, err = c.RecordFields(ctx, "bull:q:gone")
	require.NoError(t, err)
	require.Empty(t, fields)
}

func TestScanKeys(t *testing.T) {
	var m = miniredis.RunT(t)
	var ctx = context.Background()
	var seed = seedClient(t, m)

	for _, key := range []string{"bull:emails:meta", "bull:video:meta", "bull:emails:wait", "other:meta"} {
		require.NoError(t, seed.Set(ctx, key, "x", 0).Err())
	}

	var c = mustDial(t, m)

	var keys, err = c.ScanKeys(ctx, "bull:*:meta")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"bull:emails:meta", "bull:video:meta"}, keys)

	keys, err = c.ScanKeys(ctx, "nothing:*")
	require.NoError(t, err)
	require.Empty(t, keys)
}
