package bullmq

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMetricsRollingWindow(t *testing.T) {
	var h = newHarness(t)
	var ctx = context.Background()
	var now = time.Now()
	var at = func(d time.Duration) float64 { return float64(now.Add(d).UnixMilli()) }

	require.NoError(t, h.seed.ZAdd(ctx, "bull:payments:completed",
		redis.Z{Score: at(-time.Second), Member: "c1"},
		redis.Z{Score: at(-2 * time.Hour), Member: "c2"},
	).Err())
	require.NoError(t, h.seed.ZAdd(ctx, "bull:payments:failed",
		redis.Z{Score: at(-30 * time.Minute), Member: "f1"},
	).Err())
	require.NoError(t, h.seed.HSet(ctx, "bull:payments:c1", "processedOn", "1000", "finishedOn", "1600").Err())
	require.NoError(t, h.seed.HSet(ctx, "bull:payments:c2", "processedOn", "2000", "finishedOn", "2400").Err())

	var m, err = h.a.Metrics(ctx, "payments")
	require.NoError(t, err)

	// c1 and f1 terminated within the hour; c2 did not.
	require.Equal(t, 2, m.Throughput)
	// One failure among three sampled terminal jobs.
	require.InDelta(t, 1.0/3.0, m.FailureRate, 1e-9)
	// (600 + 400) / 2: both completed records contribute, in or out of
	// the hour window.
	require.InDelta(t, 500.0, m.AvgProcessingMs, 1e-9)
	require.False(t, m.SampledAt.IsZero())
}

func TestMetricsEmptyQueue(t *testing.T) {
	var h = newHarness(t)

	var m, err = h.a.Metrics(context.Background(), "ghost")
	require.NoError(t, err)
	require.Zero(t, m.Throughput)
	require.Zero(t, m.FailureRate)
	require.Zero(t, m.AvgProcessingMs)
}

func TestMetricsValidation(t *testing.T) {
	var h = newHarness(t)

	var _, err = h.a.Metrics(context.Background(), "")
	require.Error(t, err)
}

func TestMetricsSamplingHorizon(t *testing.T) {
	var mini = miniredis.RunT(t)
	var ctx = context.Background()

	var a, err = New(Config{SampleHorizon: 100})
	require.NoError(t, err)
	require.NoError(t, a.Connect(ctx, "redis://"+mini.Addr()))
	t.Cleanup(func() { _ = a.Disconnect() })

	var seed = redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = seed.Close() })

	// 200 completions, every one within the trailing hour. Only the
	// newest 100 are sampled, so throughput reports 100.
	var now = time.Now()
	var members = make([]redis.Z, 200)
	for i := range members {
		members[i] = redis.Z{
			Score:  float64(now.Add(-time.Duration(i+1) * time.Second).UnixMilli()),
			Member: fmt.Sprintf("c%d", i),
		}
	}
	require.NoError(t, seed.ZAdd(ctx, "bull:bulk:completed", members...).Err())

	var m, errM = a.Metrics(ctx, "bulk")
	require.NoError(t, errM)
	require.Equal(t, 100, m.Throughput)
	require.Zero(t, m.FailureRate)
	// No records exist for the sampled ids; they are skipped silently.
	require.Zero(t, m.AvgProcessingMs)
}

func TestMetricsDurationCache(t *testing.T) {
	var h = newHarness(t)
	var ctx = context.Background()
	var now = float64(time.Now().UnixMilli())

	require.NoError(t, h.seed.ZAdd(ctx, "bull:q:completed", redis.Z{Score: now, Member: "c1"}).Err())
	require.NoError(t, h.seed.HSet(ctx, "bull:q:c1", "processedOn", "1000", "finishedOn", "1750").Err())

	var m, err = h.a.Metrics(ctx, "q")
	require.NoError(t, err)
	require.InDelta(t, 750.0, m.AvgProcessingMs, 1e-9)

	// Terminal records are immutable, so the duration is served from the
	// cache even after the broker prunes the record.
	require.NoError(t, h.seed.Del(ctx, "bull:q:c1").Err())
	m, err = h.a.Metrics(ctx, "q")
	require.NoError(t, err)
	require.InDelta(t, 750.0, m.AvgProcessingMs, 1e-9)
}
