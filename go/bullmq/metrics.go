package bullmq

import (
	"context"
	"sync"
	"time"

	"github.com/kyled7/queue-vision/go/adapter"
	"github.com/kyled7/queue-vision/go/redisclient"
)

// DefaultSampleHorizon is how many of the newest terminal jobs Metrics
// inspects per index unless configured otherwise.
const DefaultSampleHorizon = 100

// throughputWindow is the trailing interval of the throughput count.
const throughputWindow = time.Hour

// minDurationCache floors the processing-duration cache size.
const minDurationCache = 1024

// durationSample is the cached processing duration of one terminal job.
type durationSample struct {
	ms    float64
	valid bool // Record carried both processedOn and finishedOn.
}

// Metrics samples the newest terminal jobs of a queue and reduces them to
// a rolling snapshot. The sampling horizon bounds the cost of a call and
// is part of the contract: failure rate and processing time are computed
// over the sample, not the queue's full history, and throughput counts
// only sampled members which terminated within the trailing hour.
func (a *Adapter) Metrics(ctx context.Context, queue string) (adapter.Metrics, error) {
	if queue == "" {
		return adapter.Metrics{}, adapter.Errorf(adapter.InvalidArgument, "queue must not be empty")
	}
	var client, err = a.conn()
	if err != nil {
		return adapter.Metrics{}, err
	}

	var now = time.Now().UTC()
	var newest = int64(a.cfg.SampleHorizon - 1)

	var completed, failed []redisclient.ScoredMember
	var fe firstError
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		var e error
		completed, e = client.SortedRevRangeWithScores(ctx, a.keys.Completed(queue), 0, newest)
		fe.SetIfNil(e)
	}()
	go func() {
		defer wg.Done()
		var e error
		failed, e = client.SortedRevRangeWithScores(ctx, a.keys.Failed(queue), 0, newest)
		fe.SetIfNil(e)
	}()
	wg.Wait()
	if err = fe.First(); err != nil {
		return adapter.Metrics{}, adapter.WrapErr(adapter.Transport, err, "sampling terminal jobs of queue %q", queue)
	}

	// Scores are termination timestamps in milliseconds. The window
	// boundary is inclusive.
	var cutoff = float64(now.Add(-throughputWindow).UnixMilli())
	var throughput int
	for _, m := range completed {
		if m.Score >= cutoff {
			throughput++
		}
	}
	for _, m := range failed {
		if m.Score >= cutoff {
			throughput++
		}
	}

	var failureRate float64
	if sampled := len(completed) + len(failed); sampled > 0 {
		failureRate = float64(len(failed)) / float64(sampled)
	}

	avg, err := a.averageProcessingMs(ctx, client, queue, completed)
	if err != nil {
		return adapter.Metrics{}, err
	}

	return adapter.Metrics{
		Throughput:      throughput,
		FailureRate:     failureRate,
		AvgProcessingMs: avg,
		SampledAt:       now,
	}, nil
}

// averageProcessingMs averages finishedOn - processedOn over the completed
// sample. Terminal records are immutable, so extracted durations are kept
// in a cache shared across calls. Records pruned since the index read are
// skipped, as are records missing either timestamp.
func (a *Adapter) averageProcessingMs(ctx context.Context, client *redisclient.Client, queue string, completed []redisclient.ScoredMember) (float64, error) {
	var sum float64
	var count int

	for _, m := range completed {
		var key = a.keys.Job(queue, m.Member)
		var sample, ok = a.durations.Get(key)
		if !ok {
			var fields, err = client.RecordFields(ctx, key)
			if err != nil {
				return 0, adapter.WrapErr(adapter.Transport, err, "reading completed job %q of queue %q", m.Member, queue)
			}
			if len(fields) == 0 {
				continue // Pruned; an absent record is never cached.
			}
			sample = durationOf(fields)
			a.durations.Add(key, sample)
		}
		if sample.valid {
			sum += sample.ms
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

// durationOf extracts the processing duration of one terminal record.
// A record missing either timestamp, or carrying an unparseable one, is an
// invalid sample: metrics tolerate individual bad records.
func durationOf(fields map[string]string) durationSample {
	var processed, errP = msTimeField(fields, fieldProcessedOn)
	var finished, errF = msTimeField(fields, fieldFinishedOn)
	if errP != nil || errF != nil || processed == nil || finished == nil {
		return durationSample{}
	}
	return durationSample{
		ms:    float64(finished.Sub(*processed)) / float64(time.Millisecond),
		valid: true,
	}
}
