package bullmq

import (
	"context"
	"testing"
	"time"

	"github.com/kyled7/queue-vision/go/adapter"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func jobIDs(jobs []adapter.Job) []string {
	var ids = make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	return ids
}

func TestListJobsOrdering(t *testing.T) {
	var h = newHarness(t)
	seedEmails(t, h)
	var ctx = context.Background()

	// Case: completed pages newest first.
	var jobs, err = h.a.ListJobs(ctx, adapter.ListJobsRequest{Queue: "emails", Status: adapter.Completed, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []string{"j5", "j4"}, jobIDs(jobs))
	for _, job := range jobs {
		require.Equal(t, adapter.Completed, job.Status)
		require.Equal(t, "emails", job.Queue)
	}

	// Case: waiting pages in queue order, head first.
	jobs, err = h.a.ListJobs(ctx, adapter.ListJobsRequest{Queue: "emails", Status: adapter.Waiting, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []string{"j1", "j2"}, jobIDs(jobs))

	// Case: delayed pages soonest first.
	require.NoError(t, h.seed.ZAdd(ctx, "bull:emails:delayed", redis.Z{Score: 6000000000, Member: "j8"}).Err())
	require.NoError(t, h.seed.HSet(ctx, "bull:emails:j8", "timestamp", "5999000000", "delay", "1000000").Err())
	jobs, err = h.a.ListJobs(ctx, adapter.ListJobsRequest{Queue: "emails", Status: adapter.Delayed, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []string{"j7", "j8"}, jobIDs(jobs))
}

func TestListJobsPaging(t *testing.T) {
	var h = newHarness(t)
	seedEmails(t, h)
	var ctx = context.Background()

	var jobs, err = h.a.ListJobs(ctx, adapter.ListJobsRequest{Queue: "emails", Status: adapter.Completed, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, []string{"j4"}, jobIDs(jobs))

	// Case: pages past the end are empty, not errors.
	jobs, err = h.a.ListJobs(ctx, adapter.ListJobsRequest{Queue: "emails", Status: adapter.Completed, Offset: 10, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, jobs)

	// Case: a queue that does not exist has empty indexes.
	jobs, err = h.a.ListJobs(ctx, adapter.ListJobsRequest{Queue: "ghost", Status: adapter.Waiting, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestListJobsValidation(t *testing.T) {
	var h = newHarness(t)
	var ctx = context.Background()

	for _, req := range []adapter.ListJobsRequest{
		{Queue: "emails", Status: adapter.Paused, Limit: 10},
		{Queue: "emails", Status: "bogus", Limit: 10},
		{Queue: "emails", Status: adapter.Waiting, Limit: 0},
		{Queue: "emails", Status: adapter.Waiting, Limit: adapter.MaxListLimit + 1},
		{Queue: "emails", Status: adapter.Waiting, Offset: -1, Limit: 10},
		{Status: adapter.Waiting, Limit: 10},
	} {
		var _, err = h.a.ListJobs(ctx, req)
		require.Equal(t, adapter.InvalidArgument, adapter.KindOf(err), "%+v", req)
	}
}

func TestListJobsDropsTombstones(t *testing.T) {
	var h = newHarness(t)
	seedEmails(t, h)
	var ctx = context.Background()

	// j1 is still in the wait index but its record has been pruned.
	require.NoError(t, h.seed.Del(ctx, "bull:emails:j1").Err())

	var jobs, err = h.a.ListJobs(ctx, adapter.ListJobsRequest{Queue: "emails", Status: adapter.Waiting, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []string{"j2"}, jobIDs(jobs))
}

func TestFetchJob(t *testing.T) {
	var h = newHarness(t)
	seedEmails(t, h)
	var ctx = context.Background()

	// Case: failed job carries the error detail.
	var job, err = h.a.FetchJob(ctx, "emails", "j6")
	require.NoError(t, err)
	require.Equal(t, adapter.Failed, job.Status)
	require.NotNil(t, job.Error)
	require.Equal(t, "smtp timeout", job.Error.Message)
	require.Equal(t, []string{"Error: smtp timeout"}, job.Error.Stack)
	require.Equal(t, 2, job.Attempts)
	require.NotNil(t, job.MaxAttempts)
	require.Equal(t, 3, *job.MaxAttempts)

	// Case: each index resolves to its status.
	for id, want := range map[string]adapter.JobStatus{
		"j1": adapter.Waiting,
		"j3": adapter.Active,
		"j4": adapter.Completed,
		"j7": adapter.Delayed,
	} {
		job, err = h.a.FetchJob(ctx, "emails", id)
		require.NoError(t, err, id)
		require.Equal(t, want, job.Status, id)
	}

	// Case: delayed jobs expose their release time.
	job, err = h.a.FetchJob(ctx, "emails", "j7")
	require.NoError(t, err)
	require.NotNil(t, job.ScheduledAt)
	require.Equal(t, time.UnixMilli(5000000000).UTC(), *job.ScheduledAt)

	// Case: unknown id.
	_, err = h.a.FetchJob(ctx, "emails", "j99")
	require.Equal(t, adapter.NotFound, adapter.KindOf(err))

	// Case: indexed id whose record is gone.
	require.NoError(t, h.seed.Del(ctx, "bull:emails:j4").Err())
	_, err = h.a.FetchJob(ctx, "emails", "j4")
	require.Equal(t, adapter.NotFound, adapter.KindOf(err))

	// Case: empty arguments.
	_, err = h.a.FetchJob(ctx, "", "j1")
	require.Equal(t, adapter.InvalidArgument, adapter.KindOf(err))
	_, err = h.a.FetchJob(ctx, "emails", "")
	require.Equal(t, adapter.InvalidArgument, adapter.KindOf(err))
}

func TestFetchJobProbeOrder(t *testing.T) {
	var h = newHarness(t)
	var ctx = context.Background()

	// An id present in several indexes resolves to the earliest probe:
	// waiting before active before completed before failed before delayed.
	require.NoError(t, h.seed.RPush(ctx, "bull:q:wait", "dup").Err())
	require.NoError(t, h.seed.ZAdd(ctx, "bull:q:completed", redis.Z{Score: 1, Member: "dup"}).Err())
	require.NoError(t, h.seed.HSet(ctx, "bull:q:dup", "data", "1").Err())

	var job, err = h.a.FetchJob(ctx, "q", "dup")
	require.NoError(t, err)
	require.Equal(t, adapter.Waiting, job.Status)

	// With the wait entry gone the next probe wins.
	require.NoError(t, h.seed.LRem(ctx, "bull:q:wait", 0, "dup").Err())
	job, err = h.a.FetchJob(ctx, "q", "dup")
	require.NoError(t, err)
	require.Equal(t, adapter.Completed, job.Status)
}
