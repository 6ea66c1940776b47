package bullmq

import (
	"context"
	"sync"

	"github.com/kyled7/queue-vision/go/adapter"
	"github.com/kyled7/queue-vision/go/redisclient"
)

// ListJobs reads one page of ids from the index backing the requested
// status and resolves each to a full job record. Pages keep index order:
// list order for waiting and active, newest first for completed and
// failed, soonest first for delayed. Ids whose record vanished between
// the index read and the record read are tombstones and are dropped.
func (a *Adapter) ListJobs(ctx context.Context, req adapter.ListJobsRequest) ([]adapter.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var client, err = a.conn()
	if err != nil {
		return nil, err
	}

	var key = a.keys.Index(req.Queue, req.Status)
	var start = int64(req.Offset)
	var stop = int64(req.Offset + req.Limit - 1)

	var ids []string
	switch req.Status {
	case adapter.Waiting, adapter.Active:
		ids, err = client.ListRange(ctx, key, start, stop)
	case adapter.Completed, adapter.Failed:
		ids, err = client.SortedRevRange(ctx, key, start, stop)
	case adapter.Delayed:
		ids, err = client.SortedRange(ctx, key, start, stop)
	}
	if err != nil {
		return nil, adapter.WrapErr(adapter.Transport, err, "reading %s index of queue %q", req.Status, req.Queue)
	}

	return a.fetchPage(ctx, client, req.Queue, req.Status, ids)
}

// fetchPage resolves ids to decoded jobs concurrently, preserving index
// order and dropping tombstones.
func (a *Adapter) fetchPage(ctx context.Context, client *redisclient.Client, queue string, status adapter.JobStatus, ids []string) ([]adapter.Job, error) {
	var page = make([]*adapter.Job, len(ids))
	var fe firstError
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			var fields, err = client.RecordFields(ctx, a.keys.Job(queue, id))
			if err != nil {
				fe.SetIfNil(err)
				return
			}
			if len(fields) == 0 {
				return // Tombstone: pruned from under the index.
			}
			job, err := decodeRecord(queue, id, status, fields)
			if err != nil {
				fe.SetIfNil(err)
				return
			}
			page[i] = &job
		}(i, id)
	}
	wg.Wait()

	if err := fe.First(); err != nil {
		return nil, adapter.WrapErr(adapter.Transport, err, "fetching jobs of queue %q", queue)
	}
	var jobs = make([]adapter.Job, 0, len(ids))
	for _, job := range page {
		if job != nil {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

// FetchJob resolves the status of one job by probing the five indexes in
// waiting, active, completed, failed, delayed order. The first index
// reporting the id determines the status and no further probes are
// issued. An id in no index, or whose record is gone despite a positive
// probe, is NotFound.
func (a *Adapter) FetchJob(ctx context.Context, queue, id string) (adapter.Job, error) {
	if queue == "" || id == "" {
		return adapter.Job{}, adapter.Errorf(adapter.InvalidArgument, "queue and job id must not be empty")
	}
	var client, err = a.conn()
	if err != nil {
		return adapter.Job{}, err
	}

	var inList = func(key string) func() (bool, error) {
		return func() (bool, error) { return client.ListContains(ctx, key, id) }
	}
	var inSorted = func(key string) func() (bool, error) {
		return func() (bool, error) {
			var _, ok, err = client.SortedScore(ctx, key, id)
			return ok, err
		}
	}

	var status adapter.JobStatus
	for _, probe := range []struct {
		status adapter.JobStatus
		hit    func() (bool, error)
	}{
		{adapter.Waiting, inList(a.keys.Wait(queue))},
		{adapter.Active, inList(a.keys.Active(queue))},
		{adapter.Completed, inSorted(a.keys.Completed(queue))},
		{adapter.Failed, inSorted(a.keys.Failed(queue))},
		{adapter.Delayed, inSorted(a.keys.Delayed(queue))},
	} {
		var ok bool
		if ok, err = probe.hit(); err != nil {
			return adapter.Job{}, adapter.WrapErr(adapter.Transport, err,
				"probing %s index of queue %q", probe.status, queue)
		} else if ok {
			status = probe.status
			break
		}
	}
	if status == "" {
		return adapter.Job{}, adapter.Errorf(adapter.NotFound, "job %q not found in queue %q", id, queue)
	}

	fields, err := client.RecordFields(ctx, a.keys.Job(queue, id))
	if err != nil {
		return adapter.Job{}, adapter.WrapErr(adapter.Transport, err, "reading job %q of queue %q", id, queue)
	}
	if len(fields) == 0 {
		return adapter.Job{}, adapter.Errorf(adapter.NotFound, "job %q of queue %q was removed", id, queue)
	}
	return decodeRecord(queue, id, status, fields)
}
