package adapter

import (
	"fmt"
	"time"
)

// JobStatus is the closed set of states a job or queue index can be in.
// The paused status is a queue-level flag only: it appears on Queue, and is
// rejected by ListJobs and never produced by FetchJob.
type JobStatus string

const (
	Waiting   JobStatus = "waiting"
	Active    JobStatus = "active"
	Completed JobStatus = "completed"
	Failed    JobStatus = "failed"
	Delayed   JobStatus = "delayed"
	Paused    JobStatus = "paused"
)

// ListableStatuses are the statuses backed by a broker index from which
// jobs can be listed, in the order used for status resolution.
var ListableStatuses = []JobStatus{Waiting, Active, Completed, Failed, Delayed}

// ParseJobStatus maps a request string onto a JobStatus, or fails with
// InvalidArgument for anything outside the closed set.
func ParseJobStatus(s string) (JobStatus, error) {
	switch status := JobStatus(s); status {
	case Waiting, Active, Completed, Failed, Delayed, Paused:
		return status, nil
	default:
		return "", Errorf(InvalidArgument, "unknown job status %q", s)
	}
}

// Endpoint identifies the broker a Queue was discovered on.
// It is captured once at connect time and is purely diagnostic.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	DB   int    `json:"db"`
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d/%d", e.Host, e.Port, e.DB)
}

// StatusCounts are the per-index job counts of a queue, captured together
// at discovery time (all five or none).
type StatusCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// Queue is a point-in-time summary of one broker queue. Queues are
// synthesized per Discover call and never cached by the adapter.
type Queue struct {
	Name     string       `json:"name"`
	Counts   StatusCounts `json:"counts"`
	Paused   bool         `json:"paused"`
	Endpoint Endpoint     `json:"endpoint"`
}

// JobError is the terminal error record of a failed job.
type JobError struct {
	Message string   `json:"message"`
	Stack   []string `json:"stack,omitempty"`
}

// Job is the normalized view of one broker job record.
//
// Payload and ReturnValue hold the creator-defined values decoded from the
// broker record. When a payload field is not valid JSON the raw string is
// retained instead, so that malformed jobs remain inspectable.
type Job struct {
	Queue       string     `json:"queue"`
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Payload     any        `json:"payload,omitempty"`
	ReturnValue any        `json:"returnValue,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts *int       `json:"maxAttempts,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

// Metrics is a rolling snapshot over the newest terminal jobs of a queue.
// Throughput counts completions and failures within the trailing hour of
// the sample; FailureRate and AvgProcessingMs are computed over the sampled
// population only (the sampling horizon is part of the adapter contract).
type Metrics struct {
	Throughput      int       `json:"throughput"`
	FailureRate     float64   `json:"failureRate"`
	AvgProcessingMs float64   `json:"avgProcessingMs"`
	SampledAt       time.Time `json:"sampledAt"`
}

// EventKind classifies a JobEvent.
type EventKind string

const (
	// EventUpdated reports a mutation of a job record.
	EventUpdated EventKind = "updated"
	// EventRemoved reports deletion of a job record.
	EventRemoved EventKind = "removed"
	// EventWaiting through EventDelayed report queue-index transitions.
	// They carry no job id: brokers do not include it in index mutations.
	EventWaiting   EventKind = "waiting"
	EventDequeued  EventKind = "dequeued"
	EventActive    EventKind = "active"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventDelayed   EventKind = "delayed"
)

// JobEvent is one translated broker mutation. JobID is empty for
// queue-index events; At is assigned at translation time.
type JobEvent struct {
	Kind  EventKind `json:"kind"`
	Queue string    `json:"queue"`
	JobID string    `json:"jobId"`
	At    time.Time `json:"at"`
}

// MaxListLimit bounds a single ListJobs page.
const MaxListLimit = 100

// ListJobsRequest is one page request against a queue's status index.
type ListJobsRequest struct {
	Queue  string
	Status JobStatus
	Offset int
	Limit  int
}

// Validate returns an InvalidArgument error unless the request names a
// listable status and a well-formed page.
func (r ListJobsRequest) Validate() error {
	if r.Queue == "" {
		return Errorf(InvalidArgument, "queue must not be empty")
	}
	switch r.Status {
	case Waiting, Active, Completed, Failed, Delayed:
		// Listable.
	case Paused:
		return Errorf(InvalidArgument, "jobs are never individually paused; list the queue's wait index instead")
	default:
		return Errorf(InvalidArgument, "unknown job status %q", r.Status)
	}
	if r.Offset < 0 {
		return Errorf(InvalidArgument, "offset %d must be >= 0", r.Offset)
	}
	if r.Limit < 1 || r.Limit > MaxListLimit {
		return Errorf(InvalidArgument, "limit %d must be in [1, %d]", r.Limit, MaxListLimit)
	}
	return nil
}
