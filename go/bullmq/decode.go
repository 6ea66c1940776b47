package bullmq

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kyled7/queue-vision/go/adapter"
)

// Field names of a job record hash.
const (
	fieldData         = "data"
	fieldOpts         = "opts"
	fieldReturnValue  = "returnvalue"
	fieldStacktrace   = "stacktrace"
	fieldFailedReason = "failedReason"
	fieldTimestamp    = "timestamp"
	fieldProcessedOn  = "processedOn"
	fieldFinishedOn   = "finishedOn"
	fieldDelay        = "delay"
	fieldAttempts     = "attemptsMade"
)

// decodeRecord maps one raw job record onto the normalized Job.
//
// Creator-defined fields (data, returnvalue) that are not valid JSON are
// surfaced as their raw string, so malformed jobs stay inspectable.
// Structural fields (timestamps, counters, opts) that fail to parse are
// Decode errors: their values are broker-written and a bad one means the
// record cannot be trusted.
func decodeRecord(queue, id string, status adapter.JobStatus, fields map[string]string) (adapter.Job, error) {
	var job = adapter.Job{
		Queue:       queue,
		ID:          id,
		Status:      status,
		Payload:     decodeValue(fields[fieldData]),
		ReturnValue: decodeValue(fields[fieldReturnValue]),
	}

	var fail = func(err error) (adapter.Job, error) {
		return adapter.Job{}, adapter.WrapErr(adapter.Decode, err, "decoding job %q of queue %q", id, queue)
	}

	var err error
	if job.Attempts, err = intField(fields, fieldAttempts); err != nil {
		return fail(err)
	}
	if job.MaxAttempts, err = optsMaxAttempts(fields); err != nil {
		return fail(err)
	}
	if job.CreatedAt, err = msTimeField(fields, fieldTimestamp); err != nil {
		return fail(err)
	}
	if job.ProcessedAt, err = msTimeField(fields, fieldProcessedOn); err != nil {
		return fail(err)
	}
	if job.FinishedAt, err = msTimeField(fields, fieldFinishedOn); err != nil {
		return fail(err)
	}

	delayMs, err := int64Field(fields, fieldDelay)
	if err != nil {
		return fail(err)
	}
	if status == adapter.Delayed && delayMs > 0 && job.CreatedAt != nil {
		var release = job.CreatedAt.Add(time.Duration(delayMs) * time.Millisecond)
		job.ScheduledAt = &release
	}

	var reason = fields[fieldFailedReason]
	var stack = stackField(fields)
	if reason != "" || len(stack) != 0 {
		job.Error = &adapter.JobError{Message: reason, Stack: stack}
	}
	return job, nil
}

// decodeValue returns a field's parsed JSON when it is well formed, the
// raw string when it is not, and nil when absent.
func decodeValue(raw string) any {
	if raw == "" {
		return nil
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	return raw
}

// stackField decodes the stacktrace array. A malformed value is retained
// as a single raw entry rather than failing the record.
func stackField(fields map[string]string) []string {
	var raw = fields[fieldStacktrace]
	if raw == "" {
		return nil
	}
	var stack []string
	if err := json.Unmarshal([]byte(raw), &stack); err != nil {
		return []string{raw}
	}
	return stack
}

// optsMaxAttempts extracts the attempts bound from the opts document.
// A zero bound means the creator did not set one and maps to absent.
func optsMaxAttempts(fields map[string]string) (*int, error) {
	var raw = fields[fieldOpts]
	if raw == "" {
		return nil, nil
	}
	var opts map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return nil, fmt.Errorf("field %s: %w", fieldOpts, err)
	}
	var rawAttempts, ok = opts["attempts"]
	if !ok {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(rawAttempts, &n); err != nil {
		return nil, fmt.Errorf("field %s.attempts: %w", fieldOpts, err)
	}
	if n == 0 {
		return nil, nil
	}
	return &n, nil
}

// intField parses an integer field, defaulting to zero when absent.
func intField(fields map[string]string, name string) (int, error) {
	var raw, ok = fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	var n, err = strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return n, nil
}

func int64Field(fields map[string]string, name string) (int64, error) {
	var raw, ok = fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	var n, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return n, nil
}

// msTimeField parses a millisecond epoch field into a UTC instant, with
// nil for absent fields.
func msTimeField(fields map[string]string, name string) (*time.Time, error) {
	var raw, ok = fields[name]
	if !ok || raw == "" {
		return nil, nil
	}
	var ms, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", name, err)
	}
	var t = time.UnixMilli(ms).UTC()
	return &t, nil
}
