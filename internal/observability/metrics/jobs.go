// Package metrics provides standardised metric emission for the pipeline.
package metrics

import (
	"time"

	obserrors "github.com/locushq/catchment-api/internal/observability/errors"
	"github.com/locushq/catchment-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Status     string
	Result     string
	Duration   time.Duration
	RowsTotal  int
	RowsFailed int
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Status != "" {
		tags["status"] = in.Status
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
	if in.RowsTotal > 0 {
		sink.Count("job.rows", int64(in.RowsTotal), CloneTags(tags))
	}
	if in.RowsFailed > 0 {
		sink.Count("job.rows_failed", int64(in.RowsFailed), CloneTags(tags))
	}
}

// EmitEnrichment records one provider call outcome.
func EmitEnrichment(sink statsd.Sink, duration time.Duration, err error) {
	if sink == nil {
		return
	}

	result := ResultSuccess
	tags := map[string]string{"result": result}
	if err != nil {
		tags["result"] = ResultError
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("enrich.call", 1, tags)
	if duration > 0 {
		sink.Timing("enrich.duration", duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out nothing.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
