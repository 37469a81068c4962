package core

import (
	"context"
	"time"

	"github.com/locushq/catchment-api/internal/domain/model"
)

// This file contains repository and client interface definitions (ports in
// hexagonal architecture). These interfaces define the contracts between the
// service layer and the data/adapter layers. Service implementations should
// depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for catchment job data operations.
// All mutations of a single job are atomic per job: status transitions are
// compare-and-set guarded so concurrent workers never double-process.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	GetContent(ctx context.Context, id string) ([]byte, error)
	GetArtifact(ctx context.Context, id string) (*model.Job, []byte, error)

	// ClaimNext atomically transitions the oldest pending job to processing
	// and returns it, or model.ErrNoJobsAvailable.
	ClaimNext(ctx context.Context) (*model.Job, error)
	// Claim compare-and-sets one specific job pending->processing. Returns
	// false when another worker already holds it.
	Claim(ctx context.Context, id string) (*model.Job, bool, error)
	// WaitForNotification blocks until the queue signals a new pending job.
	WaitForNotification(ctx context.Context) error
	// Complete persists a terminal state; the CAS guard requires the job to
	// still be processing. Returns false when the guard misses.
	Complete(ctx context.Context, id string, update *model.CompletionUpdate) (bool, error)

	List(ctx context.Context, opts model.JobListOptions) ([]model.JobSummary, error)
	Stats(ctx context.Context) (*model.JobStats, error)
	// OldestProcessingAge surfaces stuck jobs for liveness checks; zero when
	// nothing is processing.
	OldestProcessingAge(ctx context.Context) (time.Duration, error)
	RecordDownload(ctx context.Context, id string) error
	// RequeueStuck resets processing jobs older than the threshold back to
	// pending. Operator-triggered only; the pipeline never does this itself.
	RequeueStuck(ctx context.Context, olderThan time.Duration) (int64, error)
}

// GeoClient defines the interface for the external catchment-geometry
// provider. One call per row; implementations apply per-call timeouts and
// bounded retries on transient failures.
type GeoClient interface {
	Enrich(ctx context.Context, row *model.Row) (*model.EnrichedRow, error)
}

// QuotaKeeper tracks per-account enrichment allocation consumption.
type QuotaKeeper interface {
	// Remaining returns how many enrichment calls the account may still make.
	Remaining(ctx context.Context, owner string) (int64, error)
	// Consume records one successful enrichment call. It reports false once
	// the allocation is exhausted, without going negative.
	Consume(ctx context.Context, owner string) (bool, error)
}

// StatusSink receives terminal status notifications. Delivery is best-effort
// and never rolls back job state; the job store is the source of truth.
type StatusSink interface {
	Publish(ctx context.Context, event model.StatusEvent, downloadURL string) error
}

// StatusSubscriber exposes the per-job status event stream consumed by the
// SSE handler and any other push transport.
type StatusSubscriber interface {
	// Subscribe returns a channel of status events for the job and an
	// unsubscribe func. The channel closes after a complete event.
	Subscribe(csvID string) (<-chan model.StatusEvent, func())
}
