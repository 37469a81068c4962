package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/locushq/catchment-api/internal/core"
	"github.com/locushq/catchment-api/internal/domain/model"
	"github.com/locushq/catchment-api/internal/domain/schema"
	apperrors "github.com/locushq/catchment-api/internal/errors"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo   core.JobRepository // Required: job store
	Broker *StatusBroker      // Optional: status event fan-out
	Quota  core.QuotaKeeper   // Optional: per-account enrichment quota
	Limits schema.Limits      // Upload gating limits; zero values take defaults
	Logger *slog.Logger       // Optional: structured logger
}

// JobService provides the gateway-facing business logic: upload gating,
// status reads, artifact serving and listing. Worker-side transitions live
// in the worker runner; both share the repository's CAS semantics.
type JobService struct {
	repo   core.JobRepository
	broker *StatusBroker
	quota  core.QuotaKeeper
	limits schema.Limits
	logger *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	limits := opts.Limits
	defaults := schema.DefaultLimits()
	if limits.MaxFileBytes <= 0 {
		limits.MaxFileBytes = defaults.MaxFileBytes
	}
	if limits.MaxRows <= 0 {
		limits.MaxRows = defaults.MaxRows
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}

	return &JobService{
		repo:   opts.Repo,
		broker: opts.Broker,
		quota:  opts.Quota,
		limits: limits,
		logger: logger,
	}, nil
}

// UploadQuota reports the caller's remaining allocation alongside how much
// of the uploaded file it can cover.
type UploadQuota struct {
	Remaining          int64 `json:"remaining"`
	TotalRows          int   `json:"total_rows"`
	EstimatedProcessed int64 `json:"estimated_processed"`
}

// Upload gates an upload and records it as a pending job. Gating here is
// deliberately shallow: size, parseability and row count. Full schema
// validation is the worker's job, so a malformed file still produces a
// durable failed job with its error report.
func (s *JobService) Upload(ctx context.Context, req *model.CreateJobRequest) (*model.Job, *UploadQuota, error) {
	if req == nil {
		return nil, nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid upload")
	}

	if int64(len(req.Content)) > s.limits.MaxFileBytes {
		return nil, nil, apperrors.TooLargef("file exceeds maximum size of %d bytes", s.limits.MaxFileBytes)
	}

	rowCount, err := countDataRows(req.Content)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "file is not parseable CSV")
	}
	if rowCount == 0 {
		return nil, nil, apperrors.Validation("file contains no data rows")
	}
	if rowCount > s.limits.MaxRows {
		return nil, nil, apperrors.Validationf("file contains %d rows, maximum is %d", rowCount, s.limits.MaxRows)
	}

	quota, err := s.uploadQuota(ctx, req.Owner, rowCount)
	if err != nil {
		return nil, nil, err
	}

	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "upload accepted",
			"csv_id", job.ID,
			"owner", job.Owner,
			"filename", job.Filename,
			"rows", rowCount,
		)
	}

	return job, quota, nil
}

func (s *JobService) uploadQuota(ctx context.Context, owner string, rowCount int) (*UploadQuota, error) {
	if s.quota == nil {
		return &UploadQuota{
			Remaining:          int64(rowCount),
			TotalRows:          rowCount,
			EstimatedProcessed: int64(rowCount),
		}, nil
	}

	remaining, err := s.quota.Remaining(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("check quota: %w", err)
	}
	if remaining <= 0 {
		return nil, apperrors.Quota("enrichment allocation exhausted for this account")
	}

	estimated := int64(rowCount)
	if estimated > remaining {
		estimated = remaining
	}
	return &UploadQuota{
		Remaining:          remaining,
		TotalRows:          rowCount,
		EstimatedProcessed: estimated,
	}, nil
}

// countDataRows counts CSV records after the header without validating them.
func countDataRows(content []byte) (int, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, errors.New("file is empty")
		}
		return 0, err
	}

	count := 0
	for {
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

// Status returns the status payload for a job owned by the caller. Errors
// are included only for terminal states that carry one.
func (s *JobService) Status(ctx context.Context, id, owner string) (*model.JobStatusResponse, error) {
	job, err := s.getOwned(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	resp := &model.JobStatusResponse{
		CSVID:  job.ID,
		Status: job.Status,
	}
	if job.Status == model.JobStatusFailed || job.Status == model.JobStatusPartial {
		resp.Error = job.Error
	}
	return resp, nil
}

// Get returns the full job record for a job owned by the caller.
func (s *JobService) Get(ctx context.Context, id, owner string) (*model.Job, error) {
	return s.getOwned(ctx, id, owner)
}

// Artifact serves the enriched output. Jobs still in flight are rejected as
// conflicts so callers can retry; failed jobs have no artifact. Each served
// download bumps the tracking counters.
func (s *JobService) Artifact(ctx context.Context, id, owner string) (*model.Job, []byte, error) {
	job, artifact, err := s.repo.GetArtifact(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Owner != owner {
		// Do not reveal other accounts' job IDs.
		return nil, nil, apperrors.NotFoundf("job %s not found", id)
	}

	if !job.Status.Terminal() {
		return nil, nil, apperrors.Conflict("file is still being processed")
	}
	if len(artifact) == 0 {
		return nil, nil, apperrors.NotFoundf("no result available for job %s", id)
	}

	if err := s.repo.RecordDownload(ctx, id); err != nil {
		// Serving the artifact matters more than the counters.
		if s.logger != nil {
			s.logger.WarnContext(ctx, "record download failed", "csv_id", id, "error", err)
		}
	}

	return job, artifact, nil
}

// List returns one page of the caller's jobs.
func (s *JobService) List(ctx context.Context, opts model.JobListOptions) ([]model.JobSummary, error) {
	if opts.Owner == "" {
		return nil, apperrors.Validation("owner is required")
	}
	return s.repo.List(ctx, opts)
}

// Subscribe attaches to a job's status event stream after verifying
// ownership, and reports the job's current status for the init event.
func (s *JobService) Subscribe(ctx context.Context, id, owner string) (*model.Job, <-chan model.StatusEvent, func(), error) {
	if s.broker == nil {
		return nil, nil, nil, errors.New("status broker not configured")
	}

	// Subscribe before the status read: a job finishing between the two is
	// then observed on the channel rather than lost.
	events, unsub := s.broker.Subscribe(id)

	job, err := s.getOwned(ctx, id, owner)
	if err != nil {
		unsub()
		return nil, nil, nil, err
	}

	return job, events, unsub, nil
}

// Stats returns queue counters for operators and health checks.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	return s.repo.Stats(ctx)
}

// OldestProcessingAge exposes the stuck-job signal for health checks.
func (s *JobService) OldestProcessingAge(ctx context.Context) (time.Duration, error) {
	return s.repo.OldestProcessingAge(ctx)
}

// RequeueStuck resets long-held processing jobs back to pending.
func (s *JobService) RequeueStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.repo.RequeueStuck(ctx, olderThan)
}

func (s *JobService) getOwned(ctx context.Context, id, owner string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != "" && job.Owner != owner {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	return job, nil
}
