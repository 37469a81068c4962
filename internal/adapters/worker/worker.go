// Package worker drives claimed jobs through validation, enrichment and
// completion.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/locushq/catchment-api/internal/core"
	domainjob "github.com/locushq/catchment-api/internal/domain/job"
	"github.com/locushq/catchment-api/internal/domain/model"
	"github.com/locushq/catchment-api/internal/domain/schema"
	"github.com/locushq/catchment-api/internal/observability/metrics"
	"github.com/locushq/catchment-api/internal/observability/statsd"
)

// quotaExhaustedMessage is the per-row failure recorded once an account runs
// out of enrichment allocation mid-file.
const quotaExhaustedMessage = "enrichment allocation exhausted for this account"

// RunnerOptions configures the processing worker.
type RunnerOptions struct {
	Repo  core.JobRepository // Required: job store
	Geo   core.GeoClient     // Required: enrichment provider
	Quota core.QuotaKeeper   // Optional: per-account allocation
	Sinks []core.StatusSink  // Optional: completion event destinations

	Notifier        domainjob.Notifier        // Optional: custom queue notifier
	NotifierOptions domainjob.NotifierOptions // Optional: default notifier tuning

	Logger  *slog.Logger
	Metrics statsd.Sink

	Limits         schema.Limits // Validation limits; zero values take defaults
	Instances      int           // claim-loop goroutines; defaults to 1
	RowConcurrency int           // in-flight enrichments per job; defaults to 8
	BaseURL        string        // public base URL for download links
}

// Runner claims pending jobs and processes each one to a terminal state:
// validate the stored file, enrich every row with bounded concurrency, build
// the artifact, persist the completion, then notify sinks exactly once.
type Runner struct {
	repo     core.JobRepository
	geo      core.GeoClient
	quota    core.QuotaKeeper
	sinks    []core.StatusSink
	notifier domainjob.Notifier

	logger  *slog.Logger
	metrics statsd.Sink

	limits         schema.Limits
	instances      int
	rowConcurrency int
	baseURL        string
}

// NewRunner wires a processing worker.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Geo == nil {
		return nil, errors.New("GeoClient is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "worker")

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	limits := opts.Limits
	defaults := schema.DefaultLimits()
	if limits.MaxFileBytes <= 0 {
		limits.MaxFileBytes = defaults.MaxFileBytes
	}
	if limits.MaxRows <= 0 {
		limits.MaxRows = defaults.MaxRows
	}

	instances := opts.Instances
	if instances <= 0 {
		instances = 1
	}
	rowConcurrency := opts.RowConcurrency
	if rowConcurrency <= 0 {
		rowConcurrency = 8
	}

	return &Runner{
		repo:           opts.Repo,
		geo:            opts.Geo,
		quota:          opts.Quota,
		sinks:          opts.Sinks,
		notifier:       notifier,
		logger:         logger,
		metrics:        opts.Metrics,
		limits:         limits,
		instances:      instances,
		rowConcurrency: rowConcurrency,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
	}, nil
}

// Run starts the claim loops and blocks until the context is cancelled or a
// loop fails fatally.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting worker",
		"instances", r.instances,
		"row_concurrency", r.rowConcurrency,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub, notify := r.notifier.Subscribe()
	defer unsub()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.instances {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.claimLoop(ctx, notify); err != nil {
				// first error wins, cancels all loops
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (r *Runner) claimLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.repo.ClaimNext(ctx)
		switch {
		case err == nil:
			r.processJob(ctx, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			select {
			case <-ctx.Done():
				return nil
			case <-notify:
			}
		default:
			return fmt.Errorf("claim next: %w", err)
		}
	}
	return ctx.Err()
}

// processJob drives one claimed job to a terminal state. A persistence
// failure deliberately leaves the job in processing: it surfaces through the
// stuck-job health signal instead of being reported falsely terminal.
func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	logger := r.logger.With("csv_id", job.ID, "owner", job.Owner)
	logger.InfoContext(ctx, "processing job", "filename", job.Filename)

	// Announce the claim so subscribers watching a pending job see the
	// pending to processing transition, not just the terminal event.
	r.fanOut(ctx, model.StatusEvent{
		Type:   model.StatusEventInit,
		CSVID:  job.ID,
		Status: model.JobStatusProcessing,
	}, "")

	content, err := r.repo.GetContent(ctx, job.ID)
	if err != nil {
		logger.ErrorContext(ctx, "load file content failed", "error", err)
		r.emit("load", metrics.ResultError, start, nil, err)
		return
	}

	update := r.buildCompletion(ctx, job, content)

	committed, err := r.repo.Complete(ctx, job.ID, update)
	if err != nil {
		logger.ErrorContext(ctx, "persist completion failed", "error", err, "status", update.Status)
		r.emit("complete", metrics.ResultError, start, update, err)
		return
	}
	if !committed {
		// Lost the CAS race; whoever won also owns the notification.
		logger.WarnContext(ctx, "completion skipped, job no longer processing")
		r.emit("complete", metrics.ResultNoop, start, update, nil)
		return
	}

	r.emit("complete", metrics.ResultSuccess, start, update, nil)
	r.publish(ctx, job, update)
}

// buildCompletion validates and enriches the file, returning the terminal
// update to persist. It never returns nil.
func (r *Runner) buildCompletion(ctx context.Context, job *model.Job, content []byte) *model.CompletionUpdate {
	result := schema.Validate(content, r.limits)
	if !result.OK() {
		return &model.CompletionUpdate{
			Status:      model.JobStatusFailed,
			RowsTotal:   result.RowCount,
			RowsFailed:  result.RowCount,
			ErrorReport: result.Errors,
			Error:       "schema validation failed",
		}
	}

	enriched, rowErrors := r.enrichRows(ctx, job.Owner, result.Rows)

	update := &model.CompletionUpdate{
		RowsTotal:  len(result.Rows),
		RowsFailed: len(rowErrors),
	}

	switch {
	case len(rowErrors) == 0:
		update.Status = model.JobStatusDone
	case len(rowErrors) == len(result.Rows):
		update.Status = model.JobStatusFailed
		update.Error = "all rows failed enrichment"
	default:
		update.Status = model.JobStatusPartial
		update.Error = fmt.Sprintf("%d of %d rows failed enrichment", len(rowErrors), len(result.Rows))
	}
	update.ErrorReport = rowErrors

	if update.Status != model.JobStatusFailed {
		artifact, err := BuildArtifact(content, enriched, rowErrors)
		if err != nil {
			// The input already round-tripped through the validator, so a
			// build failure is a bug; fail the job with the real cause.
			r.logger.ErrorContext(ctx, "artifact build failed", "csv_id", job.ID, "error", err)
			return &model.CompletionUpdate{
				Status:      model.JobStatusFailed,
				RowsTotal:   len(result.Rows),
				RowsFailed:  len(result.Rows),
				ErrorReport: []model.RowError{{Row: 0, Message: "internal error building result file"}},
				Error:       "internal error building result file",
			}
		}
		update.Artifact = artifact
	}

	return update
}

// enrichRows calls the provider for every row with bounded concurrency.
// Results land in row-indexed slots so the artifact preserves input order.
func (r *Runner) enrichRows(ctx context.Context, owner string, rows []model.Row) ([]model.EnrichedRow, []model.RowError) {
	enriched := make([]model.EnrichedRow, len(rows))
	failures := make([]*model.RowError, len(rows))

	g := new(errgroup.Group)
	g.SetLimit(r.rowConcurrency)

	for i := range rows {
		g.Go(func() error {
			// Row failures are data, not errors; nothing aborts the group.
			if rowErr := r.enrichRow(ctx, owner, &rows[i], &enriched[i]); rowErr != nil {
				failures[i] = rowErr
			}
			return nil
		})
	}
	_ = g.Wait()

	var rowErrors []model.RowError
	for _, f := range failures {
		if f != nil {
			rowErrors = append(rowErrors, *f)
		}
	}
	return enriched, rowErrors
}

func (r *Runner) enrichRow(ctx context.Context, owner string, row *model.Row, out *model.EnrichedRow) *model.RowError {
	if r.quota != nil {
		allowed, err := r.quota.Consume(ctx, owner)
		if err != nil {
			return &model.RowError{Row: row.Number, Message: fmt.Sprintf("quota check failed: %v", err)}
		}
		if !allowed {
			return &model.RowError{Row: row.Number, Message: quotaExhaustedMessage}
		}
	}

	start := time.Now()
	result, err := r.geo.Enrich(ctx, row)
	metrics.EmitEnrichment(r.metrics, time.Since(start), err)
	if err != nil {
		return &model.RowError{Row: row.Number, Message: err.Error()}
	}

	*out = *result
	return nil
}

// publish delivers the terminal event to every sink. Failures are logged
// only; the persisted job state is the source of truth.
func (r *Runner) publish(ctx context.Context, job *model.Job, update *model.CompletionUpdate) {
	event := model.StatusEvent{
		Type:   model.StatusEventComplete,
		CSVID:  job.ID,
		Status: update.Status,
	}
	if update.Error != "" {
		msg := update.Error
		event.Error = &msg
	}

	var downloadURL string
	if len(update.Artifact) > 0 && r.baseURL != "" {
		downloadURL = r.baseURL + "/catchment/csv/" + job.ID
	}

	r.fanOut(ctx, event, downloadURL)
}

func (r *Runner) fanOut(ctx context.Context, event model.StatusEvent, downloadURL string) {
	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, event, downloadURL); err != nil {
			r.logger.ErrorContext(ctx, "status sink publish failed",
				"csv_id", event.CSVID,
				"status", event.Status,
				"error", err,
			)
		}
	}
}

func (r *Runner) emit(transition, result string, start time.Time, update *model.CompletionUpdate, err error) {
	m := metrics.JobMetric{
		Transition: transition,
		Result:     result,
		Duration:   time.Since(start),
		Err:        err,
	}
	if update != nil {
		m.Status = string(update.Status)
		m.RowsTotal = update.RowsTotal
		m.RowsFailed = update.RowsFailed
	}
	metrics.EmitJobLifecycle(r.metrics, m)
}
