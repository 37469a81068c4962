package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/locushq/catchment-api/internal/errors"

	"github.com/locushq/catchment-api/internal/data/pgxutil"
	"github.com/locushq/catchment-api/internal/domain/model"
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for catchment job management. Status
// transitions are guarded with compare-and-set WHERE clauses so that
// concurrent workers never double-claim or double-complete a job.
type JobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &JobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

// jobChannel is the pg_notify channel signalled when a pending job is inserted.
const jobChannel = "catchment_job_added"

const jobColumns = `
  id,
  owner,
  filename,
  status,
  rows_total,
  rows_failed,
  error_report,
  error,
  result_ref,
  created_at,
  started_at,
  completed_at,
  updated_at,
  download_count,
  first_downloaded_at,
  last_downloaded_at
`

// Create records a newly uploaded file as a pending job and signals waiting
// workers within the same transaction, so a commit is never observed without
// its notification.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := r.timeProvider.Now().UTC()

	query := `
      INSERT INTO catchment_jobs(id, owner, filename, status, file_content, created_at, updated_at)
      VALUES ($1, $2, $3, 'pending', $4, $5, $5)
      RETURNING ` + jobColumns

	var job *model.Job
	if txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, query, id, req.Owner, req.Filename, req.Content, now)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			j, collectErr := collectJobFromRows(rows)
			rows.Close()
			if collectErr != nil {
				return fmt.Errorf("collect job: %w", collectErr)
			}

			if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, jobChannel, j.ID); execErr != nil {
				return fmt.Errorf("send job notification: %w", execErr)
			}

			job = j
			return nil
		},
	}); txErr != nil {
		return nil, apperrors.MapDBError(txErr)
	}

	return job, nil
}

// GetByID retrieves a job by its ID without the stored file bodies.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+jobColumns+`
			FROM catchment_jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return fmt.Errorf("query job: %w", err)
		}
		j, collectErr := collectJobFromRows(rows)
		rows.Close()
		if collectErr != nil {
			return collectErr
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// GetContent returns the originally uploaded file bytes.
func (r *JobRepo) GetContent(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	row := r.DB.QueryRowContext(ctx, `
		SELECT file_content FROM catchment_jobs WHERE id = $1
	`, id)
	if err := row.Scan(&content); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return content, nil
}

// GetArtifact returns the job together with its enriched output. The
// artifact is nil until the job reaches done or partial.
func (r *JobRepo) GetArtifact(ctx context.Context, id string) (*model.Job, []byte, error) {
	var (
		job      *model.Job
		artifact []byte
	)
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+jobColumns+`, artifact
			FROM catchment_jobs
			WHERE id = $1
		`, id)
		if err != nil {
			return fmt.Errorf("query artifact: %w", err)
		}
		defer rows.Close()

		if !rows.Next() {
			if rerr := rows.Err(); rerr != nil {
				return rerr
			}
			return pgx.ErrNoRows
		}

		j := &model.Job{}
		var data jobRowData
		dest := scanDest(&data, j)
		dest = append(dest, &artifact)
		if scanErr := rows.Scan(dest...); scanErr != nil {
			return fmt.Errorf("scan artifact row: %w", scanErr)
		}
		if applyErr := data.apply(j); applyErr != nil {
			return applyErr
		}
		job = j
		return rows.Err()
	})
	if err != nil {
		return nil, nil, apperrors.MapDBError(err)
	}
	return job, artifact, nil
}

// List returns one page of an owner's jobs, newest first, without file bodies
// or error reports.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]model.JobSummary, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	if perPage > 1000 {
		perPage = 1000
	}
	offset := (page - 1) * perPage

	query := `
		SELECT id, filename, owner, status, rows_total, created_at
		FROM catchment_jobs
		WHERE owner = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	var result []model.JobSummary
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, opts.Owner, perPage, offset)
		if err != nil {
			return fmt.Errorf("query jobs by owner: %w", err)
		}
		defer rows.Close()

		vals, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.JobSummary])
		if err != nil {
			return fmt.Errorf("collect job summaries: %w", err)
		}
		result = vals
		return nil
	}); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return result, nil
}

// Stats returns counts of jobs in each state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')    AS pending,
    count(*) FILTER (WHERE status = 'processing') AS processing,
    count(*) FILTER (WHERE status = 'done')       AS done,
    count(*) FILTER (WHERE status = 'partial')    AS partial,
    count(*) FILTER (WHERE status = 'failed')     AS failed
  FROM catchment_jobs
  `).Scan(
		&s.Pending,
		&s.Processing,
		&s.Done,
		&s.Partial,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

// RecordDownload bumps the download counters for a served artifact.
func (r *JobRepo) RecordDownload(ctx context.Context, id string) error {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE catchment_jobs
		SET download_count = download_count + 1,
		    first_downloaded_at = COALESCE(first_downloaded_at, $2),
		    last_downloaded_at = $2,
		    updated_at = $2
		WHERE id = $1
	`, id, now)
	if err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record download rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFoundf("job %s not found", id)
	}
	return nil
}

// marshalErrorReport serializes row errors for the jsonb column; an empty
// report stores NULL.
func marshalErrorReport(report []model.RowError) (any, error) {
	if len(report) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal error report: %w", err)
	}
	return raw, nil
}
