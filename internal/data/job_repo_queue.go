package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	apperrors "github.com/locushq/catchment-api/internal/errors"

	"github.com/locushq/catchment-api/internal/data/pgxutil"
	"github.com/locushq/catchment-api/internal/domain/model"
)

// SQL used by ClaimNext to atomically claim the oldest pending job.
const claimNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM catchment_jobs
    WHERE status = 'pending'
    ORDER BY created_at ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE catchment_jobs j
  SET
    status = 'processing',
    started_at = COALESCE(j.started_at, $1),
    updated_at = $1
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.owner, j.filename, j.status, j.rows_total, j.rows_failed,
            j.error_report, j.error, j.result_ref, j.created_at, j.started_at,
            j.completed_at, j.updated_at, j.download_count,
            j.first_downloaded_at, j.last_downloaded_at`

// ClaimNext atomically transitions the oldest pending job to processing and
// returns it. Concurrent workers skip each other's locked rows, so a job is
// handed to exactly one worker.
func (r *JobRepo) ClaimNext(ctx context.Context) (*model.Job, error) {
	var job *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()

			rows, qerr := tx.Query(ctx, claimNextUpdateSQL, now)
			if qerr != nil {
				return fmt.Errorf("claim job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJobFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("claim job: %w", cerr)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// Claim compare-and-sets one specific job pending->processing. It returns
// false without error when the job is no longer pending.
func (r *JobRepo) Claim(ctx context.Context, id string) (*model.Job, bool, error) {
	now := r.timeProvider.Now().UTC()

	query := `
		UPDATE catchment_jobs
		SET status = 'processing',
		    started_at = COALESCE(started_at, $2),
		    updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + jobColumns

	var job *model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, id, now)
		if qerr != nil {
			return fmt.Errorf("claim job %s: %w", id, qerr)
		}
		j, cerr := collectJobFromRows(rows)
		rows.Close()
		if cerr != nil {
			return cerr
		}
		job = j
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.MapDBError(err)
	}
	return job, true, nil
}

// Complete persists a terminal state for a processing job. The update is
// all-or-nothing: status, counters, report, error text and artifact land in
// one guarded statement. It returns false when the job was not in the
// processing state, which means another worker already finished it.
func (r *JobRepo) Complete(ctx context.Context, id string, update *model.CompletionUpdate) (bool, error) {
	if update == nil {
		return false, errors.New("completion update is required")
	}
	if err := update.Validate(); err != nil {
		return false, err
	}

	report, err := marshalErrorReport(update.ErrorReport)
	if err != nil {
		return false, err
	}

	var errMsg any
	if update.Error != "" {
		errMsg = update.Error
	}

	var artifact, resultRef any
	if len(update.Artifact) > 0 {
		artifact = update.Artifact
		resultRef = "/catchment/csv/" + id
	}

	now := r.timeProvider.Now().UTC()

	query := `
		UPDATE catchment_jobs
		SET status = $2,
		    rows_total = $3,
		    rows_failed = $4,
		    error_report = $5,
		    error = $6,
		    artifact = $7,
		    result_ref = $8,
		    completed_at = $9,
		    updated_at = $9
		WHERE id = $1 AND status = 'processing'
	`

	res, err := r.DB.ExecContext(ctx, query,
		id,
		string(update.Status),
		update.RowsTotal,
		update.RowsFailed,
		report,
		errMsg,
		artifact,
		resultRef,
		now,
	)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, "job completed",
			"csv_id", id,
			"status", update.Status,
			"rows_total", update.RowsTotal,
			"rows_failed", update.RowsFailed,
		)
	}
	return true, nil
}

// WaitForNotification blocks until a pending-job notification arrives or the
// context is done.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	quoted := pgx.Identifier{jobChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", jobChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// OldestProcessingAge returns how long the oldest processing job has been
// held, or zero when nothing is processing.
func (r *JobRepo) OldestProcessingAge(ctx context.Context) (time.Duration, error) {
	var started sql.NullTime
	err := r.DB.QueryRowContext(ctx, `
		SELECT MIN(started_at)
		FROM catchment_jobs
		WHERE status = 'processing'
	`).Scan(&started)
	if err != nil {
		return 0, fmt.Errorf("oldest processing age: %w", err)
	}
	if !started.Valid {
		return 0, nil
	}
	age := r.timeProvider.Now().UTC().Sub(started.Time.UTC())
	if age < 0 {
		age = 0
	}
	return age, nil
}

// Advisory lock keys for RequeueStuck so concurrent admin invocations do not
// race each other.
const (
	advisoryLockRequeueMajor int64 = 2001
	advisoryLockRequeueMinor int64 = 1
)

// RequeueStuck resets processing jobs started before the threshold back to
// pending and returns the number of jobs requeued. The pipeline never calls
// this on its own; it backs the operator tooling.
func (r *JobRepo) RequeueStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be positive")
	}

	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
				advisoryLockRequeueMajor, advisoryLockRequeueMinor,
			).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			cutoff := r.timeProvider.Now().UTC().Add(-olderThan)
			res, err := tx.ExecContext(ctx, `
          UPDATE catchment_jobs
          SET status = 'pending', started_at = NULL, updated_at = $2
          WHERE status = 'processing' AND started_at < $1
        `, cutoff, r.timeProvider.Now().UTC())
			if err != nil {
				return fmt.Errorf("requeue stuck: %w", err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra

			if rowsAffected > 0 {
				if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1::text, '')`, jobChannel); err != nil {
					return fmt.Errorf("send requeue notification: %w", err)
				}
			}
			return nil
		},
	})
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return rowsAffected, nil
}
