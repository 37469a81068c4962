package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/locushq/catchment-api/internal/domain/model"
)

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	errorReport                         []byte
	errMsg, resultRef                   sql.NullString
	startedAt, completedAt              sql.NullTime
	firstDownloadedAt, lastDownloadedAt sql.NullTime
}

// scanDest lists the scan targets in jobColumns order.
func scanDest(d *jobRowData, job *model.Job) []any {
	return []any{
		&job.ID,
		&job.Owner,
		&job.Filename,
		&job.Status,
		&job.RowsTotal,
		&job.RowsFailed,
		&d.errorReport,
		&d.errMsg,
		&d.resultRef,
		&job.CreatedAt,
		&d.startedAt,
		&d.completedAt,
		&job.UpdatedAt,
		&job.DownloadCount,
		&d.firstDownloadedAt,
		&d.lastDownloadedAt,
	}
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(scanDest(d, job)...)
}

func (d *jobRowData) apply(job *model.Job) error {
	if len(d.errorReport) > 0 {
		if err := json.Unmarshal(d.errorReport, &job.ErrorReport); err != nil {
			return fmt.Errorf("decode error report: %w", err)
		}
	}
	job.Error = cloneNullableString(d.errMsg)
	job.ResultRef = cloneNullableString(d.resultRef)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.FirstDownloadedAt = cloneNullableTime(d.firstDownloadedAt)
	job.LastDownloadedAt = cloneNullableTime(d.lastDownloadedAt)
	return nil
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}
	if err := data.apply(job); err != nil {
		return nil, err
	}
	return job, nil
}

// collectJobFromRows collects a single job from pgx rows.
func collectJobFromRows(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	job, err := scanJobFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return job, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
