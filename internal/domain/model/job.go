// Package model defines the core data types and structures used throughout the catchment pipeline.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of an uploaded CSV job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be claimed by a worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a worker has claimed the job and is driving it.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusDone indicates every row validated and enriched successfully.
	JobStatusDone JobStatus = "done"
	// JobStatusPartial indicates all rows validated but some failed enrichment.
	JobStatusPartial JobStatus = "partial"
	// JobStatusFailed indicates schema validation rejected the file or every row failed enrichment.
	JobStatusFailed JobStatus = "failed"
)

// ErrNoJobsAvailable is returned when no pending jobs are available for claiming.
var ErrNoJobsAvailable = errors.New("no jobs available")

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	js := JobStatus(v)
	if js.Valid() {
		*s = js
		return nil
	}
	return fmt.Errorf("invalid JobStatus: %q", v)
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing ||
		s == JobStatusDone || s == JobStatusPartial || s == JobStatusFailed
}

// Terminal returns true once no further automatic transition occurs.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusPartial || s == JobStatusFailed
}

// RowError records a single validation or enrichment failure for one input row.
// Row numbers are 1-based over data rows (the header is row 0).
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// Job represents one uploaded CSV file and its processing lifecycle.
type Job struct {
	ID          string          `json:"csv_id"                 db:"id"`
	Owner       string          `json:"owner"                  db:"owner"`
	Filename    string          `json:"filename"               db:"filename"`
	Status      JobStatus       `json:"status"                 db:"status"`
	RowsTotal   int             `json:"rows_total"             db:"rows_total"`
	RowsFailed  int             `json:"rows_failed"            db:"rows_failed"`
	ErrorReport []RowError      `json:"error_report,omitempty" db:"error_report"`
	Error       *string         `json:"error,omitempty"        db:"error"`
	ResultRef   *string         `json:"result_ref,omitempty"   db:"result_ref"`
	Raw         json.RawMessage `json:"-"                      db:"-"`

	CreatedAt   time.Time  `json:"created_at"             db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at"             db:"updated_at"`

	DownloadCount     int        `json:"download_count"                db:"download_count"`
	FirstDownloadedAt *time.Time `json:"first_downloaded_at,omitempty" db:"first_downloaded_at"`
	LastDownloadedAt  *time.Time `json:"last_downloaded_at,omitempty"  db:"last_downloaded_at"`
}

// CreateJobRequest represents a request to record a newly uploaded file.
type CreateJobRequest struct {
	Owner    string
	Filename string
	Content  []byte
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.Owner) == "" {
		return errors.New("owner is required")
	}
	if strings.TrimSpace(r.Filename) == "" {
		return errors.New("filename is required")
	}
	if len(r.Content) == 0 {
		return errors.New("file content is required")
	}
	return nil
}

// CompletionUpdate carries everything a worker persists when a job reaches a
// terminal state. Artifact is nil only for the failed status.
type CompletionUpdate struct {
	Status      JobStatus
	RowsTotal   int
	RowsFailed  int
	ErrorReport []RowError
	Error       string
	Artifact    []byte
}

// Validate checks the terminal-state invariants before persistence:
// an artifact iff done/partial, a non-empty error report iff failed/partial.
func (u *CompletionUpdate) Validate() error {
	if !u.Status.Terminal() {
		return fmt.Errorf("completion status must be terminal, got %q", u.Status)
	}
	switch u.Status {
	case JobStatusDone:
		if len(u.Artifact) == 0 {
			return errors.New("done requires an artifact")
		}
		if len(u.ErrorReport) != 0 {
			return errors.New("done forbids an error report")
		}
	case JobStatusPartial:
		if len(u.Artifact) == 0 {
			return errors.New("partial requires an artifact")
		}
		if len(u.ErrorReport) == 0 {
			return errors.New("partial requires a non-empty error report")
		}
	case JobStatusFailed:
		if len(u.ErrorReport) == 0 {
			return errors.New("failed requires a non-empty error report")
		}
	case JobStatusPending, JobStatusProcessing:
		// unreachable; Terminal() already rejected these
	}
	return nil
}

// JobStats represents counts of jobs in each state.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Partial    int `json:"partial"`
	Failed     int `json:"failed"`
}

// JobStatusResponse is the csv-status endpoint payload.
type JobStatusResponse struct {
	CSVID  string    `json:"csv_id"`
	Status JobStatus `json:"status"`
	Error  *string   `json:"error,omitempty"`
}

// JobListOptions controls pagination of an owner's job listing.
type JobListOptions struct {
	Owner   string
	Page    int
	PerPage int
}

// JobSummary is one entry of the job listing.
type JobSummary struct {
	ID        string     `json:"id"`
	Filename  string     `json:"filename"`
	Owner     string     `json:"owner"`
	Status    JobStatus  `json:"status"`
	RowsTotal int        `json:"rows_total"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}
