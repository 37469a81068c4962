// Package httpx implements the ingestion gateway HTTP surface.
package httpx

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/locushq/catchment-api/internal/domain/model"
	"github.com/locushq/catchment-api/internal/service"
)

// CatchmentHandlers provides HTTP handlers for upload, status, and artifact
// operations. Every route requires an authenticated principal in context.
type CatchmentHandlers struct {
	Svc *service.JobService

	// MaxUploadBytes caps the request body on the bulk upload route. The
	// service re-checks the decoded file against its own limits.
	MaxUploadBytes int64
}

// uploadResponse is the bulk upload payload.
type uploadResponse struct {
	CSVID  string               `json:"csv_id"`
	Status model.JobStatus      `json:"status"`
	Quota  *service.UploadQuota `json:"quota,omitempty"`
}

// multipartFormOverhead leaves room for the multipart framing around the file part.
const multipartFormOverhead = 64 * 1024

// BulkUpload accepts a multipart CSV upload and records it as a pending job.
func (h *CatchmentHandlers) BulkUpload(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}

	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = 2 * 1024 * 1024
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartFormOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, ErrorParams{
				Code:    http.StatusRequestEntityTooLarge,
				ErrCode: "too_large",
				Err:     fmt.Errorf("upload exceeds maximum size of %d bytes", limit),
			})
			return
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_upload",
			Err:     errors.New(`multipart form field "file" is required`),
		})
		return
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, ErrorParams{
				Code:    http.StatusRequestEntityTooLarge,
				ErrCode: "too_large",
				Err:     fmt.Errorf("upload exceeds maximum size of %d bytes", limit),
			})
			return
		}
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_upload",
			Err:     errors.New("failed to read uploaded file"),
		})
		return
	}

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." || filename == "/" {
		filename = "upload.csv"
	}

	job, quota, err := h.Svc.Upload(r.Context(), &model.CreateJobRequest{
		Owner:    principal.Account,
		Filename: filename,
		Content:  content,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, uploadResponse{
		CSVID:  job.ID,
		Status: job.Status,
		Quota:  quota,
	})
}

// GetStatus returns the current status of a job owned by the caller.
func (h *CatchmentHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}

	jobID, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}

	status, err := h.Svc.Status(r.Context(), jobID, principal.Account)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// Download serves the enriched CSV artifact. Jobs still in flight are
// rejected with a conflict so callers can retry after completion.
func (h *CatchmentHandlers) Download(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}

	jobID, ok := jobIDFromPath(w, r)
	if !ok {
		return
	}

	job, artifact, err := h.Svc.Artifact(r.Context(), jobID, principal.Account)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{
		"filename": "enriched_" + job.Filename,
	})
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", disposition)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// sampleCSV shows the expected upload shape. Exactly one of drive_distance
// and drive_time is set per row.
const sampleCSV = "snp_id,provider_id,location_id,location_gps,drive_distance,drive_time\n" +
	`snp_1.com,provider1,L1,"28.5065162,77.073938",500.5,` + "\n" +
	`snp_2.com,provider2,L2,"30.7135305,76.7454157",,20.5` + "\n"

// SampleCSV serves the static upload template.
func (h *CatchmentHandlers) SampleCSV(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="sample.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, sampleCSV); err != nil {
		return
	}
}

const (
	defaultListPerPage = 50
)

// List returns one page of the caller's jobs.
func (h *CatchmentHandlers) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := GetPrincipalFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}

	page := parseIntQuery(r, "page", 1)
	perPage := parseIntQuery(r, "per_page", defaultListPerPage)

	jobs, err := h.Svc.List(r.Context(), model.JobListOptions{
		Owner:   principal.Account,
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"csvs":     jobs,
		"page":     page,
		"per_page": perPage,
	})
}

// jobIDFromPath extracts and validates the {id} path segment.
func jobIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := r.PathValue("id")
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("csv id is required")},
		)
		return "", false
	}
	if _, err := uuid.Parse(jobID); err != nil {
		WriteError(
			w,
			ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_path",
				Err:     errors.New("csv id must be a valid UUID"),
			},
		)
		return "", false
	}
	return jobID, true
}
