package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/locushq/catchment-api/internal/domain/model"
	"github.com/locushq/catchment-api/internal/domain/schema"
	apperrors "github.com/locushq/catchment-api/internal/errors"
	"github.com/locushq/catchment-api/internal/mocks"
	"github.com/locushq/catchment-api/internal/ports"
	"github.com/locushq/catchment-api/internal/service"
)

const testJobID = "7b2f8f0e-4a4d-4c8e-9a6c-1f2e3d4c5b6a"

const testUploadCSV = "snp_id,provider_id,location_id,location_gps,drive_distance,drive_time\n" +
	`snp_1.com,provider1,L1,"28.5065162,77.073938",500,` + "\n" +
	`snp_2.com,provider2,L2,"30.7135305,76.7454157",,20` + "\n"

// staticVerifier accepts any token as the given account.
func staticVerifier(account string) ports.TokenVerifier {
	return ports.TokenVerifierFunc(func(_ context.Context, _ string) (ports.Principal, error) {
		return ports.Principal{Account: account, Subject: account + "-user"}, nil
	})
}

type routerOptions struct {
	quota  *mocks.MockQuotaKeeper
	limits schema.Limits
}

func newTestRouter(t *testing.T, repo *mocks.MockJobRepository, opts routerOptions) http.Handler {
	t.Helper()

	svcOpts := service.JobServiceOptions{
		Repo:   repo,
		Broker: service.NewStatusBroker(),
		Limits: opts.limits,
	}
	if opts.quota != nil {
		svcOpts.Quota = opts.quota
	}
	svc, err := service.NewJobService(svcOpts)
	require.NoError(t, err)

	return NewRouter(RouterServices{
		Jobs:     svc,
		Verifier: staticVerifier("acme"),
	})
}

// multipartBody builds a multipart request body with a single file field.
func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func authedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer test-token")
	return req
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestBulkUpload(t *testing.T) {
	t.Run("accepts a valid upload", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
				assert.Equal(t, "acme", req.Owner)
				assert.Equal(t, "stores.csv", req.Filename)
				return &model.Job{ID: testJobID, Owner: req.Owner, Filename: req.Filename, Status: model.JobStatusPending}, nil
			})

		router := newTestRouter(t, repo, routerOptions{})
		body, contentType := multipartBody(t, "file", "stores.csv", testUploadCSV)
		req := authedRequest(http.MethodPost, "/catchment/bulk", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var resp struct {
			CSVID  string               `json:"csv_id"`
			Status model.JobStatus      `json:"status"`
			Quota  *service.UploadQuota `json:"quota"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, testJobID, resp.CSVID)
		assert.Equal(t, model.JobStatusPending, resp.Status)
		require.NotNil(t, resp.Quota)
		assert.Equal(t, 2, resp.Quota.TotalRows)
	})

	t.Run("rejects missing file field", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)

		router := newTestRouter(t, repo, routerOptions{})
		body, contentType := multipartBody(t, "attachment", "stores.csv", testUploadCSV)
		req := authedRequest(http.MethodPost, "/catchment/bulk", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		errBody := decodeErrorBody(t, rec)
		assert.Equal(t, "invalid_upload", errBody["error"])
		assert.Equal(t, `multipart form field "file" is required`, errBody["message"])
	})

	t.Run("rejects unauthenticated requests", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)

		router := newTestRouter(t, repo, routerOptions{})
		body, contentType := multipartBody(t, "file", "stores.csv", testUploadCSV)
		req := httptest.NewRequest(http.MethodPost, "/catchment/bulk", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "authentication_required", decodeErrorBody(t, rec)["error"])
	})

	t.Run("maps oversized files to 413", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)

		router := newTestRouter(t, repo, routerOptions{limits: schema.Limits{MaxFileBytes: 16, MaxRows: 10}})
		body, contentType := multipartBody(t, "file", "stores.csv", testUploadCSV)
		req := authedRequest(http.MethodPost, "/catchment/bulk", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, "too_large", decodeErrorBody(t, rec)["error"])
	})

	t.Run("maps exhausted quota to 402", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		quota := mocks.NewMockQuotaKeeper(ctrl)
		quota.EXPECT().Remaining(gomock.Any(), "acme").Return(int64(0), nil)

		router := newTestRouter(t, repo, routerOptions{quota: quota})
		body, contentType := multipartBody(t, "file", "stores.csv", testUploadCSV)
		req := authedRequest(http.MethodPost, "/catchment/bulk", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusPaymentRequired, rec.Code)
		errBody := decodeErrorBody(t, rec)
		assert.Equal(t, "quota", errBody["error"])
		assert.Contains(t, errBody["message"], "allocation exhausted")
	})

	t.Run("maps unparseable uploads to 400", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)

		router := newTestRouter(t, repo, routerOptions{})
		body, contentType := multipartBody(t, "file", "stores.csv", "a,b\n\"unterminated\n")
		req := authedRequest(http.MethodPost, "/catchment/bulk", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation", decodeErrorBody(t, rec)["error"])
	})
}

func TestGetStatus(t *testing.T) {
	t.Run("returns status for an owned job", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		errMsg := "all rows failed enrichment"
		repo.EXPECT().GetByID(gomock.Any(), testJobID).Return(&model.Job{
			ID: testJobID, Owner: "acme", Status: model.JobStatusFailed, Error: &errMsg,
		}, nil)

		router := newTestRouter(t, repo, routerOptions{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/catchment/csv-status/"+testJobID, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp model.JobStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, testJobID, resp.CSVID)
		assert.Equal(t, model.JobStatusFailed, resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, errMsg, *resp.Error)
	})

	t.Run("rejects a non-uuid path segment", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)

		router := newTestRouter(t, repo, routerOptions{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/catchment/csv-status/not-a-uuid", nil))

		require.Equal(t, http.StatusBadRequest, rec.Code)
		errBody := decodeErrorBody(t, rec)
		assert.Equal(t, "invalid_path", errBody["error"])
		assert.Equal(t, "csv id must be a valid UUID", errBody["message"])
	})

	t.Run("hides other accounts' jobs", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().GetByID(gomock.Any(), testJobID).Return(&model.Job{
			ID: testJobID, Owner: "rival", Status: model.JobStatusDone,
		}, nil)

		router := newTestRouter(t, repo, routerOptions{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/catchment/csv-status/"+testJobID, nil))

		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeErrorBody(t, rec)["error"])
	})
}

func TestDownload(t *testing.T) {
	t.Run("serves the enriched artifact", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		artifact := []byte("snp_id,geojson,errors\nsnp_1.com,{},\n")
		repo.EXPECT().GetArtifact(gomock.Any(), testJobID).Return(&model.Job{
			ID: testJobID, Owner: "acme", Filename: "stores.csv", Status: model.JobStatusDone,
		}, artifact, nil)
		repo.EXPECT().RecordDownload(gomock.Any(), testJobID).Return(nil)

		router := newTestRouter(t, repo, routerOptions{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/catchment/csv/"+testJobID, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename=enriched_stores.csv`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, artifact, rec.Body.Bytes())
	})

	t.Run("rejects in-flight jobs with a conflict", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().GetArtifact(gomock.Any(), testJobID).Return(&model.Job{
			ID: testJobID, Owner: "acme", Status: model.JobStatusProcessing,
		}, nil, nil)

		router := newTestRouter(t, repo, routerOptions{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/catchment/csv/"+testJobID, nil))

		require.Equal(t, http.StatusConflict, rec.Code)
		errBody := decodeErrorBody(t, rec)
		assert.Equal(t, "conflict", errBody["error"])
		assert.Equal(t, "file is still being processed", errBody["message"])
	})

	t.Run("maps repository lookup failures", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().GetArtifact(gomock.Any(), testJobID).
			Return(nil, nil, apperrors.NotFoundf("job %s not found", testJobID))

		router := newTestRouter(t, repo, routerOptions{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/catchment/csv/"+testJobID, nil))

		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSampleCSV(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)

	router := newTestRouter(t, repo, routerOptions{})
	rec := httptest.NewRecorder()
	// No Authorization header; the template is public.
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catchment/sample-csv", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="sample.csv"`, rec.Header().Get("Content-Disposition"))

	body := rec.Body.String()
	assert.Contains(t, body, "snp_id,provider_id,location_id,location_gps,drive_distance,drive_time")
	assert.Contains(t, body, `snp_1.com,provider1,L1,"28.5065162,77.073938",500.5,`)
	assert.Contains(t, body, `snp_2.com,provider2,L2,"30.7135305,76.7454157",,20.5`)

	// The template must itself survive an upload, decimals included.
	res := schema.Validate(rec.Body.Bytes(), schema.DefaultLimits())
	require.True(t, res.OK(), "sample template failed validation: %v", res.Errors)
	assert.Equal(t, 2, res.RowCount)
}

func TestList(t *testing.T) {
	t.Run("returns one page of the caller's jobs", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().List(gomock.Any(), model.JobListOptions{Owner: "acme", Page: 2, PerPage: 10}).
			Return([]model.JobSummary{
				{ID: testJobID, Filename: "stores.csv", Owner: "acme", Status: model.JobStatusDone, RowsTotal: 2},
			}, nil)

		router := newTestRouter(t, repo, routerOptions{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/catchment/csvs?page=2&per_page=10", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			CSVs    []model.JobSummary `json:"csvs"`
			Page    int                `json:"page"`
			PerPage int                `json:"per_page"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.CSVs, 1)
		assert.Equal(t, testJobID, resp.CSVs[0].ID)
		assert.Equal(t, 2, resp.Page)
		assert.Equal(t, 10, resp.PerPage)
	})

	t.Run("defaults pagination", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := mocks.NewMockJobRepository(ctrl)
		repo.EXPECT().List(gomock.Any(), model.JobListOptions{Owner: "acme", Page: 1, PerPage: 50}).
			Return([]model.JobSummary{}, nil)

		router := newTestRouter(t, repo, routerOptions{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/catchment/csvs", nil))

		require.Equal(t, http.StatusOK, rec.Code)
	})
}
