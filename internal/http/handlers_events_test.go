package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/locushq/catchment-api/internal/domain/model"
	"github.com/locushq/catchment-api/internal/mocks"
	"github.com/locushq/catchment-api/internal/ports"
	"github.com/locushq/catchment-api/internal/service"
)

func newStreamHandler(t *testing.T, repo *mocks.MockJobRepository, broker *service.StatusBroker) *StatusStreamHandlers {
	t.Helper()

	svc, err := service.NewJobService(service.JobServiceOptions{Repo: repo, Broker: broker})
	require.NoError(t, err)
	return &StatusStreamHandlers{Svc: svc, Heartbeat: time.Hour}
}

func streamRequest(jobID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/catchment/events/"+jobID, nil)
	req.SetPathValue("id", jobID)
	ctx := SetPrincipalInContext(req.Context(), ports.Principal{Account: "acme"})
	return req.WithContext(ctx)
}

// parseSSEFrames splits a response body into (event, data) pairs.
func parseSSEFrames(t *testing.T, body string) [][2]string {
	t.Helper()

	var frames [][2]string
	for _, frame := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(frame) == "" {
			continue
		}
		lines := strings.Split(frame, "\n")
		require.Len(t, lines, 2)
		frames = append(frames, [2]string{
			strings.TrimPrefix(lines[0], "event: "),
			strings.TrimPrefix(lines[1], "data: "),
		})
	}
	return frames
}

func TestStreamTerminalJobReplaysCompletion(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	errMsg := "1 of 2 rows failed enrichment"
	repo.EXPECT().GetByID(gomock.Any(), testJobID).Return(&model.Job{
		ID: testJobID, Owner: "acme", Status: model.JobStatusPartial, Error: &errMsg,
	}, nil)

	handler := newStreamHandler(t, repo, service.NewStatusBroker())
	rec := httptest.NewRecorder()
	handler.Stream(rec, streamRequest(testJobID))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	frames := parseSSEFrames(t, rec.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, "complete", frames[0][0])

	var event model.StatusEvent
	require.NoError(t, json.Unmarshal([]byte(frames[0][1]), &event))
	assert.Equal(t, model.StatusEventComplete, event.Type)
	assert.Equal(t, testJobID, event.CSVID)
	assert.Equal(t, model.JobStatusPartial, event.Status)
	require.NotNil(t, event.Error)
	assert.Equal(t, errMsg, *event.Error)
}

func TestStreamRelaysInitThenCompletion(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	repo.EXPECT().GetByID(gomock.Any(), testJobID).Return(&model.Job{
		ID: testJobID, Owner: "acme", Status: model.JobStatusProcessing,
	}, nil)

	// A terminal event published before the subscriber attaches is retained
	// and replayed, so the handler drains it right after the init frame.
	broker := service.NewStatusBroker()
	broker.Publish(model.StatusEvent{
		Type:   model.StatusEventComplete,
		CSVID:  testJobID,
		Status: model.JobStatusDone,
	})

	handler := newStreamHandler(t, repo, broker)
	rec := httptest.NewRecorder()
	handler.Stream(rec, streamRequest(testJobID))

	frames := parseSSEFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "init", frames[0][0])
	assert.Equal(t, "complete", frames[1][0])

	var initEvent model.StatusEvent
	require.NoError(t, json.Unmarshal([]byte(frames[0][1]), &initEvent))
	assert.Equal(t, model.JobStatusProcessing, initEvent.Status)

	var completeEvent model.StatusEvent
	require.NoError(t, json.Unmarshal([]byte(frames[1][1]), &completeEvent))
	assert.Equal(t, model.JobStatusDone, completeEvent.Status)
}

func TestStreamHidesForeignJobs(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	repo.EXPECT().GetByID(gomock.Any(), testJobID).Return(&model.Job{
		ID: testJobID, Owner: "rival", Status: model.JobStatusProcessing,
	}, nil)

	handler := newStreamHandler(t, repo, service.NewStatusBroker())
	rec := httptest.NewRecorder()
	handler.Stream(rec, streamRequest(testJobID))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeErrorBody(t, rec)["error"])
}

func TestStreamRequiresPrincipal(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)

	handler := newStreamHandler(t, repo, service.NewStatusBroker())
	req := httptest.NewRequest(http.MethodGet, "/catchment/events/"+testJobID, nil)
	req.SetPathValue("id", testJobID)
	rec := httptest.NewRecorder()
	handler.Stream(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authentication_required", decodeErrorBody(t, rec)["error"])
}

func TestStreamStopsWhenClientDisconnects(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	repo.EXPECT().GetByID(gomock.Any(), testJobID).Return(&model.Job{
		ID: testJobID, Owner: "acme", Status: model.JobStatusPending,
	}, nil)

	handler := newStreamHandler(t, repo, service.NewStatusBroker())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := streamRequest(testJobID).WithContext(
		SetPrincipalInContext(ctx, ports.Principal{Account: "acme"}),
	)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.Stream(rec, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after context cancellation")
	}

	frames := parseSSEFrames(t, rec.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, "init", frames[0][0])
}
