package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/locushq/catchment-api/internal/core"
	"github.com/locushq/catchment-api/internal/domain/model"
	"github.com/locushq/catchment-api/internal/mocks"
	"github.com/locushq/catchment-api/internal/service"
)

const workerCSV = "snp_id,provider_id,location_id,location_gps,drive_distance,drive_time\n" +
	`s1,p1,L1,"12.3456,65.4321",100,` + "\n" +
	`s2,p2,L2,"13.3456,66.4321",,20` + "\n"

type stubNotifier struct {
	ch chan struct{}
}

func newStubNotifier() *stubNotifier {
	return &stubNotifier{ch: make(chan struct{}, 1)}
}

func (s *stubNotifier) Subscribe() (func(), <-chan struct{}) {
	return func() {}, s.ch
}

func (s *stubNotifier) StopAll() {}

// recordingSink captures published events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []model.StatusEvent
	urls   []string
}

func (s *recordingSink) Publish(_ context.Context, event model.StatusEvent, downloadURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.urls = append(s.urls, downloadURL)
	return nil
}

func (s *recordingSink) published() ([]model.StatusEvent, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.StatusEvent(nil), s.events...), append([]string(nil), s.urls...)
}

func newTestRunner(t *testing.T, repo core.JobRepository, geo core.GeoClient, quota core.QuotaKeeper, sinks ...core.StatusSink) *Runner {
	t.Helper()
	runner, err := NewRunner(RunnerOptions{
		Repo:     repo,
		Geo:      geo,
		Quota:    quota,
		Sinks:    sinks,
		Notifier: newStubNotifier(),
		BaseURL:  "http://api.example.com/",
	})
	require.NoError(t, err)
	return runner
}

func testJob() *model.Job {
	return &model.Job{ID: "job-1", Owner: "acme", Filename: "stores.csv", Status: model.JobStatusProcessing}
}

func TestNewRunnerValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	geo := mocks.NewMockGeoClient(ctrl)

	t.Run("missing repo", func(t *testing.T) {
		_, err := NewRunner(RunnerOptions{Geo: geo})
		require.Error(t, err)
	})

	t.Run("missing geo client", func(t *testing.T) {
		_, err := NewRunner(RunnerOptions{Repo: repo})
		require.Error(t, err)
	})

	t.Run("defaults applied", func(t *testing.T) {
		runner, err := NewRunner(RunnerOptions{Repo: repo, Geo: geo, Notifier: newStubNotifier()})
		require.NoError(t, err)
		assert.Equal(t, 1, runner.instances)
		assert.Equal(t, 8, runner.rowConcurrency)
		assert.NotZero(t, runner.limits.MaxRows)
	})

	t.Run("base url trailing slash trimmed", func(t *testing.T) {
		runner, err := NewRunner(RunnerOptions{
			Repo: repo, Geo: geo, Notifier: newStubNotifier(),
			BaseURL: "http://api.example.com/",
		})
		require.NoError(t, err)
		assert.Equal(t, "http://api.example.com", runner.baseURL)
	})
}

func TestProcessJobDone(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	geo := mocks.NewMockGeoClient(ctrl)
	sink := &recordingSink{}
	runner := newTestRunner(t, repo, geo, nil, sink)

	repo.EXPECT().GetContent(gomock.Any(), "job-1").Return([]byte(workerCSV), nil)
	geo.EXPECT().Enrich(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, row *model.Row) (*model.EnrichedRow, error) {
			return &model.EnrichedRow{Row: *row, GeoJSON: `{"ok":true}`}, nil
		}).Times(2)

	var captured *model.CompletionUpdate
	repo.EXPECT().Complete(gomock.Any(), "job-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, update *model.CompletionUpdate) (bool, error) {
			captured = update
			return true, nil
		})

	runner.processJob(context.Background(), testJob())

	require.NotNil(t, captured)
	assert.Equal(t, model.JobStatusDone, captured.Status)
	assert.Equal(t, 2, captured.RowsTotal)
	assert.Equal(t, 0, captured.RowsFailed)
	assert.NotEmpty(t, captured.Artifact)
	assert.Empty(t, captured.ErrorReport)

	events, urls := sink.published()
	require.Len(t, events, 2)
	assert.Equal(t, model.StatusEventInit, events[0].Type)
	assert.Equal(t, model.JobStatusProcessing, events[0].Status)
	assert.Equal(t, "job-1", events[0].CSVID)
	assert.Empty(t, urls[0])
	assert.Equal(t, model.StatusEventComplete, events[1].Type)
	assert.Equal(t, model.JobStatusDone, events[1].Status)
	assert.Nil(t, events[1].Error)
	assert.Equal(t, "http://api.example.com/catchment/csv/job-1", urls[1])
}

func TestProcessJobPartial(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	geo := mocks.NewMockGeoClient(ctrl)
	sink := &recordingSink{}
	runner := newTestRunner(t, repo, geo, nil, sink)

	repo.EXPECT().GetContent(gomock.Any(), "job-1").Return([]byte(workerCSV), nil)
	geo.EXPECT().Enrich(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, row *model.Row) (*model.EnrichedRow, error) {
			if row.Number == 2 {
				return nil, errors.New("provider timeout")
			}
			return &model.EnrichedRow{Row: *row, GeoJSON: `{"ok":true}`}, nil
		}).Times(2)

	var captured *model.CompletionUpdate
	repo.EXPECT().Complete(gomock.Any(), "job-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, update *model.CompletionUpdate) (bool, error) {
			captured = update
			return true, nil
		})

	runner.processJob(context.Background(), testJob())

	require.NotNil(t, captured)
	assert.Equal(t, model.JobStatusPartial, captured.Status)
	assert.Equal(t, 2, captured.RowsTotal)
	assert.Equal(t, 1, captured.RowsFailed)
	assert.Equal(t, "1 of 2 rows failed enrichment", captured.Error)
	require.Len(t, captured.ErrorReport, 1)
	assert.Equal(t, 2, captured.ErrorReport[0].Row)
	assert.Equal(t, "provider timeout", captured.ErrorReport[0].Message)
	assert.NotEmpty(t, captured.Artifact)

	events, _ := sink.published()
	require.Len(t, events, 2)
	assert.Equal(t, model.StatusEventInit, events[0].Type)
	require.NotNil(t, events[1].Error)
	assert.Equal(t, "1 of 2 rows failed enrichment", *events[1].Error)
}

func TestProcessJobAllRowsFail(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	geo := mocks.NewMockGeoClient(ctrl)
	runner := newTestRunner(t, repo, geo, nil)

	repo.EXPECT().GetContent(gomock.Any(), "job-1").Return([]byte(workerCSV), nil)
	geo.EXPECT().Enrich(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom")).Times(2)

	var captured *model.CompletionUpdate
	repo.EXPECT().Complete(gomock.Any(), "job-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, update *model.CompletionUpdate) (bool, error) {
			captured = update
			return true, nil
		})

	runner.processJob(context.Background(), testJob())

	require.NotNil(t, captured)
	assert.Equal(t, model.JobStatusFailed, captured.Status)
	assert.Equal(t, "all rows failed enrichment", captured.Error)
	assert.Len(t, captured.ErrorReport, 2)
	assert.Empty(t, captured.Artifact)
}

func TestProcessJobSchemaFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	geo := mocks.NewMockGeoClient(ctrl)
	sink := &recordingSink{}
	runner := newTestRunner(t, repo, geo, nil, sink)

	badCSV := "snp_id,provider_id,location_id,location_gps,drive_distance,drive_time\n" +
		`,p1,L1,"12.34,65.4321",0,` + "\n"
	repo.EXPECT().GetContent(gomock.Any(), "job-1").Return([]byte(badCSV), nil)

	var captured *model.CompletionUpdate
	repo.EXPECT().Complete(gomock.Any(), "job-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, update *model.CompletionUpdate) (bool, error) {
			captured = update
			return true, nil
		})

	runner.processJob(context.Background(), testJob())

	require.NotNil(t, captured)
	assert.Equal(t, model.JobStatusFailed, captured.Status)
	assert.Equal(t, "schema validation failed", captured.Error)
	assert.NotEmpty(t, captured.ErrorReport)
	assert.Equal(t, 1, captured.RowsTotal)
	assert.Equal(t, 1, captured.RowsFailed)

	// No artifact URL for a failed job.
	_, urls := sink.published()
	require.Len(t, urls, 2)
	assert.Empty(t, urls[1])
}

func TestProcessJobQuotaExhaustedMidFile(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	geo := mocks.NewMockGeoClient(ctrl)
	quota := mocks.NewMockQuotaKeeper(ctrl)
	runner := newTestRunner(t, repo, geo, quota)

	repo.EXPECT().GetContent(gomock.Any(), "job-1").Return([]byte(workerCSV), nil)

	// First consume succeeds, second hits the cap.
	gomock.InOrder(
		quota.EXPECT().Consume(gomock.Any(), "acme").Return(true, nil),
		quota.EXPECT().Consume(gomock.Any(), "acme").Return(false, nil),
	)
	geo.EXPECT().Enrich(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, row *model.Row) (*model.EnrichedRow, error) {
			return &model.EnrichedRow{Row: *row, GeoJSON: `{"ok":true}`}, nil
		})

	var captured *model.CompletionUpdate
	repo.EXPECT().Complete(gomock.Any(), "job-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, update *model.CompletionUpdate) (bool, error) {
			captured = update
			return true, nil
		})

	runner.processJob(context.Background(), testJob())

	require.NotNil(t, captured)
	assert.Equal(t, model.JobStatusPartial, captured.Status)
	require.Len(t, captured.ErrorReport, 1)
	assert.Equal(t, quotaExhaustedMessage, captured.ErrorReport[0].Message)
}

func TestProcessJobCASMissPublishesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	geo := mocks.NewMockGeoClient(ctrl)
	sink := &recordingSink{}
	runner := newTestRunner(t, repo, geo, nil, sink)

	repo.EXPECT().GetContent(gomock.Any(), "job-1").Return([]byte(workerCSV), nil)
	geo.EXPECT().Enrich(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, row *model.Row) (*model.EnrichedRow, error) {
			return &model.EnrichedRow{Row: *row, GeoJSON: `{"ok":true}`}, nil
		}).Times(2)
	repo.EXPECT().Complete(gomock.Any(), "job-1", gomock.Any()).Return(false, nil)

	runner.processJob(context.Background(), testJob())

	events, _ := sink.published()
	require.Len(t, events, 1, "a lost CAS race must not publish a terminal event")
	assert.Equal(t, model.StatusEventInit, events[0].Type)
}

func TestProcessJobPersistenceFailurePublishesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	geo := mocks.NewMockGeoClient(ctrl)
	sink := &recordingSink{}
	runner := newTestRunner(t, repo, geo, nil, sink)

	repo.EXPECT().GetContent(gomock.Any(), "job-1").Return([]byte(workerCSV), nil)
	geo.EXPECT().Enrich(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, row *model.Row) (*model.EnrichedRow, error) {
			return &model.EnrichedRow{Row: *row, GeoJSON: `{"ok":true}`}, nil
		}).Times(2)
	repo.EXPECT().Complete(gomock.Any(), "job-1", gomock.Any()).Return(false, errors.New("connection lost"))

	runner.processJob(context.Background(), testJob())

	events, _ := sink.published()
	require.Len(t, events, 1)
	assert.Equal(t, model.StatusEventInit, events[0].Type)
}

func TestProcessJobAnnouncesClaimToSubscribers(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	geo := mocks.NewMockGeoClient(ctrl)
	broker := service.NewStatusBroker()
	runner := newTestRunner(t, repo, geo, nil, service.BrokerSink{Broker: broker})

	// Subscribe while the job is still queued.
	events, unsub := broker.Subscribe("job-1")
	defer unsub()

	repo.EXPECT().GetContent(gomock.Any(), "job-1").Return([]byte(workerCSV), nil)
	geo.EXPECT().Enrich(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, row *model.Row) (*model.EnrichedRow, error) {
			return &model.EnrichedRow{Row: *row, GeoJSON: `{"ok":true}`}, nil
		}).Times(2)
	repo.EXPECT().Complete(gomock.Any(), "job-1", gomock.Any()).Return(true, nil)

	runner.processJob(context.Background(), testJob())

	first := <-events
	assert.Equal(t, model.StatusEventInit, first.Type)
	assert.Equal(t, model.JobStatusProcessing, first.Status)

	second := <-events
	assert.Equal(t, model.StatusEventComplete, second.Type)
	assert.Equal(t, model.JobStatusDone, second.Status)

	_, open := <-events
	assert.False(t, open, "channel closes after the terminal event")
}

func TestProcessJobContentLoadFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	geo := mocks.NewMockGeoClient(ctrl)
	runner := newTestRunner(t, repo, geo, nil)

	repo.EXPECT().GetContent(gomock.Any(), "job-1").Return(nil, errors.New("row gone"))
	// No Complete call expected; the job stays processing.

	runner.processJob(context.Background(), testJob())
}

func TestRunProcessesUntilCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	geo := mocks.NewMockGeoClient(ctrl)
	runner := newTestRunner(t, repo, geo, nil)

	ctx, cancel := context.WithCancel(context.Background())

	processed := make(chan struct{})
	gomock.InOrder(
		repo.EXPECT().ClaimNext(gomock.Any()).Return(testJob(), nil),
		repo.EXPECT().ClaimNext(gomock.Any()).DoAndReturn(func(context.Context) (*model.Job, error) {
			close(processed)
			return nil, model.ErrNoJobsAvailable
		}),
	)
	repo.EXPECT().GetContent(gomock.Any(), "job-1").Return([]byte(workerCSV), nil)
	geo.EXPECT().Enrich(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, row *model.Row) (*model.EnrichedRow, error) {
			return &model.EnrichedRow{Row: *row, GeoJSON: `{"ok":true}`}, nil
		}).Times(2)
	repo.EXPECT().Complete(gomock.Any(), "job-1", gomock.Any()).Return(true, nil)

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	select {
	case <-processed:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never drained the queue")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestRunStopsOnClaimFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	geo := mocks.NewMockGeoClient(ctrl)
	runner := newTestRunner(t, repo, geo, nil)

	repo.EXPECT().ClaimNext(gomock.Any()).Return(nil, errors.New("database unreachable"))

	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claim next")
}
