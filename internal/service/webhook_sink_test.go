package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locushq/catchment-api/internal/domain/model"
	"github.com/locushq/catchment-api/internal/observability/notify"
)

type capturingSink struct {
	payloads []notify.JobCompletionPayload
	err      error
}

func (s *capturingSink) SendJobCompletion(_ context.Context, payload notify.JobCompletionPayload) error {
	s.payloads = append(s.payloads, payload)
	return s.err
}

func TestNotifySinkPublishesTerminalEvents(t *testing.T) {
	capture := &capturingSink{}
	sink := NotifySink{Sink: capture}

	errMsg := "2 of 5 rows failed enrichment"
	event := model.StatusEvent{
		Type:   model.StatusEventComplete,
		CSVID:  "id-1",
		Status: model.JobStatusPartial,
		Error:  &errMsg,
	}

	require.NoError(t, sink.Publish(context.Background(), event, "http://api.example.com/catchment/csv/id-1"))
	require.Len(t, capture.payloads, 1)

	payload := capture.payloads[0]
	assert.Equal(t, "id-1", payload.CSVID)
	assert.Equal(t, "partial", payload.Status)
	assert.Equal(t, "http://api.example.com/catchment/csv/id-1", payload.DownloadURL)
	assert.Equal(t, errMsg, payload.Error)
	assert.False(t, payload.OccurredAt.IsZero())
}

func TestNotifySinkSkipsInitEvents(t *testing.T) {
	capture := &capturingSink{}
	sink := NotifySink{Sink: capture}

	event := model.StatusEvent{Type: model.StatusEventInit, CSVID: "id-1", Status: model.JobStatusProcessing}
	require.NoError(t, sink.Publish(context.Background(), event, ""))
	assert.Empty(t, capture.payloads)
}

func TestNotifySinkNilUnderlying(t *testing.T) {
	sink := NotifySink{}
	event := model.StatusEvent{Type: model.StatusEventComplete, CSVID: "id-1", Status: model.JobStatusDone}
	assert.NoError(t, sink.Publish(context.Background(), event, ""))
}

func TestNotifySinkPropagatesDeliveryError(t *testing.T) {
	capture := &capturingSink{err: errors.New("endpoint unreachable")}
	sink := NotifySink{Sink: capture}

	event := model.StatusEvent{Type: model.StatusEventComplete, CSVID: "id-1", Status: model.JobStatusDone}
	assert.EqualError(t, sink.Publish(context.Background(), event, ""), "endpoint unreachable")
}
