package service

import (
	"context"
	"time"

	"github.com/locushq/catchment-api/internal/core"
	"github.com/locushq/catchment-api/internal/domain/model"
	"github.com/locushq/catchment-api/internal/observability/notify"
)

// NotifySink adapts an outbound notify.Sink (the webhook client) to the
// StatusSink port so the worker publishes to it like any other sink.
type NotifySink struct {
	Sink notify.Sink
}

// Publish implements core.StatusSink. Only terminal events leave the
// process; init events are an in-process concern.
func (s NotifySink) Publish(ctx context.Context, event model.StatusEvent, downloadURL string) error {
	if s.Sink == nil || !event.Terminal() {
		return nil
	}

	payload := notify.JobCompletionPayload{
		CSVID:       event.CSVID,
		Status:      string(event.Status),
		DownloadURL: downloadURL,
		OccurredAt:  time.Now().UTC(),
	}
	if event.Error != nil {
		payload.Error = *event.Error
	}

	return s.Sink.SendJobCompletion(ctx, payload)
}

var _ core.StatusSink = NotifySink{}
