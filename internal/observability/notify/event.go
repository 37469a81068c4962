// Package notify defines the outbound completion-notification contract.
package notify

import (
	"context"
	"time"
)

// JobCompletionPayload captures the canonical data we emit when a job
// reaches a terminal state.
type JobCompletionPayload struct {
	CSVID       string
	Owner       string
	Filename    string
	Status      string
	Error       string
	DownloadURL string
	RowsTotal   int
	RowsFailed  int
	OccurredAt  time.Time
}

// Sink describes a destination capable of consuming completion notifications.
// Delivery is best-effort; a sink error never rolls back job state.
type Sink interface {
	SendJobCompletion(ctx context.Context, payload JobCompletionPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload JobCompletionPayload) error

// SendJobCompletion implements the Sink interface.
func (f SinkFunc) SendJobCompletion(ctx context.Context, payload JobCompletionPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
