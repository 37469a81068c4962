package model

// StatusEventType distinguishes the two events a job emits over its lifetime.
type StatusEventType string

const (
	// StatusEventInit is emitted once when a worker claims the job.
	StatusEventInit StatusEventType = "init"
	// StatusEventComplete is emitted once when the job reaches a terminal state.
	StatusEventComplete StatusEventType = "complete"
)

// StatusEvent is the transport-neutral status change notification. Pollers,
// the SSE handler, and the webhook dispatcher all consume this shape.
type StatusEvent struct {
	Type   StatusEventType `json:"type"`
	CSVID  string          `json:"csv_id"`
	Status JobStatus       `json:"status"`
	Error  *string         `json:"error,omitempty"`
}

// Terminal reports whether this event ends the job's stream.
func (e StatusEvent) Terminal() bool {
	return e.Type == StatusEventComplete
}
