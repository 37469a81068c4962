package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/locushq/catchment-api/internal/domain/model"
	"github.com/locushq/catchment-api/internal/service"
)

// StatusStreamHandlers serves job status updates over server-sent events.
type StatusStreamHandlers struct {
	Svc *service.JobService

	// Heartbeat is the interval between keep-alive comments. Proxies tend
	// to drop idle connections.
	Heartbeat time.Duration
}

const defaultHeartbeat = 15 * time.Second

// Stream pushes the init event for the job's current state, then relays
// status events until the terminal one, keeping the connection warm with
// comment heartbeats in between.
func (h *StatusStreamHandlers) Stream(w http.ResponseWriter, r *http.Request) {
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

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "streaming_unsupported",
			Err:     errors.New("response writer does not support streaming"),
		})
		return
	}

	job, events, unsub, err := h.Svc.Subscribe(r.Context(), jobID, principal.Account)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if job.Status.Terminal() {
		// Already finished before we attached; one complete event and done.
		writeSSEEvent(w, model.StatusEvent{
			Type:   model.StatusEventComplete,
			CSVID:  job.ID,
			Status: job.Status,
			Error:  job.Error,
		})
		flusher.Flush()
		return
	}

	writeSSEEvent(w, model.StatusEvent{
		Type:   model.StatusEventInit,
		CSVID:  job.ID,
		Status: job.Status,
	})
	flusher.Flush()

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			writeSSEEvent(w, event)
			flusher.Flush()
			if event.Terminal() {
				return
			}
		}
	}
}

// writeSSEEvent writes one event in SSE framing with a JSON data payload.
func writeSSEEvent(w io.Writer, event model.StatusEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
}
