package httpx

import (
	"net/http"
	"time"

	"github.com/locushq/catchment-api/internal/service"
)

// HealthHandlers serves the liveness endpoint. Beyond a plain OK it exposes
// queue counters and the age of the oldest processing job, so a dead worker
// fleet surfaces as a growing number rather than silence.
type HealthHandlers struct {
	Svc *service.JobService
}

type healthResponse struct {
	Status                  string `json:"status"`
	Pending                 int    `json:"pending,omitempty"`
	Processing              int    `json:"processing,omitempty"`
	OldestProcessingSeconds int64  `json:"oldest_processing_seconds"`
}

// Health handles liveness checks.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}

	resp := healthResponse{Status: "ok"}

	if h.Svc != nil {
		if stats, err := h.Svc.Stats(r.Context()); err == nil {
			resp.Pending = stats.Pending
			resp.Processing = stats.Processing
		}
		if age, err := h.Svc.OldestProcessingAge(r.Context()); err == nil {
			resp.OldestProcessingSeconds = int64(age / time.Second)
		}
	}

	WriteJSON(w, http.StatusOK, resp)
}
