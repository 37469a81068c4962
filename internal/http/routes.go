package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/locushq/catchment-api/internal/ports"
	"github.com/locushq/catchment-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Jobs     *service.JobService
	Verifier ports.TokenVerifier

	// MaxUploadBytes caps the bulk upload request body.
	MaxUploadBytes int64
	// SSEHeartbeat is the keep-alive interval for the event stream.
	SSEHeartbeat time.Duration

	// Logger is used by handlers that log directly; middleware wrapping
	// happens in bootstrap so ordering stays in one place.
	Logger *slog.Logger
}

// NewRouter creates and configures the gateway HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	catchmentHandlers := &CatchmentHandlers{
		Svc:            services.Jobs,
		MaxUploadBytes: services.MaxUploadBytes,
	}
	streamHandlers := &StatusStreamHandlers{
		Svc:       services.Jobs,
		Heartbeat: services.SSEHeartbeat,
	}
	healthHandlers := &HealthHandlers{Svc: services.Jobs}

	registerCatchmentRoutes(mux, catchmentHandlers, streamHandlers, services.Verifier)
	mux.HandleFunc("GET /healthz", healthHandlers.Health)
	mux.HandleFunc("HEAD /healthz", healthHandlers.Health)

	return mux
}

func registerCatchmentRoutes(
	mux *http.ServeMux,
	h *CatchmentHandlers,
	stream *StatusStreamHandlers,
	verifier ports.TokenVerifier,
) {
	authed := func(next http.HandlerFunc) http.Handler {
		if verifier == nil {
			return next
		}
		return RequireAuth(verifier)(next)
	}

	mux.Handle("POST /catchment/bulk", authed(h.BulkUpload))
	mux.Handle("GET /catchment/csv-status/{id}", authed(h.GetStatus))
	mux.Handle("GET /catchment/csv/{id}", authed(h.Download))
	mux.Handle("GET /catchment/csvs", authed(h.List))
	mux.Handle("GET /catchment/events/{id}", authed(stream.Stream))
	mux.HandleFunc("GET /catchment/sample-csv", h.SampleCSV)
}
