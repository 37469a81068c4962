package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the ingestion gateway HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker runs the CSV processing worker.
	ServiceModeWorker ServiceMode = "worker"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeWorker}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, worker)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// WorkerConfig contains CSV processing worker configuration.
type WorkerConfig struct {
	// Instances is the number of concurrent claim loops. Each claimed job is
	// processed by exactly one loop at a time.
	Instances int `env:"WORKER_INSTANCES" envDefault:"1"`

	// RowConcurrency bounds concurrent enrichment calls within a single job.
	RowConcurrency int `env:"WORKER_ROW_CONCURRENCY" envDefault:"8"`

	// NotifyWaitWindow caps how long a worker blocks on the job queue
	// notification channel before re-polling the store.
	NotifyWaitWindow time.Duration `env:"WORKER_NOTIFY_WAIT_WINDOW" envDefault:"1m"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Instances < 1 {
		w.Instances = 1
	}
	if w.Instances > 32 {
		w.Instances = 32
	}
	if w.RowConcurrency < 1 {
		w.RowConcurrency = 1
	}
	if w.RowConcurrency > 64 {
		w.RowConcurrency = 64
	}
	if w.NotifyWaitWindow <= 0 {
		w.NotifyWaitWindow = time.Minute
	}
}

// UploadConfig contains upload gating configuration.
type UploadConfig struct {
	// MaxFileBytes is the maximum accepted CSV upload size.
	MaxFileBytes int64 `env:"UPLOAD_MAX_FILE_BYTES" envDefault:"2097152"`

	// MaxRows is the maximum accepted row count per CSV.
	MaxRows int `env:"UPLOAD_MAX_ROWS" envDefault:"1000"`
}

// Sanitize applies guardrails to upload configuration values.
func (u *UploadConfig) Sanitize() {
	if u.MaxFileBytes < 1 {
		u.MaxFileBytes = 2 * 1024 * 1024
	}
	if u.MaxRows < 1 {
		u.MaxRows = 1000
	}
}

// QuotaConfig contains per-account enrichment quota configuration.
type QuotaConfig struct {
	// Enabled toggles quota accounting entirely.
	Enabled bool `env:"QUOTA_ENABLED" envDefault:"true"`

	// MonthlyAllocation is the number of enrichment calls an account may
	// consume per calendar month.
	MonthlyAllocation int64 `env:"QUOTA_MONTHLY_ALLOCATION" envDefault:"5000"`
}

// Sanitize applies guardrails to quota configuration values.
func (q *QuotaConfig) Sanitize() {
	if q.MonthlyAllocation < 0 {
		q.MonthlyAllocation = 0
	}
}

// WebhookConfig contains completion webhook configuration.
type WebhookConfig struct {
	// URL is the single configured webhook sink. Empty disables delivery.
	URL string `env:"WEBHOOK_URL" envDefault:""`

	// Timeout bounds each delivery attempt.
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`

	// RetryLimit is the number of re-attempts after the first failure.
	RetryLimit int `env:"WEBHOOK_RETRY_LIMIT" envDefault:"2"`
}

// Sanitize applies guardrails to webhook configuration values.
func (w *WebhookConfig) Sanitize() {
	if w.Timeout <= 0 {
		w.Timeout = 5 * time.Second
	}
	if w.RetryLimit < 0 {
		w.RetryLimit = 0
	}
	if w.RetryLimit > 10 {
		w.RetryLimit = 10
	}
}

// ObservabilityConfig contains metrics configuration.
type ObservabilityConfig struct {
	// StatsdAddress is the UDP address of a StatsD-compatible sink.
	// Empty disables metric emission.
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:""`

	// MetricPrefix is prepended to every emitted metric name.
	MetricPrefix string `env:"STATSD_PREFIX" envDefault:"catchment"`
}

// IsEnabled reports whether metric emission is configured.
func (o *ObservabilityConfig) IsEnabled() bool {
	return strings.TrimSpace(o.StatsdAddress) != ""
}

// Sanitize applies guardrails to observability configuration values.
func (o *ObservabilityConfig) Sanitize() {
	o.StatsdAddress = strings.TrimSpace(o.StatsdAddress)
	if strings.TrimSpace(o.MetricPrefix) == "" {
		o.MetricPrefix = "catchment"
	}
}
