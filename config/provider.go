package config

import (
	"strings"
	"time"
)

// ProviderConfig contains configuration for the Lepton Maps catchment provider.
// All variables carry the LEPTON_ prefix.
type ProviderConfig struct {
	// BaseURL is the provider API root.
	BaseURL string `env:"BASE_URL" envDefault:"https://api.leptonmaps.com"`

	// APIKey is sent as the x-api-key header on every request.
	APIKey string `env:"API_KEY"`

	// Timeout bounds each catchment request.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"15s"`

	// RetryLimit is the number of re-attempts after the first transient failure.
	RetryLimit int `env:"RETRY_LIMIT" envDefault:"3"`

	// RetryBackoff is the base delay between retries; attempt n waits n*RetryBackoff.
	RetryBackoff time.Duration `env:"RETRY_BACKOFF" envDefault:"500ms"`

	// AccuracyTimeBased is forwarded on drive-time requests.
	AccuracyTimeBased string `env:"ACCURACY_TIME_BASED" envDefault:"HIGH"`
}

// Sanitize applies guardrails to provider configuration values.
func (p *ProviderConfig) Sanitize() {
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	if p.BaseURL == "" {
		p.BaseURL = "https://api.leptonmaps.com"
	}
	if p.Timeout <= 0 {
		p.Timeout = 15 * time.Second
	}
	if p.RetryLimit < 0 {
		p.RetryLimit = 0
	}
	if p.RetryLimit > 10 {
		p.RetryLimit = 10
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = 500 * time.Millisecond
	}
	if strings.TrimSpace(p.AccuracyTimeBased) == "" {
		p.AccuracyTimeBased = "HIGH"
	}
}
