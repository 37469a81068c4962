package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Bearer-token verification configuration
//   - database.go: Database and quota store configuration
//   - http.go: HTTP server configuration
//   - provider.go: Geo enrichment provider configuration
//   - services.go: Service mode, worker, upload, and webhook configuration
type AppConfig struct {
	// IsDev controls development mode behavior (static token auth, relaxed checks).
	IsDev bool `env:"DEV" envDefault:"false"`

	// Authentication configuration
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,worker"`

	// Geo enrichment provider configuration
	Provider ProviderConfig `envPrefix:"LEPTON_"`

	// Processing worker configuration
	Worker WorkerConfig

	// Upload gating configuration
	Upload UploadConfig

	// Per-account enrichment quota configuration
	Quota QuotaConfig

	// Completion webhook configuration
	Webhook WebhookConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Provider.Sanitize()
	c.Worker.Sanitize()
	c.Upload.Sanitize()
	c.Quota.Sanitize()
	c.Webhook.Sanitize()
	c.Observability.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsWorkerEnabled returns true if the processing worker service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeWorker]
}
