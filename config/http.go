package config

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://app.example.com").
	// Used for generating absolute download URLs in webhook payloads.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// SSEHeartbeat is the interval between keep-alive comments on the
	// status event stream. Proxies tend to drop idle connections.
	SSEHeartbeatSeconds int `env:"HTTP_SSE_HEARTBEAT_SECONDS" envDefault:"15"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.SSEHeartbeatSeconds < 1 {
		h.SSEHeartbeatSeconds = 1
	}
	if h.SSEHeartbeatSeconds > 120 {
		h.SSEHeartbeatSeconds = 120
	}
}
