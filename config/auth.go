package config

import (
	"fmt"
	"strings"
)

// AuthMode represents the bearer-token verification mode for the application.
type AuthMode string

const (
	// AuthModeOIDC verifies bearer JWTs against an OIDC issuer.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeStatic accepts a fixed set of tokens (for development only).
	AuthModeStatic AuthMode = "static"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oidc", "static":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oidc, static)", v)
	}
}

// OIDCConfig contains OIDC bearer verification configuration.
type OIDCConfig struct {
	// IssuerURL is the OIDC issuer used for discovery and key fetching.
	IssuerURL string `env:"ISSUER_URL"`

	// Audience is the expected aud claim; empty skips the audience check.
	Audience string `env:"AUDIENCE" envDefault:"catchment-api"`
}

// StaticAuthConfig controls static token verification.
// Used when AUTH_MODE=static for development and testing.
type StaticAuthConfig struct {
	// Tokens maps accepted bearer tokens to account names, as
	// semicolon-separated token=account pairs.
	Tokens []string `env:"TOKENS" envDefault:"dev-token=dev-user" envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which token verifier to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oidc"`

	// OIDC configuration (used when Mode=oidc).
	OIDC OIDCConfig `envPrefix:"OIDC_"`

	// Static configuration (used when Mode=static).
	Static StaticAuthConfig `envPrefix:"STATIC_AUTH_"`
}
