package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/locushq/catchment-api/config"
	"github.com/locushq/catchment-api/internal/adapters/devauth"
	"github.com/locushq/catchment-api/internal/adapters/oidc"
	"github.com/locushq/catchment-api/internal/ports"
)

// BuildTokenVerifier constructs the bearer token verifier selected by the
// auth mode. OIDC performs issuer discovery at construction, so this needs a
// context and can fail on network errors.
//
//nolint:ireturn // which verifier backs the port is a runtime configuration decision.
func BuildTokenVerifier(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) (ports.TokenVerifier, error) {
	switch cfg.Mode {
	case config.AuthModeStatic:
		if logger != nil {
			logger.Warn("static token auth enabled; do not use in production")
		}
		verifier, err := devauth.NewVerifier(cfg.Static.Tokens)
		if err != nil {
			return nil, fmt.Errorf("build static token verifier: %w", err)
		}
		return verifier, nil
	case config.AuthModeOIDC:
		verifier, err := oidc.NewVerifier(ctx, oidc.VerifierConfig{
			IssuerURL: cfg.OIDC.IssuerURL,
			Audience:  cfg.OIDC.Audience,
		})
		if err != nil {
			return nil, fmt.Errorf("build oidc token verifier: %w", err)
		}
		return verifier, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %q", cfg.Mode)
	}
}
