package httpx

import (
	"context"

	"github.com/locushq/catchment-api/internal/ports"
)

// principalKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type principalKey struct{}

// SetPrincipalInContext returns a child context carrying the verified principal.
func SetPrincipalInContext(ctx context.Context, principal ports.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// GetPrincipalFromContext returns the principal from context and a boolean indicating presence.
func GetPrincipalFromContext(ctx context.Context) (ports.Principal, bool) {
	if principal, ok := ctx.Value(principalKey{}).(ports.Principal); ok {
		return principal, true
	}
	return ports.Principal{}, false
}
