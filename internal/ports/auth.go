// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/http.
package ports

import "context"

// Principal is the authenticated caller. Account keys job ownership and
// quota accounting.
type Principal struct {
	Account string
	Subject string
}

// TokenVerifier authenticates a bearer token and resolves the calling
// account. Implementations must reject expired or malformed tokens with an
// error; the HTTP layer maps any error to 401.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// TokenVerifierFunc adapts a function to the TokenVerifier interface.
type TokenVerifierFunc func(ctx context.Context, token string) (Principal, error)

// Verify implements TokenVerifier.
func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (Principal, error) {
	return f(ctx, token)
}
