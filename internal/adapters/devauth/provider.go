// Package devauth provides a static-token verifier for development and
// single-tenant deployments where running an IdP is overkill.
package devauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/locushq/catchment-api/internal/ports"
)

// Verifier maps pre-shared bearer tokens to accounts.
type Verifier struct {
	accounts map[string]string
}

// NewVerifier parses "token=account" pairs.
func NewVerifier(pairs []string) (*Verifier, error) {
	if len(pairs) == 0 {
		return nil, errors.New("at least one token=account pair is required")
	}

	accounts := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		token, account, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || token == "" || account == "" {
			return nil, fmt.Errorf("invalid static token pair %q, want token=account", pair)
		}
		accounts[token] = account
	}

	return &Verifier{accounts: accounts}, nil
}

// Verify resolves the account for a pre-shared token.
func (v *Verifier) Verify(_ context.Context, token string) (ports.Principal, error) {
	for candidate, account := range v.accounts {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return ports.Principal{Account: account, Subject: account}, nil
		}
	}
	return ports.Principal{}, errors.New("unknown token")
}

var _ ports.TokenVerifier = (*Verifier)(nil)
