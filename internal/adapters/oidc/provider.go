// Package oidc verifies bearer JWTs against an OIDC issuer.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/locushq/catchment-api/internal/ports"
)

// VerifierConfig holds configuration for the OIDC token verifier.
type VerifierConfig struct {
	// IssuerURL is the OIDC issuer; discovery runs once at construction.
	IssuerURL string
	// Audience is the expected aud claim of presented tokens.
	Audience string
	// HTTPClient overrides the client used for discovery and JWKS fetches.
	HTTPClient *http.Client
}

// Verifier validates bearer tokens using the issuer's published keys.
type Verifier struct {
	verifier *gooidc.IDTokenVerifier
}

// NewVerifier performs OIDC discovery and prepares a token verifier.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	issuer := strings.TrimSuffix(strings.TrimSpace(cfg.IssuerURL), "/")
	if issuer == "" {
		return nil, errors.New("issuer URL is required")
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, errors.New("audience is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	discoveryCtx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	provider, err := gooidc.NewProvider(discoveryCtx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	return &Verifier{
		verifier: provider.Verifier(&gooidc.Config{ClientID: audience}),
	}, nil
}

// tokenClaims is the subset of claims we resolve an account from.
type tokenClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Account string `json:"account"`
}

// Verify checks the token signature, expiry, issuer and audience, then
// resolves the account from the account claim, falling back to email and
// finally the subject.
func (v *Verifier) Verify(ctx context.Context, token string) (ports.Principal, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return ports.Principal{}, fmt.Errorf("verify token: %w", err)
	}

	var claims tokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return ports.Principal{}, fmt.Errorf("parse token claims: %w", err)
	}

	account := firstNonEmpty(claims.Account, claims.Email, claims.Subject)
	if account == "" {
		return ports.Principal{}, errors.New("token carries no account identity")
	}

	return ports.Principal{
		Account: account,
		Subject: claims.Subject,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ ports.TokenVerifier = (*Verifier)(nil)
