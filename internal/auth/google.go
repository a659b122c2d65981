package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/sakif/contribhub/internal/model"
)

const googleIssuer = "https://accounts.google.com"

// GoogleConfig configures the Google provider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// GoogleProvider signs users in with Google OpenID Connect. Google sign-ins
// never carry a GitHub username.
type GoogleProvider struct {
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

type googleClaims struct {
	Sub      string `json:"sub"`
	Email    string `json:"email"`
	Verified bool   `json:"email_verified"`
	Picture  string `json:"picture"`
}

// NewGoogleProvider discovers Google's OIDC configuration. It makes a
// network call and should run once at start.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	p, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("auth: discovering google oidc provider: %w", err)
	}

	return newGoogleProvider(cfg, endpoints.Google, p.Verifier(&oidc.Config{ClientID: cfg.ClientID})), nil
}

func newGoogleProvider(cfg GoogleConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
			Endpoint:     endpoint,
		},
		verifier: verifier,
	}
}

func (g *GoogleProvider) AuthURL(state string) string {
	return g.config.AuthCodeURL(state)
}

func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*SignInResult, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("auth: google token response has no id_token")
	}

	idTok, err := g.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("auth: verifying id token: %w", err)
	}

	var c googleClaims
	if err := idTok.Claims(&c); err != nil {
		return nil, fmt.Errorf("auth: reading id token claims: %w", err)
	}

	// An unverified address must not match the admin email allowlist.
	email := ""
	if c.Verified {
		email = c.Email
	}

	return &SignInResult{
		Provider:     model.ProviderGoogle,
		StableUserID: "google:" + idTok.Subject,
		Email:        email,
		PhotoURL:     c.Picture,
		AccessToken:  tok.AccessToken,
	}, nil
}
