// Package federated drives the Google sign-in leg on the client: it
// builds the authorization URL, exchanges the returned code and hands the
// verified ID token to the session manager for the backend exchange.
package federated

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

// GoogleFlow wraps the OIDC provider and OAuth2 configuration for one
// Google client registration.
type GoogleFlow struct {
	provider *oidc.Provider
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewGoogleFlow discovers the Google OIDC endpoints and prepares the
// authorization-code flow for the given client registration.
func NewGoogleFlow(ctx context.Context, clientID, clientSecret, redirectURL string) (*GoogleFlow, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("federated: provider discovery: %w", err)
	}

	return &GoogleFlow{
		provider: provider,
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// AuthURL returns the Google consent URL and the state value the caller
// must check on redirect.
func (f *GoogleFlow) AuthURL() (url, state string, err error) {
	state, err = randomState()
	if err != nil {
		return "", "", err
	}
	return f.config.AuthCodeURL(state, oauth2.AccessTypeOffline), state, nil
}

// ExchangeCode trades the redirect code for a verified Google ID token.
// The returned raw token is what SignInWithFederatedToken expects.
func (f *GoogleFlow) ExchangeCode(ctx context.Context, code string) (string, error) {
	oauth2Token, err := f.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("federated: code exchange: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return "", fmt.Errorf("federated: no id_token in token response")
	}

	// Verify locally before handing it on; the backend verifies again.
	if _, err := f.verifier.Verify(ctx, rawIDToken); err != nil {
		return "", fmt.Errorf("federated: id token verification: %w", err)
	}
	return rawIDToken, nil
}

func randomState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("federated: state generation: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
