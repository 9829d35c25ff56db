// Package gate is the server-side authorization gate: it verifies the
// bearer token on every protected request and derives the principal the
// downstream handlers run as.
//
// Verification here is cryptographic. The client's advisory, unverified
// decoding (package tokencodec) must never be substituted for this.
package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	apperrors "github.com/eldor47/glucosnap/internal/errors"
)

// Claims is the verified identity attached to a request.
type Claims struct {
	UserID   string
	Username string
	Email    string
	ClientID string
	TokenUse string
}

// Principal is a request-scoped verified identity. It has no lifecycle
// beyond the request and is never persisted.
type Principal struct {
	ID     string
	Claims Claims
}

// Verifier cryptographically verifies one kind of bearer token.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Principal, error)
}

// Gate evaluates bearer headers against a chain of verifiers.
type Gate struct {
	verifiers []Verifier
	cache     *ResultCache
	logger    zerolog.Logger
}

type Option func(*Gate)

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithCache enables the short-TTL verification-result cache.
func WithCache(cache *ResultCache) Option {
	return func(g *Gate) {
		g.cache = cache
	}
}

// New builds a gate that accepts a token verified by any of verifiers,
// tried in order.
func New(verifiers []Verifier, options ...Option) *Gate {
	g := &Gate{
		verifiers: verifiers,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Authorize verifies the Authorization header and returns the principal.
// Every failure path returns an error wrapping apperrors.ErrInvalidToken;
// the gate never default-allows and never panics past this boundary.
func (g *Gate) Authorize(ctx context.Context, authorizationHeader string) (principal Principal, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().Interface("panic", r).Msg("verifier panicked")
			principal, err = Principal{}, fmt.Errorf("%w: verifier failure", apperrors.ErrInvalidToken)
		}
	}()

	rawToken, err := bearerToken(authorizationHeader)
	if err != nil {
		return Principal{}, err
	}

	if g.cache != nil {
		if cached, ok := g.cache.get(rawToken); ok {
			return cached, nil
		}
	}

	var lastErr error
	for _, v := range g.verifiers {
		principal, verifyErr := v.Verify(ctx, rawToken)
		if verifyErr == nil {
			if g.cache != nil {
				g.cache.put(rawToken, principal)
			}
			return principal, nil
		}
		lastErr = verifyErr
	}

	g.logger.Debug().Err(lastErr).Msg("token verification failed")
	return Principal{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, lastErr)
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", apperrors.ErrInvalidToken)
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("%w: malformed authorization header", apperrors.ErrInvalidToken)
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", fmt.Errorf("%w: empty bearer token", apperrors.ErrInvalidToken)
	}
	return token, nil
}
