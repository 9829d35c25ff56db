// Package token mints access tokens and manages the rotating refresh
// tokens the auth endpoints hand out.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/eldor47/glucosnap/authmodel"
	apperrors "github.com/eldor47/glucosnap/internal/errors"
	"github.com/eldor47/glucosnap/users"
)

const refreshTokenBytes = 32 // 256 bits

// RefreshToken is a stored single-use refresh credential.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Repo stores refresh tokens.
type Repo interface {
	// Save stores a freshly minted token
	Save(ctx context.Context, token RefreshToken) error

	// GetAndMarkUsed atomically consumes a token. An unknown token returns
	// apperrors.ErrInvalidRefreshToken; a previously consumed one returns
	// apperrors.ErrRefreshTokenUsed. The returned record reflects the
	// state before consumption.
	GetAndMarkUsed(ctx context.Context, token string, usedAt time.Time) (RefreshToken, error)

	// DeleteForUser drops every token belonging to a user
	DeleteForUser(ctx context.Context, userID uuid.UUID) error
}

// Manager signs access tokens and rotates refresh tokens.
type Manager struct {
	key        []byte
	alg        jwtlib.SigningMethod
	issuer     string
	audience   string
	clientID   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	repo       Repo
	nowFunc    func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTTL, refreshTTL time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTTL = accessTTL
		m.refreshTTL = refreshTTL
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func NewManager(secretKey, issuer, audience, clientID string, repo Repo, options ...ManagerOption) *Manager {
	m := &Manager{
		key:        []byte(secretKey),
		alg:        jwtlib.SigningMethodHS256,
		issuer:     issuer,
		audience:   audience,
		clientID:   clientID,
		repo:       repo,
		nowFunc:    time.Now,
		accessTTL:  time.Hour,
		refreshTTL: 30 * 24 * time.Hour,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// IssuePair mints an access token and a fresh refresh token for user.
func (m *Manager) IssuePair(ctx context.Context, user *users.User) (authmodel.Tokens, error) {
	now := m.nowFunc().Truncate(time.Second)

	claims := jwtlib.MapClaims{
		"iss":       m.issuer,                    // Issuer of the token
		"aud":       m.audience,                  // Audience the token is intended for
		"sub":       user.ID.String(),            // Account the token was issued to
		"username":  user.Username,
		"email":     user.Email,
		"client_id": m.clientID,                  // Client the token was issued through
		"token_use": "access",                    // Distinguishes access tokens from ID tokens
		"iat":       now.Unix(),
		"exp":       now.Add(m.accessTTL).Unix(), // Expiry
		"jti":       uuid.New().String(),         // Unique token ID
	}

	access, err := jwtlib.NewWithClaims(m.alg, claims).SignedString(m.key)
	if err != nil {
		return authmodel.Tokens{}, errors.Wrap(err, "Manager.IssuePair sign")
	}

	refreshBytes := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(refreshBytes); err != nil {
		return authmodel.Tokens{}, errors.Wrap(err, "Manager.IssuePair rand.Read")
	}
	refresh := hex.EncodeToString(refreshBytes)

	if err := m.repo.Save(ctx, RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     refresh,
		CreatedAt: now,
		ExpiresAt: now.Add(m.refreshTTL),
	}); err != nil {
		return authmodel.Tokens{}, errors.Wrap(err, "Manager.IssuePair save refresh token")
	}

	return authmodel.Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

// Consume validates and single-uses a refresh token, returning the stored
// record. Expired, unknown and already-used tokens all fail with an error
// in the ErrInvalidRefreshToken family.
func (m *Manager) Consume(ctx context.Context, refresh string) (RefreshToken, error) {
	record, err := m.repo.GetAndMarkUsed(ctx, refresh, m.nowFunc())
	if err != nil {
		return record, err
	}

	if record.ExpiresAt.Before(m.nowFunc()) {
		return record, apperrors.ErrRefreshTokenExpired
	}
	return record, nil
}

// RevokeAll drops every refresh token belonging to a user.
func (m *Manager) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return m.repo.DeleteForUser(ctx, userID)
}
