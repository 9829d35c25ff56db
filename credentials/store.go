// Package credentials persists the client's session material: the access
// token, the refresh token and a best-effort cached profile.
package credentials

import (
	"context"
	"encoding/json"

	apperrors "github.com/eldor47/glucosnap/internal/errors"
	"github.com/eldor47/glucosnap/tokencodec"
)

// Storage keys. Kept logically separate so a partial read (access token
// present, refresh token absent) is detectable and treated as corrupt.
const (
	KeyAccessToken   = "access_token"
	KeyRefreshToken  = "refresh_token"
	KeyCachedProfile = "cached_profile"
)

// Store is a durable key-value store for session material. Implementations
// must guarantee that a Set either completes fully or fails with no partial
// write observable.
type Store interface {
	// Get returns the stored value, or apperrors.ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Credentials is the full persisted session state.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Profile      tokencodec.Profile

	// Refreshable is false for sessions whose refresh token cannot be
	// exchanged (e.g. a federated session stored without a backend
	// exchange). The retry policy must not attempt refresh against them.
	Refreshable bool
}

type storedProfile struct {
	tokencodec.Profile
	NonRefreshable bool `json:"nonRefreshable,omitempty"`
}

// Load reads credentials from the store.
//
// Both tokens absent returns apperrors.ErrNotFound (signed out). Exactly
// one of the two present returns apperrors.ErrCorruptCredentials. A
// missing or undecodable profile is tolerated: the profile is best-effort.
func Load(ctx context.Context, s Store) (Credentials, error) {
	var creds Credentials

	access, accessErr := s.Get(ctx, KeyAccessToken)
	refresh, refreshErr := s.Get(ctx, KeyRefreshToken)

	accessMissing := apperrors.Is(accessErr, apperrors.ErrNotFound)
	refreshMissing := apperrors.Is(refreshErr, apperrors.ErrNotFound)

	switch {
	case accessErr != nil && !accessMissing:
		return creds, accessErr
	case refreshErr != nil && !refreshMissing:
		return creds, refreshErr
	case accessMissing && refreshMissing:
		return creds, apperrors.ErrNotFound
	case accessMissing || refreshMissing:
		return creds, apperrors.ErrCorruptCredentials
	}

	creds.AccessToken = string(access)
	creds.RefreshToken = string(refresh)
	creds.Refreshable = true

	if raw, err := s.Get(ctx, KeyCachedProfile); err == nil {
		var sp storedProfile
		if err := json.Unmarshal(raw, &sp); err == nil {
			creds.Profile = sp.Profile
			creds.Refreshable = !sp.NonRefreshable
		}
	}

	return creds, nil
}

// Save persists credentials. The profile write happens last so a failure
// part-way through still leaves both tokens consistent.
func Save(ctx context.Context, s Store, creds Credentials) error {
	if err := s.Set(ctx, KeyAccessToken, []byte(creds.AccessToken)); err != nil {
		return apperrors.Wrapf(err, "save access token")
	}
	if err := s.Set(ctx, KeyRefreshToken, []byte(creds.RefreshToken)); err != nil {
		return apperrors.Wrapf(err, "save refresh token")
	}

	raw, err := json.Marshal(storedProfile{Profile: creds.Profile, NonRefreshable: !creds.Refreshable})
	if err != nil {
		return apperrors.Wrapf(err, "encode profile")
	}
	if err := s.Set(ctx, KeyCachedProfile, raw); err != nil {
		return apperrors.Wrapf(err, "save profile")
	}
	return nil
}

// Clear removes all credential keys. Best effort: the first error is
// returned but all keys are attempted.
func Clear(ctx context.Context, s Store) error {
	var firstErr error
	for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyCachedProfile} {
		if err := s.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
