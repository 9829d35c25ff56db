// Package session keeps a GlucoSnap client authenticated: it owns the
// stored credential pair, restores it on cold start, rotates it on expiry
// and exposes the current access token to the rest of the app.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/eldor47/glucosnap/authmodel"
	"github.com/eldor47/glucosnap/credentials"
	apperrors "github.com/eldor47/glucosnap/internal/errors"
	"github.com/eldor47/glucosnap/tokencodec"
)

// State is the session lifecycle position.
type State int

const (
	// StateUnknown: process just started, store not yet read
	StateUnknown State = iota
	// StateRestoring: reading the credential store
	StateRestoring
	// StateSignedOut: no usable session
	StateSignedOut
	// StateActive: session holds a token pair
	StateActive
	// StateRefreshing: a rotation is in flight; the stale access token is
	// still served to in-flight requests
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateRestoring:
		return "restoring"
	case StateSignedOut:
		return "signed_out"
	case StateActive:
		return "active"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// AuthAPI is the slice of the auth backend the manager needs.
type AuthAPI interface {
	SignIn(ctx context.Context, email, password string) (*authmodel.AuthResponse, error)
	SignUp(ctx context.Context, req authmodel.SignUpRequest) (*authmodel.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*authmodel.RefreshResponse, error)
	ExchangeFederated(ctx context.Context, idToken string) (*authmodel.AuthResponse, error)
}

// TokenSource is the read-only capability handed to components that issue
// authenticated calls, instead of a process-global token stash.
type TokenSource interface {
	// CurrentToken returns the current access token. It never blocks and
	// never triggers network activity.
	CurrentToken() (string, bool)

	// Refresh rotates the token pair, returning true on success. Concurrent
	// callers share a single exchange.
	Refresh(ctx context.Context) bool
}

// Manager orchestrates the session lifecycle.
type Manager struct {
	api     AuthAPI
	store   credentials.Store
	logger  zerolog.Logger
	nowFunc func() time.Time

	mu       sync.Mutex
	state    State
	creds    credentials.Credentials
	restored bool

	// epoch is bumped on every sign-out and sign-in. A refresh that
	// completes against a stale epoch discards its result, so a late
	// rotation can never resurrect a session the user left.
	epoch uint64

	refreshGroup singleflight.Group
}

// refreshKey is the single-flight key every refresh exchange runs under,
// the eager restore refresh included.
const refreshKey = "refresh"

var _ TokenSource = (*Manager)(nil)

type Option func(*Manager)

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func NewManager(api AuthAPI, store credentials.Store, options ...Option) *Manager {
	m := &Manager{
		api:     api,
		store:   store,
		logger:  zerolog.Nop(),
		nowFunc: time.Now,
		state:   StateUnknown,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentToken returns the access token while the session is active or
// refreshing (the stale token is served during rotation).
func (m *Manager) CurrentToken() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if (m.state == StateActive || m.state == StateRefreshing) && m.creds.AccessToken != "" {
		return m.creds.AccessToken, true
	}
	return "", false
}

// Profile returns the cached best-effort profile.
func (m *Manager) Profile() tokencodec.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds.Profile
}

// Restore reads the credential store and settles the session into
// SignedOut or Active. It runs once per process lifetime; later calls
// return the settled state without touching the store or the network.
//
// A locally-expired access token triggers one eager refresh, but a failed
// eager refresh still enters Active with the stale token: the failure is
// deferred to the next real request, which gets the normal
// 401 -> refresh -> sign-out treatment.
func (m *Manager) Restore(ctx context.Context) State {
	m.mu.Lock()
	if m.restored {
		s := m.state
		m.mu.Unlock()
		return s
	}
	m.restored = true
	m.state = StateRestoring
	m.mu.Unlock()

	creds, err := credentials.Load(ctx, m.store)
	switch {
	case err == nil:
	case apperrors.Is(err, apperrors.ErrNotFound):
		return m.settleSignedOut(ctx, false)
	case apperrors.Is(err, apperrors.ErrCorruptCredentials):
		m.logger.Warn().Msg("partial credentials found, clearing")
		return m.settleSignedOut(ctx, true)
	default:
		// Store unavailable: fail safe to signed out, do not crash
		m.logger.Warn().Err(err).Msg("credential store unavailable")
		return m.settleSignedOut(ctx, false)
	}

	decoded, err := tokencodec.Decode(creds.AccessToken)
	if err != nil {
		m.logger.Warn().Err(err).Msg("stored access token undecodable, clearing")
		return m.settleSignedOut(ctx, true)
	}

	expired := decoded.Expired(m.nowFunc())
	if expired && !creds.Refreshable {
		// A non-refreshable session past expiry goes straight to sign-out;
		// a refresh exchange against it is doomed.
		return m.settleSignedOut(ctx, true)
	}

	m.mu.Lock()
	m.creds = creds
	m.state = StateActive
	epoch := m.epoch
	m.mu.Unlock()

	if expired {
		// Share the single-flight key with Refresh so a concurrent caller
		// attaches here instead of racing a second exchange against the
		// same single-use refresh token.
		m.refreshGroup.Do(refreshKey, func() (any, error) {
			resp, err := m.api.Refresh(ctx, creds.RefreshToken)
			if err != nil {
				m.logger.Debug().Err(err).Msg("eager refresh failed, keeping stale token")
				return false, nil
			}
			return m.commitTokens(ctx, epoch, resp.Tokens), nil
		})
	}
	return StateActive
}

// SignInWithPassword exchanges credentials with the backend. Nothing is
// persisted unless the whole exchange succeeds; a failure leaves the
// session signed out with a typed error.
func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) error {
	resp, err := m.api.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	return m.adoptSession(ctx, resp, true)
}

// SignUpWithPassword creates an account and signs it in. Duplicate email
// or username surfaces apperrors.ErrUserAlreadyExists with no half-created
// session.
func (m *Manager) SignUpWithPassword(ctx context.Context, req authmodel.SignUpRequest) error {
	resp, err := m.api.SignUp(ctx, req)
	if err != nil {
		return err
	}
	return m.adoptSession(ctx, resp, true)
}

// SignInWithFederatedToken exchanges a third-party ID token at the backend
// for first-party, refresh-capable tokens. Should the backend ever answer
// without a refresh token, the session is stored explicitly marked
// non-refreshable so its expiry routes to sign-out instead of a doomed
// refresh call.
func (m *Manager) SignInWithFederatedToken(ctx context.Context, idToken string) error {
	resp, err := m.api.ExchangeFederated(ctx, idToken)
	if err != nil {
		return err
	}
	return m.adoptSession(ctx, resp, resp.Tokens.RefreshToken != "")
}

// Refresh rotates the token pair. Process-wide, at most one exchange is in
// flight: concurrent callers attach to it and observe the same outcome.
//
// Returns false when the refresh token itself is rejected (the session is
// then forcibly signed out and the store cleared) and when the failure is
// transient (the session stays Active with the old token).
func (m *Manager) Refresh(ctx context.Context) bool {
	result, _, _ := m.refreshGroup.Do(refreshKey, func() (any, error) {
		return m.refreshOnce(ctx), nil
	})
	return result.(bool)
}

func (m *Manager) refreshOnce(ctx context.Context) bool {
	m.mu.Lock()
	if m.state != StateActive && m.state != StateRefreshing {
		m.mu.Unlock()
		return false
	}
	if !m.creds.Refreshable {
		// Explicitly non-refreshable: expiry means sign-out
		m.signOutLocked(ctx)
		m.mu.Unlock()
		return false
	}
	refreshToken := m.creds.RefreshToken
	epoch := m.epoch
	m.state = StateRefreshing
	m.mu.Unlock()

	resp, err := m.api.Refresh(ctx, refreshToken)
	if err == nil {
		return m.commitTokens(ctx, epoch, resp.Tokens)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		// Signed out (or re-signed-in) while we were in flight; the
		// explicit action wins.
		return false
	}

	if apperrors.Is(err, apperrors.ErrInvalidRefreshToken) {
		m.logger.Info().Msg("refresh token rejected, signing out")
		m.signOutLocked(ctx)
		return false
	}

	// Transient failure: stay Active with the now-confirmed-expired token
	// so the caller can retry later.
	m.logger.Debug().Err(err).Msg("refresh failed transiently")
	m.state = StateActive
	return false
}

// SignOut clears the store and in-memory state unconditionally. It is
// idempotent and never fails; store deletion errors are swallowed.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restored = true
	m.signOutLocked(ctx)
}

func (m *Manager) signOutLocked(ctx context.Context) {
	m.epoch++
	m.state = StateSignedOut
	m.creds = credentials.Credentials{}
	if err := credentials.Clear(ctx, m.store); err != nil {
		m.logger.Debug().Err(err).Msg("credential store clear failed")
	}
}

// adoptSession installs a freshly exchanged session. Store writes happen
// only here, after a fully successful exchange.
func (m *Manager) adoptSession(ctx context.Context, resp *authmodel.AuthResponse, refreshable bool) error {
	creds := credentials.Credentials{
		AccessToken:  resp.Tokens.AccessToken,
		RefreshToken: resp.Tokens.RefreshToken,
		Refreshable:  refreshable,
		Profile: tokencodec.Profile{
			Email:    resp.User.Email,
			Username: resp.User.Username,
			Picture:  resp.User.Picture,
		},
	}
	if resp.User.GivenName != "" || resp.User.FamilyName != "" {
		creds.Profile.Name = joinName(resp.User.GivenName, resp.User.FamilyName)
	}
	if decoded, err := tokencodec.Decode(creds.AccessToken); err == nil {
		if creds.Profile.Email == "" {
			creds.Profile.Email = decoded.Profile.Email
		}
		if creds.Profile.Name == "" {
			creds.Profile.Name = decoded.Profile.Name
		}
		if creds.Profile.Picture == "" {
			creds.Profile.Picture = decoded.Profile.Picture
		}
	}
	if !refreshable {
		// Keep the stored pair structurally complete; the flag prevents
		// any exchange against it.
		creds.RefreshToken = creds.AccessToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := credentials.Save(ctx, m.store, creds); err != nil {
		return apperrors.Wrapf(err, "persist session")
	}
	m.epoch++
	m.restored = true
	m.creds = creds
	m.state = StateActive
	return nil
}

// commitTokens installs a rotated token pair, unless the session epoch
// moved while the exchange was in flight.
func (m *Manager) commitTokens(ctx context.Context, epoch uint64, tokens authmodel.Tokens) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		m.logger.Debug().Msg("discarding refresh result for stale session")
		return false
	}

	creds := m.creds
	creds.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		creds.RefreshToken = tokens.RefreshToken
	}

	// Store write before the in-memory swap: once a caller observes the
	// new token, it is already durable.
	if err := credentials.Save(ctx, m.store, creds); err != nil {
		m.logger.Warn().Err(err).Msg("persisting rotated tokens failed")
		m.state = StateActive
		return false
	}

	m.creds = creds
	m.state = StateActive
	return true
}

// settleSignedOut finishes a restore in the signed-out state, optionally
// clearing leftover local state. No network call is made.
func (m *Manager) settleSignedOut(ctx context.Context, clear bool) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if clear {
		if err := credentials.Clear(ctx, m.store); err != nil {
			m.logger.Debug().Err(err).Msg("credential store clear failed")
		}
	}
	m.state = StateSignedOut
	m.creds = credentials.Credentials{}
	return m.state
}

func joinName(given, family string) string {
	switch {
	case given == "":
		return family
	case family == "":
		return given
	default:
		return given + " " + family
	}
}
