// Package auth orchestrates the server-side authentication exchanges:
// password sign-in, account creation, refresh rotation and the federated
// Google exchange.
package auth

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eldor47/glucosnap/authmodel"
	"github.com/eldor47/glucosnap/gate"
	apperrors "github.com/eldor47/glucosnap/internal/errors"
	"github.com/eldor47/glucosnap/token"
	"github.com/eldor47/glucosnap/users"
)

// FederatedTokenVerifier verifies third-party ID tokens during the
// federated exchange.
type FederatedTokenVerifier interface {
	VerifyIDToken(ctx context.Context, rawToken string) (gate.GoogleClaims, error)
}

// Service implements the auth endpoints' semantics.
type Service struct {
	users     users.Repo
	tokens    *token.Manager
	federated FederatedTokenVerifier
	logger    zerolog.Logger
}

type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithFederatedVerifier enables the /auth/federated exchange.
func WithFederatedVerifier(v FederatedTokenVerifier) Option {
	return func(s *Service) {
		s.federated = v
	}
}

func NewService(userRepo users.Repo, tokens *token.Manager, options ...Option) (*Service, error) {
	if userRepo == nil {
		return nil, apperrors.Wrapf(apperrors.ErrInternal, "NewService: user repo is required")
	}
	if tokens == nil {
		return nil, apperrors.Wrapf(apperrors.ErrInternal, "NewService: token manager is required")
	}

	s := &Service{
		users:  userRepo,
		tokens: tokens,
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// SignIn exchanges email and password for a token pair. Unknown accounts
// and wrong passwords are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (*authmodel.AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.HasPassword() || !users.CheckPassword(password, user.HashedPassword) {
		return nil, apperrors.ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("user signed in")
	return authResponse("Signed in successfully", pair, user), nil
}

// SignUp creates an account and signs it in. Duplicate email or username
// returns apperrors.ErrUserAlreadyExists without a half-created session.
func (s *Service) SignUp(ctx context.Context, req authmodel.SignUpRequest) (*authmodel.AuthResponse, error) {
	if err := users.ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := users.HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.Wrapf(err, "hash password")
	}

	user := &users.User{
		Email:          req.Email,
		Username:       req.Username,
		GivenName:      req.GivenName,
		FamilyName:     req.FamilyName,
		HashedPassword: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("user created")
	return authResponse("User created successfully", pair, user), nil
}

// Refresh rotates a refresh token: the presented token is consumed and a
// new pair is issued. Used, expired and unknown tokens are rejected.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*authmodel.RefreshResponse, error) {
	record, err := s.tokens.Consume(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidRefreshToken
		}
		return nil, err
	}

	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}

	return &authmodel.RefreshResponse{
		Message: "Token refreshed successfully",
		Tokens:  pair,
	}, nil
}

// Federated verifies a Google ID token and exchanges it for first-party
// tokens, creating the account on first sign-in. The resulting session
// refreshes exactly like a password session.
func (s *Service) Federated(ctx context.Context, idToken string) (*authmodel.AuthResponse, error) {
	if s.federated == nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "federated sign-in not configured")
	}

	claims, err := s.federated.VerifyIDToken(ctx, idToken)
	if err != nil {
		s.logger.Debug().Err(err).Msg("federated token rejected")
		return nil, apperrors.ErrInvalidCredentials
	}
	if claims.Email == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, claims.Email)
	switch {
	case err == nil:
	case apperrors.Is(err, apperrors.ErrUserNotFound):
		user = &users.User{
			Email:      claims.Email,
			GivenName:  givenNameFrom(claims.Name),
			FamilyName: familyNameFrom(claims.Name),
			Picture:    claims.Picture,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info().Str("user_id", user.ID.String()).Msg("federated user created")
	default:
		return nil, err
	}

	pair, err := s.tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	return authResponse("Signed in successfully", pair, user), nil
}

func authResponse(message string, pair authmodel.Tokens, user *users.User) *authmodel.AuthResponse {
	return &authmodel.AuthResponse{
		Message: message,
		Tokens:  pair,
		User: authmodel.UserInfo{
			UserID:     user.ID.String(),
			Email:      user.Email,
			Username:   user.Username,
			GivenName:  user.GivenName,
			FamilyName: user.FamilyName,
			Picture:    user.Picture,
		},
	}
}

func givenNameFrom(fullName string) string {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func familyNameFrom(fullName string) string {
	parts := strings.Fields(fullName)
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[1:], " ")
}
