package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldor47/glucosnap/auth"
	"github.com/eldor47/glucosnap/authmodel"
	"github.com/eldor47/glucosnap/gate"
	apperrors "github.com/eldor47/glucosnap/internal/errors"
	"github.com/eldor47/glucosnap/token"
	tokenrepofake "github.com/eldor47/glucosnap/token/repofake"
	"github.com/eldor47/glucosnap/users"
	userrepofake "github.com/eldor47/glucosnap/users/repofake"
)

const (
	secretStr    = "test-secret"
	issuer       = "com.glucosnap"
	audience     = "glucosnap-api"
	testClientID = "glucosnap-mobile"

	testEmail    = "alice@example.com"
	testUsername = "alice"
	testPassword = "Goodpass1"
)

type testFixture struct {
	userRepo  *userrepofake.FakeUserRepo
	tokenRepo *tokenrepofake.FakeRefreshTokenRepo
	federated *fakeFederatedVerifier
	service   *auth.Service
}

// fakeFederatedVerifier answers with canned Google claims.
type fakeFederatedVerifier struct {
	claims gate.GoogleClaims
	err    error
}

func (f *fakeFederatedVerifier) VerifyIDToken(ctx context.Context, rawToken string) (gate.GoogleClaims, error) {
	return f.claims, f.err
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	ur := userrepofake.NewFakeUserRepo()
	tr := tokenrepofake.NewFakeRefreshTokenRepo()
	fv := &fakeFederatedVerifier{}
	tm := token.NewManager(secretStr, issuer, audience, testClientID, tr)

	service, err := auth.NewService(ur, tm, auth.WithFederatedVerifier(fv))
	require.NoError(t, err)

	return &testFixture{userRepo: ur, tokenRepo: tr, federated: fv, service: service}
}

func (f *testFixture) createTestUser(t *testing.T) *users.User {
	t.Helper()

	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)

	user := &users.User{
		Email:          testEmail,
		Username:       testUsername,
		HashedPassword: hash,
	}
	require.NoError(t, f.userRepo.Create(context.Background(), user))
	return user
}

func TestSignInSuccess(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createTestUser(t)

	resp, err := f.service.SignIn(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Tokens.AccessToken)
	require.NotEmpty(t, resp.Tokens.RefreshToken)
	require.Equal(t, user.ID.String(), resp.User.UserID)
	require.Equal(t, testEmail, resp.User.Email)
}

func TestSignInWrongPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t)

	_, err := f.service.SignIn(context.Background(), testEmail, "WrongPass1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestSignInUnknownAccountIndistinguishable(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t)

	wrongPassword := func() error {
		_, err := f.service.SignIn(context.Background(), testEmail, "WrongPass1")
		return err
	}
	unknownAccount := func() error {
		_, err := f.service.SignIn(context.Background(), "nobody@example.com", testPassword)
		return err
	}

	require.ErrorIs(t, wrongPassword(), apperrors.ErrInvalidCredentials)
	require.ErrorIs(t, unknownAccount(), apperrors.ErrInvalidCredentials)
	require.Equal(t, wrongPassword().Error(), unknownAccount().Error())
}

func TestSignInPasswordlessAccountRejected(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.userRepo.Create(context.Background(), &users.User{
		Email: "federated@example.com",
	}))

	_, err := f.service.SignIn(context.Background(), "federated@example.com", testPassword)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestSignUpCreatesAndSignsIn(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := f.service.SignUp(context.Background(), authmodel.SignUpRequest{
		Email:    testEmail,
		Username: testUsername,
		Password: testPassword,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Tokens.AccessToken)

	stored, err := f.userRepo.GetByEmail(context.Background(), testEmail)
	require.NoError(t, err)
	require.True(t, stored.HasPassword())
	require.True(t, users.CheckPassword(testPassword, stored.HashedPassword))
}

func TestSignUpDuplicateEmail(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t)

	_, err := f.service.SignUp(context.Background(), authmodel.SignUpRequest{
		Email:    testEmail,
		Username: "someone-else",
		Password: testPassword,
	})
	require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
}

func TestSignUpWeakPassword(t *testing.T) {
	f := setupTestFixture(t)

	for _, password := range []string{"short1", "allletters", "12345678"} {
		_, err := f.service.SignUp(context.Background(), authmodel.SignUpRequest{
			Email:    testEmail,
			Username: testUsername,
			Password: password,
		})
		require.ErrorIs(t, err, apperrors.ErrWeakPassword, "password %q", password)
	}

	// A rejected sign-up leaves no account behind
	_, err := f.userRepo.GetByEmail(context.Background(), testEmail)
	require.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestRefreshRotation(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t)
	ctx := context.Background()

	signedIn, err := f.service.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)

	refreshed, err := f.service.Refresh(ctx, signedIn.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.Tokens.AccessToken)
	require.NotEqual(t, signedIn.Tokens.RefreshToken, refreshed.Tokens.RefreshToken)

	// The consumed token cannot be replayed
	_, err = f.service.Refresh(ctx, signedIn.Tokens.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrRefreshTokenUsed)

	// The rotated token works
	_, err = f.service.Refresh(ctx, refreshed.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshUnknownToken(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Refresh(context.Background(), "never-issued")
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}

func TestFederatedFirstSignInCreatesAccount(t *testing.T) {
	f := setupTestFixture(t)
	f.federated.claims = gate.GoogleClaims{
		Subject: "google-sub-1",
		Email:   "carol@example.com",
		Name:    "Carol De Vil",
		Picture: "https://example.com/carol.png",
	}

	resp, err := f.service.Federated(context.Background(), "google-id-token")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Tokens.AccessToken)
	require.NotEmpty(t, resp.Tokens.RefreshToken)

	created, err := f.userRepo.GetByEmail(context.Background(), "carol@example.com")
	require.NoError(t, err)
	require.Equal(t, "Carol", created.GivenName)
	require.Equal(t, "De Vil", created.FamilyName)
	require.False(t, created.HasPassword())
}

func TestFederatedExistingAccountReused(t *testing.T) {
	f := setupTestFixture(t)
	user := f.createTestUser(t)
	f.federated.claims = gate.GoogleClaims{Subject: "google-sub-1", Email: testEmail}

	resp, err := f.service.Federated(context.Background(), "google-id-token")
	require.NoError(t, err)
	require.Equal(t, user.ID.String(), resp.User.UserID)
}

func TestFederatedRejectedToken(t *testing.T) {
	f := setupTestFixture(t)
	f.federated.err = errors.New("signature mismatch")

	_, err := f.service.Federated(context.Background(), "bogus")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestFederatedMissingEmail(t *testing.T) {
	f := setupTestFixture(t)
	f.federated.claims = gate.GoogleClaims{Subject: "google-sub-1"}

	_, err := f.service.Federated(context.Background(), "google-id-token")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestFederatedNotConfigured(t *testing.T) {
	ur := userrepofake.NewFakeUserRepo()
	tm := token.NewManager(secretStr, issuer, audience, testClientID, tokenrepofake.NewFakeRefreshTokenRepo())
	service, err := auth.NewService(ur, tm)
	require.NoError(t, err)

	_, err = service.Federated(context.Background(), "google-id-token")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	tm := token.NewManager(secretStr, issuer, audience, testClientID, tokenrepofake.NewFakeRefreshTokenRepo())

	_, err := auth.NewService(nil, tm)
	require.Error(t, err)

	_, err = auth.NewService(userrepofake.NewFakeUserRepo(), nil)
	require.Error(t, err)
}
