package authclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldor47/glucosnap/authclient"
	"github.com/eldor47/glucosnap/authmodel"
	apperrors "github.com/eldor47/glucosnap/internal/errors"
)

func authServer(t *testing.T, handler http.HandlerFunc) *authclient.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return authclient.New(srv.URL)
}

func TestSignInSuccess(t *testing.T) {
	var gotReq authmodel.SignInRequest
	c := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(authmodel.AuthResponse{
			Message: "Signed in",
			Tokens:  authmodel.Tokens{AccessToken: "T1", RefreshToken: "R1"},
			User:    authmodel.UserInfo{Email: "alice@example.com"},
		})
	})

	resp, err := c.SignIn(context.Background(), "alice@example.com", "Goodpass1!")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", gotReq.Email)
	require.Equal(t, "Goodpass1!", gotReq.Password)
	require.Equal(t, "T1", resp.Tokens.AccessToken)
	require.Equal(t, "R1", resp.Tokens.RefreshToken)
}

func TestSignInRejected(t *testing.T) {
	c := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(authmodel.ErrorResponse{Message: "Invalid email or password"})
	})

	_, err := c.SignIn(context.Background(), "alice@example.com", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	require.Contains(t, err.Error(), "Invalid email or password")
}

func TestSignUpConflict(t *testing.T) {
	c := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(authmodel.ErrorResponse{Message: "User already exists"})
	})

	_, err := c.SignUp(context.Background(), authmodel.SignUpRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "Goodpass1!",
	})
	require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
}

func TestSignUpWeakPassword(t *testing.T) {
	c := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.SignUp(context.Background(), authmodel.SignUpRequest{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "short",
	})
	require.ErrorIs(t, err, apperrors.ErrWeakPassword)
}

func TestRefreshSuccess(t *testing.T) {
	var gotReq authmodel.RefreshRequest
	c := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(authmodel.RefreshResponse{
			Tokens: authmodel.Tokens{AccessToken: "T2", RefreshToken: "R2"},
		})
	})

	resp, err := c.Refresh(context.Background(), "R1")
	require.NoError(t, err)
	require.Equal(t, "R1", gotReq.RefreshToken)
	require.Equal(t, "T2", resp.Tokens.AccessToken)
	require.Equal(t, "R2", resp.Tokens.RefreshToken)
}

func TestRefreshRejected(t *testing.T) {
	c := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Refresh(context.Background(), "stale")
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}

func TestRefreshTransportErrorIsNotRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on
	c := authclient.New(srv.URL)

	_, err := c.Refresh(context.Background(), "R1")
	require.Error(t, err)
	require.False(t, apperrors.Is(err, apperrors.ErrInvalidRefreshToken))
}

func TestExchangeFederated(t *testing.T) {
	var gotReq authmodel.FederatedRequest
	c := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(authmodel.AuthResponse{
			Tokens: authmodel.Tokens{AccessToken: "T1", RefreshToken: "R1"},
		})
	})

	resp, err := c.ExchangeFederated(context.Background(), "google-id-token")
	require.NoError(t, err)
	require.Equal(t, "google-id-token", gotReq.IDToken)
	require.Equal(t, "T1", resp.Tokens.AccessToken)
}

func TestUnmappedStatusBecomesStatusError(t *testing.T) {
	c := authServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.SignIn(context.Background(), "alice@example.com", "Goodpass1!")
	var statusErr *authclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}
