package apiclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eldor47/glucosnap/apiclient"
	apperrors "github.com/eldor47/glucosnap/internal/errors"
)

// fakeTokenSource is a scriptable session.TokenSource.
type fakeTokenSource struct {
	token     string
	refreshed atomic.Int32

	// refreshOK controls the Refresh outcome; newToken replaces token on
	// success.
	refreshOK bool
	newToken  string
}

func (f *fakeTokenSource) CurrentToken() (string, bool) {
	if f.token == "" {
		return "", false
	}
	return f.token, true
}

func (f *fakeTokenSource) Refresh(ctx context.Context) bool {
	f.refreshed.Add(1)
	if f.refreshOK {
		f.token = f.newToken
	}
	return f.refreshOK
}

func TestDoSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := apiclient.New(srv.URL, &fakeTokenSource{token: "T1"})

	body, err := c.Do(context.Background(), http.MethodGet, "/meals", nil)
	require.NoError(t, err)
	require.Equal(t, "Bearer T1", gotAuth)
	require.JSONEq(t, `{"ok":true}`, string(body))
}

func TestDoWithoutTokenRequiresSignIn(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	hookFired := false
	c := apiclient.New(srv.URL, &fakeTokenSource{},
		apiclient.WithSignInRequiredHook(func() { hookFired = true }),
	)

	_, err := c.Do(context.Background(), http.MethodGet, "/meals", nil)
	require.ErrorIs(t, err, apperrors.ErrSignInRequired)
	require.True(t, hookFired)
	require.Equal(t, int32(0), requests.Load(), "no request without a token")
}

func TestDoRecoversFrom401(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer T2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"recovered":true}`))
	}))
	defer srv.Close()

	tokens := &fakeTokenSource{token: "T1", refreshOK: true, newToken: "T2"}
	c := apiclient.New(srv.URL, tokens)

	body, err := c.Do(context.Background(), http.MethodGet, "/meals", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"recovered":true}`, string(body))
	require.Equal(t, int32(1), tokens.refreshed.Load())
	require.Equal(t, int32(2), requests.Load(), "original plus exactly one retry")
}

func TestDoFailedRefreshRequiresSignIn(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	hookFired := false
	tokens := &fakeTokenSource{token: "T1", refreshOK: false}
	c := apiclient.New(srv.URL, tokens,
		apiclient.WithSignInRequiredHook(func() { hookFired = true }),
	)

	_, err := c.Do(context.Background(), http.MethodGet, "/meals", nil)
	require.ErrorIs(t, err, apperrors.ErrSignInRequired)
	require.True(t, hookFired)
	require.Equal(t, int32(1), tokens.refreshed.Load())
	require.Equal(t, int32(1), requests.Load(), "no retry after a failed refresh")
}

func TestDoPersistent401IsTerminal(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &fakeTokenSource{token: "T1", refreshOK: true, newToken: "T2"}
	c := apiclient.New(srv.URL, tokens)

	_, err := c.Do(context.Background(), http.MethodGet, "/meals", nil)
	require.ErrorIs(t, err, apperrors.ErrSignInRequired)
	require.Equal(t, int32(1), tokens.refreshed.Load(), "a single request refreshes at most once")
	require.Equal(t, int32(2), requests.Load())
}

func TestDo403NeverRefreshes(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tokens := &fakeTokenSource{token: "T1", refreshOK: true, newToken: "T2"}
	c := apiclient.New(srv.URL, tokens)

	_, err := c.Do(context.Background(), http.MethodGet, "/admin", nil)
	require.ErrorIs(t, err, apperrors.ErrAccessDenied)
	require.Equal(t, int32(0), tokens.refreshed.Load(), "403 is not a token problem")
	require.Equal(t, int32(1), requests.Load())
}

func TestDoOtherStatusBecomesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance"))
	}))
	defer srv.Close()

	c := apiclient.New(srv.URL, &fakeTokenSource{token: "T1"})

	_, err := c.Do(context.Background(), http.MethodGet, "/meals", nil)
	var statusErr *apiclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	require.Contains(t, statusErr.Body, "maintenance")
}

func TestPostJSON(t *testing.T) {
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"id":"meal-1"}`))
	}))
	defer srv.Close()

	c := apiclient.New(srv.URL, &fakeTokenSource{token: "T1"})

	var out struct {
		ID string `json:"id"`
	}
	err := c.PostJSON(context.Background(), "/meals", map[string]string{"name": "lunch"}, &out)
	require.NoError(t, err)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, "meal-1", out.ID)
}
