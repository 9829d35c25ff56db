// Package authclient is the HTTP client for the GlucoSnap auth endpoints.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldor47/glucosnap/authmodel"
	apperrors "github.com/eldor47/glucosnap/internal/errors"
)

const defaultTimeout = 15 * time.Second

// StatusError carries a non-2xx response that has no more specific mapping.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("auth endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to the auth backend. The zero value is not usable; construct
// with New.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// SignIn exchanges email and password for a token pair.
// Bad credentials return apperrors.ErrInvalidCredentials.
func (c *Client) SignIn(ctx context.Context, email, password string) (*authmodel.AuthResponse, error) {
	var resp authmodel.AuthResponse
	err := c.post(ctx, "/auth/signin", authmodel.SignInRequest{Email: email, Password: password}, &resp, map[int]error{
		http.StatusUnauthorized: apperrors.ErrInvalidCredentials,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SignUp creates an account and signs it in.
// A duplicate email or username returns apperrors.ErrUserAlreadyExists.
func (c *Client) SignUp(ctx context.Context, req authmodel.SignUpRequest) (*authmodel.AuthResponse, error) {
	var resp authmodel.AuthResponse
	err := c.post(ctx, "/auth/signup", req, &resp, map[int]error{
		http.StatusConflict:   apperrors.ErrUserAlreadyExists,
		http.StatusBadRequest: apperrors.ErrWeakPassword,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh exchanges a refresh token for a new token pair. A rejected
// refresh token returns apperrors.ErrInvalidRefreshToken; any transport
// failure is returned as-is (transient).
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*authmodel.RefreshResponse, error) {
	var resp authmodel.RefreshResponse
	err := c.post(ctx, "/auth/refresh", authmodel.RefreshRequest{RefreshToken: refreshToken}, &resp, map[int]error{
		http.StatusUnauthorized: apperrors.ErrInvalidRefreshToken,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExchangeFederated trades a third-party ID token for first-party tokens.
func (c *Client) ExchangeFederated(ctx context.Context, idToken string) (*authmodel.AuthResponse, error) {
	var resp authmodel.AuthResponse
	err := c.post(ctx, "/auth/federated", authmodel.FederatedRequest{IDToken: idToken}, &resp, map[int]error{
		http.StatusUnauthorized: apperrors.ErrInvalidCredentials,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// post sends a JSON request and decodes a JSON response. statusErrs maps
// specific response codes onto sentinel errors; everything else non-2xx
// becomes a *StatusError.
func (c *Client) post(ctx context.Context, path string, body any, out any, statusErrs map[int]error) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return apperrors.Wrapf(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return apperrors.Wrapf(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrapf(err, "POST %s", path)
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return apperrors.Wrapf(err, "decode response")
		}
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	c.logger.Debug().Str("path", path).Int("status", res.StatusCode).Msg("auth request rejected")

	if sentinel, ok := statusErrs[res.StatusCode]; ok {
		var er authmodel.ErrorResponse
		if json.Unmarshal(respBody, &er) == nil && er.Message != "" {
			return fmt.Errorf("%s: %w", er.Message, sentinel)
		}
		return sentinel
	}
	return &StatusError{StatusCode: res.StatusCode, Body: string(respBody)}
}
