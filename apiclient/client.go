// Package apiclient issues authenticated requests against the GlucoSnap
// API and applies the 401/403 recovery policy.
package apiclient

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

	apperrors "github.com/eldor47/glucosnap/internal/errors"
	"github.com/eldor47/glucosnap/session"
)

const defaultTimeout = 30 * time.Second

// StatusError carries a non-2xx response outside the 401/403 policy.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Client wraps an HTTP client with bearer authentication and the recovery
// policy:
//
//	2xx        -> body returned to the caller
//	401        -> one token refresh, then one retry with the new token;
//	              a failed refresh surfaces ErrSignInRequired
//	403        -> ErrAccessDenied; never refreshed, never retried
//	other      -> *StatusError; no automatic retry
//
// A single logical request never triggers more than one refresh and one
// retry, however many times 401 recurs.
type Client struct {
	baseURL string
	tokens  session.TokenSource
	http    *http.Client
	logger  zerolog.Logger

	// onSignInRequired, when set, runs after a failed 401 recovery. The
	// app hangs its sign-in navigation here.
	onSignInRequired func()
}

type Option func(*Client)

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

// WithSignInRequiredHook registers the callback invoked when a request
// cannot be recovered and the user must re-authenticate.
func WithSignInRequiredHook(fn func()) Option {
	return func(c *Client) {
		c.onSignInRequired = fn
	}
}

// New builds a Client around the injected token source. The token source
// is the only way the client touches credentials; there is no global
// token stash.
func New(baseURL string, tokens session.TokenSource, options ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Do issues an authenticated JSON request and returns the response body.
func (c *Client) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Wrapf(err, "encode request")
		}
		payload = raw
	}

	token, ok := c.tokens.CurrentToken()
	if !ok {
		c.signInRequired()
		return nil, apperrors.ErrSignInRequired
	}

	res, resBody, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return nil, err
	}

	if res.StatusCode == http.StatusUnauthorized {
		c.logger.Debug().Str("path", path).Msg("401 received, refreshing token")
		if !c.tokens.Refresh(ctx) {
			c.signInRequired()
			return nil, apperrors.ErrSignInRequired
		}
		token, ok = c.tokens.CurrentToken()
		if !ok {
			c.signInRequired()
			return nil, apperrors.ErrSignInRequired
		}

		// Exactly one retry. A second 401 is terminal: looping here with
		// a token the server keeps rejecting would never converge.
		res, resBody, err = c.send(ctx, method, path, payload, token)
		if err != nil {
			return nil, err
		}
		if res.StatusCode == http.StatusUnauthorized {
			c.signInRequired()
			return nil, apperrors.ErrSignInRequired
		}
	}

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return resBody, nil
	case res.StatusCode == http.StatusForbidden:
		// Valid identity, forbidden action. Refreshing cannot change the
		// outcome, so it is never attempted.
		return nil, apperrors.ErrAccessDenied
	default:
		return nil, &StatusError{StatusCode: res.StatusCode, Body: string(resBody)}
	}
}

// GetJSON issues a GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	raw, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// PostJSON issues a POST and decodes the response into out (out may be nil).
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	raw, err := c.Do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, apperrors.Wrapf(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, nil, apperrors.Wrapf(err, "%s %s", method, path)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, nil, apperrors.Wrapf(err, "read response")
	}
	return res, body, nil
}

func (c *Client) signInRequired() {
	if c.onSignInRequired != nil {
		c.onSignInRequired()
	}
}
