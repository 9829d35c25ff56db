// Package tokencodec decodes JWT payloads without verifying signatures.
//
// Decoding here is advisory only: the client uses it to decide whether a
// proactive refresh is worth attempting and to show a best-effort profile.
// Authorization decisions belong to the server-side gate, which performs
// full cryptographic verification.
package tokencodec

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ErrDecode is returned for any input that is not a structurally valid JWT.
var ErrDecode = errors.New("token decode failed")

// Profile is the best-effort identity carried in token claims.
// Never authoritative; the server is the source of truth.
type Profile struct {
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
}

// DecodedToken holds the unverified payload of a JWT.
type DecodedToken struct {
	Claims    map[string]any
	ExpiresAt time.Time
	Profile   Profile
}

// Expired reports whether the token's exp claim is in the past at time now.
// Tokens without an exp claim are never considered locally expired.
func (d *DecodedToken) Expired(now time.Time) bool {
	if d.ExpiresAt.IsZero() {
		return false
	}
	return now.After(d.ExpiresAt)
}

// Decode parses the payload of a JWT without verifying its signature.
// Malformed input returns an error wrapping ErrDecode; it never panics.
func Decode(raw string) (*DecodedToken, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrDecode)
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrDecode)
	}

	decoded := &DecodedToken{Claims: map[string]any(claims)}

	if exp, ok := claims["exp"].(float64); ok {
		decoded.ExpiresAt = time.Unix(int64(exp), 0)
	}

	decoded.Profile = profileFromClaims(claims)
	return decoded, nil
}

func profileFromClaims(claims jwtlib.MapClaims) Profile {
	var p Profile
	p.Email, _ = claims["email"].(string)
	p.Username, _ = claims["username"].(string)
	p.Picture, _ = claims["picture"].(string)

	if name, ok := claims["name"].(string); ok && name != "" {
		p.Name = name
	} else if given, ok := claims["given_name"].(string); ok {
		p.Name = given
	}
	return p
}
