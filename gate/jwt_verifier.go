package gate

import (
	"context"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// JWTVerifier verifies first-party HS256 access tokens: signature, issuer,
// audience, expiry and the token_use claim.
type JWTVerifier struct {
	key      []byte
	issuer   string
	audience string
	nowFunc  func() time.Time
}

var _ Verifier = (*JWTVerifier)(nil)

type JWTVerifierOption func(*JWTVerifier)

// WithJWTNowFunc sets the verification clock (primarily for testing).
func WithJWTNowFunc(now func() time.Time) JWTVerifierOption {
	return func(v *JWTVerifier) {
		v.nowFunc = now
	}
}

func NewJWTVerifier(secretKey, issuer, audience string, options ...JWTVerifierOption) *JWTVerifier {
	v := &JWTVerifier{
		key:      []byte(secretKey),
		issuer:   issuer,
		audience: audience,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

func (v *JWTVerifier) Verify(ctx context.Context, rawToken string) (Principal, error) {
	parsed, err := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(v.issuer),
		jwtlib.WithAudience(v.audience),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(v.nowFunc),
	).Parse(rawToken, func(t *jwtlib.Token) (any, error) {
		return v.key, nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("access token rejected: %w", err)
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return Principal{}, fmt.Errorf("access token rejected: unexpected claims type")
	}

	tokenUse, _ := claims["token_use"].(string)
	if tokenUse != "access" {
		return Principal{}, fmt.Errorf("access token rejected: token_use %q", tokenUse)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Principal{}, fmt.Errorf("access token rejected: missing sub")
	}
	username, _ := claims["username"].(string)
	email, _ := claims["email"].(string)
	clientID, _ := claims["client_id"].(string)

	return Principal{
		ID: sub,
		Claims: Claims{
			UserID:   sub,
			Username: username,
			Email:    email,
			ClientID: clientID,
			TokenUse: tokenUse,
		},
	}, nil
}
