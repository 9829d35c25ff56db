// Package authmodel holds the wire types shared by the auth endpoints and
// their client.
package authmodel

// SignInRequest is the body of POST /auth/signin.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignUpRequest is the body of POST /auth/signup.
type SignUpRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Username   string `json:"username" validate:"required,min=3,max=32"`
	Password   string `json:"password" validate:"required,min=8"`
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// FederatedRequest is the body of POST /auth/federated. The ID token is
// third-party issued (Google); the backend verifies it and exchanges it
// for first-party tokens.
type FederatedRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// Tokens is the credential pair returned by every successful exchange.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// UserInfo is the public view of a user returned alongside tokens.
type UserInfo struct {
	UserID     string `json:"userId"`
	Email      string `json:"email"`
	Username   string `json:"username,omitempty"`
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
	Picture    string `json:"picture,omitempty"`
}

// AuthResponse is the success body of signin, signup and federated.
type AuthResponse struct {
	Message string   `json:"message,omitempty"`
	Tokens  Tokens   `json:"tokens"`
	User    UserInfo `json:"user"`
}

// RefreshResponse is the success body of refresh.
type RefreshResponse struct {
	Message string `json:"message,omitempty"`
	Tokens  Tokens `json:"tokens"`
}

// ErrorResponse is the body of every non-2xx auth endpoint response.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
