package server

import (
	"net/http"

	"github.com/eldor47/glucosnap/authmodel"
	apperrors "github.com/eldor47/glucosnap/internal/errors"
)

// SignInHandler exchanges email and password for a token pair.
func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authmodel.SignInRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}

		resp, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrInvalidCredentials) {
				s.writeError(w, http.StatusUnauthorized, "Invalid email or password", "INVALID_CREDENTIALS")
				return
			}
			s.internalError(w, err, "signin failed")
			return
		}

		s.writeJSON(w, http.StatusOK, resp)
	}
}

// SignUpHandler creates an account and returns its first token pair.
func (s *Server) SignUpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authmodel.SignUpRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}

		resp, err := s.auth.SignUp(r.Context(), req)
		switch {
		case err == nil:
			s.writeJSON(w, http.StatusCreated, resp)
		case apperrors.Is(err, apperrors.ErrUserAlreadyExists):
			s.writeError(w, http.StatusConflict, "An account with this email or username already exists", "USER_EXISTS")
		case apperrors.Is(err, apperrors.ErrWeakPassword):
			s.writeError(w, http.StatusBadRequest, "Password does not meet requirements", "WEAK_PASSWORD")
		default:
			s.internalError(w, err, "signup failed")
		}
	}
}

// RefreshHandler rotates a refresh token. Invalid, expired and replayed
// tokens all answer 401 so the client routes to sign-in.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authmodel.RefreshRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}

		resp, err := s.auth.Refresh(r.Context(), req.RefreshToken)
		switch {
		case err == nil:
			s.writeJSON(w, http.StatusOK, resp)
		case apperrors.Is(err, apperrors.ErrInvalidRefreshToken),
			apperrors.Is(err, apperrors.ErrRefreshTokenExpired),
			apperrors.Is(err, apperrors.ErrRefreshTokenUsed):
			s.writeError(w, http.StatusUnauthorized, "Invalid refresh token", "INVALID_REFRESH_TOKEN")
		default:
			s.internalError(w, err, "refresh failed")
		}
	}
}

// FederatedHandler exchanges a verified Google ID token for first-party
// tokens.
func (s *Server) FederatedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req authmodel.FederatedRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}

		resp, err := s.auth.Federated(r.Context(), req.IDToken)
		switch {
		case err == nil:
			s.writeJSON(w, http.StatusOK, resp)
		case apperrors.Is(err, apperrors.ErrInvalidCredentials):
			s.writeError(w, http.StatusUnauthorized, "Invalid identity token", "INVALID_ID_TOKEN")
		default:
			s.internalError(w, err, "federated exchange failed")
		}
	}
}

// HealthHandler reports liveness.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error, msg string) {
	s.logger.Error().Err(err).Msg(msg)
	s.writeError(w, http.StatusInternalServerError, "Internal server error", "")
}
