package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/eldor47/glucosnap/authmodel"
	"github.com/eldor47/glucosnap/gate"
	apperrors "github.com/eldor47/glucosnap/internal/errors"
)

type updateProfileRequest struct {
	GivenName  string `json:"givenName" validate:"max=64"`
	FamilyName string `json:"familyName" validate:"max=64"`
}

// GetProfileHandler returns the profile of the authenticated user. The
// identity comes exclusively from the principal the gate attached.
func (s *Server) GetProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, userID, ok := s.principalUserID(w, r)
		if !ok {
			return
		}

		user, err := s.users.GetByID(r.Context(), userID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrUserNotFound) {
				s.writeError(w, http.StatusNotFound, "Profile not found", "")
				return
			}
			s.internalError(w, err, "profile lookup failed")
			return
		}

		s.writeJSON(w, http.StatusOK, authmodel.UserInfo{
			UserID:     user.ID.String(),
			Email:      user.Email,
			Username:   user.Username,
			GivenName:  user.GivenName,
			FamilyName: user.FamilyName,
			Picture:    user.Picture,
		})
	}
}

// UpdateProfileHandler updates the mutable profile fields.
func (s *Server) UpdateProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, userID, ok := s.principalUserID(w, r)
		if !ok {
			return
		}

		var req updateProfileRequest
		if !s.decodeAndValidate(w, r, &req) {
			return
		}

		user, err := s.users.UpdateProfile(r.Context(), userID, req.GivenName, req.FamilyName)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrUserNotFound) {
				s.writeError(w, http.StatusNotFound, "Profile not found", "")
				return
			}
			s.internalError(w, err, "profile update failed")
			return
		}

		s.writeJSON(w, http.StatusOK, authmodel.UserInfo{
			UserID:     user.ID.String(),
			Email:      user.Email,
			Username:   user.Username,
			GivenName:  user.GivenName,
			FamilyName: user.FamilyName,
			Picture:    user.Picture,
		})
	}
}

// principalUserID reads the gate-attached principal and parses its user
// ID. Federated principals carry a Google subject rather than a local
// user ID, which cannot address a profile row; those get 403: the token
// is valid, the action is not available to it.
func (s *Server) principalUserID(w http.ResponseWriter, r *http.Request) (gate.Principal, uuid.UUID, bool) {
	principal, ok := gate.PrincipalFromContext(r.Context())
	if !ok {
		// Gate middleware missing would be a wiring bug; never allow
		s.writeError(w, http.StatusUnauthorized, "Unauthorized", "")
		return gate.Principal{}, uuid.Nil, false
	}

	userID, err := uuid.Parse(principal.Claims.UserID)
	if err != nil {
		s.writeError(w, http.StatusForbidden, "Access denied", "")
		return principal, uuid.Nil, false
	}
	return principal, userID, true
}
