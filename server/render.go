package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/eldor47/glucosnap/authmodel"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("encoding response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, code string) {
	s.writeJSON(w, status, authmodel.ErrorResponse{Message: message, Code: code})
}

// decodeAndValidate decodes a JSON body into dst and runs struct
// validation. A false return means the response has already been written.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", "BAD_JSON")
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		var vErrs validator.ValidationErrors
		if ok := asValidationErrors(err, &vErrs); ok && len(vErrs) > 0 {
			field := vErrs[0]
			s.writeError(w, http.StatusBadRequest, "Invalid field: "+field.Field(), "VALIDATION")
			return false
		}
		s.writeError(w, http.StatusBadRequest, "Invalid request", "VALIDATION")
		return false
	}
	return true
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	vErrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = vErrs
	}
	return ok
}
