package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/freightlane/auth-core/internal/domain"
	"github.com/rs/zerolog/log"
)

// httpError maps a service error onto a status code and body. Unknown errors
// are logged in full and answered with a generic 500.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *domain.LockedError
	var creds *domain.CredentialsError
	switch {
	case errors.As(err, &locked):
		mins := locked.MinutesRemaining()
		writeJSON(w, http.StatusLocked, ErrorEnvelope{Error: locked.Error(), MinutesRemaining: &mins})
	case errors.As(err, &creds):
		n := creds.AttemptsRemaining
		writeJSON(w, http.StatusUnauthorized, ErrorEnvelope{Error: domain.ErrInvalidCredentials.Error(), AttemptsRemaining: &n})
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, domain.ErrInvalidCredentials.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "an account with this email already exists")
	case errors.Is(err, domain.ErrInvalidOrExpiredToken):
		writeError(w, http.StatusBadRequest, domain.ErrInvalidOrExpiredToken.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		log.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// validationMessage strips the trailing sentinel text from a validation error.
func validationMessage(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+domain.ErrValidation.Error())
}
