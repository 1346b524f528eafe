// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/annotation-backoffice/backoffice/internal/shared"
)

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, shared.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses. Messages come from
// shared.UserSafeMessage so the body never carries internal detail.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusUnauthorized:
		Unauthenticated(w)
	case http.StatusUnprocessableEntity:
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			JSON(w, status, ValidationProblem{Message: shared.UserSafeMessage(err), Errors: verr.Fields})
			return
		}
		JSON(w, status, ValidationProblem{Message: shared.UserSafeMessage(err), Errors: map[string]string{"email": shared.UserSafeMessage(err)}})
	default:
		Problem(w, status, http.StatusText(status), shared.UserSafeMessage(err))
	}
}

// Unauthenticated writes the fixed 401 body.
func Unauthenticated(w http.ResponseWriter) {
	JSON(w, http.StatusUnauthorized, map[string]string{"error": shared.UnauthenticatedMessage})
}
