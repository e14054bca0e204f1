// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/nutrition-api/nutrition-api/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Authentication and authorization failures use fixed messages so callers
// cannot learn which check failed.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrInvalidCredentials.Error())
	case errors.Is(err, shared.ErrUnauthenticated):
		w.Header().Set("WWW-Authenticate", "Bearer")
		Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrUnauthenticated.Error())
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", shared.ErrForbidden.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "entity not found")
	case errors.Is(err, shared.ErrDuplicateIdentity):
		Problem(w, http.StatusConflict, "Duplicate", shared.ErrDuplicateIdentity.Error())
	case errors.Is(err, shared.ErrNameTaken):
		Problem(w, http.StatusConflict, "Duplicate", shared.ErrNameTaken.Error())
	case errors.Is(err, shared.ErrInUse):
		Problem(w, http.StatusConflict, "In Use", shared.ErrInUse.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrSeedingPrecondition):
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// IsClientError reports whether err maps to a 4xx response.
func IsClientError(err error) bool {
	for _, target := range []error{
		shared.ErrInvalidCredentials,
		shared.ErrUnauthenticated,
		shared.ErrForbidden,
		shared.ErrNotFound,
		shared.ErrDuplicateIdentity,
		shared.ErrNameTaken,
		shared.ErrInUse,
		shared.ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
