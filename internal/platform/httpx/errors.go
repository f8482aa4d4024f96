// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.ErrorKind(err)
	switch kind {
	case shared.KindNotFound:
		problem(w, http.StatusNotFound, "Not Found", err.Error(), kind)
	case shared.KindValidation:
		problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), kind)
	case shared.KindForbidden:
		problem(w, http.StatusForbidden, "Forbidden", err.Error(), kind)
	case shared.KindUnauthorized:
		problem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), kind)
	case shared.KindInvalidTransition:
		problem(w, http.StatusConflict, "Invalid Transition", err.Error(), kind)
	case shared.KindDuplicateRequest:
		problem(w, http.StatusConflict, "Duplicate Request", err.Error(), kind)
	case shared.KindNumberGenerationFailed:
		problem(w, http.StatusInternalServerError, "Number Generation Failed", "could not assign a document number, retry later", kind)
	case shared.KindPersistence:
		problem(w, http.StatusInternalServerError, "Internal Error", "the request could not be completed", kind)
	default:
		problem(w, http.StatusInternalServerError, "Internal Error", "", shared.KindInternal)
	}
}

// StatusFor returns the HTTP status RespondError would use for err.
func StatusFor(err error) int {
	switch shared.ErrorKind(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindForbidden:
		return http.StatusForbidden
	case shared.KindUnauthorized:
		return http.StatusUnauthorized
	case shared.KindInvalidTransition, shared.KindDuplicateRequest:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
