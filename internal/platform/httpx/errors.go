// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/jntims/jntims/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrDuplicate = errors.New("duplicate request")
	ErrBadJSON   = errors.New("malformed request body")
)

// FieldReporter is implemented by errors that carry per-field details.
type FieldReporter interface {
	ProblemFields() map[string]string
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var fields map[string]string
	var verr *shared.ValidationError
	var fr FieldReporter
	if errors.As(err, &verr) {
		fields = verr.Fields
	} else if errors.As(err, &fr) {
		fields = fr.ProblemFields()
	}
	switch {
	case errors.Is(err, ErrBadJSON):
		ProblemWithFields(w, http.StatusBadRequest, "Malformed Request", err.Error(), nil)
	case errors.Is(err, shared.ErrValidation):
		ProblemWithFields(w, http.StatusBadRequest, "Validation Failed", err.Error(), fields)
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrOverpayment):
		Problem(w, http.StatusConflict, "Overpayment", err.Error())
	case errors.Is(err, ErrDuplicate), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrBusy):
		Problem(w, http.StatusConflict, "Busy", err.Error())
	case errors.Is(err, shared.ErrStoreUnavailable):
		ProblemWithFields(w, http.StatusServiceUnavailable, "Store Unavailable", shared.UserSafeMessage(err), fields)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
