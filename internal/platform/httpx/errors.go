package httpx

import (
	"errors"
	"net/http"
)

// Coded is implemented by domain errors that carry a machine-readable code.
type Coded interface {
	error
	ErrorCode() string
	ErrorMeta() map[string]any
}

// statusByCode maps domain error codes to HTTP statuses. Validation and
// precondition failures are caller mistakes (400); duplicates conflict (409).
var statusByCode = map[string]int{
	"INVALID_LINE_SHAPE":           http.StatusBadRequest,
	"INSUFFICIENT_LINES":           http.StatusBadRequest,
	"UNBALANCED":                   http.StatusBadRequest,
	"UNKNOWN_ACCOUNT":              http.StatusBadRequest,
	"MISSING_REQUIRED_ACCOUNTS":    http.StatusBadRequest,
	"INVALID_STATE_TRANSITION":     http.StatusBadRequest,
	"RECONCILIATION_ITEMS_PENDING": http.StatusBadRequest,
	"VALIDATION_FAILED":            http.StatusBadRequest,
	"NOT_FOUND":                    http.StatusNotFound,
	"DUPLICATE_REFERENCE":          http.StatusConflict,
}

// RespondError renders a domain error as {code, error, meta} JSON. Errors that
// do not carry a code are treated as unexpected and rendered as a generic 500
// without leaking internals.
func RespondError(w http.ResponseWriter, err error) {
	var coded Coded
	if errors.As(err, &coded) {
		status, ok := statusByCode[coded.ErrorCode()]
		if !ok {
			status = http.StatusInternalServerError
		}
		Error(w, status, coded.ErrorCode(), coded.Error(), coded.ErrorMeta())
		return
	}
	Error(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
