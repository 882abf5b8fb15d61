package ledger

// ErrorCode is the machine-readable classification callers key off. The HTTP
// layer maps codes to statuses; messages are for humans only.
type ErrorCode string

const (
	CodeInvalidLineShape        ErrorCode = "INVALID_LINE_SHAPE"
	CodeInsufficientLines       ErrorCode = "INSUFFICIENT_LINES"
	CodeUnbalanced              ErrorCode = "UNBALANCED"
	CodeUnknownAccount          ErrorCode = "UNKNOWN_ACCOUNT"
	CodeMissingRequiredAccounts ErrorCode = "MISSING_REQUIRED_ACCOUNTS"
	CodeInvalidStateTransition  ErrorCode = "INVALID_STATE_TRANSITION"
	CodeItemsPending            ErrorCode = "RECONCILIATION_ITEMS_PENDING"
	CodeNotFound                ErrorCode = "NOT_FOUND"
	CodeDuplicateReference      ErrorCode = "DUPLICATE_REFERENCE"
	CodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
)

// Error is a domain error carrying a code and optional structured metadata
// (totals for UNBALANCED, pending counts for RECONCILIATION_ITEMS_PENDING).
type Error struct {
	Code    ErrorCode
	Message string
	Meta    map[string]any
}

func (e *Error) Error() string { return e.Message }

// ErrorCode satisfies httpx.Coded.
func (e *Error) ErrorCode() string { return string(e.Code) }

// ErrorMeta satisfies httpx.Coded.
func (e *Error) ErrorMeta() map[string]any { return e.Meta }

// Is matches any *Error with the same code, so errors.Is works against the
// canonical sentinels below regardless of message or metadata.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Canonical sentinels for errors.Is comparisons in callers and tests.
var (
	ErrInvalidLineShape        = &Error{Code: CodeInvalidLineShape, Message: "invalid line shape"}
	ErrInsufficientLines       = &Error{Code: CodeInsufficientLines, Message: "insufficient lines"}
	ErrUnbalanced              = &Error{Code: CodeUnbalanced, Message: "transaction does not balance"}
	ErrUnknownAccount          = &Error{Code: CodeUnknownAccount, Message: "unknown account"}
	ErrMissingRequiredAccounts = &Error{Code: CodeMissingRequiredAccounts, Message: "missing required accounts"}
	ErrInvalidStateTransition  = &Error{Code: CodeInvalidStateTransition, Message: "invalid state transition"}
	ErrItemsPending            = &Error{Code: CodeItemsPending, Message: "reconciliation items pending"}
	ErrNotFound                = &Error{Code: CodeNotFound, Message: "not found"}
	ErrDuplicateReference      = &Error{Code: CodeDuplicateReference, Message: "source reference already posted"}
	ErrValidationFailed        = &Error{Code: CodeValidationFailed, Message: "validation failed"}
)

// NotFoundError builds a NOT_FOUND error naming the entity.
func NotFoundError(entity string, id int64) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: entity + " not found",
		Meta:    map[string]any{"entity": entity, "id": id},
	}
}

// StateError builds an INVALID_STATE_TRANSITION error with the offending state.
func StateError(message, current string) *Error {
	return &Error{
		Code:    CodeInvalidStateTransition,
		Message: message,
		Meta:    map[string]any{"status": current},
	}
}
