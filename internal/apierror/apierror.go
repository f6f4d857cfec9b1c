package apierror

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrConflict          ErrorCode = "CONFLICT"
	ErrBadRequest        ErrorCode = "BAD_REQUEST"
	ErrInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrConfiguration     ErrorCode = "CONFIGURATION_ERROR"
	ErrInternalServer    ErrorCode = "INTERNAL_SERVER_ERROR"
)

// APIError carries a machine-readable code next to the human message.
// ErrConflict marks a lost compare-and-swap race: callers retry with fresh
// state. ErrConfiguration (no active rule set, unknown task kind) is fatal to
// the triggering operation but never crashes the process.
type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code ErrorCode) bool {
	apiErr, ok := err.(APIError)
	return ok && apiErr.Code == code
}
