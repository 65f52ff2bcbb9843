package derby

import (
	"errors"
	"fmt"
)

// Error taxonomy. Operations wrap one of these with detail; callers test with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrTooLate           = errors.New("too late")
	ErrTooEarly          = errors.New("too early")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

func fail(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
