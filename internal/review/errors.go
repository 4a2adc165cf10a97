package review

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any backend call.
	ErrValidation = errors.New("validation failed")
	// ErrNotConfirmed is returned when a destructive action was not confirmed.
	ErrNotConfirmed = fmt.Errorf("%w: confirmation required", ErrValidation)
	// ErrInvalidPassword is returned when the sign-off password does not validate.
	ErrInvalidPassword = errors.New("invalid password")
	ErrNotFound        = errors.New("not found")
	// ErrPageChangeInFlight rejects a user page change while another one is loading.
	ErrPageChangeInFlight = errors.New("user page change already in progress")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func requireField(name, value string) error {
	if trimmed(value) == "" {
		return validationError("%s is required", name)
	}
	return nil
}
