package booking

import (
	"errors"
	"fmt"
)

// ConfigError reports a required setting that is absent. It is surfaced as a
// server error naming Field and never replaced by a default.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing configuration: %s", e.Field)
}

// ValidationError reports a bad client request.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Invalid builds a ValidationError.
func Invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

var (
	// ErrMissingMetadata is returned when a payment session lacks the fields
	// needed to place the booking.
	ErrMissingMetadata = errors.New("booking: required metadata missing")

	// ErrMalformedMetadata is returned when metadata is present but unusable.
	ErrMalformedMetadata = errors.New("booking: malformed metadata")

	// ErrUnknownStaff is returned when a staff key has no calendar.
	ErrUnknownStaff = errors.New("booking: unknown staff key")

	// ErrEmptySessionID is returned when no session id is available to derive
	// an event id from.
	ErrEmptySessionID = errors.New("booking: empty session id")
)
