package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidYAML indicates YAML parsing failed
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrValidationFailed indicates configuration validation failed
	ErrValidationFailed = errors.New("configuration validation failed")
)

// ValidationError wraps one invalid configuration field with context.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the formatted message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config field '%s': %s", e.Field, e.Message)
}

// Is lets errors.Is match ValidationError against ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
