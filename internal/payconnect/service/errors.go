package service

import (
	"errors"
	"fmt"

	"payconnect/internal/common/upstream"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrUpstream   = upstream.ErrUpstream
)

type UpstreamError = upstream.Error

// ValidationError is returned before any external call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field string, reason string) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: reason,
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
