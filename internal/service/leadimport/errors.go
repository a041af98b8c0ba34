package leadimport

import (
	"errors"
	"fmt"
)

// Sentinel errors for the lead import service layer.
var (
	ErrBadRequest    = errors.New("malformed import request")
	ErrListNotFound  = errors.New("lead list not found")
	ErrDuplicateLead = errors.New("lead with this email already exists in the list")
	ErrNoProgress    = errors.New("no import progress recorded")
)

// BadRequestError reports a request that was rejected before any write.
type BadRequestError struct {
	Field  string
	Reason string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match on ErrBadRequest.
func (e *BadRequestError) Unwrap() error { return ErrBadRequest }

func badRequest(field, reason string) error {
	return &BadRequestError{Field: field, Reason: reason}
}
