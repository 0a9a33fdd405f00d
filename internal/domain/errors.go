package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrAccountSuspended = errors.New("account suspended")
	ErrSelfAction       = errors.New("action not allowed on own account")
	ErrConflict         = errors.New("conflict")
)

// ValidationError carries field-scoped messages. It matches ErrValidation
// with errors.Is.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
