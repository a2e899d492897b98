package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	ErrNotFound         = errors.New("not found")
	ErrTransient        = errors.New("transient source error")
	ErrSchemaValidation = errors.New("schema validation failed")
)

// TransientSourceError is a network or rate-limit failure worth retrying
type TransientSourceError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientSourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientSourceError) Unwrap() error { return e.Err }

func (e *TransientSourceError) Is(target error) bool {
	return target == ErrTransient
}

// SchemaValidationError is model output that did not match its contract
type SchemaValidationError struct {
	Schema  string
	Details []string
	Raw     string
}

func (e *SchemaValidationError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: invalid model output", e.Schema)
	}
	return fmt.Sprintf("%s: invalid model output: %v", e.Schema, e.Details)
}

func (e *SchemaValidationError) Is(target error) bool {
	return target == ErrSchemaValidation
}

// NotFoundError is an item that was deleted or is inaccessible
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("item %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
