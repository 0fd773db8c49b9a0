package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/store"
)

// Service error kinds. Every error a service returns either matches exactly one
// of these with errors.Is, or matches none and is an internal failure.
// The API layer maps each kind to an HTTP status.
var (
	// ErrInvalidInput indicates the caller sent something malformed or out of range.
	// API layer should map this to HTTP 400 Bad Request.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates the resource does not exist or is not visible to the caller.
	// API layer should map this to HTTP 404 Not Found.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the request is valid but clashes with current state,
	// e.g. resolving a change request twice or deleting an item still in use.
	// API layer should map this to HTTP 409 Conflict.
	ErrConflict = errors.New("conflict")

	// ErrForbidden indicates the caller's role does not allow the operation.
	// API layer should map this to HTTP 403 Forbidden.
	ErrForbidden = errors.New("forbidden")
)

var kinds = []error{ErrInvalidInput, ErrNotFound, ErrConflict, ErrForbidden}

// ServiceError records which service operation failed. Kind, when set, is one
// of the sentinel kinds above; Err is the underlying cause.
type ServiceError struct {
	Service   string
	Operation string
	Message   string
	Kind      error
	Err       error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	prefix := fmt.Sprintf("%s service %s failed", e.Service, e.Operation)
	if e.Service == "" {
		prefix = fmt.Sprintf("%s failed", e.Operation)
	}
	if e.Message != "" {
		prefix += ": " + e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return prefix
}

// Unwrap exposes both the kind and the cause to errors.Is/errors.As.
func (e *ServiceError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewServiceError creates a ServiceError whose kind is derived from err.
func NewServiceError(service, operation, message string, err error) *ServiceError {
	return &ServiceError{
		Service:   service,
		Operation: operation,
		Message:   message,
		Kind:      Classify(err),
		Err:       err,
	}
}

// NewServiceErrorKind creates a ServiceError with an explicit kind.
func NewServiceErrorKind(service, operation, message string, kind, err error) *ServiceError {
	return &ServiceError{
		Service:   service,
		Operation: operation,
		Message:   message,
		Kind:      kind,
		Err:       err,
	}
}

// Classify maps domain and store errors onto a service error kind. It returns
// nil for errors that are internal failures.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}

	switch {
	case errors.Is(err, domain.ErrForbidden):
		return ErrForbidden
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return ErrInvalidInput
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, domain.ErrChangeRequestNotPending):
		return ErrConflict
	default:
		return nil
	}
}
