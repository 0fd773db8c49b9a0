package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrCardNotFound, ErrCatalogItemNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a catalog item with an existing code).
	ErrDuplicate = errors.New("entity already exists")

	// ErrConflict is returned when an operation is refused because of the
	// current state of related entities (e.g., deleting a referenced item).
	ErrConflict = errors.New("conflicting state")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrCardNotFound indicates that the requested card does not exist for the account.
	ErrCardNotFound = fmt.Errorf("%w: card", ErrNotFound)

	// ErrCatalogItemNotFound indicates that no catalog item has the requested code.
	ErrCatalogItemNotFound = fmt.Errorf("%w: catalog item", ErrNotFound)

	// ErrCardTypeNotFound indicates that no card type has the requested code.
	ErrCardTypeNotFound = fmt.Errorf("%w: card type", ErrNotFound)

	// ErrChangeRequestNotFound indicates that the change request does not exist,
	// or, for conditional updates, that it is no longer pending.
	ErrChangeRequestNotFound = fmt.Errorf("%w: change request", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrCatalogItemExists indicates that a catalog item with the code already exists.
	ErrCatalogItemExists = fmt.Errorf("%w: catalog item code", ErrDuplicate)

	// Entity-specific "conflict" errors

	// ErrItemInUse indicates that cards still reference the catalog item.
	ErrItemInUse = fmt.Errorf("%w: catalog item is in use", ErrConflict)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
// All entity-specific not found errors wrap ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsConflictError checks if the error is any kind of "conflict" error.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "card", "change_request")
	Operation string // The operation that failed (e.g., "create", "update")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
