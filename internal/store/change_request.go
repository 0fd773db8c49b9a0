package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/domain"
)

// ChangeRequestFilter narrows change request listings. Nil fields do not filter.
type ChangeRequestFilter struct {
	Status      *domain.ChangeRequestStatus
	SubmitterID *uuid.UUID
}

// ChangeRequestStore persists change requests and their status transitions.
type ChangeRequestStore interface {
	// Create inserts a new PENDING request with its encoded payload.
	Create(ctx context.Context, req *domain.ChangeRequest) error

	// Get retrieves a request by ID. Returns ErrChangeRequestNotFound if absent.
	Get(ctx context.Context, id uuid.UUID) (*domain.ChangeRequest, error)

	// GetForUpdate retrieves a request with an exclusive row lock.
	// It must be called inside a transaction; concurrent lockers block until commit.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ChangeRequest, error)

	// List returns one page of requests ordered by creation time descending.
	List(ctx context.Context, filter ChangeRequestFilter, page domain.PageRequest) ([]*domain.ChangeRequest, int64, error)

	// MarkApproved flips a PENDING request to APPROVED.
	// Returns ErrChangeRequestNotFound if the request is missing or not pending.
	MarkApproved(ctx context.Context, id, reviewerID uuid.UUID, at time.Time) error

	// Reject flips a PENDING request to REJECTED in one conditional update.
	// Returns ErrChangeRequestNotFound if the request is missing or not pending.
	Reject(ctx context.Context, id, reviewerID uuid.UUID, reason *string, at time.Time) error

	// WithTx returns a ChangeRequestStore that runs its queries on tx.
	WithTx(tx *sql.Tx) ChangeRequestStore
}

// StatsStore aggregates per-account card statistics.
type StatsStore interface {
	// AccountStats counts the account's cards; due means next review at or before now.
	AccountStats(ctx context.Context, accountID uuid.UUID, now time.Time) (*domain.AccountStats, error)
}
