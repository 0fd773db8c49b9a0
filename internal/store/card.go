package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/domain"
)

// CardFilter narrows card listings. Empty fields do not filter.
type CardFilter struct {
	CardTypeCode string

	// Status selects cards by learning progress. The review status compares
	// next_review_at against Now.
	Status domain.CardStatus
	Now    time.Time
}

// CardStore defines the interface for per-account card persistence.
// Every read is scoped to an account: a card owned by another account is
// reported exactly like a missing one.
type CardStore interface {
	// List returns one page of the account's cards ordered by next review ascending,
	// together with the total number of matching cards.
	List(ctx context.Context, accountID uuid.UUID, filter CardFilter, page domain.PageRequest) ([]*domain.Card, int64, error)

	// Get retrieves a card owned by the account.
	// Returns ErrCardNotFound if the card does not exist or belongs to another account.
	Get(ctx context.Context, accountID, cardID uuid.UUID) (*domain.Card, error)

	// GetForUpdate retrieves a card with a row-level lock (SELECT ... FOR UPDATE).
	// It must be called inside a transaction; the lock is held until commit.
	GetForUpdate(ctx context.Context, accountID, cardID uuid.UUID) (*domain.Card, error)

	// UpdateSchedule persists the scheduling fields of the card.
	// Returns ErrCardNotFound if no row matched.
	UpdateSchedule(ctx context.Context, card *domain.Card) error

	// AppendReview inserts an immutable review history record.
	AppendReview(ctx context.Context, event *domain.ReviewEvent) error

	// ListReviews returns the review history of an account's card, newest first.
	ListReviews(ctx context.Context, accountID, cardID uuid.UUID, page domain.PageRequest) ([]*domain.ReviewEvent, int64, error)

	// CreateIfAbsent inserts the cards, skipping any whose (account, item, type)
	// triple already exists. Returns the number of cards actually inserted.
	// Safe to run concurrently for the same account.
	CreateIfAbsent(ctx context.Context, cards []*domain.Card) (int, error)

	// CountByItem counts cards of any account that reference the catalog item.
	CountByItem(ctx context.Context, itemCode string) (int64, error)

	// WithTx returns a CardStore that runs its queries on tx.
	WithTx(tx *sql.Tx) CardStore
}
