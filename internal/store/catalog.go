package store

import (
	"context"
	"database/sql"

	"github.com/phrazzld/recall-api/internal/domain"
)

// CatalogStore is a keyed store of catalog items.
// Mutations are expected to come from approved change requests.
type CatalogStore interface {
	// Get retrieves an item by code. Returns ErrCatalogItemNotFound if absent.
	Get(ctx context.Context, code string) (*domain.CatalogItem, error)

	// GetForUpdate is Get with a row-level lock; call it inside a transaction.
	GetForUpdate(ctx context.Context, code string) (*domain.CatalogItem, error)

	// List returns one page of items ordered by creation time descending.
	List(ctx context.Context, page domain.PageRequest) ([]*domain.CatalogItem, int64, error)

	// GetMany retrieves the items with the given codes, ordered by code.
	// Codes with no item are skipped.
	GetMany(ctx context.Context, codes []string) ([]*domain.CatalogItem, error)

	// ListCodes returns every item code in the catalog.
	ListCodes(ctx context.Context) ([]string, error)

	// Create inserts a new item. Returns ErrCatalogItemExists on a code collision.
	Create(ctx context.Context, item *domain.CatalogItem) error

	// Update overwrites the mutable fields of an item.
	// Returns ErrCatalogItemNotFound if no row matched.
	Update(ctx context.Context, item *domain.CatalogItem) error

	// Delete removes an item. Returns ErrCatalogItemNotFound if absent and
	// ErrItemInUse if cards still reference it.
	Delete(ctx context.Context, code string) error

	// WithTx returns a CatalogStore that runs its queries on tx.
	WithTx(tx *sql.Tx) CatalogStore
}

// CodeAllocator hands out new catalog codes from durable per-prefix counters.
// Allocation is atomic; two callers never receive the same code, and a code
// is never reused even if the allocating transaction rolls back.
type CodeAllocator interface {
	NextCode(ctx context.Context, prefix domain.CodePrefix) (string, error)

	// WithTx returns a CodeAllocator that runs on tx.
	WithTx(tx *sql.Tx) CodeAllocator
}

// CardTypeStore provides read access to card types.
type CardTypeStore interface {
	// Get retrieves a card type by code. Returns ErrCardTypeNotFound if absent.
	Get(ctx context.Context, code string) (*domain.CardType, error)

	// List returns one page of card types ordered by code.
	List(ctx context.Context, page domain.PageRequest) ([]*domain.CardType, int64, error)

	// ListAll returns every card type ordered by code.
	ListAll(ctx context.Context) ([]*domain.CardType, error)
}
