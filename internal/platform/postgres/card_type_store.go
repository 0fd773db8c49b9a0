package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/store"
)

type cardTypeRow struct {
	Code        string    `db:"code"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r cardTypeRow) toDomain() *domain.CardType {
	return &domain.CardType{
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

// PostgresCardTypeStore implements store.CardTypeStore.
type PostgresCardTypeStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCardTypeStore creates a card type store backed by db.
func NewPostgresCardTypeStore(db store.DBTX, logger *slog.Logger) *PostgresCardTypeStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCardTypeStore{
		db:     db,
		logger: logger.With(slog.String("component", "card_type_store")),
	}
}

var _ store.CardTypeStore = (*PostgresCardTypeStore)(nil)

// Get implements store.CardTypeStore.Get.
func (s *PostgresCardTypeStore) Get(ctx context.Context, code string) (*domain.CardType, error) {
	var r cardTypeRow
	err := s.db.QueryRowContext(ctx, `
		SELECT code, name, description, created_at, updated_at
		FROM card_types
		WHERE code = $1`, code).Scan(&r.Code, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if !IsNotFoundError(err) {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to get card type",
				slog.String("error", err.Error()),
				slog.String("code", code))
		}
		return nil, wrapNotFound(err, store.ErrCardTypeNotFound)
	}
	return r.toDomain(), nil
}

// List implements store.CardTypeStore.List.
func (s *PostgresCardTypeStore) List(ctx context.Context, page domain.PageRequest) ([]*domain.CardType, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM card_types").Scan(&total); err != nil {
		return nil, 0, MapError(err)
	}

	types, err := s.query(ctx, `
		SELECT code, name, description, created_at, updated_at
		FROM card_types
		ORDER BY code
		LIMIT $1 OFFSET $2`, page.Size, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	return types, total, nil
}

// ListAll implements store.CardTypeStore.ListAll.
func (s *PostgresCardTypeStore) ListAll(ctx context.Context) ([]*domain.CardType, error) {
	return s.query(ctx, `
		SELECT code, name, description, created_at, updated_at
		FROM card_types
		ORDER BY code`)
}

func (s *PostgresCardTypeStore) query(ctx context.Context, query string, args ...any) ([]*domain.CardType, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list card types",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var scanned []cardTypeRow
	if err := sqlx.StructScan(rows, &scanned); err != nil {
		return nil, MapError(err)
	}

	types := make([]*domain.CardType, 0, len(scanned))
	for _, r := range scanned {
		types = append(types, r.toDomain())
	}
	return types, nil
}
