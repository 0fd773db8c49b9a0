package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/store"
)

const catalogColumns = `code, name, description, metadata, created_by, updated_by, created_at, updated_at`

type catalogRow struct {
	Code        string         `db:"code"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Metadata    []byte         `db:"metadata"`
	CreatedBy   sql.NullString `db:"created_by"`
	UpdatedBy   sql.NullString `db:"updated_by"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r catalogRow) toDomain() *domain.CatalogItem {
	item := &domain.CatalogItem{
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if len(r.Metadata) > 0 {
		item.Metadata = json.RawMessage(r.Metadata)
	}
	if r.CreatedBy.Valid {
		item.CreatedBy = &r.CreatedBy.String
	}
	if r.UpdatedBy.Valid {
		item.UpdatedBy = &r.UpdatedBy.String
	}
	return item
}

// nullableJSON passes JSON to the driver as text, or NULL when absent.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// PostgresCatalogStore implements store.CatalogStore over the knowledge table.
type PostgresCatalogStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCatalogStore creates a new PostgreSQL implementation of the CatalogStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresCatalogStore(db store.DBTX, logger *slog.Logger) *PostgresCatalogStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCatalogStore{
		db:     db,
		logger: logger.With(slog.String("component", "catalog_store")),
	}
}

var _ store.CatalogStore = (*PostgresCatalogStore)(nil)

// WithTx implements store.CatalogStore.WithTx.
func (s *PostgresCatalogStore) WithTx(tx *sql.Tx) store.CatalogStore {
	return &PostgresCatalogStore{db: tx, logger: s.logger}
}

// Get implements store.CatalogStore.Get.
func (s *PostgresCatalogStore) Get(ctx context.Context, code string) (*domain.CatalogItem, error) {
	return s.get(ctx, code, "")
}

// GetForUpdate implements store.CatalogStore.GetForUpdate.
func (s *PostgresCatalogStore) GetForUpdate(ctx context.Context, code string) (*domain.CatalogItem, error) {
	return s.get(ctx, code, " FOR UPDATE")
}

func (s *PostgresCatalogStore) get(ctx context.Context, code, lock string) (*domain.CatalogItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + catalogColumns + ` FROM knowledge WHERE code = $1` + lock

	var r catalogRow
	err := s.db.QueryRowContext(ctx, query, code).Scan(
		&r.Code,
		&r.Name,
		&r.Description,
		&r.Metadata,
		&r.CreatedBy,
		&r.UpdatedBy,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if !IsNotFoundError(err) {
			log.Error("failed to get catalog item",
				slog.String("error", err.Error()),
				slog.String("code", code))
		}
		return nil, wrapNotFound(err, store.ErrCatalogItemNotFound)
	}
	return r.toDomain(), nil
}

// List implements store.CatalogStore.List.
func (s *PostgresCatalogStore) List(ctx context.Context, page domain.PageRequest) ([]*domain.CatalogItem, int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge").Scan(&total); err != nil {
		log.Error("failed to count catalog items", slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}

	query := `SELECT ` + catalogColumns + `
		FROM knowledge
		ORDER BY created_at DESC, code DESC
		LIMIT $1 OFFSET $2`
	rows, err := s.db.QueryContext(ctx, query, page.Size, page.Offset())
	if err != nil {
		log.Error("failed to list catalog items", slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var scanned []catalogRow
	if err := sqlx.StructScan(rows, &scanned); err != nil {
		return nil, 0, MapError(err)
	}

	items := make([]*domain.CatalogItem, 0, len(scanned))
	for _, r := range scanned {
		items = append(items, r.toDomain())
	}
	return items, total, nil
}

// GetMany implements store.CatalogStore.GetMany.
func (s *PostgresCatalogStore) GetMany(ctx context.Context, codes []string) ([]*domain.CatalogItem, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := sqlx.In(`SELECT `+catalogColumns+` FROM knowledge WHERE code IN (?) ORDER BY code`, codes)
	if err != nil {
		return nil, fmt.Errorf("failed to expand catalog codes: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		log.Error("failed to get catalog items",
			slog.String("error", err.Error()),
			slog.Int("codes", len(codes)))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var scanned []catalogRow
	if err := sqlx.StructScan(rows, &scanned); err != nil {
		return nil, MapError(err)
	}

	items := make([]*domain.CatalogItem, 0, len(scanned))
	for _, r := range scanned {
		items = append(items, r.toDomain())
	}
	return items, nil
}

// ListCodes implements store.CatalogStore.ListCodes.
func (s *PostgresCatalogStore) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT code FROM knowledge ORDER BY code")
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list catalog codes",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, MapError(err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return codes, nil
}

// Create implements store.CatalogStore.Create.
func (s *PostgresCatalogStore) Create(ctx context.Context, item *domain.CatalogItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := item.Validate(); err != nil {
		log.Warn("catalog item validation failed during create",
			slog.String("error", err.Error()),
			slog.String("code", item.Code))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO knowledge (code, name, description, metadata, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		item.Code,
		item.Name,
		item.Description,
		nullableJSON(item.Metadata),
		item.CreatedBy,
		item.UpdatedBy,
		item.CreatedAt.UTC(),
		item.UpdatedAt.UTC(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("catalog item code collision", slog.String("code", item.Code))
			return fmt.Errorf("%w: %s", store.ErrCatalogItemExists, item.Code)
		}
		log.Error("failed to create catalog item",
			slog.String("error", err.Error()),
			slog.String("code", item.Code))
		return MapError(err)
	}

	log.Info("catalog item created", slog.String("code", item.Code))
	return nil
}

// Update implements store.CatalogStore.Update.
func (s *PostgresCatalogStore) Update(ctx context.Context, item *domain.CatalogItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE knowledge
		SET name = $1, description = $2, metadata = $3, updated_by = $4, updated_at = $5
		WHERE code = $6
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		item.Name,
		item.Description,
		nullableJSON(item.Metadata),
		item.UpdatedBy,
		item.UpdatedAt.UTC(),
		item.Code,
	)
	if err != nil {
		log.Error("failed to update catalog item",
			slog.String("error", err.Error()),
			slog.String("code", item.Code))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrCatalogItemNotFound); err != nil {
		return err
	}

	log.Info("catalog item updated", slog.String("code", item.Code))
	return nil
}

// Delete implements store.CatalogStore.Delete.
// The account_cards foreign key is RESTRICT, so a delete that races a card
// initialization still surfaces as ErrItemInUse.
func (s *PostgresCatalogStore) Delete(ctx context.Context, code string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, "DELETE FROM knowledge WHERE code = $1", code)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", store.ErrItemInUse, code)
		}
		log.Error("failed to delete catalog item",
			slog.String("error", err.Error()),
			slog.String("code", code))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrCatalogItemNotFound); err != nil {
		return err
	}

	log.Info("catalog item deleted", slog.String("code", code))
	return nil
}

// PostgresCodeAllocator implements store.CodeAllocator with one PostgreSQL
// sequence per code prefix.
type PostgresCodeAllocator struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCodeAllocator creates a code allocator backed by db.
func NewPostgresCodeAllocator(db store.DBTX, logger *slog.Logger) *PostgresCodeAllocator {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCodeAllocator{
		db:     db,
		logger: logger.With(slog.String("component", "code_allocator")),
	}
}

var _ store.CodeAllocator = (*PostgresCodeAllocator)(nil)

// ErrUnknownPrefix is returned for a prefix with no backing sequence.
var ErrUnknownPrefix = errors.New("no code sequence for prefix")

// sequenceFor maps a prefix to its sequence name. Only known names ever reach SQL.
func sequenceFor(prefix domain.CodePrefix) (string, error) {
	switch prefix {
	case domain.CodePrefixStandard:
		return "code_seq_st", nil
	case domain.CodePrefixCustom:
		return "code_seq_cs", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPrefix, prefix)
	}
}

// WithTx implements store.CodeAllocator.WithTx.
func (a *PostgresCodeAllocator) WithTx(tx *sql.Tx) store.CodeAllocator {
	return &PostgresCodeAllocator{db: tx, logger: a.logger}
}

// NextCode implements store.CodeAllocator.NextCode.
// nextval is not transactional: a rolled-back allocation leaves a gap and the
// code is never handed out again.
func (a *PostgresCodeAllocator) NextCode(ctx context.Context, prefix domain.CodePrefix) (string, error) {
	log := logger.FromContextOrDefault(ctx, a.logger)

	seqName, err := sequenceFor(prefix)
	if err != nil {
		return "", err
	}

	var next int64
	if err := a.db.QueryRowContext(ctx, "SELECT nextval($1::regclass)", seqName).Scan(&next); err != nil {
		log.Error("failed to allocate item code",
			slog.String("error", err.Error()),
			slog.String("sequence", seqName))
		return "", MapError(err)
	}

	code, err := domain.FormatItemCode(prefix, next)
	if err != nil {
		log.Error("item code sequence exhausted", slog.String("sequence", seqName))
		return "", err
	}

	log.Debug("allocated item code", slog.String("code", code))
	return code, nil
}
