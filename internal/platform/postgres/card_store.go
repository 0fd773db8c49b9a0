package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/store"
)

// cardInsertBatchSize bounds the number of rows in one multi-row INSERT.
// Ten parameters per row keeps a full batch well under PostgreSQL's limit.
const cardInsertBatchSize = 500

const cardColumns = `id, account_id, knowledge_code, card_type_code, ease_factor,
	interval_days, repetitions, next_review_at, last_reviewed_at, created_at, updated_at`

// cardRow is the account_cards row shape used by sqlx scans.
type cardRow struct {
	ID             uuid.UUID    `db:"id"`
	AccountID      uuid.UUID    `db:"account_id"`
	ItemCode       string       `db:"knowledge_code"`
	CardTypeCode   string       `db:"card_type_code"`
	EaseFactor     float64      `db:"ease_factor"`
	IntervalDays   int          `db:"interval_days"`
	Repetitions    int          `db:"repetitions"`
	NextReviewAt   time.Time    `db:"next_review_at"`
	LastReviewedAt sql.NullTime `db:"last_reviewed_at"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
}

func (r cardRow) toDomain() *domain.Card {
	card := &domain.Card{
		ID:           r.ID,
		AccountID:    r.AccountID,
		ItemCode:     r.ItemCode,
		CardTypeCode: r.CardTypeCode,
		EaseFactor:   r.EaseFactor,
		IntervalDays: r.IntervalDays,
		Repetitions:  r.Repetitions,
		NextReviewAt: r.NextReviewAt.UTC(),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.LastReviewedAt.Valid {
		t := r.LastReviewedAt.Time.UTC()
		card.LastReviewedAt = &t
	}
	return card
}

type reviewRow struct {
	ID         uuid.UUID `db:"id"`
	CardID     uuid.UUID `db:"card_id"`
	Quality    int       `db:"quality"`
	ReviewedAt time.Time `db:"reviewed_at"`
}

// PostgresCardStore implements the store.CardStore interface
// using a PostgreSQL database as the storage backend.
type PostgresCardStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCardStore creates a new PostgreSQL implementation of the CardStore interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresCardStore(db store.DBTX, logger *slog.Logger) *PostgresCardStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCardStore{
		db:     db,
		logger: logger.With(slog.String("component", "card_store")),
	}
}

// Ensure PostgresCardStore implements store.CardStore interface
var _ store.CardStore = (*PostgresCardStore)(nil)

// WithTx implements store.CardStore.WithTx.
func (s *PostgresCardStore) WithTx(tx *sql.Tx) store.CardStore {
	return &PostgresCardStore{
		db:     tx,
		logger: s.logger,
	}
}

// List implements store.CardStore.List.
func (s *PostgresCardStore) List(
	ctx context.Context,
	accountID uuid.UUID,
	filter store.CardFilter,
	page domain.PageRequest,
) ([]*domain.Card, int64, error) {
	where, args := cardFilterClause(accountID, filter)
	return s.listWhere(ctx, where, args, page)
}

// cardFilterClause builds the WHERE clause and positional arguments of a card listing.
func cardFilterClause(accountID uuid.UUID, filter store.CardFilter) (string, []any) {
	conds := []string{"account_id = $1"}
	args := []any{accountID}

	if filter.CardTypeCode != "" {
		args = append(args, filter.CardTypeCode)
		conds = append(conds, fmt.Sprintf("card_type_code = $%d", len(args)))
	}

	switch filter.Status {
	case domain.CardStatusNew:
		conds = append(conds, "repetitions = 0")
	case domain.CardStatusLearning:
		conds = append(conds, fmt.Sprintf("repetitions > 0 AND repetitions < %d", domain.LearningRepetitions))
	case domain.CardStatusReview:
		args = append(args, filter.Now.UTC())
		conds = append(conds, fmt.Sprintf("next_review_at <= $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

func (s *PostgresCardStore) listWhere(
	ctx context.Context,
	where string,
	args []any,
	page domain.PageRequest,
) ([]*domain.Card, int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var total int64
	countQuery := "SELECT COUNT(*) FROM account_cards WHERE " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		log.Error("failed to count cards", slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}

	n := len(args)
	query := fmt.Sprintf(`
		SELECT %s
		FROM account_cards
		WHERE %s
		ORDER BY next_review_at ASC, id ASC
		LIMIT $%d OFFSET $%d`, cardColumns, where, n+1, n+2)

	rows, err := s.db.QueryContext(ctx, query, append(args, page.Size, page.Offset())...)
	if err != nil {
		log.Error("failed to list cards", slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var scanned []cardRow
	if err := sqlx.StructScan(rows, &scanned); err != nil {
		log.Error("failed to scan cards", slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}

	cards := make([]*domain.Card, 0, len(scanned))
	for _, r := range scanned {
		cards = append(cards, r.toDomain())
	}

	log.Debug("listed cards",
		slog.Int("count", len(cards)),
		slog.Int64("total", total))
	return cards, total, nil
}

// Get implements store.CardStore.Get.
func (s *PostgresCardStore) Get(ctx context.Context, accountID, cardID uuid.UUID) (*domain.Card, error) {
	return s.get(ctx, accountID, cardID, "")
}

// GetForUpdate implements store.CardStore.GetForUpdate.
func (s *PostgresCardStore) GetForUpdate(ctx context.Context, accountID, cardID uuid.UUID) (*domain.Card, error) {
	return s.get(ctx, accountID, cardID, " FOR UPDATE")
}

func (s *PostgresCardStore) get(ctx context.Context, accountID, cardID uuid.UUID, lock string) (*domain.Card, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + cardColumns + `
		FROM account_cards
		WHERE id = $1 AND account_id = $2` + lock

	var r cardRow
	err := s.db.QueryRowContext(ctx, query, cardID, accountID).Scan(
		&r.ID,
		&r.AccountID,
		&r.ItemCode,
		&r.CardTypeCode,
		&r.EaseFactor,
		&r.IntervalDays,
		&r.Repetitions,
		&r.NextReviewAt,
		&r.LastReviewedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if IsNotFoundError(err) {
			log.Debug("card not found",
				slog.String("card_id", cardID.String()),
				slog.String("account_id", accountID.String()))
		} else {
			log.Error("failed to get card",
				slog.String("error", err.Error()),
				slog.String("card_id", cardID.String()))
		}
		return nil, wrapNotFound(err, store.ErrCardNotFound)
	}

	return r.toDomain(), nil
}

// UpdateSchedule implements store.CardStore.UpdateSchedule.
func (s *PostgresCardStore) UpdateSchedule(ctx context.Context, card *domain.Card) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := card.Validate(); err != nil {
		log.Warn("card validation failed during schedule update",
			slog.String("error", err.Error()),
			slog.String("card_id", card.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE account_cards
		SET ease_factor = $1, interval_days = $2, repetitions = $3,
			next_review_at = $4, last_reviewed_at = $5, updated_at = $6
		WHERE id = $7 AND account_id = $8
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		card.EaseFactor,
		card.IntervalDays,
		card.Repetitions,
		card.NextReviewAt.UTC(),
		card.LastReviewedAt,
		card.UpdatedAt.UTC(),
		card.ID,
		card.AccountID,
	)
	if err != nil {
		log.Error("failed to update card schedule",
			slog.String("error", err.Error()),
			slog.String("card_id", card.ID.String()))
		return MapError(err)
	}

	if err := CheckRowsAffected(result, store.ErrCardNotFound); err != nil {
		return err
	}

	log.Debug("card schedule updated",
		slog.String("card_id", card.ID.String()),
		slog.Int("interval_days", card.IntervalDays),
		slog.Int("repetitions", card.Repetitions))
	return nil
}

// AppendReview implements store.CardStore.AppendReview.
func (s *PostgresCardStore) AppendReview(ctx context.Context, event *domain.ReviewEvent) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO review_history (id, card_id, quality, reviewed_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.db.ExecContext(ctx, query, event.ID, event.CardID, event.Quality, event.ReviewedAt.UTC()); err != nil {
		log.Error("failed to append review",
			slog.String("error", err.Error()),
			slog.String("card_id", event.CardID.String()))
		return MapError(err)
	}
	return nil
}

// ListReviews implements store.CardStore.ListReviews.
func (s *PostgresCardStore) ListReviews(
	ctx context.Context,
	accountID, cardID uuid.UUID,
	page domain.PageRequest,
) ([]*domain.ReviewEvent, int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var total int64
	countQuery := `
		SELECT COUNT(*)
		FROM review_history rh
		JOIN account_cards ac ON ac.id = rh.card_id
		WHERE rh.card_id = $1 AND ac.account_id = $2
	`
	if err := s.db.QueryRowContext(ctx, countQuery, cardID, accountID).Scan(&total); err != nil {
		log.Error("failed to count reviews", slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}

	query := `
		SELECT rh.id, rh.card_id, rh.quality, rh.reviewed_at
		FROM review_history rh
		JOIN account_cards ac ON ac.id = rh.card_id
		WHERE rh.card_id = $1 AND ac.account_id = $2
		ORDER BY rh.reviewed_at DESC, rh.id DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := s.db.QueryContext(ctx, query, cardID, accountID, page.Size, page.Offset())
	if err != nil {
		log.Error("failed to list reviews", slog.String("error", err.Error()))
		return nil, 0, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var scanned []reviewRow
	if err := sqlx.StructScan(rows, &scanned); err != nil {
		return nil, 0, MapError(err)
	}

	events := make([]*domain.ReviewEvent, 0, len(scanned))
	for _, r := range scanned {
		events = append(events, &domain.ReviewEvent{
			ID:         r.ID,
			CardID:     r.CardID,
			Quality:    r.Quality,
			ReviewedAt: r.ReviewedAt.UTC(),
		})
	}
	return events, total, nil
}

// CreateIfAbsent implements store.CardStore.CreateIfAbsent.
// Rows are written in batches with ON CONFLICT DO NOTHING, so a concurrent
// initialization for the same account never produces duplicates.
func (s *PostgresCardStore) CreateIfAbsent(ctx context.Context, cards []*domain.Card) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	created := 0
	for start := 0; start < len(cards); start += cardInsertBatchSize {
		end := min(start+cardInsertBatchSize, len(cards))
		n, err := s.insertBatch(ctx, cards[start:end])
		if err != nil {
			log.Error("failed to insert card batch",
				slog.String("error", err.Error()),
				slog.Int("batch_start", start),
				slog.Int("batch_size", end-start))
			return created, err
		}
		created += n
	}

	log.Debug("cards created",
		slog.Int("requested", len(cards)),
		slog.Int("created", created))
	return created, nil
}

func (s *PostgresCardStore) insertBatch(ctx context.Context, cards []*domain.Card) (int, error) {
	const cols = 10

	var b strings.Builder
	b.WriteString(`INSERT INTO account_cards (id, account_id, knowledge_code, card_type_code,
		ease_factor, interval_days, repetitions, next_review_at, created_at, updated_at) VALUES `)

	args := make([]any, 0, len(cards)*cols)
	for i, c := range cards {
		if err := c.Validate(); err != nil {
			return 0, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := 0; j < cols; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*cols+j+1)
		}
		b.WriteString(")")
		args = append(args,
			c.ID,
			c.AccountID,
			c.ItemCode,
			c.CardTypeCode,
			c.EaseFactor,
			c.IntervalDays,
			c.Repetitions,
			c.NextReviewAt.UTC(),
			c.CreatedAt.UTC(),
			c.UpdatedAt.UTC(),
		)
	}
	b.WriteString(" ON CONFLICT (account_id, knowledge_code, card_type_code) DO NOTHING")

	result, err := s.db.ExecContext(ctx, b.String(), args...)
	if err != nil {
		return 0, MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// CountByItem implements store.CardStore.CountByItem.
func (s *PostgresCardStore) CountByItem(ctx context.Context, itemCode string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM account_cards WHERE knowledge_code = $1", itemCode).Scan(&count)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to count cards by item",
			slog.String("error", err.Error()),
			slog.String("item_code", itemCode))
		return 0, MapError(err)
	}
	return count, nil
}
