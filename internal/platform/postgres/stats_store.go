package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/store"
)

// Queryer is the read-only subset of *sqlx.DB and *sqlx.Tx the stats store needs.
type Queryer interface {
	sqlx.QueryerContext
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// PostgresStatsStore implements store.StatsStore with sqlx aggregate queries.
type PostgresStatsStore struct {
	db     Queryer
	logger *slog.Logger
}

// NewPostgresStatsStore creates a stats store reading through db.
func NewPostgresStatsStore(db Queryer, logger *slog.Logger) *PostgresStatsStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStatsStore{
		db:     db,
		logger: logger.With(slog.String("component", "stats_store")),
	}
}

var _ store.StatsStore = (*PostgresStatsStore)(nil)

type statsRow struct {
	TotalCards    int64 `db:"total_cards"`
	NewCards      int64 `db:"new_cards"`
	LearningCards int64 `db:"learning_cards"`
	DueToday      int64 `db:"due_today"`
}

type cardTypeCountRow struct {
	CardTypeCode string `db:"card_type_code"`
	Count        int64  `db:"card_count"`
}

// AccountStats implements store.StatsStore.AccountStats.
// New cards have never been passed; learning cards have fewer than three
// consecutive passes.
func (s *PostgresStatsStore) AccountStats(
	ctx context.Context,
	accountID uuid.UUID,
	now time.Time,
) (*domain.AccountStats, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var totals statsRow
	err := s.db.GetContext(ctx, &totals, `
		SELECT
			COUNT(*) AS total_cards,
			COUNT(*) FILTER (WHERE repetitions = 0) AS new_cards,
			COUNT(*) FILTER (WHERE repetitions > 0 AND repetitions < 3) AS learning_cards,
			COUNT(*) FILTER (WHERE next_review_at <= $2) AS due_today
		FROM account_cards
		WHERE account_id = $1`, accountID, now.UTC())
	if err != nil {
		log.Error("failed to aggregate account stats",
			slog.String("error", err.Error()),
			slog.String("account_id", accountID.String()))
		return nil, MapError(err)
	}

	var byType []cardTypeCountRow
	err = s.db.SelectContext(ctx, &byType, `
		SELECT card_type_code, COUNT(*) AS card_count
		FROM account_cards
		WHERE account_id = $1
		GROUP BY card_type_code`, accountID)
	if err != nil {
		log.Error("failed to aggregate stats by card type",
			slog.String("error", err.Error()),
			slog.String("account_id", accountID.String()))
		return nil, MapError(err)
	}

	stats := &domain.AccountStats{
		TotalCards:    totals.TotalCards,
		NewCards:      totals.NewCards,
		LearningCards: totals.LearningCards,
		DueToday:      totals.DueToday,
		ByCardType:    make(map[string]int64, len(byType)),
	}
	for _, row := range byType {
		stats.ByCardType[row.CardTypeCode] = row.Count
	}
	return stats, nil
}
