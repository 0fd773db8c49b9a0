package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/domain/srs"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/store"
)

const cardServiceName = "card"

// CardTypeSource lists every card type. CatalogService implements it with a cache.
type CardTypeSource interface {
	AllCardTypes(ctx context.Context) ([]*domain.CardType, error)
}

// CardMetrics receives counts from the card service. *metrics.Recorder implements it.
type CardMetrics interface {
	RecordReview(quality int)
	RecordInitialization(created, skipped int)
}

type noopCardMetrics struct{}

func (noopCardMetrics) RecordReview(int)              {}
func (noopCardMetrics) RecordInitialization(int, int) {}

// CardService provides an account's view of its cards.
type CardService interface {
	// ListCards returns the account's cards in next-review order, optionally
	// restricted to one card type and status.
	ListCards(
		ctx context.Context,
		accountID uuid.UUID,
		filter store.CardFilter,
		page domain.PageRequest,
	) (domain.Page[*domain.Card], error)

	// ListDueCards returns the account's cards whose next review is not in the
	// future. An empty cardTypeCode matches every card type.
	ListDueCards(
		ctx context.Context,
		accountID uuid.UUID,
		cardTypeCode string,
		page domain.PageRequest,
	) (domain.Page[*domain.Card], error)

	// GetCard returns one card. Cards owned by another account are reported as not found.
	GetCard(ctx context.Context, accountID, cardID uuid.UUID) (*domain.Card, error)

	// ReviewCard grades a card, reschedules it and appends to its review history
	// in a single transaction.
	ReviewCard(ctx context.Context, accountID, cardID uuid.UUID, quality int) (*domain.Card, error)

	// InitializeCards creates any missing card for every catalog item and each
	// requested card type, or every card type when cardTypeCodes is empty.
	// Calling it again creates nothing new.
	InitializeCards(ctx context.Context, accountID uuid.UUID, cardTypeCodes []string) (*domain.InitializeResult, error)

	// ReviewHistory returns a card's reviews, newest first.
	ReviewHistory(
		ctx context.Context,
		accountID, cardID uuid.UUID,
		page domain.PageRequest,
	) (domain.Page[*domain.ReviewEvent], error)

	// AccountStats summarizes the account's cards.
	AccountStats(ctx context.Context, accountID uuid.UUID) (*domain.AccountStats, error)
}

// cardServiceImpl implements the CardService interface
type cardServiceImpl struct {
	db        store.TxBeginner
	cards     store.CardStore
	catalog   store.CatalogStore
	cardTypes CardTypeSource
	stats     store.StatsStore
	scheduler srs.Service
	metrics   CardMetrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewCardService creates a new CardService.
// It returns an error if any of the required dependencies are nil. A nil
// metrics sink discards counts.
func NewCardService(
	db store.TxBeginner,
	cards store.CardStore,
	catalog store.CatalogStore,
	cardTypes CardTypeSource,
	stats store.StatsStore,
	scheduler srs.Service,
	metrics CardMetrics,
	logger *slog.Logger,
) (CardService, error) {
	if db == nil {
		return nil, domain.NewValidationError("db", "cannot be nil", domain.ErrValidation)
	}
	if cards == nil {
		return nil, domain.NewValidationError("cards", "cannot be nil", domain.ErrValidation)
	}
	if catalog == nil {
		return nil, domain.NewValidationError("catalog", "cannot be nil", domain.ErrValidation)
	}
	if cardTypes == nil {
		return nil, domain.NewValidationError("cardTypes", "cannot be nil", domain.ErrValidation)
	}
	if stats == nil {
		return nil, domain.NewValidationError("stats", "cannot be nil", domain.ErrValidation)
	}
	if scheduler == nil {
		return nil, domain.NewValidationError("scheduler", "cannot be nil", domain.ErrValidation)
	}
	if metrics == nil {
		metrics = noopCardMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &cardServiceImpl{
		db:        db,
		cards:     cards,
		catalog:   catalog,
		cardTypes: cardTypes,
		stats:     stats,
		scheduler: scheduler,
		metrics:   metrics,
		logger:    logger.With(slog.String("component", "card_service")),
		now:       time.Now,
	}, nil
}

// ListCards implements CardService.ListCards
func (s *cardServiceImpl) ListCards(
	ctx context.Context,
	accountID uuid.UUID,
	filter store.CardFilter,
	page domain.PageRequest,
) (domain.Page[*domain.Card], error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	filter.Now = s.now().UTC()
	cards, total, err := s.cards.List(ctx, accountID, filter, page)
	if err != nil {
		log.Error("failed to list cards",
			slog.String("error", err.Error()),
			slog.String("account_id", accountID.String()))
		return domain.Page[*domain.Card]{}, NewServiceError(cardServiceName, "list_cards", "failed to list cards", err)
	}
	if err := s.describe(ctx, cards...); err != nil {
		log.Error("failed to load card details", slog.String("error", err.Error()))
		return domain.Page[*domain.Card]{}, NewServiceError(cardServiceName, "list_cards", "failed to load card details", err)
	}
	return domain.NewPage(cards, page, total), nil
}

// ListDueCards implements CardService.ListDueCards
func (s *cardServiceImpl) ListDueCards(
	ctx context.Context,
	accountID uuid.UUID,
	cardTypeCode string,
	page domain.PageRequest,
) (domain.Page[*domain.Card], error) {
	filter := store.CardFilter{CardTypeCode: cardTypeCode, Status: domain.CardStatusReview}
	return s.ListCards(ctx, accountID, filter, page)
}

// describe attaches catalog item and card type details to the cards.
// A card whose item or type has since been removed keeps nil details.
func (s *cardServiceImpl) describe(ctx context.Context, cards ...*domain.Card) error {
	if len(cards) == 0 {
		return nil
	}

	types, err := s.cardTypes.AllCardTypes(ctx)
	if err != nil {
		return err
	}
	typeByCode := make(map[string]*domain.CardType, len(types))
	for _, ct := range types {
		typeByCode[ct.Code] = ct
	}

	codes := make([]string, 0, len(cards))
	seen := make(map[string]bool, len(cards))
	for _, c := range cards {
		if !seen[c.ItemCode] {
			seen[c.ItemCode] = true
			codes = append(codes, c.ItemCode)
		}
	}
	items, err := s.catalog.GetMany(ctx, codes)
	if err != nil {
		return err
	}
	itemByCode := make(map[string]*domain.CatalogItem, len(items))
	for _, item := range items {
		itemByCode[item.Code] = item
	}

	for _, c := range cards {
		c.Item = itemByCode[c.ItemCode]
		c.CardType = typeByCode[c.CardTypeCode]
	}
	return nil
}

// GetCard implements CardService.GetCard
func (s *cardServiceImpl) GetCard(ctx context.Context, accountID, cardID uuid.UUID) (*domain.Card, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	card, err := s.cards.Get(ctx, accountID, cardID)
	if err != nil {
		if store.IsNotFoundError(err) {
			log.Debug("card not found", slog.String("card_id", cardID.String()))
			return nil, NewServiceError(cardServiceName, "get_card", "card not found", err)
		}
		log.Error("failed to retrieve card",
			slog.String("error", err.Error()),
			slog.String("card_id", cardID.String()))
		return nil, NewServiceError(cardServiceName, "get_card", "failed to retrieve card", err)
	}
	if err := s.describe(ctx, card); err != nil {
		log.Error("failed to load card details", slog.String("error", err.Error()))
		return nil, NewServiceError(cardServiceName, "get_card", "failed to load card details", err)
	}
	return card, nil
}

// ReviewCard implements CardService.ReviewCard
// The card row stays locked from the read until commit, so concurrent reviews
// of one card apply one after the other.
func (s *cardServiceImpl) ReviewCard(
	ctx context.Context,
	accountID, cardID uuid.UUID,
	quality int,
) (*domain.Card, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("account_id", accountID.String()),
		slog.String("card_id", cardID.String()))

	if err := domain.ValidateQuality(quality); err != nil {
		log.Debug("rejected review with invalid quality", slog.Int("quality", quality))
		return nil, NewServiceError(cardServiceName, "review_card", "quality must be between 0 and 5", err)
	}

	var reviewed *domain.Card
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txCards := s.cards.WithTx(tx)

		card, err := txCards.GetForUpdate(ctx, accountID, cardID)
		if err != nil {
			if !store.IsNotFoundError(err) {
				log.Error("failed to lock card for review", slog.String("error", err.Error()))
			}
			return NewServiceError(cardServiceName, "review_card", "failed to load card", err)
		}

		now := s.now().UTC()
		updated, err := s.scheduler.Schedule(card, quality, now)
		if err != nil {
			log.Error("failed to compute next review", slog.String("error", err.Error()))
			return NewServiceError(cardServiceName, "review_card", "failed to compute schedule", err)
		}

		if err := txCards.UpdateSchedule(ctx, updated); err != nil {
			log.Error("failed to persist schedule", slog.String("error", err.Error()))
			return NewServiceError(cardServiceName, "review_card", "failed to save card", err)
		}

		event, err := domain.NewReviewEvent(card.ID, quality, now)
		if err != nil {
			return NewServiceError(cardServiceName, "review_card", "failed to build review event", err)
		}
		if err := txCards.AppendReview(ctx, event); err != nil {
			log.Error("failed to append review history", slog.String("error", err.Error()))
			return NewServiceError(cardServiceName, "review_card", "failed to record review", err)
		}

		reviewed = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordReview(quality)
	if err := s.describe(ctx, reviewed); err != nil {
		// The review is committed; answer with the bare card.
		log.Warn("failed to load card details", slog.String("error", err.Error()))
	}
	log.Info("card reviewed",
		slog.Int("quality", quality),
		slog.Int("interval_days", reviewed.IntervalDays),
		slog.Float64("ease_factor", reviewed.EaseFactor))
	return reviewed, nil
}

// InitializeCards implements CardService.InitializeCards
// Existing cards are left untouched; the unique (account, item, type)
// constraint decides which pairs are skipped.
func (s *cardServiceImpl) InitializeCards(
	ctx context.Context,
	accountID uuid.UUID,
	cardTypeCodes []string,
) (*domain.InitializeResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("account_id", accountID.String()))

	if accountID == uuid.Nil {
		return nil, NewServiceError(cardServiceName, "initialize_cards", "account id is required", domain.ErrInvalidID)
	}

	types, err := s.selectCardTypes(ctx, cardTypeCodes)
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			log.Error("failed to load card types", slog.String("error", err.Error()))
		}
		return nil, NewServiceError(cardServiceName, "initialize_cards", "failed to load card types", err)
	}

	codes, err := s.catalog.ListCodes(ctx)
	if err != nil {
		log.Error("failed to load catalog codes", slog.String("error", err.Error()))
		return nil, NewServiceError(cardServiceName, "initialize_cards", "failed to load catalog", err)
	}

	now := s.now().UTC()
	pairs := make([]*domain.Card, 0, len(codes)*len(types))
	for _, code := range codes {
		for _, cardType := range types {
			card, err := domain.NewCard(accountID, code, cardType.Code, now)
			if err != nil {
				return nil, NewServiceError(cardServiceName, "initialize_cards", "failed to build card", err)
			}
			pairs = append(pairs, card)
		}
	}

	result := &domain.InitializeResult{}
	if len(pairs) == 0 {
		log.Debug("nothing to initialize")
		return result, nil
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		created, err := s.cards.WithTx(tx).CreateIfAbsent(ctx, pairs)
		if err != nil {
			log.Error("failed to create cards", slog.String("error", err.Error()))
			return NewServiceError(cardServiceName, "initialize_cards", "failed to create cards", err)
		}
		result.Created = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Skipped = len(pairs) - result.Created

	s.metrics.RecordInitialization(result.Created, result.Skipped)
	log.Info("cards initialized",
		slog.Int("created", result.Created),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

// selectCardTypes returns the card types named by codes, or every card type
// when codes is empty. Unknown codes are a validation error.
func (s *cardServiceImpl) selectCardTypes(ctx context.Context, codes []string) ([]*domain.CardType, error) {
	all, err := s.cardTypes.AllCardTypes(ctx)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return all, nil
	}

	byCode := make(map[string]*domain.CardType, len(all))
	for _, ct := range all {
		byCode[ct.Code] = ct
	}

	selected := make([]*domain.CardType, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true
		ct, ok := byCode[code]
		if !ok {
			return nil, domain.NewValidationError("card_type_codes", fmt.Sprintf("contains unknown card type %q", code), domain.ErrValidation)
		}
		selected = append(selected, ct)
	}
	return selected, nil
}

// ReviewHistory implements CardService.ReviewHistory
func (s *cardServiceImpl) ReviewHistory(
	ctx context.Context,
	accountID, cardID uuid.UUID,
	page domain.PageRequest,
) (domain.Page[*domain.ReviewEvent], error) {
	if _, err := s.GetCard(ctx, accountID, cardID); err != nil {
		return domain.Page[*domain.ReviewEvent]{}, err
	}

	events, total, err := s.cards.ListReviews(ctx, accountID, cardID, page)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list review history",
			slog.String("error", err.Error()),
			slog.String("card_id", cardID.String()))
		return domain.Page[*domain.ReviewEvent]{}, NewServiceError(cardServiceName, "review_history", "failed to list reviews", err)
	}
	return domain.NewPage(events, page, total), nil
}

// AccountStats implements CardService.AccountStats
func (s *cardServiceImpl) AccountStats(ctx context.Context, accountID uuid.UUID) (*domain.AccountStats, error) {
	stats, err := s.stats.AccountStats(ctx, accountID, s.now().UTC())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to compute account stats",
			slog.String("error", err.Error()),
			slog.String("account_id", accountID.String()))
		return nil, NewServiceError(cardServiceName, "account_stats", "failed to compute stats", err)
	}
	return stats, nil
}
