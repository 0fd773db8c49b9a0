package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/platform/logger"
	"github.com/phrazzld/recall-api/internal/store"
)

const (
	catalogServiceName = "catalog"

	// DefaultCardTypeCacheTTL applies when NewCatalogService is given a zero TTL.
	DefaultCardTypeCacheTTL = 5 * time.Minute

	allCardTypesKey = "all"
)

// CatalogService provides read access to catalog items and card types.
// Catalog mutations go through the change-request workflow instead.
type CatalogService interface {
	CardTypeSource

	// ListItems returns catalog items, newest first.
	ListItems(ctx context.Context, page domain.PageRequest) (domain.Page[*domain.CatalogItem], error)

	// GetItem returns one catalog item by code.
	GetItem(ctx context.Context, code string) (*domain.CatalogItem, error)

	// ListCardTypes returns card types ordered by code.
	ListCardTypes(ctx context.Context, page domain.PageRequest) (domain.Page[*domain.CardType], error)

	// GetCardType returns one card type by code.
	GetCardType(ctx context.Context, code string) (*domain.CardType, error)
}

type catalogServiceImpl struct {
	items     store.CatalogStore
	cardTypes store.CardTypeStore
	cache     *ttlcache.Cache[string, []*domain.CardType]
	logger    *slog.Logger
}

// NewCatalogService creates a new CatalogService. The full card type list is
// cached for cacheTTL since card types only change through migrations.
func NewCatalogService(
	items store.CatalogStore,
	cardTypes store.CardTypeStore,
	cacheTTL time.Duration,
	logger *slog.Logger,
) (CatalogService, error) {
	if items == nil {
		return nil, domain.NewValidationError("items", "cannot be nil", domain.ErrValidation)
	}
	if cardTypes == nil {
		return nil, domain.NewValidationError("cardTypes", "cannot be nil", domain.ErrValidation)
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultCardTypeCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &catalogServiceImpl{
		items:     items,
		cardTypes: cardTypes,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, []*domain.CardType](cacheTTL),
			ttlcache.WithDisableTouchOnHit[string, []*domain.CardType](),
		),
		logger: logger.With(slog.String("component", "catalog_service")),
	}, nil
}

// ListItems implements CatalogService.ListItems
func (s *catalogServiceImpl) ListItems(
	ctx context.Context,
	page domain.PageRequest,
) (domain.Page[*domain.CatalogItem], error) {
	items, total, err := s.items.List(ctx, page)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list catalog items",
			slog.String("error", err.Error()))
		return domain.Page[*domain.CatalogItem]{}, NewServiceError(catalogServiceName, "list_items", "failed to list items", err)
	}
	return domain.NewPage(items, page, total), nil
}

// GetItem implements CatalogService.GetItem
func (s *catalogServiceImpl) GetItem(ctx context.Context, code string) (*domain.CatalogItem, error) {
	if err := domain.ValidateItemCode(code); err != nil {
		return nil, NewServiceError(catalogServiceName, "get_item", "invalid item code", err)
	}

	item, err := s.items.Get(ctx, code)
	if err != nil {
		if !store.IsNotFoundError(err) {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to get catalog item",
				slog.String("error", err.Error()),
				slog.String("code", code))
		}
		return nil, NewServiceError(catalogServiceName, "get_item", "failed to get item", err)
	}
	return item, nil
}

// ListCardTypes implements CatalogService.ListCardTypes
func (s *catalogServiceImpl) ListCardTypes(
	ctx context.Context,
	page domain.PageRequest,
) (domain.Page[*domain.CardType], error) {
	types, total, err := s.cardTypes.List(ctx, page)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list card types",
			slog.String("error", err.Error()))
		return domain.Page[*domain.CardType]{}, NewServiceError(catalogServiceName, "list_card_types", "failed to list card types", err)
	}
	return domain.NewPage(types, page, total), nil
}

// GetCardType implements CatalogService.GetCardType
func (s *catalogServiceImpl) GetCardType(ctx context.Context, code string) (*domain.CardType, error) {
	cardType, err := s.cardTypes.Get(ctx, code)
	if err != nil {
		return nil, NewServiceError(catalogServiceName, "get_card_type", "failed to get card type", err)
	}
	return cardType, nil
}

// AllCardTypes implements CardTypeSource.AllCardTypes
func (s *catalogServiceImpl) AllCardTypes(ctx context.Context) ([]*domain.CardType, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if item := s.cache.Get(allCardTypesKey); item != nil {
		return item.Value(), nil
	}

	types, err := s.cardTypes.ListAll(ctx)
	if err != nil {
		log.Error("failed to load card types", slog.String("error", err.Error()))
		return nil, NewServiceError(catalogServiceName, "all_card_types", "failed to load card types", err)
	}

	s.cache.Set(allCardTypesKey, types, ttlcache.DefaultTTL)
	log.Debug("cached card types", slog.Int("count", len(types)))
	return types, nil
}
