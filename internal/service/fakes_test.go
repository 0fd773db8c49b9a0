package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/store"
	"github.com/stretchr/testify/require"
)

// newTxDB returns a sqlmock database whose expectations the test sets.
func newTxDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

type fakeCardStore struct {
	mu      sync.Mutex
	cards   map[uuid.UUID]*domain.Card
	reviews []*domain.ReviewEvent
	keys    map[string]bool

	err          error
	updateErr    error
	appendErr    error
	locked       int
	updatedCount int
}

func newFakeCardStore() *fakeCardStore {
	return &fakeCardStore{
		cards: make(map[uuid.UUID]*domain.Card),
		keys:  make(map[string]bool),
	}
}

func cardKey(c *domain.Card) string {
	return c.AccountID.String() + "|" + c.ItemCode + "|" + c.CardTypeCode
}

func (f *fakeCardStore) add(c *domain.Card) {
	f.cards[c.ID] = c
	f.keys[cardKey(c)] = true
}

func (f *fakeCardStore) owned(accountID uuid.UUID) []*domain.Card {
	var out []*domain.Card
	for _, c := range f.cards {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextReviewAt.Before(out[j].NextReviewAt) })
	return out
}

func (f *fakeCardStore) List(
	_ context.Context,
	accountID uuid.UUID,
	filter store.CardFilter,
	_ domain.PageRequest,
) ([]*domain.Card, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	var out []*domain.Card
	for _, c := range f.owned(accountID) {
		if filter.CardTypeCode != "" && c.CardTypeCode != filter.CardTypeCode {
			continue
		}
		if c.HasStatus(filter.Status, filter.Now) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeCardStore) Get(_ context.Context, accountID, cardID uuid.UUID) (*domain.Card, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.cards[cardID]
	if !ok || c.AccountID != accountID {
		return nil, store.ErrCardNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCardStore) GetForUpdate(ctx context.Context, accountID, cardID uuid.UUID) (*domain.Card, error) {
	f.locked++
	return f.Get(ctx, accountID, cardID)
}

func (f *fakeCardStore) UpdateSchedule(_ context.Context, card *domain.Card) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedCount++
	copied := *card
	f.cards[card.ID] = &copied
	return nil
}

func (f *fakeCardStore) AppendReview(_ context.Context, event *domain.ReviewEvent) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.reviews = append(f.reviews, event)
	return nil
}

func (f *fakeCardStore) ListReviews(
	_ context.Context,
	_, cardID uuid.UUID,
	_ domain.PageRequest,
) ([]*domain.ReviewEvent, int64, error) {
	var out []*domain.ReviewEvent
	for i := len(f.reviews) - 1; i >= 0; i-- {
		if f.reviews[i].CardID == cardID {
			out = append(out, f.reviews[i])
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeCardStore) CreateIfAbsent(_ context.Context, cards []*domain.Card) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	created := 0
	for _, c := range cards {
		if f.keys[cardKey(c)] {
			continue
		}
		f.add(c)
		created++
	}
	return created, nil
}

func (f *fakeCardStore) CountByItem(_ context.Context, itemCode string) (int64, error) {
	var n int64
	for _, c := range f.cards {
		if c.ItemCode == itemCode {
			n++
		}
	}
	return n, nil
}

func (f *fakeCardStore) WithTx(*sql.Tx) store.CardStore { return f }

type fakeCatalogStore struct {
	items      map[string]*domain.CatalogItem
	err        error
	getManyErr error
}

func newFakeCatalogStore(items ...*domain.CatalogItem) *fakeCatalogStore {
	f := &fakeCatalogStore{items: make(map[string]*domain.CatalogItem)}
	for _, item := range items {
		f.items[item.Code] = item
	}
	return f
}

func (f *fakeCatalogStore) Get(_ context.Context, code string) (*domain.CatalogItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	item, ok := f.items[code]
	if !ok {
		return nil, store.ErrCatalogItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (f *fakeCatalogStore) GetForUpdate(ctx context.Context, code string) (*domain.CatalogItem, error) {
	return f.Get(ctx, code)
}

func (f *fakeCatalogStore) List(_ context.Context, _ domain.PageRequest) ([]*domain.CatalogItem, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	out := make([]*domain.CatalogItem, 0, len(f.items))
	for _, item := range f.items {
		out = append(out, item)
	}
	return out, int64(len(out)), nil
}

func (f *fakeCatalogStore) GetMany(_ context.Context, codes []string) ([]*domain.CatalogItem, error) {
	if f.getManyErr != nil {
		return nil, f.getManyErr
	}
	var out []*domain.CatalogItem
	for _, code := range codes {
		if item, ok := f.items[code]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeCatalogStore) ListCodes(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	codes := make([]string, 0, len(f.items))
	for code := range f.items {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

func (f *fakeCatalogStore) Create(_ context.Context, item *domain.CatalogItem) error {
	if _, ok := f.items[item.Code]; ok {
		return store.ErrCatalogItemExists
	}
	f.items[item.Code] = item
	return nil
}

func (f *fakeCatalogStore) Update(_ context.Context, item *domain.CatalogItem) error {
	if _, ok := f.items[item.Code]; !ok {
		return store.ErrCatalogItemNotFound
	}
	f.items[item.Code] = item
	return nil
}

func (f *fakeCatalogStore) Delete(_ context.Context, code string) error {
	if _, ok := f.items[code]; !ok {
		return store.ErrCatalogItemNotFound
	}
	delete(f.items, code)
	return nil
}

func (f *fakeCatalogStore) WithTx(*sql.Tx) store.CatalogStore { return f }

type fakeCardTypeStore struct {
	types    []*domain.CardType
	listAlls int
	err      error
}

func (f *fakeCardTypeStore) Get(_ context.Context, code string) (*domain.CardType, error) {
	for _, ct := range f.types {
		if ct.Code == code {
			return ct, nil
		}
	}
	return nil, store.ErrCardTypeNotFound
}

func (f *fakeCardTypeStore) List(context.Context, domain.PageRequest) ([]*domain.CardType, int64, error) {
	return f.types, int64(len(f.types)), f.err
}

func (f *fakeCardTypeStore) ListAll(context.Context) ([]*domain.CardType, error) {
	f.listAlls++
	if f.err != nil {
		return nil, f.err
	}
	return f.types, nil
}

type fakeStatsStore struct {
	stats *domain.AccountStats
	err   error
	at    time.Time
}

func (f *fakeStatsStore) AccountStats(_ context.Context, _ uuid.UUID, now time.Time) (*domain.AccountStats, error) {
	f.at = now
	return f.stats, f.err
}

type fakeCardMetrics struct {
	reviews []int
	created int
	skipped int
}

func (f *fakeCardMetrics) RecordReview(q int) { f.reviews = append(f.reviews, q) }

func (f *fakeCardMetrics) RecordInitialization(created, skipped int) {
	f.created += created
	f.skipped += skipped
}

func testCardTypes() []*domain.CardType {
	return []*domain.CardType{{Code: "definition"}, {Code: "listening"}, {Code: "translation"}}
}

func testItem(code string) *domain.CatalogItem {
	return &domain.CatalogItem{Code: code, Name: "item " + code}
}
