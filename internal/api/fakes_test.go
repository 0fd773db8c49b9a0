package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/api/shared"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/importer"
	"github.com/phrazzld/recall-api/internal/service"
	"github.com/phrazzld/recall-api/internal/service/workflow"
	"github.com/phrazzld/recall-api/internal/store"
	"github.com/stretchr/testify/require"
)

// fakeCardService is a CardService whose methods are set per test.
// Unset methods fail loudly.
type fakeCardService struct {
	listCards       func(ctx context.Context, accountID uuid.UUID, filter store.CardFilter, page domain.PageRequest) (domain.Page[*domain.Card], error)
	listDueCards    func(ctx context.Context, accountID uuid.UUID, cardTypeCode string, page domain.PageRequest) (domain.Page[*domain.Card], error)
	getCard         func(ctx context.Context, accountID, cardID uuid.UUID) (*domain.Card, error)
	reviewCard      func(ctx context.Context, accountID, cardID uuid.UUID, quality int) (*domain.Card, error)
	initializeCards func(ctx context.Context, accountID uuid.UUID, cardTypeCodes []string) (*domain.InitializeResult, error)
	reviewHistory   func(ctx context.Context, accountID, cardID uuid.UUID, page domain.PageRequest) (domain.Page[*domain.ReviewEvent], error)
	accountStats    func(ctx context.Context, accountID uuid.UUID) (*domain.AccountStats, error)
}

var _ service.CardService = (*fakeCardService)(nil)

func (f *fakeCardService) ListCards(
	ctx context.Context,
	accountID uuid.UUID,
	filter store.CardFilter,
	page domain.PageRequest,
) (domain.Page[*domain.Card], error) {
	return f.listCards(ctx, accountID, filter, page)
}

func (f *fakeCardService) ListDueCards(
	ctx context.Context,
	accountID uuid.UUID,
	cardTypeCode string,
	page domain.PageRequest,
) (domain.Page[*domain.Card], error) {
	return f.listDueCards(ctx, accountID, cardTypeCode, page)
}

func (f *fakeCardService) GetCard(ctx context.Context, accountID, cardID uuid.UUID) (*domain.Card, error) {
	return f.getCard(ctx, accountID, cardID)
}

func (f *fakeCardService) ReviewCard(ctx context.Context, accountID, cardID uuid.UUID, quality int) (*domain.Card, error) {
	return f.reviewCard(ctx, accountID, cardID, quality)
}

func (f *fakeCardService) InitializeCards(
	ctx context.Context,
	accountID uuid.UUID,
	cardTypeCodes []string,
) (*domain.InitializeResult, error) {
	return f.initializeCards(ctx, accountID, cardTypeCodes)
}

func (f *fakeCardService) ReviewHistory(
	ctx context.Context,
	accountID, cardID uuid.UUID,
	page domain.PageRequest,
) (domain.Page[*domain.ReviewEvent], error) {
	return f.reviewHistory(ctx, accountID, cardID, page)
}

func (f *fakeCardService) AccountStats(ctx context.Context, accountID uuid.UUID) (*domain.AccountStats, error) {
	return f.accountStats(ctx, accountID)
}

// fakeCatalogService serves a fixed item and card type set.
type fakeCatalogService struct {
	items     map[string]*domain.CatalogItem
	cardTypes []*domain.CardType
	err       error
	lastPage  domain.PageRequest
}

var _ service.CatalogService = (*fakeCatalogService)(nil)

func (f *fakeCatalogService) ListItems(_ context.Context, page domain.PageRequest) (domain.Page[*domain.CatalogItem], error) {
	f.lastPage = page
	if f.err != nil {
		return domain.Page[*domain.CatalogItem]{}, f.err
	}
	items := make([]*domain.CatalogItem, 0, len(f.items))
	for _, item := range f.items {
		items = append(items, item)
	}
	return domain.NewPage(items, page, int64(len(items))), nil
}

func (f *fakeCatalogService) GetItem(_ context.Context, code string) (*domain.CatalogItem, error) {
	if err := domain.ValidateItemCode(code); err != nil {
		return nil, service.NewServiceError("catalog", "get_item", "invalid item code", err)
	}
	item, ok := f.items[code]
	if !ok {
		return nil, service.NewServiceError("catalog", "get_item", "failed to get item", store.ErrCatalogItemNotFound)
	}
	return item, nil
}

func (f *fakeCatalogService) ListCardTypes(_ context.Context, page domain.PageRequest) (domain.Page[*domain.CardType], error) {
	f.lastPage = page
	return domain.NewPage(f.cardTypes, page, int64(len(f.cardTypes))), nil
}

func (f *fakeCatalogService) GetCardType(_ context.Context, code string) (*domain.CardType, error) {
	for _, ct := range f.cardTypes {
		if ct.Code == code {
			return ct, nil
		}
	}
	return nil, service.NewServiceError("catalog", "get_card_type", "failed to get card type", store.ErrCardTypeNotFound)
}

func (f *fakeCatalogService) AllCardTypes(context.Context) ([]*domain.CardType, error) {
	return f.cardTypes, nil
}

// fakeWorkflow is a workflow.Service whose methods are set per test.
type fakeWorkflow struct {
	submit     func(ctx context.Context, actor domain.Identity, in workflow.SubmitInput) (*domain.ChangeRequest, error)
	list       func(ctx context.Context, actor domain.Identity, filter workflow.ListFilter, page domain.PageRequest) (domain.Page[*domain.ChangeRequest], error)
	get        func(ctx context.Context, actor domain.Identity, id uuid.UUID) (*domain.ChangeRequest, error)
	decide     func(ctx context.Context, actor domain.Identity, id uuid.UUID, approved bool, reason *string) (*domain.ChangeRequest, error)
	importRows func(ctx context.Context, actor domain.Identity, rows []importer.Row) (*workflow.ImportResult, error)
}

var _ workflow.Service = (*fakeWorkflow)(nil)

func (f *fakeWorkflow) Submit(ctx context.Context, actor domain.Identity, in workflow.SubmitInput) (*domain.ChangeRequest, error) {
	return f.submit(ctx, actor, in)
}

func (f *fakeWorkflow) List(
	ctx context.Context,
	actor domain.Identity,
	filter workflow.ListFilter,
	page domain.PageRequest,
) (domain.Page[*domain.ChangeRequest], error) {
	return f.list(ctx, actor, filter, page)
}

func (f *fakeWorkflow) Get(ctx context.Context, actor domain.Identity, id uuid.UUID) (*domain.ChangeRequest, error) {
	return f.get(ctx, actor, id)
}

func (f *fakeWorkflow) Approve(ctx context.Context, actor domain.Identity, id uuid.UUID) (*domain.ChangeRequest, error) {
	return f.decide(ctx, actor, id, true, nil)
}

func (f *fakeWorkflow) Reject(
	ctx context.Context,
	actor domain.Identity,
	id uuid.UUID,
	reason *string,
) (*domain.ChangeRequest, error) {
	return f.decide(ctx, actor, id, false, reason)
}

func (f *fakeWorkflow) Decide(
	ctx context.Context,
	actor domain.Identity,
	id uuid.UUID,
	approved bool,
	reason *string,
) (*domain.ChangeRequest, error) {
	return f.decide(ctx, actor, id, approved, reason)
}

func (f *fakeWorkflow) Import(ctx context.Context, actor domain.Identity, rows []importer.Row) (*workflow.ImportResult, error) {
	return f.importRows(ctx, actor, rows)
}

// Identities used across handler tests.
var (
	testClient   = domain.Identity{AccountID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), Role: domain.RoleClient, Label: "learner"}
	testOperator = domain.Identity{AccountID: uuid.MustParse("22222222-2222-2222-2222-222222222222"), Role: domain.RoleOperator, Label: "ops@example.com"}
	testManager  = domain.Identity{AccountID: uuid.MustParse("33333333-3333-3333-3333-333333333333"), Role: domain.RoleOperatorManager, Label: "lead@example.com"}
)

// serve runs req through a chi router configured by mount, with identity
// (when non-nil) already in the context as the auth middleware would leave it.
func serve(t *testing.T, mount func(chi.Router), identity *domain.Identity, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	mount(r)

	if identity != nil {
		req = req.WithContext(shared.WithIdentity(req.Context(), *identity))
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(body).Decode(&v))
	return v
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[shared.ErrorResponse](t, rr.Body).Error
}
