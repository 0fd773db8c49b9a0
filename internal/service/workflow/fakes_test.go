package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/events"
	"github.com/phrazzld/recall-api/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeRequestStore struct {
	reqs      map[uuid.UUID]*domain.ChangeRequest
	createErr error
	lastList  store.ChangeRequestFilter
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{reqs: make(map[uuid.UUID]*domain.ChangeRequest)}
}

func (f *fakeRequestStore) Create(_ context.Context, req *domain.ChangeRequest) error {
	if f.createErr != nil {
		return f.createErr
	}
	copied := *req
	f.reqs[req.ID] = &copied
	return nil
}

func (f *fakeRequestStore) Get(_ context.Context, id uuid.UUID) (*domain.ChangeRequest, error) {
	req, ok := f.reqs[id]
	if !ok {
		return nil, store.ErrChangeRequestNotFound
	}
	copied := *req
	return &copied, nil
}

func (f *fakeRequestStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ChangeRequest, error) {
	return f.Get(ctx, id)
}

func (f *fakeRequestStore) List(
	_ context.Context,
	filter store.ChangeRequestFilter,
	_ domain.PageRequest,
) ([]*domain.ChangeRequest, int64, error) {
	f.lastList = filter
	var out []*domain.ChangeRequest
	for _, req := range f.reqs {
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		if filter.SubmitterID != nil && req.SubmitterID != *filter.SubmitterID {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (f *fakeRequestStore) resolve(id, reviewer uuid.UUID, status domain.ChangeRequestStatus, reason *string, at time.Time) error {
	req, ok := f.reqs[id]
	if !ok || !req.IsPending() {
		return store.ErrChangeRequestNotFound
	}
	req.Status = status
	req.ReviewerID = &reviewer
	req.Reason = reason
	req.UpdatedAt = at
	return nil
}

func (f *fakeRequestStore) MarkApproved(_ context.Context, id, reviewerID uuid.UUID, at time.Time) error {
	return f.resolve(id, reviewerID, domain.ChangeRequestApproved, nil, at)
}

func (f *fakeRequestStore) Reject(_ context.Context, id, reviewerID uuid.UUID, reason *string, at time.Time) error {
	return f.resolve(id, reviewerID, domain.ChangeRequestRejected, reason, at)
}

func (f *fakeRequestStore) WithTx(*sql.Tx) store.ChangeRequestStore { return f }

type fakeCatalogStore struct {
	items map[string]*domain.CatalogItem
}

func newFakeCatalogStore(items ...*domain.CatalogItem) *fakeCatalogStore {
	f := &fakeCatalogStore{items: make(map[string]*domain.CatalogItem)}
	for _, item := range items {
		f.items[item.Code] = item
	}
	return f
}

func (f *fakeCatalogStore) Get(_ context.Context, code string) (*domain.CatalogItem, error) {
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

func (f *fakeCatalogStore) List(context.Context, domain.PageRequest) ([]*domain.CatalogItem, int64, error) {
	return nil, 0, nil
}

func (f *fakeCatalogStore) GetMany(context.Context, []string) ([]*domain.CatalogItem, error) {
	return nil, nil
}

func (f *fakeCatalogStore) ListCodes(context.Context) ([]string, error) { return nil, nil }

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

type fakeCodeAllocator struct {
	next map[domain.CodePrefix]int64
	err  error
}

func (f *fakeCodeAllocator) NextCode(_ context.Context, prefix domain.CodePrefix) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.next == nil {
		f.next = make(map[domain.CodePrefix]int64)
	}
	f.next[prefix]++
	return domain.FormatItemCode(prefix, f.next[prefix])
}

func (f *fakeCodeAllocator) WithTx(*sql.Tx) store.CodeAllocator { return f }

// fakeCardStore only answers reference counts.
type fakeCardStore struct {
	store.CardStore
	refs map[string]int64
}

func (f *fakeCardStore) CountByItem(_ context.Context, itemCode string) (int64, error) {
	return f.refs[itemCode], nil
}

func (f *fakeCardStore) WithTx(*sql.Tx) store.CardStore { return f }

type fakeMetrics struct {
	submissions map[string]int
	imported    [2]int
}

func (f *fakeMetrics) RecordSubmission(kind string) {
	if f.submissions == nil {
		f.submissions = make(map[string]int)
	}
	f.submissions[kind]++
}

func (f *fakeMetrics) RecordImport(submitted, skipped int) {
	f.imported[0] += submitted
	f.imported[1] += skipped
}

type recordingEmitter struct {
	events []*events.Event
}

func (e *recordingEmitter) EmitEvent(_ context.Context, event *events.Event) error {
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEmitter) resolutions(t *testing.T) []events.ChangeRequestResolved {
	t.Helper()
	out := make([]events.ChangeRequestResolved, 0, len(e.events))
	for _, ev := range e.events {
		var r events.ChangeRequestResolved
		require.NoError(t, ev.UnmarshalPayload(&r))
		out = append(out, r)
	}
	return out
}

var (
	fixedNow  = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	operator  = domain.Identity{AccountID: uuid.New(), Role: domain.RoleOperator, Label: "olga"}
	operator2 = domain.Identity{AccountID: uuid.New(), Role: domain.RoleOperator, Label: "omar"}
	manager   = domain.Identity{AccountID: uuid.New(), Role: domain.RoleOperatorManager, Label: "maria"}
	client    = domain.Identity{AccountID: uuid.New(), Role: domain.RoleClient}
)

type fixture struct {
	svc      *workflowService
	mock     sqlmock.Sqlmock
	requests *fakeRequestStore
	catalog  *fakeCatalogStore
	codes    *fakeCodeAllocator
	cards    *fakeCardStore
	emitter  *recordingEmitter
	metrics  *fakeMetrics
}

func newFixture(t *testing.T, items ...*domain.CatalogItem) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	f := &fixture{
		mock:     mock,
		requests: newFakeRequestStore(),
		catalog:  newFakeCatalogStore(items...),
		codes:    &fakeCodeAllocator{},
		cards:    &fakeCardStore{refs: map[string]int64{}},
		emitter:  &recordingEmitter{},
		metrics:  &fakeMetrics{},
	}

	svc, err := NewService(db, f.requests, f.catalog, f.codes, f.cards, f.emitter, f.metrics, nil)
	require.NoError(t, err)
	f.svc = svc.(*workflowService)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

// submit stores a pending request directly, bypassing role checks.
func (f *fixture) submit(t *testing.T, by domain.Identity, kind string, target *string, payload string) *domain.ChangeRequest {
	t.Helper()
	req, err := f.svc.newRequest(by, SubmitInput{Kind: kind, TargetCode: target, Payload: []byte(payload)})
	require.NoError(t, err)
	require.NoError(t, f.requests.Create(context.Background(), req))
	return req
}

func item(code, name string) *domain.CatalogItem {
	creator := "seed"
	return &domain.CatalogItem{
		Code:        code,
		Name:        name,
		Description: fmt.Sprintf("%s description", name),
		CreatedBy:   &creator,
		UpdatedBy:   &creator,
		CreatedAt:   fixedNow.Add(-48 * time.Hour),
		UpdatedAt:   fixedNow.Add(-48 * time.Hour),
	}
}

func strPtr(s string) *string { return &s }
