package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/phrazzld/recall-api/internal/events"
	"github.com/phrazzld/recall-api/internal/importer"
	"github.com/phrazzld/recall-api/internal/service"
	"github.com/phrazzld/recall-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService_ValidatesDependencies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := NewService(nil, f.requests, f.catalog, f.codes, f.cards, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = NewService(f.svc.db, nil, f.catalog, f.codes, f.cards, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = NewService(f.svc.db, f.requests, nil, f.codes, f.cards, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = NewService(f.svc.db, f.requests, f.catalog, nil, f.cards, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = NewService(f.svc.db, f.requests, f.catalog, f.codes, nil, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		actor    domain.Identity
		input    SubmitInput
		wantKind error
	}{
		{
			name:  "create",
			actor: operator,
			input: SubmitInput{Kind: "CREATE", Payload: []byte(`{"name":"apple","metadata":{"pos":"noun"}}`)},
		},
		{
			name:  "lower case kind",
			actor: operator,
			input: SubmitInput{Kind: "update", TargetCode: strPtr("ST-0000001"), Payload: []byte(`{"name":"pear"}`)},
		},
		{
			name:  "delete with empty payload",
			actor: manager,
			input: SubmitInput{Kind: "DELETE", TargetCode: strPtr(" ST-0000001 ")},
		},
		{
			name:  "delete with null payload",
			actor: operator,
			input: SubmitInput{Kind: "DELETE", TargetCode: strPtr("ST-0000001"), Payload: []byte(`null`)},
		},
		{
			name:     "create with target",
			actor:    operator,
			input:    SubmitInput{Kind: "CREATE", TargetCode: strPtr("ST-0000001"), Payload: []byte(`{"name":"apple"}`)},
			wantKind: service.ErrInvalidInput,
		},
		{
			name:     "update without target",
			actor:    operator,
			input:    SubmitInput{Kind: "UPDATE", Payload: []byte(`{"name":"pear"}`)},
			wantKind: service.ErrInvalidInput,
		},
		{
			name:     "update changing nothing",
			actor:    operator,
			input:    SubmitInput{Kind: "UPDATE", TargetCode: strPtr("ST-0000001"), Payload: []byte(`{}`)},
			wantKind: service.ErrInvalidInput,
		},
		{
			name:     "malformed target",
			actor:    operator,
			input:    SubmitInput{Kind: "DELETE", TargetCode: strPtr("ST-1")},
			wantKind: service.ErrInvalidInput,
		},
		{
			name:     "payload of another kind",
			actor:    operator,
			input:    SubmitInput{Kind: "CREATE", Payload: []byte(`{"name":"a","bogus":1}`)},
			wantKind: service.ErrInvalidInput,
		},
		{
			name:     "unknown kind",
			actor:    operator,
			input:    SubmitInput{Kind: "MERGE", Payload: []byte(`{}`)},
			wantKind: service.ErrInvalidInput,
		},
		{
			name:     "client cannot submit",
			actor:    client,
			input:    SubmitInput{Kind: "CREATE", Payload: []byte(`{"name":"apple"}`)},
			wantKind: service.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			req, err := f.svc.Submit(context.Background(), tt.actor, tt.input)
			if tt.wantKind != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantKind)
				assert.Empty(t, f.requests.reqs)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, domain.ChangeRequestPending, req.Status)
			assert.Equal(t, tt.actor.AccountID, req.SubmitterID)
			assert.Equal(t, fixedNow, req.CreatedAt)
			assert.Contains(t, f.requests.reqs, req.ID)
			assert.Equal(t, 1, f.metrics.submissions[string(req.Kind)])
			if req.TargetCode != nil {
				assert.Equal(t, "ST-0000001", *req.TargetCode)
			}
		})
	}
}

func TestSubmit_StoreFailureIsInternal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.requests.createErr = errors.New("connection reset")

	_, err := f.svc.Submit(context.Background(), operator, SubmitInput{Kind: "CREATE", Payload: []byte(`{"name":"x"}`)})
	require.Error(t, err)
	assert.Nil(t, service.Classify(err))
}

func TestApprove_Create(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	std := f.submit(t, operator, "CREATE", nil, `{"name":"apple","description":"a fruit","metadata":{"level":"A1"}}`)
	custom := f.submit(t, operator, "CREATE", nil, `{"name":"kiwi","code_hint":"cs"}`)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	approved, err := f.svc.Approve(context.Background(), manager, std.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.ChangeRequestApproved, approved.Status)
	require.NotNil(t, approved.ReviewerID)
	assert.Equal(t, manager.AccountID, *approved.ReviewerID)
	assert.Equal(t, domain.ChangeRequestApproved, f.requests.reqs[std.ID].Status)

	created, ok := f.catalog.items["ST-0000001"]
	require.True(t, ok)
	want := &domain.CatalogItem{
		Code:        "ST-0000001",
		Name:        "apple",
		Description: "a fruit",
		Metadata:    json.RawMessage(`{"level":"A1"}`),
		CreatedBy:   strPtr("maria"),
		UpdatedBy:   strPtr("maria"),
		CreatedAt:   fixedNow,
		UpdatedAt:   fixedNow,
	}
	if diff := cmp.Diff(want, created); diff != "" {
		t.Errorf("created item mismatch (-want +got):\n%s", diff)
	}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err = f.svc.Approve(context.Background(), manager, custom.ID)
	require.NoError(t, err)
	assert.Contains(t, f.catalog.items, "CS-0000001")

	resolutions := f.emitter.resolutions(t)
	require.Len(t, resolutions, 2)
	assert.Equal(t, events.ChangeRequestResolved{
		RequestID:  std.ID,
		Kind:       "CREATE",
		Outcome:    events.OutcomeApproved,
		ReviewerID: manager.AccountID,
		ItemCode:   "ST-0000001",
	}, resolutions[0])
	assert.Equal(t, "CS-0000001", resolutions[1].ItemCode)
}

func TestApprove_CreateCodeExhaustedRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.codes.err = domain.ErrCodeSpaceExhausted
	req := f.submit(t, operator, "CREATE", nil, `{"name":"apple"}`)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.Approve(context.Background(), manager, req.ID)
	require.ErrorIs(t, err, domain.ErrCodeSpaceExhausted)
	assert.Equal(t, domain.ChangeRequestPending, f.requests.reqs[req.ID].Status)
	assert.Empty(t, f.catalog.items)
	assert.Empty(t, f.emitter.events)
}

func TestApprove_UpdateMergesPartially(t *testing.T) {
	t.Parallel()

	existing := item("ST-0000005", "apple")
	existing.Metadata = json.RawMessage(`{"pos":"noun"}`)
	f := newFixture(t, existing)

	req := f.submit(t, operator, "UPDATE", strPtr("ST-0000005"), `{"name":"green apple","metadata":null}`)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err := f.svc.Approve(context.Background(), manager, req.ID)
	require.NoError(t, err)

	want := item("ST-0000005", "apple")
	want.Name = "green apple"
	want.UpdatedBy = strPtr("maria")
	want.UpdatedAt = fixedNow
	if diff := cmp.Diff(want, f.catalog.items["ST-0000005"]); diff != "" {
		t.Errorf("merged item mismatch (-want +got):\n%s", diff)
	}
}

func TestApprove_Failures(t *testing.T) {
	t.Parallel()

	t.Run("update of missing item", func(t *testing.T) {
		f := newFixture(t)
		req := f.submit(t, operator, "UPDATE", strPtr("ST-0000009"), `{"name":"pear"}`)

		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
		_, err := f.svc.Approve(context.Background(), manager, req.ID)
		assert.ErrorIs(t, err, service.ErrNotFound)
		assert.Equal(t, domain.ChangeRequestPending, f.requests.reqs[req.ID].Status)
	})

	t.Run("delete of referenced item", func(t *testing.T) {
		f := newFixture(t, item("ST-0000003", "apple"))
		f.cards.refs["ST-0000003"] = 2
		req := f.submit(t, operator, "DELETE", strPtr("ST-0000003"), `{}`)

		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
		_, err := f.svc.Approve(context.Background(), manager, req.ID)
		require.ErrorIs(t, err, service.ErrConflict)
		assert.Contains(t, err.Error(), "catalog item is in use")
		assert.Contains(t, f.catalog.items, "ST-0000003")
		assert.Equal(t, domain.ChangeRequestPending, f.requests.reqs[req.ID].Status)
	})

	t.Run("delete of missing item", func(t *testing.T) {
		f := newFixture(t)
		req := f.submit(t, operator, "DELETE", strPtr("ST-0000003"), `{}`)

		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
		_, err := f.svc.Approve(context.Background(), manager, req.ID)
		assert.ErrorIs(t, err, service.ErrNotFound)
	})

	t.Run("missing request", func(t *testing.T) {
		f := newFixture(t)

		f.mock.ExpectBegin()
		f.mock.ExpectRollback()
		_, err := f.svc.Approve(context.Background(), manager, uuid.New())
		assert.ErrorIs(t, err, service.ErrNotFound)
	})

	t.Run("operator cannot approve", func(t *testing.T) {
		f := newFixture(t)
		req := f.submit(t, operator, "CREATE", nil, `{"name":"apple"}`)

		_, err := f.svc.Approve(context.Background(), operator, req.ID)
		assert.ErrorIs(t, err, service.ErrForbidden)
		assert.Empty(t, f.catalog.items)
	})
}

func TestApprove_Delete(t *testing.T) {
	t.Parallel()

	f := newFixture(t, item("ST-0000003", "apple"))
	req := f.submit(t, operator, "DELETE", strPtr("ST-0000003"), ``)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err := f.svc.Approve(context.Background(), manager, req.ID)
	require.NoError(t, err)
	assert.NotContains(t, f.catalog.items, "ST-0000003")
}

func TestApprove_OnlyOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := f.submit(t, operator, "CREATE", nil, `{"name":"apple"}`)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err := f.svc.Approve(context.Background(), manager, req.ID)
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.svc.Approve(context.Background(), manager, req.ID)
	require.ErrorIs(t, err, service.ErrConflict)
	assert.Contains(t, err.Error(), "change request is not pending")

	_, err = f.svc.Reject(context.Background(), manager, req.ID, nil)
	assert.ErrorIs(t, err, service.ErrConflict)

	assert.Len(t, f.catalog.items, 1)
	assert.Len(t, f.emitter.events, 1)
}

func TestReject(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	withReason := f.submit(t, operator, "CREATE", nil, `{"name":"apple"}`)
	blankReason := f.submit(t, operator, "CREATE", nil, `{"name":"pear"}`)

	rejected, err := f.svc.Reject(context.Background(), manager, withReason.ID, strPtr("  duplicate of ST-0000001 "))
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeRequestRejected, rejected.Status)
	require.NotNil(t, rejected.Reason)
	assert.Equal(t, "duplicate of ST-0000001", *rejected.Reason)
	assert.Equal(t, fixedNow, rejected.UpdatedAt)

	rejected, err = f.svc.Decide(context.Background(), manager, blankReason.ID, false, strPtr("   "))
	require.NoError(t, err)
	assert.Nil(t, rejected.Reason)

	_, err = f.svc.Reject(context.Background(), manager, uuid.New(), nil)
	assert.ErrorIs(t, err, service.ErrNotFound)

	_, err = f.svc.Reject(context.Background(), operator, withReason.ID, nil)
	assert.ErrorIs(t, err, service.ErrForbidden)

	assert.Empty(t, f.catalog.items)
	resolutions := f.emitter.resolutions(t)
	require.Len(t, resolutions, 2)
	assert.Equal(t, events.OutcomeRejected, resolutions[0].Outcome)
}

func TestDecide_Approves(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := f.submit(t, operator, "CREATE", nil, `{"name":"apple"}`)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	got, err := f.svc.Decide(context.Background(), manager, req.ID, true, strPtr("ignored"))
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeRequestApproved, got.Status)
	assert.Nil(t, got.Reason)
}

func TestListAndGet_Visibility(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	mine := f.submit(t, operator, "CREATE", nil, `{"name":"apple"}`)
	theirs := f.submit(t, operator2, "CREATE", nil, `{"name":"pear"}`)

	page, err := domain.NewPageRequest(0, 0)
	require.NoError(t, err)

	own, err := f.svc.List(context.Background(), operator, ListFilter{}, page)
	require.NoError(t, err)
	require.Len(t, own.Items, 1)
	assert.Equal(t, mine.ID, own.Items[0].ID)
	require.NotNil(t, f.requests.lastList.SubmitterID)

	all, err := f.svc.List(context.Background(), manager, ListFilter{}, page)
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)
	assert.Nil(t, f.requests.lastList.SubmitterID)

	approved := domain.ChangeRequestApproved
	none, err := f.svc.List(context.Background(), manager, ListFilter{Status: &approved}, page)
	require.NoError(t, err)
	assert.Empty(t, none.Items)
	assert.Equal(t, int64(0), none.Page.TotalPages)

	_, err = f.svc.List(context.Background(), client, ListFilter{}, page)
	assert.ErrorIs(t, err, service.ErrForbidden)

	got, err := f.svc.Get(context.Background(), operator, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	_, err = f.svc.Get(context.Background(), operator, theirs.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)

	got, err = f.svc.Get(context.Background(), manager, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, theirs.ID, got.ID)

	_, err = f.svc.Get(context.Background(), manager, uuid.New())
	assert.ErrorIs(t, err, store.ErrChangeRequestNotFound)
}

func TestImport(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rows := []importer.Row{
		{Line: 2, Name: "apple", Description: "a fruit", Metadata: map[string]string{"pos": "noun"}},
		{Line: 3},
		{Line: 4, Name: "run"},
	}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	result, err := f.svc.Import(context.Background(), operator, rows)
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Submitted: 2, Skipped: 1, Total: 3}, result)

	require.Len(t, f.requests.reqs, 2)
	for _, req := range f.requests.reqs {
		assert.Equal(t, domain.ChangeRequestCreate, req.Kind)
		assert.Equal(t, operator.AccountID, req.SubmitterID)
		p, ok := req.Payload.(domain.CreatePayload)
		require.True(t, ok)
		if p.Name == "apple" {
			assert.JSONEq(t, `{"pos":"noun"}`, string(p.Metadata))
		}
	}
	assert.Equal(t, 2, f.metrics.submissions["CREATE"])
	assert.Equal(t, [2]int{2, 1}, f.metrics.imported)
}

func TestImport_AllBlank(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result, err := f.svc.Import(context.Background(), operator, []importer.Row{{Line: 2}})
	require.NoError(t, err)
	assert.Equal(t, &ImportResult{Submitted: 0, Skipped: 1, Total: 1}, result)
}

func TestImport_StoreFailureRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.requests.createErr = errors.New("connection reset")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.Import(context.Background(), operator, []importer.Row{{Line: 2, Name: "apple"}})
	require.Error(t, err)
	assert.Empty(t, f.metrics.submissions)
}
