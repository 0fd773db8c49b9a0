package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestDecodePayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    ChangeRequestKind
		raw     string
		want    Payload
		wantErr error
	}{
		{
			name: "create with hint",
			kind: ChangeRequestCreate,
			raw:  `{"name":"apple","description":"a fruit","metadata":{"pos":"n"},"code_hint":"CS"}`,
			want: CreatePayload{
				Name:        "apple",
				Description: "a fruit",
				Metadata:    json.RawMessage(`{"pos":"n"}`),
				CodeHint:    "CS",
			},
		},
		{
			name: "create with null metadata",
			kind: ChangeRequestCreate,
			raw:  `{"name":"apple","description":"","metadata":null}`,
			want: CreatePayload{Name: "apple"},
		},
		{
			name:    "create without name",
			kind:    ChangeRequestCreate,
			raw:     `{"description":"x"}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "create with unknown field",
			kind:    ChangeRequestCreate,
			raw:     `{"name":"a","colour":"red"}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name: "update name only",
			kind: ChangeRequestUpdate,
			raw:  `{"name":"X"}`,
			want: UpdatePayload{Name: strPtr("X")},
		},
		{
			name: "update explicit null metadata",
			kind: ChangeRequestUpdate,
			raw:  `{"metadata":null}`,
			want: UpdatePayload{Metadata: OptionalJSON{Set: true}},
		},
		{
			name: "update explicit empty metadata",
			kind: ChangeRequestUpdate,
			raw:  `{"metadata":{}}`,
			want: UpdatePayload{Metadata: OptionalJSON{Set: true, Value: json.RawMessage(`{}`)}},
		},
		{
			name:    "update with nothing",
			kind:    ChangeRequestUpdate,
			raw:     `{}`,
			wantErr: ErrEmptyUpdate,
		},
		{
			name: "delete with empty body",
			kind: ChangeRequestDelete,
			raw:  ``,
			want: DeletePayload{},
		},
		{
			name:    "delete with fields",
			kind:    ChangeRequestDelete,
			raw:     `{"name":"x"}`,
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "unknown kind",
			kind:    ChangeRequestKind("MERGE"),
			raw:     `{}`,
			wantErr: ErrInvalidChangeRequestKind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePayload(tt.kind, json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
				assert.True(t, errors.Is(err, ErrValidation), "payload errors should be validation errors")
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodePayload mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUpdatePayloadRoundTripKeepsIntent(t *testing.T) {
	t.Parallel()

	// Omitted metadata must stay omitted after storage, and null must stay null.
	for _, raw := range []string{`{"name":"X"}`, `{"metadata":null}`, `{"description":"d","metadata":{"a":1}}`} {
		p, err := DecodePayload(ChangeRequestUpdate, json.RawMessage(raw))
		require.NoError(t, err)

		stored, err := json.Marshal(p)
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(stored))

		again, err := DecodePayload(ChangeRequestUpdate, stored)
		require.NoError(t, err)
		if diff := cmp.Diff(p, again); diff != "" {
			t.Errorf("payload changed after storage (-before +after):\n%s", diff)
		}
	}
}

func TestNewChangeRequest(t *testing.T) {
	t.Parallel()
	now := time.Now()
	submitter := uuid.New()

	t.Run("create without target", func(t *testing.T) {
		req, err := NewChangeRequest(CreatePayload{Name: "a"}, nil, submitter, now)
		require.NoError(t, err)
		assert.Equal(t, ChangeRequestCreate, req.Kind)
		assert.Equal(t, ChangeRequestPending, req.Status)
		assert.Nil(t, req.TargetCode)
		assert.Nil(t, req.ReviewerID)
	})

	t.Run("create with target", func(t *testing.T) {
		_, err := NewChangeRequest(CreatePayload{Name: "a"}, strPtr("ST-0000001"), submitter, now)
		assert.ErrorIs(t, err, ErrTargetCodeNotAllowed)
	})

	t.Run("update without target", func(t *testing.T) {
		_, err := NewChangeRequest(UpdatePayload{Name: strPtr("a")}, nil, submitter, now)
		assert.ErrorIs(t, err, ErrTargetCodeRequired)
	})

	t.Run("delete with malformed target", func(t *testing.T) {
		_, err := NewChangeRequest(DeletePayload{}, strPtr("apple"), submitter, now)
		assert.ErrorIs(t, err, ErrInvalidItemCode)
	})

	t.Run("delete with target", func(t *testing.T) {
		req, err := NewChangeRequest(DeletePayload{}, strPtr("CS-0000042"), submitter, now)
		require.NoError(t, err)
		assert.Equal(t, "CS-0000042", *req.TargetCode)
	})

	t.Run("missing submitter", func(t *testing.T) {
		_, err := NewChangeRequest(DeletePayload{}, strPtr("CS-0000042"), uuid.Nil, now)
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestParseChangeRequestKindAndStatus(t *testing.T) {
	t.Parallel()

	kind, err := ParseChangeRequestKind(" update ")
	require.NoError(t, err)
	assert.Equal(t, ChangeRequestUpdate, kind)

	_, err = ParseChangeRequestKind("upsert")
	assert.ErrorIs(t, err, ErrInvalidChangeRequestKind)

	status, err := ParseChangeRequestStatus("rejected")
	require.NoError(t, err)
	assert.Equal(t, ChangeRequestRejected, status)

	_, err = ParseChangeRequestStatus("done")
	assert.ErrorIs(t, err, ErrInvalidChangeRequestStatus)
}
