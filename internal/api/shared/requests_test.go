package shared

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Request shapes mirroring the API bodies; the api package owns the real ones.
type reviewBody struct {
	Quality *int `json:"quality" validate:"required"`
}

type decisionBody struct {
	Approved *bool   `json:"approved"         validate:"required"`
	Reason   *string `json:"reason,omitempty" validate:"omitempty,max=20"`
}

// initializeBody validates itself instead of relying on struct tags.
type initializeBody struct {
	CardTypeCodes []string `json:"card_type_codes"`
}

var errBlankCardType = errors.New("card type codes must not be blank")

func (b *initializeBody) Validate() error {
	for _, code := range b.CardTypeCodes {
		if strings.TrimSpace(code) == "" {
			return errBlankCardType
		}
	}
	return nil
}

func postBody(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/accounts/me/cards/x:review", bytes.NewBufferString(body))
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantQuality int
		wantErr     error
		errContains string
	}{
		{name: "review grade", body: `{"quality":4}`, wantQuality: 4},
		{name: "trailing newline", body: "{\"quality\":0}\n", wantQuality: 0},
		{name: "trailing comma", body: `{"quality":4,}`, errContains: "invalid character"},
		{name: "no body", body: "", wantErr: io.EOF},
		{name: "unknown field", body: `{"quality":3,"grade":4}`, errContains: "unknown field"},
		{name: "second value", body: `{"quality":3}{"quality":4}`, wantErr: ErrTrailingData},
		{name: "grade as text", body: `{"quality":"five"}`, errContains: "cannot unmarshal"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got reviewBody
			err := DecodeJSON(postBody(tc.body), &got)

			switch {
			case tc.wantErr != nil:
				assert.ErrorIs(t, err, tc.wantErr)
			case tc.errContains != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errContains)
			default:
				require.NoError(t, err)
				require.NotNil(t, got.Quality)
				assert.Equal(t, tc.wantQuality, *got.Quality)
			}
		})
	}
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestDecodeJSON_ReadError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/change-requests", failingBody{})

	var got decisionBody
	assert.ErrorIs(t, DecodeJSON(req, &got), io.ErrUnexpectedEOF)
}

func TestDecodeJSON_BodyLimit(t *testing.T) {
	reason := strings.Repeat("a", MaxJSONBodyBytes)
	req := postBody(`{"approved":false,"reason":"` + reason + `"}`)

	var got decisionBody
	assert.Error(t, DecodeJSON(req, &got))
}

func TestValidateRequest(t *testing.T) {
	grade := 5
	approve := true
	longReason := strings.Repeat("x", 21)

	tests := []struct {
		name    string
		req     interface{}
		wantErr bool
	}{
		{name: "review with quality", req: &reviewBody{Quality: &grade}},
		{name: "review without quality", req: &reviewBody{}, wantErr: true},
		{name: "decision", req: &decisionBody{Approved: &approve}},
		{name: "decision without verdict", req: &decisionBody{}, wantErr: true},
		{name: "decision reason too long", req: &decisionBody{Approved: &approve, Reason: &longReason}, wantErr: true},
		{name: "self validating selection", req: &initializeBody{CardTypeCodes: []string{"definition"}}},
		{name: "self validating blank code", req: &initializeBody{CardTypeCodes: []string{" "}}, wantErr: true},
		{name: "empty selection", req: &initializeBody{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRequest(tc.req)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRequest_ReportsField(t *testing.T) {
	err := ValidateRequest(&decisionBody{})

	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "Approved", verrs[0].Field())
	assert.Equal(t, "required", verrs[0].Tag())

	assert.ErrorIs(t, ValidateRequest(&initializeBody{CardTypeCodes: []string{""}}), errBlankCardType)
}
