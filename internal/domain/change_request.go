package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChangeRequestKind is the catalog mutation a change request proposes.
type ChangeRequestKind string

// Supported change request kinds.
const (
	ChangeRequestCreate ChangeRequestKind = "CREATE"
	ChangeRequestUpdate ChangeRequestKind = "UPDATE"
	ChangeRequestDelete ChangeRequestKind = "DELETE"
)

// ChangeRequestStatus is the workflow state of a change request.
// APPROVED and REJECTED are terminal.
type ChangeRequestStatus string

// Change request statuses.
const (
	ChangeRequestPending  ChangeRequestStatus = "PENDING"
	ChangeRequestApproved ChangeRequestStatus = "APPROVED"
	ChangeRequestRejected ChangeRequestStatus = "REJECTED"
)

// Change request validation errors
var (
	ErrInvalidChangeRequestKind   = fmt.Errorf("%w: unknown change request kind", ErrValidation)
	ErrInvalidChangeRequestStatus = fmt.Errorf("%w: unknown change request status", ErrValidation)
	ErrTargetCodeNotAllowed       = fmt.Errorf("%w: CREATE requests must not name a target code", ErrValidation)
	ErrTargetCodeRequired         = fmt.Errorf("%w: UPDATE and DELETE requests must name a target code", ErrValidation)
	ErrInvalidPayload             = fmt.Errorf("%w: payload does not match request kind", ErrValidation)
	ErrEmptyUpdate                = fmt.Errorf("%w: update payload changes nothing", ErrValidation)
	ErrChangeRequestNotPending    = errors.New("change request is not pending")
)

// ParseChangeRequestKind validates a kind string.
func ParseChangeRequestKind(s string) (ChangeRequestKind, error) {
	switch k := ChangeRequestKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case ChangeRequestCreate, ChangeRequestUpdate, ChangeRequestDelete:
		return k, nil
	default:
		return "", ErrInvalidChangeRequestKind
	}
}

// ParseChangeRequestStatus validates a status string.
func ParseChangeRequestStatus(s string) (ChangeRequestStatus, error) {
	switch st := ChangeRequestStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case ChangeRequestPending, ChangeRequestApproved, ChangeRequestRejected:
		return st, nil
	default:
		return "", ErrInvalidChangeRequestStatus
	}
}

// Payload is the kind-specific body of a change request.
// The set of implementations is closed: CreatePayload, UpdatePayload, DeletePayload.
type Payload interface {
	Kind() ChangeRequestKind
	isPayload()
}

// CreatePayload carries the fields of a new catalog item.
// CodeHint selects the code prefix ("CS", otherwise the standard prefix).
type CreatePayload struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CodeHint    string          `json:"code_hint,omitempty"`
}

// Kind implements Payload.
func (CreatePayload) Kind() ChangeRequestKind { return ChangeRequestCreate }
func (CreatePayload) isPayload()              {}

// OptionalJSON distinguishes an omitted JSON field from one set to null.
type OptionalJSON struct {
	Set   bool
	Value json.RawMessage
}

// UnmarshalJSON is only invoked when the field is present, including null.
func (o *OptionalJSON) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	o.Value = append(json.RawMessage(nil), data...)
	return nil
}

// UpdatePayload carries a partial update. Nil fields are left unchanged.
type UpdatePayload struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Metadata    OptionalJSON `json:"metadata"`
}

// Kind implements Payload.
func (UpdatePayload) Kind() ChangeRequestKind { return ChangeRequestUpdate }
func (UpdatePayload) isPayload()              {}

// IsEmpty reports whether the payload would change nothing.
func (p UpdatePayload) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && !p.Metadata.Set
}

// MarshalJSON omits unset fields so a stored payload decodes back to the same intent.
func (p UpdatePayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3)
	if p.Name != nil {
		out["name"] = *p.Name
	}
	if p.Description != nil {
		out["description"] = *p.Description
	}
	if p.Metadata.Set {
		if p.Metadata.Value == nil {
			out["metadata"] = nil
		} else {
			out["metadata"] = p.Metadata.Value
		}
	}
	return json.Marshal(out)
}

// DeletePayload carries no fields; the target code identifies the item.
type DeletePayload struct{}

// Kind implements Payload.
func (DeletePayload) Kind() ChangeRequestKind { return ChangeRequestDelete }
func (DeletePayload) isPayload()              {}

// DecodePayload parses raw JSON into the payload variant for kind.
// Unknown fields are rejected so typos surface at submission time.
func DecodePayload(kind ChangeRequestKind, raw json.RawMessage) (Payload, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	switch kind {
	case ChangeRequestCreate:
		var p CreatePayload
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, NewValidationError("name", "is required", ErrInvalidPayload)
		}
		p.Metadata = normalizeMetadata(p.Metadata)
		return p, nil
	case ChangeRequestUpdate:
		var p UpdatePayload
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.IsEmpty() {
			return nil, ErrEmptyUpdate
		}
		if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
			return nil, NewValidationError("name", "cannot be blank", ErrInvalidPayload)
		}
		return p, nil
	case ChangeRequestDelete:
		var p DeletePayload
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p, nil
	default:
		return nil, ErrInvalidChangeRequestKind
	}
}

// ChangeRequest is a queued proposal to mutate the catalog.
type ChangeRequest struct {
	ID          uuid.UUID           `json:"id"`
	Kind        ChangeRequestKind   `json:"kind"`
	TargetCode  *string             `json:"target_code,omitempty"`
	Payload     Payload             `json:"payload"`
	Status      ChangeRequestStatus `json:"status"`
	SubmitterID uuid.UUID           `json:"submitter_id"`
	ReviewerID  *uuid.UUID          `json:"reviewer_id,omitempty"`
	Reason      *string             `json:"reason,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// NewChangeRequest validates the kind/target pairing and returns a PENDING request.
func NewChangeRequest(
	payload Payload,
	targetCode *string,
	submitterID uuid.UUID,
	now time.Time,
) (*ChangeRequest, error) {
	if payload == nil {
		return nil, ErrInvalidPayload
	}
	if submitterID == uuid.Nil {
		return nil, NewValidationError("submitter_id", "cannot be empty", ErrInvalidID)
	}

	kind := payload.Kind()
	switch kind {
	case ChangeRequestCreate:
		if targetCode != nil && *targetCode != "" {
			return nil, ErrTargetCodeNotAllowed
		}
		targetCode = nil
	case ChangeRequestUpdate, ChangeRequestDelete:
		if targetCode == nil || *targetCode == "" {
			return nil, ErrTargetCodeRequired
		}
		if err := ValidateItemCode(*targetCode); err != nil {
			return nil, err
		}
	}

	return &ChangeRequest{
		ID:          uuid.New(),
		Kind:        kind,
		TargetCode:  targetCode,
		Payload:     payload,
		Status:      ChangeRequestPending,
		SubmitterID: submitterID,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// IsPending reports whether the request can still be resolved.
func (r *ChangeRequest) IsPending() bool {
	return r.Status == ChangeRequestPending
}
