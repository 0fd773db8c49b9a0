package api

import (
	"encoding/json"
)

// ReviewRequest is the body of POST /accounts/me/cards/{id}:review.
// The 0..5 range is enforced by the card service.
type ReviewRequest struct {
	Quality *int `json:"quality" validate:"required"`
}

// InitializeCardsRequest is the optional body of POST /accounts/me/cards:initialize.
// An empty list initializes every card type.
type InitializeCardsRequest struct {
	CardTypeCodes []string `json:"card_type_codes,omitempty" validate:"omitempty,dive,required"`
}

// SubmitChangeRequestRequest is the body of POST /change-requests.
// DELETE requests may leave out the payload.
type SubmitChangeRequestRequest struct {
	Kind       string          `json:"kind"                  validate:"required"`
	TargetCode *string         `json:"target_code,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// DecisionRequest is the body of POST /change-requests/{id}:decide.
type DecisionRequest struct {
	Approved *bool   `json:"approved"         validate:"required"`
	Reason   *string `json:"reason,omitempty" validate:"omitempty,max=2000"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}
