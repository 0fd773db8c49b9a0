package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the services.
const (
	// TypeChangeRequestResolved is emitted after an approval or rejection commits.
	TypeChangeRequestResolved = "change_request.resolved"
)

// Event is the envelope every emitted event travels in.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type identifies the payload shape, e.g. TypeChangeRequestResolved
	Type string `json:"type"`

	// Payload contains the type-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified type and payload.
func NewEvent(eventType string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Resolution outcomes carried by ChangeRequestResolved.
const (
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"
)

// ChangeRequestResolved is the payload of TypeChangeRequestResolved events.
type ChangeRequestResolved struct {
	RequestID  uuid.UUID `json:"request_id"`
	Kind       string    `json:"kind"`
	Outcome    string    `json:"outcome"`
	ReviewerID uuid.UUID `json:"reviewer_id"`
	// ItemCode is the affected catalog code; for approved CREATE requests it is
	// the newly allocated code.
	ItemCode string `json:"item_code,omitempty"`
}

// NewChangeRequestResolvedEvent wraps a resolution in an Event.
func NewChangeRequestResolvedEvent(r ChangeRequestResolved) (*Event, error) {
	return NewEvent(TypeChangeRequestResolved, r)
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows services to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a plain function to EventHandler.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent implements EventHandler.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}
