package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Initial scheduling values for a freshly created card.
const (
	DefaultEaseFactor   = 2.5
	MinEaseFactor       = 1.3
	InitialIntervalDays = 1

	// LearningRepetitions is the repetition count at which a card leaves
	// the learning status.
	LearningRepetitions = 3
)

// CardStatus selects cards by learning progress.
type CardStatus string

// Card statuses accepted by card listings.
const (
	CardStatusAll      CardStatus = "all"
	CardStatusNew      CardStatus = "new"
	CardStatusLearning CardStatus = "learning"
	CardStatusReview   CardStatus = "review"
)

// ErrInvalidCardStatus is returned for an unknown card status.
var ErrInvalidCardStatus = NewValidationError("status", "must be one of all, new, learning, review", ErrValidation)

// ParseCardStatus parses a status filter. An empty string means all cards.
func ParseCardStatus(s string) (CardStatus, error) {
	switch status := CardStatus(strings.ToLower(strings.TrimSpace(s))); status {
	case "", CardStatusAll:
		return CardStatusAll, nil
	case CardStatusNew, CardStatusLearning, CardStatusReview:
		return status, nil
	default:
		return "", ErrInvalidCardStatus
	}
}

// Card-specific validation errors
var (
	// ErrCardIDEmpty is returned when a card ID is empty or nil.
	ErrCardIDEmpty = errors.New("card ID cannot be empty")

	// ErrCardAccountIDEmpty is returned when a card's account ID is empty or nil.
	ErrCardAccountIDEmpty = errors.New("card account ID cannot be empty")

	// ErrCardItemCodeEmpty is returned when a card does not reference a catalog item.
	ErrCardItemCodeEmpty = errors.New("card item code cannot be empty")

	// ErrCardTypeCodeEmpty is returned when a card does not reference a card type.
	ErrCardTypeCodeEmpty = errors.New("card type code cannot be empty")

	// ErrInvalidEaseFactor is returned when the ease factor drops below the SM-2 floor.
	ErrInvalidEaseFactor = errors.New("ease factor must be at least 1.3")

	// ErrInvalidInterval is returned when the interval is shorter than one day.
	ErrInvalidInterval = errors.New("interval must be at least 1 day")

	// ErrInvalidRepetitions is returned when the repetition count is negative.
	ErrInvalidRepetitions = errors.New("repetitions cannot be negative")
)

// SchedulingState is the part of a card that the SM-2 scheduler reads and writes.
type SchedulingState struct {
	EaseFactor   float64 `json:"ease_factor"`
	IntervalDays int     `json:"interval_days"`
	Repetitions  int     `json:"repetitions"`
}

// InitialSchedulingState returns the state every new card starts from.
func InitialSchedulingState() SchedulingState {
	return SchedulingState{
		EaseFactor:   DefaultEaseFactor,
		IntervalDays: InitialIntervalDays,
		Repetitions:  0,
	}
}

// Card is one account's review schedule for a (catalog item, card type) pair.
// An account holds at most one card per pair.
type Card struct {
	ID             uuid.UUID  `json:"id"`
	AccountID      uuid.UUID  `json:"account_id"`
	ItemCode       string     `json:"item_code"`
	CardTypeCode   string     `json:"card_type_code"`
	EaseFactor     float64    `json:"ease_factor"`
	IntervalDays   int        `json:"interval_days"`
	Repetitions    int        `json:"repetitions"`
	NextReviewAt   time.Time  `json:"next_review_at"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Item and CardType are filled in for responses and never stored.
	Item     *CatalogItem `json:"knowledge,omitempty"`
	CardType *CardType    `json:"card_type,omitempty"`
}

// NewCard creates a card in the initial scheduling state, due immediately.
// Returns an error if validation fails.
func NewCard(accountID uuid.UUID, itemCode, cardTypeCode string, now time.Time) (*Card, error) {
	state := InitialSchedulingState()
	card := &Card{
		ID:           uuid.New(),
		AccountID:    accountID,
		ItemCode:     itemCode,
		CardTypeCode: cardTypeCode,
		EaseFactor:   state.EaseFactor,
		IntervalDays: state.IntervalDays,
		Repetitions:  state.Repetitions,
		NextReviewAt: now.UTC(),
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}

	if err := card.Validate(); err != nil {
		return nil, err
	}

	return card, nil
}

// Validate checks if the Card has valid data.
func (c *Card) Validate() error {
	if c.ID == uuid.Nil {
		return ErrCardIDEmpty
	}
	if c.AccountID == uuid.Nil {
		return ErrCardAccountIDEmpty
	}
	if c.ItemCode == "" {
		return ErrCardItemCodeEmpty
	}
	if c.CardTypeCode == "" {
		return ErrCardTypeCodeEmpty
	}
	return c.State().Validate()
}

// State returns the card's current scheduling state.
func (c *Card) State() SchedulingState {
	return SchedulingState{
		EaseFactor:   c.EaseFactor,
		IntervalDays: c.IntervalDays,
		Repetitions:  c.Repetitions,
	}
}

// Validate checks the SM-2 bounds of a scheduling state.
func (s SchedulingState) Validate() error {
	if s.EaseFactor < MinEaseFactor {
		return ErrInvalidEaseFactor
	}
	if s.IntervalDays < 1 {
		return ErrInvalidInterval
	}
	if s.Repetitions < 0 {
		return ErrInvalidRepetitions
	}
	return nil
}

// ApplyReview returns a copy of the card carrying the new state, reviewed at now.
// The next review is always measured from the moment of review, so late
// reviews do not shorten the following interval.
func (c *Card) ApplyReview(state SchedulingState, now time.Time) *Card {
	reviewedAt := now.UTC()
	updated := *c
	updated.EaseFactor = state.EaseFactor
	updated.IntervalDays = state.IntervalDays
	updated.Repetitions = state.Repetitions
	updated.NextReviewAt = reviewedAt.AddDate(0, 0, state.IntervalDays)
	updated.LastReviewedAt = &reviewedAt
	updated.UpdatedAt = reviewedAt
	return &updated
}

// IsDue reports whether the card should be reviewed at now.
func (c *Card) IsDue(now time.Time) bool {
	return !c.NextReviewAt.After(now)
}

// HasStatus reports whether the card matches status at now.
// A card may match more than one status: a learning card can also be due.
func (c *Card) HasStatus(status CardStatus, now time.Time) bool {
	switch status {
	case CardStatusNew:
		return c.Repetitions == 0
	case CardStatusLearning:
		return c.Repetitions > 0 && c.Repetitions < LearningRepetitions
	case CardStatusReview:
		return c.IsDue(now)
	default:
		return true
	}
}
