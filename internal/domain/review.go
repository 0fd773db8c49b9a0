package domain

import (
	"time"

	"github.com/google/uuid"
)

// Quality bounds for an SM-2 review.
const (
	MinQuality     = 0
	MaxQuality     = 5
	PassingQuality = 3
)

// ReviewEvent is an immutable record of one accepted review.
type ReviewEvent struct {
	ID         uuid.UUID `json:"id"`
	CardID     uuid.UUID `json:"card_id"`
	Quality    int       `json:"quality"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// NewReviewEvent validates the quality and builds a history record.
func NewReviewEvent(cardID uuid.UUID, quality int, reviewedAt time.Time) (*ReviewEvent, error) {
	if err := ValidateQuality(quality); err != nil {
		return nil, err
	}
	if cardID == uuid.Nil {
		return nil, ErrCardIDEmpty
	}
	return &ReviewEvent{
		ID:         uuid.New(),
		CardID:     cardID,
		Quality:    quality,
		ReviewedAt: reviewedAt.UTC(),
	}, nil
}

// ValidateQuality returns ErrInvalidQuality when q is outside 0..5.
func ValidateQuality(q int) error {
	if q < MinQuality || q > MaxQuality {
		return ErrInvalidQuality
	}
	return nil
}
