package srs

import (
	"errors"
	"time"

	"github.com/phrazzld/recall-api/internal/domain"
)

// Common errors
var (
	ErrNilCard = errors.New("card cannot be nil")
)

// Service defines the interface for SM-2 scheduling operations
type Service interface {
	// NextState computes the scheduling state that follows a review of the given quality.
	// Returns domain.ErrInvalidQuality when quality is outside 0..5.
	NextState(state domain.SchedulingState, quality int) (domain.SchedulingState, error)

	// Schedule applies a review to a card and returns the updated copy,
	// with the next review due interval days after now.
	Schedule(card *domain.Card, quality int, now time.Time) (*domain.Card, error)
}

// defaultService is the standard implementation of the Service interface
type defaultService struct {
	params *Params
}

// NewDefaultService creates a new SRS service with default parameters
func NewDefaultService() Service {
	return &defaultService{
		params: NewDefaultParams(),
	}
}

// NewServiceWithParams creates a new SRS service with custom parameters
func NewServiceWithParams(params *Params) Service {
	if params == nil {
		params = NewDefaultParams()
	}
	return &defaultService{
		params: params,
	}
}

// NextState implements Service.
func (s *defaultService) NextState(
	state domain.SchedulingState,
	quality int,
) (domain.SchedulingState, error) {
	if err := domain.ValidateQuality(quality); err != nil {
		return domain.SchedulingState{}, err
	}
	return calculateNextState(state, quality, s.params), nil
}

// Schedule implements Service.
func (s *defaultService) Schedule(
	card *domain.Card,
	quality int,
	now time.Time,
) (*domain.Card, error) {
	if card == nil {
		return nil, ErrNilCard
	}

	next, err := s.NextState(card.State(), quality)
	if err != nil {
		return nil, err
	}

	return card.ApplyReview(next, now), nil
}
