package srs

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/recall-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultService(t *testing.T) {
	t.Parallel() // Enable parallel execution
	service := NewDefaultService()
	require.NotNil(t, service)

	defaultSvc, ok := service.(*defaultService)
	require.True(t, ok, "Expected *defaultService type")
	require.NotNil(t, defaultSvc.params)
}

func TestNextStateRejectsInvalidQuality(t *testing.T) {
	t.Parallel()
	service := NewDefaultService()

	states := []domain.SchedulingState{
		domain.InitialSchedulingState(),
		{EaseFactor: 1.3, IntervalDays: 1, Repetitions: 0},
		{EaseFactor: 2.8, IntervalDays: 120, Repetitions: 9},
	}
	for _, state := range states {
		for _, quality := range []int{-1, 6, 100, -42} {
			_, err := service.NextState(state, quality)
			assert.ErrorIs(t, err, domain.ErrInvalidQuality, "state=%+v quality=%d", state, quality)
			assert.ErrorIs(t, err, domain.ErrValidation)
		}
	}
}

func TestNextStatePassingIncrementsRepetitions(t *testing.T) {
	t.Parallel()
	service := NewDefaultService()

	for quality := domain.PassingQuality; quality <= domain.MaxQuality; quality++ {
		for reps := 0; reps < 6; reps++ {
			state := domain.SchedulingState{EaseFactor: 2.5, IntervalDays: 10, Repetitions: reps}
			next, err := service.NextState(state, quality)
			require.NoError(t, err)
			assert.Equal(t, reps+1, next.Repetitions)
			assert.GreaterOrEqual(t, next.EaseFactor, domain.MinEaseFactor)
			assert.GreaterOrEqual(t, next.IntervalDays, 1)
			switch next.Repetitions {
			case 1:
				assert.Equal(t, 1, next.IntervalDays)
			case 2:
				assert.Equal(t, 6, next.IntervalDays)
			}
		}
	}
}

func TestSchedule(t *testing.T) {
	t.Parallel()
	service := NewDefaultService()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	card, err := domain.NewCard(uuid.New(), "ST-0000001", "translation", created)
	require.NoError(t, err)

	now := created.Add(48 * time.Hour)

	t.Run("first pass schedules one day out", func(t *testing.T) {
		updated, err := service.Schedule(card, 4, now)
		require.NoError(t, err)
		assert.Equal(t, 1, updated.Repetitions)
		assert.Equal(t, 1, updated.IntervalDays)
		assert.True(t, updated.NextReviewAt.Equal(now.AddDate(0, 0, 1)))
		require.NotNil(t, updated.LastReviewedAt)
		assert.True(t, updated.LastReviewedAt.Equal(now))
		assert.Equal(t, card.ID, updated.ID)
	})

	t.Run("failure schedules one day out", func(t *testing.T) {
		advanced := *card
		advanced.Repetitions = 4
		advanced.IntervalDays = 30
		updated, err := service.Schedule(&advanced, 1, now)
		require.NoError(t, err)
		assert.Equal(t, 0, updated.Repetitions)
		assert.Equal(t, 1, updated.IntervalDays)
		assert.InDelta(t, 2.3, updated.EaseFactor, 1e-9)
	})

	t.Run("invalid quality leaves card untouched", func(t *testing.T) {
		_, err := service.Schedule(card, 9, now)
		assert.ErrorIs(t, err, domain.ErrInvalidQuality)
		assert.Equal(t, 0, card.Repetitions)
	})

	t.Run("nil card", func(t *testing.T) {
		_, err := service.Schedule(nil, 3, now)
		assert.ErrorIs(t, err, ErrNilCard)
	})
}
