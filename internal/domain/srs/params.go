package srs

import (
	"github.com/phrazzld/recall-api/internal/domain"
)

// Params defines all configurable parameters for the SM-2 algorithm
type Params struct {
	// Core limits
	MinEaseFactor float64

	// Quality at or above which a review counts as a pass
	PassingQuality int

	// Ease factor drop applied on a failed review
	FailurePenalty float64

	// Fixed intervals for the first and second consecutive passes
	FirstInterval  int
	SecondInterval int

	// Ease factors are kept at this many decimal places
	EasePrecision int
}

// ParamsConfig allows overriding the default parameters when creating a new Params instance
type ParamsConfig struct {
	MinEaseFactor  float64
	FailurePenalty float64
	FirstInterval  int
	SecondInterval int
}

// NewDefaultParams creates a new Params instance with the classic SM-2 values
func NewDefaultParams() *Params {
	return &Params{
		MinEaseFactor:  domain.MinEaseFactor,
		PassingQuality: domain.PassingQuality,
		FailurePenalty: 0.2,
		FirstInterval:  1,
		SecondInterval: 6,
		EasePrecision:  2,
	}
}

// NewParams creates a new Params instance with custom configuration.
// Zero values in config keep the defaults.
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()

	if config.MinEaseFactor > 0 {
		params.MinEaseFactor = config.MinEaseFactor
	}
	if config.FailurePenalty > 0 {
		params.FailurePenalty = config.FailurePenalty
	}
	if config.FirstInterval > 0 {
		params.FirstInterval = config.FirstInterval
	}
	if config.SecondInterval > 0 {
		params.SecondInterval = config.SecondInterval
	}

	return params
}
