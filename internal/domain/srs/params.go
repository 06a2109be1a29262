package srs

import "time"

// Canonical model constants. Every interval and curve is derived from these two.
const (
	// GrowthFactor multiplies the previous interval for each strength level above 3.
	GrowthFactor = 1.8

	// DecayConstant is k in retention(t) = 100 * exp(-t * k / ln(strength + 1.5)).
	DecayConstant = 0.3

	// DefaultHorizonDays is the length of a retention curve when none is requested.
	DefaultHorizonDays = 30
)

// Params defines the configurable parts of the decay model
type Params struct {
	// Location is the calendar used to count days between a review and its due date
	Location *time.Location

	// HorizonDays is the number of days covered by retention curves
	HorizonDays int
}

// ParamsConfig allows overriding the default parameters when creating a new Params instance
type ParamsConfig struct {
	Location    *time.Location
	HorizonDays int
}

// NewDefaultParams creates a new Params instance with default values
func NewDefaultParams() *Params {
	return &Params{
		Location:    time.UTC,
		HorizonDays: DefaultHorizonDays,
	}
}

// NewParams creates a new Params instance with custom configuration
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()

	if config.Location != nil {
		params.Location = config.Location
	}
	if config.HorizonDays > 0 {
		params.HorizonDays = config.HorizonDays
	}

	return params
}
