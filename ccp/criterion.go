// Package ccp evaluates critical-control-point readings against their
// food-safety criteria. Everything in here is pure: no clocks, no storage.
package ccp

import (
	"errors"
	"fmt"
	"math"
)

// CriterionType selects which measurements a critical control point checks.
type CriterionType string

const (
	Temperature CriterionType = "TEMPERATURE"
	Time        CriterionType = "TIME"
	TempTime    CriterionType = "TEMP_TIME"
)

// Valid reports whether t is one of the known criterion types.
func (t CriterionType) Valid() bool {
	switch t {
	case Temperature, Time, TempTime:
		return true
	}
	return false
}

// NeedsTemperature reports whether a reading must carry a temperature.
func (t CriterionType) NeedsTemperature() bool {
	return t == Temperature || t == TempTime
}

// NeedsHoldingTime reports whether a reading must carry a holding time.
func (t CriterionType) NeedsHoldingTime() bool {
	return t == Time || t == TempTime
}

// Sub-check names reported in Result.Reasons and MeasurementError.Missing.
const (
	CheckTemperature = "temperature"
	CheckHoldingTime = "holdingTime"
)

// Errors returned by Validate and Evaluate.
var (
	ErrInvalidCriterion   = errors.New("invalid ccp criterion")
	ErrMissingMeasurement = errors.New("missing measurement")
)

// Criterion is the pass threshold of a critical control point.
type Criterion struct {
	Type CriterionType `json:"type" yaml:"type"`
	// MinTemp is in degrees Celsius.
	MinTemp *float64 `json:"min_temp,omitempty" yaml:"min_temp,omitempty"`
	// HoldingTime is in seconds.
	HoldingTime *int   `json:"holding_time,omitempty" yaml:"holding_time,omitempty"`
	Notes       string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Validate checks that every threshold the criterion type needs is present.
// A criterion that fails validation cannot be evaluated at all.
func (c Criterion) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCriterion, c.Type)
	}
	if c.Type.NeedsTemperature() {
		if c.MinTemp == nil {
			return fmt.Errorf("%w: %s requires min_temp", ErrInvalidCriterion, c.Type)
		}
		if !finite(*c.MinTemp) {
			return fmt.Errorf("%w: min_temp %v is not a finite number", ErrInvalidCriterion, *c.MinTemp)
		}
	}
	if c.Type.NeedsHoldingTime() {
		if c.HoldingTime == nil {
			return fmt.Errorf("%w: %s requires holding_time", ErrInvalidCriterion, c.Type)
		}
		if *c.HoldingTime < 0 {
			return fmt.Errorf("%w: negative holding_time", ErrInvalidCriterion)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clone returns a deep copy so snapshots never share threshold pointers.
func (c *Criterion) Clone() *Criterion {
	if c == nil {
		return nil
	}
	out := *c
	if c.MinTemp != nil {
		v := *c.MinTemp
		out.MinTemp = &v
	}
	if c.HoldingTime != nil {
		v := *c.HoldingTime
		out.HoldingTime = &v
	}
	return &out
}

// String renders the thresholds for logs and operator screens.
func (c Criterion) String() string {
	switch c.Type {
	case Temperature:
		if c.MinTemp != nil {
			return fmt.Sprintf("temp >= %g°C", *c.MinTemp)
		}
	case Time:
		if c.HoldingTime != nil {
			return fmt.Sprintf("hold >= %ds", *c.HoldingTime)
		}
	case TempTime:
		if c.MinTemp != nil && c.HoldingTime != nil {
			return fmt.Sprintf("temp >= %g°C, hold >= %ds", *c.MinTemp, *c.HoldingTime)
		}
	}
	return string(c.Type)
}
