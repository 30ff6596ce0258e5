package ccp

import (
	"fmt"
	"strings"
)

// Verdict is the outcome of a gate evaluation.
type Verdict string

const (
	Pass Verdict = "PASS"
	Fail Verdict = "FAIL"
)

// Measurement is what an operator or sensor reports for one reading.
type Measurement struct {
	Temperature *float64 `json:"temperature,omitempty"`
	HoldingTime *int     `json:"holding_time,omitempty"`
}

// Result carries the verdict and, on failure, every sub-check that failed.
type Result struct {
	Verdict Verdict  `json:"verdict"`
	Reasons []string `json:"reasons,omitempty"`
}

// Passed reports whether the gate is open.
func (r Result) Passed() bool { return r.Verdict == Pass }

// MeasurementError lists the values a reading left out.
type MeasurementError struct {
	Missing []string
}

func (e *MeasurementError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingMeasurement, strings.Join(e.Missing, ", "))
}

// Is lets errors.Is match ErrMissingMeasurement.
func (e *MeasurementError) Is(target error) bool { return target == ErrMissingMeasurement }

// CheckMeasurement reports which values required by c are absent from m.
// A temperature that is NaN or infinite counts as absent. It is the
// form-level check run before Evaluate.
func CheckMeasurement(c Criterion, m Measurement) error {
	var missing []string
	if c.Type.NeedsTemperature() && (m.Temperature == nil || !finite(*m.Temperature)) {
		missing = append(missing, CheckTemperature)
	}
	if c.Type.NeedsHoldingTime() && m.HoldingTime == nil {
		missing = append(missing, CheckHoldingTime)
	}
	if len(missing) > 0 {
		return &MeasurementError{Missing: missing}
	}
	return nil
}

// Evaluate judges a measurement against a criterion. Boundary values pass:
// a reading exactly at MinTemp or HoldingTime opens the gate. Only a value
// that compares at or above the threshold passes.
func Evaluate(c Criterion, m Measurement) (Result, error) {
	if err := c.Validate(); err != nil {
		return Result{}, err
	}
	if err := CheckMeasurement(c, m); err != nil {
		return Result{}, err
	}

	var reasons []string
	if c.Type.NeedsTemperature() && !(*m.Temperature >= *c.MinTemp) {
		reasons = append(reasons, CheckTemperature)
	}
	if c.Type.NeedsHoldingTime() && !(*m.HoldingTime >= *c.HoldingTime) {
		reasons = append(reasons, CheckHoldingTime)
	}

	if len(reasons) > 0 {
		return Result{Verdict: Fail, Reasons: reasons}, nil
	}
	return Result{Verdict: Pass}, nil
}
