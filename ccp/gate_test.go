package ccp

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func f64(v float64) *float64 { return &v }
func secs(v int) *int        { return &v }

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		c       Criterion
		m       Measurement
		verdict Verdict
		reasons []string
	}{
		{
			name:    "temperature below minimum",
			c:       Criterion{Type: Temperature, MinTemp: f64(72)},
			m:       Measurement{Temperature: f64(70)},
			verdict: Fail,
			reasons: []string{CheckTemperature},
		},
		{
			name:    "temperature exactly at minimum passes",
			c:       Criterion{Type: Temperature, MinTemp: f64(72)},
			m:       Measurement{Temperature: f64(72)},
			verdict: Pass,
		},
		{
			name:    "temperature ignores holding time",
			c:       Criterion{Type: Temperature, MinTemp: f64(72)},
			m:       Measurement{Temperature: f64(80), HoldingTime: secs(1)},
			verdict: Pass,
		},
		{
			name:    "time exactly at minimum passes",
			c:       Criterion{Type: Time, HoldingTime: secs(15)},
			m:       Measurement{HoldingTime: secs(15)},
			verdict: Pass,
		},
		{
			name:    "time too short",
			c:       Criterion{Type: Time, HoldingTime: secs(15)},
			m:       Measurement{HoldingTime: secs(14)},
			verdict: Fail,
			reasons: []string{CheckHoldingTime},
		},
		{
			name:    "temp time only holding fails",
			c:       Criterion{Type: TempTime, MinTemp: f64(72), HoldingTime: secs(15)},
			m:       Measurement{Temperature: f64(75), HoldingTime: secs(10)},
			verdict: Fail,
			reasons: []string{CheckHoldingTime},
		},
		{
			name:    "temp time only temperature fails",
			c:       Criterion{Type: TempTime, MinTemp: f64(72), HoldingTime: secs(15)},
			m:       Measurement{Temperature: f64(71.9), HoldingTime: secs(20)},
			verdict: Fail,
			reasons: []string{CheckTemperature},
		},
		{
			name:    "temp time both fail",
			c:       Criterion{Type: TempTime, MinTemp: f64(72), HoldingTime: secs(15)},
			m:       Measurement{Temperature: f64(60), HoldingTime: secs(5)},
			verdict: Fail,
			reasons: []string{CheckTemperature, CheckHoldingTime},
		},
		{
			name:    "temp time both at boundary",
			c:       Criterion{Type: TempTime, MinTemp: f64(72), HoldingTime: secs(15)},
			m:       Measurement{Temperature: f64(72), HoldingTime: secs(15)},
			verdict: Pass,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Evaluate(tt.c, tt.m)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Verdict != tt.verdict {
				t.Fatalf("expected %s, got %s", tt.verdict, res.Verdict)
			}
			if !reflect.DeepEqual(res.Reasons, tt.reasons) {
				t.Fatalf("expected reasons %v, got %v", tt.reasons, res.Reasons)
			}
			if res.Passed() != (tt.verdict == Pass) {
				t.Fatalf("Passed() disagrees with verdict %s", res.Verdict)
			}
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	c := Criterion{Type: TempTime, MinTemp: f64(72), HoldingTime: secs(15)}
	m := Measurement{Temperature: f64(71), HoldingTime: secs(15)}

	first, err := Evaluate(c, m)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := Evaluate(c, m)
		if err != nil {
			t.Fatalf("evaluate #%d: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("evaluate #%d: got %+v, want %+v", i, again, first)
		}
	}
	if *m.Temperature != 71 || *c.MinTemp != 72 {
		t.Fatal("evaluate mutated its inputs")
	}
}

func TestEvaluateMissingMeasurement(t *testing.T) {
	c := Criterion{Type: TempTime, MinTemp: f64(72), HoldingTime: secs(15)}

	_, err := Evaluate(c, Measurement{})
	if !errors.Is(err, ErrMissingMeasurement) {
		t.Fatalf("expected ErrMissingMeasurement, got %v", err)
	}
	var me *MeasurementError
	if !errors.As(err, &me) {
		t.Fatalf("expected *MeasurementError, got %T", err)
	}
	want := []string{CheckTemperature, CheckHoldingTime}
	if !reflect.DeepEqual(me.Missing, want) {
		t.Fatalf("expected missing %v, got %v", want, me.Missing)
	}

	_, err = Evaluate(Criterion{Type: Time, HoldingTime: secs(10)}, Measurement{Temperature: f64(90)})
	if !errors.Is(err, ErrMissingMeasurement) {
		t.Fatalf("expected ErrMissingMeasurement for time criterion, got %v", err)
	}
}

func TestEvaluateInvalidCriterion(t *testing.T) {
	cases := []Criterion{
		{Type: TempTime, MinTemp: f64(72)},
		{Type: TempTime, HoldingTime: secs(15)},
		{Type: Temperature},
		{Type: Time},
		{Type: "PRESSURE"},
		{Type: Time, HoldingTime: secs(-1)},
		{Type: Temperature, MinTemp: f64(math.NaN())},
		{Type: TempTime, MinTemp: f64(math.Inf(-1)), HoldingTime: secs(15)},
	}
	for _, c := range cases {
		_, err := Evaluate(c, Measurement{Temperature: f64(90), HoldingTime: secs(30)})
		if !errors.Is(err, ErrInvalidCriterion) {
			t.Fatalf("%+v: expected ErrInvalidCriterion, got %v", c, err)
		}
		if errors.Is(err, ErrMissingMeasurement) {
			t.Fatalf("%+v: configuration error must not read as a missing measurement", c)
		}
	}
}

func TestCriterionClone(t *testing.T) {
	orig := &Criterion{Type: TempTime, MinTemp: f64(72), HoldingTime: secs(15), Notes: "pasteuriser"}
	cp := orig.Clone()
	*cp.MinTemp = 10
	*cp.HoldingTime = 1
	if *orig.MinTemp != 72 || *orig.HoldingTime != 15 {
		t.Fatal("clone shares threshold pointers with the original")
	}
	var nilCrit *Criterion
	if nilCrit.Clone() != nil {
		t.Fatal("clone of nil criterion should be nil")
	}
}

func TestEvaluateNonFiniteTemperature(t *testing.T) {
	c := Criterion{Type: Temperature, MinTemp: f64(72)}
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		res, err := Evaluate(c, Measurement{Temperature: f64(v)})
		if !errors.Is(err, ErrMissingMeasurement) {
			t.Fatalf("temperature %v: expected ErrMissingMeasurement, got verdict %q err %v", v, res.Verdict, err)
		}
		if res.Passed() {
			t.Fatalf("temperature %v opened the gate", v)
		}
	}

	res, err := Evaluate(c, Measurement{Temperature: f64(10)})
	if err != nil || res.Verdict != Fail {
		t.Fatalf("expected 10°C to fail against 72°C, got %q %v", res.Verdict, err)
	}
}
