package production

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ahmadzakiakmal/ccp-production/ccp"
)

// JobCard is the execution record of one operation inside a work order.
type JobCard struct {
	ID           string          `json:"id"`
	WorkOrderID  string          `json:"work_order_id"`
	Operation    Operation       `json:"operation"`
	IsCCP        bool            `json:"is_ccp"`
	Status       JobCardStatus   `json:"status"`
	CCPStatus    CCPStatus       `json:"ccp_status"`
	Operator     string          `json:"operator,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CompletedQty decimal.Decimal `json:"completed_qty"`
	Readings     []CCPReading    `json:"readings"`
}

// CCPReading is one recorded measurement at a CCP job card. Its verdict is
// computed when recorded and never recomputed.
type CCPReading struct {
	ID          string      `json:"id"`
	JobCardID   string      `json:"job_card_id"`
	Temperature *float64    `json:"temperature,omitempty"`
	HoldingTime *int        `json:"holding_time,omitempty"`
	Operator    string      `json:"operator"`
	Notes       string      `json:"notes,omitempty"`
	Verdict     ccp.Verdict `json:"verdict"`
	Reasons     []string    `json:"reasons,omitempty"`
	RecordedAt  time.Time   `json:"recorded_at"`
}

// ReadingInput is what an operator submits for a CCP reading.
type ReadingInput struct {
	Temperature *float64 `json:"temperature,omitempty"`
	HoldingTime *int     `json:"holding_time,omitempty"`
	Operator    string   `json:"operator"`
	Notes       string   `json:"notes,omitempty"`
}

// Measurement returns the values the gate evaluator judges.
func (in ReadingInput) Measurement() ccp.Measurement {
	return ccp.Measurement{Temperature: in.Temperature, HoldingTime: in.HoldingTime}
}

func newJobCard(id, workOrderID string, op Operation) JobCard {
	jc := JobCard{
		ID:          id,
		WorkOrderID: workOrderID,
		Operation:   op.Clone(),
		IsCCP:       op.IsCCP,
		Status:      JobCardPending,
		CCPStatus:   CCPNotRequired,
		Readings:    []CCPReading{},
	}
	if jc.IsCCP {
		jc.CCPStatus = CCPPending
	}
	return jc
}

// Label names the card in error messages.
func (jc *JobCard) Label() string {
	if jc.Operation.Code != "" {
		return jc.Operation.Code
	}
	return jc.ID
}

// CanProceed reports whether the card's gate lets it complete.
func (jc *JobCard) CanProceed() bool {
	return !jc.IsCCP || jc.CCPStatus == CCPPassed
}

// LatestReading returns the most recent reading, if any.
func (jc *JobCard) LatestReading() (CCPReading, bool) {
	if len(jc.Readings) == 0 {
		return CCPReading{}, false
	}
	return jc.Readings[len(jc.Readings)-1], true
}

// Start moves a pending card to IN_PROGRESS under the given operator.
func (jc *JobCard) Start(operator string, now time.Time) error {
	const op = "start job card"
	if jc.Status != JobCardPending {
		return transitionf(op, "job card %s is %s, not %s", jc.Label(), jc.Status, JobCardPending)
	}
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return validationf(op, "operator name is required")
	}
	jc.Status = JobCardInProgress
	jc.Operator = operator
	t := now
	jc.StartedAt = &t
	return nil
}

// RecordReading evaluates a reading and appends it to the card's history.
// A failing reading blocks the card; a passing one unblocks it. Missing
// measurements and broken criteria leave the card untouched.
func (jc *JobCard) RecordReading(id string, in ReadingInput, now time.Time) (*CCPReading, error) {
	const op = "record ccp reading"
	if !jc.IsCCP {
		return nil, transitionf(op, "job card %s is not a critical control point", jc.Label())
	}
	if !jc.Status.Active() {
		return nil, transitionf(op, "job card %s is %s", jc.Label(), jc.Status)
	}
	operator := strings.TrimSpace(in.Operator)
	if operator == "" {
		return nil, validationf(op, "operator name is required")
	}
	if err := jc.Operation.CheckCCP(); err != nil {
		return nil, &Error{Kind: ErrRecipeConfig, Op: op, JobCards: []string{jc.Label()}, Err: err}
	}

	res, err := ccp.Evaluate(*jc.Operation.Criterion, in.Measurement())
	if err != nil {
		kind := ErrRecipeConfig
		if errors.Is(err, ccp.ErrMissingMeasurement) {
			kind = ErrMissingMeasurement
		}
		return nil, &Error{Kind: kind, Op: op, JobCards: []string{jc.Label()}, Err: err}
	}

	reading := CCPReading{
		ID:          id,
		JobCardID:   jc.ID,
		Temperature: copyFloat(in.Temperature),
		HoldingTime: copyInt(in.HoldingTime),
		Operator:    operator,
		Notes:       in.Notes,
		Verdict:     res.Verdict,
		Reasons:     res.Reasons,
		RecordedAt:  now,
	}
	jc.Readings = append(jc.Readings, reading)

	if res.Passed() {
		jc.CCPStatus = CCPPassed
		jc.Status = JobCardInProgress
	} else {
		jc.CCPStatus = CCPFailed
		jc.Status = JobCardBlocked
	}
	return &reading, nil
}

// Complete closes the card. A CCP card only completes once its latest
// reading passed.
func (jc *JobCard) Complete(qty decimal.Decimal, now time.Time) error {
	const op = "complete job card"
	if !jc.Status.Active() {
		return transitionf(op, "job card %s is %s", jc.Label(), jc.Status)
	}
	if !jc.CanProceed() {
		return gateBlocked(op, "ccp status is "+string(jc.CCPStatus), jc.Label())
	}
	if qty.IsNegative() {
		return validationf(op, "completed quantity %s is negative", qty)
	}
	jc.Status = JobCardCompleted
	jc.CompletedQty = qty
	t := now
	jc.CompletedAt = &t
	return nil
}

// Clone returns a deep copy of the card.
func (jc JobCard) Clone() JobCard {
	jc.Operation = jc.Operation.Clone()
	jc.StartedAt = copyTime(jc.StartedAt)
	jc.CompletedAt = copyTime(jc.CompletedAt)
	readings := make([]CCPReading, len(jc.Readings))
	for i, r := range jc.Readings {
		readings[i] = r.Clone()
	}
	jc.Readings = readings
	return jc
}

// Clone returns a deep copy of the reading.
func (r CCPReading) Clone() CCPReading {
	r.Temperature = copyFloat(r.Temperature)
	r.HoldingTime = copyInt(r.HoldingTime)
	if r.Reasons != nil {
		r.Reasons = append([]string(nil), r.Reasons...)
	}
	return r
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
