package production

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WorkOrder is a planned production run of one recipe. It owns its job
// cards; nothing outside the aggregate holds a reference to them.
type WorkOrder struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	RecipeID      string          `json:"recipe_id"`
	RecipeCode    string          `json:"recipe_code"`
	RecipeName    string          `json:"recipe_name"`
	RecipeVersion int             `json:"recipe_version"`
	BatchNo       string          `json:"batch_no"`
	PlannedQty    decimal.Decimal `json:"planned_qty"`
	PlannedDate   time.Time       `json:"planned_date"`
	Remarks       string          `json:"remarks,omitempty"`
	Status        WorkOrderStatus `json:"status"`
	CCPStatus     CCPStatus       `json:"ccp_status"`
	JobCards      []JobCard       `json:"job_cards"`
	CompletedQty  decimal.Decimal `json:"completed_qty"`
	Progress      int             `json:"progress"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ReleasedAt    *time.Time      `json:"released_at,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	// Version is the optimistic-concurrency token checked by Store.UpdateWorkOrder.
	Version int64 `json:"version"`
}

// NewWorkOrderParams carries what NewWorkOrder needs besides the recipe.
type NewWorkOrderParams struct {
	ID          string
	Code        string
	BatchNo     string
	PlannedQty  decimal.Decimal
	PlannedDate time.Time
	Remarks     string
	// JobCardID is called once per operation to mint job card ids.
	JobCardID func() string
}

// NewWorkOrder creates a DRAFT work order for an active recipe. The recipe's
// operations and CCP criteria are copied into the job cards so later recipe
// edits cannot change what this run is judged against.
func NewWorkOrder(recipe *Recipe, p NewWorkOrderParams, now time.Time) (*WorkOrder, error) {
	const op = "create work order"
	if recipe == nil {
		return nil, validationf(op, "recipe is required")
	}
	if !p.PlannedQty.IsPositive() {
		return nil, validationf(op, "planned quantity must be greater than zero, got %s", p.PlannedQty)
	}
	if err := recipe.CanProduce(op); err != nil {
		return nil, err
	}

	wo := &WorkOrder{
		ID:            p.ID,
		Code:          p.Code,
		RecipeID:      recipe.ID,
		RecipeCode:    recipe.Code,
		RecipeName:    recipe.Name,
		RecipeVersion: recipe.Version,
		BatchNo:       p.BatchNo,
		PlannedQty:    p.PlannedQty,
		PlannedDate:   p.PlannedDate,
		Remarks:       strings.TrimSpace(p.Remarks),
		Status:        WorkOrderDraft,
		CompletedQty:  decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, o := range recipe.SortedOperations() {
		wo.JobCards = append(wo.JobCards, newJobCard(p.JobCardID(), wo.ID, o))
	}
	wo.Refresh()
	return wo, nil
}

// JobCard returns the card with the given id.
func (wo *WorkOrder) JobCard(id string) (*JobCard, error) {
	for i := range wo.JobCards {
		if wo.JobCards[i].ID == id {
			return &wo.JobCards[i], nil
		}
	}
	return nil, &Error{Kind: ErrNotFound, Op: "find job card", Detail: "job card " + id + " is not part of work order " + wo.Code}
}

// Release moves a DRAFT order to RELEASED.
func (wo *WorkOrder) Release(now time.Time) error {
	if wo.Status != WorkOrderDraft {
		return transitionf("release work order", "work order %s is %s, not %s", wo.Code, wo.Status, WorkOrderDraft)
	}
	wo.Status = WorkOrderReleased
	wo.ReleasedAt = stamp(now)
	wo.UpdatedAt = now
	return nil
}

// Start moves a RELEASED order to IN_PROGRESS.
func (wo *WorkOrder) Start(now time.Time) error {
	if wo.Status != WorkOrderReleased {
		return transitionf("start work order", "work order %s is %s, not %s", wo.Code, wo.Status, WorkOrderReleased)
	}
	wo.Status = WorkOrderInProgress
	wo.StartedAt = stamp(now)
	wo.UpdatedAt = now
	return nil
}

// requireInProgress guards every job card operation.
func (wo *WorkOrder) requireInProgress(op string) error {
	if wo.Status != WorkOrderInProgress {
		return transitionf(op, "work order %s is %s, job cards can only change while %s", wo.Code, wo.Status, WorkOrderInProgress)
	}
	return nil
}

// StartJobCard starts one card. A card cannot start while an upstream CCP
// card (lower sequence) has not passed its gate.
func (wo *WorkOrder) StartJobCard(jobCardID, operator string, now time.Time) error {
	const op = "start job card"
	if err := wo.requireInProgress(op); err != nil {
		return err
	}
	jc, err := wo.JobCard(jobCardID)
	if err != nil {
		return err
	}
	if jc.Status == JobCardPending {
		if blocking := wo.upstreamGates(jc); len(blocking) > 0 {
			return gateBlocked(op, "upstream critical control points have not passed", blocking...)
		}
	}
	if err := jc.Start(operator, now); err != nil {
		return err
	}
	wo.touch(now)
	return nil
}

func (wo *WorkOrder) upstreamGates(jc *JobCard) []string {
	var out []string
	for i := range wo.JobCards {
		up := &wo.JobCards[i]
		if up.Operation.Sequence >= jc.Operation.Sequence {
			continue
		}
		if up.IsCCP && up.CCPStatus != CCPPassed {
			out = append(out, up.Label())
		}
	}
	return out
}

// RecordCCPReading records a reading on one card and rolls the result up.
func (wo *WorkOrder) RecordCCPReading(jobCardID, readingID string, in ReadingInput, now time.Time) (*CCPReading, error) {
	if err := wo.requireInProgress("record ccp reading"); err != nil {
		return nil, err
	}
	jc, err := wo.JobCard(jobCardID)
	if err != nil {
		return nil, err
	}
	reading, err := jc.RecordReading(readingID, in, now)
	if err != nil {
		return nil, err
	}
	wo.touch(now)
	return reading, nil
}

// CompleteJobCard completes one card with the quantity it produced. The
// quantity may not exceed the planned quantity of the order.
func (wo *WorkOrder) CompleteJobCard(jobCardID string, qty decimal.Decimal, now time.Time) error {
	const op = "complete job card"
	if err := wo.requireInProgress(op); err != nil {
		return err
	}
	jc, err := wo.JobCard(jobCardID)
	if err != nil {
		return err
	}
	if qty.GreaterThan(wo.PlannedQty) {
		return validationf(op, "completed quantity %s exceeds planned quantity %s", qty, wo.PlannedQty)
	}
	if err := jc.Complete(qty, now); err != nil {
		return err
	}
	wo.touch(now)
	return nil
}

// Complete closes an IN_PROGRESS order. Every job card must be completed
// and no CCP card may be pending or failed.
func (wo *WorkOrder) Complete(now time.Time) error {
	const op = "complete work order"
	if wo.Status != WorkOrderInProgress {
		return transitionf(op, "work order %s is %s, not %s", wo.Code, wo.Status, WorkOrderInProgress)
	}
	var open, gated []string
	for i := range wo.JobCards {
		jc := &wo.JobCards[i]
		if jc.Status != JobCardCompleted {
			open = append(open, jc.Label())
		}
		if jc.IsCCP && (jc.CCPStatus == CCPFailed || jc.CCPStatus == CCPPending) {
			gated = append(gated, jc.Label())
		}
	}
	if len(gated) > 0 {
		return gateBlocked(op, "critical control points have not passed", gated...)
	}
	if len(open) > 0 {
		return &Error{Kind: ErrIncompleteJobCards, Op: op, Detail: "job cards are not completed", JobCards: open}
	}
	wo.Refresh()
	wo.Status = WorkOrderCompleted
	wo.CompletedAt = stamp(now)
	wo.UpdatedAt = now
	return nil
}

// Cancel stops the order for good. Job cards need not be complete.
func (wo *WorkOrder) Cancel(reason string, now time.Time) error {
	const op = "cancel work order"
	if wo.Status.Terminal() {
		return transitionf(op, "work order %s is already %s", wo.Code, wo.Status)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return validationf(op, "cancellation reason is required")
	}
	wo.Status = WorkOrderCancelled
	wo.CancelReason = reason
	wo.CancelledAt = stamp(now)
	wo.UpdatedAt = now
	return nil
}

// Refresh recomputes the derived fields: CCP rollup, progress, and the
// completed quantity taken from the final operation.
func (wo *WorkOrder) Refresh() {
	wo.CCPStatus = RollupCCPStatus(wo.JobCards)
	wo.Progress = progress(wo.JobCards)
	if len(wo.JobCards) > 0 {
		last := wo.finalJobCard()
		if last.Status == JobCardCompleted {
			wo.CompletedQty = last.CompletedQty
		}
	}
}

func (wo *WorkOrder) finalJobCard() *JobCard {
	last := &wo.JobCards[0]
	for i := range wo.JobCards {
		if wo.JobCards[i].Operation.Sequence > last.Operation.Sequence {
			last = &wo.JobCards[i]
		}
	}
	return last
}

func (wo *WorkOrder) touch(now time.Time) {
	wo.Refresh()
	wo.UpdatedAt = now
}

// RollupCCPStatus is NOT_REQUIRED when no card is a CCP, otherwise the worst
// CCP status across the cards: FAILED over PENDING over PASSED.
func RollupCCPStatus(cards []JobCard) CCPStatus {
	worst := CCPNotRequired
	for _, jc := range cards {
		if !jc.IsCCP {
			continue
		}
		if worst == CCPNotRequired || jc.CCPStatus.severity() > worst.severity() {
			worst = jc.CCPStatus
		}
	}
	return worst
}

func progress(cards []JobCard) int {
	if len(cards) == 0 {
		return 0
	}
	done := 0
	for _, jc := range cards {
		if jc.Status == JobCardCompleted {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(cards))))
}

// Clone returns a deep copy of the aggregate.
func (wo *WorkOrder) Clone() *WorkOrder {
	if wo == nil {
		return nil
	}
	out := *wo
	out.ReleasedAt = copyTime(wo.ReleasedAt)
	out.StartedAt = copyTime(wo.StartedAt)
	out.CompletedAt = copyTime(wo.CompletedAt)
	out.CancelledAt = copyTime(wo.CancelledAt)
	out.JobCards = make([]JobCard, len(wo.JobCards))
	for i, jc := range wo.JobCards {
		out.JobCards[i] = jc.Clone()
	}
	return &out
}

func stamp(now time.Time) *time.Time {
	t := now
	return &t
}
