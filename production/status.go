package production

// WorkOrderStatus is the lifecycle state of a work order.
type WorkOrderStatus string

const (
	WorkOrderDraft      WorkOrderStatus = "DRAFT"
	WorkOrderReleased   WorkOrderStatus = "RELEASED"
	WorkOrderInProgress WorkOrderStatus = "IN_PROGRESS"
	WorkOrderCompleted  WorkOrderStatus = "COMPLETED"
	WorkOrderCancelled  WorkOrderStatus = "CANCELLED"
)

// Valid reports whether s is a known work order status.
func (s WorkOrderStatus) Valid() bool {
	switch s {
	case WorkOrderDraft, WorkOrderReleased, WorkOrderInProgress, WorkOrderCompleted, WorkOrderCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s WorkOrderStatus) Terminal() bool {
	return s == WorkOrderCompleted || s == WorkOrderCancelled
}

// JobCardStatus is the lifecycle state of a job card. BLOCKED is a
// sub-state of IN_PROGRESS entered when the latest CCP reading failed.
type JobCardStatus string

const (
	JobCardPending    JobCardStatus = "PENDING"
	JobCardInProgress JobCardStatus = "IN_PROGRESS"
	JobCardBlocked    JobCardStatus = "BLOCKED"
	JobCardCompleted  JobCardStatus = "COMPLETED"
)

// Valid reports whether s is a known job card status.
func (s JobCardStatus) Valid() bool {
	switch s {
	case JobCardPending, JobCardInProgress, JobCardBlocked, JobCardCompleted:
		return true
	}
	return false
}

// Active reports whether the card is being worked on, blocked or not.
func (s JobCardStatus) Active() bool {
	return s == JobCardInProgress || s == JobCardBlocked
}

// CCPStatus is the gate state of a job card, or the rollup over a work order.
type CCPStatus string

const (
	CCPPending     CCPStatus = "PENDING"
	CCPPassed      CCPStatus = "PASSED"
	CCPFailed      CCPStatus = "FAILED"
	CCPNotRequired CCPStatus = "NOT_REQUIRED"
)

// Valid reports whether s is a known CCP status.
func (s CCPStatus) Valid() bool {
	switch s {
	case CCPPending, CCPPassed, CCPFailed, CCPNotRequired:
		return true
	}
	return false
}

// severity orders CCP statuses for the rollup: FAILED > PENDING > PASSED.
func (s CCPStatus) severity() int {
	switch s {
	case CCPFailed:
		return 3
	case CCPPending:
		return 2
	case CCPPassed:
		return 1
	}
	return 0
}

// RecipeStatus is the lifecycle state of a recipe version.
type RecipeStatus string

const (
	RecipeDraft    RecipeStatus = "DRAFT"
	RecipeActive   RecipeStatus = "ACTIVE"
	RecipeObsolete RecipeStatus = "OBSOLETE"
)

// Valid reports whether s is a known recipe status.
func (s RecipeStatus) Valid() bool {
	switch s {
	case RecipeDraft, RecipeActive, RecipeObsolete:
		return true
	}
	return false
}
