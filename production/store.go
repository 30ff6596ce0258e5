package production

import (
	"context"
	"sort"
	"time"
)

// Store is the durable source of truth for recipes and work orders.
// Implementations live in memstore (in-memory), repository (PostgreSQL)
// and kvstore (badger).
type Store interface {
	ListRecipes(ctx context.Context) ([]*Recipe, error)
	GetRecipe(ctx context.Context, id string) (*Recipe, error)
	SaveRecipe(ctx context.Context, recipe *Recipe) error

	// NextWorkOrderSeq returns the next work order sequence number for the
	// calendar day of day, starting at 1.
	NextWorkOrderSeq(ctx context.Context, day time.Time) (int, error)

	CreateWorkOrder(ctx context.Context, wo *WorkOrder) error
	GetWorkOrder(ctx context.Context, id string) (*WorkOrder, error)
	ListWorkOrders(ctx context.Context, filter WorkOrderFilter) ([]*WorkOrder, error)

	// UpdateWorkOrder writes wo only if the stored version still equals
	// wo.Version, failing with ErrConcurrentModification otherwise. On success
	// wo.Version is incremented. Appended readings are inserted in the same
	// write; stored readings are never updated or deleted.
	UpdateWorkOrder(ctx context.Context, wo *WorkOrder, appended ...CCPReading) error
}

// WorkOrderFilter narrows ListWorkOrders. Zero fields match everything.
type WorkOrderFilter struct {
	Status   WorkOrderStatus
	RecipeID string
	// PlannedFrom and PlannedTo bound the planned date, inclusive.
	PlannedFrom time.Time
	PlannedTo   time.Time
}

// Match reports whether wo passes the filter.
func (f WorkOrderFilter) Match(wo *WorkOrder) bool {
	if f.Status != "" && wo.Status != f.Status {
		return false
	}
	if f.RecipeID != "" && wo.RecipeID != f.RecipeID {
		return false
	}
	if !f.PlannedFrom.IsZero() && wo.PlannedDate.Before(f.PlannedFrom) {
		return false
	}
	if !f.PlannedTo.IsZero() && wo.PlannedDate.After(f.PlannedTo) {
		return false
	}
	return true
}

// SortWorkOrders orders newest first, the order list views use.
func SortWorkOrders(orders []*WorkOrder) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].Code > orders[j].Code
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
