package production

import (
	"context"
	"strings"
	"sync"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ahmadzakiakmal/ccp-production/ccp"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithIDGenerator replaces the uuid-based id generator.
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) {
		c.newID = newID
	}
}

// WithStoreTimeout bounds every store call. Zero disables the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.storeTimeout = d
	}
}

// Coordinator is the only component with side effects: it loads aggregates
// from the store, applies the state machines, and writes the result back.
type Coordinator struct {
	store        Store
	logger       cmtlog.Logger
	now          func() time.Time
	newID        func() string
	storeTimeout time.Duration

	mu          sync.Mutex
	cache       []*WorkOrder
	cacheFilter WorkOrderFilter
}

// NewCoordinator creates a coordinator over store.
func NewCoordinator(store Store, logger cmtlog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:        store,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
		storeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.storeTimeout)
}

// ListRecipes returns every recipe in the catalogue.
func (c *Coordinator) ListRecipes(ctx context.Context) ([]*Recipe, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	recipes, err := c.store.ListRecipes(ctx)
	if err != nil {
		return nil, persistence("list recipes", err)
	}
	return recipes, nil
}

// GetRecipe returns one recipe.
func (c *Coordinator) GetRecipe(ctx context.Context, id string) (*Recipe, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	recipe, err := c.store.GetRecipe(ctx, id)
	if err != nil {
		return nil, persistence("get recipe", err)
	}
	return recipe, nil
}

// ListOperations returns a recipe's operations in sequence order.
func (c *Coordinator) ListOperations(ctx context.Context, recipeID string) ([]Operation, error) {
	recipe, err := c.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	return recipe.SortedOperations(), nil
}

// CreateWorkOrderInput is the form behind CreateWorkOrder.
type CreateWorkOrderInput struct {
	RecipeID    string          `json:"recipe_id"`
	PlannedQty  decimal.Decimal `json:"planned_qty"`
	PlannedDate time.Time       `json:"planned_date"`
	Remarks     string          `json:"remarks,omitempty"`
}

// CreateWorkOrder creates a DRAFT work order from an active recipe.
func (c *Coordinator) CreateWorkOrder(ctx context.Context, in CreateWorkOrderInput) (*WorkOrder, error) {
	const op = "create work order"
	if strings.TrimSpace(in.RecipeID) == "" {
		return nil, validationf(op, "recipe id is required")
	}
	if !in.PlannedQty.IsPositive() {
		return nil, validationf(op, "planned quantity must be greater than zero, got %s", in.PlannedQty)
	}
	recipe, err := c.GetRecipe(ctx, in.RecipeID)
	if err != nil {
		return nil, err
	}
	// Rejected creates must not consume a number of the day's sequence.
	if err := recipe.CanProduce(op); err != nil {
		return nil, err
	}

	now := c.now()
	if in.PlannedDate.IsZero() {
		in.PlannedDate = now
	}

	sctx, cancel := c.storeCtx(ctx)
	defer cancel()
	seq, err := c.store.NextWorkOrderSeq(sctx, now)
	if err != nil {
		return nil, persistence(op, err)
	}

	wo, err := NewWorkOrder(recipe, NewWorkOrderParams{
		ID:          c.newID(),
		Code:        WorkOrderCode(now, seq),
		BatchNo:     BatchNumber(now, seq),
		PlannedQty:  in.PlannedQty,
		PlannedDate: in.PlannedDate,
		Remarks:     in.Remarks,
		JobCardID:   c.newID,
	}, now)
	if err != nil {
		return nil, err
	}

	if err := c.store.CreateWorkOrder(sctx, wo); err != nil {
		c.logger.Error("Failed to persist work order", "code", wo.Code, "err", err)
		return nil, persistence(op, err)
	}

	c.logger.Info("Created work order", "code", wo.Code, "recipe", recipe.Code, "planned_qty", wo.PlannedQty.String(), "job_cards", len(wo.JobCards), "ccp_status", wo.CCPStatus)
	c.patchCache(wo)
	return wo.Clone(), nil
}

// GetWorkOrder fetches one work order.
func (c *Coordinator) GetWorkOrder(ctx context.Context, id string) (*WorkOrder, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	wo, err := c.store.GetWorkOrder(ctx, id)
	if err != nil {
		return nil, persistence("get work order", err)
	}
	return wo, nil
}

// ListWorkOrders fetches the matching work orders, newest first, and keeps
// them as the cached collection.
func (c *Coordinator) ListWorkOrders(ctx context.Context, filter WorkOrderFilter) ([]*WorkOrder, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()
	orders, err := c.store.ListWorkOrders(ctx, filter)
	if err != nil {
		return nil, persistence("list work orders", err)
	}
	SortWorkOrders(orders)

	c.mu.Lock()
	c.cacheFilter = filter
	c.cache = make([]*WorkOrder, len(orders))
	for i, wo := range orders {
		c.cache[i] = wo.Clone()
	}
	c.mu.Unlock()
	return orders, nil
}

// CachedWorkOrders returns the last fetched collection, including any
// aggregates patched by later mutations. Orders created since the fetch are
// added only when they match its filter.
func (c *Coordinator) CachedWorkOrders() []*WorkOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*WorkOrder, len(c.cache))
	for i, wo := range c.cache {
		out[i] = wo.Clone()
	}
	return out
}

func (c *Coordinator) patchCache(wo *WorkOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cached := range c.cache {
		if cached.ID == wo.ID {
			c.cache[i] = wo.Clone()
			return
		}
	}
	if !c.cacheFilter.Match(wo) {
		return
	}
	c.cache = append([]*WorkOrder{wo.Clone()}, c.cache...)
}

// mutate is the read-decide-write cycle shared by every transition. The
// write is conditional on the version read, so a concurrent writer makes it
// fail instead of being overwritten.
func (c *Coordinator) mutate(ctx context.Context, op, id string, apply func(wo *WorkOrder, now time.Time) ([]CCPReading, error)) (*WorkOrder, error) {
	ctx, cancel := c.storeCtx(ctx)
	defer cancel()

	wo, err := c.store.GetWorkOrder(ctx, id)
	if err != nil {
		return nil, persistence(op, err)
	}
	appended, err := apply(wo, c.now())
	if err != nil {
		c.logger.Debug("Transition rejected", "op", op, "work_order", wo.Code, "err", err)
		return nil, err
	}
	if err := c.store.UpdateWorkOrder(ctx, wo, appended...); err != nil {
		c.logger.Error("Failed to persist transition", "op", op, "work_order", wo.Code, "err", err)
		return nil, persistence(op, err)
	}
	c.patchCache(wo)
	return wo, nil
}

// ReleaseWorkOrder moves a DRAFT order to RELEASED.
func (c *Coordinator) ReleaseWorkOrder(ctx context.Context, id string) (*WorkOrder, error) {
	wo, err := c.mutate(ctx, "release work order", id, func(wo *WorkOrder, now time.Time) ([]CCPReading, error) {
		return nil, wo.Release(now)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("Released work order", "code", wo.Code)
	return wo, nil
}

// StartWorkOrder moves a RELEASED order to IN_PROGRESS.
func (c *Coordinator) StartWorkOrder(ctx context.Context, id string) (*WorkOrder, error) {
	wo, err := c.mutate(ctx, "start work order", id, func(wo *WorkOrder, now time.Time) ([]CCPReading, error) {
		return nil, wo.Start(now)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("Started work order", "code", wo.Code)
	return wo, nil
}

// CompleteWorkOrder closes an IN_PROGRESS order whose job cards are all done
// and whose critical control points all passed.
func (c *Coordinator) CompleteWorkOrder(ctx context.Context, id string) (*WorkOrder, error) {
	wo, err := c.mutate(ctx, "complete work order", id, func(wo *WorkOrder, now time.Time) ([]CCPReading, error) {
		return nil, wo.Complete(now)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("Completed work order", "code", wo.Code, "completed_qty", wo.CompletedQty.String())
	return wo, nil
}

// CancelWorkOrder cancels an order that is not yet completed.
func (c *Coordinator) CancelWorkOrder(ctx context.Context, id, reason string) (*WorkOrder, error) {
	wo, err := c.mutate(ctx, "cancel work order", id, func(wo *WorkOrder, now time.Time) ([]CCPReading, error) {
		return nil, wo.Cancel(reason, now)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("Cancelled work order", "code", wo.Code, "reason", wo.CancelReason)
	return wo, nil
}

// StartJobCard starts one job card under the named operator.
func (c *Coordinator) StartJobCard(ctx context.Context, workOrderID, jobCardID, operator string) (*WorkOrder, error) {
	wo, err := c.mutate(ctx, "start job card", workOrderID, func(wo *WorkOrder, now time.Time) ([]CCPReading, error) {
		return nil, wo.StartJobCard(jobCardID, operator, now)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("Started job card", "work_order", wo.Code, "job_card", jobCardID, "operator", strings.TrimSpace(operator))
	return wo, nil
}

// ReadingResult is what an operator sees after recording a CCP reading.
type ReadingResult struct {
	Reading    CCPReading `json:"reading"`
	CanProceed bool       `json:"can_proceed"`
	WorkOrder  *WorkOrder `json:"work_order"`
}

// RecordCCPReading records a reading on a CCP job card. A failing reading
// is persisted too and reported with CanProceed false.
func (c *Coordinator) RecordCCPReading(ctx context.Context, workOrderID, jobCardID string, in ReadingInput) (*ReadingResult, error) {
	var reading *CCPReading
	wo, err := c.mutate(ctx, "record ccp reading", workOrderID, func(wo *WorkOrder, now time.Time) ([]CCPReading, error) {
		r, err := wo.RecordCCPReading(jobCardID, c.newID(), in, now)
		if err != nil {
			return nil, err
		}
		reading = r
		return []CCPReading{*r}, nil
	})
	if err != nil {
		return nil, err
	}

	jc, err := wo.JobCard(jobCardID)
	if err != nil {
		return nil, err
	}
	if reading.Verdict == ccp.Pass {
		c.logger.Info("CCP reading passed", "work_order", wo.Code, "job_card", jc.Label(), "operator", reading.Operator)
	} else {
		c.logger.Info("CCP reading failed", "work_order", wo.Code, "job_card", jc.Label(), "operator", reading.Operator, "reasons", strings.Join(reading.Reasons, ","))
	}
	return &ReadingResult{Reading: *reading, CanProceed: jc.CanProceed(), WorkOrder: wo}, nil
}

// CompleteJobCard completes one job card with the quantity it produced.
func (c *Coordinator) CompleteJobCard(ctx context.Context, workOrderID, jobCardID string, qty decimal.Decimal) (*WorkOrder, error) {
	wo, err := c.mutate(ctx, "complete job card", workOrderID, func(wo *WorkOrder, now time.Time) ([]CCPReading, error) {
		return nil, wo.CompleteJobCard(jobCardID, qty, now)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("Completed job card", "work_order", wo.Code, "job_card", jobCardID, "qty", qty.String(), "progress", wo.Progress)
	return wo, nil
}

// JobCardReadings returns the reading history of one job card, oldest first.
func (c *Coordinator) JobCardReadings(ctx context.Context, workOrderID, jobCardID string) ([]CCPReading, error) {
	wo, err := c.GetWorkOrder(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	jc, err := wo.JobCard(jobCardID)
	if err != nil {
		return nil, err
	}
	return jc.Readings, nil
}
