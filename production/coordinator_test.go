package production_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/shopspring/decimal"

	"github.com/ahmadzakiakmal/ccp-production/ccp"
	"github.com/ahmadzakiakmal/ccp-production/memstore"
	"github.com/ahmadzakiakmal/ccp-production/production"
)

type fixture struct {
	store *memstore.Store
	coord *production.Coordinator
	ctx   context.Context
}

func newFixture(t *testing.T, ops ...production.Operation) *fixture {
	t.Helper()
	store := memstore.New(cmtlog.NewNopLogger())
	ctx := context.Background()
	recipe := &production.Recipe{
		ID: "rcp-coco", Code: "RCP-COCO", Name: "UHT Coconut Milk", Version: 1,
		Status: production.RecipeActive, BatchSize: decimal.NewFromInt(1000), OutputItem: "FG-COCO-250",
		ExpectedYield: decimal.NewFromInt(960), Operations: ops,
	}
	if err := store.SaveRecipe(ctx, recipe); err != nil {
		t.Fatalf("save recipe: %v", err)
	}

	clock := time.Date(2026, 10, 19, 7, 30, 0, 0, time.UTC)
	n := 0
	coord := production.NewCoordinator(store, cmtlog.NewNopLogger(),
		production.WithClock(func() time.Time { clock = clock.Add(time.Minute); return clock }),
		production.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
		production.WithStoreTimeout(time.Second),
	)
	return &fixture{store: store, coord: coord, ctx: ctx}
}

func f64(v float64) *float64 { return &v }

func pasteurise(minTemp float64) production.Operation {
	return production.Operation{Code: "OP-20", Name: "Pasteurise", Sequence: 20, IsCCP: true,
		Criterion: &ccp.Criterion{Type: ccp.Temperature, MinTemp: &minTemp}}
}

func (f *fixture) runningOrder(t *testing.T) *production.WorkOrder {
	t.Helper()
	wo, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{
		RecipeID: "rcp-coco", PlannedQty: decimal.NewFromInt(1000), Remarks: "line 2",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.coord.ReleaseWorkOrder(f.ctx, wo.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	wo, err = f.coord.StartWorkOrder(f.ctx, wo.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return wo
}

func TestCoordinatorCreateWorkOrder(t *testing.T) {
	f := newFixture(t, production.Operation{Code: "OP-10", Name: "Blend", Sequence: 10}, pasteurise(72))

	wo, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{RecipeID: "rcp-coco", PlannedQty: decimal.NewFromInt(500)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if wo.Code != "WO-20261019-001" || wo.BatchNo != "B261019-001" {
		t.Fatalf("unexpected codes %s / %s", wo.Code, wo.BatchNo)
	}
	if wo.Status != production.WorkOrderDraft || wo.CCPStatus != production.CCPPending || wo.Version != 1 {
		t.Fatalf("unexpected new order: %s %s v%d", wo.Status, wo.CCPStatus, wo.Version)
	}

	second, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{RecipeID: "rcp-coco", PlannedQty: decimal.NewFromInt(500)})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.Code != "WO-20261019-002" {
		t.Fatalf("expected sequential code, got %s", second.Code)
	}

	if _, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{RecipeID: "rcp-coco"}); !errors.Is(err, production.ErrValidation) {
		t.Fatalf("zero qty: expected ErrValidation, got %v", err)
	}
	if _, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{RecipeID: "nope", PlannedQty: decimal.NewFromInt(1)}); !errors.Is(err, production.ErrNotFound) {
		t.Fatalf("unknown recipe: expected ErrNotFound, got %v", err)
	}

	cached := f.coord.CachedWorkOrders()
	if len(cached) != 2 {
		t.Fatalf("expected 2 cached orders, got %d", len(cached))
	}
}

func TestCoordinatorScenarioA(t *testing.T) {
	f := newFixture(t, pasteurise(72))
	wo := f.runningOrder(t)
	jcID := wo.JobCards[0].ID

	if _, err := f.coord.StartJobCard(f.ctx, wo.ID, jcID, "Somchai"); err != nil {
		t.Fatalf("start job card: %v", err)
	}
	res, err := f.coord.RecordCCPReading(f.ctx, wo.ID, jcID, production.ReadingInput{Temperature: f64(70), Operator: "Somchai"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.Reading.Verdict != ccp.Fail || res.CanProceed {
		t.Fatalf("expected FAIL and no proceed, got %s %v", res.Reading.Verdict, res.CanProceed)
	}
	if res.WorkOrder.CCPStatus != production.CCPFailed {
		t.Fatalf("expected rollup FAILED, got %s", res.WorkOrder.CCPStatus)
	}

	_, err = f.coord.CompleteJobCard(f.ctx, wo.ID, jcID, decimal.NewFromInt(1000))
	if !errors.Is(err, production.ErrCCPGateBlocked) {
		t.Fatalf("expected ErrCCPGateBlocked, got %v", err)
	}

	stored, err := f.coord.GetWorkOrder(f.ctx, wo.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.JobCards[0].Status != production.JobCardBlocked || len(stored.JobCards[0].Readings) != 1 {
		t.Fatalf("failed reading not persisted: %+v", stored.JobCards[0])
	}
}

func TestCoordinatorScenarioB(t *testing.T) {
	f := newFixture(t, pasteurise(72))
	wo := f.runningOrder(t)
	jcID := wo.JobCards[0].ID

	_, _ = f.coord.StartJobCard(f.ctx, wo.ID, jcID, "Somchai")
	// A failed attempt first, then the retry at the boundary.
	if _, err := f.coord.RecordCCPReading(f.ctx, wo.ID, jcID, production.ReadingInput{Temperature: f64(68), Operator: "Somchai"}); err != nil {
		t.Fatalf("record fail: %v", err)
	}
	res, err := f.coord.RecordCCPReading(f.ctx, wo.ID, jcID, production.ReadingInput{Temperature: f64(72), Operator: "Somchai", Notes: "thermometer 2"})
	if err != nil {
		t.Fatalf("record pass: %v", err)
	}
	if res.Reading.Verdict != ccp.Pass || !res.CanProceed {
		t.Fatalf("expected PASS, got %s", res.Reading.Verdict)
	}
	if _, err := f.coord.CompleteJobCard(f.ctx, wo.ID, jcID, decimal.NewFromInt(990)); err != nil {
		t.Fatalf("complete job card: %v", err)
	}
	done, err := f.coord.CompleteWorkOrder(f.ctx, wo.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != production.WorkOrderCompleted || done.Progress != 100 || !done.CompletedQty.Equal(decimal.NewFromInt(990)) {
		t.Fatalf("unexpected completed order: %s %d %s", done.Status, done.Progress, done.CompletedQty)
	}

	readings, err := f.coord.JobCardReadings(f.ctx, wo.ID, jcID)
	if err != nil {
		t.Fatalf("readings: %v", err)
	}
	if len(readings) != 2 || readings[0].Verdict != ccp.Fail || readings[1].Verdict != ccp.Pass {
		t.Fatalf("unexpected reading history: %+v", readings)
	}
}

func TestCoordinatorScenarioDAndE(t *testing.T) {
	f := newFixture(t, production.Operation{Code: "OP-10", Name: "Blend", Sequence: 10}, production.Operation{Code: "OP-30", Name: "Fill", Sequence: 30})
	wo := f.runningOrder(t)
	first, second := wo.JobCards[0].ID, wo.JobCards[1].ID

	if _, err := f.coord.ReleaseWorkOrder(f.ctx, wo.ID); !errors.Is(err, production.ErrInvalidTransition) {
		t.Fatalf("release IN_PROGRESS: expected ErrInvalidTransition, got %v", err)
	}

	_, _ = f.coord.StartJobCard(f.ctx, wo.ID, first, "Malee")
	if _, err := f.coord.CompleteJobCard(f.ctx, wo.ID, first, decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("complete first: %v", err)
	}
	cancelled, err := f.coord.CancelWorkOrder(f.ctx, wo.ID, "retort failure")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != production.WorkOrderCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}
	if _, err := f.coord.StartJobCard(f.ctx, wo.ID, second, "Malee"); !errors.Is(err, production.ErrInvalidTransition) {
		t.Fatalf("start after cancel: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.coord.CompleteJobCard(f.ctx, wo.ID, first, decimal.NewFromInt(1)); !errors.Is(err, production.ErrInvalidTransition) {
		t.Fatalf("complete after cancel: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCoordinatorDetectsConcurrentModification(t *testing.T) {
	f := newFixture(t, production.Operation{Code: "OP-10", Name: "Blend", Sequence: 10})
	wo, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{RecipeID: "rcp-coco", PlannedQty: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Another session writes between our read and our write.
	stale, _ := f.store.GetWorkOrder(f.ctx, wo.ID)
	if _, err := f.coord.ReleaseWorkOrder(f.ctx, wo.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	_ = stale.Cancel("duplicate order", time.Now())
	err = f.store.UpdateWorkOrder(f.ctx, stale)
	if !errors.Is(err, production.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

type failingStore struct {
	*memstore.Store
	err error
}

func (s failingStore) UpdateWorkOrder(ctx context.Context, wo *production.WorkOrder, appended ...production.CCPReading) error {
	return s.err
}

func TestCoordinatorWrapsStoreFailures(t *testing.T) {
	f := newFixture(t, production.Operation{Code: "OP-10", Name: "Blend", Sequence: 10})
	wo, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{RecipeID: "rcp-coco", PlannedQty: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	broken := production.NewCoordinator(failingStore{Store: f.store, err: errors.New("connection reset")}, cmtlog.NewNopLogger())
	_, err = broken.ReleaseWorkOrder(f.ctx, wo.ID)
	if !errors.Is(err, production.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	conflict := production.NewCoordinator(failingStore{Store: f.store, err: fmt.Errorf("row moved: %w", production.ErrConcurrentModification)}, cmtlog.NewNopLogger())
	_, err = conflict.ReleaseWorkOrder(f.ctx, wo.ID)
	if !errors.Is(err, production.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}

	// Nothing was committed: the order is still a draft.
	stored, _ := f.coord.GetWorkOrder(f.ctx, wo.ID)
	if stored.Status != production.WorkOrderDraft {
		t.Fatalf("failed write leaked state: %s", stored.Status)
	}
}

func TestCoordinatorListWorkOrders(t *testing.T) {
	f := newFixture(t, production.Operation{Code: "OP-10", Name: "Blend", Sequence: 10})
	for i := 0; i < 3; i++ {
		if _, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{RecipeID: "rcp-coco", PlannedQty: decimal.NewFromInt(10)}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	orders, err := f.coord.ListWorkOrders(f.ctx, production.WorkOrderFilter{Status: production.WorkOrderDraft})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	if orders[0].Code != "WO-20261019-003" {
		t.Fatalf("expected newest first, got %s", orders[0].Code)
	}

	if _, err := f.coord.ReleaseWorkOrder(f.ctx, orders[2].ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	cached := f.coord.CachedWorkOrders()
	if cached[2].Status != production.WorkOrderReleased {
		t.Fatalf("cache not patched after mutation: %s", cached[2].Status)
	}

	ops, err := f.coord.ListOperations(f.ctx, "rcp-coco")
	if err != nil || len(ops) != 1 {
		t.Fatalf("list operations: %d (%v)", len(ops), err)
	}
}

func TestCoordinatorRejectedCreateKeepsSequence(t *testing.T) {
	f := newFixture(t, production.Operation{Code: "OP-10", Name: "Blend", Sequence: 10})
	draft := &production.Recipe{
		ID: "rcp-draft", Code: "RCP-D", Name: "Draft Chili Paste", Version: 1,
		Status: production.RecipeDraft, BatchSize: decimal.NewFromInt(100), OutputItem: "FG-CHILI",
		Operations: []production.Operation{{Code: "OP-10", Name: "Grind", Sequence: 10}},
	}
	broken := &production.Recipe{
		ID: "rcp-broken", Code: "RCP-B", Name: "Retort Without Limits", Version: 1,
		Status: production.RecipeActive, BatchSize: decimal.NewFromInt(100), OutputItem: "FG-RET",
		Operations: []production.Operation{{Code: "OP-10", Name: "Retort", Sequence: 10, IsCCP: true,
			Criterion: &ccp.Criterion{Type: ccp.TempTime}}},
	}
	for _, r := range []*production.Recipe{draft, broken} {
		if err := f.store.SaveRecipe(f.ctx, r); err != nil {
			t.Fatalf("save %s: %v", r.Code, err)
		}
	}

	if _, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{RecipeID: "rcp-draft", PlannedQty: decimal.NewFromInt(10)}); !errors.Is(err, production.ErrValidation) {
		t.Fatalf("draft recipe: expected ErrValidation, got %v", err)
	}
	if _, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{RecipeID: "rcp-broken", PlannedQty: decimal.NewFromInt(10)}); !errors.Is(err, production.ErrRecipeConfig) {
		t.Fatalf("broken criterion: expected ErrRecipeConfig, got %v", err)
	}

	wo, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{RecipeID: "rcp-coco", PlannedQty: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if wo.Code != "WO-20261019-001" || wo.BatchNo != "B261019-001" {
		t.Fatalf("rejected creates consumed sequence numbers: %s / %s", wo.Code, wo.BatchNo)
	}
}

func TestCoordinatorCacheFollowsLastFilter(t *testing.T) {
	f := newFixture(t, production.Operation{Code: "OP-10", Name: "Blend", Sequence: 10})
	first, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{RecipeID: "rcp-coco", PlannedQty: decimal.NewFromInt(10)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.coord.ReleaseWorkOrder(f.ctx, first.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	released, err := f.coord.ListWorkOrders(f.ctx, production.WorkOrderFilter{Status: production.WorkOrderReleased})
	if err != nil || len(released) != 1 {
		t.Fatalf("list released: %d (%v)", len(released), err)
	}

	if _, err := f.coord.CreateWorkOrder(f.ctx, production.CreateWorkOrderInput{RecipeID: "rcp-coco", PlannedQty: decimal.NewFromInt(10)}); err != nil {
		t.Fatalf("create draft: %v", err)
	}
	cached := f.coord.CachedWorkOrders()
	if len(cached) != 1 || cached[0].ID != first.ID {
		t.Fatalf("a DRAFT order leaked into the RELEASED collection: %d cached", len(cached))
	}

	if _, err := f.coord.StartWorkOrder(f.ctx, first.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	cached = f.coord.CachedWorkOrders()
	if len(cached) != 1 || cached[0].Status != production.WorkOrderInProgress {
		t.Fatalf("cached order not patched in place: %+v", cached)
	}
}
