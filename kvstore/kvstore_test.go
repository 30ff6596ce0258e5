package kvstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/shopspring/decimal"

	"github.com/ahmadzakiakmal/ccp-production/ccp"
	"github.com/ahmadzakiakmal/ccp-production/production"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("", cmtlog.NewNopLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var day = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func testRecipe() *production.Recipe {
	minTemp := 90.0
	return &production.Recipe{
		ID: "rcp-1", Code: "RCP-SOY", Name: "Soy Milk", Version: 2, Status: production.RecipeActive,
		BatchSize: decimal.NewFromInt(800), Unit: "L", OutputItem: "FG-SOY",
		Operations: []production.Operation{
			{Code: "OP-10", Name: "Grind", Sequence: 10},
			{Code: "OP-20", Name: "Boil", Sequence: 20, IsCCP: true,
				Criterion: &ccp.Criterion{Type: ccp.Temperature, MinTemp: &minTemp}},
		},
	}
}

func testWorkOrder(t *testing.T, id, code string) *production.WorkOrder {
	t.Helper()
	n := 0
	wo, err := production.NewWorkOrder(testRecipe(), production.NewWorkOrderParams{
		ID: id, Code: code, BatchNo: "B261019-001",
		PlannedQty: decimal.NewFromInt(800), PlannedDate: day,
		JobCardID: func() string { n++; return fmt.Sprintf("%s-jc-%d", id, n) },
	}, day)
	if err != nil {
		t.Fatalf("new work order: %v", err)
	}
	return wo
}

func TestRecipes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveRecipe(ctx, testRecipe()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetRecipe(ctx, "rcp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Code != "RCP-SOY" || len(got.Operations) != 2 || *got.Operations[1].Criterion.MinTemp != 90 {
		t.Fatalf("unexpected recipe: %+v", got)
	}
	if !got.BatchSize.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("batch size lost: %s", got.BatchSize)
	}
	all, err := s.ListRecipes(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("list: %d (%v)", len(all), err)
	}
	if _, err := s.GetRecipe(ctx, "missing"); !errors.Is(err, production.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSequences(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		got, err := s.NextWorkOrderSeq(ctx, day)
		if err != nil || got != want {
			t.Fatalf("got %d (%v), want %d", got, err, want)
		}
	}
	if got, _ := s.NextWorkOrderSeq(ctx, day.AddDate(0, 0, 1)); got != 1 {
		t.Fatalf("expected next day to restart at 1, got %d", got)
	}
}

func TestWorkOrderLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	wo := testWorkOrder(t, "wo-1", "WO-20261019-001")

	if err := s.CreateWorkOrder(ctx, wo); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateWorkOrder(ctx, testWorkOrder(t, "wo-2", "WO-20261019-001")); !errors.Is(err, production.ErrConcurrentModification) {
		t.Fatalf("duplicate code: expected ErrConcurrentModification, got %v", err)
	}

	loaded, err := s.GetWorkOrder(ctx, "wo-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	now := day.Add(time.Hour)
	_ = loaded.Release(now)
	_ = loaded.Start(now)
	_ = loaded.StartJobCard("wo-1-jc-1", "Malee", now)
	_ = loaded.CompleteJobCard("wo-1-jc-1", decimal.NewFromInt(800), now)
	_ = loaded.StartJobCard("wo-1-jc-2", "Malee", now)

	for i, temp := range []float64{85, 92} {
		temp := temp
		r, err := loaded.RecordCCPReading("wo-1-jc-2", fmt.Sprintf("rd-%d", i), production.ReadingInput{Temperature: &temp, Operator: "Malee"}, now)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if err := s.UpdateWorkOrder(ctx, loaded, *r); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	if loaded.Version != 3 {
		t.Fatalf("expected version 3, got %d", loaded.Version)
	}

	stored, err := s.GetWorkOrder(ctx, "wo-1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	readings := stored.JobCards[1].Readings
	if len(readings) != 2 || readings[0].Verdict != ccp.Fail || readings[1].Verdict != ccp.Pass {
		t.Fatalf("unexpected history: %+v", readings)
	}
	if readings[0].Reasons[0] != ccp.CheckTemperature {
		t.Fatalf("reasons lost: %v", readings[0].Reasons)
	}
	if stored.JobCards[1].CCPStatus != production.CCPPassed || stored.Status != production.WorkOrderInProgress {
		t.Fatalf("unexpected state: %s / %s", stored.JobCards[1].CCPStatus, stored.Status)
	}
	if len(stored.JobCards[0].Readings) != 0 || stored.JobCards[0].Readings == nil {
		t.Fatal("non-ccp card should load an empty history")
	}
}

func TestUpdateIsConditional(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.CreateWorkOrder(ctx, testWorkOrder(t, "wo-1", "WO-20261019-001")); err != nil {
		t.Fatalf("create: %v", err)
	}
	a, _ := s.GetWorkOrder(ctx, "wo-1")
	b, _ := s.GetWorkOrder(ctx, "wo-1")

	_ = a.Release(day)
	if err := s.UpdateWorkOrder(ctx, a); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	_ = b.Cancel("wrong recipe", day)
	if err := s.UpdateWorkOrder(ctx, b); !errors.Is(err, production.ErrConcurrentModification) {
		t.Fatalf("second writer: expected ErrConcurrentModification, got %v", err)
	}

	missing := testWorkOrder(t, "wo-9", "WO-20261019-009")
	missing.Version = 1
	if err := s.UpdateWorkOrder(ctx, missing); !errors.Is(err, production.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListWorkOrders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		wo := testWorkOrder(t, fmt.Sprintf("wo-%d", i), fmt.Sprintf("WO-20261019-%03d", i))
		wo.CreatedAt = day.Add(time.Duration(i) * time.Minute)
		if err := s.CreateWorkOrder(ctx, wo); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	orders, err := s.ListWorkOrders(ctx, production.WorkOrderFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 3 || orders[0].ID != "wo-3" || orders[2].ID != "wo-1" {
		t.Fatalf("expected newest first, got %d orders", len(orders))
	}
	filtered, _ := s.ListWorkOrders(ctx, production.WorkOrderFilter{PlannedFrom: day.AddDate(0, 0, 1)})
	if len(filtered) != 0 {
		t.Fatalf("expected planned-date filter to exclude all, got %d", len(filtered))
	}
}
