package client_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ahmadzakiakmal/ccp-production/production"
	"github.com/ahmadzakiakmal/ccp-production/srvreg"
)

func TestConcurrentCreatesGetDistinctCodes(t *testing.T) {
	c := newClient(t)
	const workers = 10

	var wg sync.WaitGroup
	codes := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wo, err := c.CreateWorkOrder(context.Background(), srvreg.CreateWorkOrderBody{RecipeID: "rcp-curry", PlannedQty: decimal.NewFromInt(10)})
			if err != nil {
				errs <- err
				return
			}
			codes <- wo.Code
		}()
	}
	wg.Wait()
	close(codes)
	close(errs)

	for err := range errs {
		t.Fatalf("create: %v", err)
	}
	seen := make(map[string]bool)
	for code := range codes {
		if seen[code] {
			t.Fatalf("code %s handed out twice", code)
		}
		seen[code] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d codes, got %d", workers, len(seen))
	}
}

// Concurrent readings on one card either land or lose the version race;
// none are silently dropped or duplicated.
func TestConcurrentReadingsAreNeverLost(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	wo, err := c.CreateWorkOrder(ctx, srvreg.CreateWorkOrderBody{RecipeID: "rcp-curry", PlannedQty: decimal.NewFromInt(120)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fill, retort := wo.JobCards[0].ID, wo.JobCards[1].ID
	steps := []func() error{
		func() error { _, err := c.ReleaseWorkOrder(ctx, wo.ID); return err },
		func() error { _, err := c.StartWorkOrder(ctx, wo.ID); return err },
		func() error { _, err := c.StartJobCard(ctx, wo.ID, fill, "Somchai"); return err },
		func() error { _, err := c.CompleteJobCard(ctx, wo.ID, fill, decimal.NewFromInt(120)); return err },
		func() error { _, err := c.StartJobCard(ctx, wo.ID, retort, "Somchai"); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	const workers, perWorker = 8, 5
	var succeeded, conflicted int64
	var wg sync.WaitGroup
	unexpected := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := c.RecordReading(ctx, wo.ID, retort, production.ReadingInput{
					Temperature: f64(91 + float64(i)),
					HoldingTime: secs(20),
					Operator:    fmt.Sprintf("operator-%d", w),
				})
				switch {
				case err == nil:
					atomic.AddInt64(&succeeded, 1)
				case errors.Is(err, production.ErrConcurrentModification):
					atomic.AddInt64(&conflicted, 1)
				default:
					unexpected <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(unexpected)

	for err := range unexpected {
		t.Fatalf("unexpected error: %v", err)
	}
	if succeeded+conflicted != workers*perWorker || succeeded == 0 {
		t.Fatalf("succeeded %d, conflicted %d", succeeded, conflicted)
	}
	readings, err := c.Readings(ctx, wo.ID, retort)
	if err != nil {
		t.Fatalf("readings: %v", err)
	}
	if int64(len(readings)) != succeeded {
		t.Fatalf("stored %d readings, %d requests succeeded", len(readings), succeeded)
	}
}
