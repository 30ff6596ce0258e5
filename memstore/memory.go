// Package memstore provides an in-memory production store for development
// and tests.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/ahmadzakiakmal/ccp-production/production"
)

// Compile-time interface check.
var _ production.Store = (*Store)(nil)

// Store keeps recipes and work orders in maps. Values are copied on the way
// in and out so callers never share state with the store. Safe for
// concurrent access.
type Store struct {
	mu         sync.RWMutex
	recipes    map[string]*production.Recipe
	workOrders map[string]*production.WorkOrder
	sequences  map[string]int
	logger     cmtlog.Logger
}

// New creates an empty store.
func New(logger cmtlog.Logger) *Store {
	return &Store{
		recipes:    make(map[string]*production.Recipe),
		workOrders: make(map[string]*production.WorkOrder),
		sequences:  make(map[string]int),
		logger:     logger,
	}
}

// ListRecipes returns every recipe.
func (s *Store) ListRecipes(ctx context.Context) ([]*production.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*production.Recipe, 0, len(s.recipes))
	for _, r := range s.recipes {
		out = append(out, r.Clone())
	}
	return out, nil
}

// GetRecipe returns a recipe by id.
func (s *Store) GetRecipe(ctx context.Context, id string) (*production.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipes[id]
	if !ok {
		return nil, fmt.Errorf("recipe %s: %w", id, production.ErrNotFound)
	}
	return r.Clone(), nil
}

// SaveRecipe inserts or replaces a recipe.
func (s *Store) SaveRecipe(ctx context.Context, recipe *production.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debug("Saving recipe", "id", recipe.ID, "code", recipe.Code, "version", recipe.Version)
	s.recipes[recipe.ID] = recipe.Clone()
	return nil
}

// NextWorkOrderSeq hands out per-day sequence numbers.
func (s *Store) NextWorkOrderSeq(ctx context.Context, day time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := day.Format("20060102")
	s.sequences[key]++
	return s.sequences[key], nil
}

// CreateWorkOrder inserts a new work order at version 1.
func (s *Store) CreateWorkOrder(ctx context.Context, wo *production.WorkOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workOrders[wo.ID]; ok {
		return fmt.Errorf("work order %s already exists: %w", wo.ID, production.ErrConcurrentModification)
	}
	for _, existing := range s.workOrders {
		if existing.Code == wo.Code {
			return fmt.Errorf("work order code %s already taken: %w", wo.Code, production.ErrConcurrentModification)
		}
	}
	wo.Version = 1
	s.workOrders[wo.ID] = wo.Clone()
	s.logger.Debug("Created work order", "id", wo.ID, "code", wo.Code)
	return nil
}

// GetWorkOrder returns a work order by id.
func (s *Store) GetWorkOrder(ctx context.Context, id string) (*production.WorkOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wo, ok := s.workOrders[id]
	if !ok {
		return nil, fmt.Errorf("work order %s: %w", id, production.ErrNotFound)
	}
	return wo.Clone(), nil
}

// ListWorkOrders returns the work orders matching filter.
func (s *Store) ListWorkOrders(ctx context.Context, filter production.WorkOrderFilter) ([]*production.WorkOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*production.WorkOrder
	for _, wo := range s.workOrders {
		if filter.Match(wo) {
			out = append(out, wo.Clone())
		}
	}
	production.SortWorkOrders(out)
	return out, nil
}

// UpdateWorkOrder writes wo if nobody else wrote it since it was read.
// Readings already stored are kept as they are; only appended readings are
// added to the history.
func (s *Store) UpdateWorkOrder(ctx context.Context, wo *production.WorkOrder, appended ...production.CCPReading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.workOrders[wo.ID]
	if !ok {
		return fmt.Errorf("work order %s: %w", wo.ID, production.ErrNotFound)
	}
	if stored.Version != wo.Version {
		return fmt.Errorf("work order %s at version %d, write based on %d: %w",
			wo.Code, stored.Version, wo.Version, production.ErrConcurrentModification)
	}

	history := make(map[string][]production.CCPReading, len(stored.JobCards))
	for _, jc := range stored.JobCards {
		history[jc.ID] = jc.Readings
	}
	for _, r := range appended {
		history[r.JobCardID] = append(history[r.JobCardID], r.Clone())
	}

	next := wo.Clone()
	for i := range next.JobCards {
		readings := history[next.JobCards[i].ID]
		if readings == nil {
			readings = []production.CCPReading{}
		}
		next.JobCards[i].Readings = readings
	}
	next.Version = wo.Version + 1
	s.workOrders[wo.ID] = next
	wo.Version = next.Version

	s.logger.Debug("Updated work order", "code", wo.Code, "status", wo.Status, "version", wo.Version, "appended", len(appended))
	return nil
}
