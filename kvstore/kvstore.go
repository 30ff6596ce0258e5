// Package kvstore is a production store on an embedded badger database, for
// plants that run a single node without PostgreSQL.
//
// Key layout:
//
//	recipe/<id>                  recipe JSON
//	wo/<id>                      work order JSON, readings stripped
//	code/<code>                  work order id, keeps codes unique
//	reading/<job card>/<seq>     one CCP reading, insert-only
//	seq/wo/<yyyymmdd>            last issued daily sequence
package kvstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"

	"github.com/ahmadzakiakmal/ccp-production/production"
)

const seqAttempts = 5

var _ production.Store = (*Store)(nil)

// Store implements production.Store on badger.
type Store struct {
	db     *badger.DB
	logger cmtlog.Logger
}

// Open opens or creates the database under path. An empty path opens an
// in-memory database.
func Open(path string, logger cmtlog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{logger.With("module", "badger")})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recipeKey(id string) []byte            { return []byte("recipe/" + id) }
func workOrderKey(id string) []byte         { return []byte("wo/" + id) }
func codeKey(code string) []byte            { return []byte("code/" + code) }
func readingPrefix(jobCardID string) []byte { return []byte("reading/" + jobCardID + "/") }
func seqKey(day time.Time) []byte           { return []byte("seq/wo/" + day.Format("20060102")) }

func readingKey(jobCardID string, seq int) []byte {
	return append(readingPrefix(jobCardID), []byte(fmt.Sprintf("%06d", seq))...)
}

// ListRecipes returns every recipe.
func (s *Store) ListRecipes(ctx context.Context) ([]*production.Recipe, error) {
	var recipes []*production.Recipe
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(ctx, txn, []byte("recipe/"), func(val []byte) error {
			var r production.Recipe
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			recipes = append(recipes, &r)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing recipes: %w", err)
	}
	return recipes, nil
}

// GetRecipe returns one recipe.
func (s *Store) GetRecipe(ctx context.Context, id string) (*production.Recipe, error) {
	var r production.Recipe
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, recipeKey(id), &r)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("recipe %s: %w", id, production.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading recipe %s: %w", id, err)
	}
	return &r, nil
}

// SaveRecipe inserts or replaces a recipe.
func (s *Store) SaveRecipe(ctx context.Context, recipe *production.Recipe) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, recipeKey(recipe.ID), recipe)
	})
	if err != nil {
		return fmt.Errorf("saving recipe %s: %w", recipe.Code, err)
	}
	s.logger.Debug("Saved recipe", "code", recipe.Code, "version", recipe.Version)
	return nil
}

// NextWorkOrderSeq increments the counter for day's calendar date.
func (s *Store) NextWorkOrderSeq(ctx context.Context, day time.Time) (int, error) {
	var next uint64
	var err error
	for attempt := 0; attempt < seqAttempts; attempt++ {
		if err = ctx.Err(); err != nil {
			return 0, err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			next = 0
			item, err := txn.Get(seqKey(day))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				if err := item.Value(func(val []byte) error {
					next = binary.BigEndian.Uint64(val)
					return nil
				}); err != nil {
					return err
				}
			}
			next++
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, next)
			return txn.Set(seqKey(day), buf)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("allocating work order sequence: %w", conflict(err))
	}
	return int(next), nil
}

// CreateWorkOrder stores a new work order at version 1.
func (s *Store) CreateWorkOrder(ctx context.Context, wo *production.WorkOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{workOrderKey(wo.ID), codeKey(wo.Code)} {
			if _, err := txn.Get(key); err == nil {
				return fmt.Errorf("work order %s (%s) already exists: %w", wo.ID, wo.Code, production.ErrConcurrentModification)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		next := stripReadings(wo)
		next.Version = 1
		if err := setJSON(txn, workOrderKey(wo.ID), next); err != nil {
			return err
		}
		return txn.Set(codeKey(wo.Code), []byte(wo.ID))
	})
	if err != nil {
		return fmt.Errorf("creating work order %s: %w", wo.Code, conflict(err))
	}
	wo.Version = 1
	s.logger.Debug("Created work order", "id", wo.ID, "code", wo.Code)
	return nil
}

// GetWorkOrder returns a work order with its reading history.
func (s *Store) GetWorkOrder(ctx context.Context, id string) (*production.WorkOrder, error) {
	var wo *production.WorkOrder
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		wo, err = loadWorkOrder(ctx, txn, workOrderKey(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("work order %s: %w", id, production.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading work order %s: %w", id, err)
	}
	return wo, nil
}

// ListWorkOrders returns the matching work orders, newest first.
func (s *Store) ListWorkOrders(ctx context.Context, filter production.WorkOrderFilter) ([]*production.WorkOrder, error) {
	var out []*production.WorkOrder
	err := s.db.View(func(txn *badger.Txn) error {
		var ids [][]byte
		if err := scanKeys(ctx, txn, []byte("wo/"), func(key []byte) {
			ids = append(ids, key)
		}); err != nil {
			return err
		}
		for _, key := range ids {
			wo, err := loadWorkOrder(ctx, txn, key)
			if err != nil {
				return err
			}
			if filter.Match(wo) {
				out = append(out, wo)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing work orders: %w", err)
	}
	production.SortWorkOrders(out)
	return out, nil
}

// UpdateWorkOrder replaces the stored work order if it is still at
// wo.Version and inserts the appended readings in the same transaction.
func (s *Store) UpdateWorkOrder(ctx context.Context, wo *production.WorkOrder, appended ...production.CCPReading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		var stored production.WorkOrder
		if err := getJSON(txn, workOrderKey(wo.ID), &stored); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("work order %s: %w", wo.ID, production.ErrNotFound)
			}
			return err
		}
		if stored.Version != wo.Version {
			return fmt.Errorf("work order %s at version %d, write based on %d: %w",
				wo.Code, stored.Version, wo.Version, production.ErrConcurrentModification)
		}

		for _, r := range appended {
			seq, err := countKeys(txn, readingPrefix(r.JobCardID))
			if err != nil {
				return err
			}
			if err := setJSON(txn, readingKey(r.JobCardID, seq+1), r); err != nil {
				return err
			}
		}

		next := stripReadings(wo)
		next.Version = wo.Version + 1
		return setJSON(txn, workOrderKey(wo.ID), next)
	})
	if err != nil {
		return fmt.Errorf("updating work order %s: %w", wo.Code, conflict(err))
	}
	wo.Version++
	s.logger.Debug("Updated work order", "code", wo.Code, "status", wo.Status, "version", wo.Version, "appended", len(appended))
	return nil
}

func loadWorkOrder(ctx context.Context, txn *badger.Txn, key []byte) (*production.WorkOrder, error) {
	var wo production.WorkOrder
	if err := getJSON(txn, key, &wo); err != nil {
		return nil, err
	}
	for i := range wo.JobCards {
		jc := &wo.JobCards[i]
		jc.Readings = []production.CCPReading{}
		err := scan(ctx, txn, readingPrefix(jc.ID), func(val []byte) error {
			var r production.CCPReading
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			jc.Readings = append(jc.Readings, r)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return &wo, nil
}

func stripReadings(wo *production.WorkOrder) *production.WorkOrder {
	out := wo.Clone()
	for i := range out.JobCards {
		out.JobCards[i].Readings = nil
	}
	return out
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// scan calls fn with every value under prefix, in key order.
func scan(ctx context.Context, txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

func scanKeys(ctx context.Context, txn *badger.Txn, prefix []byte, fn func(key []byte)) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(it.Item().KeyCopy(nil))
	}
	return nil
}

func countKeys(txn *badger.Txn, prefix []byte) (int, error) {
	n := 0
	err := scanKeys(context.Background(), txn, prefix, func([]byte) { n++ })
	return n, err
}

// conflict folds badger's transaction conflict into the domain sentinel.
func conflict(err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %w", production.ErrConcurrentModification, err)
	}
	return err
}

// badgerLogger routes badger's printf-style logs into the node logger.
type badgerLogger struct {
	logger cmtlog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(trim(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Info(trim(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(trim(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(trim(fmt.Sprintf(format, args...)))
}

func trim(s string) string {
	return strings.TrimRight(s, "\n")
}
