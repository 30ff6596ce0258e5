package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ahmadzakiakmal/ccp-production/production"
	"github.com/ahmadzakiakmal/ccp-production/repository/models"
)

// PostgreSQL error codes
const (
	PgErrForeignKeyViolation = "23503"
	PgErrUniqueViolation     = "23505"
)

// RepositoryError represents repository layer errors
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
	Err     error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Detail)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// Compile-time interface check.
var _ production.Store = (*Repository)(nil)

// Repository is the PostgreSQL production store
type Repository struct {
	db     *gorm.DB
	logger cmtlog.Logger
}

// NewRepository creates a new repository instance
func NewRepository(logger cmtlog.Logger) *Repository {
	return &Repository{logger: logger}
}

// ConnectDB establishes the database connection, retrying while the
// database container comes up
func (r *Repository) ConnectDB(dsn string, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		r.logger.Info("Database connection attempt", "attempt", i+1)
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			r.logger.Error("Connection attempt failed", "attempt", i+1, "err", err)
			time.Sleep(2 * time.Second)
			continue
		}
		r.db = db
		r.logger.Info("Connected to database")
		return nil
	}
	return fmt.Errorf("failed to connect to database after %d attempts", attempts)
}

// Close releases the connection pool
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate performs database schema migrations
func (r *Repository) Migrate() error {
	r.logger.Info("Running database migrations")

	migrator := r.db.Migrator()

	// Order matters due to foreign keys
	tables := []interface{}{
		&models.Recipe{},
		&models.Operation{},
		&models.WorkOrder{},
		&models.JobCard{},
		&models.CCPReading{},
	}

	for _, table := range tables {
		if !migrator.HasTable(table) {
			if err := migrator.CreateTable(table); err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}
		}
	}

	r.logger.Info("Database migrations completed")
	return nil
}

// ListRecipes returns every recipe with its operations
func (r *Repository) ListRecipes(ctx context.Context) ([]*production.Recipe, error) {
	var rows []models.Recipe
	err := r.db.WithContext(ctx).
		Preload("Operations", orderBy("sequence ASC")).
		Order("code ASC, version ASC").
		Find(&rows).Error
	if err != nil {
		return nil, dbError("Failed to list recipes", err)
	}

	recipes := make([]*production.Recipe, 0, len(rows))
	for i := range rows {
		recipes = append(recipes, recipeFromModel(&rows[i]))
	}
	return recipes, nil
}

// GetRecipe retrieves a recipe by ID
func (r *Repository) GetRecipe(ctx context.Context, id string) (*production.Recipe, error) {
	var row models.Recipe
	err := r.db.WithContext(ctx).
		Preload("Operations", orderBy("sequence ASC")).
		Where("recipe_id = ?", id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Recipe", id)
		}
		return nil, dbError("Database error", err)
	}
	return recipeFromModel(&row), nil
}

// SaveRecipe inserts or replaces a recipe and its operations
func (r *Repository) SaveRecipe(ctx context.Context, recipe *production.Recipe) error {
	row := recipeToModel(recipe)
	dbTx := r.db.WithContext(ctx).Begin()

	if err := dbTx.Where("recipe_id = ?", row.ID).Delete(&models.Operation{}).Error; err != nil {
		dbTx.Rollback()
		return dbError("Failed to replace recipe operations", err)
	}
	if err := dbTx.Omit(clause.Associations).Save(&row).Error; err != nil {
		dbTx.Rollback()
		return dbError("Failed to save recipe", err)
	}
	if len(row.Operations) > 0 {
		if err := dbTx.Create(&row.Operations).Error; err != nil {
			dbTx.Rollback()
			return dbError("Failed to create recipe operations", err)
		}
	}

	if err := dbTx.Commit().Error; err != nil {
		return &RepositoryError{
			Code:    "COMMIT_FAILED",
			Message: "Failed to commit transaction",
			Detail:  err.Error(),
			Err:     err,
		}
	}

	r.logger.Debug("Saved recipe", "code", recipe.Code, "version", recipe.Version, "operations", len(row.Operations))
	return nil
}

// NextWorkOrderSeq derives the next daily sequence from the codes already
// issued that day. Two sessions racing for the same number collide on the
// unique code index and one of them gets a conflict.
func (r *Repository) NextWorkOrderSeq(ctx context.Context, day time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WorkOrder{}).
		Where("code LIKE ?", production.WorkOrderCodePrefix(day)+"%").
		Count(&count).Error
	if err != nil {
		return 0, dbError("Failed to count work orders", err)
	}
	return int(count) + 1, nil
}

// CreateWorkOrder inserts a work order and its job cards at version 1
func (r *Repository) CreateWorkOrder(ctx context.Context, wo *production.WorkOrder) error {
	wo.Version = 1
	row := workOrderToModel(wo)
	dbTx := r.db.WithContext(ctx).Begin()

	if err := dbTx.Omit(clause.Associations).Create(&row).Error; err != nil {
		dbTx.Rollback()
		if isUniqueViolation(err) {
			return &RepositoryError{
				Code:    "CONFLICT",
				Message: "Work order already exists",
				Detail:  fmt.Sprintf("Work order %s or code %s already taken", wo.ID, wo.Code),
				Err:     production.ErrConcurrentModification,
			}
		}
		return dbError("Failed to create work order", err)
	}
	if len(row.JobCards) > 0 {
		if err := dbTx.Create(&row.JobCards).Error; err != nil {
			dbTx.Rollback()
			return dbError("Failed to create job cards", err)
		}
	}

	if err := dbTx.Commit().Error; err != nil {
		return &RepositoryError{
			Code:    "COMMIT_FAILED",
			Message: "Failed to commit transaction",
			Detail:  err.Error(),
			Err:     err,
		}
	}
	return nil
}

// GetWorkOrder retrieves a work order with job cards in sequence order and
// readings oldest first
func (r *Repository) GetWorkOrder(ctx context.Context, id string) (*production.WorkOrder, error) {
	var row models.WorkOrder
	err := preloadWorkOrder(r.db.WithContext(ctx)).
		Where("work_order_id = ?", id).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Work order", id)
		}
		return nil, dbError("Database error", err)
	}
	return r.toDomain(&row)
}

// ListWorkOrders returns the matching work orders, newest first
func (r *Repository) ListWorkOrders(ctx context.Context, filter production.WorkOrderFilter) ([]*production.WorkOrder, error) {
	q := preloadWorkOrder(r.db.WithContext(ctx))
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.RecipeID != "" {
		q = q.Where("recipe_id = ?", filter.RecipeID)
	}
	if !filter.PlannedFrom.IsZero() {
		q = q.Where("planned_date >= ?", filter.PlannedFrom)
	}
	if !filter.PlannedTo.IsZero() {
		q = q.Where("planned_date <= ?", filter.PlannedTo)
	}

	var rows []models.WorkOrder
	if err := q.Order("created_at DESC, code DESC").Find(&rows).Error; err != nil {
		return nil, dbError("Failed to list work orders", err)
	}

	orders := make([]*production.WorkOrder, 0, len(rows))
	for i := range rows {
		wo, err := r.toDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, wo)
	}
	return orders, nil
}

// UpdateWorkOrder writes the work order, its job cards and any appended
// readings in one transaction, conditional on the version it was read at
func (r *Repository) UpdateWorkOrder(ctx context.Context, wo *production.WorkOrder, appended ...production.CCPReading) error {
	dbTx := r.db.WithContext(ctx).Begin()

	res := dbTx.Model(&models.WorkOrder{}).
		Where("work_order_id = ? AND version = ?", wo.ID, wo.Version).
		Updates(workOrderColumns(wo))
	if res.Error != nil {
		dbTx.Rollback()
		return dbError("Failed to update work order", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		err := dbTx.Model(&models.WorkOrder{}).Where("work_order_id = ?", wo.ID).Count(&count).Error
		dbTx.Rollback()
		if err != nil {
			return dbError("Database error", err)
		}
		if count == 0 {
			return notFound("Work order", wo.ID)
		}
		return &RepositoryError{
			Code:    "CONFLICT",
			Message: "Work order was modified concurrently",
			Detail:  fmt.Sprintf("Work order %s is no longer at version %d", wo.Code, wo.Version),
			Err:     production.ErrConcurrentModification,
		}
	}

	for i := range wo.JobCards {
		jc := &wo.JobCards[i]
		err := dbTx.Model(&models.JobCard{}).
			Where("job_card_id = ?", jc.ID).
			Updates(jobCardColumns(jc)).Error
		if err != nil {
			dbTx.Rollback()
			return dbError("Failed to update job card", err)
		}
	}

	seqs := readingSeqs(wo)
	for i := range appended {
		row, err := readingToModel(&appended[i], seqs[appended[i].ID])
		if err != nil {
			dbTx.Rollback()
			return &RepositoryError{Code: "ENCODE_FAILED", Message: "Failed to encode reading", Detail: err.Error(), Err: err}
		}
		if err := dbTx.Create(&row).Error; err != nil {
			dbTx.Rollback()
			if isUniqueViolation(err) {
				return &RepositoryError{
					Code:    "CONFLICT",
					Message: "Reading already recorded",
					Detail:  fmt.Sprintf("Reading %d of job card %s exists", row.Seq, row.JobCardID),
					Err:     production.ErrConcurrentModification,
				}
			}
			return dbError("Failed to create reading", err)
		}
	}

	if err := dbTx.Commit().Error; err != nil {
		return &RepositoryError{
			Code:    "COMMIT_FAILED",
			Message: "Failed to commit transaction",
			Detail:  err.Error(),
			Err:     err,
		}
	}
	wo.Version++
	return nil
}

func (r *Repository) toDomain(row *models.WorkOrder) (*production.WorkOrder, error) {
	wo, err := workOrderFromModel(row)
	if err != nil {
		return nil, &RepositoryError{
			Code:    "DECODE_FAILED",
			Message: "Failed to decode work order",
			Detail:  fmt.Sprintf("Work order %s: %v", row.Code, err),
			Err:     err,
		}
	}
	return wo, nil
}

func preloadWorkOrder(db *gorm.DB) *gorm.DB {
	return db.
		Preload("JobCards", orderBy("sequence ASC")).
		Preload("JobCards.Readings", orderBy("seq ASC"))
}

func orderBy(order string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(order)
	}
}

// readingSeqs numbers every reading by its position in its job card's
// history, starting at 1.
func readingSeqs(wo *production.WorkOrder) map[string]int {
	seqs := make(map[string]int)
	for _, jc := range wo.JobCards {
		for i, rd := range jc.Readings {
			seqs[rd.ID] = i + 1
		}
	}
	return seqs
}

func notFound(what, id string) *RepositoryError {
	return &RepositoryError{
		Code:    "NOT_FOUND",
		Message: what + " not found",
		Detail:  fmt.Sprintf("%s %s does not exist", what, id),
		Err:     production.ErrNotFound,
	}
}

func dbError(message string, err error) *RepositoryError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &RepositoryError{Code: "TIMEOUT", Message: message, Detail: err.Error(), Err: err}
	}
	return &RepositoryError{
		Code:    "DATABASE_ERROR",
		Message: message,
		Detail:  err.Error(),
		Err:     err,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == PgErrUniqueViolation
}
