package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Recipe is a versioned production recipe
type Recipe struct {
	ID            string          `gorm:"column:recipe_id;primaryKey;type:varchar(50)"`
	Code          string          `gorm:"column:code;type:varchar(50);uniqueIndex:idx_recipe_code_version;not null"`
	Name          string          `gorm:"column:name;type:varchar(255);not null"`
	Version       int             `gorm:"column:version;uniqueIndex:idx_recipe_code_version;not null"`
	Status        string          `gorm:"column:status;type:varchar(20);not null"` // DRAFT, ACTIVE, OBSOLETE
	BatchSize     decimal.Decimal `gorm:"column:batch_size;type:numeric(20,4);not null"`
	Unit          string          `gorm:"column:unit;type:varchar(20)"`
	OutputItem    string          `gorm:"column:output_item;type:varchar(50);not null"`
	ExpectedYield decimal.Decimal `gorm:"column:expected_yield;type:numeric(20,4)"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	// Relationships
	Operations []Operation `gorm:"foreignKey:RecipeID;references:ID"`
}

func (Recipe) TableName() string { return "recipes" }

// Operation is one step of a recipe's routing
type Operation struct {
	RecipeID string `gorm:"column:recipe_id;primaryKey;type:varchar(50)"`
	Code     string `gorm:"column:code;primaryKey;type:varchar(50)"`
	Name     string `gorm:"column:name;type:varchar(255);not null"`
	Sequence int    `gorm:"column:sequence;not null"`
	IsCCP    bool   `gorm:"column:is_ccp;default:false"`

	// Pass criterion, set only when IsCCP
	CriterionType  *string  `gorm:"column:criterion_type;type:varchar(20)"` // TEMPERATURE, TIME, TEMP_TIME
	MinTemp        *float64 `gorm:"column:min_temp"`
	HoldingTime    *int     `gorm:"column:holding_time"`
	CriterionNotes string   `gorm:"column:criterion_notes;type:text"`
}

func (Operation) TableName() string { return "recipe_operations" }

// WorkOrder is a production run of one recipe
type WorkOrder struct {
	ID            string          `gorm:"column:work_order_id;primaryKey;type:varchar(50)"`
	Code          string          `gorm:"column:code;type:varchar(20);uniqueIndex;not null"`
	RecipeID      string          `gorm:"column:recipe_id;type:varchar(50);index;not null"`
	RecipeCode    string          `gorm:"column:recipe_code;type:varchar(50);not null"`
	RecipeName    string          `gorm:"column:recipe_name;type:varchar(255);not null"`
	RecipeVersion int             `gorm:"column:recipe_version;not null"`
	BatchNo       string          `gorm:"column:batch_no;type:varchar(20);not null"`
	PlannedQty    decimal.Decimal `gorm:"column:planned_qty;type:numeric(20,4);not null"`
	PlannedDate   time.Time       `gorm:"column:planned_date;index;not null"`
	Remarks       string          `gorm:"column:remarks;type:text"`
	Status        string          `gorm:"column:status;type:varchar(20);index;not null"`     // DRAFT, RELEASED, IN_PROGRESS, COMPLETED, CANCELLED
	CCPStatus     string          `gorm:"column:ccp_status;type:varchar(20);not null"`       // PENDING, PASSED, FAILED, NOT_REQUIRED
	CompletedQty  decimal.Decimal `gorm:"column:completed_qty;type:numeric(20,4);default:0"` // qty of the final operation
	Progress      int             `gorm:"column:progress;default:0"`
	CancelReason  string          `gorm:"column:cancel_reason;type:text"`
	CreatedAt     time.Time       `gorm:"column:created_at;index"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
	ReleasedAt    *time.Time      `gorm:"column:released_at"`
	StartedAt     *time.Time      `gorm:"column:started_at"`
	CompletedAt   *time.Time      `gorm:"column:completed_at"`
	CancelledAt   *time.Time      `gorm:"column:cancelled_at"`

	// Optimistic concurrency token
	Version int64 `gorm:"column:version;not null;default:1"`

	// Relationships
	JobCards []JobCard `gorm:"foreignKey:WorkOrderID;references:ID"`
}

func (WorkOrder) TableName() string { return "work_orders" }

// JobCard is the execution record of one operation within a work order.
// Operation fields are a snapshot taken when the work order was created.
type JobCard struct {
	ID             string   `gorm:"column:job_card_id;primaryKey;type:varchar(50)"`
	WorkOrderID    string   `gorm:"column:work_order_id;type:varchar(50);index;not null"`
	OperationCode  string   `gorm:"column:operation_code;type:varchar(50);not null"`
	OperationName  string   `gorm:"column:operation_name;type:varchar(255);not null"`
	Sequence       int      `gorm:"column:sequence;not null"`
	IsCCP          bool     `gorm:"column:is_ccp;default:false"`
	CriterionType  *string  `gorm:"column:criterion_type;type:varchar(20)"`
	MinTemp        *float64 `gorm:"column:min_temp"`
	HoldingTime    *int     `gorm:"column:holding_time"`
	CriterionNotes string   `gorm:"column:criterion_notes;type:text"`

	Status       string          `gorm:"column:status;type:varchar(20);not null"`     // PENDING, IN_PROGRESS, BLOCKED, COMPLETED
	CCPStatus    string          `gorm:"column:ccp_status;type:varchar(20);not null"` // PENDING, PASSED, FAILED, NOT_REQUIRED
	Operator     string          `gorm:"column:operator;type:varchar(100)"`
	StartedAt    *time.Time      `gorm:"column:started_at"`
	CompletedAt  *time.Time      `gorm:"column:completed_at"`
	CompletedQty decimal.Decimal `gorm:"column:completed_qty;type:numeric(20,4);default:0"`

	// Relationships
	Readings []CCPReading `gorm:"foreignKey:JobCardID;references:ID"`
}

func (JobCard) TableName() string { return "job_cards" }

// CCPReading is one recorded measurement attempt. Rows are insert-only.
type CCPReading struct {
	ID          string         `gorm:"column:reading_id;primaryKey;type:varchar(50)"`
	JobCardID   string         `gorm:"column:job_card_id;type:varchar(50);uniqueIndex:idx_reading_job_card_seq;not null"`
	Seq         int            `gorm:"column:seq;uniqueIndex:idx_reading_job_card_seq;not null"`
	Temperature *float64       `gorm:"column:temperature"`
	HoldingTime *int           `gorm:"column:holding_time"`
	Operator    string         `gorm:"column:operator;type:varchar(100);not null"`
	Notes       string         `gorm:"column:notes;type:text"`
	Verdict     string         `gorm:"column:verdict;type:varchar(10);not null"` // PASS, FAIL
	Reasons     datatypes.JSON `gorm:"column:reasons;type:jsonb"`                // JSON array of failed checks
	RecordedAt  time.Time      `gorm:"column:recorded_at;not null"`
}

func (CCPReading) TableName() string { return "ccp_readings" }
