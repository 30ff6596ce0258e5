package repository

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/ahmadzakiakmal/ccp-production/ccp"
	"github.com/ahmadzakiakmal/ccp-production/production"
	"github.com/ahmadzakiakmal/ccp-production/repository/models"
)

type criterionColumns struct {
	Type        *string
	MinTemp     *float64
	HoldingTime *int
	Notes       string
}

func splitCriterion(c *ccp.Criterion) criterionColumns {
	if c == nil {
		return criterionColumns{}
	}
	typ := string(c.Type)
	c = c.Clone()
	return criterionColumns{Type: &typ, MinTemp: c.MinTemp, HoldingTime: c.HoldingTime, Notes: c.Notes}
}

func (cc criterionColumns) criterion() *ccp.Criterion {
	if cc.Type == nil {
		return nil
	}
	return (&ccp.Criterion{
		Type:        ccp.CriterionType(*cc.Type),
		MinTemp:     cc.MinTemp,
		HoldingTime: cc.HoldingTime,
		Notes:       cc.Notes,
	}).Clone()
}

func recipeToModel(r *production.Recipe) models.Recipe {
	m := models.Recipe{
		ID:            r.ID,
		Code:          r.Code,
		Name:          r.Name,
		Version:       r.Version,
		Status:        string(r.Status),
		BatchSize:     r.BatchSize,
		Unit:          r.Unit,
		OutputItem:    r.OutputItem,
		ExpectedYield: r.ExpectedYield,
		Operations:    make([]models.Operation, 0, len(r.Operations)),
	}
	for _, op := range r.Operations {
		cc := splitCriterion(op.Criterion)
		m.Operations = append(m.Operations, models.Operation{
			RecipeID:       r.ID,
			Code:           op.Code,
			Name:           op.Name,
			Sequence:       op.Sequence,
			IsCCP:          op.IsCCP,
			CriterionType:  cc.Type,
			MinTemp:        cc.MinTemp,
			HoldingTime:    cc.HoldingTime,
			CriterionNotes: cc.Notes,
		})
	}
	return m
}

func recipeFromModel(m *models.Recipe) *production.Recipe {
	r := &production.Recipe{
		ID:            m.ID,
		Code:          m.Code,
		Name:          m.Name,
		Version:       m.Version,
		Status:        production.RecipeStatus(m.Status),
		BatchSize:     m.BatchSize,
		Unit:          m.Unit,
		OutputItem:    m.OutputItem,
		ExpectedYield: m.ExpectedYield,
		Operations:    make([]production.Operation, 0, len(m.Operations)),
	}
	for _, op := range m.Operations {
		cc := criterionColumns{Type: op.CriterionType, MinTemp: op.MinTemp, HoldingTime: op.HoldingTime, Notes: op.CriterionNotes}
		r.Operations = append(r.Operations, production.Operation{
			Code:      op.Code,
			Name:      op.Name,
			Sequence:  op.Sequence,
			IsCCP:     op.IsCCP,
			Criterion: cc.criterion(),
		})
	}
	return r
}

// workOrderToModel maps the aggregate to rows. Readings are left out: they
// are written on their own and only ever inserted.
func workOrderToModel(wo *production.WorkOrder) models.WorkOrder {
	m := models.WorkOrder{
		ID:            wo.ID,
		Code:          wo.Code,
		RecipeID:      wo.RecipeID,
		RecipeCode:    wo.RecipeCode,
		RecipeName:    wo.RecipeName,
		RecipeVersion: wo.RecipeVersion,
		BatchNo:       wo.BatchNo,
		PlannedQty:    wo.PlannedQty,
		PlannedDate:   wo.PlannedDate,
		Remarks:       wo.Remarks,
		Status:        string(wo.Status),
		CCPStatus:     string(wo.CCPStatus),
		CompletedQty:  wo.CompletedQty,
		Progress:      wo.Progress,
		CancelReason:  wo.CancelReason,
		CreatedAt:     wo.CreatedAt,
		UpdatedAt:     wo.UpdatedAt,
		ReleasedAt:    wo.ReleasedAt,
		StartedAt:     wo.StartedAt,
		CompletedAt:   wo.CompletedAt,
		CancelledAt:   wo.CancelledAt,
		Version:       wo.Version,
		JobCards:      make([]models.JobCard, 0, len(wo.JobCards)),
	}
	for i := range wo.JobCards {
		m.JobCards = append(m.JobCards, jobCardToModel(&wo.JobCards[i]))
	}
	return m
}

func jobCardToModel(jc *production.JobCard) models.JobCard {
	cc := splitCriterion(jc.Operation.Criterion)
	return models.JobCard{
		ID:             jc.ID,
		WorkOrderID:    jc.WorkOrderID,
		OperationCode:  jc.Operation.Code,
		OperationName:  jc.Operation.Name,
		Sequence:       jc.Operation.Sequence,
		IsCCP:          jc.IsCCP,
		CriterionType:  cc.Type,
		MinTemp:        cc.MinTemp,
		HoldingTime:    cc.HoldingTime,
		CriterionNotes: cc.Notes,
		Status:         string(jc.Status),
		CCPStatus:      string(jc.CCPStatus),
		Operator:       jc.Operator,
		StartedAt:      jc.StartedAt,
		CompletedAt:    jc.CompletedAt,
		CompletedQty:   jc.CompletedQty,
	}
}

// jobCardColumns is the mutable part of a job card row.
func jobCardColumns(jc *production.JobCard) map[string]interface{} {
	return map[string]interface{}{
		"status":        string(jc.Status),
		"ccp_status":    string(jc.CCPStatus),
		"operator":      jc.Operator,
		"started_at":    jc.StartedAt,
		"completed_at":  jc.CompletedAt,
		"completed_qty": jc.CompletedQty,
	}
}

// workOrderColumns is the mutable part of a work order row, with the
// version bumped.
func workOrderColumns(wo *production.WorkOrder) map[string]interface{} {
	return map[string]interface{}{
		"status":        string(wo.Status),
		"ccp_status":    string(wo.CCPStatus),
		"completed_qty": wo.CompletedQty,
		"progress":      wo.Progress,
		"remarks":       wo.Remarks,
		"cancel_reason": wo.CancelReason,
		"updated_at":    wo.UpdatedAt,
		"released_at":   wo.ReleasedAt,
		"started_at":    wo.StartedAt,
		"completed_at":  wo.CompletedAt,
		"cancelled_at":  wo.CancelledAt,
		"version":       wo.Version + 1,
	}
}

func workOrderFromModel(m *models.WorkOrder) (*production.WorkOrder, error) {
	wo := &production.WorkOrder{
		ID:            m.ID,
		Code:          m.Code,
		RecipeID:      m.RecipeID,
		RecipeCode:    m.RecipeCode,
		RecipeName:    m.RecipeName,
		RecipeVersion: m.RecipeVersion,
		BatchNo:       m.BatchNo,
		PlannedQty:    m.PlannedQty,
		PlannedDate:   m.PlannedDate,
		Remarks:       m.Remarks,
		Status:        production.WorkOrderStatus(m.Status),
		CCPStatus:     production.CCPStatus(m.CCPStatus),
		CompletedQty:  m.CompletedQty,
		Progress:      m.Progress,
		CancelReason:  m.CancelReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		ReleasedAt:    m.ReleasedAt,
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
		CancelledAt:   m.CancelledAt,
		Version:       m.Version,
		JobCards:      make([]production.JobCard, 0, len(m.JobCards)),
	}
	for _, jm := range m.JobCards {
		jc, err := jobCardFromModel(&jm)
		if err != nil {
			return nil, err
		}
		wo.JobCards = append(wo.JobCards, jc)
	}
	return wo, nil
}

func jobCardFromModel(m *models.JobCard) (production.JobCard, error) {
	cc := criterionColumns{Type: m.CriterionType, MinTemp: m.MinTemp, HoldingTime: m.HoldingTime, Notes: m.CriterionNotes}
	jc := production.JobCard{
		ID:          m.ID,
		WorkOrderID: m.WorkOrderID,
		Operation: production.Operation{
			Code:      m.OperationCode,
			Name:      m.OperationName,
			Sequence:  m.Sequence,
			IsCCP:     m.IsCCP,
			Criterion: cc.criterion(),
		},
		IsCCP:        m.IsCCP,
		Status:       production.JobCardStatus(m.Status),
		CCPStatus:    production.CCPStatus(m.CCPStatus),
		Operator:     m.Operator,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
		CompletedQty: m.CompletedQty,
		Readings:     make([]production.CCPReading, 0, len(m.Readings)),
	}
	for _, rm := range m.Readings {
		r, err := readingFromModel(&rm)
		if err != nil {
			return production.JobCard{}, err
		}
		jc.Readings = append(jc.Readings, r)
	}
	return jc, nil
}

func readingToModel(r *production.CCPReading, seq int) (models.CCPReading, error) {
	reasons := r.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	raw, err := json.Marshal(reasons)
	if err != nil {
		return models.CCPReading{}, err
	}
	return models.CCPReading{
		ID:          r.ID,
		JobCardID:   r.JobCardID,
		Seq:         seq,
		Temperature: r.Temperature,
		HoldingTime: r.HoldingTime,
		Operator:    r.Operator,
		Notes:       r.Notes,
		Verdict:     string(r.Verdict),
		Reasons:     datatypes.JSON(raw),
		RecordedAt:  r.RecordedAt,
	}, nil
}

func readingFromModel(m *models.CCPReading) (production.CCPReading, error) {
	var reasons []string
	if len(m.Reasons) > 0 {
		if err := json.Unmarshal(m.Reasons, &reasons); err != nil {
			return production.CCPReading{}, err
		}
	}
	if len(reasons) == 0 {
		reasons = nil
	}
	return production.CCPReading{
		ID:          m.ID,
		JobCardID:   m.JobCardID,
		Temperature: m.Temperature,
		HoldingTime: m.HoldingTime,
		Operator:    m.Operator,
		Notes:       m.Notes,
		Verdict:     ccp.Verdict(m.Verdict),
		Reasons:     reasons,
		RecordedAt:  m.RecordedAt,
	}, nil
}
