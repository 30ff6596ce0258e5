package srvreg

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ahmadzakiakmal/ccp-production/production"
)

// plannedDateLayout is the date-only form accepted next to RFC 3339.
const plannedDateLayout = "2006-01-02"

// CreateWorkOrderBody is the body of POST /work-orders
type CreateWorkOrderBody struct {
	RecipeID    string          `json:"recipe_id"`
	PlannedQty  decimal.Decimal `json:"planned_qty"`
	PlannedDate string          `json:"planned_date,omitempty"`
	Remarks     string          `json:"remarks,omitempty"`
}

// CancelBody is the body of POST /work-orders/:id/cancel
type CancelBody struct {
	Reason string `json:"reason"`
}

// StartJobCardBody is the body of POST .../job-cards/:jc/start
type StartJobCardBody struct {
	Operator string `json:"operator"`
}

// CompleteJobCardBody is the body of POST .../job-cards/:jc/complete
type CompleteJobCardBody struct {
	CompletedQty decimal.Decimal `json:"completed_qty"`
}

// InfoHandler returns node information
func (sr *ServiceRegistry) InfoHandler(req *Request) (*Response, error) {
	info := map[string]interface{}{
		"plant_id":   sr.info.PlantID,
		"node_id":    sr.info.NodeID,
		"store":      sr.info.StoreDriver,
		"type":       "CCP Production Node",
		"status":     "active",
		"cached_wos": len(sr.coordinator.CachedWorkOrders()),
	}
	return jsonResponse(http.StatusOK, info), nil
}

// ListRecipesHandler lists recipe summaries
func (sr *ServiceRegistry) ListRecipesHandler(req *Request) (*Response, error) {
	recipes, err := sr.coordinator.ListRecipes(req.Context)
	if err != nil {
		return errorResponse(err), nil
	}
	summaries := make([]production.RecipeSummary, 0, len(recipes))
	for _, r := range recipes {
		summaries = append(summaries, r.Summary())
	}
	return jsonResponse(http.StatusOK, summaries), nil
}

// GetRecipeHandler returns one recipe with its operations
func (sr *ServiceRegistry) GetRecipeHandler(req *Request) (*Response, error) {
	recipe, err := sr.coordinator.GetRecipe(req.Context, req.Params["id"])
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, recipe), nil
}

// ListOperationsHandler returns a recipe's operations in sequence order
func (sr *ServiceRegistry) ListOperationsHandler(req *Request) (*Response, error) {
	ops, err := sr.coordinator.ListOperations(req.Context, req.Params["id"])
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, ops), nil
}

// ListWorkOrdersHandler lists work orders, newest first. Query parameters
// status, recipe_id, planned_from and planned_to narrow the list.
func (sr *ServiceRegistry) ListWorkOrdersHandler(req *Request) (*Response, error) {
	filter := production.WorkOrderFilter{
		Status:   production.WorkOrderStatus(strings.ToUpper(req.Query.Get("status"))),
		RecipeID: req.Query.Get("recipe_id"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return badRequest("unknown status %q", filter.Status), nil
	}
	var err error
	if filter.PlannedFrom, err = ParsePlannedDate(req.Query.Get("planned_from")); err != nil {
		return badRequest("invalid planned_from: %s", err.Error()), nil
	}
	if filter.PlannedTo, err = ParsePlannedDateEnd(req.Query.Get("planned_to")); err != nil {
		return badRequest("invalid planned_to: %s", err.Error()), nil
	}

	orders, err := sr.coordinator.ListWorkOrders(req.Context, filter)
	if err != nil {
		return errorResponse(err), nil
	}
	if orders == nil {
		orders = []*production.WorkOrder{}
	}
	return jsonResponse(http.StatusOK, orders), nil
}

// CreateWorkOrderHandler creates a DRAFT work order
func (sr *ServiceRegistry) CreateWorkOrderHandler(req *Request) (*Response, error) {
	var body CreateWorkOrderBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("Invalid request body: %s", err.Error()), nil
	}
	planned, err := ParsePlannedDate(body.PlannedDate)
	if err != nil {
		return badRequest("invalid planned_date: %s", err.Error()), nil
	}

	wo, err := sr.coordinator.CreateWorkOrder(req.Context, production.CreateWorkOrderInput{
		RecipeID:    body.RecipeID,
		PlannedQty:  body.PlannedQty,
		PlannedDate: planned,
		Remarks:     body.Remarks,
	})
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusCreated, wo), nil
}

// GetWorkOrderHandler returns one work order with its job cards
func (sr *ServiceRegistry) GetWorkOrderHandler(req *Request) (*Response, error) {
	wo, err := sr.coordinator.GetWorkOrder(req.Context, req.Params["id"])
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, wo), nil
}

// ReleaseWorkOrderHandler releases a DRAFT work order
func (sr *ServiceRegistry) ReleaseWorkOrderHandler(req *Request) (*Response, error) {
	return workOrderResult(sr.coordinator.ReleaseWorkOrder(req.Context, req.Params["id"]))
}

// StartWorkOrderHandler starts a RELEASED work order
func (sr *ServiceRegistry) StartWorkOrderHandler(req *Request) (*Response, error) {
	return workOrderResult(sr.coordinator.StartWorkOrder(req.Context, req.Params["id"]))
}

// CompleteWorkOrderHandler completes an IN_PROGRESS work order
func (sr *ServiceRegistry) CompleteWorkOrderHandler(req *Request) (*Response, error) {
	return workOrderResult(sr.coordinator.CompleteWorkOrder(req.Context, req.Params["id"]))
}

// CancelWorkOrderHandler cancels a work order with a reason
func (sr *ServiceRegistry) CancelWorkOrderHandler(req *Request) (*Response, error) {
	var body CancelBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("Invalid request body: %s", err.Error()), nil
	}
	return workOrderResult(sr.coordinator.CancelWorkOrder(req.Context, req.Params["id"], body.Reason))
}

// StartJobCardHandler starts a job card under an operator
func (sr *ServiceRegistry) StartJobCardHandler(req *Request) (*Response, error) {
	var body StartJobCardBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("Invalid request body: %s", err.Error()), nil
	}
	return workOrderResult(sr.coordinator.StartJobCard(req.Context, req.Params["id"], req.Params["jc"], body.Operator))
}

// RecordReadingHandler records a CCP reading. A failing reading is still a
// successful request; the verdict is in the body.
func (sr *ServiceRegistry) RecordReadingHandler(req *Request) (*Response, error) {
	var body production.ReadingInput
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("Invalid request body: %s", err.Error()), nil
	}
	result, err := sr.coordinator.RecordCCPReading(req.Context, req.Params["id"], req.Params["jc"], body)
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusCreated, result), nil
}

// ListReadingsHandler returns a job card's reading history, oldest first
func (sr *ServiceRegistry) ListReadingsHandler(req *Request) (*Response, error) {
	readings, err := sr.coordinator.JobCardReadings(req.Context, req.Params["id"], req.Params["jc"])
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, readings), nil
}

// CompleteJobCardHandler completes a job card with its output quantity
func (sr *ServiceRegistry) CompleteJobCardHandler(req *Request) (*Response, error) {
	var body CompleteJobCardBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("Invalid request body: %s", err.Error()), nil
	}
	return workOrderResult(sr.coordinator.CompleteJobCard(req.Context, req.Params["id"], req.Params["jc"], body.CompletedQty))
}

func workOrderResult(wo *production.WorkOrder, err error) (*Response, error) {
	if err != nil {
		return errorResponse(err), nil
	}
	return jsonResponse(http.StatusOK, wo), nil
}

// ParsePlannedDate accepts a bare date or an RFC 3339 timestamp. An empty
// string is the zero time.
func ParsePlannedDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(plannedDateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// ParsePlannedDateEnd is ParsePlannedDate for an inclusive upper bound: a bare
// date covers the whole day.
func ParsePlannedDateEnd(s string) (time.Time, error) {
	if t, err := time.Parse(plannedDateLayout, s); err == nil {
		return t.Add(24*time.Hour - time.Nanosecond), nil
	}
	return ParsePlannedDate(s)
}
