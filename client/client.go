package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ahmadzakiakmal/ccp-production/production"
	"github.com/ahmadzakiakmal/ccp-production/srvreg"
)

// Client talks to a production node over HTTP
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// APIError is a non-2xx response from the node. It matches the production
// error kinds with errors.Is.
type APIError struct {
	StatusCode int
	Body       srvreg.ErrorBody
}

func (e *APIError) Error() string {
	if len(e.Body.JobCards) > 0 {
		return fmt.Sprintf("%d %s: %s (job cards: %s)", e.StatusCode, e.Body.Code, e.Body.Error, strings.Join(e.Body.JobCards, ", "))
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Body.Code, e.Body.Error)
}

// Is matches the error kind named by the response code.
func (e *APIError) Is(target error) bool {
	kind := srvreg.KindForCode(e.Body.Code)
	return kind != nil && kind == target
}

// NewClient creates a new client for the node at endpoint, e.g.
// "http://localhost:6000"
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListRecipes lists recipe summaries
func (c *Client) ListRecipes(ctx context.Context) ([]production.RecipeSummary, error) {
	var out []production.RecipeSummary
	return out, c.do(ctx, "GET", "/recipes", nil, &out)
}

// ListWorkOrders lists work orders matching filter, newest first
func (c *Client) ListWorkOrders(ctx context.Context, filter production.WorkOrderFilter) ([]production.WorkOrder, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.RecipeID != "" {
		q.Set("recipe_id", filter.RecipeID)
	}
	if !filter.PlannedFrom.IsZero() {
		q.Set("planned_from", filter.PlannedFrom.Format(time.RFC3339Nano))
	}
	if !filter.PlannedTo.IsZero() {
		q.Set("planned_to", filter.PlannedTo.Format(time.RFC3339Nano))
	}
	path := "/work-orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []production.WorkOrder
	return out, c.do(ctx, "GET", path, nil, &out)
}

// GetWorkOrder fetches one work order
func (c *Client) GetWorkOrder(ctx context.Context, id string) (*production.WorkOrder, error) {
	return c.workOrder(ctx, "GET", "/work-orders/"+url.PathEscape(id), nil)
}

// CreateWorkOrder creates a DRAFT work order
func (c *Client) CreateWorkOrder(ctx context.Context, body srvreg.CreateWorkOrderBody) (*production.WorkOrder, error) {
	return c.workOrder(ctx, "POST", "/work-orders", body)
}

// ReleaseWorkOrder releases a DRAFT work order
func (c *Client) ReleaseWorkOrder(ctx context.Context, id string) (*production.WorkOrder, error) {
	return c.workOrder(ctx, "POST", woPath(id, "release"), nil)
}

// StartWorkOrder starts a RELEASED work order
func (c *Client) StartWorkOrder(ctx context.Context, id string) (*production.WorkOrder, error) {
	return c.workOrder(ctx, "POST", woPath(id, "start"), nil)
}

// CompleteWorkOrder completes an IN_PROGRESS work order
func (c *Client) CompleteWorkOrder(ctx context.Context, id string) (*production.WorkOrder, error) {
	return c.workOrder(ctx, "POST", woPath(id, "complete"), nil)
}

// CancelWorkOrder cancels a work order
func (c *Client) CancelWorkOrder(ctx context.Context, id, reason string) (*production.WorkOrder, error) {
	return c.workOrder(ctx, "POST", woPath(id, "cancel"), srvreg.CancelBody{Reason: reason})
}

// StartJobCard starts a job card
func (c *Client) StartJobCard(ctx context.Context, woID, jcID, operator string) (*production.WorkOrder, error) {
	return c.workOrder(ctx, "POST", jcPath(woID, jcID, "start"), srvreg.StartJobCardBody{Operator: operator})
}

// RecordReading records a CCP reading
func (c *Client) RecordReading(ctx context.Context, woID, jcID string, in production.ReadingInput) (*production.ReadingResult, error) {
	var out production.ReadingResult
	if err := c.do(ctx, "POST", jcPath(woID, jcID, "readings"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Readings returns a job card's reading history
func (c *Client) Readings(ctx context.Context, woID, jcID string) ([]production.CCPReading, error) {
	var out []production.CCPReading
	return out, c.do(ctx, "GET", jcPath(woID, jcID, "readings"), nil, &out)
}

// CompleteJobCard completes a job card
func (c *Client) CompleteJobCard(ctx context.Context, woID, jcID string, qty decimal.Decimal) (*production.WorkOrder, error) {
	return c.workOrder(ctx, "POST", jcPath(woID, jcID, "complete"), srvreg.CompleteJobCardBody{CompletedQty: qty})
}

// HealthCheck checks that the node answers /info
func (c *Client) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	var info map[string]interface{}
	if err := c.do(ctx, "GET", "/info", nil, &info); err != nil {
		return nil, fmt.Errorf("node is unreachable: %w", err)
	}
	return info, nil
}

func woPath(id, action string) string {
	return "/work-orders/" + url.PathEscape(id) + "/" + action
}

func jcPath(woID, jcID, action string) string {
	return "/work-orders/" + url.PathEscape(woID) + "/job-cards/" + url.PathEscape(jcID) + "/" + action
}

func (c *Client) workOrder(ctx context.Context, method, path string, body interface{}) (*production.WorkOrder, error) {
	var wo production.WorkOrder
	if err := c.do(ctx, method, path, body, &wo); err != nil {
		return nil, err
	}
	return &wo, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, &apiErr.Body); err != nil || apiErr.Body.Error == "" {
			apiErr.Body = srvreg.ErrorBody{Error: strings.TrimSpace(string(respBody)), Code: http.StatusText(resp.StatusCode)}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
