package srvreg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/ahmadzakiakmal/ccp-production/production"
)

// Request represents an incoming HTTP request
type Request struct {
	Context context.Context
	Method  string
	Path    string
	Query   url.Values
	Body    string

	// Params holds the values of :name segments of the matched route
	Params map[string]string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// HandlerFunc is a function that handles a request
type HandlerFunc func(*Request) (*Response, error)

// NodeInfo identifies the node in /info
type NodeInfo struct {
	PlantID     string `json:"plant_id"`
	NodeID      string `json:"node_id"`
	StoreDriver string `json:"store"`
}

// ServiceRegistry manages all service handlers
type ServiceRegistry struct {
	handlers    map[string]map[string]HandlerFunc
	coordinator *production.Coordinator
	info        NodeInfo
	logger      cmtlog.Logger
}

var defaultHeaders = map[string]string{
	"Content-Type": "application/json",
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(coordinator *production.Coordinator, info NodeInfo, logger cmtlog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		handlers:    make(map[string]map[string]HandlerFunc),
		coordinator: coordinator,
		info:        info,
		logger:      logger,
	}
}

// RegisterHandler registers a handler for a specific method and path
func (sr *ServiceRegistry) RegisterHandler(method, path string, handler HandlerFunc) {
	if sr.handlers[method] == nil {
		sr.handlers[method] = make(map[string]HandlerFunc)
	}
	sr.handlers[method][path] = handler
	sr.logger.Debug("Registered handler", "method", method, "path", path)
}

// GetHandlerForPath finds the handler for a given method and path, with the
// path parameters it bound
func (sr *ServiceRegistry) GetHandlerForPath(method, path string) (HandlerFunc, map[string]string, bool) {
	methodHandlers, exists := sr.handlers[method]
	if !exists {
		return nil, nil, false
	}

	// Try exact match first
	if handler, exists := methodHandlers[path]; exists {
		return handler, map[string]string{}, true
	}

	// Try pattern matching for paths with parameters
	for pattern, handler := range methodHandlers {
		if params, ok := matchPath(pattern, path); ok {
			return handler, params, true
		}
	}

	return nil, nil, false
}

// matchPath checks if a path matches a pattern with parameters.
// It supports patterns like "/work-orders/:id" matching "/work-orders/123"
func matchPath(pattern, path string) (map[string]string, bool) {
	patternParts := strings.Split(strings.TrimSuffix(pattern, "/"), "/")
	pathParts := strings.Split(strings.TrimSuffix(path, "/"), "/")

	if len(patternParts) != len(pathParts) {
		return nil, false
	}

	params := make(map[string]string)
	for i := 0; i < len(patternParts); i++ {
		if strings.HasPrefix(patternParts[i], ":") {
			if pathParts[i] == "" {
				return nil, false
			}
			params[patternParts[i][1:]] = pathParts[i]
			continue
		}
		if patternParts[i] != pathParts[i] {
			return nil, false
		}
	}

	return params, true
}

// RegisterDefaultServices sets up all default endpoints
func (sr *ServiceRegistry) RegisterDefaultServices() {
	sr.logger.Info("Registering production services")

	// Info endpoints
	sr.RegisterHandler("GET", "/info", sr.InfoHandler)

	// Recipe endpoints
	sr.RegisterHandler("GET", "/recipes", sr.ListRecipesHandler)
	sr.RegisterHandler("GET", "/recipes/:id", sr.GetRecipeHandler)
	sr.RegisterHandler("GET", "/recipes/:id/operations", sr.ListOperationsHandler)

	// Work order endpoints
	sr.RegisterHandler("GET", "/work-orders", sr.ListWorkOrdersHandler)
	sr.RegisterHandler("POST", "/work-orders", sr.CreateWorkOrderHandler)
	sr.RegisterHandler("GET", "/work-orders/:id", sr.GetWorkOrderHandler)
	sr.RegisterHandler("POST", "/work-orders/:id/release", sr.ReleaseWorkOrderHandler)
	sr.RegisterHandler("POST", "/work-orders/:id/start", sr.StartWorkOrderHandler)
	sr.RegisterHandler("POST", "/work-orders/:id/complete", sr.CompleteWorkOrderHandler)
	sr.RegisterHandler("POST", "/work-orders/:id/cancel", sr.CancelWorkOrderHandler)

	// Job card endpoints
	sr.RegisterHandler("POST", "/work-orders/:id/job-cards/:jc/start", sr.StartJobCardHandler)
	sr.RegisterHandler("POST", "/work-orders/:id/job-cards/:jc/readings", sr.RecordReadingHandler)
	sr.RegisterHandler("GET", "/work-orders/:id/job-cards/:jc/readings", sr.ListReadingsHandler)
	sr.RegisterHandler("POST", "/work-orders/:id/job-cards/:jc/complete", sr.CompleteJobCardHandler)

	sr.logger.Info("All services registered")
}

// GenerateResponse executes the request and generates a response
func (req *Request) GenerateResponse(services *ServiceRegistry) (*Response, error) {
	handler, params, found := services.GetHandlerForPath(req.Method, req.Path)

	if !found {
		return jsonResponse(http.StatusNotFound, ErrorBody{
			Error: fmt.Sprintf("Service not found for %s %s", req.Method, req.Path),
			Code:  "ROUTE_NOT_FOUND",
		}), nil
	}
	if req.Context == nil {
		req.Context = context.Background()
	}
	req.Params = params

	return handler(req)
}

// ErrorBody is the JSON body of every failed request
type ErrorBody struct {
	Error    string   `json:"error"`
	Code     string   `json:"code"`
	JobCards []string `json:"job_cards,omitempty"`
}

// errorCodes names each error kind on the wire.
var errorCodes = []struct {
	kind   error
	code   string
	status int
}{
	{production.ErrValidation, "VALIDATION", http.StatusUnprocessableEntity},
	{production.ErrMissingMeasurement, "MISSING_MEASUREMENT", http.StatusUnprocessableEntity},
	{production.ErrRecipeConfig, "RECIPE_CONFIG", http.StatusUnprocessableEntity},
	{production.ErrInvalidTransition, "INVALID_TRANSITION", http.StatusConflict},
	{production.ErrCCPGateBlocked, "CCP_GATE_BLOCKED", http.StatusConflict},
	{production.ErrIncompleteJobCards, "INCOMPLETE_JOB_CARDS", http.StatusConflict},
	{production.ErrConcurrentModification, "CONCURRENT_MODIFICATION", http.StatusConflict},
	{production.ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{production.ErrPersistence, "PERSISTENCE", http.StatusServiceUnavailable},
}

// KindForCode maps a wire error code back to its error kind, or nil.
func KindForCode(code string) error {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.kind
		}
	}
	return nil
}

// errorResponse renders a coordinator error with its status code
func errorResponse(err error) *Response {
	kind := production.KindOf(err)
	body := ErrorBody{Error: err.Error(), Code: "INTERNAL"}
	status := http.StatusInternalServerError
	for _, ec := range errorCodes {
		if ec.kind == kind {
			body.Code = ec.code
			status = ec.status
			break
		}
	}

	var perr *production.Error
	if errors.As(err, &perr) {
		body.JobCards = perr.JobCards
	}
	return jsonResponse(status, body)
}

func badRequest(format string, args ...interface{}) *Response {
	return jsonResponse(http.StatusBadRequest, ErrorBody{Error: fmt.Sprintf(format, args...), Code: "BAD_REQUEST"})
}

func jsonResponse(status int, v interface{}) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		return &Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    defaultHeaders,
			Body:       fmt.Sprintf(`{"error":"failed to encode response: %s","code":"INTERNAL"}`, err.Error()),
		}
	}
	return &Response{
		StatusCode: status,
		Headers:    defaultHeaders,
		Body:       string(body),
	}
}
