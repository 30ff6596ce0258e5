package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/ahmadzakiakmal/ccp-production/srvreg"
)

const maxBodyBytes = 1 << 20

// WebServer serves the production API
type WebServer struct {
	httpAddr        string
	server          *http.Server
	serviceRegistry *srvreg.ServiceRegistry
	startTime       time.Time
	info            srvreg.NodeInfo
	logger          cmtlog.Logger
}

// NewWebServer creates a new web server
func NewWebServer(httpPort string, serviceRegistry *srvreg.ServiceRegistry, info srvreg.NodeInfo, logger cmtlog.Logger) *WebServer {
	mux := http.NewServeMux()

	ws := &WebServer{
		httpAddr: ":" + httpPort,
		server: &http.Server{
			Addr:              ":" + httpPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		serviceRegistry: serviceRegistry,
		startTime:       time.Now(),
		info:            info,
		logger:          logger,
	}

	// Register routes
	mux.HandleFunc("/", ws.handleRoot)
	mux.HandleFunc("/info", ws.handleAPI)
	mux.HandleFunc("/recipes", ws.handleAPI)
	mux.HandleFunc("/recipes/", ws.handleAPI)
	mux.HandleFunc("/work-orders", ws.handleAPI)
	mux.HandleFunc("/work-orders/", ws.handleAPI)

	return ws
}

// Handler exposes the route table, for tests and embedding
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info("Starting production web server", "plant", ws.info.PlantID, "node", ws.info.NodeID, "addr", ws.httpAddr)

	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("Web server error", "err", err)
		}
	}()

	ws.logger.Info("Web server started")
	return nil
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("Shutting down web server")
	return ws.server.Shutdown(ctx)
}

// handleRoot shows node information
func (ws *WebServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		jsonError(w, "Not found", http.StatusNotFound)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(ws.startTime).Round(time.Second)

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)

	html := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <title>CCP Production - %s</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; background: #f5f5f5; }
        .container { background: white; padding: 30px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #2c7a4b; margin-top: 0; }
        .label { font-weight: bold; color: #555; }
        .value { color: #333; margin-left: 10px; }
        .endpoint { background: #f8f9fa; padding: 10px; margin: 8px 0; border-radius: 4px; font-family: monospace; }
        .method { font-weight: bold; color: #007bff; margin-right: 10px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Production Node</h1>
        <div><span class="label">Plant:</span><span class="value">%s</span></div>
        <div><span class="label">Node:</span><span class="value">%s</span></div>
        <div><span class="label">Store:</span><span class="value">%s</span></div>
        <div><span class="label">Uptime:</span><span class="value">%s</span></div>

        <h3>Endpoints</h3>
        <div class="endpoint"><span class="method">GET</span>/recipes</div>
        <div class="endpoint"><span class="method">GET</span>/work-orders?status=&amp;recipe_id=&amp;planned_from=&amp;planned_to=</div>
        <div class="endpoint"><span class="method">POST</span>/work-orders</div>
        <div class="endpoint"><span class="method">POST</span>/work-orders/:id/{release,start,complete,cancel}</div>
        <div class="endpoint"><span class="method">POST</span>/work-orders/:id/job-cards/:jc/{start,readings,complete}</div>
    </div>
</body>
</html>
	`, ws.info.PlantID, ws.info.PlantID, ws.info.NodeID, ws.info.StoreDriver, uptime)

	w.Write([]byte(html))
}

// handleAPI routes every API request through the service registry
func (ws *WebServer) handleAPI(w http.ResponseWriter, r *http.Request) {
	bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		jsonError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	req := &srvreg.Request{
		Context: r.Context(),
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Body:    string(bodyBytes),
	}

	start := time.Now()
	response, err := req.GenerateResponse(ws.serviceRegistry)
	if err != nil {
		ws.logger.Error("Error generating response", "method", r.Method, "path", r.URL.Path, "err", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	ws.logger.Debug("Handled request", "method", r.Method, "path", r.URL.Path, "status", response.StatusCode, "took", time.Since(start))

	writeResponse(w, response)
}

// writeResponse writes a Response to http.ResponseWriter
func writeResponse(w http.ResponseWriter, resp *srvreg.Response) {
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(resp.Body))
}

// jsonError writes a JSON error response
func jsonError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(srvreg.ErrorBody{Error: message, Code: "HTTP_ERROR"})
}
