package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wakeuplight/internal/schedule"
	"wakeuplight/internal/shadowstate"
	"wakeuplight/internal/state"
	"wakeuplight/internal/wakeup"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	urlPlugin      = "plugin"
	requestTimeout = 30 * time.Second
	maxBodyBytes   = 1 << 16
)

// WakeUp is the part of the wake-up light the API drives
type WakeUp interface {
	Status() wakeup.Status
	Toggle(ctx context.Context, on bool, mode wakeup.Mode) error
	PowerDevice(ctx context.Context, on bool) error
	ScheduleEntries() []schedule.Entry
}

// Server provides HTTP API endpoints for the wake-up light
type Server struct {
	stateManager  *state.Manager
	wakeUp        WakeUp
	shadowTracker *shadowstate.Tracker
	logger        *zap.Logger
	router        *mux.Router
	server        *http.Server
}

// NewServer creates a new API server
func NewServer(stateManager *state.Manager, wakeUp WakeUp, shadowTracker *shadowstate.Tracker, logger *zap.Logger, port int) *Server {
	s := &Server{
		stateManager:  stateManager,
		wakeUp:        wakeUp,
		shadowTracker: shadowTracker,
		logger:        logger.Named("api"),
		router:        mux.NewRouter(),
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: http.MethodGet, Description: "This sitemap - lists all available API endpoints"},
	{Path: "/health", Method: http.MethodGet, Description: "Health check endpoint - returns {\"status\": \"ok\"}"},
	{Path: "/api/state", Method: http.MethodGet, Description: "Get all helper variables (booleans, numbers, strings)"},
	{Path: "/api/wakeup", Method: http.MethodGet, Description: "Get the wake-up light status"},
	{Path: "/api/wakeup", Method: http.MethodPost, Description: "Start or stop the wake-up light: {\"state\": true, \"mode\": \"manual|schedule\"}"},
	{Path: "/api/wakeup/power", Method: http.MethodPost, Description: "Switch the lamp without touching the sequence: {\"state\": false}"},
	{Path: "/api/schedule", Method: http.MethodGet, Description: "Get the next scheduled wake-ups"},
	{Path: "/api/shadow", Method: http.MethodGet, Description: "Get the shadow state of all plugins"},
	{Path: "/api/shadow/{plugin}", Method: http.MethodGet, Description: "Get the shadow state of one plugin"},
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/", s.handleSitemap).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// API routes stay on the root router so a known path with the wrong
	// method answers 405, not 404
	s.router.HandleFunc("/api/state", s.handleGetState).Methods(http.MethodGet)
	s.router.HandleFunc("/api/wakeup", s.handleGetWakeUp).Methods(http.MethodGet)
	s.router.HandleFunc("/api/wakeup", s.handleToggleWakeUp).Methods(http.MethodPost)
	s.router.HandleFunc("/api/wakeup/power", s.handlePowerDevice).Methods(http.MethodPost)
	s.router.HandleFunc("/api/schedule", s.handleGetSchedule).Methods(http.MethodGet)
	s.router.HandleFunc("/api/shadow", s.handleGetShadow).Methods(http.MethodGet)
	s.router.HandleFunc(fmt.Sprintf("/api/shadow/{%s}", urlPlugin), s.handleGetPluginShadow).Methods(http.MethodGet)
	s.router.Use(s.logMiddleware)
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// StateResponse represents the JSON response for the state endpoint
type StateResponse struct {
	Booleans map[string]bool    `json:"booleans"`
	Numbers  map[string]float64 `json:"numbers"`
	Strings  map[string]string  `json:"strings"`
}

// ToggleRequest is the body of POST /api/wakeup
type ToggleRequest struct {
	State *bool  `json:"state"`
	Mode  string `json:"mode,omitempty"`
}

// PowerRequest is the body of POST /api/wakeup/power
type PowerRequest struct {
	State *bool `json:"state"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleGetState returns all state variables as JSON
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	response := StateResponse{
		Booleans: make(map[string]bool),
		Numbers:  make(map[string]float64),
		Strings:  make(map[string]string),
	}

	// Collect all state variables by type
	for _, variable := range state.AllVariables {
		switch variable.Type {
		case state.TypeBool:
			value, err := s.stateManager.GetBool(variable.Key)
			if err != nil {
				s.logger.Error("Failed to get boolean variable",
					zap.String("key", variable.Key),
					zap.Error(err))
				continue
			}
			response.Booleans[variable.Key] = value

		case state.TypeNumber:
			value, err := s.stateManager.GetNumber(variable.Key)
			if err != nil {
				s.logger.Error("Failed to get number variable",
					zap.String("key", variable.Key),
					zap.Error(err))
				continue
			}
			response.Numbers[variable.Key] = value

		case state.TypeString:
			value, err := s.stateManager.GetString(variable.Key)
			if err != nil {
				s.logger.Error("Failed to get string variable",
					zap.String("key", variable.Key),
					zap.Error(err))
				continue
			}
			response.Strings[variable.Key] = value
		}
	}

	s.respond(w, http.StatusOK, response)
}

func (s *Server) handleGetWakeUp(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.wakeUp.Status())
}

// handleToggleWakeUp starts or stops the sequence and returns the new status
func (s *Server) handleToggleWakeUp(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.State == nil {
		s.respondError(w, http.StatusBadRequest, errors.New("missing field: state"))
		return
	}
	mode, err := wakeup.ParseMode(req.Mode)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := s.wakeUp.Toggle(ctx, *req.State, mode); err != nil {
		s.respondError(w, statusFor(err), err)
		return
	}
	s.respond(w, http.StatusOK, s.wakeUp.Status())
}

// handlePowerDevice switches the lamp on or off
func (s *Server) handlePowerDevice(w http.ResponseWriter, r *http.Request) {
	var req PowerRequest
	if err := s.decode(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.State == nil {
		s.respondError(w, http.StatusBadRequest, errors.New("missing field: state"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := s.wakeUp.PowerDevice(ctx, *req.State); err != nil {
		s.respondError(w, statusFor(err), err)
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"state": *req.State})
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.wakeUp.ScheduleEntries())
}

func (s *Server) handleGetShadow(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.shadowTracker.GetAllPluginStates())
}

func (s *Server) handleGetPluginShadow(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)[urlPlugin]
	pluginState, ok := s.shadowTracker.GetPluginState(name)
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("no shadow state for plugin %q", name))
		return
	}
	s.respond(w, http.StatusOK, pluginState)
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")

	if preferHTML {
		// HTML format for browsers
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Wake-up Light API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #ffb454; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #ff9900; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>Wake-up Light API</h1>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "</body>\n</html>\n")
	} else {
		// Plain text format for terminal
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "Wake-up Light API\n")
		fmt.Fprintf(w, "=================\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-6s %-22s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExamples:\n\n")
		fmt.Fprintf(w, "  Start the wake-up light:\n")
		fmt.Fprintf(w, "    curl -X POST -d '{\"state\":true}' http://localhost:8081/api/wakeup\n\n")
		fmt.Fprintf(w, "  Status:\n")
		fmt.Fprintf(w, "    curl http://localhost:8081/api/wakeup | jq\n\n")
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.logger.Info("Request failed", zap.Int("status", status), zap.Error(err))
	s.respond(w, status, ErrorResponse{Error: err.Error()})
}

// statusFor maps wake-up errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, wakeup.ErrAlreadyActive), errors.Is(err, wakeup.ErrLampAlreadyOn):
		return http.StatusConflict
	case errors.Is(err, wakeup.ErrRampNotPossible), errors.Is(err, wakeup.ErrInvalidSettings):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
