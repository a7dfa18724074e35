package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/state"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer serves the ops surface of one bot process: health, metrics and
// recent pipeline activity out of the shared database.
type WebServer struct {
	router    *mux.Router
	port      string
	component string
	started   time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(port, component string) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:    mux.NewRouter(),
		port:      port,
		component: component,
		started:   time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	ws.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/traces", ws.handleGetTraces).Methods("GET")
	api.HandleFunc("/plans", ws.handleGetPlans).Methods("GET")

	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Str("component", ws.component).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns process health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	status := "OK"
	dbHealthy := state.DB != nil
	if dbHealthy {
		if err := state.DB.Ping(); err != nil {
			dbHealthy = false
			status = "DEGRADED"
		}
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"component": map[string]interface{}{
			"name":           ws.component,
			"uptime_seconds": int64(time.Since(ws.started).Seconds()),
		},
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"database": map[string]interface{}{
			"connected": dbHealthy,
		},
	}

	ws.writeJSON(w, http.StatusOK, response)
}

// handleGetTraces returns recent pipeline traces
func (ws *WebServer) handleGetTraces(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20)
	traces, err := state.GetRecentTraces(limit)
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, "failed to load traces")
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]interface{}{
		"traces": traces,
		"count":  len(traces),
	})
}

// handleGetPlans returns recent liquidation plans
func (ws *WebServer) handleGetPlans(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20)
	plans, err := state.GetRecentPlans(limit)
	if err != nil {
		ws.writeError(w, http.StatusInternalServerError, "failed to load plans")
		return
	}
	ws.writeJSON(w, http.StatusOK, map[string]interface{}{
		"plans": plans,
		"count": len(plans),
	})
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (ws *WebServer) writeError(w http.ResponseWriter, status int, message string) {
	ws.writeJSON(w, status, map[string]string{"error": message})
}

// loggingMiddleware logs every request at debug level
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		webLogger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
