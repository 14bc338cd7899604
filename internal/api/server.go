package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/internal/cache"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/database"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/messaging"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/services"
	"github.com/innovation-pello/pello-data-sync-dashboard/internal/websocket"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/config"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// Server represents the HTTP API server
type Server struct {
	cfg        *config.Config
	logger     *logrus.Logger
	router     *mux.Router
	httpServer *http.Server

	// Dependencies
	runner     *services.Runner
	mysqlDB    *database.MySQLClient
	redisCache *cache.RedisClient
	natsClient *messaging.NATSClient
	hub        *websocket.Hub
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	logger *logrus.Logger,
	runner *services.Runner,
	mysqlDB *database.MySQLClient,
	redisCache *cache.RedisClient,
	natsClient *messaging.NATSClient,
	hub *websocket.Hub,
) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		runner:     runner,
		mysqlDB:    mysqlDB,
		redisCache: redisCache,
		natsClient: natsClient,
		hub:        hub,
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)

	if s.cfg.Security.CORSEnabled {
		s.router.Use(s.corsMiddleware)
	}

	apiV1 := s.router.PathPrefix("/api/v1").Subrouter()

	apiV1.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Sync endpoints
	apiV1.HandleFunc("/sync/{source}", s.handleTriggerSync).Methods("POST")
	apiV1.HandleFunc("/status", s.handleStatus).Methods("GET")

	// Run history endpoints
	apiV1.HandleFunc("/runs", s.handleGetRuns).Methods("GET")
	apiV1.HandleFunc("/runs/last", s.handleGetLastRun).Methods("GET")

	// WebSocket endpoint for dashboard push
	apiV1.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	// Aliases used by older dashboard builds
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Dashboard static assets
	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir("web")))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := s.cfg.GetServerAddr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.WithField("address", addr).Info("Starting HTTP server")

	err := s.httpServer.ListenAndServe()
	if err != nil && strings.Contains(err.Error(), "address already in use") {
		return fmt.Errorf("port %d is already in use", s.cfg.Server.Port)
	}
	return err
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Middleware functions

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.statusCode,
			"duration": time.Since(start),
			"remote":   r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"error": err,
					"path":  r.URL.Path,
				}).Error("Panic recovered")

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return handlers.CORS(
		handlers.AllowedOrigins(s.cfg.Security.CORSOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(next)
}

// Handler functions

// handleHealth checks the health status of all system components
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"services": map[string]bool{
			"mysql": s.mysqlDB != nil,
			"redis": s.redisCache != nil,
			"nats":  s.natsClient != nil && s.natsClient.IsConnected(),
		},
		"timestamp": time.Now().Unix(),
	}

	writeJSON(w, http.StatusOK, health)
}

// handleTriggerSync runs one sync for a source and blocks until it finishes.
// Overlapping requests for the same source get 409.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]

	run, summary, err := s.runner.Run(r.Context(), source)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownSource):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, services.ErrRunInProgress):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.WithError(err).WithField("source", source).Error("Sync run failed")
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"run":   run,
				"error": err.Error(),
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":     run,
		"summary": summary,
	})
}

// handleStatus reports which sources exist, whether each is mid-run, and when
// each last completed.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sources := make([]map[string]interface{}, 0)
	for _, source := range s.runner.Sources() {
		entry := map[string]interface{}{
			"source":  source,
			"running": s.runner.IsRunning(source),
		}

		if s.mysqlDB != nil {
			if last, err := s.mysqlDB.GetLastCompletedRun(r.Context(), source); err != nil {
				s.logger.WithError(err).WithField("source", source).Warn("Failed to load last run")
			} else if last != nil {
				entry["last_status"] = last.Status
				entry["last_synced_at"] = last.FinishedAt
			}
		}

		sources = append(sources, entry)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources": sources,
	})
}

// handleGetRuns returns recent run history across all sources.
func (s *Server) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	if s.mysqlDB == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not available")
		return
	}

	runs, err := s.mysqlDB.GetRecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get runs")
		writeError(w, http.StatusInternalServerError, "failed to retrieve runs")
		return
	}
	if runs == nil {
		runs = []*models.SyncRun{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetLastRun returns the last completed run for a source, with the
// cached summary when Redis still has it.
func (s *Server) handleGetLastRun(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, "source query parameter is required")
		return
	}

	if s.mysqlDB == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not available")
		return
	}

	run, err := s.mysqlDB.GetLastCompletedRun(r.Context(), source)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get last run")
		writeError(w, http.StatusInternalServerError, "failed to retrieve last run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no completed run for source")
		return
	}

	response := map[string]interface{}{"run": run}

	if s.redisCache != nil {
		if summary, err := s.redisCache.GetLastSummary(r.Context(), source); err == nil && summary != nil {
			response["summary"] = summary
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// handleWebSocket establishes WebSocket connection for dashboard events
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.logger.Error("WebSocket hub is nil")
		http.Error(w, "WebSocket service unavailable", http.StatusInternalServerError)
		return
	}
	s.hub.HandleWebSocket(w, r)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements the http.Hijacker interface to support WebSocket upgrades
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("ResponseWriter does not implement http.Hijacker")
}
