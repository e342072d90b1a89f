package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tatami/pkg/types"
)

// Snapshot is the read-only polling view of the coordination core.
type Snapshot interface {
	Teachers(ctx context.Context) ([]types.TeacherPresence, error)
	Stats(ctx context.Context) (types.Stats, error)
	Connections(ctx context.Context) (int, error)
}

// EvaluationStore is the durable rating store behind the evaluation
// endpoints.
type EvaluationStore interface {
	InsertEvaluation(ctx context.Context, ev *types.Evaluation) error
	EvaluationsForTarget(ctx context.Context, targetID, targetRole string) ([]*types.Evaluation, error)
	RatingSummaryForTarget(ctx context.Context, targetID, targetRole string) (*types.RatingSummary, error)
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP polling and evaluation surface. No coordination logic
// lives here; it reads snapshots and fronts the store.
type Server struct {
	core   Snapshot
	store  EvaluationStore
	logger *slog.Logger
	router *http.ServeMux
}

// NewServer wires the REST routes.
func NewServer(core Snapshot, store EvaluationStore, logger *slog.Logger) *Server {
	s := &Server{
		core:   core,
		store:  store,
		logger: logger,
		router: http.NewServeMux(),
	}
	s.router.Handle("/api/teachers", s.corsJSON(http.HandlerFunc(s.handleTeachers)))
	s.router.Handle("/api/teachers/", s.corsJSON(http.HandlerFunc(s.handleTeacherByID)))
	s.router.Handle("/api/students/", s.corsJSON(http.HandlerFunc(s.handleStudentByID)))
	s.router.Handle("/api/stats", s.corsJSON(http.HandlerFunc(s.handleStats)))
	s.router.Handle("/api/evaluations", s.corsJSON(http.HandlerFunc(s.handleEvaluations)))
	s.router.Handle("/health", s.corsJSON(http.HandlerFunc(s.handleHealth)))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status      string      `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
	Database    string      `json:"database"`
	Connections int         `json:"connections"`
	Stats       types.Stats `json:"stats"`
}

// GET /api/teachers returns the currently online teacher list.
func (s *Server) handleTeachers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	teachers, err := s.core.Teachers(r.Context())
	if err != nil {
		s.sendError(w, http.StatusServiceUnavailable, "coordinator unavailable")
		return
	}
	s.sendJSON(w, http.StatusOK, teachers)
}

// GET /api/stats returns the current aggregate counts.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.core.Stats(r.Context())
	if err != nil {
		s.sendError(w, http.StatusServiceUnavailable, "coordinator unavailable")
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}

// POST /api/evaluations inserts one rating record.
func (s *Server) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var ev types.Evaluation
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := ev.Validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.InsertEvaluation(r.Context(), &ev); err != nil {
		s.logger.Error("insert evaluation", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to store evaluation")
		return
	}
	s.sendJSON(w, http.StatusCreated, ev)
}

// GET /api/teachers/{id}/evaluations and /api/teachers/{id}/rating.
func (s *Server) handleTeacherByID(w http.ResponseWriter, r *http.Request) {
	s.handleTargetResource(w, r, "/api/teachers/", types.RoleTeacher)
}

// GET /api/students/{id}/evaluations.
func (s *Server) handleStudentByID(w http.ResponseWriter, r *http.Request) {
	s.handleTargetResource(w, r, "/api/students/", types.RoleStudent)
}

func (s *Server) handleTargetResource(w http.ResponseWriter, r *http.Request, prefix, role string) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if len(parts) != 2 || parts[0] == "" {
		s.sendError(w, http.StatusBadRequest, "target id and resource required")
		return
	}
	targetID, resource := parts[0], parts[1]

	switch resource {
	case "evaluations":
		evaluations, err := s.store.EvaluationsForTarget(r.Context(), targetID, role)
		if err != nil {
			s.logger.Error("list evaluations", "target", targetID, "error", err)
			s.sendError(w, http.StatusInternalServerError, "failed to load evaluations")
			return
		}
		if evaluations == nil {
			evaluations = []*types.Evaluation{}
		}
		s.sendJSON(w, http.StatusOK, evaluations)
	case "rating":
		if role != types.RoleTeacher {
			s.sendError(w, http.StatusNotFound, "unknown resource")
			return
		}
		summary, err := s.store.RatingSummaryForTarget(r.Context(), targetID, role)
		if err != nil {
			s.logger.Error("rating summary", "target", targetID, "error", err)
			s.sendError(w, http.StatusInternalServerError, "failed to load rating")
			return
		}
		s.sendJSON(w, http.StatusOK, summary)
	default:
		s.sendError(w, http.StatusNotFound, "unknown resource")
	}
}

// GET /health reports store connectivity plus registry and aggregate counts.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, dbStatus := "healthy", "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = err.Error()
	}

	connections, err := s.core.Connections(ctx)
	if err != nil {
		status = "unhealthy"
	}
	stats, statsErr := s.core.Stats(ctx)
	if statsErr != nil && err == nil {
		status = "unhealthy"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, healthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: connections,
		Stats:       stats,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		s.logger.Warn("encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendJSON(w, code, errorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsJSON applies the permissive CORS policy the browser frontend needs and
// stamps the JSON content type.
func (s *Server) corsJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
