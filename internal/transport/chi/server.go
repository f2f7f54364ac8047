// Package chi implements the HTTP API: query, calendar export, admin reload,
// health, and metrics.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/scotty-scheduler/courserag/internal/domain"
	healthuc "github.com/scotty-scheduler/courserag/internal/usecase/health"
	recommenduc "github.com/scotty-scheduler/courserag/internal/usecase/recommend"
)

// ErrorCode identifies an API error category for clients.
type ErrorCode string

const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeIndexNotLoaded    ErrorCode = "index_not_loaded"
	CodeIndexMismatch     ErrorCode = "index_mismatch"
	CodeEmbeddingProvider ErrorCode = "embedding_provider_error"
	CodeGenerationError   ErrorCode = "generation_error"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// QueryRequest is the POST /query body.
type QueryRequest struct {
	Query   string       `json:"query"`
	TopK    int          `json:"top_k,omitempty"`
	Filters QueryFilters `json:"filters"`
}

// QueryFilters carries the hard constraints.
type QueryFilters struct {
	MinRating      float64 `json:"min_rating,omitempty"`
	MinWeeklyHours float64 `json:"min_weekly_hours,omitempty"`
	MaxWeeklyHours float64 `json:"max_weekly_hours,omitempty"`
}

// CourseResponse is one recommended course in the query response.
type CourseResponse struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Justification string `json:"justification,omitempty"`
	Day           string `json:"day,omitempty"`
	StartTime     string `json:"start_time,omitempty"`
	EndTime       string `json:"end_time,omitempty"`
	Location      string `json:"location,omitempty"`
}

// QueryResponse is the POST /query response body.
type QueryResponse struct {
	Courses []CourseResponse `json:"courses"`
}

// Reloader swaps in a freshly loaded index artifact.
type Reloader interface {
	Reload(ctx context.Context) (docs int, err error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server handles the course recommendation API.
type Server struct {
	recommend     *recommenduc.Service
	health        *healthuc.Service
	reloader      Reloader
	logger        *zap.Logger
	now           func() time.Time
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	recommend *recommenduc.Service,
	health *healthuc.Service,
	reloader Reloader,
	logger *zap.Logger,
) *Server {
	s := &Server{
		recommend: recommend,
		health:    health,
		reloader:  reloader,
		logger:    logger,
		now:       time.Now,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrIndexNotLoaded, http.StatusServiceUnavailable, CodeIndexNotLoaded),
		sentinelHandler(domain.ErrIndexMismatch, http.StatusServiceUnavailable, CodeIndexMismatch),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrGenerationService, http.StatusBadGateway, CodeGenerationError),
	}
	return s
}

// Routes registers all API handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/query", s.Query)
	r.Get("/calendar", s.Calendar)
	r.Post("/admin/reload", s.Reload)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Query handles POST /query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Query is required")
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "top_k must not be negative")
		return
	}

	prefs := domain.Preferences{
		MinRating:      req.Filters.MinRating,
		MinWeeklyHours: req.Filters.MinWeeklyHours,
		MaxWeeklyHours: req.Filters.MaxWeeklyHours,
	}

	recs, err := s.recommend.Recommend(r.Context(), req.Query, prefs, req.TopK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	courses := make([]CourseResponse, len(recs))
	for i, rec := range recs {
		courses[i] = CourseResponse{
			ID:            rec.ID,
			Title:         rec.Title,
			Justification: rec.Justification,
			Day:           rec.Day,
			StartTime:     rec.StartTime,
			EndTime:       rec.EndTime,
			Location:      rec.Location,
		}
	}

	writeJSON(w, http.StatusOK, QueryResponse{Courses: courses})
}

// Calendar handles GET /calendar. Renders a recommended course meeting as an
// iCalendar file with weekly recurrence for one semester.
func (s *Server) Calendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	event := calendarEvent{
		ID:          q.Get("id"),
		Title:       q.Get("title"),
		Day:         q.Get("day"),
		StartTime:   q.Get("start_time"),
		EndTime:     q.Get("end_time"),
		Location:    q.Get("location"),
		Description: q.Get("description"),
	}

	ics, err := renderICS(event, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+event.ID+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ics))
}

// Reload handles POST /admin/reload. Loads the artifact and atomically swaps
// the active snapshot; in-flight queries keep the snapshot they started with.
func (s *Server) Reload(w http.ResponseWriter, r *http.Request) {
	docs, err := s.reloader.Reload(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	s.logger.Info("Index reloaded", zap.Int("docs", docs))
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reloaded",
		"docs":   docs,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":       report.Status,
		"checks":       report.Checks,
		"indexed_docs": report.IndexedDocs,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrIndexNotLoaded,
		domain.ErrIndexMismatch,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationService,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
