package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gwi.com/course-assistant/internal/core"
	"gwi.com/course-assistant/internal/logger"
	"gwi.com/course-assistant/internal/store"
)

// CourseService is the part of the chat service the HTTP layer calls.
type CourseService interface {
	Ask(ctx context.Context, query, sessionID string) (*core.Answer, error)
	CreateSession() string
	ClearSession(sessionID string) bool
	DeleteSession(sessionID string) bool
	CourseAnalytics(ctx context.Context) (*core.CourseAnalytics, error)
	CourseCatalog(ctx context.Context) ([]store.Course, error)
}

type APIHandler struct {
	service CourseService
	logger  *logger.Logger
}

func NewAPIHandler(svc CourseService, log *logger.Logger) *APIHandler {
	return &APIHandler{service: svc, logger: log}
}

type QueryRequest struct {
	Query     *string `json:"query"`
	SessionID string  `json:"session_id,omitempty"`
}

type QueryResponse struct {
	Answer      string            `json:"answer"`
	Sources     []string          `json:"sources"`
	SourceLinks map[string]string `json:"source_links,omitempty"`
	SessionID   string            `json:"session_id"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

func (h *APIHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == nil {
		writeError(w, http.StatusUnprocessableEntity, "query is required")
		return
	}

	answer, err := h.service.Ask(r.Context(), *req.Query, req.SessionID)
	if err != nil {
		if errors.Is(err, core.ErrEmptyQuery) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("query failed",
			"request_id", middleware.GetReqID(r.Context()),
			"session", req.SessionID,
			"error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sources := answer.Sources
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		Answer:      answer.Answer,
		Sources:     sources,
		SourceLinks: answer.SourceLinks,
		SessionID:   answer.SessionID,
	})
}

func (h *APIHandler) CoursesHandler(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.service.CourseAnalytics(r.Context())
	if err != nil {
		h.logger.Error("failed to load course analytics", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (h *APIHandler) CatalogHandler(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.CourseCatalog(r.Context())
	if err != nil {
		h.logger.Error("failed to load course catalog", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": h.service.CreateSession()})
}

// ClearSessionHandler empties a session's history but keeps its id.
func (h *APIHandler) ClearSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !h.service.ClearSession(sessionID) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !h.service.DeleteSession(sessionID) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
