package core

import (
	"context"
	"errors"
	"strings"

	"gwi.com/course-assistant/internal/logger"
	"gwi.com/course-assistant/internal/session"
	"gwi.com/course-assistant/internal/store"
)

var ErrEmptyQuery = errors.New("query must not be empty")

type Answer struct {
	Answer      string            `json:"answer"`
	Sources     []string          `json:"sources"`
	SourceLinks map[string]string `json:"source_links,omitempty"`
	SessionID   string            `json:"session_id"`
}

// ChatService is the entry point for transports: it owns session handling
// on top of the RAG pipeline.
type ChatService struct {
	rag      *RAGService
	sessions *session.Manager
	logger   *logger.Logger
}

func NewChatService(rag *RAGService, sessions *session.Manager, log *logger.Logger) *ChatService {
	return &ChatService{rag: rag, sessions: sessions, logger: log}
}

// Ask answers query within sessionID, creating a session when none is given.
func (s *ChatService) Ask(ctx context.Context, query, sessionID string) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if sessionID == "" {
		sessionID = s.sessions.CreateSession()
		s.logger.Debug("created session", "session", sessionID)
	}

	res, err := s.rag.Query(ctx, query, sessionID)
	if err != nil {
		s.logger.Error("query failed", "session", sessionID, "error", err)
		return nil, err
	}
	return &Answer{
		Answer:      res.Answer,
		Sources:     res.Sources,
		SourceLinks: res.SourceLinks,
		SessionID:   sessionID,
	}, nil
}

func (s *ChatService) CreateSession() string {
	return s.sessions.CreateSession()
}

// ClearSession empties a known session's history and reports whether it
// existed.
func (s *ChatService) ClearSession(sessionID string) bool {
	if !s.sessions.Exists(sessionID) {
		return false
	}
	s.sessions.ClearSession(sessionID)
	return true
}

func (s *ChatService) DeleteSession(sessionID string) bool {
	return s.sessions.DeleteSession(sessionID)
}

func (s *ChatService) CourseAnalytics(ctx context.Context) (*CourseAnalytics, error) {
	return s.rag.CourseAnalytics(ctx)
}

func (s *ChatService) CourseCatalog(ctx context.Context) ([]store.Course, error) {
	return s.rag.CourseCatalog(ctx)
}
