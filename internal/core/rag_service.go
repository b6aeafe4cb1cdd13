package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"gwi.com/course-assistant/internal/document"
	"gwi.com/course-assistant/internal/logger"
	"gwi.com/course-assistant/internal/session"
	"gwi.com/course-assistant/internal/store"
	"gwi.com/course-assistant/internal/tools"
)

const (
	queryPromptFormat = "Answer this question about course materials: %s"
	parseConcurrency  = 4 // files parsed at once during folder ingestion
)

type QueryResult struct {
	Answer      string
	Sources     []string
	SourceLinks map[string]string
}

type CourseAnalytics struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

type IngestStats struct {
	Courses int
	Chunks  int
	Skipped int
}

// RAGService wires ingestion, retrieval, generation and conversation history.
type RAGService struct {
	store     *store.VectorStore
	processor *document.Processor
	generator *Generator
	tools     ToolExecutor
	sessions  *session.Manager
	logger    *logger.Logger
}

func NewRAGService(vs *store.VectorStore, proc *document.Processor, gen *Generator, registry ToolExecutor, sessions *session.Manager, log *logger.Logger) *RAGService {
	return &RAGService{
		store:     vs,
		processor: proc,
		generator: gen,
		tools:     registry,
		sessions:  sessions,
		logger:    log,
	}
}

// NewCourseRegistry returns a registry with the course search tool installed.
func NewCourseRegistry(vs *store.VectorStore, log *logger.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry(log)
	if err := registry.Register(tools.NewCourseSearchTool(vs)); err != nil {
		return nil, fmt.Errorf("failed to register search tool: %w", err)
	}
	return registry, nil
}

// Query answers a question, using and extending the session's history when
// sessionID is set.
func (s *RAGService) Query(ctx context.Context, query, sessionID string) (*QueryResult, error) {
	var history string
	if sessionID != "" {
		history = s.sessions.GetConversationHistory(sessionID)
	}

	res, err := s.generator.GenerateResponse(ctx, GenerateRequest{
		Query:   fmt.Sprintf(queryPromptFormat, query),
		History: history,
		Tools:   s.tools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	if sessionID != "" {
		s.sessions.AddExchange(sessionID, query, res.Answer)
	}

	sources := res.Sources
	if sources == nil {
		sources = []string{}
	}
	return &QueryResult{Answer: res.Answer, Sources: sources, SourceLinks: res.SourceLinks}, nil
}

// AddCourseDocument parses one file and adds it to both collections.
func (s *RAGService) AddCourseDocument(ctx context.Context, path string) (*store.Course, int, error) {
	course, chunks, err := s.processor.ProcessFile(path)
	if err != nil {
		return nil, 0, err
	}
	if err := s.ingest(ctx, course, chunks); err != nil {
		return nil, 0, err
	}
	return course, len(chunks), nil
}

func (s *RAGService) ingest(ctx context.Context, course *store.Course, chunks []store.CourseChunk) error {
	if err := s.store.AddCourseMetadata(ctx, course); err != nil {
		return err
	}
	if err := s.store.AddCourseContent(ctx, chunks); err != nil {
		return err
	}
	return nil
}

type parsedDocument struct {
	path   string
	course *store.Course
	chunks []store.CourseChunk
	err    error
}

// AddCourseFolder ingests every supported document in dir. Courses whose
// title is already indexed are skipped. Files are parsed concurrently and
// written to the index one at a time.
func (s *RAGService) AddCourseFolder(ctx context.Context, dir string, clearExisting bool) (IngestStats, error) {
	var stats IngestStats

	if clearExisting {
		s.logger.Info("clearing existing course data")
		if err := s.store.Clear(ctx); err != nil {
			return stats, err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("course folder does not exist", "path", dir)
			return stats, nil
		}
		return stats, fmt.Errorf("failed to read course folder %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !document.SupportedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	parsed := make([]parsedDocument, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parseConcurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			course, chunks, err := s.processor.ProcessFile(p)
			parsed[i] = parsedDocument{path: p, course: course, chunks: chunks, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	titles, err := s.store.ExistingCourseTitles(ctx)
	if err != nil {
		return stats, err
	}
	existing := make(map[string]bool, len(titles))
	for _, t := range titles {
		existing[t] = true
	}

	for _, doc := range parsed {
		if doc.err != nil {
			s.logger.Error("failed to process course document", "path", doc.path, "error", doc.err)
			stats.Skipped++
			continue
		}
		if existing[doc.course.Title] {
			s.logger.Info("course already exists, skipping", "course", doc.course.Title)
			stats.Skipped++
			continue
		}
		if err := s.ingest(ctx, doc.course, doc.chunks); err != nil {
			if errors.Is(err, store.ErrDuplicateCourse) {
				stats.Skipped++
				continue
			}
			return stats, fmt.Errorf("failed to ingest %s: %w", doc.path, err)
		}
		existing[doc.course.Title] = true
		stats.Courses++
		stats.Chunks += len(doc.chunks)
		s.logger.Info("added course", "course", doc.course.Title, "chunks", len(doc.chunks))
	}
	return stats, nil
}

func (s *RAGService) CourseAnalytics(ctx context.Context) (*CourseAnalytics, error) {
	titles, err := s.store.ExistingCourseTitles(ctx)
	if err != nil {
		return nil, err
	}
	return &CourseAnalytics{TotalCourses: len(titles), CourseTitles: titles}, nil
}

func (s *RAGService) CourseCatalog(ctx context.Context) ([]store.Course, error) {
	return s.store.AllCoursesMetadata(ctx)
}
