package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gwi.com/course-assistant/internal/logger"
)

var (
	ErrDuplicateCourse = errors.New("course already exists")
	ErrEmbedding       = errors.New("embedding provider failed")
)

const (
	CatalogCollection = "course_catalog"
	ContentCollection = "course_content"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type SearchOptions struct {
	CourseName   string
	LessonNumber *int
	Limit        int
}

// VectorStore keeps two collections: a catalog with one entry per course,
// used to resolve fuzzy course names, and the chunked course content.
type VectorStore struct {
	catalog    Collection
	content    Collection
	embedder   Embedder
	maxResults int
	logger     *logger.Logger
}

func NewVectorStore(catalog, content Collection, embedder Embedder, maxResults int, log *logger.Logger) *VectorStore {
	return &VectorStore{
		catalog:    catalog,
		content:    content,
		embedder:   embedder,
		maxResults: maxResults,
		logger:     log,
	}
}

// OpenVectorStore opens both collections in the sqlite database at path.
func OpenVectorStore(ctx context.Context, path string, embedder Embedder, maxResults int, log *logger.Logger) (*VectorStore, *SQLiteStore, error) {
	db, err := NewSQLiteStore(path, log)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := db.Collection(ctx, CatalogCollection)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	content, err := db.Collection(ctx, ContentCollection)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return NewVectorStore(catalog, content, embedder, maxResults, log), db, nil
}

// Search resolves an optional course name, then returns the content chunks
// closest to query. Index failures and unresolved course names are reported
// through SearchResults.Error; an embedding provider failure is returned as
// an error wrapping ErrEmbedding.
func (s *VectorStore) Search(ctx context.Context, query string, opts SearchOptions) (SearchResults, error) {
	var courseTitle string
	if opts.CourseName != "" {
		nameVec, err := s.embed(ctx, opts.CourseName)
		if err != nil {
			return SearchResults{}, err
		}
		title, found, err := s.resolveCourseName(ctx, nameVec)
		if err != nil {
			s.logger.Warn("course name resolution failed", "course_name", opts.CourseName, "error", err)
			return searchError(fmt.Sprintf("Search error: %v", err)), nil
		}
		if !found {
			return searchError(fmt.Sprintf("No course found matching '%s'", opts.CourseName)), nil
		}
		courseTitle = title
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.maxResults
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return SearchResults{}, err
	}

	matches, err := s.content.Query(ctx, vec, limit, buildFilter(courseTitle, opts.LessonNumber))
	if err != nil {
		s.logger.Warn("content query failed", "error", err)
		return searchError(fmt.Sprintf("Search error: %v", err)), nil
	}

	results := SearchResults{
		Documents: make([]string, 0, len(matches)),
		Metadata:  make([]ChunkMetadata, 0, len(matches)),
		Distances: make([]float64, 0, len(matches)),
	}
	for _, m := range matches {
		results.Documents = append(results.Documents, m.Document)
		results.Metadata = append(results.Metadata, chunkMetadataFrom(m.Metadata))
		results.Distances = append(results.Distances, m.Distance)
	}
	return results, nil
}

func (s *VectorStore) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return vec, nil
}

// resolveCourseName maps an embedded, possibly partial course name to the
// closest catalog title.
func (s *VectorStore) resolveCourseName(ctx context.Context, vec []float32) (string, bool, error) {
	matches, err := s.catalog.Query(ctx, vec, 1, nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to query catalog: %w", err)
	}
	if len(matches) == 0 {
		return "", false, nil
	}
	return matches[0].ID, true, nil
}

func buildFilter(courseTitle string, lesson *int) map[string]any {
	where := map[string]any{}
	if courseTitle != "" {
		where["course_title"] = courseTitle
	}
	if lesson != nil {
		where["lesson_number"] = *lesson
	}
	if len(where) == 0 {
		return nil
	}
	return where
}

// AddCourseMetadata adds a catalog entry for course. Adding a title that is
// already present returns ErrDuplicateCourse.
func (s *VectorStore) AddCourseMetadata(ctx context.Context, course *Course) error {
	lessonsJSON, err := json.Marshal(course.Lessons)
	if err != nil {
		return fmt.Errorf("failed to marshal lessons: %w", err)
	}
	vec, err := s.embedder.Embed(ctx, course.Title)
	if err != nil {
		return fmt.Errorf("failed to embed course title: %w", err)
	}

	rec := Record{
		ID:       course.Title,
		Document: course.Title,
		Metadata: map[string]any{
			"title":        course.Title,
			"instructor":   course.Instructor,
			"course_link":  course.CourseLink,
			"lessons_json": string(lessonsJSON),
			"lesson_count": len(course.Lessons),
		},
		Embedding: vec,
	}
	if err := s.catalog.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return fmt.Errorf("%w: %s", ErrDuplicateCourse, course.Title)
		}
		return fmt.Errorf("failed to add course metadata: %w", err)
	}
	return nil
}

// AddCourseContent embeds and upserts chunks. Chunk ids are derived from
// course, lesson and index, so re-adding the same chunks is idempotent.
func (s *VectorStore) AddCourseContent(ctx context.Context, chunks []CourseChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	records := make([]Record, 0, len(chunks))
	for _, ch := range chunks {
		vec, err := s.embedder.Embed(ctx, ch.Content)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %s: %w", ChunkID(ch), err)
		}
		meta := map[string]any{
			"course_title": ch.CourseTitle,
			"chunk_index":  ch.ChunkIndex,
		}
		if ch.LessonNumber != nil {
			meta["lesson_number"] = *ch.LessonNumber
		}
		records = append(records, Record{
			ID:        ChunkID(ch),
			Document:  ch.Content,
			Metadata:  meta,
			Embedding: vec,
		})
	}
	if err := s.content.Upsert(ctx, records...); err != nil {
		return fmt.Errorf("failed to add course content: %w", err)
	}
	return nil
}

// ChunkID is the content collection key for a chunk. The title is quoted so
// distinct (title, lesson, index) triples never share a key.
func ChunkID(ch CourseChunk) string {
	lesson := "none"
	if ch.LessonNumber != nil {
		lesson = fmt.Sprint(*ch.LessonNumber)
	}
	return fmt.Sprintf("%q/%s/%d", ch.CourseTitle, lesson, ch.ChunkIndex)
}

func (s *VectorStore) CourseCount(ctx context.Context) (int, error) {
	return s.catalog.Count(ctx)
}

// ExistingCourseTitles returns catalog titles in insertion order.
func (s *VectorStore) ExistingCourseTitles(ctx context.Context) ([]string, error) {
	records, err := s.catalog.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	titles := make([]string, 0, len(records))
	for _, r := range records {
		titles = append(titles, r.ID)
	}
	return titles, nil
}

func (s *VectorStore) AllCoursesMetadata(ctx context.Context) ([]Course, error) {
	records, err := s.catalog.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	courses := make([]Course, 0, len(records))
	for _, r := range records {
		c, err := courseFrom(r)
		if err != nil {
			return nil, err
		}
		courses = append(courses, *c)
	}
	return courses, nil
}

// CourseLink returns the course's link, or "" if the course is unknown.
func (s *VectorStore) CourseLink(ctx context.Context, title string) (string, error) {
	course, err := s.course(ctx, title)
	if err != nil || course == nil {
		return "", err
	}
	return course.CourseLink, nil
}

// LessonLink returns a lesson's link, or "" if either the course or the
// lesson is unknown.
func (s *VectorStore) LessonLink(ctx context.Context, title string, lessonNumber int) (string, error) {
	course, err := s.course(ctx, title)
	if err != nil || course == nil {
		return "", err
	}
	for _, l := range course.Lessons {
		if l.Number == lessonNumber {
			return l.LessonLink, nil
		}
	}
	return "", nil
}

func (s *VectorStore) course(ctx context.Context, title string) (*Course, error) {
	rec, err := s.catalog.Get(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("failed to get course %s: %w", title, err)
	}
	if rec == nil {
		return nil, nil
	}
	return courseFrom(*rec)
}

// Clear drops and recreates both collections.
func (s *VectorStore) Clear(ctx context.Context) error {
	if err := s.catalog.Reset(ctx); err != nil {
		return fmt.Errorf("failed to clear catalog: %w", err)
	}
	if err := s.content.Reset(ctx); err != nil {
		return fmt.Errorf("failed to clear content: %w", err)
	}
	return nil
}

func courseFrom(r Record) (*Course, error) {
	c := &Course{
		Title:      r.ID,
		Instructor: stringField(r.Metadata, "instructor"),
		CourseLink: stringField(r.Metadata, "course_link"),
		Lessons:    []Lesson{},
	}
	if raw := stringField(r.Metadata, "lessons_json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Lessons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal lessons for %s: %w", r.ID, err)
		}
	}
	return c, nil
}

func chunkMetadataFrom(meta map[string]any) ChunkMetadata {
	md := ChunkMetadata{CourseTitle: stringField(meta, "course_title")}
	if v, ok := toFloat(meta["chunk_index"]); ok {
		md.ChunkIndex = int(v)
	}
	if v, ok := toFloat(meta["lesson_number"]); ok {
		md.LessonNumber = IntPtr(int(v))
	}
	return md
}

func stringField(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}
