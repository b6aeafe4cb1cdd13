package tools

import (
	"context"
	"fmt"
	"strings"

	"gwi.com/course-assistant/internal/llm"
	"gwi.com/course-assistant/internal/store"
)

const SearchToolName = "search_course_content"

// Searcher is the part of the vector store the search tool needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts store.SearchOptions) (store.SearchResults, error)
	CourseLink(ctx context.Context, title string) (string, error)
	LessonLink(ctx context.Context, title string, lessonNumber int) (string, error)
}

// CourseSearchTool lets the model search course content, optionally scoped
// to a course (matched fuzzily) and a lesson.
type CourseSearchTool struct {
	store Searcher
}

func NewCourseSearchTool(s Searcher) *CourseSearchTool {
	return &CourseSearchTool{store: s}
}

func (t *CourseSearchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        SearchToolName,
		Description: "Search course materials with smart course name matching and lesson filtering",
		InputSchema: llm.InputSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"query": {
					Type:        "string",
					Description: "What to search for in the course content",
				},
				"course_name": {
					Type:        "string",
					Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
				"lesson_number": {
					Type:        "integer",
					Description: "Specific lesson number to search within (e.g. 1, 2, 3)",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *CourseSearchTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	query, err := stringArg(args, "query", true)
	if err != nil {
		return Result{}, err
	}
	courseName, err := stringArg(args, "course_name", false)
	if err != nil {
		return Result{}, err
	}
	lesson, err := intArg(args, "lesson_number")
	if err != nil {
		return Result{}, err
	}

	results, err := t.store.Search(ctx, query, store.SearchOptions{CourseName: courseName, LessonNumber: lesson})
	if err != nil {
		return Result{}, fmt.Errorf("search failed: %w", err)
	}
	if results.Error != "" {
		return Result{Text: results.Error}, nil
	}
	if results.IsEmpty() {
		return Result{Text: emptyMessage(courseName, lesson)}, nil
	}
	return t.formatResults(ctx, results), nil
}

func emptyMessage(courseName string, lesson *int) string {
	var sb strings.Builder
	sb.WriteString("No relevant content found")
	if courseName != "" {
		fmt.Fprintf(&sb, " in course '%s'", courseName)
	}
	if lesson != nil {
		fmt.Fprintf(&sb, " in lesson %d", *lesson)
	}
	sb.WriteString(".")
	return sb.String()
}

func (t *CourseSearchTool) formatResults(ctx context.Context, results store.SearchResults) Result {
	blocks := make([]string, 0, len(results.Documents))
	sources := make([]string, 0, len(results.Documents))
	links := map[string]string{}
	for i, doc := range results.Documents {
		md := results.Metadata[i]
		label := SourceLabel(md)
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", label, doc))
		sources = append(sources, label)
		if _, seen := links[label]; !seen {
			links[label] = t.link(ctx, md)
		}
	}
	for label, link := range links {
		if link == "" {
			delete(links, label)
		}
	}
	return Result{Text: strings.Join(blocks, "\n\n"), Sources: sources, Links: links}
}

// link returns the lesson link for a chunk, falling back to the course
// link. Lookup failures leave the citation without a link.
func (t *CourseSearchTool) link(ctx context.Context, md store.ChunkMetadata) string {
	if md.CourseTitle == "" {
		return ""
	}
	if md.LessonNumber != nil {
		if link, err := t.store.LessonLink(ctx, md.CourseTitle, *md.LessonNumber); err == nil && link != "" {
			return link
		}
	}
	link, err := t.store.CourseLink(ctx, md.CourseTitle)
	if err != nil {
		return ""
	}
	return link
}

// SourceLabel renders the citation for a chunk: "Course - Lesson N", or
// just the course title for chunks outside any lesson.
func SourceLabel(md store.ChunkMetadata) string {
	title := md.CourseTitle
	if title == "" {
		title = "unknown"
	}
	if md.LessonNumber == nil {
		return title
	}
	return fmt.Sprintf("%s - Lesson %d", title, *md.LessonNumber)
}
