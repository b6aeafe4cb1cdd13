package document

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gwi.com/course-assistant/internal/store"
)

var ErrEmptyDocument = errors.New("document is empty")

// SupportedExtensions lists the file types picked up by folder ingestion.
var SupportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

var lessonHeader = regexp.MustCompile(`(?i)^Lesson\s+(\d+):\s*(.*)$`)

const (
	prefixTitle      = "course title:"
	prefixLink       = "course link:"
	prefixInstructor = "course instructor:"
	prefixLessonLink = "lesson link:"
)

// Processor turns course documents into a catalog entry plus content chunks.
type Processor struct {
	ChunkSize    int
	ChunkOverlap int
}

func NewProcessor(chunkSize, chunkOverlap int) *Processor {
	return &Processor{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}
}

// ProcessFile reads and parses a course document from disk. The file's base
// name is used as the title when the document has no title line.
func (p *Processor) ProcessFile(path string) (*store.Course, []store.CourseChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open document %s: %w", path, err)
	}
	defer f.Close()

	base := filepath.Base(path)
	fallback := strings.TrimSuffix(base, filepath.Ext(base))

	course, chunks, err := p.ParseCourseDocument(f, fallback)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse document %s: %w", path, err)
	}
	return course, chunks, nil
}

// ParseCourseDocument parses the header lines ("Course Title:", "Course Link:",
// "Course Instructor:") followed by "Lesson N: Title" sections, each optionally
// followed by a "Lesson Link:" line.
func (p *Processor) ParseCourseDocument(r io.Reader, fallbackTitle string) (*store.Course, []store.CourseChunk, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read document: %w", err)
	}
	if strings.TrimSpace(strings.Join(lines, "")) == "" {
		return nil, nil, ErrEmptyDocument
	}

	course := &store.Course{Lessons: []store.Lesson{}}

	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if v, ok := cutPrefixFold(line, prefixTitle); ok {
			course.Title = v
		} else if v, ok := cutPrefixFold(line, prefixLink); ok {
			course.CourseLink = v
		} else if v, ok := cutPrefixFold(line, prefixInstructor); ok {
			course.Instructor = v
		} else {
			break
		}
	}
	if course.Title == "" {
		course.Title = strings.TrimSpace(fallbackTitle)
	}
	if course.Title == "" {
		return nil, nil, fmt.Errorf("document has no course title")
	}

	var (
		chunks   []store.CourseChunk
		inLesson bool
		number   int
		body     []string
		preamble []string
	)

	flush := func() {
		if !inLesson {
			return
		}
		chunks = append(chunks, p.chunkLesson(course.Title, number, body)...)
		body = nil
	}

	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		if m := lessonHeader.FindStringSubmatch(line); m != nil {
			flush()

			num, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, nil, fmt.Errorf("invalid lesson number %q: %w", m[1], err)
			}
			lesson := store.Lesson{Number: num, Title: strings.TrimSpace(m[2])}

			// An optional link line may follow the header, possibly after blanks.
			for j := i + 1; j < len(lines); j++ {
				next := strings.TrimSpace(lines[j])
				if next == "" {
					continue
				}
				if v, ok := cutPrefixFold(next, prefixLessonLink); ok {
					lesson.LessonLink = v
					i = j
				}
				break
			}

			course.Lessons = append(course.Lessons, lesson)
			inLesson, number = true, num
			continue
		}

		if !inLesson {
			preamble = append(preamble, line)
		} else {
			body = append(body, line)
		}
	}
	flush()

	var loose []store.CourseChunk
	for idx, text := range ChunkText(strings.Join(preamble, " "), p.ChunkSize, p.ChunkOverlap) {
		loose = append(loose, store.CourseChunk{
			Content:     text,
			CourseTitle: course.Title,
			ChunkIndex:  idx,
		})
	}
	chunks = append(loose, chunks...)

	return course, chunks, nil
}

func (p *Processor) chunkLesson(title string, number int, body []string) []store.CourseChunk {
	texts := ChunkText(strings.Join(body, " "), p.ChunkSize, p.ChunkOverlap)
	out := make([]store.CourseChunk, 0, len(texts))
	for idx, text := range texts {
		if idx == 0 {
			text = fmt.Sprintf("Course %s Lesson %d content: %s", title, number, text)
		}
		out = append(out, store.CourseChunk{
			Content:      text,
			CourseTitle:  title,
			LessonNumber: store.IntPtr(number),
			ChunkIndex:   idx,
		})
	}
	return out
}

func cutPrefixFold(line, prefix string) (string, bool) {
	if len(line) < len(prefix) || !strings.EqualFold(line[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(line[len(prefix):]), true
}
