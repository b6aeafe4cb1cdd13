package store

import "time"

type Lesson struct {
	Number     int    `json:"lesson_number"`
	Title      string `json:"lesson_title"`
	LessonLink string `json:"lesson_link,omitempty"`
}

// Course is a catalog entry. Title is its unique key.
type Course struct {
	Title      string   `json:"title"`
	Instructor string   `json:"instructor,omitempty"`
	CourseLink string   `json:"course_link,omitempty"`
	Lessons    []Lesson `json:"lessons"`
}

type CourseChunk struct {
	Content      string `json:"content"`
	CourseTitle  string `json:"course_title"`
	LessonNumber *int   `json:"lesson_number,omitempty"` // nil when the text is not part of a lesson
	ChunkIndex   int    `json:"chunk_index"`
}

// ChunkMetadata is what the content collection returns alongside each match.
type ChunkMetadata struct {
	CourseTitle  string `json:"course_title"`
	LessonNumber *int   `json:"lesson_number,omitempty"`
	ChunkIndex   int    `json:"chunk_index"`
}

// SearchResults holds parallel slices ordered by ascending distance.
// When Error is set the slices are empty.
type SearchResults struct {
	Documents []string        `json:"documents"`
	Metadata  []ChunkMetadata `json:"metadata"`
	Distances []float64       `json:"distances"`
	Error     string          `json:"error,omitempty"`
}

func (r SearchResults) IsEmpty() bool {
	return len(r.Documents) == 0
}

func searchError(msg string) SearchResults {
	return SearchResults{Error: msg}
}

// Record is a single row of a collection.
type Record struct {
	ID        string
	Document  string
	Metadata  map[string]any
	Embedding []float32
	CreatedAt time.Time
}

// Match is a Record returned from a similarity query together with its
// cosine distance to the query vector.
type Match struct {
	Record
	Distance float64
}

// IntPtr is a small helper for optional lesson numbers.
func IntPtr(v int) *int {
	return &v
}
