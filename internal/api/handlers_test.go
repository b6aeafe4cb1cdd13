package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/course-assistant/internal/core"
	"gwi.com/course-assistant/internal/logger"
	"gwi.com/course-assistant/internal/store"
)

type fakeService struct {
	answer   *core.Answer
	err      error
	queries  []string
	sessions map[string]bool
}

func (f *fakeService) Ask(_ context.Context, query, sessionID string) (*core.Answer, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(query) == "" {
		return nil, core.ErrEmptyQuery
	}
	a := *f.answer
	if sessionID != "" {
		a.SessionID = sessionID
	}
	return &a, nil
}

func (f *fakeService) CreateSession() string {
	f.sessions["session_1"] = true
	return "session_1"
}

func (f *fakeService) ClearSession(id string) bool {
	return f.sessions[id]
}

func (f *fakeService) DeleteSession(id string) bool {
	ok := f.sessions[id]
	delete(f.sessions, id)
	return ok
}

func (f *fakeService) CourseAnalytics(context.Context) (*core.CourseAnalytics, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.CourseAnalytics{TotalCourses: 1, CourseTitles: []string{"Test Course"}}, nil
}

func (f *fakeService) CourseCatalog(context.Context) ([]store.Course, error) {
	return []store.Course{{Title: "Test Course", Lessons: []store.Lesson{{Number: 1, Title: "Intro"}}}}, nil
}

func newServer(t *testing.T, svc *fakeService) *httptest.Server {
	t.Helper()
	if svc.sessions == nil {
		svc.sessions = map[string]bool{}
	}
	srv := httptest.NewServer(NewRouter(NewAPIHandler(svc, logger.NewNop()), logger.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestQueryHandler(t *testing.T) {
	svc := &fakeService{answer: &core.Answer{
		Answer:      "Fundamentals.",
		Sources:     []string{"Test Course - Lesson 1"},
		SourceLinks: map[string]string{"Test Course - Lesson 1": "https://example.com/lesson1"},
		SessionID:   "new",
	}}
	srv := newServer(t, svc)

	resp := postJSON(t, srv.URL+"/api/query", `{"query":"What is lesson 1?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body QueryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Fundamentals.", body.Answer)
	assert.Equal(t, []string{"Test Course - Lesson 1"}, body.Sources)
	assert.Equal(t, "https://example.com/lesson1", body.SourceLinks["Test Course - Lesson 1"])
	assert.Equal(t, "new", body.SessionID)
}

func TestQueryHandlerKeepsSession(t *testing.T) {
	svc := &fakeService{answer: &core.Answer{Answer: "ok"}}
	srv := newServer(t, svc)

	resp := postJSON(t, srv.URL+"/api/query", `{"query":"q","session_id":"abc"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "abc", body["session_id"])
	assert.Equal(t, []any{}, body["sources"])
	assert.NotContains(t, body, "source_links")
}

func TestQueryHandlerMissingQuery(t *testing.T) {
	svc := &fakeService{answer: &core.Answer{}}
	srv := newServer(t, svc)

	for _, payload := range []string{`{}`, `not json`, `{"query":""}`} {
		resp := postJSON(t, srv.URL+"/api/query", payload)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, payload)

		var body ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.NotEmpty(t, body.Detail)
	}
}

func TestQueryHandlerFailure(t *testing.T) {
	svc := &fakeService{err: errors.New("model call 1 failed: overloaded")}
	srv := newServer(t, svc)

	resp := postJSON(t, srv.URL+"/api/query", `{"query":"q"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Detail, "overloaded")
}

func TestCoursesHandlers(t *testing.T) {
	srv := newServer(t, &fakeService{})

	resp, err := http.Get(srv.URL + "/api/courses")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var analytics core.CourseAnalytics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&analytics))
	assert.Equal(t, 1, analytics.TotalCourses)
	assert.Equal(t, []string{"Test Course"}, analytics.CourseTitles)

	catalog, err := http.Get(srv.URL + "/api/courses/catalog/")
	require.NoError(t, err)
	defer catalog.Body.Close()
	require.Equal(t, http.StatusOK, catalog.StatusCode)

	var courses []store.Course
	require.NoError(t, json.NewDecoder(catalog.Body).Decode(&courses))
	require.Len(t, courses, 1)
	assert.Equal(t, "Test Course", courses[0].Title)
}

func TestCoursesHandlerFailure(t *testing.T) {
	srv := newServer(t, &fakeService{err: errors.New("index unavailable")})

	resp, err := http.Get(srv.URL + "/api/courses")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestSessionHandlers(t *testing.T) {
	srv := newServer(t, &fakeService{})

	resp := postJSON(t, srv.URL+"/api/sessions", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Equal(t, "session_1", created["session_id"])

	clearSession := func() int {
		resp := postJSON(t, srv.URL+"/api/sessions/session_1/clear", "")
		return resp.StatusCode
	}
	del := func() int {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/session_1", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusNoContent, clearSession())
	assert.Equal(t, http.StatusNoContent, del())
	assert.Equal(t, http.StatusNotFound, del())
	assert.Equal(t, http.StatusNotFound, clearSession())
}

func TestHealthHandler(t *testing.T) {
	srv := newServer(t, &fakeService{})

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
