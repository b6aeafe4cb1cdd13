package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/course-assistant/internal/logger"
)

func searchToolDef() ToolDefinition {
	return ToolDefinition{
		Name:        "search_course_content",
		Description: "Search course materials",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query":         {Type: "string"},
				"lesson_number": {Type: "integer"},
			},
			Required: []string{"query"},
		},
	}
}

func newTestAnthropic(t *testing.T, handler http.HandlerFunc) *AnthropicService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := NewAnthropicService(AnthropicConfig{APIKey: "test-key", BaseURL: srv.URL}, logger.NewNop())
	require.NoError(t, err)
	return svc
}

func TestNewAnthropicServiceRequiresKey(t *testing.T) {
	_, err := NewAnthropicService(AnthropicConfig{}, logger.NewNop())
	assert.Error(t, err)
}

func TestAnthropicCompleteToolUse(t *testing.T) {
	var got map[string]any
	svc := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "Let me search."},
				{"type": "tool_use", "id": "toolu_1", "name": "search_course_content", "input": {"query": "MCP", "lesson_number": 2}}
			],
			"stop_reason": "tool_use"
		}`))
	})

	resp, err := svc.Complete(context.Background(), CompletionRequest{
		System:     "sys",
		Messages:   []Message{TextMessage(RoleUser, "What is MCP?")},
		Tools:      []ToolDefinition{searchToolDef()},
		ToolChoice: ToolChoiceAuto,
	})
	require.NoError(t, err)

	assert.Equal(t, StopReasonToolUse, resp.StopReason)
	assert.Equal(t, "Let me search.", resp.Text())
	uses := resp.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "toolu_1", uses[0].ID)
	assert.Equal(t, "MCP", uses[0].Input["query"])
	assert.EqualValues(t, 2, uses[0].Input["lesson_number"])

	assert.Equal(t, "sys", got["system"])
	assert.EqualValues(t, 0, got["temperature"])
	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
	assert.Equal(t, map[string]any{"type": "auto"}, got["tool_choice"])
	assert.Len(t, got["tools"], 1)
}

func TestAnthropicCompleteWithoutToolsOmitsToolFields(t *testing.T) {
	var got map[string]any
	svc := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"done"}],"stop_reason":"end_turn"}`))
	})

	resp, err := svc.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			TextMessage(RoleUser, "q"),
			{Role: RoleAssistant, Content: []ContentBlock{{Type: BlockToolUse, ID: "t1", Name: "search_course_content", Input: map[string]any{"query": "x"}}}},
			{Role: RoleUser, Content: []ContentBlock{{Type: BlockToolResult, ToolUseID: "t1", Name: "search_course_content", Content: "result"}}},
		},
		ToolChoice: ToolChoiceAuto,
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text())

	_, hasTools := got["tools"]
	_, hasChoice := got["tool_choice"]
	assert.False(t, hasTools)
	assert.False(t, hasChoice)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 3)
	result := msgs[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", result["type"])
	assert.Equal(t, "t1", result["tool_use_id"])
	assert.Equal(t, "result", result["content"])
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	svc := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	})

	_, err := svc.Complete(context.Background(), CompletionRequest{Messages: []Message{TextMessage(RoleUser, "q")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
}

func TestAnthropicCompleteBadStatus(t *testing.T) {
	svc := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := svc.Complete(context.Background(), CompletionRequest{Messages: []Message{TextMessage(RoleUser, "q")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCompletionResponseHelpers(t *testing.T) {
	r := &CompletionResponse{Content: []ContentBlock{
		{Type: BlockText, Text: "a"},
		{Type: BlockToolUse, Name: "one"},
		{Type: BlockText, Text: "b"},
		{Type: BlockToolUse, Name: "two"},
	}}
	assert.Equal(t, "ab", r.Text())
	uses := r.ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "one", uses[0].Name)
	assert.Equal(t, "two", uses[1].Name)
}
