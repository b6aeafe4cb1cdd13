package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gwi.com/course-assistant/internal/logger"
)

var _ Completer = (*AnthropicService)(nil)

const (
	DefaultAnthropicBaseURL = "https://api.anthropic.com"
	DefaultAnthropicModel   = "claude-sonnet-4-20250514"
	DefaultMaxTokens        = 800
	DefaultTimeout          = 120 * time.Second

	anthropicVersion = "2023-06-01"
)

type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AnthropicService talks to the Messages API. Temperature is pinned to 0.
type AnthropicService struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	logger    *logger.Logger
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []ToolDefinition   `json:"tools,omitempty"`
	ToolChoice  *ToolChoice        `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    Role             `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAnthropicService(cfg AnthropicConfig, log *logger.Logger) (*AnthropicService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAnthropicBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &AnthropicService{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    log,
	}, nil
}

func (s *AnthropicService) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	messages, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	reqBody := anthropicRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    req.System,
		Messages:  messages,
	}
	if len(req.Tools) > 0 {
		reqBody.Tools = req.Tools
		reqBody.ToolChoice = req.ToolChoice
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", s.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: read response: %w", err)
	}

	var msgResp anthropicResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return nil, fmt.Errorf("anthropic: decode response (status %d): %w", resp.StatusCode, err)
	}
	if msgResp.Error != nil {
		return nil, fmt.Errorf("anthropic error: %s", msgResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic error (status %d): %s", resp.StatusCode, string(body))
	}

	out := &CompletionResponse{StopReason: msgResp.StopReason}
	for _, b := range msgResp.Content {
		switch b.Type {
		case BlockText:
			out.Content = append(out.Content, ContentBlock{Type: BlockText, Text: b.Text})
		case BlockToolUse:
			input := map[string]any{}
			if len(b.Input) > 0 {
				if err := json.Unmarshal(b.Input, &input); err != nil {
					return nil, fmt.Errorf("anthropic: decode tool input for %s: %w", b.Name, err)
				}
			}
			out.Content = append(out.Content, ContentBlock{Type: BlockToolUse, ID: b.ID, Name: b.Name, Input: input})
		}
	}

	s.logger.Debug("anthropic completion",
		"model", s.model,
		"stop_reason", out.StopReason,
		"tools_offered", len(req.Tools),
		"elapsed", time.Since(start))
	return out, nil
}

func toAnthropicMessages(msgs []Message) ([]anthropicMessage, error) {
	out := make([]anthropicMessage, 0, len(msgs))
	for _, m := range msgs {
		am := anthropicMessage{Role: m.Role, Content: make([]anthropicBlock, 0, len(m.Content))}
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				am.Content = append(am.Content, anthropicBlock{Type: BlockText, Text: b.Text})
			case BlockToolUse:
				input := b.Input
				if input == nil {
					input = map[string]any{}
				}
				raw, err := json.Marshal(input)
				if err != nil {
					return nil, fmt.Errorf("anthropic: marshal tool input for %s: %w", b.Name, err)
				}
				am.Content = append(am.Content, anthropicBlock{Type: BlockToolUse, ID: b.ID, Name: b.Name, Input: raw})
			case BlockToolResult:
				am.Content = append(am.Content, anthropicBlock{
					Type:      BlockToolResult,
					ToolUseID: b.ToolUseID,
					Content:   b.Content,
					IsError:   b.IsError,
				})
			default:
				return nil, fmt.Errorf("anthropic: unsupported content block %q", b.Type)
			}
		}
		out = append(out, am)
	}
	return out, nil
}
