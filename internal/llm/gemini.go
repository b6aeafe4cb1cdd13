package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"gwi.com/course-assistant/internal/logger"
)

var _ Completer = (*GeminiService)(nil)

const (
	DefaultGeminiChatModel      = "gemini-1.5-flash-latest"
	DefaultGeminiEmbeddingModel = "text-embedding-004"
)

type GeminiConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	MaxTokens      int
}

// GeminiService provides chat completion with function calling and text
// embeddings through the Gemini API.
type GeminiService struct {
	client         *genai.Client
	chatModel      string
	embeddingModel string
	maxTokens      int
	logger         *logger.Logger
}

func NewGeminiService(ctx context.Context, cfg GeminiConfig, log *logger.Logger) (*GeminiService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultGeminiChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultGeminiEmbeddingModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiService{
		client:         client,
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		maxTokens:      cfg.MaxTokens,
		logger:         log,
	}, nil
}

func (s *GeminiService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn("error closing GenAI client", "error", err)
		}
	}
}

func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(s.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (s *GeminiService) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	contents, err := toGeminiContents(req.Messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("gemini: no messages to send")
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return nil, fmt.Errorf("gemini: last message must come from the user, got %q", last.Role)
	}

	model := s.client.GenerativeModel(s.chatModel)
	model.SetTemperature(0)
	model.SetMaxOutputTokens(int32(s.maxTokens))
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if len(req.Tools) > 0 {
		model.Tools = toGeminiTools(req.Tools)
		model.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingAuto},
		}
	}

	chatSession := model.StartChat()
	chatSession.History = contents[:len(contents)-1]

	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	return fromGeminiResponse(resp, uuid.NewString)
}

func toGeminiContents(msgs []Message) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		c := &genai.Content{Role: role}
		for _, b := range m.Content {
			switch b.Type {
			case BlockText:
				c.Parts = append(c.Parts, genai.Text(b.Text))
			case BlockToolUse:
				c.Parts = append(c.Parts, genai.FunctionCall{Name: b.Name, Args: b.Input})
			case BlockToolResult:
				if b.Name == "" {
					return nil, fmt.Errorf("gemini: tool result %s has no tool name", b.ToolUseID)
				}
				c.Parts = append(c.Parts, genai.FunctionResponse{
					Name:     b.Name,
					Response: map[string]any{"result": b.Content},
				})
			default:
				return nil, fmt.Errorf("gemini: unsupported content block %q", b.Type)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func toGeminiTools(defs []ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		props := make(map[string]*genai.Schema, len(d.InputSchema.Properties))
		for name, p := range d.InputSchema.Properties {
			props[name] = &genai.Schema{Type: geminiType(p.Type), Description: p.Description}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   d.InputSchema.Required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func geminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// fromGeminiResponse converts the first candidate. Gemini does not assign
// call ids, so newID supplies one per function call.
func fromGeminiResponse(resp *genai.GenerateContentResponse, newID func() string) (*CompletionResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: response had no candidates")
	}

	out := &CompletionResponse{StopReason: StopReasonEndTurn}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonMaxTokens {
		out.StopReason = StopReasonMaxTokens
	}
	for _, part := range cand.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			out.Content = append(out.Content, ContentBlock{Type: BlockText, Text: string(p)})
		case genai.FunctionCall:
			args := p.Args
			if args == nil {
				args = map[string]any{}
			}
			out.Content = append(out.Content, ContentBlock{Type: BlockToolUse, ID: newID(), Name: p.Name, Input: args})
			out.StopReason = StopReasonToolUse
		}
	}
	return out, nil
}
