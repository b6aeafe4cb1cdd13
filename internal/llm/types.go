package llm

import (
	"context"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

const (
	StopReasonEndTurn   = "end_turn"
	StopReasonToolUse   = "tool_use"
	StopReasonMaxTokens = "max_tokens"
)

// ContentBlock is one piece of a message. Which fields are set depends on Type.
type ContentBlock struct {
	Type BlockType

	// text
	Text string

	// tool_use
	ID    string
	Name  string
	Input map[string]any

	// tool_result; Name repeats the tool name for providers that key
	// results by function name rather than call id.
	ToolUseID string
	Content   string
	IsError   bool
}

type Message struct {
	Role    Role
	Content []ContentBlock
}

func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// Property describes one tool parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is the provider-neutral schema of a callable tool.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

type ToolChoice struct {
	Type string `json:"type"`
}

var ToolChoiceAuto = &ToolChoice{Type: "auto"}

type CompletionRequest struct {
	System     string
	Messages   []Message
	Tools      []ToolDefinition
	ToolChoice *ToolChoice
}

type CompletionResponse struct {
	Content    []ContentBlock
	StopReason string
}

// Text concatenates the text blocks of the response.
func (r *CompletionResponse) Text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the tool_use blocks in the order the model emitted them.
func (r *CompletionResponse) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// Completer is a chat model that can request tool calls.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
