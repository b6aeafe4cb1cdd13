package core

import (
	"context"
	"fmt"

	"gwi.com/course-assistant/internal/llm"
	"gwi.com/course-assistant/internal/logger"
	"gwi.com/course-assistant/internal/tools"
)

const systemPrompt = `You are an AI assistant specialized in course materials and educational content with access to a search tool for course information.

Search tool usage:
- Use the search tool only for questions about specific course content or detailed educational materials
- One search per query at most
- Synthesize search results into accurate, fact-based responses
- If the search yields no results, say so clearly without offering alternatives

Response protocol:
- General knowledge questions: answer from existing knowledge without searching
- Course-specific questions: search first, then answer
- No meta-commentary: do not explain your reasoning, the search process, or mention "based on the search results"

All responses must be brief, concise and focused, educational, clear, and supported by examples when they aid understanding.
Provide only the direct answer to what was asked.`

// QueryState names the steps of one question's trip through the model.
type QueryState int

const (
	StateInitial QueryState = iota
	StateAwaitingModel
	StateToolRequested
	StateToolsExecuted
	StateFinalModel
	StateDone
)

func (s QueryState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateToolRequested:
		return "tool_requested"
	case StateToolsExecuted:
		return "tools_executed"
	case StateFinalModel:
		return "final_model"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ToolExecutor is what the generator needs from a tool registry.
type ToolExecutor interface {
	Definitions() []llm.ToolDefinition
	Execute(ctx context.Context, name string, args map[string]any) (tools.Result, error)
}

type GenerateRequest struct {
	Query   string
	History string
	Tools   ToolExecutor // nil disables tool use
}

type ToolCallRecord struct {
	ID      string
	Name    string
	Input   map[string]any
	Output  string
	Sources []string
}

type GenerateResult struct {
	Answer      string
	ToolCalls   []ToolCallRecord
	Sources     []string
	SourceLinks map[string]string
	RoundTrips  int
	State       QueryState
}

// Generator drives the model through at most one round of tool use: the
// first call may request tools, the follow-up call is made without them.
type Generator struct {
	completer llm.Completer
	logger    *logger.Logger
}

func NewGenerator(completer llm.Completer, log *logger.Logger) *Generator {
	return &Generator{completer: completer, logger: log}
}

func (g *Generator) GenerateResponse(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	system := systemPrompt
	if req.History != "" {
		system += "\n\nPrevious conversation:\n" + req.History
	}

	messages := []llm.Message{llm.TextMessage(llm.RoleUser, req.Query)}
	call := llm.CompletionRequest{System: system, Messages: messages}
	if req.Tools != nil {
		if defs := req.Tools.Definitions(); len(defs) > 0 {
			call.Tools = defs
			call.ToolChoice = llm.ToolChoiceAuto
		}
	}

	result := &GenerateResult{State: StateInitial}
	var resp *llm.CompletionResponse

	for result.State != StateDone {
		switch result.State {
		case StateInitial:
			result.State = StateAwaitingModel

		case StateAwaitingModel:
			var err error
			resp, err = g.complete(ctx, call, result)
			if err != nil {
				return nil, err
			}
			if req.Tools != nil && len(resp.ToolUses()) > 0 {
				result.State = StateToolRequested
				continue
			}
			result.Answer = resp.Text()
			result.State = StateDone

		case StateToolRequested:
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})

			uses := resp.ToolUses()
			results := make([]llm.ContentBlock, 0, len(uses))
			for _, use := range uses {
				out, err := req.Tools.Execute(ctx, use.Name, use.Input)
				if err != nil {
					return nil, fmt.Errorf("tool execution failed: %w", err)
				}
				result.ToolCalls = append(result.ToolCalls, ToolCallRecord{
					ID:      use.ID,
					Name:    use.Name,
					Input:   use.Input,
					Output:  out.Text,
					Sources: out.Sources,
				})
				result.Sources = appendUnique(result.Sources, out.Sources...)
				for label, link := range out.Links {
					if result.SourceLinks == nil {
						result.SourceLinks = make(map[string]string)
					}
					result.SourceLinks[label] = link
				}
				results = append(results, llm.ContentBlock{
					Type:      llm.BlockToolResult,
					ToolUseID: use.ID,
					Name:      use.Name,
					Content:   out.Text,
				})
			}
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: results})
			result.State = StateToolsExecuted

		case StateToolsExecuted:
			call = llm.CompletionRequest{System: system, Messages: messages}
			result.State = StateFinalModel

		case StateFinalModel:
			final, err := g.complete(ctx, call, result)
			if err != nil {
				return nil, err
			}
			result.Answer = final.Text()
			result.State = StateDone
		}
	}

	g.logger.Debug("response generated",
		"round_trips", result.RoundTrips,
		"tool_calls", len(result.ToolCalls),
		"sources", len(result.Sources))
	return result, nil
}

func (g *Generator) complete(ctx context.Context, call llm.CompletionRequest, result *GenerateResult) (*llm.CompletionResponse, error) {
	resp, err := g.completer.Complete(ctx, call)
	result.RoundTrips++
	if err != nil {
		return nil, fmt.Errorf("model call %d failed: %w", result.RoundTrips, err)
	}
	return resp, nil
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		seen := false
		for _, d := range dst {
			if d == v {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, v)
		}
	}
	return dst
}
