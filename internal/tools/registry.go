package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gwi.com/course-assistant/internal/llm"
	"gwi.com/course-assistant/internal/logger"
)

// Registry manages tool registration and dispatch by name. It holds no
// per-query state, so one registry can serve concurrent queries.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		logger: log,
	}
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) error {
	name := tool.Definition().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns tool schemas in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name. An unknown name is not an error: the model
// gets a textual "not found" result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (Result, error) {
	tool, ok := r.Get(name)
	if !ok {
		r.logger.Warn("model requested unknown tool", "tool", name)
		return Result{Text: fmt.Sprintf("Tool '%s' not found", name)}, nil
	}

	start := time.Now()
	result, err := tool.Execute(ctx, args)
	r.logger.Debug("tool executed",
		"tool", name,
		"duration_ms", time.Since(start).Milliseconds(),
		"sources", len(result.Sources),
		"error", err,
	)
	if err != nil {
		return Result{}, fmt.Errorf("tool %s failed: %w", name, err)
	}
	return result, nil
}
