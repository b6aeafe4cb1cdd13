package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gwi.com/course-assistant/internal/llm"
)

var ErrInvalidArgument = errors.New("invalid tool argument")

// Tool is a capability the model may invoke by name.
type Tool interface {
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// Result is what a tool hands back: the text the model sees and the
// citations to show the user.
type Result struct {
	Text    string
	Sources []string
	Links   map[string]string // source label -> lesson or course link
}

func stringArg(args map[string]any, key string, required bool) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("%w: %s is required", ErrInvalidArgument, key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidArgument, key, v)
	}
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", fmt.Errorf("%w: %s must not be empty", ErrInvalidArgument, key)
	}
	return s, nil
}

// intArg accepts the numeric shapes providers send for integer parameters.
func intArg(args map[string]any, key string) (*int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	var n int
	switch t := v.(type) {
	case int:
		n = t
	case int32:
		n = int(t)
	case int64:
		n = int(t)
	case float64:
		if t != math.Trunc(t) {
			return nil, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidArgument, key, t)
		}
		n = int(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer: %v", ErrInvalidArgument, key, err)
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer: %v", ErrInvalidArgument, key, err)
		}
		n = i
	default:
		return nil, fmt.Errorf("%w: %s must be an integer, got %T", ErrInvalidArgument, key, v)
	}
	return &n, nil
}
