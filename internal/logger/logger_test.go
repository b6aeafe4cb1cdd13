package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKVs(t *testing.T) {
	out := sanitizeKVs([]interface{}{"api_key", "sk-123", "course", "Intro", "max_tokens", 800, "dangling"})

	require.Len(t, out, 7)
	assert.Equal(t, "[REDACTED]", out[1])
	assert.Equal(t, "Intro", out[3])
	assert.Equal(t, 800, out[5])
	assert.Equal(t, "dangling", out[6])
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	l, err := New("development", "not-a-level")
	require.NoError(t, err)
	assert.True(t, l.SugaredLogger.Desugar().Core().Enabled(0))
	assert.False(t, l.SugaredLogger.Desugar().Core().Enabled(-1))
}

func TestNopDoesNotPanic(t *testing.T) {
	l := NewNop().With("component", "test")
	l.Info("hello", "k", "v")
	l.Sync()
}
