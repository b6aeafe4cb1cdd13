package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/course-assistant/internal/utils"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(128)
	a, err := e.Embed(context.Background(), "Machine Learning Course")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "Machine Learning Course")
	require.NoError(t, err)

	assert.Len(t, a, 128)
	assert.Equal(t, a, b)
}

func TestHashEmbedderSimilarity(t *testing.T) {
	e := NewHashEmbedder(384)
	ctx := context.Background()

	ml, _ := e.Embed(ctx, "Machine Learning Course")
	query, _ := e.Embed(ctx, "ML Course")
	other, _ := e.Embed(ctx, "Advanced Python Programming")

	near, err := utils.CosineSimilarity(query, ml)
	require.NoError(t, err)
	far, err := utils.CosineSimilarity(query, other)
	require.NoError(t, err)
	assert.Greater(t, near, far)
}

func TestHashEmbedderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(16).Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 2)
	require.NoError(t, err)
	ctx := context.Background()

	_, _ = c.Embed(ctx, "a")
	_, _ = c.Embed(ctx, "a")
	assert.Equal(t, 1, inner.calls)

	_, _ = c.Embed(ctx, "b")
	_, _ = c.Embed(ctx, "c") // evicts "a"
	_, _ = c.Embed(ctx, "a")
	assert.Equal(t, 4, inner.calls)
	assert.Equal(t, 2, c.Len())
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("boom")}
	c, err := NewCached(inner, 4)
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "a")
	assert.Error(t, err)
	assert.Zero(t, c.Len())
}

func TestRateLimitedHonoursContext(t *testing.T) {
	inner := &countingEmbedder{}
	r := NewRateLimited(inner, 0.001)
	ctx := context.Background()

	_, err := r.Embed(ctx, "first")
	require.NoError(t, err)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.Embed(cctx, "second")
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRateLimitedUnlimited(t *testing.T) {
	inner := &countingEmbedder{}
	r := NewRateLimited(inner, 0)
	for i := 0; i < 10; i++ {
		_, err := r.Embed(context.Background(), "x")
		require.NoError(t, err)
	}
	assert.Equal(t, 10, inner.calls)
}
