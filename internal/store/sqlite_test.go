package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/course-assistant/internal/logger"
)

func newCollection(t *testing.T, name string) *SQLiteCollection {
	t.Helper()
	db, err := NewSQLiteStore(filepath.Join(t.TempDir(), "c.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := db.Collection(context.Background(), name)
	require.NoError(t, err)
	return c
}

func TestCollectionInsertDuplicate(t *testing.T) {
	c := newCollection(t, "things")
	ctx := context.Background()

	rec := Record{ID: "a", Document: "doc", Metadata: map[string]any{"k": "v"}, Embedding: []float32{1, 0}}
	require.NoError(t, c.Insert(ctx, rec))
	assert.ErrorIs(t, c.Insert(ctx, rec), ErrDuplicate)

	rec.Document = "changed"
	require.NoError(t, c.Upsert(ctx, rec))

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "changed", got.Document)
	assert.Equal(t, []float32{1, 0}, got.Embedding)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollectionGetMissing(t *testing.T) {
	c := newCollection(t, "things")
	got, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCollectionQueryOrderAndFilter(t *testing.T) {
	c := newCollection(t, "things")
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx,
		Record{ID: "x", Document: "x", Metadata: map[string]any{"lesson_number": 1}, Embedding: []float32{1, 0}},
		Record{ID: "y", Document: "y", Metadata: map[string]any{"lesson_number": 2}, Embedding: []float32{0.7, 0.7}},
		Record{ID: "z", Document: "z", Metadata: map[string]any{"lesson_number": 2}, Embedding: []float32{0, 1}},
	))

	all, err := c.Query(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"x", "y", "z"}, []string{all[0].ID, all[1].ID, all[2].ID})

	filtered, err := c.Query(ctx, []float32{1, 0}, 10, map[string]any{"lesson_number": 2})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, "y", filtered[0].ID)

	limited, err := c.Query(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := c.Query(ctx, []float32{1, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCollectionReset(t *testing.T) {
	c := newCollection(t, "things")
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, Record{ID: "a", Document: "a", Embedding: []float32{1}}))

	require.NoError(t, c.Reset(ctx))
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInvalidCollectionName(t *testing.T) {
	db, err := NewSQLiteStore(filepath.Join(t.TempDir(), "c.db"), logger.NewNop())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Collection(context.Background(), "bad; DROP TABLE x")
	assert.Error(t, err)
}

func TestMatchesWhere(t *testing.T) {
	meta := map[string]any{"course_title": "Go", "lesson_number": float64(3)}

	assert.True(t, matchesWhere(meta, nil))
	assert.True(t, matchesWhere(meta, map[string]any{"lesson_number": 3}))
	assert.True(t, matchesWhere(meta, map[string]any{"lesson_number": json.Number("3"), "course_title": "Go"}))
	assert.False(t, matchesWhere(meta, map[string]any{"lesson_number": 4}))
	assert.False(t, matchesWhere(meta, map[string]any{"course_title": "Rust"}))
	assert.False(t, matchesWhere(meta, map[string]any{"missing": "x"}))
}
