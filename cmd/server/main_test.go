package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/course-assistant/internal/config"
	"gwi.com/course-assistant/internal/embedding"
)

const courseDoc = `Course Title: Test Course
Course Instructor: Test Instructor

Lesson 1: Introduction
This is an introduction to the course fundamentals and basic concepts.
`

func writeConfig(t *testing.T) (configPath, docsDir string) {
	t.Helper()
	for _, key := range []string{"INDEX_PATH", "DOCS_PATH", "EMBEDDING_PROVIDER", "LOG_LEVEL", "LOG_MODE", "CONFIG_FILE"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	docsDir = filepath.Join(dir, "docs")
	require.NoError(t, os.Mkdir(docsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docsDir, "course1.txt"), []byte(courseDoc), 0o644))

	configPath = filepath.Join(dir, "config.yaml")
	cfg := "index_path: " + filepath.Join(dir, "index.db") + "\n" +
		"docs_path: " + docsDir + "\n" +
		"embedding_provider: local\n" +
		"embedding_dimension: 128\n" +
		"log_level: error\n" +
		"log_mode: production\n"
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))
	return configPath, docsDir
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestIngestAndListCourses(t *testing.T) {
	configPath, docsDir := writeConfig(t)

	out := run(t, "--config", configPath, "ingest", docsDir)
	assert.Contains(t, out, "Added 1 courses with 1 chunks (0 skipped)")

	out = run(t, "--config", configPath, "ingest")
	assert.Contains(t, out, "Added 0 courses with 0 chunks (1 skipped)")

	out = run(t, "--config", configPath, "courses")
	assert.Contains(t, out, "1 courses")
	assert.Contains(t, out, "Test Course (1 lessons) by Test Instructor")

	out = run(t, "--config", configPath, "courses", "--json")
	var courses []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &courses))
	require.Len(t, courses, 1)
}

func TestIngestClear(t *testing.T) {
	configPath, docsDir := writeConfig(t)

	run(t, "--config", configPath, "ingest", docsDir)
	out := run(t, "--config", configPath, "ingest", "--clear", docsDir)
	assert.Contains(t, out, "Added 1 courses")
}

func TestAskRequiresModelKey(t *testing.T) {
	configPath, _ := writeConfig(t)
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", configPath, "ask", "what is lesson 1?"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1}, nil
}

func embedMany(ctx context.Context, e embedding.Embedder, n int) error {
	for i := 0; i < n; i++ {
		if _, err := e.Embed(ctx, fmt.Sprintf("text %d", i)); err != nil {
			return err
		}
	}
	return nil
}

func TestLocalEmbedderIsNotThrottled(t *testing.T) {
	cfg := &config.Config{EmbeddingProvider: "local", EmbeddingDimension: 64, EmbeddingRPS: 1}
	e, err := newEmbedder(cfg, func() (embedding.Embedder, error) {
		t.Fatal("remote provider must not be built for local embeddings")
		return nil, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.NoError(t, embedMany(ctx, e, 50))
}

func TestRemoteEmbedderIsThrottled(t *testing.T) {
	cfg := &config.Config{EmbeddingProvider: "gemini", EmbeddingRPS: 1}
	e, err := newEmbedder(cfg, func() (embedding.Embedder, error) { return constEmbedder{}, nil })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.Error(t, embedMany(ctx, e, 5))
}
