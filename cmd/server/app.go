package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gwi.com/course-assistant/internal/config"
	"gwi.com/course-assistant/internal/core"
	"gwi.com/course-assistant/internal/document"
	"gwi.com/course-assistant/internal/embedding"
	"gwi.com/course-assistant/internal/llm"
	"gwi.com/course-assistant/internal/logger"
	"gwi.com/course-assistant/internal/session"
	"gwi.com/course-assistant/internal/store"
)

// app holds the wired services and everything that needs closing.
type app struct {
	cfg     *config.Config
	logger  *logger.Logger
	store   *store.VectorStore
	rag     *core.RAGService
	chat    *core.ChatService
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.logger.Sync()
}

// newApp loads configuration and wires the services. The model provider is
// only required when withModel is set; ingestion and listing work offline.
func newApp(ctx context.Context, configPath string, withModel bool) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if withModel {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a := &app{cfg: cfg, logger: log}

	var gemini *llm.GeminiService
	getGemini := func() (*llm.GeminiService, error) {
		if gemini != nil {
			return gemini, nil
		}
		svc, err := llm.NewGeminiService(ctx, llm.GeminiConfig{
			APIKey:         cfg.GeminiAPIKey,
			ChatModel:      cfg.GeminiModel,
			EmbeddingModel: cfg.EmbeddingModel,
			MaxTokens:      cfg.MaxTokens,
		}, log)
		if err != nil {
			return nil, err
		}
		gemini = svc
		a.closers = append(a.closers, svc.Close)
		return svc, nil
	}

	embedder, err := newEmbedder(cfg, func() (embedding.Embedder, error) { return getGemini() })
	if err != nil {
		a.Close()
		return nil, err
	}

	vs, db, err := store.OpenVectorStore(ctx, cfg.IndexPath, embedder, cfg.MaxResults, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = vs
	a.closers = append(a.closers, func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close index", "error", err)
		}
	})

	registry, err := core.NewCourseRegistry(vs, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	var completer llm.Completer = unconfiguredCompleter{}
	if withModel {
		switch strings.ToLower(cfg.LLMProvider) {
		case "gemini":
			svc, err := getGemini()
			if err != nil {
				a.Close()
				return nil, err
			}
			completer = svc
		default:
			svc, err := llm.NewAnthropicService(llm.AnthropicConfig{
				APIKey:    cfg.AnthropicAPIKey,
				Model:     cfg.AnthropicModel,
				MaxTokens: cfg.MaxTokens,
				Timeout:   60 * time.Second,
			}, log)
			if err != nil {
				a.Close()
				return nil, err
			}
			completer = svc
		}
	}

	sessions := session.NewManager(cfg.MaxHistory)
	processor := document.NewProcessor(cfg.ChunkSize, cfg.ChunkOverlap)
	a.rag = core.NewRAGService(vs, processor, core.NewGenerator(completer, log), registry, sessions, log)
	a.chat = core.NewChatService(a.rag, sessions, log)

	log.Debug("services wired",
		"llm_provider", cfg.LLMProvider,
		"embedding_provider", cfg.EmbeddingProvider,
		"index", cfg.IndexPath,
		"tools", registry.Count(),
		"model_enabled", withModel)
	return a, nil
}

// newEmbedder builds the cached embedding chain. Only the remote provider is
// throttled.
func newEmbedder(cfg *config.Config, remote func() (embedding.Embedder, error)) (*embedding.Cached, error) {
	var base embedding.Embedder
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case "gemini":
		svc, err := remote()
		if err != nil {
			return nil, err
		}
		base = embedding.NewRateLimited(svc, cfg.EmbeddingRPS)
	default:
		base = embedding.NewHashEmbedder(cfg.EmbeddingDimension)
	}
	return embedding.NewCached(base, cfg.EmbeddingCacheSize)
}

type unconfiguredCompleter struct{}

func (unconfiguredCompleter) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, fmt.Errorf("no language model configured")
}
