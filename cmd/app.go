package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prvlabs/prva/db"
	"github.com/prvlabs/prva/internal/collector"
	"github.com/prvlabs/prva/internal/config"
	"github.com/prvlabs/prva/internal/database"
	"github.com/prvlabs/prva/internal/gemini"
	"github.com/prvlabs/prva/internal/knowledge"
	"github.com/prvlabs/prva/internal/log"
	"github.com/prvlabs/prva/internal/rag"
)

// app bundles the wired components a command needs. Close releases the
// store and (for the postgres backend) the connection pool.
type app struct {
	Config *config.Config
	Logger log.Logger
	System *rag.System
	Store  knowledge.Store
	Pool   *pgxpool.Pool // nil for the local backend
}

// Close releases the store and database resources.
func (a *app) Close() error {
	var firstErr error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			firstErr = err
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return firstErr
}

// setup loads configuration and wires the full pipeline: Gemini client,
// vector store backend, and the RAG system.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()

	client, err := gemini.New(ctx, gemini.Config{
		APIKey:         os.Getenv("GEMINI_API_KEY"),
		EmbedderModel:  cfg.EmbedderModel,
		GeneratorModel: cfg.ModelName,
		Dimension:      cfg.EmbeddingDim,
		Temperature:    cfg.Temperature,
		MaxTokens:      int32(cfg.MaxTokens),
		SystemPrompt:   rag.SystemPrompt,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	var store knowledge.Store
	var pool *pgxpool.Pool

	switch cfg.StoreBackend {
	case config.StoreLocal:
		store, err = knowledge.NewLocalStore(cfg.LocalPath, cfg.EmbeddingDim, knowledge.NewEmbeddingFunc(client), logger)
		if err != nil {
			return nil, fmt.Errorf("opening local store: %w", err)
		}
	default:
		if err = db.Migrate(cfg.PostgresURL()); err != nil {
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		pool, err = database.NewPool(ctx, cfg.PostgresConnectionString())
		if err != nil {
			return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		store = knowledge.NewPostgresStore(pool, cfg.EmbeddingDim, logger)
	}

	system, err := rag.New(store, client, client, rag.Config{
		ChunkSize:       cfg.ChunkSize,
		ChunkOverlap:    cfg.ChunkOverlap,
		TopK:            cfg.TopK,
		MaxContextChars: cfg.MaxContextChars,
	}, logger)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	return &app{
		Config: cfg,
		Logger: logger,
		System: system,
		Store:  store,
		Pool:   pool,
	}, nil
}

// crawlConfig converts the configured crawler limits into collector form.
func (a *app) crawlConfig() collector.Config {
	return collector.Config{
		MaxPages:    a.Config.Crawler.MaxPages,
		Parallelism: a.Config.Crawler.Parallelism,
		Delay:       time.Duration(a.Config.Crawler.DelayMS) * time.Millisecond,
		Timeout:     time.Duration(a.Config.Crawler.TimeoutMS) * time.Millisecond,
	}
}
