package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/prvlabs/prva/internal/chunk"
	"github.com/prvlabs/prva/internal/knowledge"
)

// Document ingestion statuses reported per document.
const (
	StatusComplete = "complete"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// DocumentReport is the per-document outcome of a batch ingestion.
type DocumentReport struct {
	SourceID string `json:"source_id"`
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Chunks   int    `json:"chunks"`
}

// Config holds the pipeline parameters, declared once per deployment.
// Chunk sizes and the context budget are measured in runes.
type Config struct {
	ChunkSize       int
	ChunkOverlap    int
	TopK            int
	MaxContextChars int
}

// System wires the chunker parameters, the embedder, the generator and a
// store into the ingestion and query pipelines. It holds no mutable
// state of its own; concurrency control is delegated to the store.
type System struct {
	store     knowledge.Store
	embedder  knowledge.Embedder
	generator knowledge.Generator
	cfg       Config
	logger    *slog.Logger
}

// New creates a System. The store handle's lifecycle is owned by the
// caller (the entry point that constructed it).
func New(store knowledge.Store, embedder knowledge.Embedder, generator knowledge.Generator, cfg Config, logger *slog.Logger) (*System, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 8
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 6000
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &System{
		store:     store,
		embedder:  embedder,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Ingest runs every document through the pipeline and reports each
// outcome. One document failing never aborts the batch.
func (s *System) Ingest(ctx context.Context, docs []knowledge.Document) []DocumentReport {
	reports := make([]DocumentReport, 0, len(docs))
	for _, doc := range docs {
		written, err := s.ingestOne(ctx, doc)
		switch {
		case err == nil:
			reports = append(reports, DocumentReport{
				SourceID: doc.SourceID,
				Status:   StatusComplete,
				Chunks:   written,
			})
		case errors.Is(err, knowledge.ErrEmptyDocument):
			s.logger.Warn("skipping empty document", "source_id", doc.SourceID)
			reports = append(reports, DocumentReport{
				SourceID: doc.SourceID,
				Status:   StatusSkipped,
				Detail:   err.Error(),
			})
		default:
			s.logger.Error("document ingestion failed", "source_id", doc.SourceID, "error", err)
			reports = append(reports, DocumentReport{
				SourceID: doc.SourceID,
				Status:   StatusFailed,
				Detail:   err.Error(),
			})
		}
	}
	return reports
}

// ingestOne advances a single document through the pipeline states.
// Any error is terminal for this document only.
func (s *System) ingestOne(ctx context.Context, doc knowledge.Document) (int, error) {
	// Received → Chunked
	texts, err := chunk.Split(doc.RawText, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return 0, fmt.Errorf("chunking %q: %w", doc.SourceID, err)
	}
	if len(texts) == 0 {
		return 0, fmt.Errorf("%w: %q", knowledge.ErrEmptyDocument, doc.SourceID)
	}

	// Chunked → Embedded. An embedder outage fails this document; the
	// caller decides whether to retry, never the pipeline.
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %q: %w", doc.SourceID, err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks of %q",
			len(vectors), len(texts), doc.SourceID)
	}

	timestamp := doc.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	chunks := make([]knowledge.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = knowledge.Chunk{
			ID:          uuid.NewString(),
			SourceType:  doc.SourceType,
			SourceID:    doc.SourceID,
			ValveModel:  doc.ValveModel,
			Timestamp:   timestamp,
			Metadata:    doc.Metadata,
			TextContent: text,
			Embedding:   vectors[i],
		}
	}

	// Embedded → Stored → Complete
	written, err := s.store.Upsert(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("storing %q: %w", doc.SourceID, err)
	}
	return written, nil
}
