package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore persists chunks in a pgvector table. Replace-on-upsert
// runs inside a single transaction, so concurrent readers see either the
// fully-old or fully-new chunk set for a source, never a mix.
//
// The IVFFLAT cosine index over the embedding column stays queryable
// after every upsert; index quality maintenance (REINDEX after large
// distribution shifts) is an operational concern, never a precondition
// for serving queries.
type PostgresStore struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store over an existing pool. dim must match
// the vector column width created by the migrations.
func NewPostgresStore(pool *pgxpool.Pool, dim int, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, dim: dim, logger: logger}
}

const insertChunkSQL = `
	INSERT INTO chunks (id, source_type, source_id, valve_model, text_content, metadata, embedding, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Upsert replaces all chunks for the batch's source in one transaction.
func (s *PostgresStore) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := validateBatch(chunks, s.dim); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer func() {
		// No-op after commit.
		_ = tx.Rollback(ctx)
	}()

	first := chunks[0]
	if _, err := tx.Exec(ctx,
		`DELETE FROM chunks WHERE source_type = $1 AND source_id = $2`,
		first.SourceType, first.SourceID); err != nil {
		return 0, fmt.Errorf("deleting prior chunks for %q: %w", first.SourceID, err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshaling metadata for chunk %q: %w", c.ID, err)
		}
		createdAt := c.Timestamp
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batch.Queue(insertChunkSQL,
			c.ID, c.SourceType, c.SourceID, c.ValveModel, c.TextContent,
			metadataJSON, pgvector.NewVector(c.Embedding), createdAt)
	}

	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("inserting chunks for %q: %w", first.SourceID, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("closing insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing upsert for %q: %w", first.SourceID, err)
	}

	s.logger.Debug("upserted chunks",
		"source_type", first.SourceType,
		"source_id", first.SourceID,
		"count", len(chunks))
	return len(chunks), nil
}

const searchSQL = `
	SELECT id, source_type, source_id, valve_model, text_content, metadata, created_at,
	       embedding <=> $1 AS distance
	FROM chunks
	ORDER BY embedding <=> $1, inserted_seq DESC
	LIMIT $2`

const searchFilteredSQL = `
	SELECT id, source_type, source_id, valve_model, text_content, metadata, created_at,
	       embedding <=> $1 AS distance
	FROM chunks
	WHERE valve_model = $2
	ORDER BY embedding <=> $1, inserted_seq DESC
	LIMIT $3`

// Search returns the k nearest chunks by cosine distance, nearest first.
func (s *PostgresStore) Search(ctx context.Context, queryEmbedding []float32, k int, opts ...SearchOption) ([]Result, error) {
	if len(queryEmbedding) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			ErrSchemaMismatch, len(queryEmbedding), s.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	cfg := buildSearchConfig(opts)

	query := pgvector.NewVector(queryEmbedding)
	var rows pgx.Rows
	var err error
	if cfg.valveModel != "" {
		rows, err = s.pool.Query(ctx, searchFilteredSQL, query, cfg.valveModel, k)
	} else {
		rows, err = s.pool.Query(ctx, searchSQL, query, k)
	}
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0, k)
	for rows.Next() {
		var (
			c            Chunk
			valveModel   *string
			metadataJSON []byte
			distance     float64
		)
		if err := rows.Scan(&c.ID, &c.SourceType, &c.SourceID, &valveModel,
			&c.TextContent, &metadataJSON, &c.Timestamp, &distance); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if valveModel != nil {
			c.ValveModel = *valveModel
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
				s.logger.Warn("failed to parse chunk metadata", "chunk_id", c.ID, "error", err)
				c.Metadata = map[string]string{}
			}
		}
		results = append(results, Result{Chunk: c, Distance: float32(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}
	return results, nil
}

// Count returns the total number of stored chunks.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return int(count), nil
}

// DeleteSource removes all chunks for the given source.
func (s *PostgresStore) DeleteSource(ctx context.Context, sourceType, sourceID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM chunks WHERE source_type = $1 AND source_id = $2`,
		sourceType, sourceID); err != nil {
		return fmt.Errorf("deleting chunks for %q: %w", sourceID, err)
	}
	return nil
}

// Close is a no-op; the pool's lifecycle is owned by the caller.
func (*PostgresStore) Close() error {
	return nil
}

// validateBatch checks the upsert preconditions shared by both store
// implementations: one source per batch, exact embedding width.
func validateBatch(chunks []Chunk, dim int) error {
	first := chunks[0]
	for _, c := range chunks {
		if c.SourceType != first.SourceType || c.SourceID != first.SourceID {
			return fmt.Errorf("%w: %s/%s vs %s/%s", ErrMixedSources,
				first.SourceType, first.SourceID, c.SourceType, c.SourceID)
		}
		if len(c.Embedding) != dim {
			return fmt.Errorf("%w: chunk %q has %d dimensions, store expects %d",
				ErrSchemaMismatch, c.ID, len(c.Embedding), dim)
		}
	}
	return nil
}
