package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

// Metadata keys the local store reserves for chunk fields. User metadata
// with these keys is overwritten on write and stripped on read.
const (
	metaSourceType = "source_type"
	metaSourceID   = "source_id"
	metaValveModel = "valve_model"
	metaTimestamp  = "timestamp"
	metaSeq        = "seq"
)

const localCollection = "prv-knowledge"

// LocalStore persists chunks in an embedded chromem-go collection. It is
// the in-process counterpart of PostgresStore: same contract, no server.
//
// chromem orders hits by cosine similarity only, so the store re-sorts
// results to apply the insertion-recency tie-break. The sequence counter
// is seeded from the wall clock, keeping recency ordering across restarts.
type LocalStore struct {
	db     *chromem.DB
	col    *chromem.Collection
	dim    int
	seq    atomic.Int64
	logger *slog.Logger
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore opens (or creates) a persistent collection under path.
// embed is chromem's fallback embedding function; the pipelines always
// supply vectors explicitly.
func NewLocalStore(path string, dim int, embed chromem.EmbeddingFunc, logger *slog.Logger) (*LocalStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}

	expanded, err := expandHome(path)
	if err != nil {
		return nil, fmt.Errorf("expanding store path: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(expanded, false)
	if err != nil {
		return nil, fmt.Errorf("opening local vector database: %w", err)
	}

	col, err := db.GetOrCreateCollection(localCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("opening collection %q: %w", localCollection, err)
	}

	s := &LocalStore{db: db, col: col, dim: dim, logger: logger}
	s.seq.Store(time.Now().UnixNano())
	return s, nil
}

// Upsert replaces all chunks for the batch's source.
func (s *LocalStore) Upsert(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := validateBatch(chunks, s.dim); err != nil {
		return 0, err
	}

	first := chunks[0]
	if err := s.col.Delete(ctx, map[string]string{
		metaSourceType: first.SourceType,
		metaSourceID:   first.SourceID,
	}, nil); err != nil {
		return 0, fmt.Errorf("deleting prior chunks for %q: %w", first.SourceID, err)
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		metadata := make(map[string]string, len(c.Metadata)+5)
		for k, v := range c.Metadata {
			metadata[k] = v
		}
		metadata[metaSourceType] = c.SourceType
		metadata[metaSourceID] = c.SourceID
		metadata[metaValveModel] = c.ValveModel
		metadata[metaTimestamp] = c.Timestamp.UTC().Format(time.RFC3339Nano)
		metadata[metaSeq] = strconv.FormatInt(s.seq.Add(1), 10)

		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Metadata:  metadata,
			Embedding: c.Embedding,
			Content:   c.TextContent,
		})
	}

	if err := s.col.AddDocuments(ctx, docs, 1); err != nil {
		return 0, fmt.Errorf("adding chunks for %q: %w", first.SourceID, err)
	}

	s.logger.Debug("upserted chunks",
		"source_type", first.SourceType,
		"source_id", first.SourceID,
		"count", len(chunks))
	return len(chunks), nil
}

// Search returns the k nearest chunks by cosine distance, nearest first,
// ties broken by insertion recency.
func (s *LocalStore) Search(ctx context.Context, queryEmbedding []float32, k int, opts ...SearchOption) ([]Result, error) {
	if len(queryEmbedding) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			ErrSchemaMismatch, len(queryEmbedding), s.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	cfg := buildSearchConfig(opts)

	// chromem requires nResults <= document count.
	count := s.col.Count()
	if count == 0 {
		return nil, nil
	}
	n := k
	if n > count {
		n = count
	}

	var where map[string]string
	if cfg.valveModel != "" {
		where = map[string]string{metaValveModel: cfg.valveModel}
	}

	hits, err := s.col.QueryEmbedding(ctx, queryEmbedding, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]Result, 0, len(hits))
	seqs := make(map[string]int64, len(hits))
	for _, hit := range hits {
		c, seq := chunkFromChromem(hit)
		seqs[c.ID] = seq
		results = append(results, Result{Chunk: c, Distance: 1 - hit.Similarity})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return seqs[results[i].Chunk.ID] > seqs[results[j].Chunk.ID]
	})
	return results, nil
}

// Count returns the total number of stored chunks.
func (s *LocalStore) Count(context.Context) (int, error) {
	return s.col.Count(), nil
}

// DeleteSource removes all chunks for the given source.
func (s *LocalStore) DeleteSource(ctx context.Context, sourceType, sourceID string) error {
	if err := s.col.Delete(ctx, map[string]string{
		metaSourceType: sourceType,
		metaSourceID:   sourceID,
	}, nil); err != nil {
		return fmt.Errorf("deleting chunks for %q: %w", sourceID, err)
	}
	return nil
}

// Close is a no-op; chromem persists on every write.
func (*LocalStore) Close() error {
	return nil
}

func chunkFromChromem(hit chromem.Result) (Chunk, int64) {
	c := Chunk{
		ID:          hit.ID,
		TextContent: hit.Content,
		Embedding:   hit.Embedding,
		Metadata:    make(map[string]string),
	}
	var seq int64
	for k, v := range hit.Metadata {
		switch k {
		case metaSourceType:
			c.SourceType = v
		case metaSourceID:
			c.SourceID = v
		case metaValveModel:
			c.ValveModel = v
		case metaTimestamp:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				c.Timestamp = t
			}
		case metaSeq:
			seq, _ = strconv.ParseInt(v, 10, 64)
		default:
			c.Metadata[k] = v
		}
	}
	return c, seq
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
