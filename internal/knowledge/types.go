package knowledge

import (
	"context"
	"time"
)

// Source type constants for ingested documents.
const (
	// SourceTypeManual represents vendor manuals and datasheets.
	SourceTypeManual = "manual"

	// SourceTypeRepairLog represents maintenance and repair records.
	SourceTypeRepairLog = "repair_log"

	// SourceTypeUpload represents user-uploaded files.
	SourceTypeUpload = "upload"

	// SourceTypeWeb represents crawled web pages.
	SourceTypeWeb = "web"
)

// Document is a unit of ingested content before chunking.
// Re-ingesting the same (SourceType, SourceID) replaces all chunks
// previously derived from it.
type Document struct {
	SourceType string            // "manual", "repair_log", "upload", "web"
	SourceID   string            // Unique within SourceType (filename, URL, log ID)
	ValveModel string            // Optional filter dimension (e.g. "J-series")
	Timestamp  time.Time         // When the content was produced or collected
	RawText    string            // Full original text before chunking
	Metadata   map[string]string // Passed through to every derived chunk
}

// Chunk is a bounded-size segment of a Document, the unit of embedding
// and retrieval. Chunks are immutable once stored; they are replaced
// wholesale when the owning document is re-ingested.
type Chunk struct {
	ID          string            // Generated at creation (uuid)
	SourceType  string            // Inherited from the owning Document
	SourceID    string            // Inherited from the owning Document
	ValveModel  string            // Inherited from the owning Document
	Timestamp   time.Time         // Inherited from the owning Document
	Metadata    map[string]string // Inherited from the owning Document
	TextContent string            // The chunk's substring of the document
	Embedding   []float32         // Length must equal the configured dimension
}

// Result is a single search hit. Distance is the cosine distance to the
// query embedding (0 = identical direction); results are ordered nearest
// first.
type Result struct {
	Chunk    Chunk
	Distance float32
}

// Embedder maps texts to fixed-dimension vectors. Implementations declare
// their output dimensionality; every returned vector has exactly
// Dimension() elements.
//
// Batch size and rate limits are the implementation's concern. Upstream
// outages surface as errors wrapping ErrUpstreamUnavailable.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Generator produces a completion for a single prompt. One prompt in,
// one completion out; streaming is not part of this contract.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Store persists chunks and serves nearest-neighbor queries. The two
// implementations (PostgresStore over pgvector, LocalStore over an
// embedded vector database) are interchangeable behind this interface.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert replaces all chunks for the batch's source with the given
	// chunks, atomically with respect to concurrent readers. All chunks
	// must share the same SourceType and SourceID. Returns the number of
	// chunks written. A dimension mismatch fails with ErrSchemaMismatch
	// and writes nothing.
	Upsert(ctx context.Context, chunks []Chunk) (int, error)

	// Search returns up to k stored chunks nearest to the query embedding,
	// ordered by ascending distance. Ties are broken by insertion recency,
	// most recent first. A filter restricting candidates is applied via
	// options. Fewer than k eligible rows is not an error.
	Search(ctx context.Context, queryEmbedding []float32, k int, opts ...SearchOption) ([]Result, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// DeleteSource removes all chunks for the given source.
	DeleteSource(ctx context.Context, sourceType, sourceID string) error

	// Close releases store resources.
	Close() error
}

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	valveModel string
}

// WithValveModel restricts results to chunks whose valve model exactly
// matches the given value.
func WithValveModel(model string) SearchOption {
	return func(c *searchConfig) {
		c.valveModel = model
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// SearchValveModel resolves the valve-model filter from a set of search
// options. For Store implementations living outside this package.
func SearchValveModel(opts []SearchOption) string {
	return buildSearchConfig(opts).valveModel
}
