package knowledge_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/prvlabs/prva/internal/knowledge"
	"github.com/prvlabs/prva/internal/log"
	"github.com/prvlabs/prva/internal/testutil"
)

// Integration tests need Docker for the pgvector container. Enable with:
//
//	PRVA_INTEGRATION=1 go test ./internal/knowledge/...
func setupPostgresStore(t *testing.T) *knowledge.PostgresStore {
	t.Helper()
	if os.Getenv("PRVA_INTEGRATION") == "" {
		t.Skip("PRVA_INTEGRATION not set - skipping container test")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	return knowledge.NewPostgresStore(tdb.Pool, 768, log.NewNop())
}

func pgChunk(id, sourceID string, seed float32) knowledge.Chunk {
	embedding := make([]float32, 768)
	embedding[0] = seed
	embedding[1] = 1 - seed
	return knowledge.Chunk{
		ID:          id,
		SourceType:  knowledge.SourceTypeManual,
		SourceID:    sourceID,
		Timestamp:   time.Now().UTC(),
		Metadata:    map[string]string{"origin": "test"},
		TextContent: "chunk " + id,
		Embedding:   embedding,
	}
}

func TestPostgresStoreUpsertSearchRoundTrip(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	written, err := store.Upsert(ctx, []knowledge.Chunk{
		pgChunk("c1", "manual-1", 1.0),
		pgChunk("c2", "manual-1", 0.0),
	})
	if err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if written != 2 {
		t.Errorf("Upsert() = %d, want 2", written)
	}

	query := make([]float32, 768)
	query[0] = 1.0
	results, err := store.Search(ctx, query, 2)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() = %d results, want 2", len(results))
	}
	if results[0].Chunk.ID != "c1" {
		t.Errorf("nearest chunk = %s, want c1", results[0].Chunk.ID)
	}
	if results[0].Chunk.Metadata["origin"] != "test" {
		t.Errorf("metadata not round-tripped: %v", results[0].Chunk.Metadata)
	}
	if results[0].Distance > results[1].Distance {
		t.Error("results not ordered by ascending distance")
	}
}

func TestPostgresStoreUpsertReplacesSource(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, []knowledge.Chunk{
		pgChunk("old1", "manual-1", 1.0),
		pgChunk("old2", "manual-1", 0.5),
	}); err != nil {
		t.Fatalf("first Upsert() error: %v", err)
	}

	if _, err := store.Upsert(ctx, []knowledge.Chunk{
		pgChunk("new1", "manual-1", 0.7),
	}); err != nil {
		t.Fatalf("second Upsert() error: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() after replace = %d, want 1", count)
	}
}

func TestPostgresStoreMixedSourcesRejected(t *testing.T) {
	store := setupPostgresStore(t)

	_, err := store.Upsert(context.Background(), []knowledge.Chunk{
		pgChunk("c1", "manual-1", 1.0),
		pgChunk("c2", "manual-2", 0.0),
	})
	if !errors.Is(err, knowledge.ErrMixedSources) {
		t.Errorf("Upsert() error = %v, want ErrMixedSources", err)
	}
}

func TestPostgresStoreValveModelFilter(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	a := pgChunk("a", "manual-a", 1.0)
	a.ValveModel = "PSV-100"
	b := pgChunk("b", "manual-b", 0.9)
	b.ValveModel = "PSV-200"
	for _, c := range []knowledge.Chunk{a, b} {
		if _, err := store.Upsert(ctx, []knowledge.Chunk{c}); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}
	}

	query := make([]float32, 768)
	query[0] = 1.0
	results, err := store.Search(ctx, query, 10, knowledge.WithValveModel("PSV-200"))
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ValveModel != "PSV-200" {
		t.Errorf("filtered Search() = %+v, want only PSV-200", results)
	}
}

func TestPostgresStoreDeleteSource(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, []knowledge.Chunk{pgChunk("a", "manual-a", 1.0)}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if err := store.DeleteSource(ctx, knowledge.SourceTypeManual, "manual-a"); err != nil {
		t.Fatalf("DeleteSource() error: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 0 {
		t.Errorf("Count() after delete = %d, want 0", count)
	}
}
