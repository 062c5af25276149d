package knowledge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/prvlabs/prva/internal/log"
)

const testDim = 3

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()

	embed := func(_ context.Context, _ string) ([]float32, error) {
		return nil, fmt.Errorf("fallback embedding func should not be called")
	}
	store, err := NewLocalStore(t.TempDir(), testDim, chromem.EmbeddingFunc(embed), log.NewNop())
	if err != nil {
		t.Fatalf("NewLocalStore() error: %v", err)
	}
	return store
}

func testChunk(id, sourceID string, embedding []float32) Chunk {
	return Chunk{
		ID:          id,
		SourceType:  SourceTypeManual,
		SourceID:    sourceID,
		Timestamp:   time.Now().UTC(),
		TextContent: "chunk " + id,
		Embedding:   embedding,
	}
}

func TestLocalStoreUpsertAndCount(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	written, err := store.Upsert(ctx, []Chunk{
		testChunk("c1", "manual-1", []float32{1, 0, 0}),
		testChunk("c2", "manual-1", []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if written != 2 {
		t.Errorf("Upsert() = %d, want 2", written)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestLocalStoreUpsertReplacesSource(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []Chunk{
		testChunk("old1", "manual-1", []float32{1, 0, 0}),
		testChunk("old2", "manual-1", []float32{0, 1, 0}),
		testChunk("old3", "manual-1", []float32{0, 0, 1}),
	})
	if err != nil {
		t.Fatalf("first Upsert() error: %v", err)
	}

	// Re-ingesting the same source must replace, never accumulate.
	_, err = store.Upsert(ctx, []Chunk{
		testChunk("new1", "manual-1", []float32{1, 0, 0}),
	})
	if err != nil {
		t.Fatalf("second Upsert() error: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() after replace = %d, want 1", count)
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "new1" {
		t.Errorf("Search() = %+v, want only new1", results)
	}
}

func TestLocalStoreUpsertLeavesOtherSources(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	mustUpsert(t, store, testChunk("a1", "manual-a", []float32{1, 0, 0}))
	mustUpsert(t, store, testChunk("b1", "manual-b", []float32{0, 1, 0}))
	mustUpsert(t, store, testChunk("a2", "manual-a", []float32{0, 0, 1}))

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2 (a replaced, b untouched)", count)
	}
}

func TestLocalStoreUpsertMixedSources(t *testing.T) {
	store := newTestLocalStore(t)

	_, err := store.Upsert(context.Background(), []Chunk{
		testChunk("c1", "manual-1", []float32{1, 0, 0}),
		testChunk("c2", "manual-2", []float32{0, 1, 0}),
	})
	if !errors.Is(err, ErrMixedSources) {
		t.Errorf("Upsert() error = %v, want ErrMixedSources", err)
	}
}

func TestLocalStoreUpsertDimensionMismatch(t *testing.T) {
	store := newTestLocalStore(t)

	_, err := store.Upsert(context.Background(), []Chunk{
		testChunk("c1", "manual-1", []float32{1, 0}),
	})
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Upsert() error = %v, want ErrSchemaMismatch", err)
	}
}

func TestLocalStoreSearchOrdering(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	mustUpsert(t, store, testChunk("exact", "manual-a", []float32{1, 0, 0}))
	mustUpsert(t, store, testChunk("far", "manual-b", []float32{0, 1, 0}))
	mustUpsert(t, store, testChunk("near", "manual-c", []float32{0.9939, 0.1104, 0}))

	results, err := store.Search(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Search() = %d results, want 3", len(results))
	}

	want := []string{"exact", "near", "far"}
	for i, id := range want {
		if results[i].Chunk.ID != id {
			t.Errorf("results[%d] = %s, want %s", i, results[i].Chunk.ID, id)
		}
	}

	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[i-1].Distance {
			t.Errorf("results not ordered by distance: %v then %v",
				results[i-1].Distance, results[i].Distance)
		}
	}
}

func TestLocalStoreSearchTieBreaksByRecency(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	// Identical embeddings in two sources; the later insertion wins ties.
	mustUpsert(t, store, testChunk("older", "manual-a", []float32{0, 1, 0}))
	mustUpsert(t, store, testChunk("newer", "manual-b", []float32{0, 1, 0}))

	results, err := store.Search(ctx, []float32{0, 1, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() = %d results, want 2", len(results))
	}
	if results[0].Chunk.ID != "newer" {
		t.Errorf("results[0] = %s, want newer (recency tie-break)", results[0].Chunk.ID)
	}
}

func TestLocalStoreSearchClampsK(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	mustUpsert(t, store, testChunk("only", "manual-a", []float32{1, 0, 0}))

	results, err := store.Search(ctx, []float32{1, 0, 0}, 50)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Search(k=50) = %d results, want 1", len(results))
	}
}

func TestLocalStoreSearchEmptyStore(t *testing.T) {
	store := newTestLocalStore(t)

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() on empty store = %d results, want 0", len(results))
	}
}

func TestLocalStoreSearchValveModelFilter(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	a := testChunk("a", "manual-a", []float32{1, 0, 0})
	a.ValveModel = "PSV-100"
	b := testChunk("b", "manual-b", []float32{0.9939, 0.1104, 0})
	b.ValveModel = "PSV-200"
	mustUpsert(t, store, a)
	mustUpsert(t, store, b)

	results, err := store.Search(ctx, []float32{1, 0, 0}, 5, WithValveModel("PSV-200"))
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ValveModel != "PSV-200" {
		t.Errorf("filtered Search() = %+v, want only PSV-200", results)
	}
}

func TestLocalStoreSearchBadQuery(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	if _, err := store.Search(ctx, []float32{1, 0}, 5); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Search() with wrong dims error = %v, want ErrSchemaMismatch", err)
	}
	mustUpsert(t, store, testChunk("c", "manual-a", []float32{1, 0, 0}))
	if _, err := store.Search(ctx, []float32{1, 0, 0}, 0); err == nil {
		t.Error("Search() with k=0 expected error, got nil")
	}
}

func TestLocalStoreDeleteSource(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	mustUpsert(t, store, testChunk("a", "manual-a", []float32{1, 0, 0}))
	mustUpsert(t, store, testChunk("b", "manual-b", []float32{0, 1, 0}))

	if err := store.DeleteSource(ctx, SourceTypeManual, "manual-a"); err != nil {
		t.Fatalf("DeleteSource() error: %v", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() after delete = %d, want 1", count)
	}
}

func TestLocalStoreRoundTripsMetadata(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	c := testChunk("c1", "manual-1", []float32{1, 0, 0})
	c.ValveModel = "PSV-100"
	c.Metadata = map[string]string{"file_name": "manual.pdf"}
	mustUpsert(t, store, c)

	results, err := store.Search(ctx, []float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search() = %d results, want 1", len(results))
	}

	got := results[0].Chunk
	if got.SourceType != SourceTypeManual || got.SourceID != "manual-1" {
		t.Errorf("source fields = %s/%s, want manual/manual-1", got.SourceType, got.SourceID)
	}
	if got.ValveModel != "PSV-100" {
		t.Errorf("ValveModel = %q, want PSV-100", got.ValveModel)
	}
	if got.Metadata["file_name"] != "manual.pdf" {
		t.Errorf("Metadata = %v, want file_name preserved", got.Metadata)
	}
	// Reserved keys must not leak into user metadata.
	for _, k := range []string{"source_type", "source_id", "valve_model", "timestamp", "seq"} {
		if _, ok := got.Metadata[k]; ok {
			t.Errorf("reserved key %q leaked into metadata", k)
		}
	}
}

func mustUpsert(t *testing.T, store *LocalStore, chunks ...Chunk) {
	t.Helper()
	if _, err := store.Upsert(context.Background(), chunks); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
}
