package testutil

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/prvlabs/prva/internal/knowledge"
)

// MemStore is an exact-scan in-memory Store for tests. It honors the
// same contract as the real backends: replace-by-source upserts, cosine
// distance ordering with recency tie-break, and valve-model filtering.
//
// Thread-safe for concurrent use.
type MemStore struct {
	mu     sync.Mutex
	chunks []memChunk
	seq    int64
	err    error
}

type memChunk struct {
	chunk knowledge.Chunk
	seq   int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// FailWith makes every subsequent store operation return err.
func (s *MemStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Upsert implements knowledge.Store.
func (s *MemStore) Upsert(_ context.Context, chunks []knowledge.Chunk) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	first := chunks[0]
	for _, c := range chunks {
		if c.SourceType != first.SourceType || c.SourceID != first.SourceID {
			return 0, knowledge.ErrMixedSources
		}
	}

	s.deleteSourceLocked(first.SourceType, first.SourceID)
	for _, c := range chunks {
		s.seq++
		s.chunks = append(s.chunks, memChunk{chunk: c, seq: s.seq})
	}
	return len(chunks), nil
}

// Search implements knowledge.Store.
func (s *MemStore) Search(_ context.Context, queryEmbedding []float32, k int, opts ...knowledge.SearchOption) ([]knowledge.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	valveModel := knowledge.SearchValveModel(opts)

	type scored struct {
		result knowledge.Result
		seq    int64
	}
	var hits []scored
	for _, mc := range s.chunks {
		if valveModel != "" && mc.chunk.ValveModel != valveModel {
			continue
		}
		hits = append(hits, scored{
			result: knowledge.Result{
				Chunk:    mc.chunk,
				Distance: cosineDistance(queryEmbedding, mc.chunk.Embedding),
			},
			seq: mc.seq,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].result.Distance != hits[j].result.Distance {
			return hits[i].result.Distance < hits[j].result.Distance
		}
		return hits[i].seq > hits[j].seq
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	results := make([]knowledge.Result, len(hits))
	for i, h := range hits {
		results[i] = h.result
	}
	return results, nil
}

// Count implements knowledge.Store.
func (s *MemStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return len(s.chunks), nil
}

// DeleteSource implements knowledge.Store.
func (s *MemStore) DeleteSource(_ context.Context, sourceType, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deleteSourceLocked(sourceType, sourceID)
	return nil
}

// Close implements knowledge.Store.
func (*MemStore) Close() error {
	return nil
}

// Chunks returns a snapshot of all stored chunks in insertion order.
func (s *MemStore) Chunks() []knowledge.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]knowledge.Chunk, len(s.chunks))
	for i, mc := range s.chunks {
		out[i] = mc.chunk
	}
	return out
}

func (s *MemStore) deleteSourceLocked(sourceType, sourceID string) {
	kept := s.chunks[:0]
	for _, mc := range s.chunks {
		if mc.chunk.SourceType == sourceType && mc.chunk.SourceID == sourceID {
			continue
		}
		kept = append(kept, mc)
	}
	s.chunks = kept
}

func cosineDistance(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)))
}
