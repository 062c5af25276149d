package knowledge

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// NewEmbeddingFunc bridges an Embedder to chromem-go's EmbeddingFunc.
// The local store supplies precomputed vectors on the write path, so this
// is only invoked when chromem itself needs to embed (never in the normal
// pipelines), but the collection requires a function to be registered.
func NewEmbeddingFunc(embedder Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("embed failed: %w", err)
		}
		if len(vectors) == 0 {
			return nil, fmt.Errorf("no embeddings returned")
		}
		return vectors[0], nil
	}
}
