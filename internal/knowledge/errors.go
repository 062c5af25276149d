package knowledge

import "errors"

var (
	// ErrEmptyDocument indicates a document produced zero chunks. The
	// document is skipped; a batch containing it continues.
	ErrEmptyDocument = errors.New("document produced no chunks")

	// ErrSchemaMismatch indicates an embedding whose length does not match
	// the store's configured dimension. Fatal to the one document; nothing
	// is written for it.
	ErrSchemaMismatch = errors.New("embedding dimension does not match store schema")

	// ErrUpstreamUnavailable indicates the embedding or generation service
	// could not be reached. Surfaced to the caller verbatim, never retried
	// inside the pipelines.
	ErrUpstreamUnavailable = errors.New("upstream model service unavailable")

	// ErrMixedSources indicates an upsert batch whose chunks do not all
	// share the same source.
	ErrMixedSources = errors.New("upsert batch spans multiple sources")
)
