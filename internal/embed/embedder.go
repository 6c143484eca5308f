// Package embed provides the embedding provider used for both document
// indexing and query-time retrieval. Both paths must go through the same
// provider so vectors live in the same space.
package embed

import "context"

// Embedder turns text into dense vectors.
type Embedder interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds texts in order; result i corresponds to texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the vector dimensionality, or 0 if not yet known.
	Dimensions() int
	// ModelName identifies the embedding model. It is recorded per manifest
	// entry so that a model switch re-indexes affected documents.
	ModelName() string
	// Ping verifies the provider is reachable and resolves Dimensions.
	Ping(ctx context.Context) error
}
