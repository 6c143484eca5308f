// Package vecindex stores chunk vectors and serves similarity queries.
// The index holds only derived data: it can always be rebuilt from the
// corpus, so recovery from loss or schema change is re-ingestion.
package vecindex

import "context"

// Payload is the metadata stored alongside each vector.
type Payload struct {
	Document   string `json:"document"`
	ChunkIndex int    `json:"chunk_index"`
	Page       *int   `json:"page,omitempty"`
	Text       string `json:"text"`
}

// Point is one vector with its identity and payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit is a query match with its similarity score.
type Hit struct {
	ID      string
	Score   float64
	Payload Payload
}

// Info describes the backing collection.
type Info struct {
	Dimensions int
	Points     int
}

// Index is the vector storage port.
type Index interface {
	// EnsureCollection creates the collection if missing and verifies its
	// dimensionality. A dimension mismatch with existing data is fatal:
	// the collection must be recreated and re-ingested.
	EnsureCollection(ctx context.Context, dims int) error
	// Upsert writes points; existing ids are overwritten.
	Upsert(ctx context.Context, points []Point) error
	// Delete removes points by id. Unknown ids are not an error.
	Delete(ctx context.Context, ids []string) error
	// Query returns up to k nearest points. A non-empty document filter
	// restricts matches to chunks of those documents.
	Query(ctx context.Context, vector []float32, k int, documents []string) ([]Hit, error)
	// CollectionInfo reports collection dimensionality and point count.
	CollectionInfo(ctx context.Context) (Info, error)
}
