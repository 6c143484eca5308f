// Package apperr defines the failure kinds shared across the service.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrBusy is returned when an ingestion run is requested while
	// another run holds the run-lock.
	ErrBusy = errors.New("ingestion already running")

	// ErrEmbeddingUnavailable marks the embedding backend as unreachable.
	// Fatal to the operation that needs it; never silently substituted.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrIndexUnavailable marks the vector index backend as unreachable.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrRerankerUnavailable is a degradation signal, not a query failure:
	// the pipeline falls back to vector-similarity order.
	ErrRerankerUnavailable = errors.New("reranker unavailable")
)
