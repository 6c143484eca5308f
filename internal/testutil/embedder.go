// Package testutil provides shared test doubles.
package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
)

// Embedder is a deterministic in-process embedder for tests: a hashed
// bag-of-words, so texts sharing tokens land near each other in vector
// space. It counts embedding calls so tests can assert that unchanged
// documents are not re-embedded.
type Embedder struct {
	dims  int
	calls atomic.Int64
}

// NewEmbedder creates a test embedder with the given dimensionality.
func NewEmbedder(dims int) *Embedder {
	if dims <= 0 {
		dims = 64
	}
	return &Embedder{dims: dims}
}

// Calls returns how many texts have been embedded so far.
func (e *Embedder) Calls() int { return int(e.calls.Load()) }

// ModelName identifies the test embedder.
func (e *Embedder) ModelName() string { return "test-bow" }

// Dimensions returns the configured dimensionality.
func (e *Embedder) Dimensions() int { return e.dims }

// Ping always succeeds.
func (e *Embedder) Ping(_ context.Context) error { return nil }

// Embed embeds a single text.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	return e.vector(text), nil
}

// EmbedBatch embeds texts in order.
func (e *Embedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		e.calls.Add(1)
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	vec := make([]float32, e.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?;:\"'()[]")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%e.dims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}
