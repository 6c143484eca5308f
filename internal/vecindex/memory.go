package vecindex

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
)

// Memory is an in-process Index. It backs tests and small corpora where
// running Qdrant is not worth it; contents do not survive a restart.
type Memory struct {
	mu     sync.RWMutex
	dims   int
	points map[string]Point
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{points: make(map[string]Point)}
}

var _ Index = (*Memory)(nil)

// EnsureCollection fixes the index dimensionality on first call.
func (m *Memory) EnsureCollection(_ context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("vecindex: invalid dimension %d", dims)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dims == 0 {
		m.dims = dims
		return nil
	}
	if m.dims != dims {
		return fmt.Errorf("vecindex: index has dimension %d but embedder produces %d; recreate the index and re-ingest", m.dims, dims)
	}
	return nil
}

// Upsert stores points, overwriting existing ids.
func (m *Memory) Upsert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if m.dims != 0 && len(p.Vector) != m.dims {
			return fmt.Errorf("vecindex: point %s has dimension %d, want %d", p.ID, len(p.Vector), m.dims)
		}
		m.points[p.ID] = p
	}
	return nil
}

// Delete removes points by id; unknown ids are ignored.
func (m *Memory) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.points, id)
	}
	return nil
}

// Query returns the k most cosine-similar points, best first.
func (m *Memory) Query(_ context.Context, vector []float32, k int, documents []string) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	var filter map[string]struct{}
	if len(documents) > 0 {
		filter = make(map[string]struct{}, len(documents))
		for _, d := range documents {
			filter[d] = struct{}{}
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, 0, len(m.points))
	for _, p := range m.points {
		if filter != nil {
			if _, ok := filter[p.Payload.Document]; !ok {
				continue
			}
		}
		hits = append(hits, Hit{ID: p.ID, Score: cosine(vector, p.Vector), Payload: p.Payload})
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// CollectionInfo reports dimensionality and point count.
func (m *Memory) CollectionInfo(_ context.Context) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Info{Dimensions: m.dims, Points: len(m.points)}, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
