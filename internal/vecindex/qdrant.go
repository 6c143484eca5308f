package vecindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/starford/muninn/internal/apperr"
)

// Qdrant is a minimal REST client to a Qdrant collection using cosine
// distance.
type Qdrant struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

// QdrantConfig holds the Qdrant endpoint settings.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// NewQdrant creates a Qdrant-backed index.
func NewQdrant(cfg QdrantConfig) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

var _ Index = (*Qdrant)(nil)

// EnsureCollection creates the collection when absent and fails on a
// dimension mismatch with existing data.
func (q *Qdrant) EnsureCollection(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("vecindex: invalid dimension %d", dims)
	}
	info, err := q.CollectionInfo(ctx)
	switch {
	case err == nil:
		if info.Dimensions != dims {
			return fmt.Errorf("vecindex: collection %q has dimension %d but embedder produces %d; recreate the collection and re-ingest",
				q.collection, info.Dimensions, dims)
		}
		return nil
	case isNotFound(err):
		body := map[string]any{
			"vectors": map[string]any{"size": dims, "distance": "Cosine"},
		}
		return q.putJSON(ctx, fmt.Sprintf("/collections/%s", q.collection), body, nil)
	default:
		return err
	}
}

// Upsert writes points with wait=true so subsequent queries see them.
func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	pts := make([]map[string]any, len(points))
	for i, p := range points {
		pts[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
	return q.putJSON(ctx, path, map[string]any{"points": pts}, nil)
}

// Delete removes points by id.
func (q *Qdrant) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collection)
	return q.postJSON(ctx, path, map[string]any{"points": ids}, nil)
}

// Query searches the collection, optionally filtered to a document set.
func (q *Qdrant) Query(ctx context.Context, vector []float32, k int, documents []string) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if len(documents) > 0 {
		req["filter"] = map[string]any{
			"must": []map[string]any{
				{"key": "document", "match": map[string]any{"any": documents}},
			},
		}
	}
	var resp struct {
		Result []struct {
			ID      string  `json:"id"`
			Score   float64 `json:"score"`
			Payload Payload `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", q.collection)
	if err := q.postJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, Hit{ID: r.ID, Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

// CollectionInfo reads the collection's dimensionality and point count.
func (q *Qdrant) CollectionInfo(ctx context.Context) (Info, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := q.getJSON(ctx, fmt.Sprintf("/collections/%s", q.collection), &resp); err != nil {
		return Info{}, err
	}
	return Info{
		Dimensions: resp.Result.Config.Params.Vectors.Size,
		Points:     resp.Result.PointsCount,
	}, nil
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusNotFound
}

type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string { return e.status }

func (q *Qdrant) getJSON(ctx context.Context, path string, out any) error {
	return q.do(ctx, http.MethodGet, path, nil, out)
}

func (q *Qdrant) putJSON(ctx context.Context, path string, body, out any) error {
	return q.do(ctx, http.MethodPut, path, body, out)
}

func (q *Qdrant) postJSON(ctx context.Context, path string, body, out any) error {
	return q.do(ctx, http.MethodPost, path, body, out)
}

func (q *Qdrant) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("vecindex: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.url+path, reader)
	if err != nil {
		return fmt.Errorf("vecindex: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("vecindex: %s %s: %w", method, path, &statusError{code: resp.StatusCode, status: resp.Status})
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("vecindex: %s %s failed: %s", method, path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("vecindex: decode response: %w", err)
		}
	}
	return nil
}
