// Package rerank scores retrieved passages against a query with a
// cross-encoder service. The reranker is an accuracy enhancer: when it
// is down the retrieval pipeline keeps vector-similarity order instead
// of failing the query.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/starford/muninn/internal/apperr"
)

// Reranker scores passages by relevance to a query. The result has one
// score per passage, in input order; higher is more relevant.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)
}

// HTTPClient talks to a text-embeddings-inference style /rerank endpoint.
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient creates a reranker client for the given base URL.
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{url: url, client: &http.Client{Timeout: timeout}}
}

var _ Reranker = (*HTTPClient)(nil)

// Rerank posts the query and passages and returns per-passage scores.
// Transport and server failures are wrapped in ErrRerankerUnavailable so
// callers can distinguish degradation from bad input.
func (c *HTTPClient) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(struct {
		Query string   `json:"query"`
		Texts []string `json:"texts"`
	}{Query: query, Texts: passages})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrRerankerUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", apperr.ErrRerankerUnavailable, resp.Status)
	}

	var out []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", apperr.ErrRerankerUnavailable, err)
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, e := range out {
		if e.Index < 0 || e.Index >= len(passages) {
			return nil, fmt.Errorf("rerank: response index %d out of range", e.Index)
		}
		scores[e.Index] = e.Score
		seen[e.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank: response missing score for passage %d", i)
		}
	}
	return scores, nil
}
