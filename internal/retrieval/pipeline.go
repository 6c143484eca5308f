// Package retrieval answers queries over the indexed corpus: embed the
// query, over-fetch candidates from the vector index, rerank, truncate.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/starford/muninn/internal/embed"
	"github.com/starford/muninn/internal/rerank"
	"github.com/starford/muninn/internal/vecindex"
)

// Source is one retrieved chunk attributed to its document.
type Source struct {
	Document   string  `json:"document"`
	Page       *int    `json:"page,omitempty"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	// Preview is a bounded excerpt for display; Text carries the full
	// chunk for prompt assembly and is not serialized.
	Preview string `json:"preview"`
	Text    string `json:"-"`
}

// Result is the outcome of one retrieval.
type Result struct {
	Sources []Source `json:"sources"`
	// Reranked is false when the reranker was disabled or unavailable
	// and sources kept vector-similarity order.
	Reranked bool `json:"reranked"`
	// Empty means the index produced no candidates at all.
	Empty bool `json:"empty"`
}

// Options tunes the pipeline.
type Options struct {
	TopK            int
	OverfetchFactor int
	PreviewChars    int
}

// Pipeline wires the embedder, index, and reranker together.
type Pipeline struct {
	embedder embed.Embedder
	index    vecindex.Index
	reranker rerank.Reranker // nil when disabled
	opts     Options
	logger   *slog.Logger
}

// New creates a retrieval pipeline. reranker may be nil to disable
// reranking entirely.
func New(embedder embed.Embedder, index vecindex.Index, reranker rerank.Reranker, opts Options, logger *slog.Logger) *Pipeline {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.OverfetchFactor <= 0 {
		opts.OverfetchFactor = 3
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = 200
	}
	return &Pipeline{embedder: embedder, index: index, reranker: reranker, opts: opts, logger: logger}
}

// Retrieve returns the top sources for a query. topK <= 0 uses the
// configured default; a non-empty documents filter restricts the search.
// Reranker failure degrades to vector-similarity order rather than
// failing the query.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int, documents []string) (*Result, error) {
	if topK <= 0 {
		topK = p.opts.TopK
	}
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	hits, err := p.index.Query(ctx, vec, topK*p.opts.OverfetchFactor, documents)
	if err != nil {
		return nil, fmt.Errorf("retrieval: query index: %w", err)
	}
	if len(hits) == 0 {
		return &Result{Empty: true}, nil
	}

	reranked := false
	if p.reranker != nil {
		passages := make([]string, len(hits))
		for i, h := range hits {
			passages[i] = h.Payload.Text
		}
		scores, rerr := p.reranker.Rerank(ctx, query, passages)
		if rerr != nil {
			p.logger.Warn("retrieval: reranker degraded, keeping vector order",
				slog.String("error", rerr.Error()))
		} else {
			for i := range hits {
				hits[i].Score = scores[i]
			}
			slices.SortStableFunc(hits, func(a, b vecindex.Hit) int {
				switch {
				case a.Score > b.Score:
					return -1
				case a.Score < b.Score:
					return 1
				default:
					return 0
				}
			})
			reranked = true
		}
	}

	if len(hits) > topK {
		hits = hits[:topK]
	}
	sources := make([]Source, len(hits))
	for i, h := range hits {
		sources[i] = Source{
			Document:   h.Payload.Document,
			Page:       h.Payload.Page,
			ChunkIndex: h.Payload.ChunkIndex,
			Score:      h.Score,
			Preview:    preview(h.Payload.Text, p.opts.PreviewChars),
			Text:       h.Payload.Text,
		}
	}
	return &Result{Sources: sources, Reranked: reranked}, nil
}

// preview bounds text to max runes, never cutting a UTF-8 sequence.
func preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
