package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/testutil"
	"github.com/starford/muninn/internal/vecindex"
)

// stubReranker returns fixed scores or an error.
type stubReranker struct {
	scores map[string]float64
	err    error
}

func (s stubReranker) Rerank(_ context.Context, _ string, passages []string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(passages))
	for i, p := range passages {
		out[i] = s.scores[p]
	}
	return out, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func page(n int) *int { return &n }

func seedIndex(t *testing.T, emb *testutil.Embedder) *vecindex.Memory {
	t.Helper()
	idx := vecindex.NewMemory()
	ctx := context.Background()
	if err := idx.EnsureCollection(ctx, emb.Dimensions()); err != nil {
		t.Fatal(err)
	}
	texts := []struct {
		id, doc, text string
		page          *int
		chunk         int
	}{
		{"r3", "rules.pdf", "Players win by accumulating the most prestige points before the deck runs out.", page(3), 2},
		{"r1", "rules.pdf", "Setup: shuffle the deck and deal five cards to each player.", page(1), 0},
		{"n1", "notes.txt", "Remember to buy sleeves for the cards.", nil, 0},
	}
	for _, e := range texts {
		vec, err := emb.Embed(ctx, e.text)
		if err != nil {
			t.Fatal(err)
		}
		err = idx.Upsert(ctx, []vecindex.Point{{
			ID:     e.id,
			Vector: vec,
			Payload: vecindex.Payload{
				Document:   e.doc,
				Page:       e.page,
				ChunkIndex: e.chunk,
				Text:       e.text,
			},
		}})
		if err != nil {
			t.Fatal(err)
		}
	}
	return idx
}

func TestRetrieveRanksRelevantChunkFirst(t *testing.T) {
	emb := testutil.NewEmbedder(64)
	idx := seedIndex(t, emb)
	p := New(emb, idx, nil, Options{TopK: 2}, quietLogger())

	res, err := p.Retrieve(context.Background(), "How do players win? prestige points?", 0, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if res.Empty || len(res.Sources) != 2 {
		t.Fatalf("result = %+v", res)
	}
	top := res.Sources[0]
	if top.Document != "rules.pdf" || top.Page == nil || *top.Page != 3 {
		t.Errorf("top source = %+v, want rules.pdf page 3", top)
	}
	if res.Reranked {
		t.Error("reranked true with no reranker")
	}
}

func TestRetrieveRerankerReorders(t *testing.T) {
	emb := testutil.NewEmbedder(64)
	idx := seedIndex(t, emb)
	rr := stubReranker{scores: map[string]float64{
		"Setup: shuffle the deck and deal five cards to each player.":                    0.99,
		"Players win by accumulating the most prestige points before the deck runs out.": 0.10,
		"Remember to buy sleeves for the cards.":                                         0.05,
	}}
	p := New(emb, idx, rr, Options{TopK: 1, OverfetchFactor: 3}, quietLogger())

	res, err := p.Retrieve(context.Background(), "deck of cards", 0, nil)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !res.Reranked {
		t.Fatal("expected reranked result")
	}
	if len(res.Sources) != 1 || !strings.HasPrefix(res.Sources[0].Text, "Setup:") {
		t.Errorf("sources = %+v", res.Sources)
	}
	if res.Sources[0].Score != 0.99 {
		t.Errorf("score = %v, want reranker score", res.Sources[0].Score)
	}
}

func TestRetrieveRerankerDownDegrades(t *testing.T) {
	emb := testutil.NewEmbedder(64)
	idx := seedIndex(t, emb)
	rr := stubReranker{err: apperr.ErrRerankerUnavailable}
	p := New(emb, idx, rr, Options{TopK: 2}, quietLogger())

	res, err := p.Retrieve(context.Background(), "prestige points", 0, nil)
	if err != nil {
		t.Fatalf("Retrieve must not fail when reranker is down: %v", err)
	}
	if res.Reranked {
		t.Error("degraded result marked as reranked")
	}
	if len(res.Sources) != 2 {
		t.Errorf("sources = %+v", res.Sources)
	}
}

func TestRetrieveDocumentFilter(t *testing.T) {
	emb := testutil.NewEmbedder(64)
	idx := seedIndex(t, emb)
	p := New(emb, idx, nil, Options{TopK: 5}, quietLogger())

	res, err := p.Retrieve(context.Background(), "cards", 0, []string{"notes.txt"})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range res.Sources {
		if s.Document != "notes.txt" {
			t.Errorf("source outside filter: %+v", s)
		}
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	emb := testutil.NewEmbedder(64)
	idx := vecindex.NewMemory()
	p := New(emb, idx, nil, Options{}, quietLogger())

	res, err := p.Retrieve(context.Background(), "anything", 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Empty || len(res.Sources) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
}

func TestRetrieveEmbedderDownFails(t *testing.T) {
	idx := vecindex.NewMemory()
	p := New(failingEmbedder{}, idx, nil, Options{}, quietLogger())
	_, err := p.Retrieve(context.Background(), "q", 0, nil)
	if !errors.Is(err, apperr.ErrEmbeddingUnavailable) {
		t.Errorf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, apperr.ErrEmbeddingUnavailable
}
func (failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, apperr.ErrEmbeddingUnavailable
}
func (failingEmbedder) Dimensions() int            { return 0 }
func (failingEmbedder) ModelName() string          { return "failing" }
func (failingEmbedder) Ping(context.Context) error { return apperr.ErrEmbeddingUnavailable }

func TestPreviewBoundsRunes(t *testing.T) {
	long := strings.Repeat("日本語テキスト", 100)
	got := preview(long, 50)
	if runes := []rune(got); len(runes) != 51 {
		t.Errorf("preview length = %d runes, want 51 (50 + ellipsis)", len(runes))
	}
	if preview("short", 50) != "short" {
		t.Error("short text must pass through unchanged")
	}
}
