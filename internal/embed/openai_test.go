package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/muninn/internal/apperr"
)

func embeddingsServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		type entry struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		out := struct {
			Data []entry `json:"data"`
		}{}
		for i := range in.Input {
			vec := make([]float32, dims)
			vec[0] = float32(i + 1)
			out.Data = append(out.Data, entry{Index: i, Embedding: vec})
		}
		json.NewEncoder(w).Encode(out)
	}))
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	srv := embeddingsServer(t, 4)
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Model: "test-model"})
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(i+1) {
			t.Errorf("vector %d out of order: first component %v", i, v[0])
		}
	}
}

func TestEmbedLearnsDimensions(t *testing.T) {
	srv := embeddingsServer(t, 8)
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Model: "test-model"})
	if c.Dimensions() != 0 {
		t.Fatalf("dimensions known before first call: %d", c.Dimensions())
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if c.Dimensions() != 8 {
		t.Errorf("Dimensions() = %d, want 8", c.Dimensions())
	}
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1, 2}}},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Model: "test-model"})
	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed after retries: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestEmbedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Model: "test-model"})
	_, err := c.Embed(context.Background(), "hello")
	if !errors.Is(err, apperr.ErrEmbeddingUnavailable) {
		t.Errorf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{BaseURL: "http://unused", Model: "test-model"})
	vecs, err := c.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, %v", vecs, err)
	}
}
