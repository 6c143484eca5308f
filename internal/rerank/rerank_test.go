package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/muninn/internal/apperr"
)

func TestRerankMapsScoresToInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Query string   `json:"query"`
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		if in.Query != "how to win" || len(in.Texts) != 3 {
			t.Errorf("request = %+v", in)
		}
		// TEI returns entries sorted by score, not input order.
		json.NewEncoder(w).Encode([]map[string]any{
			{"index": 2, "score": 0.95},
			{"index": 0, "score": 0.40},
			{"index": 1, "score": 0.10},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 0)
	scores, err := c.Rerank(context.Background(), "how to win", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	want := []float64{0.40, 0.10, 0.95}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}
}

func TestRerankUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 0)
	_, err := c.Rerank(context.Background(), "q", []string{"a"})
	if !errors.Is(err, apperr.ErrRerankerUnavailable) {
		t.Errorf("err = %v, want ErrRerankerUnavailable", err)
	}
}

func TestRerankMissingScoreIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{"index": 0, "score": 0.5}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 0)
	if _, err := c.Rerank(context.Background(), "q", []string{"a", "b"}); err == nil {
		t.Error("expected missing score to be an error")
	}
}

func TestRerankEmptyPassages(t *testing.T) {
	c := NewHTTPClient("http://unused", 0)
	scores, err := c.Rerank(context.Background(), "q", nil)
	if err != nil || scores != nil {
		t.Errorf("Rerank(empty) = %v, %v", scores, err)
	}
}
