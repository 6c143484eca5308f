package chat

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/llm"
	"github.com/starford/muninn/internal/memory"
	"github.com/starford/muninn/internal/retrieval"
	"github.com/starford/muninn/internal/testutil"
	"github.com/starford/muninn/internal/vecindex"
)

// echoGenerator returns its user prompt so tests can inspect assembly.
type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, _, user string) (string, error) {
	return "ANSWER:" + user, nil
}

type failingStore struct{ memory.Store }

func (f failingStore) AppendExchange(string, string, string, []retrieval.Source) error {
	return errors.New("disk full")
}

func newService(t *testing.T, store memory.Store) (*Service, *vecindex.Memory, *testutil.Embedder) {
	t.Helper()
	emb := testutil.NewEmbedder(64)
	idx := vecindex.NewMemory()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	pipe := retrieval.New(emb, idx, nil, retrieval.Options{TopK: 3}, logger)

	reg := llm.NewRegistry(llm.ProviderMistral)
	reg.Register(llm.ProviderMistral, echoGenerator{})

	return New(pipe, reg, store, 3, logger), idx, emb
}

func openStore(t *testing.T) *memory.DB {
	t.Helper()
	db, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func indexText(t *testing.T, idx *vecindex.Memory, emb *testutil.Embedder, id, doc, text string) {
	t.Helper()
	ctx := context.Background()
	vec, err := emb.Embed(ctx, text)
	if err != nil {
		t.Fatal(err)
	}
	err = idx.Upsert(ctx, []vecindex.Point{{
		ID:      id,
		Vector:  vec,
		Payload: vecindex.Payload{Document: doc, Text: text},
	}})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAskCreatesSessionAndSavesHistory(t *testing.T) {
	store := openStore(t)
	svc, idx, emb := newService(t, store)
	indexText(t, idx, emb, "c1", "rules.pdf", "Players win with prestige points.")

	resp, err := svc.Ask(context.Background(), Request{Question: "How do players win?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("no session id assigned")
	}
	if !resp.HistorySaved {
		t.Error("history not saved")
	}
	if resp.ProviderUsed != "mistral" {
		t.Errorf("provider_used = %q", resp.ProviderUsed)
	}
	if !strings.Contains(resp.Answer, "prestige points") {
		t.Errorf("answer = %q, context not in prompt", resp.Answer)
	}

	hist, err := store.History(resp.SessionID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].Question != "How do players win?" {
		t.Errorf("history = %+v", hist)
	}
	if len(hist) == 1 {
		if len(hist[0].Sources) == 0 || hist[0].Sources[0].Document != "rules.pdf" {
			t.Errorf("persisted sources = %+v, want rules.pdf attribution", hist[0].Sources)
		}
	}
	s, _ := store.GetSession(resp.SessionID)
	if s.Title != "How do players win?" {
		t.Errorf("title = %q", s.Title)
	}
}

func TestAskFoldsHistoryIntoPrompt(t *testing.T) {
	store := openStore(t)
	svc, idx, emb := newService(t, store)
	indexText(t, idx, emb, "c1", "rules.pdf", "The deck holds sixty cards.")

	first, err := svc.Ask(context.Background(), Request{Question: "How many cards in the deck?"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Ask(context.Background(), Request{
		SessionID: first.SessionID,
		Question:  "And how many cards per player?",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(second.Answer, "How many cards in the deck?") {
		t.Error("prior exchange missing from prompt")
	}
}

func TestAskUnknownSession(t *testing.T) {
	store := openStore(t)
	svc, _, _ := newService(t, store)

	_, err := svc.Ask(context.Background(), Request{SessionID: "ghost", Question: "hi"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAskEmptyRetrievalSkipsGeneration(t *testing.T) {
	store := openStore(t)
	svc, _, _ := newService(t, store) // index left empty

	resp, err := svc.Ask(context.Background(), Request{Question: "anything at all"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Answer != noAnswer {
		t.Errorf("answer = %q, want canned no-answer", resp.Answer)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("sources = %+v, want none", resp.Sources)
	}
	// The exchange is still recorded.
	hist, _ := store.History(resp.SessionID, 10)
	if len(hist) != 1 {
		t.Errorf("history = %+v", hist)
	}
}

func TestAskHistoryWriteFailureStillAnswers(t *testing.T) {
	store := openStore(t)
	svc, idx, emb := newService(t, failingStore{Store: store})
	indexText(t, idx, emb, "c1", "a.txt", "some indexed content")

	resp, err := svc.Ask(context.Background(), Request{Question: "some indexed content?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.HistorySaved {
		t.Error("history_saved = true despite write failure")
	}
	if resp.Answer == "" {
		t.Error("answer lost on history failure")
	}
}

func TestAskRejectsUnknownProvider(t *testing.T) {
	store := openStore(t)
	svc, _, _ := newService(t, store)

	if _, err := svc.Ask(context.Background(), Request{Question: "q", Provider: "openai"}); err == nil {
		t.Error("unknown provider accepted")
	}
	// No session should have been created for the rejected request.
	sessions, _ := store.ListSessions()
	if len(sessions) != 0 {
		t.Errorf("sessions = %+v, want none", sessions)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	store := openStore(t)
	svc, _, _ := newService(t, store)
	if _, err := svc.Ask(context.Background(), Request{Question: "   "}); err == nil {
		t.Error("empty question accepted")
	}
}
