// Package chat orchestrates a question: resolve the session, retrieve
// sources, fold bounded history into the prompt, generate, persist the
// exchange.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/muninn/internal/llm"
	"github.com/starford/muninn/internal/memory"
	"github.com/starford/muninn/internal/retrieval"
)

// noAnswer is returned when retrieval finds nothing; generation is
// skipped entirely so the model cannot invent unsourced content.
const noAnswer = "I could not find relevant information in the indexed documents."

const systemPrompt = `You are a documentation assistant. Answer strictly from the provided context excerpts. If the context does not contain the answer, say so. Cite documents by name.`

// maxTitleRunes bounds the session title derived from the first question.
const maxTitleRunes = 80

// Request is one chat turn.
type Request struct {
	// SessionID selects an existing session; empty starts a new one.
	SessionID string
	Question  string
	// Provider optionally overrides the default generation provider.
	Provider string
	// TopK optionally overrides the configured source count.
	TopK int
	// Documents optionally restricts retrieval to these documents.
	Documents []string
}

// Response is the answer with attribution.
type Response struct {
	SessionID    string             `json:"session_id"`
	Answer       string             `json:"response"`
	Sources      []retrieval.Source `json:"sources"`
	ProviderUsed string             `json:"provider_used"`
	Reranked     bool               `json:"reranked"`
	// HistorySaved is false when the answer was produced but could not
	// be persisted to conversation memory.
	HistorySaved bool `json:"history_saved"`
}

// Service wires retrieval, generation, and conversation memory.
type Service struct {
	pipeline *retrieval.Pipeline
	registry *llm.Registry
	memory   memory.Store
	historyN int
	logger   *slog.Logger
}

// New creates a chat service keeping historyN prior exchanges in prompts.
func New(pipeline *retrieval.Pipeline, registry *llm.Registry, store memory.Store, historyN int, logger *slog.Logger) *Service {
	if historyN <= 0 {
		historyN = 3
	}
	return &Service{pipeline: pipeline, registry: registry, memory: store, historyN: historyN, logger: logger}
}

// Ask answers one question. A missing session id starts a new session;
// an unknown one is an error, never silently recreated.
func (s *Service) Ask(ctx context.Context, req Request) (*Response, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("chat: empty question")
	}
	provider, gen, err := s.registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	var history []memory.Exchange
	if sessionID == "" {
		sessionID = uuid.NewString()
		if _, err := s.memory.CreateSession(sessionID, title(question)); err != nil {
			return nil, err
		}
	} else {
		if _, err := s.memory.GetSession(sessionID); err != nil {
			return nil, err
		}
		history, err = s.memory.History(sessionID, s.historyN)
		if err != nil {
			return nil, err
		}
	}

	ret, err := s.pipeline.Retrieve(ctx, question, req.TopK, req.Documents)
	if err != nil {
		return nil, err
	}

	answer := noAnswer
	if !ret.Empty {
		answer, err = gen.Generate(ctx, systemPrompt, userPrompt(question, history, ret.Sources))
		if err != nil {
			return nil, err
		}
	}

	resp := &Response{
		SessionID:    sessionID,
		Answer:       answer,
		Sources:      ret.Sources,
		ProviderUsed: string(provider),
		Reranked:     ret.Reranked,
		HistorySaved: true,
	}
	if err := s.memory.AppendExchange(sessionID, question, answer, ret.Sources); err != nil {
		// The answer is still good; losing one history entry only
		// degrades future prompts.
		s.logger.Warn("chat: history write failed",
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
		resp.HistorySaved = false
	}
	return resp, nil
}

// userPrompt assembles context excerpts, prior exchanges, and the
// question into a single user message.
func userPrompt(question string, history []memory.Exchange, sources []retrieval.Source) string {
	var b strings.Builder
	b.WriteString("Context excerpts:\n")
	for i, src := range sources {
		b.WriteString(fmt.Sprintf("[%d] %s", i+1, src.Document))
		if src.Page != nil {
			b.WriteString(fmt.Sprintf(" (page %d)", *src.Page))
		}
		b.WriteString(":\n")
		b.WriteString(src.Text)
		b.WriteString("\n\n")
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, e := range history {
			b.WriteString("Q: " + e.Question + "\n")
			b.WriteString("A: " + e.Answer + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Question: " + question)
	return b.String()
}

func title(question string) string {
	runes := []rune(question)
	if len(runes) <= maxTitleRunes {
		return question
	}
	return string(runes[:maxTitleRunes])
}
