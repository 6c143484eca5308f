package api

import (
	"time"

	"github.com/starford/muninn/internal/chat"
	"github.com/starford/muninn/internal/ingest"
	"github.com/starford/muninn/internal/memory"
	"github.com/starford/muninn/internal/retrieval"
)

// ChatRequest is the request body for asking a question.
type ChatRequest struct {
	SessionID string   `json:"session_id,omitempty" example:"6f1e..."`
	Question  string   `json:"message" example:"How do players win?" validate:"required"`
	Provider  string   `json:"provider,omitempty" example:"mistral"`
	TopK      int      `json:"top_k,omitempty" example:"5"`
	Documents []string `json:"selected_documents,omitempty" example:"rules.pdf"`
}

// ChatResponse is the answer with attribution (aliased from the domain layer).
type ChatResponse = chat.Response

// Source is one retrieved chunk in a response (aliased from the domain layer).
type Source = retrieval.Source

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	ID    string `json:"session_id,omitempty" example:"6f1e..."`
	Title string `json:"title,omitempty" example:"Rules questions"`
}

// SessionDetail is a session with its conversation history.
type SessionDetail struct {
	memory.Session
	History []memory.Exchange `json:"history"`
}

// SessionHistoryResponse wraps one session's recent exchanges.
type SessionHistoryResponse struct {
	SessionID string            `json:"session_id"`
	History   []memory.Exchange `json:"history" validate:"required"`
}

// SessionListResponse wraps the session listing.
type SessionListResponse struct {
	Sessions []memory.Session `json:"sessions" validate:"required"`
}

// IngestRunResponse is the wire summary of a completed ingestion run.
type IngestRunResponse struct {
	ProcessedDocuments int      `json:"processed_documents" example:"3"`
	SkippedDocuments   int      `json:"skipped_documents" example:"12"`
	RemovedDocuments   int      `json:"removed_documents" example:"1"`
	TotalChunks        int      `json:"total_chunks" example:"47"`
	ProcessingTime     float64  `json:"processing_time" example:"2.31"`
	Errors             []string `json:"errors"`
}

// DocumentStatus is one corpus document's index state.
type DocumentStatus struct {
	Filename        string   `json:"filename" example:"games/rules.pdf"`
	DisplayName     string   `json:"display_name" example:"rules"`
	HasEmbeddings   bool     `json:"has_embeddings" example:"true"`
	EmbeddingModels []string `json:"embedding_models" example:"nomic-embed-text"`
}

// IngestStatusResponse reports index presence, per-document state, and
// the current/last run.
type IngestStatusResponse struct {
	Running       bool             `json:"running"`
	IndexExists   bool             `json:"index_exists"`
	DocumentNames []DocumentStatus `json:"document_names"`
	Last          *ingest.Result   `json:"last,omitempty"`
}

// DocumentItem is one indexed document in a listing.
type DocumentItem struct {
	Document       string    `json:"document" example:"games/rules.pdf"`
	Fingerprint    string    `json:"fingerprint" example:"9f2c...:1432"`
	ChunkCount     int       `json:"chunk_count" example:"12"`
	EmbeddingModel string    `json:"embedding_model" example:"nomic-embed-text"`
	LastIndexed    time.Time `json:"last_indexed"`
}

// DocumentListResponse wraps the indexed document listing.
type DocumentListResponse struct {
	Documents []DocumentItem `json:"documents" validate:"required"`
}
