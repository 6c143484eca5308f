package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/chat"
	"github.com/starford/muninn/internal/ingest"
	"github.com/starford/muninn/internal/llm"
	"github.com/starford/muninn/internal/manifest"
	"github.com/starford/muninn/internal/memory"
	"github.com/starford/muninn/internal/vecindex"
)

// defaultHistoryLimit bounds history reads when the client does not ask
// for a specific limit.
const defaultHistoryLimit = 50

// Handler holds API route handlers.
type Handler struct {
	chat     *chat.Service
	ingestor *ingest.Ingestor
	manifest manifest.Store
	memory   memory.Store
	index    vecindex.Index
}

// NewHandler creates a new Handler.
func NewHandler(chatSvc *chat.Service, ingestor *ingest.Ingestor, mf manifest.Store, mem memory.Store, idx vecindex.Index) *Handler {
	return &Handler{chat: chatSvc, ingestor: ingestor, manifest: mf, memory: mem, index: idx}
}

// Chat handles POST /api/chat.
//
//	@Summary		Ask a question over the indexed corpus
//	@Tags			chat
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ChatRequest	true	"Question"
//	@Success		200		{object}	ChatResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/chat [post]
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("message is required"))
		return
	}

	resp, err := h.chat.Ask(r.Context(), chat.Request{
		SessionID: req.SessionID,
		Question:  req.Question,
		Provider:  req.Provider,
		TopK:      req.TopK,
		Documents: req.Documents,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("session not found"))
		case errors.Is(err, apperr.ErrEmbeddingUnavailable):
			slog.Error("chat failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, errorBody("embedding provider unavailable"))
		case errors.Is(err, apperr.ErrIndexUnavailable):
			slog.Error("chat failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, errorBody("vector index unavailable"))
		case errors.Is(err, llm.ErrUnknownProvider):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			// Generation failures are upstream problems; the detail stays
			// in the log, not the response.
			slog.Error("chat failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadGateway, errorBody("answer generation failed"))
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// TriggerIngest handles POST /api/ingest. The run executes within the
// request; a run already in flight yields 409 without additional writes.
//
//	@Summary		Run an ingestion pass
//	@Tags			ingest
//	@Produce		json
//	@Success		200	{object}	IngestRunResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/ingest [post]
func (h *Handler) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	res, err := h.ingestor.Run(r.Context(), "manual")
	if err != nil {
		if errors.Is(err, apperr.ErrBusy) {
			writeJSON(w, http.StatusConflict, errorBody("ingestion already running"))
			return
		}
		slog.Error("ingest run failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ingestRunResponse(res))
}

func ingestRunResponse(res *ingest.Result) IngestRunResponse {
	errs := make([]string, 0, len(res.Errors))
	for doc, msg := range res.Errors {
		errs = append(errs, doc+": "+msg)
	}
	sort.Strings(errs)
	return IngestRunResponse{
		ProcessedDocuments: res.New + res.Modified,
		SkippedDocuments:   res.Unchanged,
		RemovedDocuments:   res.Removed,
		TotalChunks:        res.TotalChunks,
		ProcessingTime:     res.FinishedAt.Sub(res.StartedAt).Seconds(),
		Errors:             errs,
	}
}

// IngestStatus handles GET /api/ingest/status.
//
//	@Summary		Index presence and per-document embedding state
//	@Tags			ingest
//	@Produce		json
//	@Success		200	{object}	IngestStatusResponse
//	@Security		BearerAuth
//	@Router			/ingest/status [get]
func (h *Handler) IngestStatus(w http.ResponseWriter, r *http.Request) {
	st := h.ingestor.Status()

	exists := false
	if info, err := h.index.CollectionInfo(r.Context()); err == nil {
		exists = info.Dimensions > 0 || info.Points > 0
	}

	entries, err := h.manifest.All()
	if err != nil {
		slog.Error("ingest status failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	docs := make([]DocumentStatus, 0, len(entries))
	for _, e := range entries {
		base := filepath.Base(e.Document)
		docs = append(docs, DocumentStatus{
			Filename:        e.Document,
			DisplayName:     base[:len(base)-len(filepath.Ext(base))],
			HasEmbeddings:   e.ChunkCount > 0,
			EmbeddingModels: []string{e.EmbeddingModel},
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Filename < docs[j].Filename })

	writeJSON(w, http.StatusOK, IngestStatusResponse{
		Running:       st.Running,
		IndexExists:   exists,
		DocumentNames: docs,
		Last:          st.Last,
	})
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List indexed documents
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	entries, err := h.manifest.All()
	if err != nil {
		slog.Error("list documents failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	docs := make([]DocumentItem, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, DocumentItem{
			Document:       e.Document,
			Fingerprint:    e.Fingerprint,
			ChunkCount:     e.ChunkCount,
			EmbeddingModel: e.EmbeddingModel,
			LastIndexed:    e.LastIndexed,
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Document < docs[j].Document })
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs})
}

// ListSessions handles GET /api/sessions.
//
//	@Summary		List conversation sessions
//	@Tags			sessions
//	@Produce		json
//	@Success		200	{object}	SessionListResponse
//	@Security		BearerAuth
//	@Router			/sessions [get]
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.memory.ListSessions()
	if err != nil {
		slog.Error("list sessions failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if sessions == nil {
		sessions = []memory.Session{}
	}
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: sessions})
}

// CreateSession handles POST /api/sessions.
//
//	@Summary		Create a conversation session
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateSessionRequest	false	"Session to create"
//	@Success		201		{object}	memory.Session
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	s, err := h.memory.CreateSession(id, req.Title)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("session already exists"))
			return
		}
		slog.Error("create session failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// GetSession handles GET /api/sessions/{id}.
//
//	@Summary		Get a session with its history
//	@Tags			sessions
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	SessionDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.memory.GetSession(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("session not found"))
		} else {
			slog.Error("get session failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	history, err := h.memory.History(id, defaultHistoryLimit)
	if err != nil {
		slog.Error("session history failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if history == nil {
		history = []memory.Exchange{}
	}
	writeJSON(w, http.StatusOK, SessionDetail{Session: *s, History: history})
}

// SessionHistory handles GET /api/sessions/{id}/history.
//
//	@Summary		Recent exchanges of a session, oldest first
//	@Tags			sessions
//	@Produce		json
//	@Param			id		path		string	true	"Session id"
//	@Param			limit	query		int		false	"Maximum exchanges to return"
//	@Success		200		{object}	SessionHistoryResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/history [get]
func (h *Handler) SessionHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.memory.GetSession(id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("session not found"))
		} else {
			slog.Error("session history failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a positive integer"))
			return
		}
		limit = n
	}

	history, err := h.memory.History(id, limit)
	if err != nil {
		slog.Error("session history failed", slog.String("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if history == nil {
		history = []memory.Exchange{}
	}
	writeJSON(w, http.StatusOK, SessionHistoryResponse{SessionID: id, History: history})
}

// DeleteSession handles DELETE /api/sessions/{id}.
//
//	@Summary		Delete a session and its history
//	@Tags			sessions
//	@Param			id	path	string	true	"Session id"
//	@Success		204	"Session deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id} [delete]
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.memory.DeleteSession(id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("session not found"))
		} else {
			slog.Error("delete session failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
