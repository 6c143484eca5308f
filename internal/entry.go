// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/muninn/internal/api"
	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/chat"
	"github.com/starford/muninn/internal/corpus"
	"github.com/starford/muninn/internal/docproc"
	"github.com/starford/muninn/internal/embed"
	"github.com/starford/muninn/internal/ingest"
	"github.com/starford/muninn/internal/llm"
	"github.com/starford/muninn/internal/manifest"
	"github.com/starford/muninn/internal/mcpserver"
	"github.com/starford/muninn/internal/memory"
	"github.com/starford/muninn/internal/rerank"
	"github.com/starford/muninn/internal/retrieval"
	"github.com/starford/muninn/internal/sse"
	"github.com/starford/muninn/internal/vecindex"
)

// components is the wired core shared by the HTTP and MCP entrypoints.
type components struct {
	source   *corpus.FS
	manifest *manifest.DB
	embedder embed.Embedder
	index    vecindex.Index
	pipeline *retrieval.Pipeline
	ingestor *ingest.Ingestor
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("corpus_path", cfg.Corpus.Path),
		slog.String("index_backend", cfg.Index.Backend),
		slog.String("embedding_model", cfg.Embedding.Model),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	var ingestor *ingest.Ingestor
	notify := func(kind, document string) {
		switch kind {
		case "started":
			broker.Publish(sse.Event{Type: "ingest.started", Data: map[string]string{}})
		case "completed":
			broker.Publish(sse.Event{Type: "ingest.completed", Data: ingestor.Status().Last})
		default:
			broker.PublishDocumentEvent(kind, document)
		}
	}

	core, err := buildCore(ctx, cfg, logger, notify)
	if err != nil {
		return err
	}
	defer core.manifest.Close()
	ingestor = core.ingestor

	// Conversation memory.
	mem, err := memory.Open(cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("init memory: %w", err)
	}
	defer mem.Close()

	// Generation providers.
	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	chatSvc := chat.New(core.pipeline, registry, mem, cfg.Chat.HistoryExchanges, logger)

	// Build API handler and router.
	h := api.NewHandler(chatSvc, ingestor, core.manifest, mem, core.index)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Initial ingestion pass.
	g.Go(func() error {
		if _, err := ingestor.Run(gCtx, "startup"); err != nil && !errors.Is(err, apperr.ErrBusy) {
			logger.Warn("initial ingestion failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start corpus watcher.
	if cfg.Corpus.Watch {
		g.Go(func() error {
			if err := ingestor.Watch(gCtx, core.source.Root(), logger); err != nil {
				logger.Warn("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP server on stdio. Logs go to stderr so they do
// not corrupt the protocol stream on stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	core, err := buildCore(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer core.manifest.Close()

	srv := mcpserver.New(core.pipeline, core.ingestor, core.manifest)
	logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}

// buildCore wires the ingestion and retrieval core: corpus source,
// manifest, embedder, vector index, processor, pipeline, ingestor.
// The embedding provider is pinged and the collection dimension checked
// up front so misconfiguration fails at startup, not mid-request.
func buildCore(ctx context.Context, cfg *Config, logger *slog.Logger, notify ingest.EventCallback) (*components, error) {
	if err := os.MkdirAll(cfg.Corpus.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create corpus dir: %w", err)
	}
	source, err := corpus.NewFS(cfg.Corpus.Path)
	if err != nil {
		return nil, fmt.Errorf("init corpus: %w", err)
	}

	mf, err := manifest.Open(cfg.Manifest.Path)
	if err != nil {
		return nil, fmt.Errorf("init manifest: %w", err)
	}

	embedder := embed.NewOpenAIClient(embed.OpenAIConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := embedder.Ping(pingCtx); err != nil {
		mf.Close()
		return nil, fmt.Errorf("embedding provider check: %w", err)
	}

	var index vecindex.Index
	switch cfg.Index.Backend {
	case IndexBackendMemory:
		index = vecindex.NewMemory()
	default:
		index = vecindex.NewQdrant(vecindex.QdrantConfig{
			URL:        cfg.Index.Qdrant.URL,
			APIKey:     cfg.Index.Qdrant.APIKey,
			Collection: cfg.Index.Qdrant.Collection,
			Timeout:    cfg.Index.Qdrant.Timeout,
		})
	}
	if err := index.EnsureCollection(pingCtx, embedder.Dimensions()); err != nil {
		mf.Close()
		return nil, fmt.Errorf("vector index check: %w", err)
	}

	var reranker rerank.Reranker
	if cfg.Reranker.Enabled {
		reranker = rerank.NewHTTPClient(cfg.Reranker.URL, cfg.Reranker.Timeout)
	}

	processor := docproc.NewProcessor(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap, nil)
	pipeline := retrieval.New(embedder, index, reranker, retrieval.Options{
		TopK:            cfg.Retrieval.TopK,
		OverfetchFactor: cfg.Retrieval.OverfetchFactor,
		PreviewChars:    cfg.Retrieval.PreviewChars,
	}, logger)
	ingestor := ingest.New(source, processor, embedder, index, mf, logger, notify)

	return &components{
		source:   source,
		manifest: mf,
		embedder: embedder,
		index:    index,
		pipeline: pipeline,
		ingestor: ingestor,
	}, nil
}

// buildRegistry configures the closed set of generation providers.
func buildRegistry(cfg *Config) (*llm.Registry, error) {
	def, err := llm.ParseProvider(cfg.Providers.Default)
	if err != nil {
		return nil, err
	}
	registry := llm.NewRegistry(def)
	registry.Register(llm.ProviderMistral, llm.NewClient(llm.ClientConfig{
		BaseURL: cfg.Providers.Mistral.BaseURL,
		APIKey:  cfg.Providers.Mistral.APIKey,
		Model:   cfg.Providers.Mistral.Model,
	}))
	registry.Register(llm.ProviderGroq, llm.NewClient(llm.ClientConfig{
		BaseURL: cfg.Providers.Groq.BaseURL,
		APIKey:  cfg.Providers.Groq.APIKey,
		Model:   cfg.Providers.Groq.Model,
	}))
	return registry, nil
}
