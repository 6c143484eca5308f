// Package ingest keeps the vector index in step with the corpus. Each run
// diffs corpus fingerprints against the manifest and re-indexes only what
// changed; per-document failures are recorded and do not stop the run.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/corpus"
	"github.com/starford/muninn/internal/docproc"
	"github.com/starford/muninn/internal/embed"
	"github.com/starford/muninn/internal/fingerprint"
	"github.com/starford/muninn/internal/manifest"
	"github.com/starford/muninn/internal/vecindex"
)

// EventCallback is called as the run progresses.
// kind is one of "started", "indexed", "removed", "failed", "completed".
type EventCallback func(kind string, document string)

// Result summarizes one ingestion run. TotalChunks counts chunks
// written by this run, not the index total.
type Result struct {
	Trigger     string            `json:"trigger"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	New         int               `json:"new"`
	Modified    int               `json:"modified"`
	Unchanged   int               `json:"unchanged"`
	Removed     int               `json:"removed"`
	Failed      int               `json:"failed"`
	TotalChunks int               `json:"total_chunks"`
	Errors      map[string]string `json:"errors,omitempty"`
}

// Status reports whether a run is in flight and the last completed run.
type Status struct {
	Running bool    `json:"running"`
	Last    *Result `json:"last,omitempty"`
}

// Ingestor drives incremental ingestion runs.
type Ingestor struct {
	source    corpus.Source
	processor *docproc.Processor
	embedder  embed.Embedder
	index     vecindex.Index
	manifest  manifest.Store
	logger    *slog.Logger
	notify    EventCallback

	// runMu is the run-lock: at most one ingestion run at a time.
	runMu sync.Mutex

	mu      sync.Mutex
	running bool
	last    *Result
}

// New creates an ingestor. notify may be nil.
func New(source corpus.Source, processor *docproc.Processor, embedder embed.Embedder,
	index vecindex.Index, store manifest.Store, logger *slog.Logger, notify EventCallback) *Ingestor {
	if notify == nil {
		notify = func(string, string) {}
	}
	return &Ingestor{
		source:    source,
		processor: processor,
		embedder:  embedder,
		index:     index,
		manifest:  store,
		logger:    logger,
		notify:    notify,
	}
}

// Status returns the current ingestion status.
func (ing *Ingestor) Status() Status {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return Status{Running: ing.running, Last: ing.last}
}

// Run performs one ingestion pass. If a run is already in flight it
// returns apperr.ErrBusy immediately instead of queueing.
func (ing *Ingestor) Run(ctx context.Context, trigger string) (*Result, error) {
	if !ing.runMu.TryLock() {
		return nil, apperr.ErrBusy
	}
	defer ing.runMu.Unlock()
	return ing.lockedRun(ctx, trigger)
}

// StartAsync begins an ingestion run in the background. It returns
// apperr.ErrBusy when a run is already in flight; progress is observable
// through Status and the event callback.
func (ing *Ingestor) StartAsync(trigger string) error {
	if !ing.runMu.TryLock() {
		return apperr.ErrBusy
	}
	go func() {
		defer ing.runMu.Unlock()
		if _, err := ing.lockedRun(context.Background(), trigger); err != nil {
			ing.logger.Error("ingest: background run failed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

func (ing *Ingestor) lockedRun(ctx context.Context, trigger string) (*Result, error) {
	ing.mu.Lock()
	ing.running = true
	ing.mu.Unlock()

	res := &Result{
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
		Errors:    make(map[string]string),
	}
	ing.notify("started", "")
	err := ing.run(ctx, res)
	res.FinishedAt = time.Now().UTC()

	ing.mu.Lock()
	ing.running = false
	ing.last = res
	ing.mu.Unlock()

	ing.notify("completed", "")
	if err != nil {
		return res, err
	}
	ing.logger.Info("ingest: run finished",
		slog.String("trigger", trigger),
		slog.Int("new", res.New),
		slog.Int("modified", res.Modified),
		slog.Int("unchanged", res.Unchanged),
		slog.Int("removed", res.Removed),
		slog.Int("failed", res.Failed))
	return res, nil
}

func (ing *Ingestor) run(ctx context.Context, res *Result) error {
	metas, err := ing.source.List()
	if err != nil {
		return fmt.Errorf("ingest: list corpus: %w", err)
	}
	entries, err := ing.manifest.All()
	if err != nil {
		return fmt.Errorf("ingest: read manifest: %w", err)
	}
	model := ing.embedder.ModelName()

	disk := make(map[string]corpus.DocumentMeta, len(metas))
	for _, m := range metas {
		disk[m.Name] = m
	}

	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return err
		}
		prev, known := entries[m.Name]
		// A model switch invalidates stored vectors even when the file
		// itself did not change.
		if known && prev.Fingerprint == m.Fingerprint && prev.EmbeddingModel == model {
			res.Unchanged++
			continue
		}
		chunks, err := ing.indexDocument(ctx, m, prev, known)
		if err != nil {
			res.Failed++
			res.Errors[m.Name] = err.Error()
			ing.logger.Warn("ingest: document failed",
				slog.String("document", m.Name),
				slog.String("error", err.Error()))
			ing.notify("failed", m.Name)
			continue
		}
		if known {
			res.Modified++
		} else {
			res.New++
		}
		res.TotalChunks += chunks
		ing.notify("indexed", m.Name)
	}

	// Remove documents that disappeared from the corpus.
	for name, prev := range entries {
		if _, ok := disk[name]; ok {
			continue
		}
		ids := fingerprint.ChunkIDs(name, prev.ChunkCount, prev.Fingerprint)
		if err := ing.index.Delete(ctx, ids); err != nil {
			res.Failed++
			res.Errors[name] = err.Error()
			ing.logger.Warn("ingest: remove failed",
				slog.String("document", name),
				slog.String("error", err.Error()))
			continue
		}
		if err := ing.manifest.Delete(name); err != nil {
			res.Failed++
			res.Errors[name] = err.Error()
			continue
		}
		res.Removed++
		ing.logger.Debug("ingest: removed", slog.String("document", name))
		ing.notify("removed", name)
	}
	return nil
}

// indexDocument replaces a document's chunks in the index and returns
// how many were written. Stale points are deleted first; the manifest is
// written only after the new points are durably upserted, so a failure
// leaves the previous manifest entry intact and the document is retried
// on the next run.
func (ing *Ingestor) indexDocument(ctx context.Context, m corpus.DocumentMeta, prev manifest.Entry, known bool) (int, error) {
	data, err := ing.source.Read(m.Name)
	if err != nil {
		return 0, err
	}
	chunks, err := ing.processor.Process(ctx, m.Name, data)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	if known {
		stale := fingerprint.ChunkIDs(m.Name, prev.ChunkCount, prev.Fingerprint)
		if err := ing.index.Delete(ctx, stale); err != nil {
			return 0, err
		}
	}

	ids := fingerprint.ChunkIDs(m.Name, len(chunks), m.Fingerprint)
	points := make([]vecindex.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vecindex.Point{
			ID:     ids[i],
			Vector: vecs[i],
			Payload: vecindex.Payload{
				Document:   c.Document,
				ChunkIndex: c.Index,
				Page:       c.Page,
				Text:       c.Text,
			},
		}
	}
	if err := ing.index.Upsert(ctx, points); err != nil {
		return 0, err
	}

	ing.logger.Debug("ingest: indexed",
		slog.String("document", m.Name),
		slog.Int("chunks", len(chunks)))
	return len(chunks), ing.manifest.Put(manifest.Entry{
		Document:       m.Name,
		Fingerprint:    m.Fingerprint,
		ChunkCount:     len(chunks),
		EmbeddingModel: ing.embedder.ModelName(),
		LastIndexed:    time.Now().UTC(),
	})
}
