// Package docproc turns raw corpus documents into ordered chunks with
// page and span metadata. Chunking is deterministic: identical content
// and identical size/overlap parameters always produce identical chunk
// boundaries, which fingerprint-based chunk-id stability depends on.
package docproc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// maxChunksPerPage caps runaway chunking on degenerate input.
const maxChunksPerPage = 1000

// Chunk is a contiguous slice of a document's text.
type Chunk struct {
	// Document is the owning document's name.
	Document string
	// Index is the zero-based position of the chunk within the document.
	Index int
	// Page is the 1-based page the chunk starts on; nil for unpaginated
	// formats. A chunk spanning a page break records its first page.
	Page *int
	// Start and End are the chunk's rune span within its page.
	Start, End int
	// Text is the chunk content.
	Text string
}

// page is one unit of extracted text.
type page struct {
	number *int
	text   string
}

// Processor splits documents into fixed-size chunks with overlap.
type Processor struct {
	chunkSize int
	overlap   int
	runner    CommandRunner
}

// NewProcessor creates a processor with the given chunk size and overlap
// (characters). Non-positive values fall back to the defaults. PDF text
// extraction runs through runner; pass nil for the default exec-based one.
func NewProcessor(chunkSize, overlap int, runner CommandRunner) *Processor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 4
		}
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Processor{chunkSize: chunkSize, overlap: overlap, runner: runner}
}

// Process extracts text from a document and splits it into chunks.
// An unsupported or unparseable document yields an error for that
// document only; callers continue with the rest of the batch.
func (p *Processor) Process(ctx context.Context, name string, data []byte) ([]Chunk, error) {
	var pages []page
	var err error

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		pages, err = p.extractPDF(ctx, name, data)
	case ".txt", ".md":
		pages = extractPlain(data)
	default:
		return nil, fmt.Errorf("docproc: unsupported format: %s", name)
	}
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, pg := range pages {
		for _, sp := range splitRunes([]rune(pg.text), p.chunkSize, p.overlap) {
			chunks = append(chunks, Chunk{
				Document: name,
				Index:    len(chunks),
				Page:     pg.number,
				Start:    sp.start,
				End:      sp.end,
				Text:     sp.text,
			})
		}
	}
	return chunks, nil
}

// extractPlain treats the whole file as a single unpaginated page.
func extractPlain(data []byte) []page {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil
	}
	return []page{{number: nil, text: text}}
}

type span struct {
	start, end int
	text       string
}

// splitRunes cuts text into spans of up to size runes with the given
// overlap. When a cut would land mid-word and the chunk is long enough,
// the boundary backs off to the last space, provided it sits in the
// final fifth of the chunk.
func splitRunes(text []rune, size, overlap int) []span {
	n := len(text)
	if n == 0 {
		return nil
	}
	if n <= size {
		return []span{{start: 0, end: n, text: strings.TrimSpace(string(text))}}
	}

	var spans []span
	start := 0
	for start < n && len(spans) < maxChunksPerPage {
		end := start + size
		if end > n {
			end = n
		}
		if end < n && end-start > 100 {
			if cut := lastSpace(text[start:end]); cut > (end-start)*4/5 {
				end = start + cut
			}
		}
		spans = append(spans, span{start: start, end: end, text: strings.TrimSpace(string(text[start:end]))})
		if end == n {
			break
		}
		// Guarantee forward progress even when word-boundary backoff
		// shrinks the chunk below the overlap.
		if next := end - overlap; next > start {
			start = next
		} else {
			start = end
		}
	}
	return spans
}

// lastSpace returns the index of the last space rune, or -1.
func lastSpace(text []rune) int {
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] == ' ' {
			return i
		}
	}
	return -1
}
