package docproc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandRunner executes an external command and returns its stdout.
// It exists so tests can stub the pdftotext binary.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner is the production CommandRunner backed by os/exec.
type ExecRunner struct{}

// Run executes the command and returns its combined stdout.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("docproc: %s: %w", name, err)
	}
	return out, nil
}

// extractPDF extracts per-page text with pdftotext. The tool emits a form
// feed between pages, which preserves page numbering for chunk metadata.
func (p *Processor) extractPDF(ctx context.Context, name string, data []byte) ([]page, error) {
	tmp, err := os.CreateTemp("", "muninn-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("docproc: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("docproc: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("docproc: close temp: %w", err)
	}

	out, err := p.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", tmpName, "-")
	if err != nil {
		return nil, fmt.Errorf("docproc: extract %s: %w", filepath.Base(name), err)
	}

	var pages []page
	for i, raw := range strings.Split(string(out), "\f") {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		num := i + 1
		pages = append(pages, page{number: &num, text: text})
	}
	return pages, nil
}
