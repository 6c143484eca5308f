package corpus

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/muninn/internal/fingerprint"
)

// supportedExts are the document formats the processor understands.
var supportedExts = map[string]struct{}{
	".pdf": {},
	".txt": {},
	".md":  {},
}

// FS implements Source backed by a local directory.
type FS struct {
	root string // absolute path to the corpus directory
}

// NewFS creates a new FS source rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("corpus: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("corpus: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute corpus directory, used by the watcher.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative name against the corpus root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if cleaned == "" || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("corpus: invalid document name: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("corpus: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("corpus: path escapes corpus root: %s", rel)
	}
	return abs, nil
}

// List walks the corpus and returns metadata for every supported document.
// Fingerprints are computed over file content, not modification time.
func (f *FS) List() ([]DocumentMeta, error) {
	var out []DocumentMeta
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := supportedExts[strings.ToLower(filepath.Ext(d.Name()))]; !ok {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, DocumentMeta{
			Name:        filepath.ToSlash(rel),
			Fingerprint: fingerprint.Sum(data),
			Size:        int64(len(data)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("corpus: list: %w", err)
	}
	return out, nil
}

// Read returns the raw bytes of a corpus document.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("corpus: read %s: %w", name, err)
	}
	return data, nil
}
