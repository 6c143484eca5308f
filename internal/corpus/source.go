// Package corpus defines the document-source abstraction the ingestor
// scans. Sources are read-only: the service never mutates corpus files.
package corpus

// DocumentMeta describes one discovered corpus document.
type DocumentMeta struct {
	// Name is the source-relative filename, the document's stable id.
	Name string
	// Fingerprint is the content fingerprint (see internal/fingerprint).
	Fingerprint string
	// Size is the document length in bytes.
	Size int64
}

// Source is the interface for corpus document access.
type Source interface {
	// List returns metadata for every supported document in the corpus.
	List() ([]DocumentMeta, error)
	// Read returns the raw bytes of the document with the given name.
	Read(name string) ([]byte, error)
}
