// Package fingerprint derives content fingerprints for documents and
// deterministic ids for their chunks. A fingerprint covers the document
// bytes and size, never the modification time, so a copied or touched
// file with identical content is not re-embedded.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// chunkNamespace is the fixed UUIDv5 namespace for chunk ids.
var chunkNamespace = uuid.MustParse("8f0c2f6e-7b3d-4a11-9c55-2d1d9e8b4a70")

// Sum returns the fingerprint of a document's raw bytes: the hex-encoded
// SHA-256 digest joined with the byte length.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%s:%d", hex.EncodeToString(h[:]), len(data))
}

// ChunkID returns the id of chunk `index` of `document` at fingerprint `fp`.
// The id is a name-based UUID, so it is stable across ingestion runs while
// the fingerprint is unchanged and guaranteed to differ once the document's
// content changes. Qdrant accepts UUIDs as point ids directly.
func ChunkID(document string, index int, fp string) string {
	name := fmt.Sprintf("%s|%d|%s", document, index, fp)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// ChunkIDs returns the ids of all n chunks of a document at a given
// fingerprint. The ingestor uses this to enumerate the prior chunk set of a
// modified or removed document from its manifest entry alone.
func ChunkIDs(document string, n int, fp string) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = ChunkID(document, i, fp)
	}
	return ids
}
