package fingerprint

import "testing"

func TestSumDeterministic(t *testing.T) {
	a := Sum([]byte("players draft cards"))
	b := Sum([]byte("players draft cards"))
	if a != b {
		t.Errorf("Sum not deterministic: %q vs %q", a, b)
	}
}

func TestSumChangesWithContent(t *testing.T) {
	if Sum([]byte("v1")) == Sum([]byte("v2")) {
		t.Error("different content produced identical fingerprints")
	}
}

func TestChunkIDStableForSameFingerprint(t *testing.T) {
	fp := Sum([]byte("rules"))
	if ChunkID("rules.pdf", 3, fp) != ChunkID("rules.pdf", 3, fp) {
		t.Error("chunk id not stable across calls")
	}
}

func TestChunkIDChangesWithFingerprint(t *testing.T) {
	old := ChunkID("rules.pdf", 0, Sum([]byte("v1")))
	updated := ChunkID("rules.pdf", 0, Sum([]byte("v2")))
	if old == updated {
		t.Error("chunk id unchanged after content change")
	}
}

func TestChunkIDsEnumeratesPriorSet(t *testing.T) {
	fp := Sum([]byte("rules"))
	ids := ChunkIDs("rules.pdf", 4, fp)
	if len(ids) != 4 {
		t.Fatalf("got %d ids, want 4", len(ids))
	}
	for i, id := range ids {
		if id != ChunkID("rules.pdf", i, fp) {
			t.Errorf("ids[%d] = %q, want ChunkID result", i, id)
		}
	}
}

func TestChunkIDDistinctAcrossDocuments(t *testing.T) {
	fp := Sum([]byte("same bytes"))
	if ChunkID("a.pdf", 0, fp) == ChunkID("b.pdf", 0, fp) {
		t.Error("chunk ids collide across documents")
	}
}
