package internal

import (
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass validation: %v", err)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled || cfg.AuthEnabled() {
		t.Errorf("mode = %q, enabled = %v", cfg.Mode, cfg.AuthEnabled())
	}
}

func TestIndexConfig_UnknownBackend(t *testing.T) {
	cfg := IndexConfig{Backend: "faiss"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown backend should fail validation")
	}
}

func TestIndexConfig_MemoryBackendNeedsNoQdrant(t *testing.T) {
	cfg := IndexConfig{Backend: IndexBackendMemory}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("memory backend should not require qdrant settings: %v", err)
	}
}

func TestRetrievalConfig_OverlapMustBeSmallerThanChunk(t *testing.T) {
	cfg := NewDefaultConfig().Retrieval
	cfg.ChunkOverlap = cfg.ChunkSize
	err := cfg.Validate()
	if err == nil {
		t.Fatal("overlap >= chunk size should fail validation")
	}
	if !strings.Contains(err.Error(), "chunk_overlap") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestProvidersConfig_UnknownDefault(t *testing.T) {
	cfg := NewDefaultConfig().Providers
	cfg.Default = "cohere"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown default provider should fail validation")
	}
}

func TestRerankerConfig_EnabledRequiresURL(t *testing.T) {
	cfg := RerankerConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled reranker without url should fail validation")
	}
	if err := (&RerankerConfig{Enabled: false}).Validate(); err != nil {
		t.Errorf("disabled reranker should not require url: %v", err)
	}
}
