package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Vector index backends.
const (
	IndexBackendQdrant = "qdrant"
	IndexBackendMemory = "memory"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Corpus    CorpusConfig      `yaml:"corpus"`
	Manifest  SQLiteConfig      `yaml:"manifest"`
	Memory    SQLiteConfig      `yaml:"memory"`
	Index     IndexConfig       `yaml:"index"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Reranker  RerankerConfig    `yaml:"reranker"`
	Retrieval RetrievalConfig   `yaml:"retrieval"`
	Chat      ChatConfig        `yaml:"chat"`
	Providers ProvidersConfig   `yaml:"providers"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&c.App, &c.Corpus, &c.Manifest, &c.Memory, &c.Index,
		&c.Embedding, &c.Reranker, &c.Retrieval, &c.Chat, &c.Providers, &c.Auth,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CorpusConfig holds the document source directory settings.
type CorpusConfig struct {
	Path string `yaml:"path"`
	// Watch enables the fsnotify watcher that schedules an ingestion run
	// when corpus files change.
	Watch bool `yaml:"watch"`
}

// Validate validates the corpus configuration.
func (c *CorpusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds a SQLite database path.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Backend string       `yaml:"backend"`
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = IndexBackendQdrant
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(IndexBackendQdrant, IndexBackendMemory)),
	); err != nil {
		return err
	}
	if c.Backend == IndexBackendQdrant {
		return c.Qdrant.Validate()
	}
	return nil
}

// QdrantConfig holds the Qdrant REST endpoint settings.
type QdrantConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Validate validates the Qdrant configuration.
func (c *QdrantConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.Collection, validation.Required),
	)
}

// EmbeddingConfig holds the embedding service settings. The model identity
// is recorded per manifest entry so that switching models forces affected
// documents through re-indexing.
type EmbeddingConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Dimensions, validation.Min(0)),
	)
}

// RerankerConfig holds the reranking service settings. When disabled or
// unreachable the retrieval pipeline degrades to vector-similarity order.
type RerankerConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the reranker configuration.
func (c *RerankerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required),
	)
}

// RetrievalConfig holds the tunables of the retrieval pipeline. The
// over-fetch factor and preview length are deliberately configuration, not
// hidden constants.
type RetrievalConfig struct {
	// TopK is the number of sources returned per query.
	TopK int `yaml:"top_k"`
	// OverfetchFactor multiplies TopK for the candidate fetch that feeds
	// the reranker.
	OverfetchFactor int `yaml:"overfetch_factor"`
	// PreviewChars bounds the length of source content previews, in runes.
	PreviewChars int `yaml:"preview_chars"`
	// ChunkSize and ChunkOverlap are in characters.
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// Validate validates the retrieval configuration.
func (c *RetrievalConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.TopK, validation.Required, validation.Min(1)),
		validation.Field(&c.OverfetchFactor, validation.Required, validation.Min(1)),
		validation.Field(&c.PreviewChars, validation.Required, validation.Min(1)),
		validation.Field(&c.ChunkSize, validation.Required, validation.Min(1)),
		validation.Field(&c.ChunkOverlap, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("retrieval: chunk_overlap (%d) must be smaller than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// ChatConfig holds chat orchestration settings.
type ChatConfig struct {
	// HistoryExchanges bounds how many prior exchanges are folded into the
	// prompt, keeping prompt size finite regardless of session length.
	HistoryExchanges int `yaml:"history_exchanges"`
}

// Validate validates the chat configuration.
func (c *ChatConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HistoryExchanges, validation.Required, validation.Min(1)),
	)
}

// ProviderConfig holds one generation provider's endpoint settings.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// Validate validates a provider configuration.
func (c *ProviderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
	)
}

// ProvidersConfig holds the closed set of generation providers.
type ProvidersConfig struct {
	Default string         `yaml:"default"`
	Mistral ProviderConfig `yaml:"mistral"`
	Groq    ProviderConfig `yaml:"groq"`
}

// Validate validates the providers configuration.
func (c *ProvidersConfig) Validate() error {
	if c.Default == "" {
		c.Default = "mistral"
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Default, validation.Required, validation.In("mistral", "groq")),
	); err != nil {
		return err
	}
	if err := c.Mistral.Validate(); err != nil {
		return fmt.Errorf("providers.mistral: %w", err)
	}
	return c.Groq.Validate()
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Corpus: CorpusConfig{
			Path:  "./data",
			Watch: false,
		},
		Manifest: SQLiteConfig{
			Path: "./muninn-manifest.db",
		},
		Memory: SQLiteConfig{
			Path: "./muninn-memory.db",
		},
		Index: IndexConfig{
			Backend: IndexBackendQdrant,
			Qdrant: QdrantConfig{
				URL:        "http://localhost:6333",
				Collection: "documents",
				Timeout:    15 * time.Second,
			},
		},
		Embedding: EmbeddingConfig{
			BaseURL: "http://localhost:11434/v1",
			Model:   "nomic-embed-text",
			Timeout: 30 * time.Second,
		},
		Reranker: RerankerConfig{
			Enabled: false,
			Timeout: 30 * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:            5,
			OverfetchFactor: 3,
			PreviewChars:    200,
			ChunkSize:       500,
			ChunkOverlap:    50,
		},
		Chat: ChatConfig{
			HistoryExchanges: 3,
		},
		Providers: ProvidersConfig{
			Default: "mistral",
			Mistral: ProviderConfig{
				BaseURL: "https://api.mistral.ai/v1",
				Model:   "mistral-small-latest",
			},
			Groq: ProviderConfig{
				BaseURL: "https://api.groq.com/openai/v1",
				Model:   "llama-3.1-8b-instant",
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
