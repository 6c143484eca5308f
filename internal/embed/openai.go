package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/starford/muninn/internal/apperr"
)

const maxRetries = 5

// OpenAIClient talks to an OpenAI-compatible /embeddings endpoint
// (OpenAI, Ollama, vLLM and the like).
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	client  *http.Client
}

// OpenAIConfig configures the embeddings client.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Dimensions may be 0, in which case it is learned from the first
	// successful embedding call.
	Dimensions int
	Timeout    time.Duration
}

// NewOpenAIClient creates an embeddings client for the given endpoint.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		client:  &http.Client{Timeout: timeout},
	}
}

var _ Embedder = (*OpenAIClient)(nil)

// ModelName returns the configured model identifier.
func (c *OpenAIClient) ModelName() string { return c.model }

// Dimensions returns the vector dimensionality, 0 until known.
func (c *OpenAIClient) Dimensions() int { return c.dims }

// Ping embeds a probe text to verify the endpoint and resolve dimensions.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.Embed(ctx, "ping"); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrEmbeddingUnavailable, err)
	}
	return nil
}

// Embed embeds a single text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, retrying transient failures
// with exponential backoff. Result order matches input order.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}{Input: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt - 1)):
			}
		}

		vecs, retryable, err := c.embedOnce(ctx, body, len(texts))
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", apperr.ErrEmbeddingUnavailable, lastErr)
}

func (c *OpenAIClient) embedOnce(ctx context.Context, body []byte, want int) (vecs [][]float32, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, convErr := strconv.Atoi(ra); convErr == nil {
				select {
				case <-ctx.Done():
					return nil, false, ctx.Err()
				case <-time.After(time.Duration(secs) * time.Second):
				}
			}
		}
		return nil, true, fmt.Errorf("embeddings request failed: %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("embeddings request failed: %s", resp.Status)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, false, fmt.Errorf("embeddings response: %w", err)
	}
	if len(out.Data) != want {
		return nil, false, fmt.Errorf("embeddings response: got %d vectors, want %d", len(out.Data), want)
	}

	vecs = make([][]float32, want)
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= want || len(d.Embedding) == 0 {
			return nil, false, fmt.Errorf("embeddings response: bad entry at index %d", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	if c.dims == 0 {
		c.dims = len(vecs[0])
	}
	for i, v := range vecs {
		if len(v) != c.dims {
			return nil, false, fmt.Errorf("embeddings response: vector %d has dimension %d, want %d", i, len(v), c.dims)
		}
	}
	return vecs, false, nil
}

// retryDelay is exponential backoff capped at 5s.
func retryDelay(attempt int) time.Duration {
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
