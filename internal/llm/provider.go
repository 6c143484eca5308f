// Package llm dispatches answer generation to a closed set of
// OpenAI-compatible chat providers.
package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ErrUnknownProvider marks a provider name outside the supported set.
var ErrUnknownProvider = errors.New("unknown provider")

// Provider identifies a generation backend.
type Provider string

// Supported providers.
const (
	ProviderMistral Provider = "mistral"
	ProviderGroq    Provider = "groq"
)

// ParseProvider validates a provider name. The set is closed: unknown
// names are rejected rather than passed through.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderMistral, ProviderGroq:
		return Provider(s), nil
	default:
		return "", fmt.Errorf("llm: %w %q", ErrUnknownProvider, s)
	}
}

// Generator produces an answer from a system prompt and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Client is a chat-completions Generator for one provider.
type Client struct {
	api   *openai.Client
	model string
}

// ClientConfig holds one provider's endpoint settings.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// NewClient creates a chat client against an OpenAI-compatible endpoint.
func NewClient(cfg ClientConfig) *Client {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &Client{api: openai.NewClientWithConfig(c), model: cfg.Model}
}

var _ Generator = (*Client)(nil)

// Generate runs one chat completion and returns the answer text.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Registry maps provider names to configured clients.
type Registry struct {
	clients map[Provider]Generator
	def     Provider
}

// NewRegistry creates a registry with the given default provider.
func NewRegistry(def Provider) *Registry {
	return &Registry{clients: make(map[Provider]Generator), def: def}
}

// Register adds a client for a provider.
func (r *Registry) Register(p Provider, g Generator) {
	r.clients[p] = g
}

// Get resolves a provider name to its client, reporting which provider
// was chosen. An empty name selects the default provider.
func (r *Registry) Get(name string) (Provider, Generator, error) {
	p := r.def
	if name != "" {
		parsed, err := ParseProvider(name)
		if err != nil {
			return "", nil, err
		}
		p = parsed
	}
	g, ok := r.clients[p]
	if !ok {
		return "", nil, fmt.Errorf("llm: provider %q not configured", p)
	}
	return p, g, nil
}
