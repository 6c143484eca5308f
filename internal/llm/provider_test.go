package llm

import (
	"context"
	"errors"
	"testing"
)

type fakeGenerator struct{ name string }

func (f fakeGenerator) Generate(context.Context, string, string) (string, error) {
	return f.name, nil
}

func TestParseProvider(t *testing.T) {
	for _, name := range []string{"mistral", "groq"} {
		if _, err := ParseProvider(name); err != nil {
			t.Errorf("ParseProvider(%q): %v", name, err)
		}
	}
	for _, name := range []string{"", "openai", "MISTRAL", "anthropic"} {
		_, err := ParseProvider(name)
		if !errors.Is(err, ErrUnknownProvider) {
			t.Errorf("ParseProvider(%q) = %v, want ErrUnknownProvider", name, err)
		}
	}
}

func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry(ProviderMistral)
	r.Register(ProviderMistral, fakeGenerator{name: "mistral"})
	r.Register(ProviderGroq, fakeGenerator{name: "groq"})

	p, g, err := r.Get("")
	if err != nil {
		t.Fatalf("Get default: %v", err)
	}
	if p != ProviderMistral {
		t.Errorf("default resolved to %q", p)
	}
	if got, _ := g.Generate(context.Background(), "", ""); got != "mistral" {
		t.Errorf("default dispatched to %q", got)
	}

	p, g, err = r.Get("groq")
	if err != nil {
		t.Fatalf("Get groq: %v", err)
	}
	if p != ProviderGroq {
		t.Errorf("groq resolved to %q", p)
	}
	if got, _ := g.Generate(context.Background(), "", ""); got != "groq" {
		t.Errorf("groq dispatched to %q", got)
	}

	if _, _, err := r.Get("deepseek"); err == nil {
		t.Error("unknown provider accepted")
	}
}

func TestRegistryUnconfiguredProvider(t *testing.T) {
	r := NewRegistry(ProviderMistral)
	if _, _, err := r.Get("groq"); err == nil {
		t.Error("unconfigured provider must error")
	}
}
