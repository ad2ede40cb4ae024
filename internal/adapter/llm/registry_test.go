package llm

import (
	"errors"
	"testing"

	"chatrelay/internal/domain"
	"chatrelay/internal/infra/config"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]config.ProviderConfig{
		{Name: "openai", Type: "openai", BaseURL: "http://localhost:1", Model: "gpt-4o-mini"},
		{Name: "claude", Type: "anthropic", BaseURL: "http://localhost:1", Model: "claude-sonnet-4"},
		{Name: "local", Type: "ollama", BaseURL: "http://localhost:11434", Model: "llama3"},
	}, map[string]string{
		"claude-": "claude",
		"llama":   "local",
	}, CircuitBreakerConfig{}, newTestLogger())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestRegistryResolveExplicitProvider(t *testing.T) {
	r := newTestRegistry(t)

	p, model, err := r.Resolve("claude/claude-opus-4")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Name() != "claude" {
		t.Errorf("provider = %s, want claude", p.Name())
	}
	if model != "claude-opus-4" {
		t.Errorf("model = %s, want prefix stripped", model)
	}
}

func TestRegistryResolveRoutingPrefix(t *testing.T) {
	r := newTestRegistry(t)

	p, model, err := r.Resolve("llama3:8b")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Name() != "local" {
		t.Errorf("provider = %s, want local via routing prefix", p.Name())
	}
	if model != "llama3:8b" {
		t.Errorf("model = %s, want passed through", model)
	}
}

func TestRegistryResolveDefault(t *testing.T) {
	r := newTestRegistry(t)

	p, model, err := r.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("provider = %s, want first configured", p.Name())
	}
	if model != "gpt-4o-mini" {
		t.Errorf("model = %s, want provider default", model)
	}
}

func TestRegistryResolveUnknownPrefixFallsBack(t *testing.T) {
	r := newTestRegistry(t)

	p, model, err := r.Resolve("mistral-7b")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("provider = %s, want default", p.Name())
	}
	if model != "mistral-7b" {
		t.Errorf("model = %s, want unchanged", model)
	}
}

func TestRegistryResolveFreshHandlePerCall(t *testing.T) {
	r := newTestRegistry(t)

	p1, _, err := r.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	p2, _, err := r.Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p1 == p2 {
		t.Error("Resolve must build a fresh handle per call")
	}
}

func TestRegistryDuplicateProvider(t *testing.T) {
	_, err := NewRegistry([]config.ProviderConfig{
		{Name: "a", Type: "openai"},
		{Name: "a", Type: "anthropic"},
	}, nil, CircuitBreakerConfig{}, newTestLogger())
	if err == nil {
		t.Fatal("duplicate provider names must be rejected")
	}
}

func TestRegistryEmpty(t *testing.T) {
	_, err := NewRegistry(nil, nil, CircuitBreakerConfig{}, newTestLogger())
	if err == nil {
		t.Fatal("empty registry must be rejected")
	}
}

func TestRegistryBuildUnknownType(t *testing.T) {
	r := newTestRegistry(t)
	cfg := config.ProviderConfig{Name: "x", Type: "mystery"}
	_, err := r.build(cfg)
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("got %v, want provider-not-found", err)
	}
}

func TestRegistryList(t *testing.T) {
	r := newTestRegistry(t)
	names := r.List()
	if len(names) != 3 {
		t.Errorf("List() = %v, want 3 providers", names)
	}
}
