package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatrelay/internal/domain"
	"chatrelay/internal/infra/config"
)

func newOllamaTestProvider(baseURL string) *OllamaProvider {
	cfg := OllamaTimeouts(config.ProviderConfig{
		Name:    "local",
		Type:    "ollama",
		BaseURL: baseURL,
		Model:   "llama3",
	})
	return NewOllamaProvider(cfg, NewHTTPClient(cfg), newTestLogger())
}

func TestOllamaListModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]any{
				{"name": "llama3:8b", "size": 4661224676},
				{"name": "mistral:latest", "size": 4109865159},
			},
		})
	}))
	defer ts.Close()

	p := newOllamaTestProvider(ts.URL)
	models, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("models = %d, want 2", len(models))
	}
	if models[0].Name != "llama3:8b" {
		t.Errorf("model name = %s", models[0].Name)
	}
}

func TestOllamaIsHealthy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := newOllamaTestProvider(ts.URL)
	if !p.IsHealthy(context.Background()) {
		t.Error("expected healthy")
	}

	ts.Close()
	if p.IsHealthy(context.Background()) {
		t.Error("expected unhealthy after server stop")
	}
}

func TestOllamaWarmup(t *testing.T) {
	var warmed bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/generate" {
			var req struct {
				Model     string `json:"model"`
				KeepAlive string `json:"keep_alive"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode warmup body: %v", err)
			}
			if req.Model != "llama3" {
				t.Errorf("warmup model = %s", req.Model)
			}
			warmed = true
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := newOllamaTestProvider(ts.URL)
	if err := p.Warmup(context.Background()); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	if !warmed {
		t.Error("generate endpoint not hit")
	}
}

func TestOllamaWarmupUnreachable(t *testing.T) {
	p := newOllamaTestProvider("http://127.0.0.1:1")
	if err := p.Warmup(context.Background()); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

func TestOllamaChatDelegatesToOpenAICompat(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hi"}},
			},
			"model": "llama3",
			"usage": map[string]any{"total_tokens": 3},
		})
	}))
	defer ts.Close()

	p := newOllamaTestProvider(ts.URL)
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "hi" {
		t.Errorf("content = %q", resp.Message.Content)
	}
}
