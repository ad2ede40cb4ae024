package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"chatrelay/internal/domain"
	"chatrelay/internal/infra/config"
)

// Registry resolves model identifiers to provider handles. Handles are
// constructed fresh per Resolve call so no request shares mutable client
// state; only the pooled http.Transport (stateless) is reused.
type Registry struct {
	mu          sync.RWMutex
	configs     map[string]config.ProviderConfig
	clients     map[string]*http.Client
	routing     map[string]string // model prefix → provider name
	defaultName string
	breaker     CircuitBreakerConfig
	breakers    map[string]*sharedBreaker
	logger      *slog.Logger
}

// NewRegistry builds a registry from provider configs. The first configured
// provider is the default for bare model ids.
func NewRegistry(cfgs []config.ProviderConfig, routing map[string]string, cb CircuitBreakerConfig, logger *slog.Logger) (*Registry, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	r := &Registry{
		configs:     make(map[string]config.ProviderConfig, len(cfgs)),
		clients:     make(map[string]*http.Client, len(cfgs)),
		routing:     routing,
		defaultName: cfgs[0].Name,
		breaker:     cb,
		breakers:    make(map[string]*sharedBreaker, len(cfgs)),
		logger:      logger,
	}

	for _, cfg := range cfgs {
		if _, dup := r.configs[cfg.Name]; dup {
			return nil, fmt.Errorf("provider %q already registered", cfg.Name)
		}
		if cfg.Type == "ollama" {
			cfg = OllamaTimeouts(cfg)
		}
		r.configs[cfg.Name] = cfg
		r.clients[cfg.Name] = NewHTTPClient(cfg)
		r.breakers[cfg.Name] = newSharedBreaker(cfg.Name, cb, logger)
	}
	return r, nil
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	return names
}

// Resolve implements domain.ProviderResolver. A model id of the form
// "provider/model" selects the named provider; otherwise the routing table is
// consulted by prefix, falling back to the default provider. An empty model
// id selects the default provider's configured model.
func (r *Registry) Resolve(modelID string) (domain.StreamingLLMProvider, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := r.defaultName
	model := modelID

	if strings.Contains(modelID, "/") {
		parts := strings.SplitN(modelID, "/", 2)
		if _, ok := r.configs[parts[0]]; ok {
			name, model = parts[0], parts[1]
		}
	} else if modelID != "" {
		for prefix, provider := range r.routing {
			if strings.HasPrefix(modelID, prefix) {
				name = provider
				break
			}
		}
	}

	cfg, ok := r.configs[name]
	if !ok {
		return nil, "", domain.NewDomainError("Registry.Resolve", domain.ErrProviderNotFound, modelID)
	}
	if model == "" {
		model = cfg.Model
	}

	p, err := r.build(cfg)
	if err != nil {
		return nil, "", err
	}
	return p, model, nil
}

// build constructs a fresh provider handle for one call.
func (r *Registry) build(cfg config.ProviderConfig) (domain.StreamingLLMProvider, error) {
	client := r.clients[cfg.Name]

	var inner domain.StreamingLLMProvider
	switch cfg.Type {
	case "openai":
		inner = NewOpenAIProvider(cfg, client, r.logger)
	case "anthropic":
		inner = NewAnthropicProvider(cfg, client, r.logger)
	case "ollama":
		inner = NewOllamaProvider(cfg, client, r.logger)
	case "bedrock":
		p, err := NewBedrockProvider(cfg, r.logger)
		if err != nil {
			return nil, err
		}
		inner = p
	default:
		return nil, domain.NewDomainError("Registry.build", domain.ErrProviderNotFound, cfg.Type)
	}

	return wrapBreaker(inner, r.breakers[cfg.Name]), nil
}
