package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"chatrelay/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"interval"`
}

// sharedBreaker is the per-provider breaker state. Provider handles are built
// per call, so the breaker lives in the registry and is shared by all handles
// of one provider, otherwise consecutive failures would never accumulate.
type sharedBreaker struct {
	cb *gobreaker.CircuitBreaker[*domain.ChatResponse]
}

func newSharedBreaker(name string, cfg CircuitBreakerConfig, logger *slog.Logger) *sharedBreaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[*domain.ChatResponse](gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &sharedBreaker{cb: cb}
}

// CircuitBreakerProvider wraps a provider handle with circuit breaker
// protection. When the provider fails repeatedly, the circuit opens and
// subsequent calls fail fast without reaching the provider, preventing
// retry storms against an upstream that is already down.
type CircuitBreakerProvider struct {
	inner   domain.StreamingLLMProvider
	breaker *sharedBreaker
}

// wrapBreaker wraps inner with the provider's shared breaker.
func wrapBreaker(inner domain.StreamingLLMProvider, b *sharedBreaker) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{inner: inner, breaker: b}
}

// Chat implements domain.LLMProvider. Calls are routed through the circuit breaker.
func (p *CircuitBreakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.breaker.cb.Execute(func() (*domain.ChatResponse, error) {
		return p.inner.Chat(ctx, req)
	})
	if err != nil {
		return nil, mapBreakerError(p.inner.Name(), err)
	}
	return resp, nil
}

// ChatStream implements domain.StreamingLLMProvider. The circuit breaker
// protects the initial connection; errors after the stream has opened flow
// through the delta channel and do not trip the breaker.
func (p *CircuitBreakerProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	var ch <-chan domain.StreamDelta
	_, err := p.breaker.cb.Execute(func() (*domain.ChatResponse, error) {
		var streamErr error
		ch, streamErr = p.inner.ChatStream(ctx, req)
		return nil, streamErr
	})
	if err != nil {
		return nil, mapBreakerError(p.inner.Name(), err)
	}
	return ch, nil
}

// Name implements domain.LLMProvider.
func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// State returns the current circuit breaker state for monitoring.
func (p *CircuitBreakerProvider) State() gobreaker.State {
	return p.breaker.cb.State()
}

// mapBreakerError surfaces an open circuit as a connection failure: the
// upstream is unreachable from the caller's point of view.
func mapBreakerError(name string, err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: provider %q circuit open", domain.ErrConnection, name)
	}
	return err
}

// Compile-time interface checks.
var (
	_ domain.LLMProvider          = (*CircuitBreakerProvider)(nil)
	_ domain.StreamingLLMProvider = (*CircuitBreakerProvider)(nil)
)
