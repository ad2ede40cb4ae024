package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"chatrelay/internal/domain"
	"chatrelay/internal/infra/tracer"
)

// Generator turns provider stream deltas into the canonical wire events.
// Every stream it produces is zero or more token events followed by exactly
// one terminal event; consumers never see a bare channel close without one
// unless the context was cancelled first.
type Generator struct {
	resolver domain.ProviderResolver
	counter  *TokenCounter
	logger   *slog.Logger
}

// NewGenerator creates a stream generator backed by the given resolver.
func NewGenerator(resolver domain.ProviderResolver, logger *slog.Logger) *Generator {
	return &Generator{
		resolver: resolver,
		counter:  NewTokenCounter(),
		logger:   logger,
	}
}

// Stream resolves the model, opens a provider stream and returns a channel of
// wire events. Resolution and connection failures are returned synchronously;
// everything after that arrives in-band as an error event.
func (g *Generator) Stream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamEvent, error) {
	ctx, span := tracer.StartSpan(ctx, "generator.stream",
		trace.WithAttributes(tracer.StringAttr("llm.model", req.Model)),
	)

	provider, model, err := g.resolver.Resolve(req.Model)
	if err != nil {
		tracer.RecordError(span, err)
		span.End()
		return nil, err
	}
	req.Model = model
	req.Stream = true

	deltas, err := provider.ChatStream(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		span.End()
		return nil, err
	}

	events := make(chan domain.StreamEvent, 16)
	go func() {
		defer close(events)
		defer span.End()
		g.pump(ctx, span, provider.Name(), model, req, deltas, events)
	}()

	return events, nil
}

// pump drains provider deltas into wire events. It owns the single-terminal
// invariant: the first Done or Err delta produces the terminal event and ends
// the stream, and anything the provider sends after that is discarded.
func (g *Generator) pump(ctx context.Context, span trace.Span, providerName, model string, req domain.ChatRequest, deltas <-chan domain.StreamDelta, events chan<- domain.StreamEvent) {
	var assembled strings.Builder
	start := time.Now()
	tokens := 0

	emit := func(e domain.StreamEvent) bool {
		select {
		case events <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("stream aborted",
				"provider", providerName,
				"model", model,
				"tokens", tokens,
				"duration", time.Since(start))
			return

		case delta, ok := <-deltas:
			if !ok {
				// Channel closed without a Done marker: the adapter hit EOF
				// before the provider finished. Treat it as a clean complete
				// so partial output still ends in a well-formed stream.
				g.complete(span, emit, providerName, model, req, assembled.String(), nil, tokens, start)
				return
			}

			if delta.Err != nil {
				tracer.RecordError(span, delta.Err)
				g.logger.Warn("stream failed",
					"provider", providerName,
					"model", model,
					"tokens", tokens,
					"error", delta.Err)
				emit(domain.ErrorEvent(delta.Err))
				return
			}

			if delta.Content != "" {
				assembled.WriteString(delta.Content)
				tokens++
				if !emit(domain.TokenEvent(delta.Content)) {
					return
				}
			}

			if delta.Done {
				g.complete(span, emit, providerName, model, req, assembled.String(), delta.Usage, tokens, start)
				return
			}
		}
	}
}

func (g *Generator) complete(span trace.Span, emit func(domain.StreamEvent) bool, providerName, model string, req domain.ChatRequest, text string, usage *domain.Usage, chunks int, start time.Time) {
	total := 0
	if usage != nil {
		total = usage.TotalTokens
	}
	if total == 0 {
		// Provider reported no usage; estimate from the request and the
		// assembled output so the complete event always carries a count.
		total = g.counter.CountRequest(req) + g.counter.Count(text)
	}

	tracer.SetOK(span)
	g.logger.Info("stream completed",
		"provider", providerName,
		"model", model,
		"chunks", chunks,
		"total_tokens", total,
		"duration", time.Since(start))

	emit(domain.CompleteEvent(model, total))
}

// Chat performs a synchronous completion through the same resolution path,
// used by the non-streaming fallback.
func (g *Generator) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	provider, model, err := g.resolver.Resolve(req.Model)
	if err != nil {
		return nil, err
	}
	req.Model = model
	req.Stream = false

	return provider.Chat(ctx, req)
}
