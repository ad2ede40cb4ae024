package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/domain"
)

// mockProvider replays a scripted delta sequence.
type mockProvider struct {
	name   string
	deltas []domain.StreamDelta
	chat   *domain.ChatResponse
	err    error
}

func (m *mockProvider) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.chat, nil
}

func (m *mockProvider) ChatStream(_ context.Context, _ domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan domain.StreamDelta, len(m.deltas))
	for _, d := range m.deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func (m *mockProvider) Name() string { return m.name }

// mockResolver returns a fixed provider for every model id.
type mockResolver struct {
	provider domain.StreamingLLMProvider
	model    string
	err      error
}

func (m *mockResolver) Resolve(modelID string) (domain.StreamingLLMProvider, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	model := m.model
	if model == "" {
		model = modelID
	}
	return m.provider, model, nil
}

func newTestLogger() *slog.Logger { return slog.Default() }

func collectEvents(t *testing.T, events <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()
	var out []domain.StreamEvent
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, evt)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out draining events")
		}
	}
}

func TestGeneratorTokenSequence(t *testing.T) {
	provider := &mockProvider{
		name: "mock",
		deltas: []domain.StreamDelta{
			{Content: "The"},
			{Content: " answer"},
			{Content: " is"},
			{Content: " 4"},
			{Done: true, Usage: &domain.Usage{TotalTokens: 9}},
		},
	}
	g := NewGenerator(&mockResolver{provider: provider, model: "m1"}, newTestLogger())

	events, err := g.Stream(context.Background(), domain.ChatRequest{Model: "m1"})
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Len(t, got, 5)

	var text string
	for _, evt := range got[:4] {
		assert.Equal(t, domain.EventToken, evt.Type)
		text += evt.Content
	}
	assert.Equal(t, "The answer is 4", text)

	terminal := got[4]
	assert.Equal(t, domain.EventComplete, terminal.Type)
	assert.Equal(t, "m1", terminal.Model)
	assert.Equal(t, 9, terminal.TotalTokens)
}

func TestGeneratorFiltersEmptyChunks(t *testing.T) {
	provider := &mockProvider{
		name: "mock",
		deltas: []domain.StreamDelta{
			{Content: ""},
			{Content: "Hi"},
			{Content: ""},
			{Done: true},
		},
	}
	g := NewGenerator(&mockResolver{provider: provider, model: "m1"}, newTestLogger())

	events, err := g.Stream(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Len(t, got, 2, "empty chunks must not become token events")
	assert.Equal(t, "Hi", got[0].Content)
	assert.True(t, got[1].Terminal())
}

func TestGeneratorErrorTerminatesStream(t *testing.T) {
	provider := &mockProvider{
		name: "mock",
		deltas: []domain.StreamDelta{
			{Content: "Hel"},
			{Err: fmt.Errorf("%w: throttled", domain.ErrRateLimit)},
			{Content: "never delivered"},
		},
	}
	g := NewGenerator(&mockResolver{provider: provider, model: "m1"}, newTestLogger())

	events, err := g.Stream(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)

	got := collectEvents(t, events)
	require.Len(t, got, 2, "nothing may follow the terminal error event")
	assert.Equal(t, "Hel", got[0].Content)
	assert.Equal(t, domain.EventError, got[1].Type)
	assert.Equal(t, domain.CodeRateLimit, got[1].Code)
	assert.NotEmpty(t, got[1].Error)
}

func TestGeneratorResolveFailureIsSynchronous(t *testing.T) {
	g := NewGenerator(&mockResolver{
		err: domain.NewDomainError("Registry.Resolve", domain.ErrProviderNotFound, "gpt-99"),
	}, newTestLogger())

	_, err := g.Stream(context.Background(), domain.ChatRequest{Model: "gpt-99"})
	require.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestGeneratorConnectFailureIsSynchronous(t *testing.T) {
	provider := &mockProvider{err: fmt.Errorf("%w: refused", domain.ErrConnection)}
	g := NewGenerator(&mockResolver{provider: provider}, newTestLogger())

	_, err := g.Stream(context.Background(), domain.ChatRequest{})
	require.ErrorIs(t, err, domain.ErrConnection)
}

func TestGeneratorEstimatesTokensWhenUsageMissing(t *testing.T) {
	provider := &mockProvider{
		name: "mock",
		deltas: []domain.StreamDelta{
			{Content: "Hello world, this is a reply."},
			{Done: true}, // no usage reported
		},
	}
	g := NewGenerator(&mockResolver{provider: provider, model: "m1"}, newTestLogger())

	events, err := g.Stream(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Say hello"}},
	})
	require.NoError(t, err)

	got := collectEvents(t, events)
	terminal := got[len(got)-1]
	require.Equal(t, domain.EventComplete, terminal.Type)
	assert.Positive(t, terminal.TotalTokens, "complete event must always carry a token count")
}

func TestGeneratorAbortStopsEmitting(t *testing.T) {
	// An unbuffered feed that never terminates.
	deltas := make(chan domain.StreamDelta)
	provider := &blockedProvider{ch: deltas}
	g := NewGenerator(&mockResolver{provider: provider, model: "m1"}, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	events, err := g.Stream(ctx, domain.ChatRequest{})
	require.NoError(t, err)

	deltas <- domain.StreamDelta{Content: "Hel"}
	evt := <-events
	assert.Equal(t, "Hel", evt.Content)

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok, "no further events may be emitted after abort")
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after abort")
	}
}

type blockedProvider struct {
	ch chan domain.StreamDelta
}

func (b *blockedProvider) Chat(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
	return nil, fmt.Errorf("%w: not implemented", domain.ErrProvider)
}

func (b *blockedProvider) ChatStream(_ context.Context, _ domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	return b.ch, nil
}

func (b *blockedProvider) Name() string { return "blocked" }

func TestGeneratorSyncChat(t *testing.T) {
	provider := &mockProvider{
		name: "mock",
		chat: &domain.ChatResponse{
			Model:   "m1",
			Message: domain.Message{Role: domain.RoleAssistant, Content: "The answer is 4"},
			Usage:   domain.Usage{TotalTokens: 9},
		},
	}
	g := NewGenerator(&mockResolver{provider: provider, model: "m1"}, newTestLogger())

	resp, err := g.Chat(context.Background(), domain.ChatRequest{Model: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 4", resp.Message.Content)
}
