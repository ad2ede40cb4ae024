package client

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/domain"
)

// memStore records saved messages for assertions.
type memStore struct {
	saved []domain.StreamingMessage
}

func (s *memStore) SaveMessage(_ context.Context, msg domain.StreamingMessage) error {
	s.saved = append(s.saved, msg)
	return nil
}

func (s *memStore) History(_ context.Context, _ string, _ int) ([]domain.Message, error) {
	return nil, nil
}

func (s *memStore) Close() error { return nil }

func TestTrackerCompleteFlow(t *testing.T) {
	store := &memStore{}
	tracker := NewTracker(store, slog.Default())

	require.NoError(t, tracker.Start("msg-1", "conv-1", "m1"))
	assert.True(t, tracker.Active())

	require.NoError(t, tracker.AppendToken("The"))
	require.NoError(t, tracker.AppendToken(" answer"))
	require.NoError(t, tracker.AppendToken(" is"))
	require.NoError(t, tracker.AppendToken(" 4"))

	msg, err := tracker.Complete(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, "The answer is 4", msg.Text, "text is the in-order token concatenation")
	assert.False(t, msg.Incomplete)
	assert.False(t, msg.Streaming)
	assert.Empty(t, msg.Error)
	assert.False(t, tracker.Active(), "slot cleared after finalize")

	require.Len(t, store.saved, 1)
	assert.Equal(t, msg, store.saved[0])
}

func TestTrackerInterruptKeepsPartialText(t *testing.T) {
	store := &memStore{}
	tracker := NewTracker(store, slog.Default())

	require.NoError(t, tracker.Start("msg-1", "conv-1", "m1"))
	require.NoError(t, tracker.AppendToken("Hel"))

	msg, err := tracker.Interrupt(context.Background(), "rate limit exceeded")
	require.NoError(t, err)

	assert.Equal(t, "Hel", msg.Text, "partial content is never discarded")
	assert.True(t, msg.Incomplete)
	assert.Equal(t, "rate limit exceeded", msg.Error)

	require.Len(t, store.saved, 1)
	assert.True(t, store.saved[0].Incomplete)
}

func TestTrackerSingleFlight(t *testing.T) {
	tracker := NewTracker(nil, slog.Default())

	require.NoError(t, tracker.Start("msg-1", "conv-1", "m1"))
	err := tracker.Start("msg-2", "conv-1", "m1")
	require.ErrorIs(t, err, domain.ErrStreamActive)

	// The original message is untouched.
	snap, ok := tracker.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "msg-1", snap.ID)
}

func TestTrackerNoActiveStream(t *testing.T) {
	tracker := NewTracker(nil, slog.Default())

	assert.Error(t, tracker.AppendToken("x"))
	_, err := tracker.Complete(context.Background(), "m1")
	assert.Error(t, err)
	_, err = tracker.Interrupt(context.Background(), "boom")
	assert.Error(t, err)
}

func TestTrackerRestartAfterFinalize(t *testing.T) {
	tracker := NewTracker(nil, slog.Default())

	require.NoError(t, tracker.Start("msg-1", "conv-1", "m1"))
	_, err := tracker.Interrupt(context.Background(), "cancelled")
	require.NoError(t, err)

	// Terminal states free the slot for a fresh stream.
	require.NoError(t, tracker.Start("msg-2", "conv-1", "m1"))
	snap, ok := tracker.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "msg-2", snap.ID)
	assert.Empty(t, snap.Text)
}
