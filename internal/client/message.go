package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatrelay/internal/domain"
)

// Tracker is the in-flight message state machine:
// Pending → Streaming → {Complete | Interrupted}. It holds a single slot;
// starting a new stream while one is active is rejected, matching the
// single-flight assumption of the transport.
type Tracker struct {
	mu      sync.Mutex
	current *domain.StreamingMessage
	store   domain.MessageStore
	logger  *slog.Logger
}

// NewTracker creates a tracker that hands finalized messages to store.
// A nil store is allowed; finalized messages are then discarded after the
// state transition.
func NewTracker(store domain.MessageStore, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, logger: logger}
}

// Start occupies the in-flight slot with a fresh streaming message.
func (t *Tracker) Start(id, conversationID, model string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		return domain.NewDomainError("Tracker.Start", domain.ErrStreamActive, t.current.ID)
	}

	t.current = &domain.StreamingMessage{
		ID:             id,
		ConversationID: conversationID,
		Sender:         domain.RoleAssistant,
		Streaming:      true,
		Model:          model,
		Timestamp:      time.Now(),
	}
	return nil
}

// AppendToken grows the in-flight text. Append-only: content is never
// rewritten or truncated mid-stream.
func (t *Tracker) AppendToken(content string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return domain.NewDomainError("Tracker.AppendToken", domain.ErrInvalidInput, "no active stream")
	}
	t.current.Text += content
	return nil
}

// Complete finalizes the in-flight message as successful, persists it and
// clears the slot.
func (t *Tracker) Complete(ctx context.Context, model string) (domain.StreamingMessage, error) {
	return t.finalize(ctx, func(msg *domain.StreamingMessage) {
		msg.Incomplete = false
		if model != "" {
			msg.Model = model
		}
	})
}

// Interrupt finalizes the in-flight message as interrupted, keeping whatever
// partial text accumulated. Partial content is never discarded.
func (t *Tracker) Interrupt(ctx context.Context, errMsg string) (domain.StreamingMessage, error) {
	return t.finalize(ctx, func(msg *domain.StreamingMessage) {
		msg.Incomplete = true
		msg.Error = errMsg
	})
}

func (t *Tracker) finalize(ctx context.Context, mutate func(*domain.StreamingMessage)) (domain.StreamingMessage, error) {
	t.mu.Lock()
	if t.current == nil {
		t.mu.Unlock()
		return domain.StreamingMessage{}, domain.NewDomainError("Tracker.finalize", domain.ErrInvalidInput, "no active stream")
	}

	msg := *t.current
	msg.Streaming = false
	mutate(&msg)
	t.current = nil
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.SaveMessage(ctx, msg); err != nil {
			// The state transition already happened; persistence failure is
			// reported but does not resurrect the in-flight slot.
			t.logger.Error("save message failed", "id", msg.ID, "error", err)
			return msg, domain.WrapOp("Tracker.finalize", err)
		}
	}
	return msg, nil
}

// Active reports whether a stream currently occupies the slot.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil
}

// Snapshot returns a copy of the in-flight message, if any.
func (t *Tracker) Snapshot() (domain.StreamingMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return domain.StreamingMessage{}, false
	}
	return *t.current, true
}
