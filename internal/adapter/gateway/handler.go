package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatrelay/internal/domain"
	"chatrelay/internal/usecase"
)

// historyEntry mirrors how the conversation store serializes prior turns.
type historyEntry struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type chatRequest struct {
	Message string         `json:"message"`
	History []historyEntry `json:"history,omitempty"`
	Model   string         `json:"model,omitempty"`
}

// syncResponse is the non-streaming fallback body. Message carries the full
// concatenated text on success; Error and Code are set on failure.
type syncResponse struct {
	Status    string           `json:"status"`
	Message   string           `json:"message,omitempty"`
	Error     string           `json:"error,omitempty"`
	Code      domain.ErrorCode `json:"code,omitempty"`
	Model     string           `json:"model,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ChatHandler serves chat completions in streaming and synchronous modes.
type ChatHandler struct {
	generator *usecase.Generator
	logger    *slog.Logger
}

// NewChatHandler creates the chat endpoint handler.
func NewChatHandler(generator *usecase.Generator, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{generator: generator, logger: logger}
}

// HandleChat is POST /api/v1/chat. The Accept header selects the mode:
// text/event-stream streams SSE frames; anything else gets the synchronous
// fallback with the same content collapsed into one JSON object.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	// Limit request body to 1MB to prevent DoS
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := "invalid JSON: " + err.Error()
		if err.Error() == "http: request body too large" {
			msg = "request body too large (max 1MB)"
		}
		writeJSONError(w, http.StatusBadRequest, msg, "")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required", "")
		return
	}

	chatReq := toChatRequest(req)

	events, err := h.generator.Stream(r.Context(), chatReq)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrProviderNotFound) {
			status = http.StatusBadRequest
		}
		h.logger.Warn("chat request rejected", "model", req.Model, "error", err)
		writeJSONError(w, status, err.Error(), domain.ErrorCodeOf(err))
		return
	}

	if wantsStream(r) {
		streamSSE(w, r, events, h.logger)
		return
	}
	h.respondSync(w, r, events)
}

// respondSync drains the full stream server-side and collapses it into one
// JSON response. Token contents concatenate to exactly what streaming mode
// would have delivered piece by piece.
func (h *ChatHandler) respondSync(w http.ResponseWriter, r *http.Request, events <-chan domain.StreamEvent) {
	var text strings.Builder
	var terminal domain.StreamEvent

	for {
		select {
		case <-r.Context().Done():
			// Client left mid-drain; the generator sees the same context and
			// stops pulling upstream. Nothing left to write.
			return
		case evt, ok := <-events:
			if !ok {
				h.writeSyncTerminal(w, text.String(), terminal)
				return
			}
			switch evt.Type {
			case domain.EventToken:
				text.WriteString(evt.Content)
			case domain.EventComplete, domain.EventError:
				terminal = evt
			}
		}
	}
}

func (h *ChatHandler) writeSyncTerminal(w http.ResponseWriter, text string, terminal domain.StreamEvent) {
	w.Header().Set("Content-Type", "application/json")

	resp := syncResponse{Timestamp: time.Now()}
	switch terminal.Type {
	case domain.EventComplete:
		resp.Status = "success"
		resp.Message = text
		resp.Model = terminal.Model
		w.WriteHeader(http.StatusOK)
	case domain.EventError:
		resp.Status = "error"
		resp.Error = terminal.Error
		resp.Code = terminal.Code
		w.WriteHeader(http.StatusBadGateway)
	default:
		resp.Status = "error"
		resp.Error = "stream ended without result"
		resp.Code = domain.CodeUnknown
		w.WriteHeader(http.StatusBadGateway)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("write sync response failed", "error", err)
	}
}

// HandleHealth is GET /api/v1/health.
func (h *ChatHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// wantsStream reports whether the caller asked for SSE. Absence of the
// signal selects the synchronous fallback.
func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func toChatRequest(req chatRequest) domain.ChatRequest {
	messages := make([]domain.Message, 0, len(req.History)+1)
	for _, h := range req.History {
		role := domain.RoleUser
		if h.Sender == "assistant" || h.Sender == "bot" {
			role = domain.RoleAssistant
		}
		messages = append(messages, domain.Message{Role: role, Content: h.Text})
	}
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: req.Message})

	return domain.ChatRequest{
		Model:    req.Model,
		Messages: messages,
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string, code domain.ErrorCode) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(syncResponse{
		Status:    "error",
		Error:     msg,
		Code:      code,
		Timestamp: time.Now(),
	})
}
