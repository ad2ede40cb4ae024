package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

// Every sentinel must map to exactly one code, and unmapped errors must
// collapse to UNKNOWN rather than escaping.
func TestErrorCodeOfExhaustive(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"timeout", ErrTimeout, CodeTimeout},
		{"rate limit", ErrRateLimit, CodeRateLimit},
		{"auth", ErrAuthInvalid, CodeAuthError},
		{"connection", ErrConnection, CodeConnectionError},
		{"provider", ErrProvider, CodeLLMError},
		{"invalid callback", ErrInvalidCallback, CodeInvalidCallback},
		{"callback panic", ErrCallbackPanic, CodeCallbackError},
		{"parse frame", ErrParseFrame, CodeParseError},
		{"unmapped", errors.New("something odd"), CodeUnknown},
		{"nil", nil, CodeUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorCodeOf(tc.err); got != tc.want {
				t.Errorf("ErrorCodeOf(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestErrorCodeOfWrapped(t *testing.T) {
	// Codes must survive fmt wrapping and DomainError wrapping.
	wrapped := fmt.Errorf("API error 429: %w", ErrRateLimit)
	if got := ErrorCodeOf(wrapped); got != CodeRateLimit {
		t.Errorf("wrapped: got %s, want %s", got, CodeRateLimit)
	}

	de := NewDomainError("OpenAIProvider.Chat", ErrAuthInvalid, "bad key")
	if got := ErrorCodeOf(de); got != CodeAuthError {
		t.Errorf("domain error: got %s, want %s", got, CodeAuthError)
	}

	double := fmt.Errorf("retry 2: %w", fmt.Errorf("attempt 1: %w", ErrTimeout))
	if got := ErrorCodeOf(double); got != CodeTimeout {
		t.Errorf("double wrapped: got %s, want %s", got, CodeTimeout)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	de := NewDomainError("Registry.Resolve", ErrProviderNotFound, "gpt-99")

	if !errors.Is(de, ErrProviderNotFound) {
		t.Error("errors.Is should match the wrapped sentinel")
	}
	if de.Error() != "Registry.Resolve: gpt-99: llm provider not found" {
		t.Errorf("unexpected message: %s", de.Error())
	}
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should be nil")
	}
	if err := WrapOp("op", ErrTimeout); !errors.Is(err, ErrTimeout) {
		t.Error("WrapOp should preserve the sentinel")
	}
}

func TestIsRetryableError(t *testing.T) {
	if !IsRetryableError(ErrRateLimit) || !IsRetryableError(ErrConnection) {
		t.Error("rate limit and connection errors are retryable")
	}
	if IsRetryableError(ErrAuthInvalid) || IsRetryableError(ErrTimeout) {
		t.Error("auth and timeout errors are not retryable")
	}
}

// The wire shape matters to every client: token frames carry only content,
// complete frames carry model and totalTokens, error frames carry error+code.
func TestStreamEventWireShape(t *testing.T) {
	token, _ := json.Marshal(TokenEvent("Hel"))
	if string(token) != `{"type":"token","content":"Hel"}` {
		t.Errorf("token frame = %s", token)
	}

	complete, _ := json.Marshal(CompleteEvent("m1", 2))
	if string(complete) != `{"type":"complete","model":"m1","totalTokens":2}` {
		t.Errorf("complete frame = %s", complete)
	}

	errEvt, _ := json.Marshal(ErrorEvent(fmt.Errorf("x: %w", ErrRateLimit)))
	var decoded map[string]any
	if err := json.Unmarshal(errEvt, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "error" || decoded["code"] != "RATE_LIMIT" {
		t.Errorf("error frame = %s", errEvt)
	}
	if decoded["error"] == "" {
		t.Error("error frame must carry a human-readable message")
	}
}

func TestStreamEventTerminal(t *testing.T) {
	if TokenEvent("x").Terminal() {
		t.Error("token events are not terminal")
	}
	if !CompleteEvent("m", 1).Terminal() || !ErrorEvent(ErrTimeout).Terminal() {
		t.Error("complete and error events are terminal")
	}
}
