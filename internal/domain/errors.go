package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. Provider adapters map every upstream
// failure onto exactly one of these before it crosses the adapter boundary.
var (
	ErrTimeout     = fmt.Errorf("operation timed out")
	ErrRateLimit   = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid = fmt.Errorf("authentication failed")
	ErrConnection  = fmt.Errorf("connection failed")
	ErrProvider    = fmt.Errorf("provider error")

	// Client-local sentinels. These never originate upstream but travel the
	// same error path so the UI sees a single consistent outcome set.
	ErrInvalidCallback = fmt.Errorf("required callback not set")
	ErrCallbackPanic   = fmt.Errorf("callback panicked")
	ErrParseFrame      = fmt.Errorf("malformed stream frame")

	// Request-time errors. Rejected before a stream is opened, so they carry
	// no wire ErrorCode.
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrStreamActive     = fmt.Errorf("a stream is already in flight")
	ErrInvalidInput     = fmt.Errorf("invalid input")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Resolve")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrConnection)
}

// ErrorCode is the machine-parseable error category delivered on the wire
// in error stream events.
type ErrorCode string

// Every sentinel that can terminate a stream maps to exactly one code.
const (
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeAuthError       ErrorCode = "AUTH_ERROR"
	CodeConnectionError ErrorCode = "CONNECTION_ERROR"
	CodeLLMError        ErrorCode = "LLM_ERROR"
	CodeUnknown         ErrorCode = "UNKNOWN"

	// Client-local codes.
	CodeInvalidCallback ErrorCode = "INVALID_CALLBACK"
	CodeCallbackError   ErrorCode = "CALLBACK_ERROR"
	CodeParseError      ErrorCode = "PARSE_ERROR"
)

// errorCodeMap maps sentinel errors to their wire codes.
var errorCodeMap = map[error]ErrorCode{
	ErrTimeout:         CodeTimeout,
	ErrRateLimit:       CodeRateLimit,
	ErrAuthInvalid:     CodeAuthError,
	ErrConnection:      CodeConnectionError,
	ErrProvider:        CodeLLMError,
	ErrInvalidCallback: CodeInvalidCallback,
	ErrCallbackPanic:   CodeCallbackError,
	ErrParseFrame:      CodeParseError,
}

// ErrorCodeOf returns the wire error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found; an unmapped
// error never escapes as anything else.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return ErrorCodeOf(e.Err)
}
