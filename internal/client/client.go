package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chatrelay/internal/domain"
)

// DefaultInactivityTimeout is how long the client waits between frames
// before it declares the stream dead and synthesizes a timeout error.
const DefaultInactivityTimeout = 30 * time.Second

// Callbacks receive stream outcomes. OnToken fires once per token frame;
// exactly one of OnComplete or OnError closes out every stream, never
// both, never neither.
type Callbacks struct {
	OnToken    func(content string)
	OnComplete func(model string, totalTokens int)
	OnError    func(code domain.ErrorCode, message string)
}

func (cb Callbacks) validate() error {
	switch {
	case cb.OnToken == nil:
		return domain.NewDomainError("Client.Stream", domain.ErrInvalidCallback, "OnToken")
	case cb.OnComplete == nil:
		return domain.NewDomainError("Client.Stream", domain.ErrInvalidCallback, "OnComplete")
	case cb.OnError == nil:
		return domain.NewDomainError("Client.Stream", domain.ErrInvalidCallback, "OnError")
	}
	return nil
}

// ChatParams is the request body sent to the chat endpoint.
type ChatParams struct {
	Message string         `json:"message"`
	History []HistoryEntry `json:"history,omitempty"`
	Model   string         `json:"model,omitempty"`
}

// HistoryEntry is one prior conversation turn.
type HistoryEntry struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// Options configures a Client.
type Options struct {
	BaseURL           string
	HTTPClient        *http.Client
	InactivityTimeout time.Duration
	Logger            *slog.Logger
}

// Client issues streaming chat requests and turns the SSE byte stream back
// into callback invocations. One Stream call per user action; concurrent
// streams get independent handles.
type Client struct {
	baseURL    string
	httpClient *http.Client
	inactivity time.Duration
	logger     *slog.Logger
}

// New creates a stream client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// No overall timeout: streams live as long as tokens keep arriving.
		// The inactivity timer bounds dead streams instead.
		httpClient = &http.Client{}
	}
	inactivity := opts.InactivityTimeout
	if inactivity <= 0 {
		inactivity = DefaultInactivityTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    opts.BaseURL,
		httpClient: httpClient,
		inactivity: inactivity,
		logger:     logger,
	}
}

// Stream holds a single in-flight streaming request.
type Stream struct {
	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}
}

// Cancel aborts the underlying transport and releases the inactivity timer.
// Idempotent; safe to call after the stream has already closed.
func (s *Stream) Cancel() {
	s.cancelOnce.Do(s.cancel)
}

// Done is closed once the terminal callback has been delivered.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Stream issues the request and delivers all outcomes through cb. Callback
// validation failures are returned synchronously; they are the only way
// Stream fails without invoking OnError.
func (c *Client) Stream(ctx context.Context, params ChatParams, cb Callbacks) (*Stream, error) {
	if err := cb.validate(); err != nil {
		if cb.OnError != nil {
			cb.OnError(domain.CodeInvalidCallback, err.Error())
		}
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer s.Cancel()
		c.run(ctx, params, cb)
	}()

	return s, nil
}

func (c *Client) run(ctx context.Context, params ChatParams, cb Callbacks) {
	body, err := json.Marshal(params)
	if err != nil {
		c.fail(cb, domain.CodeUnknown, "encode request: "+err.Error())
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat", bytes.NewReader(body))
	if err != nil {
		c.fail(cb, domain.CodeUnknown, "build request: "+err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			c.fail(cb, domain.CodeUnknown, "stream cancelled")
			return
		}
		c.fail(cb, domain.CodeConnectionError, "connect: "+err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.failFromResponse(cb, resp)
		return
	}

	c.receive(ctx, resp.Body, cb)
}

// receive is the frame loop. The inactivity timer is armed on entry and
// reset on every frame; firing with no terminal event yet synthesizes a
// local timeout error and aborts the transport.
func (c *Client) receive(ctx context.Context, body io.Reader, cb Callbacks) {
	reader := newFrameReader(body)
	frames := make(chan frameResult)

	go func() {
		defer close(frames)
		for {
			payload, err := reader.Next()
			select {
			case frames <- frameResult{payload: payload, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	timer := time.NewTimer(c.inactivity)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.fail(cb, domain.CodeUnknown, "stream cancelled")
			return

		case <-timer.C:
			c.logger.Warn("stream inactivity timeout", "window", c.inactivity)
			c.fail(cb, domain.CodeTimeout, fmt.Sprintf("no data received within %s", c.inactivity))
			return

		case frame, ok := <-frames:
			if !ok {
				// Reader exited on cancellation; the sequence still closes
				// with one outcome.
				c.fail(cb, domain.CodeUnknown, "stream cancelled")
				return
			}
			if frame.err != nil {
				if frame.err == io.EOF {
					// Server closed without a terminal frame. The sequence
					// still has to end in exactly one outcome.
					c.fail(cb, domain.CodeConnectionError, "stream ended unexpectedly")
					return
				}
				c.fail(cb, domain.ErrorCodeOf(frame.err), frame.err.Error())
				return
			}

			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(c.inactivity)

			terminal, err := c.dispatch(frame.payload, cb)
			if err != nil {
				c.fail(cb, domain.ErrorCodeOf(err), err.Error())
				return
			}
			if terminal {
				return
			}
		}
	}
}

type frameResult struct {
	payload []byte
	err     error
}

// dispatch parses one frame and invokes the matching callback. It returns
// whether the frame was terminal; a parse failure or callback panic comes
// back as an error for the caller to surface.
func (c *Client) dispatch(payload []byte, cb Callbacks) (terminal bool, err error) {
	var evt domain.StreamEvent
	if jsonErr := json.Unmarshal(payload, &evt); jsonErr != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrParseFrame, jsonErr)
	}

	switch evt.Type {
	case domain.EventToken:
		if cbErr := invoke(func() { cb.OnToken(evt.Content) }); cbErr != nil {
			return false, cbErr
		}
		return false, nil

	case domain.EventComplete:
		if cbErr := invoke(func() { cb.OnComplete(evt.Model, evt.TotalTokens) }); cbErr != nil {
			return false, cbErr
		}
		return true, nil

	case domain.EventError:
		code := evt.Code
		if code == "" {
			code = domain.CodeUnknown
		}
		// OnError panics have nowhere left to go; recover and log so a UI
		// bug cannot kill the process.
		if cbErr := invoke(func() { cb.OnError(code, evt.Error) }); cbErr != nil {
			c.logger.Error("error callback panicked", "error", cbErr)
		}
		return true, nil

	default:
		return false, fmt.Errorf("%w: unknown event type %q", domain.ErrParseFrame, evt.Type)
	}
}

// fail delivers the terminal error outcome, absorbing OnError panics.
func (c *Client) fail(cb Callbacks, code domain.ErrorCode, message string) {
	if err := invoke(func() { cb.OnError(code, message) }); err != nil {
		c.logger.Error("error callback panicked", "error", err)
	}
}

// failFromResponse turns a non-200 response into the error outcome, reusing
// the server's own code when the body carries one.
func (c *Client) failFromResponse(cb Callbacks, resp *http.Response) {
	var serverErr struct {
		Error string           `json:"error"`
		Code  domain.ErrorCode `json:"code"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(data, &serverErr) == nil && serverErr.Error != "" {
		code := serverErr.Code
		if code == "" {
			code = domain.CodeUnknown
		}
		c.fail(cb, code, serverErr.Error)
		return
	}
	c.fail(cb, domain.CodeUnknown, fmt.Sprintf("unexpected status %d", resp.StatusCode))
}

// invoke runs a callback, converting a panic into an error.
func invoke(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", domain.ErrCallbackPanic, r)
		}
	}()
	fn()
	return nil
}
