package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"chatrelay/internal/domain"
)

func parseJSONContent(data []byte) (*domain.StreamDelta, error) {
	var payload struct {
		Content string `json:"content"`
		Done    bool   `json:"done"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &domain.StreamDelta{Content: payload.Content, Done: payload.Done}, nil
}

func TestParseSSEStream(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		"data: {\"content\":\"Hel\"}\n\n" +
			": a comment line\n" +
			"event: something\n" +
			"data: {\"content\":\"lo\"}\n\n" +
			"data: [DONE]\n\n",
	))

	ch := parseSSEStream(context.Background(), body, parseJSONContent)

	var content string
	done := false
	for d := range ch {
		content += d.Content
		if d.Done {
			done = true
		}
	}

	if content != "Hello" {
		t.Errorf("content = %q, want %q", content, "Hello")
	}
	if !done {
		t.Error("expected done delta from [DONE] marker")
	}
}

func TestParseSSEStreamSkipsMalformedLines(t *testing.T) {
	body := io.NopCloser(strings.NewReader(
		"data: not json at all\n\n" +
			"data: {\"content\":\"ok\",\"done\":true}\n\n",
	))

	ch := parseSSEStream(context.Background(), body, parseJSONContent)

	var content string
	for d := range ch {
		content += d.Content
	}
	if content != "ok" {
		t.Errorf("content = %q, want malformed line skipped", content)
	}
}

// errAfterReader yields some data then fails, simulating a dropped
// connection mid-stream.
type errAfterReader struct {
	data io.Reader
	err  error
	done bool
}

func (r *errAfterReader) Read(p []byte) (int, error) {
	if !r.done {
		n, err := r.data.Read(p)
		if err == io.EOF {
			r.done = true
			return n, nil
		}
		return n, err
	}
	return 0, r.err
}

func (r *errAfterReader) Close() error { return nil }

func TestParseSSEStreamMidStreamFailure(t *testing.T) {
	body := &errAfterReader{
		data: strings.NewReader("data: {\"content\":\"Hel\"}\n\n"),
		err:  fmt.Errorf("connection reset"),
	}

	ch := parseSSEStream(context.Background(), body, parseJSONContent)

	var content string
	var streamErr error
	for d := range ch {
		content += d.Content
		if d.Err != nil {
			streamErr = d.Err
		}
	}

	if content != "Hel" {
		t.Errorf("partial content = %q, want preserved", content)
	}
	if !errors.Is(streamErr, domain.ErrConnection) {
		t.Errorf("stream error = %v, want connection error", streamErr)
	}
}

func TestParseSSEStreamCleanEOF(t *testing.T) {
	// Body ends without [DONE]; the stream must still finish with a done
	// delta so consumers do not hang on an unterminated sequence.
	body := io.NopCloser(strings.NewReader("data: {\"content\":\"x\"}\n\n"))

	ch := parseSSEStream(context.Background(), body, parseJSONContent)

	done := false
	for d := range ch {
		if d.Done {
			done = true
		}
	}
	if !done {
		t.Error("expected synthesized done delta on clean EOF")
	}
}

func TestParseSSEStreamCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pr, pw := io.Pipe()
	defer pw.Close()

	ch := parseSSEStream(ctx, pr, parseJSONContent)

	go pw.Write([]byte("data: {\"content\":\"x\"}\n\n"))

	for range ch {
	}
	// Reaching here means the channel closed after cancellation instead of
	// blocking forever.
}
