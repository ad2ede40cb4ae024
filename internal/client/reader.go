package client

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"chatrelay/internal/domain"
)

const maxFrameSize = 1024 * 1024 // 1MB per frame

var dataPrefix = []byte("data: ")

// frameReader pulls server-sent event payloads off a response body one
// frame at a time. Blank separator lines are skipped; any other line that
// does not carry a data prefix is a malformed frame, reported rather than
// silently dropped.
type frameReader struct {
	scanner *bufio.Scanner
}

func newFrameReader(r io.Reader) *frameReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &frameReader{scanner: scanner}
}

// Next returns the payload of the next data frame. io.EOF signals a clean
// end of stream; transport failures come back wrapped as connection errors.
func (f *frameReader) Next() ([]byte, error) {
	for f.scanner.Scan() {
		line := f.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if !bytes.HasPrefix(line, dataPrefix) {
			return nil, fmt.Errorf("%w: %q", domain.ErrParseFrame, truncateForLog(line))
		}
		payload := make([]byte, len(line)-len(dataPrefix))
		copy(payload, line[len(dataPrefix):])
		return payload, nil
	}

	if err := f.scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read stream: %v", domain.ErrConnection, err)
	}
	return nil, io.EOF
}

func truncateForLog(line []byte) string {
	const max = 120
	if len(line) > max {
		return string(line[:max]) + "..."
	}
	return string(line)
}
