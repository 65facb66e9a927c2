package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when the context ends before a line arrives.
var ErrInputCancelled = errors.New("input canceled")

// NonBlockingReader reads prompt answers without pinning the caller to a
// blocked stdin: a canceled context returns at once while the read itself
// finishes in the background.
type NonBlockingReader struct {
	buf *bufio.Reader
	mu  sync.Mutex // serializes background reads
}

// NewNonBlockingReader wraps r. It panics on a nil reader.
func NewNonBlockingReader(r io.Reader) *NonBlockingReader {
	if r == nil {
		panic("cli: nil reader")
	}
	return &NonBlockingReader{buf: bufio.NewReader(r)}
}

type readResult struct {
	err  error
	line string
}

// ReadLine returns the next line with surrounding space trimmed. A last line
// without a trailing newline still counts.
func (r *NonBlockingReader) ReadLine(ctx context.Context) (string, error) {
	done := make(chan readResult, 1)
	go func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		line, err := r.buf.ReadString('\n')
		done <- readResult{line: line, err: err}
	}()

	var res readResult
	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res = <-done:
	}

	if res.err != nil && (!errors.Is(res.err, io.EOF) || res.line == "") {
		return "", res.err
	}
	return strings.TrimSpace(res.line), nil
}
