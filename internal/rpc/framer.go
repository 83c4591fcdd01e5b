// Package rpc implements the JSON-RPC transport shared by the glint language
// server and the debug adapter.
//
// The package provides:
//   - Framing: Content-Length delimited messages over any byte stream
//   - Registry: method name to Command or Notification handler
//   - Dispatcher: decoding, parameter validation and error mapping
//   - Server: the read, dispatch, write main loop with an exit token
//
// The framing is the one described at:
// https://microsoft.github.io/language-server-protocol/specifications/base/0.9/specification/
package rpc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

const headerContentLength = "Content-Length:"

var (
	// ErrUnexpectedHeader is returned when the first header line is not a Content-Length header
	ErrUnexpectedHeader = errors.New("unexpected header")

	// ErrInvalidEncoding is returned when a message body is not valid UTF-8
	ErrInvalidEncoding = errors.New("message body is not valid UTF-8")
)

// HeaderError describes a header line that could not be parsed
type HeaderError struct {
	Line string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("unexpected header: %q", e.Line)
}

// Is reports whether target is ErrUnexpectedHeader
func (e *HeaderError) Is(target error) bool {
	return target == ErrUnexpectedHeader
}

// ReadMessage reads one framed message from r.
//
// It returns io.EOF only when the stream ends before any header byte was read,
// which signals that no more messages will arrive. A stream that ends inside a
// header or body yields io.ErrUnexpectedEOF.
func ReadMessage(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if line == "" {
				return nil, io.EOF
			}
			return nil, io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	length, err := parseContentLength(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return nil, err
	}

	// Remaining headers (Content-Type and friends) are ignored.
	for {
		line, err = r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
		if strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	if !utf8.Valid(body) {
		return nil, ErrInvalidEncoding
	}

	return body, nil
}

func parseContentLength(line string) (int, error) {
	if !strings.HasPrefix(line, headerContentLength) {
		return 0, &HeaderError{Line: line}
	}
	digits := strings.TrimLeft(line[len(headerContentLength):], " ")
	if digits == "" {
		return 0, &HeaderError{Line: line}
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, &HeaderError{Line: line}
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, &HeaderError{Line: line}
	}
	return n, nil
}

type flusher interface {
	Flush() error
}

// WriteMessage frames body and writes it to w, flushing w when it is buffered
func WriteMessage(w io.Writer, body []byte) error {
	if _, err := fmt.Fprintf(w, "%s %d\r\n\r\n", headerContentLength, len(body)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write body: %w", err)
	}
	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush message: %w", err)
		}
	}
	return nil
}
