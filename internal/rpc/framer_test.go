package rpc

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(body string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

func TestReadMessage_RoundTrip(t *testing.T) {
	bodies := []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","id":"abc","result":null}`,
		`{"text":"let héllo = \"wörld\" // ✓"}`,
		`{}`,
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	for _, body := range bodies {
		require.NoError(t, WriteMessage(w, []byte(body)))
	}

	r := bufio.NewReader(&buf)
	for _, want := range bodies {
		got, err := ReadMessage(r)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	_, err := ReadMessage(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadMessage_IgnoresExtraHeaders(t *testing.T) {
	input := "Content-Length: 2\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n{}"
	got, err := ReadMessage(bufio.NewReader(strings.NewReader(input)))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))
}

func TestReadMessage_CleanEOF(t *testing.T) {
	_, err := ReadMessage(bufio.NewReader(strings.NewReader("")))
	assert.Equal(t, io.EOF, err)
}

func TestReadMessage_UnexpectedHeader(t *testing.T) {
	tests := []string{
		"Content-Type: text/plain\r\n\r\n{}",
		"content-length: 2\r\n\r\n{}",
		"Content-Length: abc\r\n\r\n{}",
		"Content-Length: -2\r\n\r\n{}",
		"Content-Length:\r\n\r\n{}",
		"{}\r\n",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(input))
			_, err := ReadMessage(r)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnexpectedHeader)

			// Only the header line was consumed.
			rest, _ := io.ReadAll(r)
			firstLine := input[:strings.Index(input, "\n")+1]
			assert.Equal(t, input[len(firstLine):], string(rest))
		})
	}
}

func TestReadMessage_Truncated(t *testing.T) {
	tests := map[string]string{
		"partial header": "Content-Len",
		"missing blank":  "Content-Length: 2\r\n",
		"short body":     "Content-Length: 10\r\n\r\n{}",
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadMessage(bufio.NewReader(strings.NewReader(input)))
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		})
	}
}

func TestReadMessage_InvalidUTF8(t *testing.T) {
	body := string([]byte{'"', 0xff, 0xfe, '"'})
	_, err := ReadMessage(bufio.NewReader(strings.NewReader(frame(body))))
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestWriteMessage_Flushes(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriterSize(&buf, 4096)

	require.NoError(t, WriteMessage(w, []byte(`{"a":1}`)))
	assert.Equal(t, 0, w.Buffered())
	assert.Equal(t, frame(`{"a":1}`), buf.String())
}

func TestWriteMessage_ByteLength(t *testing.T) {
	var buf bytes.Buffer
	body := "ünïcödé"
	require.NoError(t, WriteMessage(&buf, []byte(body)))
	assert.True(t, strings.HasPrefix(buf.String(), fmt.Sprintf("Content-Length: %d\r\n", len([]byte(body)))))
}
