package debugger

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/google/go-dap"

	"github.com/ctagard/glint-ls/internal/rpc"
)

// conn carries DAP messages over one client connection. Reads happen on the
// session goroutine only; writes come from both the session and the engine
// and are serialized by mu.
type conn struct {
	rwc    io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
	seq    int
}

func newConn(rwc io.ReadWriteCloser) *conn {
	return &conn{
		rwc:    rwc,
		reader: bufio.NewReader(rwc),
		writer: bufio.NewWriter(rwc),
		seq:    1,
	}
}

// send stamps msg with the next sequence number and writes it
func (c *conn) send(msg dap.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case dap.ResponseMessage:
		m.GetResponse().Seq = c.seq
	case dap.EventMessage:
		m.GetEvent().Seq = c.seq
	}
	c.seq++

	if err := dap.WriteProtocolMessage(c.writer, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}
	return nil
}

// receive reads the body of the next frame. Decoding is left to the caller
// so that a malformed body can still be answered.
func (c *conn) receive() ([]byte, error) {
	return rpc.ReadMessage(c.reader)
}

func (c *conn) close() error {
	return c.rwc.Close()
}

func newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           event,
	}
}

func newResponse(requestSeq int, command string) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		Command:         command,
		RequestSeq:      requestSeq,
		Success:         true,
	}
}
