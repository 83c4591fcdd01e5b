package rpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ExitToken is a one-way shutdown flag shared between the main loop and the
// handlers allowed to end it
type ExitToken struct {
	set atomic.Bool
}

// NewExitToken creates an unset token
func NewExitToken() *ExitToken {
	return &ExitToken{}
}

// Set requests shutdown. It takes effect at the next message boundary.
func (t *ExitToken) Set() {
	t.set.Store(true)
}

// IsSet reports whether shutdown was requested
func (t *ExitToken) IsSet() bool {
	return t.set.Load()
}

// Transform rewrites a message body on its way in or out
type Transform func(body []byte) []byte

func identity(body []byte) []byte { return body }

// Server owns the streams and runs the read, dispatch, write loop
type Server struct {
	in         *bufio.Reader
	out        io.Writer
	writeMu    sync.Mutex
	dispatcher *Dispatcher

	mapRequest  Transform
	mapResponse Transform
	exit        *ExitToken

	log zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithRequestTransform sets the transform applied to each incoming body
func WithRequestTransform(t Transform) Option {
	return func(s *Server) { s.mapRequest = t }
}

// WithResponseTransform sets the transform applied to each outgoing response
func WithResponseTransform(t Transform) Option {
	return func(s *Server) { s.mapResponse = t }
}

// WithExitToken shares an existing exit token with the server
func WithExitToken(t *ExitToken) Option {
	return func(s *Server) { s.exit = t }
}

// WithLogger sets the server logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer creates a server reading from in and writing to out
func NewServer(in io.Reader, out io.Writer, d *Dispatcher, opts ...Option) *Server {
	br, ok := in.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(in)
	}

	bw, ok := out.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(out)
	}

	s := &Server{
		in:          br,
		out:         bw,
		dispatcher:  d,
		mapRequest:  identity,
		mapResponse: identity,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.exit == nil {
		s.exit = NewExitToken()
	}
	return s
}

// ExitToken returns the token that stops the loop
func (s *Server) ExitToken() *ExitToken {
	return s.exit
}

// Run processes messages until the exit token is set or the input ends.
// Transport failures are returned and end the loop.
func (s *Server) Run(ctx context.Context) error {
	for {
		if s.exit.IsSet() {
			s.log.Debug().Msg("exit requested, stopping")
			return nil
		}

		body, err := ReadMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Debug().Msg("input closed")
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		body = s.mapRequest(body)

		var resp []byte
		select {
		case resp = <-s.dispatcher.Dispatch(ctx, body):
		case <-ctx.Done():
			return ctx.Err()
		}

		if resp == nil {
			continue
		}

		if err := s.write(s.mapResponse(resp)); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}

// Notify sends a server-initiated notification to the client
func (s *Server) Notify(method string, params any) error {
	body, err := newNotificationMessage(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode %s notification: %w", method, err)
	}
	return s.write(body)
}

func (s *Server) write(body []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return WriteMessage(s.out, body)
}
