package debugger

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	glerrors "github.com/ctagard/glint-ls/internal/errors"
	"github.com/ctagard/glint-ls/pkg/types"
)

// Server accepts debug clients and runs one Session per connection
type Server struct {
	factory  EngineFactory
	sessions *SessionManager
	log      zerolog.Logger

	maxSessions      int
	sessionTimeout   time.Duration
	exitAfterSession bool
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithMaxSessions limits the number of concurrent sessions
func WithMaxSessions(n int) ServerOption {
	return func(s *Server) { s.maxSessions = n }
}

// WithSessionTimeout ends sessions older than d
func WithSessionTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.sessionTimeout = d }
}

// WithExitAfterSession makes Serve return once the first session ends
func WithExitAfterSession(exit bool) ServerOption {
	return func(s *Server) { s.exitAfterSession = exit }
}

// WithServerLogger sets the logger
func WithServerLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// NewServer creates a debug server whose sessions get engines from factory
func NewServer(factory EngineFactory, opts ...ServerOption) *Server {
	s := &Server{
		factory:     factory,
		log:         zerolog.Nop(),
		maxSessions: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = NewSessionManager(s.maxSessions, s.sessionTimeout, s.log)
	return s
}

// Serve accepts connections on ln until ctx is cancelled or the listener
// fails. Active sessions are ended before it returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("debug adapter listening")

	var wg sync.WaitGroup
	defer func() {
		s.sessions.Close()
		wg.Wait()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.log.Info().Str("remote", c.RemoteAddr().String()).Msg("accepted connection")

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.ServeConn(ctx, c); err != nil {
				s.log.Warn().Err(err).Msg("session ended with error")
			}
			if s.exitAfterSession {
				cancel()
			}
		}()
	}
}

// ServeConn runs a single session over rwc
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session := NewSession(rwc, s.factory, s.log)
	id, err := s.sessions.Add(session, cancel)
	if err != nil {
		var de *glerrors.DebugError
		if errors.As(err, &de) {
			s.log.Warn().Str("code", string(de.Code)).Msg(de.Message)
		}
		_ = rwc.Close()
		return err
	}
	defer s.sessions.Remove(id)

	session.log.Info().Int("active", s.sessions.Count()).Msg("session started")
	err = session.Serve(ctx)
	session.log.Info().Msg("session ended")
	return err
}

// Sessions lists the active sessions
func (s *Server) Sessions() []types.SessionInfo {
	return s.sessions.List()
}

// Session describes one active session
func (s *Server) Session(id string) (types.SessionInfo, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return types.SessionInfo{}, err
	}
	return session.Info(), nil
}

// TerminateSession ends the session with the given id. Its program is
// interrupted and its connection closed.
func (s *Server) TerminateSession(id string) error {
	if err := s.sessions.Terminate(id); err != nil {
		return err
	}
	s.log.Info().Str("session", id).Msg("session terminated by request")
	return nil
}

// Serve accepts debug clients on ln with default settings
func Serve(ctx context.Context, ln net.Listener, factory EngineFactory) error {
	return NewServer(factory).Serve(ctx, ln)
}

// StdioConn joins a reader and a writer, typically os.Stdin and os.Stdout,
// into the connection of a single session
type StdioConn struct {
	io.Reader
	io.Writer
}

// Close is a no-op; the process owns its standard streams
func (StdioConn) Close() error {
	return nil
}
