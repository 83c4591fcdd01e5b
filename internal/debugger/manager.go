package debugger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	glerrors "github.com/ctagard/glint-ls/internal/errors"
	"github.com/ctagard/glint-ls/pkg/types"
)

// SessionManager tracks the sessions of a debug server
type SessionManager struct {
	sessions map[string]*managedSession
	mu       sync.RWMutex

	maxSessions    int
	sessionTimeout time.Duration
	log            zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type managedSession struct {
	session *Session
	cancel  context.CancelFunc
}

// NewSessionManager creates a new session manager. A zero sessionTimeout
// disables expiry.
func NewSessionManager(maxSessions int, sessionTimeout time.Duration, log zerolog.Logger) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	sm := &SessionManager{
		sessions:       make(map[string]*managedSession),
		maxSessions:    maxSessions,
		sessionTimeout: sessionTimeout,
		log:            log,
		ctx:            ctx,
		cancel:         cancel,
	}

	if sessionTimeout > 0 {
		go sm.cleanupLoop(cleanupInterval(sessionTimeout))
	}

	return sm
}

func cleanupInterval(timeout time.Duration) time.Duration {
	if timeout < time.Minute {
		return timeout / 2
	}
	return time.Minute
}

// cleanupLoop periodically ends expired sessions
func (sm *SessionManager) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C:
			sm.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions ends sessions that have exceeded the timeout
func (sm *SessionManager) cleanupExpiredSessions() {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	now := time.Now()
	for id, ms := range sm.sessions {
		if now.Sub(ms.session.createdAt) > sm.sessionTimeout {
			sm.log.Info().Str("session", id).Msg("session expired")
			ms.cancel()
		}
	}
}

// Add registers s under a fresh id. cancel must end s.Serve.
func (sm *SessionManager) Add(s *Session, cancel context.CancelFunc) (string, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.maxSessions {
		return "", glerrors.SessionLimitReached(sm.maxSessions)
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
	s.log = s.log.With().Str("session", id).Logger()

	sm.sessions[id] = &managedSession{session: s, cancel: cancel}
	return id, nil
}

// Remove forgets a session once it has finished
func (sm *SessionManager) Remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// Get retrieves a session by ID
func (sm *SessionManager) Get(id string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	ms, ok := sm.sessions[id]
	if !ok {
		return nil, glerrors.SessionNotFound(id)
	}
	return ms.session, nil
}

// Terminate ends a session; Serve returns and the connection closes
func (sm *SessionManager) Terminate(id string) error {
	sm.mu.RLock()
	ms, ok := sm.sessions[id]
	sm.mu.RUnlock()
	if !ok {
		return glerrors.SessionNotFound(id)
	}
	ms.cancel()
	return nil
}

// List returns info on all active sessions, oldest first
func (sm *SessionManager) List() []types.SessionInfo {
	sm.mu.RLock()
	infos := make([]types.SessionInfo, 0, len(sm.sessions))
	for _, ms := range sm.sessions {
		infos = append(infos, ms.session.Info())
	}
	sm.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Count returns the number of active sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Close stops the cleanup loop and ends every session
func (sm *SessionManager) Close() {
	sm.cancel()

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for _, ms := range sm.sessions {
		ms.cancel()
	}
}
