package fanout

import (
	"sync"

	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
)

// Session is one connected client. Frames queue in a bounded buffer that the
// transport drains; a client that stops draining is closed rather than
// allowed to grow memory.
type Session struct {
	id   string
	hub  *Hub
	out  chan Frame
	done chan struct{}

	closeOnce sync.Once
	slow      bool

	// subscription id -> live query; guarded by hub.mu
	subs map[string]*liveQuery
}

func (s *Session) ID() string { return s.id }

// Out is the outbound queue. It is never closed; select on Done as well.
func (s *Session) Out() <-chan Frame { return s.out }

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Slow reports whether the session was closed for falling behind.
func (s *Session) Slow() bool {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.slow
}

// Send queues f without blocking. It returns false if the session is closed
// or its buffer is full, in which case the session is closed.
func (s *Session) Send(f Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- f:
		return true
	default:
		logger.Warn("session_buffer_full", "session", s.id, "buffer", cap(s.out))
		droppedSessions.Inc()
		s.hub.mu.Lock()
		s.slow = true
		s.hub.mu.Unlock()
		s.Close()
		return false
	}
}

// Close deregisters every subscription of the session. Safe to call more
// than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.hub.removeSession(s)
		close(s.done)
	})
}

// Subscriptions returns the number of active subscriptions.
func (s *Session) Subscriptions() int {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return len(s.subs)
}
