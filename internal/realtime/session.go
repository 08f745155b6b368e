package realtime

import (
	"sync"

	"github.com/google/uuid"

	"messenger/internal/domain/user"
)

type SessionState string

const (
	StateConnecting    SessionState = "CONNECTING"
	StateAuthenticated SessionState = "AUTHENTICATED"
	StateActive        SessionState = "ACTIVE"
	StateClosed        SessionState = "CLOSED"
)

// outBuffer bounds the per-session outbound queue. A session that cannot
// keep up drops events rather than blocking the broadcaster.
const outBuffer = 64

// Session is the server-side state of one live connection. The transport
// drains Out() with a single writer; everything else talks to the session
// through Send.
type Session struct {
	ID ConnectionID

	mu     sync.Mutex
	state  SessionState
	userID user.ID
	out    chan Event
}

func newSession() *Session {
	return &Session{
		ID:    ConnectionID(uuid.NewString()),
		state: StateConnecting,
		out:   make(chan Event, outBuffer),
	}
}

// Send queues an event without blocking. It reports false when the
// session is closed or its buffer is full.
func (s *Session) Send(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	select {
	case s.out <- ev:
		return true
	default:
		return false
	}
}

// Out is the channel the transport's write pump drains.
func (s *Session) Out() <-chan Event {
	return s.out
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) UserID() user.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// transition moves the state machine forward, rejecting moves from a
// closed session. It reports whether the transition applied.
func (s *Session) transition(from, to SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Session) bind(userID user.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

// close marks the session closed and releases the out channel. Safe to
// call more than once.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	close(s.out)
}

var _ Sender = (*Session)(nil)
