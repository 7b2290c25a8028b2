package server

import (
	"sync"

	"github.com/liqinliqin/streameye/internal/logger"
)

// registry tracks live client sessions. The acceptor inserts each session
// and sessions remove themselves on exit; shutdown stops every session
// still present.
type registry struct {
	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

func newRegistry() *registry {
	return &registry{sessions: make(map[*session]struct{})}
}

// add registers a session. It reports false once the registry is closed, so
// a connection that races with shutdown is rejected rather than leaked.
func (r *registry) add(s *session) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	r.sessions[s] = struct{}{}
	n := len(r.sessions)
	r.mu.Unlock()

	logger.Debug("Server", "current clients: %d", n)
	return true
}

func (r *registry) remove(s *session) {
	r.mu.Lock()
	delete(r.sessions, s)
	n := len(r.sessions)
	r.mu.Unlock()

	logger.Debug("Server", "current clients: %d", n)
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// stopAll clears every session's running flag and closes its connection,
// unblocking sessions parked in a socket read or write.
func (r *registry) stopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for s := range r.sessions {
		s.stop()
	}
}
