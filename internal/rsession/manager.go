package rsession

import "sync"

// Manager tracks sessions by remote instanceId. The server's Dispatcher
// uses it to decide how to answer a handshake: an instanceId whose
// registered session has not torn down is treated as that session
// resuming, while any other instanceId gets a new session that replaces
// the table entry. Used only by the server entrypoint; a client has at
// most one remote peer and has no need for this bookkeeping.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Adopt registers a freshly handshaken session under its remote
// instanceId. If a session is already registered for that instanceId and
// has not yet torn down, Adopt reports it so the caller can decide
// between resumption (Reattach) and replacement (Close the old one).
func (m *Manager) Adopt(s *Session) (existing *Session, hadExisting bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := s.RemoteInstanceID()
	prev, ok := m.sessions[id]
	m.sessions[id] = s
	if !ok {
		return nil, false
	}
	select {
	case <-prev.Done():
		return nil, false
	default:
		return prev, true
	}
}

// Forget removes a session from the table once it has torn down for
// good (its disconnect grace window elapsed with no Reattach).
func (m *Manager) Forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.RemoteInstanceID()]; ok && cur == s {
		delete(m.sessions, s.RemoteInstanceID())
	}
}

// Get returns the live session registered for instanceId, if any.
func (m *Manager) Get(instanceID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[instanceID]
	return s, ok
}

// Each snapshots and invokes fn for every currently-tracked session, used
// for graceful shutdown (spec's supplemented "drain in-flight handlers"
// feature).
func (m *Manager) Each(fn func(*Session)) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		fn(s)
	}
}
