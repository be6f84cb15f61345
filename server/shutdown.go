package server

import "sync"

// shutdown gates new handler-execution goroutines against a graceful
// drain, ported from the teacher's internal/tunnel/client.shutdown: Do
// guards each handler dispatch, Shut flips the gate and runs exactly once.
type shutdown struct {
	shutting bool
	mu       sync.RWMutex
	once     sync.Once
}

// Do runs fn and returns true unless a shutdown is in progress or done,
// in which case it returns false without running fn.
func (s *shutdown) Do(fn func()) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.shutting {
		return false
	}
	fn()
	return true
}

// Shut flips the gate closed and runs fn exactly once.
func (s *shutdown) Shut(fn func()) {
	s.mu.Lock()
	s.shutting = true
	s.mu.Unlock()
	s.once.Do(fn)
}
