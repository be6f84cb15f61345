// Package seq implements the per-session sequence/ack bookkeeping of
// protocol specification §4.2: a monotonic outbound counter and the
// expected-inbound counter used for in-order delivery and dedup.
package seq

import "sync"

// Outcome is the result of observing an inbound frame's seq value.
type Outcome int

const (
	// Accepted means the frame was the next expected seq and should be
	// delivered.
	Accepted Outcome = iota
	// Duplicate means seq < expectedRecv; the caller must drop the frame
	// silently.
	Duplicate
	// Gap means seq > expectedRecv; the caller must terminate the
	// session with a protocol error.
	Gap
)

// Manager owns the two counters described in spec §4.2. It is owned by
// exactly one session and guards its counters with its own mutex, since
// the session's receive loop and its writers call it from different
// goroutines.
type Manager struct {
	mu           sync.Mutex
	sendSeq      uint64
	expectedRecv uint64
}

// Stamp returns the seq to use for the next outbound frame, then
// increments the counter.
func (m *Manager) Stamp() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.sendSeq
	m.sendSeq++
	return v
}

// CurrentAck returns the value to carry as `ack` on the next outbound
// frame: the next seq this side expects to receive.
func (m *Manager) CurrentAck() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expectedRecv
}

// Observe validates an inbound frame's seq against expectedRecv. On
// Accepted, the expected counter advances so the frame may be delivered.
func (m *Manager) Observe(frameSeq uint64) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case frameSeq == m.expectedRecv:
		m.expectedRecv++
		return Accepted
	case frameSeq < m.expectedRecv:
		return Duplicate
	default:
		return Gap
	}
}

// Peek reports the next seq this side is prepared to stamp, without
// advancing it. Used to stamp bare ack/heartbeat frames, which carry the
// current seq without consuming it.
func (m *Manager) Peek() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendSeq
}
