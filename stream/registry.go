package stream

import (
	"sync"

	"github.com/riverrpc/river/frame"
)

// Registry maps streamId to a live Stream, scoped to one session. Adapted
// from the teacher's streamMap (internal/muxado/stream_map.go): a
// read/write-locked map with a snapshot-and-iterate Each, but keyed by
// River's opaque string streamId rather than muxado's numeric id, and
// storing a *Stream with an inbound queue rather than a raw byte stream.
type Registry struct {
	mu    sync.RWMutex
	table map[string]*Stream
}

func NewRegistry() *Registry {
	return &Registry{table: make(map[string]*Stream, 64)}
}

// Open creates a new stream entry. It fails if streamId is already
// present, per invariant 4 in spec §3 (a streamId may not be reused while
// live).
func (r *Registry) Open(streamID string, kind Kind, sink Sink) (*Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.table[streamID]; ok {
		return nil, ErrAlreadyExists
	}
	s := newStream(streamID, kind, sink)
	r.table[streamID] = s
	return s, nil
}

func (r *Registry) Get(streamID string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.table[streamID]
	return s, ok
}

// Deliver pushes payload onto the named stream's inbound queue. It blocks
// when the queue is at capacity, which is the session's sole backpressure
// mechanism (spec §5): the caller is expected to be the session's single
// receive loop, so blocking here stops that loop from reading further
// frames off the byte connection.
func (r *Registry) Deliver(streamID string, f *frame.Frame) error {
	s, ok := r.Get(streamID)
	if !ok {
		return ErrNotFound
	}
	s.inbound <- f
	return nil
}

// Close marks end-of-stream on the queue and removes the entry from the
// registry, per spec §4.4.
func (r *Registry) Close(streamID string) {
	r.mu.Lock()
	s, ok := r.table[streamID]
	if ok {
		delete(r.table, streamID)
	}
	r.mu.Unlock()
	if ok {
		close(s.inbound)
	}
}

// Each snapshots the registry and invokes fn for every live stream.
func (r *Registry) Each(fn func(*Stream)) {
	r.mu.RLock()
	streams := make([]*Stream, 0, len(r.table))
	for _, s := range r.table {
		streams = append(streams, s)
	}
	r.mu.RUnlock()
	for _, s := range streams {
		fn(s)
	}
}

// CloseAll closes every live stream's inbound queue and empties the
// registry, used during session teardown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	streams := make([]*Stream, 0, len(r.table))
	for id, s := range r.table {
		streams = append(streams, s)
		delete(r.table, id)
	}
	r.mu.Unlock()
	for _, s := range streams {
		close(s.inbound)
	}
}
