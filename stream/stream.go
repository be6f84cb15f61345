// Package stream implements the per-session stream registry of protocol
// specification §4.4: a map from streamId to a bounded inbound queue, plus
// the lifecycle state machine of §3's Stream type.
package stream

import (
	"errors"
	"sync"

	"github.com/riverrpc/river/frame"
)

// Kind is the handler shape a stream was opened for, which determines its
// inbound queue capacity (spec §4.4).
type Kind int

const (
	Unary Kind = iota
	Subscription
	Upload
	Bidi
)

// Capacity returns the inbound queue depth for streams of this kind:
// 1 for non-streaming sides, 1024 for streaming sides.
func (k Kind) Capacity() int {
	switch k {
	case Unary, Upload:
		return 1
	default:
		return 1024
	}
}

// State is a stream's lifecycle position, per spec §3.
type State int

const (
	Opening State = iota
	Open
	HalfClosedLocal
	HalfClosedRemote
	Closed
)

var ErrAlreadyExists = errors.New("stream: streamId already open")
var ErrNotFound = errors.New("stream: unknown streamId")

// Sink writes an outbound frame for a stream. The session supplies this;
// it stamps seq/ack and appends to the resend buffer before writing to the
// byte connection.
type Sink func(f *frame.Frame) error

// Stream is a logical bidirectional channel within a session, identified
// by StreamID.
type Stream struct {
	ID            string
	Kind          Kind
	ServiceName   string
	ProcedureName string

	inbound chan *frame.Frame

	sink Sink

	mu    sync.Mutex
	state State
}

func newStream(id string, kind Kind, sink Sink) *Stream {
	return &Stream{
		ID:      id,
		Kind:    kind,
		inbound: make(chan *frame.Frame, kind.Capacity()),
		sink:    sink,
		state:   Opening,
	}
}

// Send writes an outbound frame through the stream's sink. Callers need
// not set StreamID or the session-scoped fields (id/from/to/seq/ack); the
// session's sink fills them in.
func (s *Stream) Send(f *frame.Frame) error {
	return s.sink(f)
}

// Inbound is the bounded queue of frames delivered in seq order. The
// channel is closed (after emitting any buffered frames) once both sides
// have observed STREAM_CLOSED, per invariant in spec §5: "a STREAM_CLOSED
// is the last event observed on a stream's inbound queue; no data frame
// follows it."
func (s *Stream) Inbound() <-chan *frame.Frame { return s.inbound }

func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// MarkLocalClosed records that this side has sent STREAM_CLOSED.
func (s *Stream) MarkLocalClosed() (fullyClosed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case HalfClosedRemote, Closed:
		s.state = Closed
		return true
	default:
		s.state = HalfClosedLocal
		return false
	}
}

// MarkRemoteClosed records that the peer has sent STREAM_CLOSED.
func (s *Stream) MarkRemoteClosed() (fullyClosed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case HalfClosedLocal, Closed:
		s.state = Closed
		return true
	default:
		s.state = HalfClosedRemote
		return false
	}
}
