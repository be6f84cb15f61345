package rsession

import (
	"sync"

	"github.com/riverrpc/river/frame"
)

// resendBuffer holds every outbound frame the peer has not yet acked, in
// seq order, so a reconnect can replay them (spec §4.3's reconnect-and-
// resume). It is deliberately simple next to the teacher's windowed
// inboundBuffer (internal/muxado/buffer.go): River acks whole frames, not
// byte ranges, so trimming is just "drop everything with seq < ack".
type resendBuffer struct {
	mu     sync.Mutex
	frames []*frame.Frame
}

func newResendBuffer() *resendBuffer {
	return &resendBuffer{}
}

// Append records f as sent and not yet acked.
func (b *resendBuffer) Append(f *frame.Frame) {
	b.mu.Lock()
	b.frames = append(b.frames, f)
	b.mu.Unlock()
}

// Ack drops every buffered frame the peer has now acknowledged.
func (b *resendBuffer) Ack(upTo uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := 0
	for i < len(b.frames) && b.frames[i].Seq < upTo {
		i++
	}
	b.frames = b.frames[i:]
}

// Snapshot returns the frames still awaiting ack, oldest first, for replay
// on reconnect.
func (b *resendBuffer) Snapshot() []*frame.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*frame.Frame, len(b.frames))
	copy(out, b.frames)
	return out
}
