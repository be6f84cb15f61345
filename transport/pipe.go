package transport

import (
	"errors"
	"io"
	"sync"
)

// ErrPipeClosed is returned by Send on a Pipe side whose peer has closed.
var ErrPipeClosed = errors.New("transport: pipe closed")

// Pipe is an in-memory Conn useful for tests and for joining a client and
// server in a single process (the reference harness's default mode, so it
// has no external dependency to stand a River session up). Paired
// instances are obtained from NewPipePair.
type Pipe struct {
	out    chan []byte
	in     chan []byte
	once   *sync.Once
	closed chan struct{}
}

// NewPipePair returns two connected Conns; messages Sent on one are
// returned from Recv on the other. Both sides share one closed signal, so
// closing either side closes the connection for both.
func NewPipePair() (a, b *Pipe) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	once := &sync.Once{}
	closed := make(chan struct{})
	a = &Pipe{out: ab, in: ba, once: once, closed: closed}
	b = &Pipe{out: ba, in: ab, once: once, closed: closed}
	return a, b
}

func (p *Pipe) Send(msg []byte) error {
	cp := append([]byte(nil), msg...)
	select {
	case p.out <- cp:
		return nil
	case <-p.closed:
		return ErrPipeClosed
	}
}

func (p *Pipe) Recv() ([]byte, error) {
	select {
	case msg, ok := <-p.in:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-p.closed:
		return nil, io.EOF
	}
}

func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

var _ Conn = (*Pipe)(nil)
