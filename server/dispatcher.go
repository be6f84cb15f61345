// Package server implements the handler-table side of spec §4.6: looking
// up a (serviceName, procedureName) pair, accepting or rejecting a
// freshly opened stream synchronously inside the session's receive loop,
// and running the actual handler body on its own goroutine.
package server

import (
	"context"
	"sync"

	"github.com/riverrpc/river"
	"github.com/riverrpc/river/frame"
	"github.com/riverrpc/river/internal/rsession"
	"github.com/riverrpc/river/log"
	"github.com/riverrpc/river/stream"
	"github.com/riverrpc/river/transport"
)

type key struct{ service, procedure string }

// handlerEntry is what the registry keys on (service, procedure) map to:
// enough to adopt or reject a stream and then run the handler body.
type handlerEntry struct {
	kind  stream.Kind
	start func(s *rsession.Session, streamID string, open *frame.Frame)
}

// Dispatcher owns the handler table and the live sessions accepted from
// Serve, and drains in-flight handlers on graceful Close (the
// supplemented "graceful server shutdown" feature).
type Dispatcher struct {
	mu      sync.RWMutex
	table   map[key]handlerEntry
	mgr     *rsession.Manager
	opts    rsession.Options
	logger  log.Logger
	gate    shutdown
	wg      sync.WaitGroup
}

// New creates an empty Dispatcher. Register handlers with RegisterUnary
// etc. before calling Serve.
func New(opts rsession.Options) *Dispatcher {
	return &Dispatcher{
		table: make(map[key]handlerEntry),
		mgr:   rsession.NewManager(),
		opts:  opts,
	}
}

// Serve reads the HANDSHAKE_REQ off conn and then applies the collision
// and resume rule of spec §4.3 via the Dispatcher's Manager: an
// instanceId with a live, not-yet-torn-down session resumes it (the
// existing Session's Reattach takes over conn, preserving its seq and
// resend state), while any other instanceId — new, or one whose prior
// session already tore down past its grace window — gets a brand new
// Session, replacing whatever stale entry the Manager still has.
func (d *Dispatcher) Serve(conn transport.Conn) (*rsession.Session, error) {
	req, err := rsession.ReadHandshakeRequest(conn)
	if err != nil {
		return nil, err
	}

	if existing, ok := d.mgr.Get(req.InstanceID); ok {
		select {
		case <-existing.Done():
			// Tore down for good; fall through to a fresh session below.
		default:
			return rsession.AcceptResume(conn, d.opts, req, existing)
		}
	}

	onOpen := func(s *rsession.Session, streamID string, open *frame.Frame) {
		d.handleOpen(s, streamID, open)
	}
	sess, err := rsession.AcceptNew(conn, d.opts, req, onOpen)
	if err != nil {
		return nil, err
	}

	if prev, hadExisting := d.mgr.Adopt(sess); hadExisting {
		_ = prev.Close()
	}
	return sess, nil
}

// Close stops accepting new handler invocations and waits for in-flight
// ones to finish, then closes every live session.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.gate.Shut(func() {})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	d.mgr.Each(func(s *rsession.Session) { _ = s.Close() })
	return ctx.Err()
}

func (d *Dispatcher) handleOpen(s *rsession.Session, streamID string, open *frame.Frame) {
	d.mu.RLock()
	h, ok := d.table[key{open.ServiceName, open.ProcedureName}]
	d.mu.RUnlock()
	if !ok {
		_ = s.RejectStream(streamID, river.CodeNotImplemented,
			"no handler registered for "+open.ServiceName+"."+open.ProcedureName)
		return
	}
	h.start(s, streamID, open)
}

func (d *Dispatcher) runHandler(fn func()) {
	d.wg.Add(1)
	ran := d.gate.Do(func() {
		go func() {
			defer d.wg.Done()
			fn()
		}()
	})
	if !ran {
		d.wg.Done()
	}
}

func register(d *Dispatcher, serviceName, procedureName string, kind stream.Kind, start func(s *rsession.Session, streamID string, open *frame.Frame)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.table[key{serviceName, procedureName}] = handlerEntry{kind: kind, start: start}
}
