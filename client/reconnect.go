package client

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"github.com/riverrpc/river/log"
	"github.com/riverrpc/river/transport"
)

type noopLogger struct{}

func (noopLogger) Log(_ context.Context, _ log.LogLevel, _ string, _ map[string]interface{}) {}

// Dialer obtains a fresh transport.Conn to the same peer a Dispatcher was
// first dialed against, already past any transport-level handshake (e.g. a
// completed WebSocket upgrade). It does not perform River's own session
// handshake; Session.Reattach takes it from there.
type Dialer func() (transport.Conn, error)

// Redialer watches a Dispatcher's underlying session for disconnects and
// races a backoff-spaced series of Dialer calls against the session's grace
// window (spec §4.3), calling Reattach as soon as a dial succeeds. Adapted
// from the teacher's reconnectingSession (internal/tunnel/client/reconnecting.go),
// which runs the equivalent loop around rawSession.redial with the same
// backoff library; River's Session already owns resend-buffer replay on
// Reattach, so this type only owns the redial loop itself.
type Redialer struct {
	dial   Dialer
	logger log.Logger
	stop   chan struct{}
}

// Watch starts a background goroutine that redials d's session whenever it
// disconnects, until d's session tears down for good or Stop is called.
func Watch(d *Dispatcher, dial Dialer, logger log.Logger) *Redialer {
	if logger == nil {
		logger = noopLogger{}
	}
	r := &Redialer{dial: dial, logger: logger, stop: make(chan struct{})}
	go r.run(d)
	return r
}

// Stop ends the redial loop without touching the underlying session.
func (r *Redialer) Stop() { close(r.stop) }

func (r *Redialer) run(d *Dispatcher) {
	for {
		select {
		case <-d.sess.Disconnected():
			r.redial(d)
		case <-d.sess.Done():
			return
		case <-r.stop:
			return
		}
	}
}

// redial retries Dialer+Reattach with jpillora/backoff spacing until one
// round trip succeeds, the session gives up waiting (Done fires once its
// grace window elapses), or Stop is called.
func (r *Redialer) redial(d *Dispatcher) {
	r.logger.Log(context.Background(), log.LogLevelWarn, "river: session disconnected, redialing", nil)
	b := &backoff.Backoff{Min: 50 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: true}
	for {
		select {
		case <-d.sess.Done():
			return
		case <-r.stop:
			return
		default:
		}

		conn, err := r.dial()
		if err != nil {
			r.logger.Log(context.Background(), log.LogLevelDebug, "river: redial attempt failed", map[string]interface{}{"error": err.Error()})
			select {
			case <-time.After(b.Duration()):
			case <-d.sess.Done():
				return
			case <-r.stop:
				return
			}
			continue
		}

		if err := d.sess.Reattach(conn); err != nil {
			_ = conn.Close()
			r.logger.Log(context.Background(), log.LogLevelDebug, "river: reattach failed", map[string]interface{}{"error": err.Error()})
			select {
			case <-time.After(b.Duration()):
			case <-d.sess.Done():
				return
			case <-r.stop:
				return
			}
			continue
		}
		r.logger.Log(context.Background(), log.LogLevelInfo, "river: session resumed", nil)
		return
	}
}
