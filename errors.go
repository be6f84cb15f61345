// Package river is the root of the River RPC transport: a bidirectional
// multiplexed session protocol (see SPEC_FULL.md and spec.md). It holds
// the error taxonomy and result envelope shared by the client and server
// dispatchers; the mechanics live in the frame, seq, stream, transport,
// client, server and internal/rsession packages.
package river

import (
	"fmt"
	"reflect"
)

// ProtoError is an application or protocol error carried as a frame
// payload or returned from a call, per spec §7's error taxonomy.
type ProtoError struct {
	Code    string
	Message string
}

func (e *ProtoError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Transport/session error codes (spec §7).
const (
	CodeStreamClosed         = "STREAM_CLOSED"
	CodeUnexpectedDisconnect = "UNEXPECTED_DISCONNECT"
	CodeProtocolViolation    = "PROTOCOL_VIOLATION"
	CodeNotImplemented       = "NOT_IMPLEMENTED"
	CodeUncaughtException    = "UNCAUGHT_EXCEPTION"
)

// ErrContext identifies the construction-time failure an Error[C]
// describes. Ported from the teacher's Error[C ErrContext] (errors.go in
// ngrok-ngrok-go): one generic wrapper, many small context types, each
// supplying only a message() string.
type ErrContext interface {
	message() string
}

type Error[C ErrContext] struct {
	Inner   error
	Context C
}

func (e Error[C]) Unwrap() error { return e.Inner }

func (e Error[C]) Error() string {
	msg := e.Context.message()
	if e.Inner != nil {
		return fmt.Sprintf("%s: %v", msg, e.Inner.Error())
	}
	return msg
}

func (e Error[C]) Is(other error) bool {
	return reflect.TypeOf(e) == reflect.TypeOf(other)
}

// ErrDial is returned when a client fails to obtain a transport.Conn to
// the peer (dialing is the caller's concern; this just wraps whatever
// error the dialer returned).
type ErrDial = Error[DialContext]
type DialContext struct{ Addr string }

func (c DialContext) message() string { return fmt.Sprintf("failed to dial river peer %q", c.Addr) }

// ErrHandshakeFailed is returned when the handshake request/response
// exchange of spec §4.3 does not complete successfully.
type ErrHandshakeFailed = Error[HandshakeContext]
type HandshakeContext struct{ Reason string }

func (c HandshakeContext) message() string { return "handshake failed: " + c.Reason }

// ErrSessionDead is returned from calls made after a session's grace
// window (spec §4.3) has elapsed with no reconnect.
type ErrSessionDead = Error[SessionDeadContext]
type SessionDeadContext struct{}

func (c SessionDeadContext) message() string { return "session is no longer live" }
