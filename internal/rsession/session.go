package rsession

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/riverrpc/river"
	"github.com/riverrpc/river/frame"
	"github.com/riverrpc/river/log"
	"github.com/riverrpc/river/seq"
	"github.com/riverrpc/river/stream"
	"github.com/riverrpc/river/transport"
)

// OpenHandler is invoked synchronously, from the session's own receive
// loop, the instant a STREAM_OPEN frame arrives for a streamId the
// registry does not yet know about. It must return quickly: its job is
// just handler lookup plus a call to AdoptStream or RejectStream, not
// running the handler itself. This is what lets step 1-3 of a stream's
// acceptance (lookup, queue creation, delivering the open frame) happen
// without ever blocking the loop on handler execution.
type OpenHandler func(s *Session, streamID string, open *frame.Frame)

// Session is one multiplexed connection to a peer: the actor that owns
// the sequence manager, stream registry and resend buffer described in
// spec §4.2-§4.4, and that runs the single receive loop spec §5 requires.
type Session struct {
	opts Options

	connMu sync.Mutex
	conn   transport.Conn

	remoteInstanceID string

	seq    *seq.Manager
	resend *resendBuffer
	beat   *heartbeat

	streams *stream.Registry
	onOpen  OpenHandler

	writeMu sync.Mutex

	reattachCh     chan transport.Conn
	disconnectedCh chan struct{}

	closeOnce sync.Once
	doneCh    chan struct{}
	doneErr   error
	doneMu    sync.Mutex
}

func newFrameID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func newStreamID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// NewClient dials the handshake as the initiating side: send
// HANDSHAKE_REQ, await HANDSHAKE_RESP. On success it starts the receive
// loop and heartbeat and returns a live Session.
func NewClient(conn transport.Conn, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	req := frame.HandshakeRequest{
		Type:            frame.HandshakeRequestType,
		ProtocolVersion: frame.ProtocolV2,
		InstanceID:      opts.InstanceID,
	}
	reqFrame := &frame.Frame{
		ID:           newFrameID(),
		From:         opts.InstanceID,
		ControlFlags: frame.ACK,
		Payload:      frame.MustMarshal(req),
	}
	b, err := frame.Encode(reqFrame)
	if err != nil {
		return nil, river.ErrHandshakeFailed{Inner: err, Context: river.HandshakeContext{Reason: "encode request"}}
	}
	if err := conn.Send(b); err != nil {
		return nil, river.ErrHandshakeFailed{Inner: err, Context: river.HandshakeContext{Reason: "send request"}}
	}

	raw, err := conn.Recv()
	if err != nil {
		return nil, river.ErrHandshakeFailed{Inner: err, Context: river.HandshakeContext{Reason: "recv response"}}
	}
	respFrame, err := frame.Decode(raw)
	if err != nil {
		return nil, river.ErrHandshakeFailed{Inner: err, Context: river.HandshakeContext{Reason: "decode response"}}
	}
	resp, err := frame.DecodeHandshakeResponse(respFrame.Payload)
	if err != nil {
		return nil, river.ErrHandshakeFailed{Inner: err, Context: river.HandshakeContext{Reason: "decode response payload"}}
	}
	if !resp.Status.OK {
		return nil, river.ErrHandshakeFailed{Context: river.HandshakeContext{Reason: resp.Status.Reason}}
	}

	s := newSession(conn, opts, resp.Status.InstanceID, nil)
	s.start()
	return s, nil
}

// NewServer waits for a HANDSHAKE_REQ and replies with a HANDSHAKE_RESP
// accepting it. It applies no collision or resumption policy of its own.
//
// NewServer always builds a brand-new Session. A caller that needs to
// distinguish a fresh instanceId from one resuming an existing Session
// should use ReadHandshakeRequest, AcceptNew and AcceptResume directly
// instead, so the resume-vs-new decision can be made between reading the
// request and replying to it.
func NewServer(conn transport.Conn, opts Options, onOpen OpenHandler) (*Session, error) {
	opts = opts.withDefaults()

	req, err := ReadHandshakeRequest(conn)
	if err != nil {
		return nil, err
	}
	return AcceptNew(conn, opts, req, onOpen)
}

// ReadHandshakeRequest blocks for the peer's HANDSHAKE_REQ and decodes it.
// The caller inspects req.InstanceID (typically against Manager.Get)
// before deciding whether to answer with AcceptNew or AcceptResume.
func ReadHandshakeRequest(conn transport.Conn) (frame.HandshakeRequest, error) {
	raw, err := conn.Recv()
	if err != nil {
		return frame.HandshakeRequest{}, river.ErrHandshakeFailed{Inner: err, Context: river.HandshakeContext{Reason: "recv request"}}
	}
	reqFrame, err := frame.Decode(raw)
	if err != nil {
		return frame.HandshakeRequest{}, river.ErrHandshakeFailed{Inner: err, Context: river.HandshakeContext{Reason: "decode request"}}
	}
	req, err := frame.DecodeHandshakeRequest(reqFrame.Payload)
	if err != nil {
		return frame.HandshakeRequest{}, river.ErrHandshakeFailed{Inner: err, Context: river.HandshakeContext{Reason: "decode request payload"}}
	}
	return *req, nil
}

// sendHandshakeResponse replies OK, addressed to req.InstanceID, under
// opts.InstanceID. Shared by AcceptNew and AcceptResume: both answer a
// HANDSHAKE_REQ the same way, they differ only in what happens after.
func sendHandshakeResponse(conn transport.Conn, opts Options, req frame.HandshakeRequest) error {
	resp := frame.HandshakeResponse{
		Type: frame.HandshakeResponseType,
		Status: frame.HandshakeStatus{
			OK:         true,
			InstanceID: opts.InstanceID,
		},
	}
	respFrame := &frame.Frame{
		ID:           newFrameID(),
		From:         opts.InstanceID,
		To:           req.InstanceID,
		ControlFlags: frame.ACK,
		Payload:      frame.MustMarshal(resp),
	}
	b, err := frame.Encode(respFrame)
	if err != nil {
		return river.ErrHandshakeFailed{Inner: err, Context: river.HandshakeContext{Reason: "encode response"}}
	}
	if err := conn.Send(b); err != nil {
		return river.ErrHandshakeFailed{Inner: err, Context: river.HandshakeContext{Reason: "send response"}}
	}
	return nil
}

// AcceptNew answers req with a HANDSHAKE_RESP and builds a fresh Session
// for it — the path for an instanceId with no live session to resume.
func AcceptNew(conn transport.Conn, opts Options, req frame.HandshakeRequest, onOpen OpenHandler) (*Session, error) {
	opts = opts.withDefaults()

	if err := sendHandshakeResponse(conn, opts, req); err != nil {
		return nil, err
	}

	s := newSession(conn, opts, req.InstanceID, onOpen)
	s.start()
	return s, nil
}

// AcceptResume answers req with a HANDSHAKE_RESP, same as AcceptNew, but
// then resumes existing rather than constructing a new Session: it calls
// existing.Reattach(conn) so the resend buffer replays against seq state
// the peer already agrees on, per spec §4.3. The handshake itself is
// re-run (the peer expects a HANDSHAKE_RESP for every HANDSHAKE_REQ it
// sends); only session construction is skipped.
func AcceptResume(conn transport.Conn, opts Options, req frame.HandshakeRequest, existing *Session) (*Session, error) {
	opts = opts.withDefaults()

	if err := sendHandshakeResponse(conn, opts, req); err != nil {
		return nil, err
	}
	if err := existing.Reattach(conn); err != nil {
		return nil, err
	}
	return existing, nil
}

func newSession(conn transport.Conn, opts Options, remoteInstanceID string, onOpen OpenHandler) *Session {
	return &Session{
		opts:             opts,
		conn:             conn,
		remoteInstanceID: remoteInstanceID,
		seq:              &seq.Manager{},
		resend:           newResendBuffer(),
		beat:             newHeartbeat(opts.HeartbeatInterval, opts.HeartbeatsUntilDead),
		streams:          stream.NewRegistry(),
		onOpen:           onOpen,
		reattachCh:       make(chan transport.Conn, 1),
		disconnectedCh:   make(chan struct{}, 1),
		doneCh:           make(chan struct{}),
	}
}

func (s *Session) start() {
	go s.run()
	s.beat.Start(s.sendHeartbeat, func() { s.teardown(river.ErrSessionDead{Context: river.SessionDeadContext{}}) })
}

// RemoteInstanceID is the peer's instanceId, learned during the handshake.
func (s *Session) RemoteInstanceID() string { return s.remoteInstanceID }

// Done reports when the session has torn down, for either side.
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Disconnected fires once per broken-connection episode, before the grace
// window begins, so a caller who owns the dialer can race a redial against
// Reattach instead of waiting for Done to learn the grace window expired.
func (s *Session) Disconnected() <-chan struct{} { return s.disconnectedCh }

// Err is the reason the session tore down, nil if Close was called
// locally before any error occurred.
func (s *Session) Err() error {
	s.doneMu.Lock()
	defer s.doneMu.Unlock()
	return s.doneErr
}

// OpenStream allocates a new outbound stream, sends its STREAM_OPEN frame
// carrying payload (the subscription/upload/bidi request parameters, or
// nil) and returns it. kind determines the inbound queue's backpressure
// capacity (spec §4.4).
func (s *Session) OpenStream(kind stream.Kind, serviceName, procedureName string, payload []byte) (*stream.Stream, error) {
	streamID := newStreamID()
	st, err := s.streams.Open(streamID, kind, s.makeSink(streamID))
	if err != nil {
		return nil, err
	}
	open := &frame.Frame{
		StreamID:      streamID,
		ServiceName:   serviceName,
		ProcedureName: procedureName,
		ControlFlags:  frame.StreamOpen,
		Payload:       payload,
	}
	if err := s.writeFrame(open, true); err != nil {
		s.streams.Close(streamID)
		return nil, err
	}
	return st, nil
}

// SendUnary opens and, in the same frame, closes a stream carrying
// payload: the single-frame shape invariant 3 in spec §3 requires for a
// complete unary request/response. The returned stream's Inbound channel
// yields exactly the peer's one reply frame.
func (s *Session) SendUnary(serviceName, procedureName string, payload []byte) (*stream.Stream, error) {
	streamID := newStreamID()
	st, err := s.streams.Open(streamID, stream.Unary, s.makeSink(streamID))
	if err != nil {
		return nil, err
	}
	f := &frame.Frame{
		StreamID:      streamID,
		ServiceName:   serviceName,
		ProcedureName: procedureName,
		ControlFlags:  frame.StreamOpen | frame.StreamClosed,
		Payload:       payload,
	}
	if err := s.writeFrame(f, true); err != nil {
		s.streams.Close(streamID)
		return nil, err
	}
	st.MarkLocalClosed()
	return st, nil
}

// CloseStream sends a STREAM_CLOSED frame for a stream this side still has
// open locally, carrying payload (typically a CloseSentinel or a final
// Result). Used by streamed-shape callers (upload, bidi) to signal
// end-of-input/end-of-output.
func (s *Session) CloseStream(st *stream.Stream, payload []byte) error {
	f := &frame.Frame{ControlFlags: frame.StreamClosed, Payload: payload}
	if err := st.Send(f); err != nil {
		return err
	}
	if st.MarkLocalClosed() {
		s.streams.Close(st.ID)
	}
	return nil
}

// AdoptStream registers an inbound stream the peer just opened, delivers
// the triggering open frame as the first inbound item, and returns it.
// Called only from inside onOpen, on the receive loop goroutine.
func (s *Session) AdoptStream(streamID string, kind stream.Kind, open *frame.Frame) (*stream.Stream, error) {
	st, err := s.streams.Open(streamID, kind, s.makeSink(streamID))
	if err != nil {
		return nil, err
	}
	if err := s.streams.Deliver(streamID, open); err != nil {
		s.streams.Close(streamID)
		return nil, err
	}
	return st, nil
}

// RejectStream answers an unrecognized STREAM_OPEN with a terminal error
// frame without ever creating a registry entry, per the NOT_IMPLEMENTED
// decision in SPEC_FULL.md.
func (s *Session) RejectStream(streamID string, code, message string) error {
	payload, err := river.EncodeErr(&river.ProtoError{Code: code, Message: message})
	if err != nil {
		return err
	}
	f := &frame.Frame{
		StreamID:     streamID,
		ControlFlags: frame.StreamClosed,
		Payload:      payload,
	}
	return s.writeFrame(f, true)
}

func (s *Session) makeSink(streamID string) stream.Sink {
	return func(f *frame.Frame) error {
		f.StreamID = streamID
		return s.writeFrame(f, true)
	}
}

func (s *Session) sendHeartbeat() {
	f := &frame.Frame{ControlFlags: frame.ACK}
	_ = s.writeFrame(f, false)
}

// writeFrame stamps seq/ack/from/to and writes to the byte connection. If
// resend is true the frame is recorded for replay until acked before it is
// written, so a frame whose write fails is still replayed on Reattach.
func (s *Session) writeFrame(f *frame.Frame, resend bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if f.ID == "" {
		f.ID = newFrameID()
	}
	f.From = s.opts.InstanceID
	f.To = s.remoteInstanceID
	if f.StreamID == "" {
		// Bare ack/heartbeat frames carry the current seq but must not
		// consume it: the receive loop never calls seq.Observe for them
		// (they're filtered out before that check), so advancing the
		// counter here would desync the two sides' expectedRecv.
		f.Seq = s.seq.Peek()
	} else {
		f.Seq = s.seq.Stamp()
	}
	f.Ack = s.seq.CurrentAck()

	b, err := frame.Encode(f)
	if err != nil {
		return err
	}

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()

	if resend {
		s.resend.Append(f)
	}
	return conn.Send(b)
}

func (s *Session) run() {
	for {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		raw, err := conn.Recv()
		if err != nil {
			select {
			case s.disconnectedCh <- struct{}{}:
			default:
			}
			if s.awaitReattach(err) {
				continue
			}
			return
		}
		f, err := frame.Decode(raw)
		if err != nil {
			s.teardown(err)
			return
		}

		s.beat.markRecv()
		s.resend.Ack(f.Ack)

		if f.StreamID == "" {
			// Bare heartbeat/ack frame: liveness and resend trimming
			// above already did the only work it carries.
			continue
		}

		switch s.seq.Observe(f.Seq) {
		case seq.Duplicate:
			continue
		case seq.Gap:
			s.teardown(&frame.ControlFrameInvalid{Reason: fmt.Sprintf("sequence gap on stream %s", f.StreamID)})
			return
		}

		if f.ControlFlags.Has(frame.StreamOpen) {
			if _, ok := s.streams.Get(f.StreamID); !ok {
				if s.onOpen != nil {
					s.onOpen(s, f.StreamID, f)
				} else {
					_ = s.RejectStream(f.StreamID, river.CodeNotImplemented, "no open handler registered")
				}
				// The unary shape carries StreamOpen and StreamClosed on
				// the same frame; if onOpen adopted the stream, the
				// remote-closed half of its lifecycle still needs
				// recording here since the generic delivery path below
				// never runs for a freshly adopted stream's own open
				// frame.
				if f.ControlFlags.Has(frame.StreamClosed) {
					if st, ok := s.streams.Get(f.StreamID); ok {
						if st.MarkRemoteClosed() {
							s.streams.Close(f.StreamID)
						}
					}
				}
				continue
			}
		}

		if err := s.streams.Deliver(f.StreamID, f); err != nil {
			s.opts.Logger.Log(context.Background(), log.LogLevelDebug, "dropped frame for unknown stream", map[string]interface{}{
				"streamId": f.StreamID,
			})
			continue
		}

		if f.ControlFlags.Has(frame.StreamClosed) {
			if st, ok := s.streams.Get(f.StreamID); ok {
				if st.MarkRemoteClosed() {
					s.streams.Close(f.StreamID)
				}
			}
		}
	}
}

// awaitReattach blocks the receive loop for at most the disconnect grace
// window (spec §4.3) after a Recv failure, waiting for Reattach to supply
// a resumed connection. It reports whether the loop should resume reading
// from the (now reattached) connection.
func (s *Session) awaitReattach(recvErr error) bool {
	select {
	case <-s.reattachCh:
		return true
	case <-time.After(s.opts.DisconnectGrace):
		s.teardown(recvErr)
		return false
	case <-s.doneCh:
		return false
	}
}

// Reattach swaps in a freshly dialed, freshly handshaken connection after
// a disconnect, and replays the unacked tail of the resend buffer. The
// handshake itself (establishing that this is the same instanceId
// resuming, not a collision) happens before Reattach is called; Reattach
// only takes over the wire. It is a no-op error if the session has
// already torn down past its grace window.
func (s *Session) Reattach(conn transport.Conn) error {
	select {
	case <-s.doneCh:
		return river.ErrSessionDead{Context: river.SessionDeadContext{}}
	default:
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	for _, f := range s.resend.Snapshot() {
		b, err := frame.Encode(f)
		if err != nil {
			return err
		}
		if err := conn.Send(b); err != nil {
			return err
		}
	}

	select {
	case s.reattachCh <- conn:
	default:
	}
	return nil
}

// Close tears the session down locally: every live stream's inbound queue
// is closed, the connection is closed, and Done fires. The client
// dispatcher reports this as UNEXPECTED_DISCONNECT for unary calls,
// uploads and subscriptions; a bidi stream's Recv reports open=false, the
// same as a clean close.
func (s *Session) Close() error {
	s.beat.Stop()
	s.teardown(nil)
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	return conn.Close()
}

func (s *Session) teardown(err error) {
	s.closeOnce.Do(func() {
		s.doneMu.Lock()
		s.doneErr = err
		s.doneMu.Unlock()

		// Closing every stream's inbound queue without a trailing
		// STREAM_CLOSED is how a caller ranging over Inbound() learns
		// the session died out from under it (spec §5).
		s.streams.CloseAll()

		close(s.doneCh)
	})
}
