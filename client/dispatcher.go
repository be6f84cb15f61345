package client

import (
	"context"
	"time"

	"github.com/riverrpc/river"
	"github.com/riverrpc/river/frame"
	"github.com/riverrpc/river/internal/rsession"
	"github.com/riverrpc/river/stream"
	"github.com/riverrpc/river/transport"
)

// Dispatcher is the caller-facing handle for one River session: it
// translates typed calls into frames over an internal/rsession.Session,
// adapted from the teacher's rawSession.rpc (internal/tunnel/client/raw_session.go),
// generalized from a single untyped request/response RPC into River's
// four handler shapes.
type Dispatcher struct {
	sess *rsession.Session
}

// Dial performs the client-side handshake over conn and returns a ready
// Dispatcher.
func Dial(conn transport.Conn, opts rsession.Options) (*Dispatcher, error) {
	sess, err := rsession.NewClient(conn, opts)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{sess: sess}, nil
}

// Close tears down the underlying session.
func (d *Dispatcher) Close() error { return d.sess.Close() }

// Done reports when the underlying session has torn down.
func (d *Dispatcher) Done() <-chan struct{} { return d.sess.Done() }

func transportErr(err error) *river.ProtoError {
	return &river.ProtoError{Code: river.CodeUnexpectedDisconnect, Message: err.Error()}
}

// Call invokes a unary procedure: one request frame, one reply frame
// (spec §4.5's "rpc" shape).
func Call[Req, Resp any](ctx context.Context, d *Dispatcher, serviceName, procedureName string, req Req) Result[Resp] {
	payload, err := river.EncodeOk(req)
	if err != nil {
		return errResult[Resp](transportErr(err))
	}
	st, err := d.sess.SendUnary(serviceName, procedureName, payload)
	if err != nil {
		return errResult[Resp](transportErr(err))
	}

	select {
	case f, open := <-st.Inbound():
		if !open {
			return errResult[Resp](&river.ProtoError{Code: river.CodeUnexpectedDisconnect, Message: "session closed before reply arrived"})
		}
		return decodeResult[Resp](f)
	case <-ctx.Done():
		return errResult[Resp](&river.ProtoError{Code: river.CodeStreamClosed, Message: ctx.Err().Error()})
	case <-d.sess.Done():
		return errResult[Resp](sessionDeadErr(d.sess))
	}
}

// CallTimeout is Call with a convenience per-call deadline, per the
// supplemented "context-based per-call timeout" feature.
func CallTimeout[Req, Resp any](d *Dispatcher, serviceName, procedureName string, req Req, timeout time.Duration) Result[Resp] {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return Call[Req, Resp](ctx, d, serviceName, procedureName, req)
}

func decodeResult[Resp any](f *frame.Frame) Result[Resp] {
	decoded, err := river.Decode(f.Payload)
	if err != nil {
		return errResult[Resp](&river.ProtoError{Code: river.CodeProtocolViolation, Message: err.Error()})
	}
	if decoded.Close {
		return errResult[Resp](&river.ProtoError{Code: river.CodeProtocolViolation, Message: "unexpected CLOSE in unary reply"})
	}
	if !decoded.OK {
		protoErr, err := river.DecodeProtoError(decoded.Payload)
		if err != nil {
			return errResult[Resp](&river.ProtoError{Code: river.CodeProtocolViolation, Message: err.Error()})
		}
		return errResult[Resp](protoErr)
	}
	var v Resp
	if err := river.DecodeInto(decoded.Payload, &v); err != nil {
		return errResult[Resp](&river.ProtoError{Code: river.CodeProtocolViolation, Message: err.Error()})
	}
	return ok(v)
}

func sessionDeadErr(sess *rsession.Session) *river.ProtoError {
	if err := sess.Err(); err != nil {
		return &river.ProtoError{Code: river.CodeUnexpectedDisconnect, Message: err.Error()}
	}
	return &river.ProtoError{Code: river.CodeUnexpectedDisconnect, Message: "session closed"}
}

// Subscription is a live handler-initiated stream of Result[Item] values,
// the "subscription" shape of spec §4.5.
type Subscription[Item any] struct {
	stream *stream.Stream
	items  chan Result[Item]
}

// Items yields each value the remote side pushes, until the stream closes.
func (s *Subscription[Item]) Items() <-chan Result[Item] { return s.items }

// Cancel ends the subscription from the caller's side by sending
// STREAM_CLOSED, per spec §4.5's cancellation note.
func (s *Subscription[Item]) Cancel(sess *Dispatcher) error {
	return sess.sess.CloseStream(s.stream, river.EncodeClose())
}

// Subscribe opens a subscription stream and starts draining it into a
// channel of Result[Item] on a background goroutine, since a caller must
// not block the session's receive loop while consuming it (spec §5).
func Subscribe[Req, Item any](d *Dispatcher, serviceName, procedureName string, req Req) (*Subscription[Item], error) {
	payload, err := river.EncodeOk(req)
	if err != nil {
		return nil, err
	}
	st, err := d.sess.OpenStream(stream.Subscription, serviceName, procedureName, payload)
	if err != nil {
		return nil, err
	}

	sub := &Subscription[Item]{stream: st, items: make(chan Result[Item], stream.Subscription.Capacity())}
	go func() {
		defer close(sub.items)
		for f := range st.Inbound() {
			decoded, err := river.Decode(f.Payload)
			if err != nil {
				sub.items <- errResult[Item](&river.ProtoError{Code: river.CodeProtocolViolation, Message: err.Error()})
				return
			}
			if decoded.Close {
				return
			}
			if !decoded.OK {
				protoErr, err := river.DecodeProtoError(decoded.Payload)
				if err != nil {
					sub.items <- errResult[Item](&river.ProtoError{Code: river.CodeProtocolViolation, Message: err.Error()})
					return
				}
				sub.items <- errResult[Item](protoErr)
				if f.ControlFlags.Has(frame.StreamClosed) {
					return
				}
				continue
			}
			var v Item
			if err := river.DecodeInto(decoded.Payload, &v); err != nil {
				sub.items <- errResult[Item](&river.ProtoError{Code: river.CodeProtocolViolation, Message: err.Error()})
				return
			}
			sub.items <- ok(v)
		}
		// The inbound queue closed with no CLOSE payload or final error:
		// the session tore down under the subscription.
		sub.items <- errResult[Item](&river.ProtoError{Code: river.CodeUnexpectedDisconnect, Message: "session closed before subscription ended"})
	}()
	return sub, nil
}

// Upload is the caller's handle on an "upload" shape stream: send zero or
// more chunks, then Finish to get the handler's single final result.
type Upload[Chunk, Resp any] struct {
	stream *stream.Stream
	sess   *rsession.Session
}

// StartUpload opens an upload stream for serviceName/procedureName.
func StartUpload[Chunk, Resp any](d *Dispatcher, serviceName, procedureName string) (*Upload[Chunk, Resp], error) {
	st, err := d.sess.OpenStream(stream.Upload, serviceName, procedureName, nil)
	if err != nil {
		return nil, err
	}
	return &Upload[Chunk, Resp]{stream: st, sess: d.sess}, nil
}

// Send writes one chunk.
func (u *Upload[Chunk, Resp]) Send(chunk Chunk) error {
	payload, err := river.EncodeOk(chunk)
	if err != nil {
		return err
	}
	return u.stream.Send(&frame.Frame{Payload: payload})
}

// Finish marks end-of-input and waits for the handler's final result.
func (u *Upload[Chunk, Resp]) Finish(ctx context.Context) Result[Resp] {
	if err := u.sess.CloseStream(u.stream, river.EncodeClose()); err != nil {
		return errResult[Resp](transportErr(err))
	}
	select {
	case f, open := <-u.stream.Inbound():
		if !open {
			return errResult[Resp](&river.ProtoError{Code: river.CodeUnexpectedDisconnect, Message: "session closed before upload result arrived"})
		}
		return decodeResult[Resp](f)
	case <-ctx.Done():
		return errResult[Resp](&river.ProtoError{Code: river.CodeStreamClosed, Message: ctx.Err().Error()})
	case <-u.sess.Done():
		return errResult[Resp](sessionDeadErr(u.sess))
	}
}

// Stream is the caller's handle on a full "bidi" shape: send and receive
// concurrently on the same stream.
type Stream[Send, Recv any] struct {
	stream *stream.Stream
	sess   *rsession.Session
}

// OpenStream opens a bidi stream for serviceName/procedureName.
func OpenStream[Send, Recv any](d *Dispatcher, serviceName, procedureName string) (*Stream[Send, Recv], error) {
	st, err := d.sess.OpenStream(stream.Bidi, serviceName, procedureName, nil)
	if err != nil {
		return nil, err
	}
	return &Stream[Send, Recv]{stream: st, sess: d.sess}, nil
}

// Send writes one value to the peer.
func (s *Stream[Send, Recv]) Send(v Send) error {
	payload, err := river.EncodeOk(v)
	if err != nil {
		return err
	}
	return s.stream.Send(&frame.Frame{Payload: payload})
}

// Recv blocks for the next value from the peer, or reports open=false
// once the peer has finished sending.
func (s *Stream[Send, Recv]) Recv() (result Result[Recv], open bool) {
	f, open := <-s.stream.Inbound()
	if !open {
		return Result[Recv]{}, false
	}
	decoded, err := river.Decode(f.Payload)
	if err != nil {
		return errResult[Recv](&river.ProtoError{Code: river.CodeProtocolViolation, Message: err.Error()}), true
	}
	if decoded.Close {
		return Result[Recv]{}, false
	}
	if !decoded.OK {
		protoErr, err := river.DecodeProtoError(decoded.Payload)
		if err != nil {
			return errResult[Recv](&river.ProtoError{Code: river.CodeProtocolViolation, Message: err.Error()}), true
		}
		return errResult[Recv](protoErr), true
	}
	var v Recv
	if err := river.DecodeInto(decoded.Payload, &v); err != nil {
		return errResult[Recv](&river.ProtoError{Code: river.CodeProtocolViolation, Message: err.Error()}), true
	}
	return ok(v), true
}

// CloseSend signals end-of-input on this side of the stream.
func (s *Stream[Send, Recv]) CloseSend() error {
	return s.sess.CloseStream(s.stream, river.EncodeClose())
}
