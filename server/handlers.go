package server

import (
	"context"

	"github.com/riverrpc/river"
	"github.com/riverrpc/river/frame"
	"github.com/riverrpc/river/internal/rsession"
	"github.com/riverrpc/river/stream"
)

// handlerContext derives a context.Context that cancels when the owning
// session tears down, so a long-running subscription/upload/stream
// handler observes server shutdown or peer disconnect without having to
// poll anything itself.
func handlerContext(s *rsession.Session) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-s.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func asProtoError(err error) *river.ProtoError {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*river.ProtoError); ok {
		return pe
	}
	return &river.ProtoError{Code: river.CodeUncaughtException, Message: err.Error()}
}

func encodeHandlerResult(resp any, err error) []byte {
	if pe := asProtoError(err); pe != nil {
		payload, encErr := river.EncodeErr(pe)
		if encErr != nil {
			return river.EncodeClose()
		}
		return payload
	}
	payload, encErr := river.EncodeOk(resp)
	if encErr != nil {
		errPayload, _ := river.EncodeErr(&river.ProtoError{Code: river.CodeUncaughtException, Message: encErr.Error()})
		return errPayload
	}
	return payload
}

// UnaryHandler answers a single request with a single result (spec §4.5's
// "rpc" shape).
type UnaryHandler[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// RegisterUnary wires h to serviceName/procedureName for unary calls.
func RegisterUnary[Req, Resp any](d *Dispatcher, serviceName, procedureName string, h UnaryHandler[Req, Resp]) {
	register(d, serviceName, procedureName, stream.Unary, func(s *rsession.Session, streamID string, open *frame.Frame) {
		st, err := s.AdoptStream(streamID, stream.Unary, open)
		if err != nil {
			return
		}
		d.runHandler(func() {
			ctx, cancel := handlerContext(s)
			defer cancel()

			req, decErr := decodeRequest[Req](open.Payload)
			var resp Resp
			var herr error
			if decErr != nil {
				herr = &river.ProtoError{Code: river.CodeProtocolViolation, Message: decErr.Error()}
			} else {
				resp, herr = h(ctx, req)
			}
			_ = s.CloseStream(st, encodeHandlerResult(resp, herr))
		})
	})
}

func decodeRequest[Req any](payload []byte) (Req, error) {
	var req Req
	decoded, err := river.Decode(payload)
	if err != nil {
		return req, err
	}
	if decoded.Close {
		return req, nil
	}
	err = river.DecodeInto(decoded.Payload, &req)
	return req, err
}

// SubscriptionHandler streams zero or more items to the caller via emit,
// then returns; its return value (if non-nil) becomes the stream's
// terminal error instead of a clean close.
type SubscriptionHandler[Req, Item any] func(ctx context.Context, req Req, emit func(Item) error) error

// RegisterSubscription wires h to serviceName/procedureName for
// subscription calls.
func RegisterSubscription[Req, Item any](d *Dispatcher, serviceName, procedureName string, h SubscriptionHandler[Req, Item]) {
	register(d, serviceName, procedureName, stream.Subscription, func(s *rsession.Session, streamID string, open *frame.Frame) {
		st, err := s.AdoptStream(streamID, stream.Subscription, open)
		if err != nil {
			return
		}
		d.runHandler(func() {
			ctx, cancel := handlerContext(s)
			defer cancel()

			req, decErr := decodeRequest[Req](open.Payload)
			if decErr != nil {
				_ = s.CloseStream(st, encodeHandlerResult(nil, &river.ProtoError{Code: river.CodeProtocolViolation, Message: decErr.Error()}))
				return
			}

			emit := func(item Item) error {
				payload, err := river.EncodeOk(item)
				if err != nil {
					return err
				}
				return st.Send(&frame.Frame{Payload: payload})
			}
			herr := h(ctx, req, emit)
			if herr != nil {
				_ = s.CloseStream(st, encodeHandlerResult(nil, herr))
				return
			}
			_ = s.CloseStream(st, river.EncodeClose())
		})
	})
}

// UploadHandler consumes a stream of chunks and produces a single result
// once the caller signals end-of-input.
type UploadHandler[Chunk, Resp any] func(ctx context.Context, chunks <-chan Chunk) (Resp, error)

// RegisterUpload wires h to serviceName/procedureName for upload calls.
func RegisterUpload[Chunk, Resp any](d *Dispatcher, serviceName, procedureName string, h UploadHandler[Chunk, Resp]) {
	register(d, serviceName, procedureName, stream.Upload, func(s *rsession.Session, streamID string, open *frame.Frame) {
		st, err := s.AdoptStream(streamID, stream.Upload, open)
		if err != nil {
			return
		}
		d.runHandler(func() {
			ctx, cancel := handlerContext(s)
			defer cancel()

			chunks := make(chan Chunk, stream.Upload.Capacity())
			var decodeErr error
			go func() {
				defer close(chunks)
				for f := range st.Inbound() {
					if f.ControlFlags.Has(frame.StreamOpen) && len(f.Payload) == 0 {
						// The opening STREAM_OPEN frame itself, carrying no
						// chunk; upload has no init value to decode here.
						continue
					}
					decoded, err := river.Decode(f.Payload)
					if err != nil {
						decodeErr = err
						return
					}
					if decoded.Close {
						return
					}
					var c Chunk
					if err := river.DecodeInto(decoded.Payload, &c); err != nil {
						decodeErr = err
						return
					}
					chunks <- c
				}
			}()

			resp, herr := h(ctx, chunks)
			if decodeErr != nil && herr == nil {
				herr = &river.ProtoError{Code: river.CodeProtocolViolation, Message: decodeErr.Error()}
			}
			_ = s.CloseStream(st, encodeHandlerResult(resp, herr))
		})
	})
}

// StreamHandler is the full bidirectional shape: recv yields the caller's
// messages, send pushes the handler's; the handler returns when it's
// done, sending STREAM_CLOSED's close payload itself via the returned
// error (nil for clean close).
type StreamHandler[Recv, Send any] func(ctx context.Context, recv <-chan Recv, send func(Send) error) error

// RegisterStream wires h to serviceName/procedureName for bidi calls.
func RegisterStream[Recv, Send any](d *Dispatcher, serviceName, procedureName string, h StreamHandler[Recv, Send]) {
	register(d, serviceName, procedureName, stream.Bidi, func(s *rsession.Session, streamID string, open *frame.Frame) {
		st, err := s.AdoptStream(streamID, stream.Bidi, open)
		if err != nil {
			return
		}
		d.runHandler(func() {
			ctx, cancel := handlerContext(s)
			defer cancel()

			recvCh := make(chan Recv, stream.Bidi.Capacity())
			var decodeErr error
			go func() {
				defer close(recvCh)
				for f := range st.Inbound() {
					if f.ControlFlags.Has(frame.StreamOpen) && len(f.Payload) == 0 {
						// The opening STREAM_OPEN frame itself, carrying no
						// message; bidi has no init value to decode here.
						continue
					}
					decoded, err := river.Decode(f.Payload)
					if err != nil {
						decodeErr = err
						return
					}
					if decoded.Close {
						return
					}
					var v Recv
					if err := river.DecodeInto(decoded.Payload, &v); err != nil {
						decodeErr = err
						return
					}
					recvCh <- v
				}
			}()

			send := func(v Send) error {
				payload, err := river.EncodeOk(v)
				if err != nil {
					return err
				}
				return st.Send(&frame.Frame{Payload: payload})
			}

			herr := h(ctx, recvCh, send)
			if decodeErr != nil && herr == nil {
				herr = &river.ProtoError{Code: river.CodeProtocolViolation, Message: decodeErr.Error()}
			}
			if herr != nil {
				errPayload, _ := river.EncodeErr(asProtoError(herr))
				_ = s.CloseStream(st, errPayload)
				return
			}
			_ = s.CloseStream(st, river.EncodeClose())
		})
	})
}
