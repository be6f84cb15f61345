package frame

import (
	"encoding/json"
	"fmt"
)

// FrameDecodeError wraps a failure to parse the bytes of a frame off the
// wire. It is fatal to the connection: the codec cannot resynchronize on a
// length-delimited stream once a frame fails to parse.
type FrameDecodeError struct {
	Err error
}

func (e *FrameDecodeError) Error() string { return fmt.Sprintf("frame decode: %v", e.Err) }
func (e *FrameDecodeError) Unwrap() error { return e.Err }

// ControlFrameInvalid is returned when a frame's control flags are
// unrecognized, or a control frame's structured payload (handshake, close)
// fails to validate. Also fatal to the connection.
type ControlFrameInvalid struct {
	Reason string
}

func (e *ControlFrameInvalid) Error() string { return "invalid control frame: " + e.Reason }

// Encode serializes f deterministically: the same frame always produces
// the same bytes, since json.Marshal of a struct walks fields in
// declaration order and we never marshal a map at the top level.
func Encode(f *Frame) ([]byte, error) {
	if !f.ControlFlags.Valid() {
		return nil, &ControlFrameInvalid{Reason: fmt.Sprintf("unknown control bits: %#x", uint8(f.ControlFlags))}
	}
	if f.ID == "" {
		return nil, &ControlFrameInvalid{Reason: "missing frame id"}
	}
	if f.ControlFlags.Has(StreamOpen) && f.ServiceName == "" {
		return nil, &ControlFrameInvalid{Reason: "STREAM_OPEN frame missing serviceName"}
	}
	return json.Marshal(f)
}

// Decode parses the bytes of one frame as produced by Encode.
func Decode(b []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, &FrameDecodeError{Err: err}
	}
	if !f.ControlFlags.Valid() {
		return nil, &ControlFrameInvalid{Reason: fmt.Sprintf("unknown control bits: %#x", uint8(f.ControlFlags))}
	}
	if f.ID == "" {
		return nil, &ControlFrameInvalid{Reason: "missing frame id"}
	}
	if f.ControlFlags.Has(StreamOpen) && f.ServiceName == "" {
		return nil, &ControlFrameInvalid{Reason: "STREAM_OPEN frame missing serviceName"}
	}
	return &f, nil
}

// DecodeHandshakeRequest validates and decodes a handshake request payload.
func DecodeHandshakeRequest(payload json.RawMessage) (*HandshakeRequest, error) {
	var req HandshakeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ControlFrameInvalid{Reason: "malformed handshake request: " + err.Error()}
	}
	if req.Type != HandshakeRequestType {
		return nil, &ControlFrameInvalid{Reason: "unexpected handshake request type " + req.Type}
	}
	if req.ProtocolVersion == "" || req.InstanceID == "" {
		return nil, &ControlFrameInvalid{Reason: "handshake request missing protocolVersion or instanceId"}
	}
	if req.ProtocolVersion != ProtocolV2 {
		return nil, &ControlFrameInvalid{Reason: "unsupported protocolVersion " + req.ProtocolVersion}
	}
	return &req, nil
}

// DecodeHandshakeResponse validates and decodes a handshake response payload.
func DecodeHandshakeResponse(payload json.RawMessage) (*HandshakeResponse, error) {
	var resp HandshakeResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, &ControlFrameInvalid{Reason: "malformed handshake response: " + err.Error()}
	}
	if resp.Type != HandshakeResponseType {
		return nil, &ControlFrameInvalid{Reason: "unexpected handshake response type " + resp.Type}
	}
	return &resp, nil
}

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("frame: marshal of internal value failed: %v", err))
	}
	return b
}
