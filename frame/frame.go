// Package frame defines River's wire frame and the codec that translates
// between in-memory frame records and a self-describing JSON encoding (one
// JSON object per frame; there is no binary encoding), per the data model
// in the protocol specification §3-4.1.
package frame

import "encoding/json"

// ControlFlags is a bitset carried on every frame.
type ControlFlags uint8

const (
	// ACK marks a frame that carries no stream payload, only an
	// acknowledgement (a heartbeat, typically).
	ACK ControlFlags = 1 << 0
	// StreamOpen marks the first frame of a logical stream.
	StreamOpen ControlFlags = 1 << 1
	// StreamClosed marks the last frame a sender will emit for a stream.
	StreamClosed ControlFlags = 1 << 2

	knownFlags = ACK | StreamOpen | StreamClosed
)

func (f ControlFlags) Has(bit ControlFlags) bool { return f&bit != 0 }

func (f ControlFlags) Valid() bool { return f&^knownFlags == 0 }

// Frame is the unit exchanged on the wire, per spec §3.
type Frame struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`

	Seq uint64 `json:"seq"`
	Ack uint64 `json:"ack"`

	StreamID string `json:"streamId,omitempty"`

	// ServiceName and ProcedureName are present only on stream-opening
	// frames (ControlFlags.Has(StreamOpen)).
	ServiceName   string `json:"serviceName,omitempty"`
	ProcedureName string `json:"procedureName,omitempty"`

	ControlFlags ControlFlags `json:"controlFlags"`

	// Payload carries the structured request/response/control value. It
	// is kept as raw bytes at this layer; callers above the codec decode
	// it according to the shape they expect (handshake, close sentinel,
	// or an application Ok/Err envelope).
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsUnary reports whether this single frame denotes a complete unary
// request/response (invariant 3 in spec §3).
func (f *Frame) IsUnary() bool {
	return f.ControlFlags.Has(StreamOpen) && f.ControlFlags.Has(StreamClosed)
}

// Handshake payload shapes, per spec §3.
type HandshakeRequest struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocolVersion"`
	InstanceID      string `json:"instanceId"`
}

const HandshakeRequestType = "HANDSHAKE_REQ"

type HandshakeStatus struct {
	OK         bool   `json:"ok"`
	InstanceID string `json:"instanceId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type HandshakeResponse struct {
	Type   string          `json:"type"`
	Status HandshakeStatus `json:"status"`
}

const HandshakeResponseType = "HANDSHAKE_RESP"

// CloseSentinel is the payload carried on a STREAM_CLOSED frame emitted by
// a streamed shape to mark end-of-input/end-of-output.
type CloseSentinel struct {
	Type string `json:"type"`
}

const CloseSentinelType = "CLOSE"

// ProtocolV1 does not support session resumption. ProtocolV2 does. River
// implements v2; see SPEC_FULL.md's "handshake version" decision.
const (
	ProtocolV1 = "v1"
	ProtocolV2 = "v2"
)
