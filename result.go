package river

import "encoding/json"

// wireEnvelope is the tagged sum every non-control frame's payload takes
// on the wire: either an Ok result, an Err result, or (for streamed
// shapes) a Close marker. This realizes the redesign note in spec §9:
// "re-architect [the source's untyped payloads] as a tagged sum over
// {Ok(T), Err(E), Close}".
type wireEnvelope struct {
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Type    string          `json:"type,omitempty"`
}

const closeType = "CLOSE"

func ok(b bool) *bool { return &b }

// EncodeOk wraps a successful result payload for the wire.
func EncodeOk(v any) (json.RawMessage, error) {
	p, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{OK: ok(true), Payload: p})
}

// EncodeErr wraps a failed result payload for the wire.
func EncodeErr(e *ProtoError) (json.RawMessage, error) {
	p, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{OK: ok(false), Payload: p})
}

// EncodeClose produces the {"type":"CLOSE"} sentinel marking end-of-input
// or end-of-output for a streamed shape.
func EncodeClose() json.RawMessage {
	b, _ := json.Marshal(wireEnvelope{Type: closeType})
	return b
}

// Decoded is the result of parsing a data frame's payload.
type Decoded struct {
	Close   bool
	OK      bool
	Payload json.RawMessage
}

// Decode parses a data frame's payload into its Ok/Err/Close shape.
func Decode(raw json.RawMessage) (Decoded, error) {
	var env wireEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Decoded{}, err
	}
	if env.Type == closeType {
		return Decoded{Close: true}, nil
	}
	if env.OK == nil {
		return Decoded{}, &ProtoError{Code: CodeProtocolViolation, Message: "payload missing ok/type tag"}
	}
	return Decoded{OK: *env.OK, Payload: env.Payload}, nil
}

// DecodeInto decodes a successful Ok payload into v.
func DecodeInto(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

// DecodeProtoError decodes a failed payload into a *ProtoError.
func DecodeProtoError(raw json.RawMessage) (*ProtoError, error) {
	var e ProtoError
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
