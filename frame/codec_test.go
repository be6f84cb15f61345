package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		f    Frame
	}{
		{
			name: "heartbeat ack",
			f: Frame{
				ID: "f1", From: "client-1", To: "server-1",
				Seq: 5, Ack: 3,
				ControlFlags: ACK,
			},
		},
		{
			name: "unary open+closed",
			f: Frame{
				ID: "f2", From: "client-1", To: "server-1",
				Seq: 0, Ack: 0,
				StreamID:      "s1",
				ServiceName:   "kv",
				ProcedureName: "set",
				ControlFlags:  StreamOpen | StreamClosed,
				Payload:       MustMarshal(map[string]any{"k": "a", "v": 42}),
			},
		},
		{
			name: "data frame",
			f: Frame{
				ID: "f3", From: "server-1", To: "client-1",
				Seq: 9, Ack: 1,
				StreamID:     "s1",
				ControlFlags: 0,
				Payload:      MustMarshal("a"),
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b1, err := Encode(&c.f)
			require.NoError(t, err)

			decoded, err := Decode(b1)
			require.NoError(t, err)
			require.Equal(t, c.f, *decoded)

			b2, err := Encode(decoded)
			require.NoError(t, err)
			require.Equal(t, b1, b2, "encoding must be deterministic")
		})
	}
}

func TestEncodeRejectsUnknownFlags(t *testing.T) {
	f := Frame{ID: "f1", From: "a", To: "b", ControlFlags: 0x40}
	_, err := Encode(&f)
	require.Error(t, err)
	var invalid *ControlFrameInvalid
	require.ErrorAs(t, err, &invalid)
}

func TestDecodeMalformedBytes(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)
	var decodeErr *FrameDecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestEncodeMissingServiceNameOnOpen(t *testing.T) {
	f := Frame{ID: "f1", From: "a", To: "b", StreamID: "s1", ControlFlags: StreamOpen}
	_, err := Encode(&f)
	require.Error(t, err)
}

func TestHandshakeRoundTrip(t *testing.T) {
	req := HandshakeRequest{Type: HandshakeRequestType, ProtocolVersion: ProtocolV2, InstanceID: "inst-1"}
	out, err := DecodeHandshakeRequest(MustMarshal(req))
	require.NoError(t, err)
	require.Equal(t, req, *out)

	resp := HandshakeResponse{Type: HandshakeResponseType, Status: HandshakeStatus{OK: true, InstanceID: "inst-1"}}
	outResp, err := DecodeHandshakeResponse(MustMarshal(resp))
	require.NoError(t, err)
	require.Equal(t, resp, *outResp)
}
