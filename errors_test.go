package river

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var testError = errors.New("testing, 1 2 3!")

// Sanity check for the generic Error[C] construction/wrapping approach,
// carried over from the teacher unchanged.
func TestErrorStrategy(t *testing.T) {
	var dial error = ErrDial{Inner: testError, Context: DialContext{Addr: "peer-1"}}
	var handshake error = ErrHandshakeFailed{Inner: dial, Context: HandshakeContext{Reason: "bad version"}}

	require.True(t, errors.Is(dial, ErrDial{}))
	require.True(t, errors.Is(handshake, ErrHandshakeFailed{}))
	require.True(t, errors.Is(handshake, ErrDial{}))

	var downcastHandshake ErrHandshakeFailed
	var downcastDial ErrDial

	require.True(t, errors.As(handshake, &downcastHandshake))
	require.True(t, errors.As(handshake, &downcastDial))
	require.True(t, errors.As(dial, &downcastDial))

	require.Equal(t, "bad version", downcastHandshake.Context.Reason)
}

func TestProtoErrorMessage(t *testing.T) {
	e := &ProtoError{Code: CodeNotImplemented, Message: "kv.unknown"}
	require.Equal(t, "NOT_IMPLEMENTED: kv.unknown", e.Error())

	bare := &ProtoError{Code: CodeStreamClosed}
	require.Equal(t, "STREAM_CLOSED", bare.Error())
}
