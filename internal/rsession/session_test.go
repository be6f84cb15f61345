package rsession

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riverrpc/river"
	"github.com/riverrpc/river/frame"
	"github.com/riverrpc/river/internal/testutil"
	"github.com/riverrpc/river/stream"
	"github.com/riverrpc/river/transport"
)

func testOpts(instanceID string) Options {
	return Options{
		InstanceID:          instanceID,
		HeartbeatInterval:   20 * time.Millisecond,
		HeartbeatsUntilDead: 3,
		DisconnectGrace:     100 * time.Millisecond,
	}
}

func handshakePair(t *testing.T, onOpen OpenHandler) (client, server *Session) {
	t.Helper()
	a, b := transport.NewPipePair()

	type result struct {
		s   *Session
		err error
	}
	serverCh := make(chan result, 1)
	go func() {
		s, err := NewServer(b, testOpts("server-1"), onOpen)
		serverCh <- result{s, err}
	}()

	c, err := NewClient(a, testOpts("client-1"))
	require.NoError(t, err)

	r := <-serverCh
	require.NoError(t, r.err)
	return c, r.s
}

func TestHandshakeEstablishesRemoteInstanceID(t *testing.T) {
	client, server := handshakePair(t, nil)
	t.Cleanup(func() { client.Close(); server.Close() })

	require.Equal(t, "server-1", client.RemoteInstanceID())
	require.Equal(t, "client-1", server.RemoteInstanceID())
}

func TestUnknownStreamOpenWithoutHandlerIsRejected(t *testing.T) {
	client, server := handshakePair(t, nil)
	t.Cleanup(func() { client.Close(); server.Close() })

	st, err := client.OpenStream(stream.Unary, "kv", "get", nil)
	require.NoError(t, err)

	select {
	case f := <-st.Inbound():
		require.True(t, f.ControlFlags.Has(frame.StreamClosed))
		decoded, err := river.Decode(f.Payload)
		require.NoError(t, err)
		require.False(t, decoded.OK)
		protoErr, err := river.DecodeProtoError(decoded.Payload)
		require.NoError(t, err)
		require.Equal(t, river.CodeNotImplemented, protoErr.Code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for rejection frame")
	}
}

func TestOpenHandlerAdoptsStreamAndDeliversOpenFrame(t *testing.T) {
	adopted := make(chan *stream.Stream, 1)
	reached := testutil.NewSyncPoint()
	onOpen := func(s *Session, streamID string, open *frame.Frame) {
		st, err := s.AdoptStream(streamID, stream.Unary, open)
		require.NoError(t, err)
		adopted <- st
		reached.Signal()
	}
	client, server := handshakePair(t, onOpen)
	t.Cleanup(func() { client.Close(); server.Close() })

	_, err := client.OpenStream(stream.Unary, "kv", "get", nil)
	require.NoError(t, err)

	reached.Wait(t)
	st := <-adopted
	select {
	case f := <-st.Inbound():
		require.Equal(t, "kv", f.ServiceName)
		require.True(t, f.ControlFlags.Has(frame.StreamOpen))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivered open frame")
	}
}

func TestCloseTearsDownAllStreams(t *testing.T) {
	adopted := make(chan *stream.Stream, 1)
	onOpen := func(s *Session, streamID string, open *frame.Frame) {
		st, err := s.AdoptStream(streamID, stream.Subscription, open)
		require.NoError(t, err)
		adopted <- st
	}
	client, server := handshakePair(t, onOpen)

	_, err := client.OpenStream(stream.Subscription, "kv", "watch", nil)
	require.NoError(t, err)

	st := <-adopted
	<-st.Inbound()

	require.NoError(t, server.Close())

	select {
	case _, ok := <-st.Inbound():
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stream teardown")
	}
	require.NoError(t, client.Close())
}

func TestHeartbeatKeepsSessionAlive(t *testing.T) {
	client, server := handshakePair(t, nil)
	t.Cleanup(func() { client.Close(); server.Close() })

	select {
	case <-client.Done():
		t.Fatal("client session died despite active heartbeat")
	case <-time.After(150 * time.Millisecond):
	}
}
