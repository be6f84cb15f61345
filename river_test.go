package river_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riverrpc/river"
	"github.com/riverrpc/river/client"
	"github.com/riverrpc/river/internal/rsession"
	"github.com/riverrpc/river/internal/testcontext"
	"github.com/riverrpc/river/server"
	"github.com/riverrpc/river/transport"
)

func testSessionOpts(instanceID string) rsession.Options {
	return rsession.Options{
		InstanceID:          instanceID,
		HeartbeatInterval:   20 * time.Millisecond,
		HeartbeatsUntilDead: 3,
		DisconnectGrace:     100 * time.Millisecond,
	}
}

func dialPair(t *testing.T) (*client.Dispatcher, *server.Dispatcher) {
	t.Helper()
	a, b := transport.NewPipePair()

	srv := server.New(testSessionOpts("it-server"))

	type result struct {
		d   *client.Dispatcher
		err error
	}
	ch := make(chan result, 1)
	go func() {
		_, err := srv.Serve(b)
		if err != nil {
			ch <- result{nil, err}
		}
	}()

	c, err := client.Dial(a, testSessionOpts("it-client"))
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		_ = srv.Close(context.Background())
	})
	return c, srv
}

type addReq struct {
	A, B int
}

func TestUnaryRoundTrip(t *testing.T) {
	c, srv := dialPair(t)
	server.RegisterUnary(srv, "math", "add", func(_ context.Context, req addReq) (int, error) {
		return req.A + req.B, nil
	})

	ctx := testcontext.ForTB(t)
	res := client.Call[addReq, int](ctx, c, "math", "add", addReq{A: 2, B: 3})
	require.True(t, res.OK())
	require.Equal(t, 5, res.Value)
}

func TestUnaryUnknownProcedureIsRejected(t *testing.T) {
	c, _ := dialPair(t)

	ctx := testcontext.ForTB(t)
	res := client.Call[addReq, int](ctx, c, "math", "missing", addReq{A: 1, B: 1})
	require.False(t, res.OK())
	require.Equal(t, river.CodeNotImplemented, res.Err.Code)
}

func TestSubscriptionDeliversThenLiveUpdates(t *testing.T) {
	c, srv := dialPair(t)

	type watchReq struct{ K string }
	values := make(chan int, 1)
	values <- 1
	server.RegisterSubscription(srv, "kv", "watch", func(ctx context.Context, req watchReq, emit func(int) error) error {
		for {
			select {
			case v := <-values:
				if err := emit(v); err != nil {
					return err
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	sub, err := client.Subscribe[watchReq, int](c, "kv", "watch", watchReq{K: "x"})
	require.NoError(t, err)

	select {
	case item := <-sub.Items():
		require.True(t, item.OK())
		require.Equal(t, 1, item.Value)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial value")
	}

	values <- 2
	select {
	case item := <-sub.Items():
		require.True(t, item.OK())
		require.Equal(t, 2, item.Value)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live update")
	}
}

func TestUploadConcatenatesChunks(t *testing.T) {
	c, srv := dialPair(t)

	type chunk struct{ Part string }
	server.RegisterUpload(srv, "text", "concat", func(_ context.Context, chunks <-chan chunk) (string, error) {
		out := ""
		for ch := range chunks {
			out += ch.Part
		}
		return out, nil
	})

	up, err := client.StartUpload[chunk, string](c, "text", "concat")
	require.NoError(t, err)
	require.NoError(t, up.Send(chunk{Part: "foo"}))
	require.NoError(t, up.Send(chunk{Part: "bar"}))

	ctx := testcontext.ForTB(t)
	res := up.Finish(ctx)
	require.True(t, res.OK())
	require.Equal(t, "foobar", res.Value)
}

func TestBidiStreamEchoesInOrder(t *testing.T) {
	c, srv := dialPair(t)

	server.RegisterStream(srv, "repeat", "echo", func(_ context.Context, recv <-chan string, send func(string) error) error {
		for v := range recv {
			if err := send(v); err != nil {
				return err
			}
		}
		return nil
	})

	st, err := client.OpenStream[string, string](c, "repeat", "echo")
	require.NoError(t, err)

	require.NoError(t, st.Send("one"))
	res, open := st.Recv()
	require.True(t, open)
	require.True(t, res.OK())
	require.Equal(t, "one", res.Value)

	require.NoError(t, st.Send("two"))
	res, open = st.Recv()
	require.True(t, open)
	require.True(t, res.OK())
	require.Equal(t, "two", res.Value)

	require.NoError(t, st.CloseSend())
	_, open = st.Recv()
	require.False(t, open)
}
