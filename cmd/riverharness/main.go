// Command riverharness is the reference test harness of spec §6: it reads
// newline-delimited JSON actions from stdin and writes newline-delimited
// result lines to stdout, driving a River client against either an
// embedded in-process server (the default, for self-contained scenario
// testing) or a standalone riverserver reachable over WebSocket (when
// RIVER_SERVER is set).
package main

import (
	"fmt"
	"os"

	"github.com/gorilla/websocket"

	"github.com/riverrpc/river"
	"github.com/riverrpc/river/client"
	"github.com/riverrpc/river/cmd/riverharness/procedures"
	"github.com/riverrpc/river/internal/rsession"
	"github.com/riverrpc/river/server"
	"github.com/riverrpc/river/transport"
	"github.com/riverrpc/river/transport/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "riverharness:", err)
		os.Exit(1)
	}
}

func run() error {
	env := loadEnv()

	clientOpts := rsession.Options{
		InstanceID:          env.clientTransportID,
		HeartbeatInterval:   env.heartbeatInterval,
		HeartbeatsUntilDead: env.heartbeatsUntilDead,
		DisconnectGrace:     env.disconnectGrace,
	}

	d, err := dial(env, clientOpts)
	if err != nil {
		return err
	}
	defer d.Close()

	h := newHarness(d)
	return h.run(os.Stdin, os.Stdout)
}

// dial connects to a remote riverserver over WebSocket when RIVER_SERVER
// is set, or stands up an embedded in-process server joined by a
// transport.Pipe otherwise.
func dial(env envConfig, clientOpts rsession.Options) (*client.Dispatcher, error) {
	if env.riverServer != "" {
		url := fmt.Sprintf("ws://%s:%s/", env.riverServer, env.port)
		dialWS := func() (transport.Conn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return nil, river.ErrDial{Inner: err, Context: river.DialContext{Addr: url}}
			}
			return ws.New(conn), nil
		}
		conn, err := dialWS()
		if err != nil {
			return nil, err
		}
		d, err := client.Dial(conn, clientOpts)
		if err != nil {
			return nil, err
		}
		client.Watch(d, dialWS, nil)
		return d, nil
	}

	a, b := transport.NewPipePair()

	serverOpts := rsession.Options{
		InstanceID:          env.serverTransportID,
		HeartbeatInterval:   env.heartbeatInterval,
		HeartbeatsUntilDead: env.heartbeatsUntilDead,
		DisconnectGrace:     env.disconnectGrace,
	}
	srv := server.New(serverOpts)
	procedures.RegisterAll(srv)

	serveErr := make(chan error, 1)
	go func() {
		_, err := srv.Serve(b)
		serveErr <- err
	}()

	c, err := client.Dial(a, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("embedded server: %w", <-serveErr)
	}
	return c, nil
}
