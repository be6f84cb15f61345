// Command riverserver runs a standalone River server over WebSocket, for
// pairing with riverharness in its networked mode (RIVER_SERVER set). It
// registers the same kv/echo/upload procedures riverharness's embedded
// server does, so the two binaries can stand in for one another.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/riverrpc/river/cmd/riverharness/procedures"
	"github.com/riverrpc/river/internal/rsession"
	"github.com/riverrpc/river/server"
	"github.com/riverrpc/river/transport/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "riverserver:", err)
		os.Exit(1)
	}
}

func run() error {
	env := loadEnv()

	d := server.New(rsession.Options{
		InstanceID:          env.serverTransportID,
		HeartbeatInterval:   env.heartbeatInterval,
		HeartbeatsUntilDead: env.heartbeatsUntilDead,
		DisconnectGrace:     env.disconnectGrace,
	})
	procedures.RegisterAll(d)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if _, err := d.Serve(ws.New(conn)); err != nil {
			conn.Close()
		}
	})

	httpSrv := &http.Server{Addr: ":" + env.port, Handler: mux}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), env.disconnectGrace)
		defer cancel()
		_ = d.Close(ctx)
		_ = httpSrv.Shutdown(ctx)
	}()

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
