package ws

import (
	"errors"
	"io"

	"github.com/gorilla/websocket"
)

// normalizeCloseError maps a normal WebSocket close handshake to io.EOF,
// matching the transport.Conn contract that Recv returns io.EOF when the
// peer cleanly closes the connection.
func normalizeCloseError(err error) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return io.EOF
	}
	if errors.Is(err, io.ErrClosedPipe) {
		return io.EOF
	}
	return err
}
