// Package ws adapts a github.com/gorilla/websocket connection to River's
// transport.Conn interface. WebSocket is the conventional byte-connection
// provider named in protocol specification §1/§6; grounded on
// other_examples' mrsVelena-taskcluster wsmux session, which multiplexes
// streams over exactly this kind of connection the same way River does.
package ws

import (
	"github.com/gorilla/websocket"

	"github.com/riverrpc/river/transport"
)

// Conn adapts *websocket.Conn to transport.Conn. Each River frame is sent
// and received as one binary WebSocket message, so no additional
// length-delimiting is required.
type Conn struct {
	ws *websocket.Conn
}

func New(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) Send(msg []byte) error {
	return c.ws.WriteMessage(websocket.BinaryMessage, msg)
}

func (c *Conn) Recv() ([]byte, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, normalizeCloseError(err)
		}
		if msgType != websocket.BinaryMessage {
			// River frames are always binary; ignore stray text/ping/pong
			// control traffic the gorilla library doesn't already swallow.
			continue
		}
		return data, nil
	}
}

func (c *Conn) Close() error {
	return c.ws.Close()
}

var _ transport.Conn = (*Conn)(nil)
