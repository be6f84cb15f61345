package transport

import (
	"context"
	"math/rand"
	"strconv"

	"github.com/riverrpc/river/log"
)

// Logged wraps a Conn with a logger tagged by a short random connection id,
// adapted from the teacher's internal/tunnel/netx.LoggedConn (which does
// the same for a net.Conn using *slog.Logger); here the wrapped value is
// River's own message-oriented Conn and the logger is River's log.Logger
// seam rather than slog directly.
type Logged struct {
	Conn
	id     string
	logger log.Logger
	ctx    []any
}

func NewLogged(parent log.Logger, conn Conn, ctx ...any) *Logged {
	id := strconv.FormatUint(rand.Uint64(), 16)
	return &Logged{Conn: conn, id: id, logger: parent, ctx: ctx}
}

func (c *Logged) ID() string { return c.id }

func (c *Logged) log(level log.LogLevel, msg string, extra ...any) {
	data := make(map[string]any, len(c.ctx)/2+len(extra)/2+1)
	data["conn"] = c.id
	for i := 0; i+1 < len(c.ctx); i += 2 {
		if k, ok := c.ctx[i].(string); ok {
			data[k] = c.ctx[i+1]
		}
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if k, ok := extra[i].(string); ok {
			data[k] = extra[i+1]
		}
	}
	c.logger.Log(context.Background(), level, msg, data)
}

func (c *Logged) Send(msg []byte) error {
	err := c.Conn.Send(msg)
	if err != nil {
		c.log(log.LogLevelDebug, "send failed", "err", err)
	}
	return err
}

func (c *Logged) Recv() ([]byte, error) {
	msg, err := c.Conn.Recv()
	if err != nil {
		c.log(log.LogLevelDebug, "recv failed", "err", err)
	}
	return msg, err
}

func (c *Logged) Close() error {
	err := c.Conn.Close()
	c.log(log.LogLevelDebug, "close", "err", err)
	return err
}
