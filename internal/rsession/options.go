package rsession

import (
	"context"
	"time"

	"github.com/riverrpc/river/log"
)

// Options configures a Session's handshake identity and liveness timing,
// sourced from the harness's env vars in spec §6
// (HEARTBEAT_MS/HEARTBEATS_UNTIL_DEAD/SESSION_DISCONNECT_GRACE_MS).
type Options struct {
	// InstanceID identifies this process across reconnects; it is sent in
	// the handshake request/response and used by the peer to tell a
	// resumed session apart from a brand-new one (spec §4.3).
	InstanceID string

	HeartbeatInterval   time.Duration
	HeartbeatsUntilDead int
	DisconnectGrace     time.Duration

	Logger log.Logger
}

const (
	DefaultHeartbeatInterval   = 500 * time.Millisecond
	DefaultHeartbeatsUntilDead = 2
	DefaultDisconnectGrace     = 3 * time.Second
)

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.HeartbeatsUntilDead <= 0 {
		o.HeartbeatsUntilDead = DefaultHeartbeatsUntilDead
	}
	if o.DisconnectGrace <= 0 {
		o.DisconnectGrace = DefaultDisconnectGrace
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

type noopLogger struct{}

func (noopLogger) Log(_ context.Context, _ log.LogLevel, _ string, _ map[string]interface{}) {}
