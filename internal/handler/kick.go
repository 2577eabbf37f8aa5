package handler

import (
	"github.com/l1jgo/netsync/internal/world"
	"go.uber.org/zap"
)

type flusher interface {
	FlushOutput()
}

// flush pushes buffered output to the writer before a close, so the last
// message (S_REJECT) is not dropped.
func flush(s world.Sender) {
	if f, ok := s.(flusher); ok {
		f.FlushOutput()
	}
}

// Kick terminates a connection for a protocol violation: the violation is
// recorded, S_REJECT is sent and the transport is closed. Cleanup of owned
// objects happens when InputSystem sees the closed session.
func Kick(deps *Deps, c *world.Connection, reason string) {
	if c.Kicked() {
		return
	}
	deps.Log.Warn("協定違規，斷開連線",
		zap.Uint64("conn", c.ID),
		zap.String("ip", c.Addr),
		zap.String("reason", reason),
		zap.Uint32("tick", deps.World.Clock.Tick()))
	if deps.Violations != nil {
		deps.Violations.Record(c, reason)
	}
	SendReject(c, reason)
	flush(c.Sender)
	c.Kick()
}
