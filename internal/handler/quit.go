package handler

import (
	"github.com/l1jgo/netsync/internal/net/packet"
	"go.uber.org/zap"
)

// HandleQuit processes C_QUIT. Packets queued behind it are dropped; owned
// objects are cleaned up when InputSystem notices the closed session.
func HandleQuit(sess Session, _ *packet.Reader, deps *Deps) {
	deps.Log.Info("客戶端登出", zap.Uint64("session", sess.SessionID()))
	sess.SetState(packet.StateDisconnecting)
	sess.Close()
}
