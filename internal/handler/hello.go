package handler

import (
	"fmt"

	"github.com/l1jgo/netsync/internal/core/event"
	"github.com/l1jgo/netsync/internal/net/packet"
	"github.com/l1jgo/netsync/internal/world"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// HandleHello processes C_HELLO: [H protocol version][S password].
// On success the session becomes Ready, receives S_WELCOME with its
// predicted id queue, and ConnectionReady is emitted.
func HandleHello(sess Session, r *packet.Reader, deps *Deps) {
	version := r.ReadH()
	password := r.ReadS()
	if r.Err() != nil {
		rejectAndClose(sess, deps, "malformed hello")
		return
	}
	if version != packet.ProtocolVersion {
		deps.Log.Info("協定版本不符",
			zap.Uint64("session", sess.SessionID()),
			zap.Uint16("client", version),
			zap.Uint16("server", packet.ProtocolVersion))
		rejectAndClose(sess, deps, fmt.Sprintf("protocol version %d required", packet.ProtocolVersion))
		return
	}
	if hash := deps.Config.Server.PasswordHash; hash != "" {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
			deps.Log.Info("伺服器密碼錯誤", zap.Uint64("session", sess.SessionID()), zap.String("ip", sess.RemoteAddr()))
			rejectAndClose(sess, deps, "wrong password")
			return
		}
	}
	if deps.World.Connection(sess.SessionID()) != nil {
		return
	}

	c := world.NewConnection(sess.SessionID(), sess.RemoteAddr(), sess)
	c.Ready = true
	deps.World.AddConnection(c)
	sess.SetState(packet.StateReady)

	if deps.Predicted != nil {
		deps.Predicted.IssueInitialIDs(c)
	}
	SendWelcome(c)
	event.Emit(deps.Bus, event.ConnectionReady{ConnID: c.ID})

	deps.Log.Info(fmt.Sprintf("客戶端就緒  session=%d  ip=%s  預留ID=%d", c.ID, c.Addr, len(c.PredictedIDs())))
}

func rejectAndClose(sess Session, deps *Deps, reason string) {
	SendReject(sess, reason)
	flush(sess)
	sess.SetState(packet.StateDisconnecting)
	sess.Close()
}
