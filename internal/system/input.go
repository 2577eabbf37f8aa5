package system

import (
	"errors"
	"time"

	coresys "github.com/l1jgo/netsync/internal/core/system"
	"github.com/l1jgo/netsync/internal/handler"
	"github.com/l1jgo/netsync/internal/net"
	"github.com/l1jgo/netsync/internal/net/packet"
	"go.uber.org/zap"
)

// SessionSource hands newly accepted sessions to the game loop.
// *net.Server implements it.
type SessionSource interface {
	NewSessions() <-chan *net.Session
}

// InputSystem drains packet queues from all sessions and dispatches them
// through the packet registry. Closed sessions are torn down here so their
// objects despawn within the same tick. Phase 0 (Input).
type InputSystem struct {
	source     SessionSource
	registry   *packet.Registry
	store      *net.SessionStore
	deps       *handler.Deps
	maxPerTick int
}

func NewInputSystem(source SessionSource, registry *packet.Registry, store *net.SessionStore, deps *handler.Deps, maxPerTick int) *InputSystem {
	return &InputSystem{
		source:     source,
		registry:   registry,
		store:      store,
		deps:       deps,
		maxPerTick: maxPerTick,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	if s.source != nil {
	accept:
		for {
			select {
			case sess := <-s.source.NewSessions():
				s.store.Add(sess)
			default:
				break accept
			}
		}
	}

	// session id order keeps dispatch deterministic across ticks
	for _, sess := range s.store.Sorted() {
		if sess.IsClosed() {
			// requests sent right before the close are still honored
			s.drain(sess)
			sess.FlushOutput()
			s.disconnect(sess)
			continue
		}
		s.drain(sess)
	}

	// Early flush so replies to this phase's requests reach the writers
	// while the rest of the tick runs. OutputSystem flushes the remainder.
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

func (s *InputSystem) drain(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			err := s.registry.Dispatch(sess, sess.State(), data)
			if err == nil {
				continue
			}
			s.deps.Log.Debug("封包分派錯誤", zap.Uint64("session", sess.ID), zap.Error(err))
			if sess.State() == packet.StateDisconnecting {
				return
			}
			if errors.Is(err, packet.ErrStateNotAllowed) || errors.Is(err, packet.ErrHandlerPanic) {
				s.violation(sess, err)
				return
			}
		default:
			return
		}
	}
}

// violation kicks a welcomed connection; a session still in handshake has no
// connection to record against and is simply closed.
func (s *InputSystem) violation(sess *net.Session, err error) {
	if c := s.deps.World.Connection(sess.ID); c != nil {
		handler.Kick(s.deps, c, err.Error())
		return
	}
	sess.SetState(packet.StateDisconnecting)
	sess.Close()
}

func (s *InputSystem) disconnect(sess *net.Session) {
	if c := s.deps.World.Connection(sess.ID); c != nil && s.deps.Despawner != nil {
		s.deps.Despawner.Disconnect(c)
	}
	s.store.Remove(sess.ID)
	s.deps.Log.Info("客戶端斷線", zap.Uint64("session", sess.ID), zap.String("ip", sess.IP))
}
