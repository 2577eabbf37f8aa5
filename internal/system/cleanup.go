package system

import (
	"time"

	coresys "github.com/l1jgo/netsync/internal/core/system"
	"github.com/l1jgo/netsync/internal/world"
	"go.uber.org/zap"
)

// CleanupSystem finalizes host-mode pending destroys, then flushes the
// deferred entity destruction queue at tick end. Phase 6 (Cleanup).
type CleanupSystem struct {
	world   *world.State
	despawn *DespawnSystem
	log     *zap.Logger
}

func NewCleanupSystem(ws *world.State, despawn *DespawnSystem, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{world: ws, despawn: despawn, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	if s.world.PendingDestroyCount() > 0 {
		n := s.despawn.FinalizePending()
		s.log.Debug("待銷毀物件已完成", zap.Int("count", n))
	}
	s.world.FlushDestroyed()
}
