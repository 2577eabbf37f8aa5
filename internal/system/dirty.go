package system

import (
	"time"

	coresys "github.com/l1jgo/netsync/internal/core/system"
	"github.com/l1jgo/netsync/internal/handler"
	"github.com/l1jgo/netsync/internal/world"
	"go.uber.org/zap"
)

// DirtySystem flushes replicated field changes of spawned objects to their
// observers once per tick, honoring each holder's sync interval.
// Phase 3 (PostUpdate), registered before ObserverSystem.
type DirtySystem struct {
	deps *handler.Deps
}

func NewDirtySystem(deps *handler.Deps) *DirtySystem {
	return &DirtySystem{deps: deps}
}

func (s *DirtySystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *DirtySystem) Update(_ time.Duration) {
	st := s.deps.World
	tick := st.Clock.Tick()
	for _, b := range st.Dirty.Snapshot() {
		o := b.Object
		if o == nil || o.State != world.Spawned {
			s.deps.Log.Error("髒狀態持有者沒有已生成的物件，please report",
				zap.String("behaviour", b.Name))
			st.Dirty.Remove(b)
			continue
		}
		if !b.Due(tick) {
			continue
		}
		s.flush(o, b, tick)
	}
}

// ForceFlush sends every unflushed change of o regardless of sync
// intervals. Used right before a despawn notification.
func (s *DirtySystem) ForceFlush(o *world.NetworkObject) {
	tick := s.deps.World.Clock.Tick()
	for _, b := range o.Behaviours {
		if b.Dirty() {
			s.flush(o, b, tick)
		}
	}
}

func (s *DirtySystem) flush(o *world.NetworkObject, b *world.Behaviour, tick uint32) {
	vars := b.TakeChanges(tick)
	s.deps.World.Dirty.Remove(b)
	if len(vars) == 0 {
		return
	}
	msg := handler.BuildSyncState(o.ID, b.Index, vars)
	for _, c := range o.Observers() {
		c.Send(msg)
	}
}
