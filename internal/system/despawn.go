package system

import (
	"github.com/l1jgo/netsync/internal/core/event"
	"github.com/l1jgo/netsync/internal/handler"
	"github.com/l1jgo/netsync/internal/world"
	"go.uber.org/zap"
)

// DespawnSystem tears down network objects: final state flush, despawn
// notification, id release and ledger record, in that order.
type DespawnSystem struct {
	deps  *handler.Deps
	dirty *DirtySystem
}

func NewDespawnSystem(deps *handler.Deps, dirty *DirtySystem) *DespawnSystem {
	return &DespawnSystem{deps: deps, dirty: dirty}
}

// Despawn removes o (and its nested children) from replication. A second
// call on the same object is a no-op returning ErrNotSpawned.
func (s *DespawnSystem) Despawn(o *world.NetworkObject, reason world.DespawnReason) error {
	if o == nil {
		s.deps.Log.Warn("移除失敗：物件為空")
		return world.ErrNilObject
	}
	if o.State == world.Despawning || o.State == world.Unspawned {
		s.deps.Log.Debug("重複移除，忽略",
			zap.Uint16("id", uint16(o.ID)), zap.Stringer("state", o.State))
		return world.ErrNotSpawned
	}
	if !s.deps.World.ServerActive {
		s.deps.Log.Warn("移除失敗：伺服器未啟動", zap.Uint16("id", uint16(o.ID)))
		return world.ErrNoAuthority
	}
	s.despawn(o, reason)
	return nil
}

func (s *DespawnSystem) despawn(o *world.NetworkObject, reason world.DespawnReason) {
	st := s.deps.World
	o.State = world.Despawning
	o.Reason = reason

	for _, c := range o.LiveChildren() {
		if c.State == world.Spawned {
			s.despawn(c, reason)
		}
	}

	s.dirty.ForceFlush(o)

	msg := handler.BuildDespawn(o.ID, reason)
	for _, c := range o.Observers() {
		c.Send(msg)
	}

	if local := st.Local(); local != nil && o.Owner == local {
		// the local client keeps the object until the end-of-tick sweep
		st.ParkPendingDestroy(o)
		return
	}
	s.finalize(o)
}

// finalize returns the id, records the removal and resets o to Unspawned.
func (s *DespawnSystem) finalize(o *world.NetworkObject) {
	st := s.deps.World
	id := o.ID

	st.UnregisterSpawned(o)
	st.UnbindBehaviours(o)
	if err := st.IDs.Release(id); err != nil {
		s.deps.Log.Error("釋放物件 ID 失敗，please report",
			zap.Uint16("id", uint16(id)), zap.Error(err))
	}
	st.Ledger.Record(id, st.Clock.Tick())

	o.ClearObservers()
	o.ID = world.UnsetID
	o.State = world.Unspawned
	o.HostVisible = false
	o.Predicted = false

	if o.Reason == world.DespawnDestroy {
		st.SetOwner(o, nil)
		st.Destroy(o)
	}
}

// FinalizePending finalizes every object parked by a host-mode despawn.
// Entries whose handle went stale are dropped.
func (s *DespawnSystem) FinalizePending() int {
	st := s.deps.World
	n := 0
	for _, h := range st.TakePendingDestroy() {
		o, ok := st.Object(h)
		if !ok || o.State != world.Despawning {
			s.deps.Log.Error("待銷毀集合含無效項目，please report",
				zap.Uint64("handle", uint64(h)))
			continue
		}
		s.finalize(o)
		n++
	}
	return n
}

// CancelPendingDestroy restores a parked object (and its parked children)
// to Spawned. Its id was never released. Observers receive the object again.
func (s *DespawnSystem) CancelPendingDestroy(o *world.NetworkObject) bool {
	st := s.deps.World
	if o == nil || !st.UnparkPendingDestroy(o) {
		return false
	}
	restored := []*world.NetworkObject{o}
	for _, c := range o.Descendants() {
		if st.UnparkPendingDestroy(c) {
			restored = append(restored, c)
		}
	}
	for _, r := range restored {
		r.State = world.Spawned
		r.Reason = world.DespawnNormal
		r.ClearObservers()
	}
	if s.deps.Observers != nil {
		s.deps.Observers.RebuildObservers(restored)
	}
	s.deps.Log.Debug("取消待銷毀", zap.Uint16("id", uint16(o.ID)), zap.Int("count", len(restored)))
	return true
}

// Disconnect cleans up after a connection: owned objects are destroyed
// unless they survive disconnects (those lose their owner), observation
// links are dropped and unused predicted ids return to the allocator.
func (s *DespawnSystem) Disconnect(c *world.Connection) {
	st := s.deps.World

	for _, o := range c.Owned() {
		if o.Owner != c || o.State != world.Spawned {
			continue
		}
		if o.SurviveDisconnect {
			st.SetOwner(o, nil)
			for _, d := range o.Descendants() {
				if d.Owner == c {
					st.SetOwner(d, nil)
				}
			}
			continue
		}
		if err := s.Despawn(o, world.DespawnDestroy); err != nil {
			s.deps.Log.Warn("斷線移除物件失敗", zap.Uint16("id", uint16(o.ID)), zap.Error(err))
		}
	}
	for _, o := range c.Owned() {
		st.SetOwner(o, nil)
	}
	for _, o := range c.Observing() {
		o.RemoveObserver(c)
	}
	for _, id := range c.DrainPredicted() {
		if err := st.IDs.Release(id); err != nil {
			s.deps.Log.Error("釋放預留 ID 失敗，please report",
				zap.Uint16("id", uint16(id)), zap.Error(err))
		}
	}
	st.RemoveConnection(c.ID)
	event.Emit(s.deps.Bus, event.ConnectionClosed{ConnID: c.ID})
}

// StopServer despawns everything and leaves the server inactive.
func (s *DespawnSystem) StopServer() {
	st := s.deps.World
	if !st.ServerActive {
		return
	}
	n := 0
	for _, o := range st.SpawnedInOrder() {
		if o.State != world.Spawned {
			continue
		}
		if err := s.Despawn(o, world.DespawnNormal); err == nil {
			n++
		}
	}
	s.FinalizePending()
	st.ServerActive = false
	event.Emit(s.deps.Bus, event.ServerStopped{})
	s.deps.Log.Info("伺服器已停止", zap.Int("despawned", n))
}
