package system

import (
	"time"

	"github.com/l1jgo/netsync/internal/core/event"
	coresys "github.com/l1jgo/netsync/internal/core/system"
	"github.com/l1jgo/netsync/internal/handler"
	"github.com/l1jgo/netsync/internal/world"
)

// ObserverSystem decides which connections observe which objects.
// Owned and global objects are always visible to their owner / everyone;
// others are visible within range of the connection's focus object.
// Nested objects share their parent's observers. Connections that gain an
// object receive S_SPAWN, connections that lose it receive S_HIDE.
// Phase 3 (PostUpdate), periodic full rebuild every interval ticks.
type ObserverSystem struct {
	deps     *handler.Deps
	grid     *world.AOIGrid
	radius   float32
	interval int
	ticks    int
}

func NewObserverSystem(deps *handler.Deps) *ObserverSystem {
	r := deps.Config.Replication
	s := &ObserverSystem{
		deps:     deps,
		grid:     world.NewAOIGrid(r.ObserverRange),
		radius:   r.ObserverRange,
		interval: r.ObserverInterval,
	}
	event.Subscribe(deps.Bus, func(e event.ConnectionClosed) {
		s.grid.Remove(e.ConnID)
	})
	return s
}

func (s *ObserverSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *ObserverSystem) Update(_ time.Duration) {
	s.ticks++
	if s.ticks < s.interval {
		return
	}
	s.ticks = 0
	s.RebuildAll()
}

// RebuildAll recomputes observers of every spawned object, parents first.
func (s *ObserverSystem) RebuildAll() {
	s.refreshGrid()
	local := s.deps.World.Local()
	for _, o := range s.deps.World.SpawnedInOrder() {
		if o.State != world.Spawned {
			continue
		}
		s.rebuild(o)
		if local != nil {
			o.HostVisible = o.IsObservedBy(local)
		}
	}
}

// RebuildObservers recomputes observers for a freshly spawned batch. The
// batch is in spawn order, so parents are sent before their children.
func (s *ObserverSystem) RebuildObservers(batch []*world.NetworkObject) {
	s.refreshGrid()
	for _, o := range batch {
		if o.State == world.Spawned {
			s.rebuild(o)
		}
	}
}

func (s *ObserverSystem) rebuild(o *world.NetworkObject) {
	want := s.desired(o)
	for _, c := range s.deps.World.ReadyConnections() {
		if _, ok := want[c.ID]; ok && o.AddObserver(c) {
			handler.SendSpawn(c, o)
		}
	}
	for _, c := range o.Observers() {
		if _, ok := want[c.ID]; !ok {
			o.RemoveObserver(c)
			handler.SendHide(c, o.ID)
		}
	}
}

func (s *ObserverSystem) desired(o *world.NetworkObject) map[uint64]struct{} {
	want := make(map[uint64]struct{})
	if o.Parent != nil {
		for _, c := range o.Parent.Observers() {
			want[c.ID] = struct{}{}
		}
		return want
	}
	st := s.deps.World
	ranged := s.radius > 0 && !o.IsGlobal
	for _, c := range st.ReadyConnections() {
		if c.Kicked() {
			continue
		}
		if !ranged || o.Owner == c || !s.grid.Tracked(c.ID) {
			want[c.ID] = struct{}{}
		}
	}
	if ranged {
		for _, id := range s.grid.GetNearby(o.Transform.Position) {
			c := st.Connection(id)
			if c == nil || !c.Ready || c.Kicked() || c.Focus == nil {
				continue
			}
			if world.WithinRange(o.Transform.Position, c.Focus.Transform.Position, s.radius) {
				want[id] = struct{}{}
			}
		}
	}
	return want
}

// refreshGrid moves every connection to its focus position. A connection
// without a live focus adopts its oldest owned root; with none it is not
// tracked and observes everything.
func (s *ObserverSystem) refreshGrid() {
	if s.radius <= 0 {
		return
	}
	for _, c := range s.deps.World.ReadyConnections() {
		if c.Focus == nil || !c.Focus.IsSpawned() {
			c.Focus = nil
			for _, o := range c.Owned() {
				if o.IsRoot() && o.IsSpawned() {
					c.Focus = o
					break
				}
			}
		}
		if c.Focus == nil {
			s.grid.Remove(c.ID)
			continue
		}
		s.grid.Update(c.ID, c.Focus.Transform.Position)
	}
}
