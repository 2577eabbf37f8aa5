package world

import (
	"errors"
	"testing"

	"github.com/l1jgo/netsync/internal/data"
)

const statePrefabs = `
- id: 1
  name: tank
  global: true
  behaviours:
    - name: hull
    - name: turret
      sync_interval: 2
  children:
    - prefab: 2
      active: true
    - prefab: 2
      active: false
- id: 2
  name: gun
`

func newTestState(t *testing.T) *State {
	t.Helper()
	prefabs, err := data.ParsePrefabTable([]byte(statePrefabs))
	if err != nil {
		t.Fatalf("prefabs: %v", err)
	}
	return NewState(NewKindTable(prefabs, nil), 16, true, 100)
}

func TestInstantiateBuildsNestedTree(t *testing.T) {
	s := newTestState(t)
	o, err := s.Instantiate(1)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	if o.ID != UnsetID || o.State != Unspawned || !o.IsGlobal {
		t.Fatalf("unexpected root %+v", o)
	}
	if len(o.Behaviours) != 2 || o.Behaviours[1].SyncInterval != 2 {
		t.Fatalf("expected 2 behaviours, got %d", len(o.Behaviours))
	}
	if len(o.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(o.Children))
	}
	if c := o.Children[1]; c.Parent != o || c.NestedIndex != 1 || c.Active {
		t.Fatalf("unexpected second child parent=%v index=%d active=%v", c.Parent == o, c.NestedIndex, c.Active)
	}
	if o.Transform.Scale != [3]float32{1, 1, 1} {
		t.Fatalf("expected identity scale, got %v", o.Transform.Scale)
	}
	if s.ObjectCount() != 3 {
		t.Fatalf("expected 3 arena objects, got %d", s.ObjectCount())
	}

	if _, err := s.Instantiate(99); !errors.Is(err, ErrUnknownPrefab) {
		t.Fatalf("expected ErrUnknownPrefab, got %v", err)
	}
}

func TestDestroyRemovesSubtree(t *testing.T) {
	s := newTestState(t)
	o, _ := s.Instantiate(1)
	s.Destroy(o)
	if !s.DestroyQueued(o.Children[0]) {
		t.Fatalf("expected children queued with the root")
	}
	if n := s.FlushDestroyed(); n != 3 {
		t.Fatalf("expected 3 destroyed, got %d", n)
	}
	if _, ok := s.Object(o.Handle); ok {
		t.Fatalf("expected stale handle")
	}
}

func TestSceneRegistry(t *testing.T) {
	s := newTestState(t)
	a, _ := s.Instantiate(2)
	b, _ := s.Instantiate(2)

	if err := s.RegisterSceneObject(a); !errors.Is(err, ErrInvalidSceneID) {
		t.Fatalf("expected ErrInvalidSceneID, got %v", err)
	}
	a.SceneID, a.Scene = 7, "yard"
	b.SceneID, b.Scene = 7, "yard"
	if err := s.RegisterSceneObject(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.RegisterSceneObject(b); !errors.Is(err, ErrDuplicateSceneID) {
		t.Fatalf("expected ErrDuplicateSceneID, got %v", err)
	}
	if s.SceneObject(7) != a || !s.IsSceneRegistered(a) || s.IsSceneRegistered(b) {
		t.Fatalf("expected a registered under 7")
	}
	if got := s.SceneObjects("yard"); len(got) != 1 || got[0] != a {
		t.Fatalf("expected [a] in yard, got %d", len(got))
	}

	s.Destroy(a)
	s.FlushDestroyed()
	if s.SceneObject(7) != nil {
		t.Fatalf("expected scene entry dropped with the object")
	}
}

func TestSetOwnerTracksOwnedSet(t *testing.T) {
	s := newTestState(t)
	c := NewConnection(3, "addr", nil)
	d := NewConnection(4, "addr", nil)
	o, _ := s.Instantiate(2)

	s.SetOwner(o, c)
	if !c.Owns(o) || o.OwnerID() != 3 {
		t.Fatalf("expected c to own o")
	}
	s.SetOwner(o, d)
	if c.Owns(o) || !d.Owns(o) {
		t.Fatalf("expected ownership moved to d")
	}
	s.SetOwner(o, nil)
	if d.Owns(o) || o.OwnerID() != 0 {
		t.Fatalf("expected server ownership")
	}
}

func TestPendingDestroyKeepsParkingOrder(t *testing.T) {
	s := newTestState(t)
	a, _ := s.Instantiate(2)
	b, _ := s.Instantiate(2)
	c, _ := s.Instantiate(2)
	s.ParkPendingDestroy(a)
	s.ParkPendingDestroy(b)
	s.ParkPendingDestroy(c)
	s.ParkPendingDestroy(a)

	if !s.UnparkPendingDestroy(b) || s.UnparkPendingDestroy(b) {
		t.Fatalf("expected b unparked exactly once")
	}
	got := s.TakePendingDestroy()
	if len(got) != 2 || got[0] != a.Handle || got[1] != c.Handle {
		t.Fatalf("expected [a c], got %v", got)
	}
	if s.PendingDestroyCount() != 0 || s.IsPendingDestroy(a) {
		t.Fatalf("expected pending set empty")
	}
}

func TestConnectionsAndHostMode(t *testing.T) {
	s := newTestState(t)
	s.AddConnection(NewConnection(9, "a", nil))
	s.AddConnection(NewConnection(2, "b", nil))
	if s.HasReadyClient() || s.HostMode() {
		t.Fatalf("expected no ready client and no host")
	}
	local := NewConnection(LocalConnID, "local", nil)
	local.IsLocal = true
	local.Ready = true
	s.AddConnection(local)

	if !s.HostMode() || s.Local() != local || !s.HasReadyClient() {
		t.Fatalf("expected host mode with a ready local client")
	}
	conns := s.Connections()
	if len(conns) != 3 || conns[0].ID != 2 || conns[1].ID != 9 {
		t.Fatalf("expected connections sorted by id")
	}
	if ready := s.ReadyConnections(); len(ready) != 1 || ready[0] != local {
		t.Fatalf("expected only the local connection ready")
	}

	s.RemoveConnection(LocalConnID)
	if s.HostMode() {
		t.Fatalf("expected host mode off after removing the local client")
	}
}

func TestPredictedQueue(t *testing.T) {
	c := NewConnection(1, "addr", nil)
	c.PushPredicted(5)
	c.PushPredicted(6)
	if c.ConsumePredicted(6) {
		t.Fatalf("expected only the head to be consumable")
	}
	if !c.ConsumePredicted(5) {
		t.Fatalf("expected head consumed")
	}
	if head, _ := c.PeekPredicted(); head != 6 {
		t.Fatalf("expected head 6, got %d", head)
	}
	if got := c.DrainPredicted(); len(got) != 1 || len(c.PredictedIDs()) != 0 {
		t.Fatalf("expected drained queue")
	}
}

func TestAOIGridNearby(t *testing.T) {
	g := NewAOIGrid(10)
	g.Update(1, [3]float32{0, 0, 0})
	g.Update(2, [3]float32{15, 0, 0})
	g.Update(3, [3]float32{45, 0, 0})

	near := map[uint64]bool{}
	for _, id := range g.GetNearby([3]float32{5, 0, 0}) {
		near[id] = true
	}
	if !near[1] || !near[2] || near[3] {
		t.Fatalf("expected 1 and 2 nearby, got %v", near)
	}
	g.Update(3, [3]float32{5, 0, 5})
	g.Remove(1)
	if g.Tracked(1) || !g.Tracked(3) {
		t.Fatalf("unexpected tracking state")
	}
	if !WithinRange([3]float32{0, 100, 0}, [3]float32{6, 0, 8}, 10) {
		t.Fatalf("expected XZ distance 10 within range")
	}
}

func TestChildSlots(t *testing.T) {
	s := newTestState(t)
	tank, _ := s.Instantiate(1)

	var extra []*NetworkObject
	for i := 0; i < 3; i++ {
		g, _ := s.Instantiate(2)
		if err := s.AttachChild(tank, g); err != nil {
			t.Fatalf("attach: %v", err)
		}
		extra = append(extra, g)
	}
	if extra[0].NestedIndex != 2 || extra[2].NestedIndex != 4 || tank.Child(4) != extra[2] {
		t.Fatalf("expected runtime slots 2..4, got %d..%d", extra[0].NestedIndex, extra[2].NestedIndex)
	}

	s.Destroy(extra[1])
	if tank.Child(3) != nil || extra[1].Parent != nil || len(tank.Children) != 5 {
		t.Fatalf("expected slot 3 emptied in place")
	}
	if n := len(tank.LiveChildren()); n != 4 {
		t.Fatalf("expected 4 live children, got %d", n)
	}
	if s.Live(extra[1]) {
		t.Fatalf("expected destroyed child not live")
	}

	// authored slot stays reserved after its child is destroyed
	s.Destroy(tank.Child(0))
	g, _ := s.Instantiate(2)
	if err := s.AttachChild(tank, g); err != nil || g.NestedIndex != 3 {
		t.Fatalf("expected empty runtime slot 3 reused, got %d (%v)", g.NestedIndex, err)
	}

	s.Destroy(extra[2])
	s.Destroy(g)
	if len(tank.Children) != 3 {
		t.Fatalf("expected trailing runtime slots trimmed, got %d", len(tank.Children))
	}
	if len(tank.Descendants()) != 2 {
		t.Fatalf("expected descendants to skip empty slots, got %d", len(tank.Descendants()))
	}
}

func TestChildSlotsExhausted(t *testing.T) {
	s := newTestState(t)
	tank, _ := s.Instantiate(1)
	for len(tank.Children) < 255 {
		g, _ := s.Instantiate(2)
		if err := s.AttachChild(tank, g); err != nil {
			t.Fatalf("attach %d: %v", len(tank.Children), err)
		}
	}
	g, _ := s.Instantiate(2)
	if err := s.AttachChild(tank, g); !errors.Is(err, ErrNoChildSlot) {
		t.Fatalf("expected ErrNoChildSlot, got %v", err)
	}
}
