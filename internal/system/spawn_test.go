package system

import (
	"errors"
	"testing"

	"github.com/l1jgo/netsync/internal/config"
	"github.com/l1jgo/netsync/internal/net/packet"
	"github.com/l1jgo/netsync/internal/world"
)

func TestSpawnSendsParentBeforeChild(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Replication.PredictedQueueSize = 0 })
	_, rec := h.connect(1)

	a := h.spawnNew(t, prefabAvatar, nil)

	if got := rec.opcodes(); len(got) != 2 || got[0] != packet.S_SPAWN || got[1] != packet.S_SPAWN {
		t.Fatalf("expected two S_SPAWN, got %v", got)
	}
	first := packet.NewReader(rec.msgs[0])
	if id := first.ReadH(); id != uint16(a.ID) {
		t.Fatalf("expected parent %d first, got %d", a.ID, id)
	}

	b := a.Children[0]
	second := packet.NewReader(rec.msgs[1])
	if id := second.ReadH(); id != uint16(b.ID) {
		t.Fatalf("expected child %d second, got %d", b.ID, id)
	}
	second.ReadH() // prefab
	if flags := second.ReadC(); flags&packet.ObjFlagNested == 0 {
		t.Fatalf("expected nested flag, got %08b", flags)
	}
	if parent := second.ReadH(); parent != uint16(a.ID) {
		t.Fatalf("expected parent ref %d, got %d", a.ID, parent)
	}

	if a.Children[1].State != world.Unspawned {
		t.Fatalf("expected inactive child to stay unspawned, got %v", a.Children[1].State)
	}
	if h.st.SpawnedCount() != 2 {
		t.Fatalf("expected 2 spawned, got %d", h.st.SpawnedCount())
	}
}

func TestSpawnPreconditions(t *testing.T) {
	h := newHarness(t, nil)

	if err := h.spawn.Spawn(nil, nil, ""); !errors.Is(err, world.ErrNilObject) {
		t.Fatalf("expected ErrNilObject, got %v", err)
	}

	unspawned := h.instantiate(t, prefabAvatar)
	if err := h.spawn.Spawn(unspawned.Children[0], nil, ""); !errors.Is(err, world.ErrParentNotSpawned) {
		t.Fatalf("expected ErrParentNotSpawned, got %v", err)
	}

	a := h.spawnNew(t, prefabAvatar, nil)
	if err := h.spawn.Spawn(a, nil, ""); !errors.Is(err, world.ErrAlreadySpawned) {
		t.Fatalf("expected ErrAlreadySpawned, got %v", err)
	}
	if err := h.spawn.Spawn(a.Children[1], nil, "arena"); !errors.Is(err, world.ErrNotRoot) {
		t.Fatalf("expected ErrNotRoot, got %v", err)
	}
	if err := h.spawn.Spawn(a.Children[1], nil, ""); err != nil {
		t.Fatalf("expected late child spawn to succeed, got %v", err)
	}

	h.st.ServerActive = false
	if err := h.spawn.Spawn(h.instantiate(t, prefabBolt), nil, ""); !errors.Is(err, world.ErrNoAuthority) {
		t.Fatalf("expected ErrNoAuthority, got %v", err)
	}
}

func TestSpawnIDsAreUnique(t *testing.T) {
	h := newHarness(t, nil)
	seen := make(map[world.ObjectID]bool)
	for i := 0; i < 20; i++ {
		o := h.spawnNew(t, prefabBolt, nil)
		if seen[o.ID] {
			t.Fatalf("expected unique ids, %d issued twice", o.ID)
		}
		seen[o.ID] = true
	}
}

func TestSpawnExhaustionRollsBack(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Replication.IDNamespace = 3 // ids 0 and 1
	})
	h.spawnNew(t, prefabBolt, nil)

	a := h.instantiate(t, prefabAvatar) // needs two ids
	err := h.spawn.Spawn(a, nil, "")
	if !errors.Is(err, world.ErrIDsExhausted) {
		t.Fatalf("expected ErrIDsExhausted, got %v", err)
	}
	if a.State != world.Unspawned || a.ID != world.UnsetID {
		t.Fatalf("expected rollback of parent, got state=%v id=%d", a.State, a.ID)
	}
	if a.Children[0].State != world.Unspawned {
		t.Fatalf("expected child unspawned, got %v", a.Children[0].State)
	}
	if h.st.IDs.Free() != 1 {
		t.Fatalf("expected 1 free id after rollback, got %d", h.st.IDs.Free())
	}
	if h.st.SpawnedCount() != 1 {
		t.Fatalf("expected 1 spawned object, got %d", h.st.SpawnedCount())
	}
	if n := h.countLogs("物件 ID 命名空間已耗盡"); n != 1 {
		t.Fatalf("expected one exhaustion log, got %d", n)
	}
}

func TestSpawnUnregisteredSceneObject(t *testing.T) {
	h := newHarness(t, nil)
	o := h.instantiate(t, prefabBeacon)
	o.IsScene = true
	o.SceneID = 77
	if err := h.spawn.Spawn(o, nil, "arena"); !errors.Is(err, world.ErrSceneObjectNotFound) {
		t.Fatalf("expected ErrSceneObjectNotFound, got %v", err)
	}
}

func TestSpawnHostVisibility(t *testing.T) {
	h := newHarness(t, nil)
	local := newLocal(h)

	o := h.spawnNew(t, prefabBeacon, nil)
	if !o.HostVisible {
		t.Fatalf("expected host to see the object")
	}
	if got := local.Opcodes(); len(got) != 1 || got[0] != packet.S_SPAWN {
		t.Fatalf("expected local S_SPAWN, got %v", got)
	}
}
