package system

import (
	"testing"

	"github.com/l1jgo/netsync/internal/config"
	"github.com/l1jgo/netsync/internal/core/event"
	"github.com/l1jgo/netsync/internal/data"
	"github.com/l1jgo/netsync/internal/net/packet"
	"github.com/l1jgo/netsync/internal/world"
)

const testScenes = `
scenes:
  - name: arena
    objects:
      - scene_id: 100
        prefab: 6
        active: true
        position: [1, 0, 2]
      - scene_id: 101
        prefab: 2
        parent: 100
        active: true
      - scene_id: 102
        prefab: 6
        active: false
      - scene_id: 0
        prefab: 6
        active: true
      - scene_id: 103
        prefab: 2
        parent: 999
        active: true
`

func newSceneHarness(t *testing.T) (*harness, *SceneSystem) {
	t.Helper()
	h := newHarness(t, func(c *config.Config) { c.Replication.PredictedQueueSize = 0 })
	scenes, err := data.ParseSceneTable([]byte(testScenes))
	if err != nil {
		t.Fatalf("scenes: %v", err)
	}
	return h, NewSceneSystem(h.deps, scenes)
}

func dispatch(h *harness) {
	h.deps.Bus.SwapBuffers()
	h.deps.Bus.DispatchAll()
}

func TestSceneDeferredUntilClientReady(t *testing.T) {
	h, s := newSceneHarness(t)

	event.Emit(h.deps.Bus, event.SceneLoadStarted{Scene: "arena"})
	event.Emit(h.deps.Bus, event.SceneLoaded{Scene: "arena"})
	dispatch(h)

	if s.Loading("arena") {
		t.Fatalf("expected load finished")
	}
	if n := len(h.st.SceneObjects("arena")); n != 3 {
		t.Fatalf("expected 3 registered scene objects, got %d", n)
	}
	if s.Deferred() != 1 {
		t.Fatalf("expected 1 deferred root, got %d", s.Deferred())
	}
	root := h.st.SceneObject(100)
	if root.State != world.Unspawned {
		t.Fatalf("expected root held back, got %v", root.State)
	}
	if root.Transform.Position != [3]float32{1, 0, 2} {
		t.Fatalf("expected authored position, got %v", root.Transform.Position)
	}

	c, rec := h.connect(1)
	event.Emit(h.deps.Bus, event.ConnectionReady{ConnID: c.ID})
	dispatch(h)

	if root.State != world.Spawned || root.Scene != "arena" {
		t.Fatalf("expected root spawned into arena, got %v %q", root.State, root.Scene)
	}
	child := h.st.SceneObject(101)
	if child.State != world.Spawned || child.Parent != root {
		t.Fatalf("expected nested scene child spawned under root")
	}
	if h.st.SceneObject(102).State != world.Unspawned {
		t.Fatalf("expected inactive root left unspawned")
	}
	if got := rec.opcodes(); len(got) != 2 || got[0] != packet.S_SPAWN || got[1] != packet.S_SPAWN {
		t.Fatalf("expected two S_SPAWN, got %v", got)
	}
	r := packet.NewReader(rec.msgs[0])
	r.ReadH()
	r.ReadH()
	if flags := r.ReadC(); flags&packet.ObjFlagScene == 0 {
		t.Fatalf("expected scene flag, got %08b", flags)
	}
	if sid := r.ReadQ(); sid != 100 {
		t.Fatalf("expected scene id 100, got %d", sid)
	}
	if s.Deferred() != 0 {
		t.Fatalf("expected deferred list drained, got %d", s.Deferred())
	}
	if n := h.countLogs("場景物件缺少 scene_id，略過"); n != 1 {
		t.Fatalf("expected zero scene id rejected, got %d", n)
	}
}

func TestSceneSpawnsImmediatelyInHostMode(t *testing.T) {
	h, s := newSceneHarness(t)
	local := newLocal(h)

	s.OnLoaded("arena")

	if s.Deferred() != 0 {
		t.Fatalf("expected nothing deferred, got %d", s.Deferred())
	}
	if h.st.SceneObject(100).State != world.Spawned {
		t.Fatalf("expected root spawned")
	}
	if n := len(local.Opcodes()); n != 2 {
		t.Fatalf("expected host to receive 2 spawns, got %d", n)
	}
}

func TestSceneReloadRejectsDuplicates(t *testing.T) {
	h, s := newSceneHarness(t)
	newLocal(h)
	s.OnLoaded("arena")
	before := h.st.SpawnedCount()

	s.OnLoaded("arena")
	if h.st.SpawnedCount() != before {
		t.Fatalf("expected no new spawns on reload, got %d want %d", h.st.SpawnedCount(), before)
	}
	if n := h.countLogs("場景物件註冊失敗"); n != 2 {
		t.Fatalf("expected 2 duplicate registrations rejected, got %d", n)
	}
}

func TestServerStopDropsDeferredRoots(t *testing.T) {
	h, s := newSceneHarness(t)

	event.Emit(h.deps.Bus, event.SceneLoaded{Scene: "arena"})
	dispatch(h)
	if s.Deferred() != 1 {
		t.Fatalf("expected 1 deferred root, got %d", s.Deferred())
	}

	h.despawn.StopServer()
	dispatch(h)
	if s.Deferred() != 0 {
		t.Fatalf("expected deferred roots dropped on stop, got %d", s.Deferred())
	}

	c, _ := h.connect(1)
	event.Emit(h.deps.Bus, event.ConnectionReady{ConnID: c.ID})
	dispatch(h)
	if h.st.SceneObject(100).State != world.Unspawned {
		t.Fatalf("expected nothing spawned after stop")
	}
}
