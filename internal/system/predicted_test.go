package system

import (
	"testing"

	"github.com/l1jgo/netsync/internal/config"
	"github.com/l1jgo/netsync/internal/handler"
	"github.com/l1jgo/netsync/internal/net/packet"
	"github.com/l1jgo/netsync/internal/world"
)

type spawnResult struct {
	success bool
	id      world.ObjectID
	next    world.ObjectID
}

func lastResult(t *testing.T, rec *recorder) spawnResult {
	t.Helper()
	r := rec.last()
	if r.Opcode() != packet.S_PREDICTED_SPAWN_RESULT {
		t.Fatalf("expected S_PREDICTED_SPAWN_RESULT, got opcode 0x%02x", r.Opcode())
	}
	res := spawnResult{
		success: r.ReadC() == 1,
		id:      world.ObjectID(r.ReadH()),
		next:    world.ObjectID(r.ReadH()),
	}
	if r.Err() != nil {
		t.Fatalf("short result: %v", r.Err())
	}
	return res
}

func sameIDs(a, b []world.ObjectID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestIssueInitialIDs(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Replication.PredictedQueueSize = 3 })
	c, _ := h.connect(1)
	if got := c.PredictedIDs(); !sameIDs(got, []world.ObjectID{0, 1, 2}) {
		t.Fatalf("expected queue [0 1 2], got %v", got)
	}

	h2 := newHarness(t, func(c *config.Config) { c.Replication.PredictedSpawning = false })
	c2, _ := h2.connect(1)
	if n := len(c2.PredictedIDs()); n != 0 {
		t.Fatalf("expected no ids with prediction disabled, got %d", n)
	}
}

func TestPredictedSpawnWrongHeadKicks(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Replication.PredictedQueueSize = 0 })
	c, rec := h.connect(1)
	c.PushPredicted(5)
	c.PushPredicted(6)

	h.predicted.HandleSpawnRequest(c, &handler.SpawnRequest{ClaimedID: 6, Prefab: prefabBolt})

	if !c.Kicked() || !rec.closed {
		t.Fatalf("expected connection kicked")
	}
	if got := rec.opcodes(); len(got) != 1 || got[0] != packet.S_REJECT {
		t.Fatalf("expected S_REJECT, got %v", got)
	}
	if rec.flushed == 0 {
		t.Fatalf("expected output flushed before close")
	}
	if len(h.viol.reasons) != 1 {
		t.Fatalf("expected one violation, got %d", len(h.viol.reasons))
	}
	if h.st.SpawnedCount() != 0 {
		t.Fatalf("expected nothing spawned, got %d", h.st.SpawnedCount())
	}
}

func TestPredictedSpawnConsumesHeadAndReplenishes(t *testing.T) {
	h := newHarness(t, nil)
	c, rec := h.connect(1) // queue [0 1]

	h.predicted.HandleSpawnRequest(c, &handler.SpawnRequest{
		ClaimedID: 0,
		Prefab:    prefabBolt,
		Position:  &[3]float32{1, 2, 3},
		Payload:   []byte("hi"),
	})

	res := lastResult(t, rec)
	if !res.success || res.id != 0 || res.next != 2 {
		t.Fatalf("expected success id=0 next=2, got %+v", res)
	}
	o := h.st.Spawned(0)
	if o == nil || o.Owner != c || !o.Predicted {
		t.Fatalf("expected predicted object 0 owned by the requester")
	}
	if o.Transform.Position != [3]float32{1, 2, 3} || string(o.Payload) != "hi" {
		t.Fatalf("expected overrides applied, got pos=%v payload=%q", o.Transform.Position, o.Payload)
	}
	if got := c.PredictedIDs(); !sameIDs(got, []world.ObjectID{1, 2}) {
		t.Fatalf("expected queue [1 2], got %v", got)
	}

	h.predicted.HandleSpawnRequest(c, &handler.SpawnRequest{ClaimedID: 1, Prefab: prefabBolt})
	res = lastResult(t, rec)
	if !res.success || res.id != 1 || res.next != 3 {
		t.Fatalf("expected success id=1 next=3, got %+v", res)
	}
}

func TestPredictedSpawnFailureReleasesClaim(t *testing.T) {
	h := newHarness(t, nil)
	c, rec := h.connect(1) // queue [0 1]

	// weapons are not predictable
	h.predicted.HandleSpawnRequest(c, &handler.SpawnRequest{ClaimedID: 0, Prefab: prefabWeapon})

	res := lastResult(t, rec)
	if res.success || res.id != 0 || res.next != 2 {
		t.Fatalf("expected failure id=0 next=2, got %+v", res)
	}
	if c.Kicked() {
		t.Fatalf("expected an ineligible request to be refused, not kicked")
	}
	if !h.st.IDs.IsFree(0) {
		t.Fatalf("expected claimed id released")
	}
	if !h.st.Ledger.WasRecentlyRemoved(0, h.st.Ledger.Retention()) {
		t.Fatalf("expected claimed id in the ledger")
	}
	if got := c.PredictedIDs(); !sameIDs(got, []world.ObjectID{1, 2}) {
		t.Fatalf("expected queue [1 2], got %v", got)
	}
	if n := h.st.FlushDestroyed(); n != 1 || h.st.ObjectCount() != 0 {
		t.Fatalf("expected the rejected instance removed, flushed=%d left=%d", n, h.st.ObjectCount())
	}
}

func TestPredictedSpawnForeignOwnerRefused(t *testing.T) {
	h := newHarness(t, nil)
	c, rec := h.connect(1)

	h.predicted.HandleSpawnRequest(c, &handler.SpawnRequest{ClaimedID: 0, Prefab: prefabBolt, OwnerRef: 99})
	if res := lastResult(t, rec); res.success {
		t.Fatalf("expected failure for a foreign owner, got %+v", res)
	}
}

func TestPredictedSpawnUnknownParent(t *testing.T) {
	h := newHarness(t, nil)
	c, rec := h.connect(1)

	h.predicted.HandleSpawnRequest(c, &handler.SpawnRequest{
		ClaimedID: 0,
		Prefab:    prefabBolt,
		HasParent: true,
		ParentID:  40,
	})
	if res := lastResult(t, rec); res.success {
		t.Fatalf("expected failure for an unknown parent, got %+v", res)
	}
	if n := h.countLogs("預測生成的父物件不存在"); n != 1 {
		t.Fatalf("expected unknown parent warning, got %d", n)
	}
}

func TestPredictedSpawnUnderParent(t *testing.T) {
	h := newHarness(t, nil)
	c, rec := h.connect(1)
	parent := h.spawnNew(t, prefabFlag, nil)

	h.predicted.HandleSpawnRequest(c, &handler.SpawnRequest{
		ClaimedID: 0,
		Prefab:    prefabBolt,
		HasParent: true,
		ParentID:  parent.ID,
	})
	if res := lastResult(t, rec); !res.success {
		t.Fatalf("expected success, got %+v", res)
	}
	child := h.st.Spawned(0)
	if child == nil || child.Parent != parent || parent.Children[child.NestedIndex] != child {
		t.Fatalf("expected bolt nested under the flag")
	}
}

func TestPredictedDespawn(t *testing.T) {
	h := newHarness(t, nil)
	c, rec := h.connect(1)
	other, _ := h.connect(2)

	h.predicted.HandleSpawnRequest(c, &handler.SpawnRequest{ClaimedID: 0, Prefab: prefabAvatar})
	if res := lastResult(t, rec); !res.success {
		t.Fatalf("expected avatar spawn, got %+v", res)
	}
	a := h.st.Spawned(0)
	if a.Children[0].State != world.Spawned || a.Children[0].ID == 0 {
		t.Fatalf("expected nested child with a server id, got %v", a.Children[0].ID)
	}

	h.predicted.HandleDespawnRequest(other, 0)
	if a.State != world.Spawned {
		t.Fatalf("expected non-owner request ignored")
	}

	h.predicted.HandleDespawnRequest(c, 0)
	if a.State != world.Unspawned {
		t.Fatalf("expected owner request to despawn, got %v", a.State)
	}

	h.predicted.HandleDespawnRequest(c, 0)
	if n := h.countLogs("預測移除的物件剛被移除"); n != 1 {
		t.Fatalf("expected recently removed debug log, got %d", n)
	}
}
