package system

import (
	"testing"

	"github.com/l1jgo/netsync/internal/config"
	"github.com/l1jgo/netsync/internal/core/event"
	"github.com/l1jgo/netsync/internal/data"
	"github.com/l1jgo/netsync/internal/handler"
	"github.com/l1jgo/netsync/internal/net/packet"
	"github.com/l1jgo/netsync/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testPrefabs = `
- id: 1
  name: avatar
  predicted_spawn: true
  predicted_despawn: true
  children:
    - prefab: 2
      active: true
    - prefab: 3
      active: false
- id: 2
  name: weapon
- id: 3
  name: shield
- id: 4
  name: flag
  global: true
  survive_disconnect: true
- id: 5
  name: bolt
  predicted_spawn: true
- id: 6
  name: beacon
  behaviours:
    - name: light
- id: 7
  name: gauge
  behaviours:
    - name: needle
      sync_interval: 5
`

const (
	prefabAvatar uint16 = 1
	prefabWeapon uint16 = 2
	prefabFlag   uint16 = 4
	prefabBolt   uint16 = 5
	prefabBeacon uint16 = 6
	prefabGauge  uint16 = 7
)

// recorder is an in-memory transport.
type recorder struct {
	msgs    [][]byte
	closed  bool
	flushed int
}

func (r *recorder) Send(b []byte) {
	msg := make([]byte, len(b))
	copy(msg, b)
	r.msgs = append(r.msgs, msg)
}
func (r *recorder) Close()       { r.closed = true }
func (r *recorder) FlushOutput() { r.flushed++ }
func (r *recorder) reset()       { r.msgs = nil }

func (r *recorder) opcodes() []byte {
	out := make([]byte, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m[0])
	}
	return out
}

func (r *recorder) last() *packet.Reader {
	if len(r.msgs) == 0 {
		return packet.NewReader(nil)
	}
	return packet.NewReader(r.msgs[len(r.msgs)-1])
}

type fakeViolations struct{ reasons []string }

func (f *fakeViolations) Record(_ *world.Connection, reason string) {
	f.reasons = append(f.reasons, reason)
}

type harness struct {
	deps      *handler.Deps
	st        *world.State
	spawn     *SpawnSystem
	despawn   *DespawnSystem
	dirty     *DirtySystem
	observers *ObserverSystem
	predicted *PredictedSystem
	viol      *fakeViolations
	logs      *observer.ObservedLogs
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Defaults()
	cfg.Replication.IDNamespace = 64
	cfg.Replication.SequentialIDs = true
	cfg.Replication.PredictedQueueSize = 2
	cfg.Replication.RetentionTicks = 300
	if mutate != nil {
		mutate(cfg)
	}

	prefabs, err := data.ParsePrefabTable([]byte(testPrefabs))
	if err != nil {
		t.Fatalf("prefabs: %v", err)
	}
	r := cfg.Replication
	st := world.NewState(world.NewKindTable(prefabs, nil), r.IDNamespace, r.SequentialIDs, r.RetentionTicks)
	st.ServerActive = true

	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{st: st, viol: &fakeViolations{}, logs: logs}
	h.deps = &handler.Deps{
		Config:     cfg,
		Log:        zap.New(core),
		World:      st,
		Bus:        event.NewBus(),
		Violations: h.viol,
	}
	h.spawn = NewSpawnSystem(h.deps)
	h.dirty = NewDirtySystem(h.deps)
	h.despawn = NewDespawnSystem(h.deps, h.dirty)
	h.observers = NewObserverSystem(h.deps)
	h.predicted = NewPredictedSystem(h.deps)
	h.deps.Spawner = h.spawn
	h.deps.Despawner = h.despawn
	h.deps.Observers = h.observers
	h.deps.Predicted = h.predicted
	return h
}

// connect registers a ready remote connection with its predicted id queue.
func (h *harness) connect(id uint64) (*world.Connection, *recorder) {
	rec := &recorder{}
	c := world.NewConnection(id, "10.0.0.1:5000", rec)
	c.Ready = true
	h.st.AddConnection(c)
	h.predicted.IssueInitialIDs(c)
	return c, rec
}

func (h *harness) instantiate(t *testing.T, prefab uint16) *world.NetworkObject {
	t.Helper()
	o, err := h.st.Instantiate(prefab)
	if err != nil {
		t.Fatalf("instantiate %d: %v", prefab, err)
	}
	return o
}

func (h *harness) spawnNew(t *testing.T, prefab uint16, owner *world.Connection) *world.NetworkObject {
	t.Helper()
	o := h.instantiate(t, prefab)
	if err := h.spawn.Spawn(o, owner, ""); err != nil {
		t.Fatalf("spawn %d: %v", prefab, err)
	}
	return o
}

func (h *harness) countLogs(msg string) int {
	return h.logs.FilterMessage(msg).Len()
}
