package system

import (
	"github.com/l1jgo/netsync/internal/core/event"
	"github.com/l1jgo/netsync/internal/data"
	"github.com/l1jgo/netsync/internal/handler"
	"github.com/l1jgo/netsync/internal/world"
	"go.uber.org/zap"
)

// SceneSystem bootstraps authored scene objects when a scene finishes
// loading. Roots are spawned right away when someone can see them (host
// mode or a ready client), otherwise they wait for the first ready client.
type SceneSystem struct {
	deps     *handler.Deps
	scenes   *data.SceneTable
	loading  map[string]bool
	deferred []*world.NetworkObject
}

func NewSceneSystem(deps *handler.Deps, scenes *data.SceneTable) *SceneSystem {
	s := &SceneSystem{
		deps:    deps,
		scenes:  scenes,
		loading: make(map[string]bool),
	}
	event.Subscribe(deps.Bus, func(e event.SceneLoadStarted) {
		s.loading[e.Scene] = true
	})
	event.Subscribe(deps.Bus, func(e event.SceneLoaded) {
		s.OnLoaded(e.Scene)
	})
	event.Subscribe(deps.Bus, func(event.ConnectionReady) {
		s.SpawnDeferred()
	})
	event.Subscribe(deps.Bus, func(event.ServerStopped) {
		s.deferred = nil
	})
	return s
}

// Loading reports whether a scene load has started but not finished.
func (s *SceneSystem) Loading(scene string) bool { return s.loading[scene] }

// Deferred returns the number of roots waiting for a ready client.
func (s *SceneSystem) Deferred() int { return len(s.deferred) }

// OnLoaded registers every authored object of scene and spawns or defers
// its active roots.
func (s *SceneSystem) OnLoaded(scene string) {
	delete(s.loading, scene)
	def := s.scenes.Get(scene)
	if def == nil {
		s.deps.Log.Error("場景不存在", zap.String("scene", scene))
		return
	}

	roots := s.register(def)
	st := s.deps.World
	immediate := st.ServerActive && (st.HostMode() || st.HasReadyClient())
	spawned := 0
	for _, o := range roots {
		if !o.ActiveAtAuthoring && !o.Active {
			continue
		}
		if !immediate {
			s.deferred = append(s.deferred, o)
			continue
		}
		if err := s.deps.Spawner.Spawn(o, nil, scene); err == nil {
			spawned++
		}
	}
	s.deps.Log.Info("場景已載入",
		zap.String("scene", scene),
		zap.Int("objects", len(def.Objects)),
		zap.Int("spawned", spawned),
		zap.Int("deferred", len(s.deferred)))
}

// register instantiates and records the scene's objects in authoring
// order. A parent is referenced by scene id and must be declared first.
func (s *SceneSystem) register(def *data.SceneDef) []*world.NetworkObject {
	st := s.deps.World
	log := s.deps.Log.With(zap.String("scene", def.Name))
	local := make(map[uint64]*world.NetworkObject, len(def.Objects))
	var roots []*world.NetworkObject

	for _, od := range def.Objects {
		if od.SceneID == 0 {
			log.Error("場景物件缺少 scene_id，略過", zap.Uint16("prefab", od.Prefab))
			continue
		}
		var parent *world.NetworkObject
		if od.Parent != 0 {
			parent = local[od.Parent]
			if parent == nil {
				log.Error("場景物件的父物件未先宣告，略過",
					zap.Uint64("scene_id", od.SceneID), zap.Uint64("parent", od.Parent))
				continue
			}
		}
		o, err := st.Instantiate(od.Prefab)
		if err != nil {
			log.Error("場景物件實例化失敗", zap.Uint64("scene_id", od.SceneID), zap.Error(err))
			continue
		}
		o.SceneID = od.SceneID
		o.Scene = def.Name
		o.Active = od.Active
		o.ActiveAtAuthoring = od.Active
		o.Transform.Position = od.Position
		if parent != nil {
			if err := st.AttachChild(parent, o); err != nil {
				log.Error("場景物件的子物件過多，略過", zap.Uint64("scene_id", od.SceneID))
				st.Destroy(o)
				continue
			}
		}
		if err := st.RegisterSceneObject(o); err != nil {
			log.Error("場景物件註冊失敗", zap.Uint64("scene_id", od.SceneID), zap.Error(err))
			st.Destroy(o)
			continue
		}
		local[od.SceneID] = o
		if parent != nil {
			continue
		}
		roots = append(roots, o)
	}
	return roots
}

// SpawnDeferred spawns roots held back while nobody could observe them.
func (s *SceneSystem) SpawnDeferred() {
	if len(s.deferred) == 0 || !s.deps.World.ServerActive {
		return
	}
	pending := s.deferred
	s.deferred = nil
	for _, o := range pending {
		if o.State != world.Unspawned || !s.deps.World.IsSceneRegistered(o) {
			continue
		}
		if s.loading[o.Scene] {
			s.deferred = append(s.deferred, o)
			continue
		}
		s.deps.Spawner.Spawn(o, nil, o.Scene)
	}
}
