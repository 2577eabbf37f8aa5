package system

import (
	"errors"

	"github.com/l1jgo/netsync/internal/handler"
	"github.com/l1jgo/netsync/internal/world"
	"go.uber.org/zap"
)

// SpawnSystem creates the server-side representation of network objects:
// it assigns identity, spawns nested children parent first, and hands the
// batch to the observer subsystem.
type SpawnSystem struct {
	deps *handler.Deps
}

func NewSpawnSystem(deps *handler.Deps) *SpawnSystem {
	return &SpawnSystem{deps: deps}
}

// Spawn spawns o on the server's authority. owner nil = server owned;
// scene non-empty places a root object into that scene.
func (s *SpawnSystem) Spawn(o *world.NetworkObject, owner *world.Connection, scene string) error {
	return s.spawn(o, owner, scene, nil, world.UnsetID)
}

// SpawnPredicted spawns o for a client prediction. The claimed id must be
// the head of c's predicted id queue; it is consumed on success.
func (s *SpawnSystem) SpawnPredicted(o *world.NetworkObject, c *world.Connection, claimed world.ObjectID) error {
	return s.spawn(o, c, "", c, claimed)
}

func (s *SpawnSystem) spawn(o *world.NetworkObject, owner *world.Connection, scene string, predictor *world.Connection, claimed world.ObjectID) error {
	st := s.deps.World
	log := s.deps.Log

	if o == nil {
		log.Warn("生成失敗：物件為空")
		return world.ErrNilObject
	}
	if !st.ServerActive {
		log.Warn("生成失敗：伺服器未啟動", zap.Uint16("prefab", uint16(o.TypeTag())))
		return world.ErrNoAuthority
	}
	if predictor != nil {
		if !s.deps.Config.Replication.PredictedSpawning || !o.Kind.AllowsPredictedSpawn(predictor, o) {
			return world.ErrNotEligible
		}
	}
	if o.State == world.Despawning && predictor == nil && st.IsPendingDestroy(o) {
		return s.respawnParked(o, owner, scene)
	}
	if o.State != world.Unspawned {
		log.Warn("重複生成，忽略",
			zap.Uint16("id", uint16(o.ID)),
			zap.Stringer("state", o.State))
		return world.ErrAlreadySpawned
	}
	if o.Parent != nil && o.Parent.State != world.Spawned {
		log.Warn("生成失敗：父物件未生成", zap.Uint16("prefab", uint16(o.TypeTag())))
		return world.ErrParentNotSpawned
	}
	if scene != "" && o.Parent != nil {
		log.Warn("生成失敗：指定場景的物件必須是根物件", zap.String("scene", scene))
		return world.ErrNotRoot
	}
	if o.IsScene && !st.IsSceneRegistered(o) {
		log.Warn("生成失敗：場景物件未註冊", zap.Uint64("scene_id", o.SceneID))
		return world.ErrSceneObjectNotFound
	}

	batch := make([]*world.NetworkObject, 0, 1+len(o.Children))
	if err := s.spawnTree(o, owner, scene, predictor, claimed, &batch); err != nil {
		s.rollback(batch)
		if errors.Is(err, world.ErrIDsExhausted) {
			log.Error("物件 ID 命名空間已耗盡",
				zap.Int("batch", len(batch)),
				zap.Int("spawned", st.SpawnedCount()))
		}
		return err
	}

	if s.deps.Observers != nil {
		s.deps.Observers.RebuildObservers(batch)
	}
	s.reconcileHost(batch)
	return nil
}

// spawnTree assigns identity to o, marks it Spawned and recurses into the
// children that were attached before o initialized.
func (s *SpawnSystem) spawnTree(o *world.NetworkObject, owner *world.Connection, scene string, predictor *world.Connection, claimed world.ObjectID, batch *[]*world.NetworkObject) error {
	st := s.deps.World
	children := o.LiveChildren()

	var id world.ObjectID
	if predictor != nil {
		if !predictor.ConsumePredicted(claimed) {
			return world.ErrPredictedIDMismatch
		}
		id = claimed
	} else {
		var err error
		if id, err = st.IDs.Allocate(); err != nil {
			return err
		}
	}

	o.ID = id
	o.State = world.Spawning
	o.Predicted = predictor != nil
	if scene != "" {
		o.Scene = scene
	}
	st.SetOwner(o, owner)
	st.RegisterSpawned(o)
	*batch = append(*batch, o)

	st.BindBehaviours(o)
	o.State = world.Spawned

	for _, c := range children {
		if !c.Active || c.State != world.Unspawned || !st.Live(c) {
			continue
		}
		// nested children always draw server ids
		if err := s.spawnTree(c, owner, scene, nil, world.UnsetID, batch); err != nil {
			return err
		}
	}
	return nil
}

// respawnParked revives an object whose host-mode destroy has not been swept
// yet. It keeps its id; observers receive it again.
func (s *SpawnSystem) respawnParked(o *world.NetworkObject, owner *world.Connection, scene string) error {
	st := s.deps.World
	if o.Parent != nil && o.Parent.State != world.Spawned {
		s.deps.Log.Warn("生成失敗：父物件未生成", zap.Uint16("id", uint16(o.ID)))
		return world.ErrParentNotSpawned
	}
	if scene != "" {
		if o.Parent != nil {
			return world.ErrNotRoot
		}
		o.Scene = scene
	}
	if owner != o.Owner {
		st.SetOwner(o, owner)
	}
	if !s.deps.Despawner.CancelPendingDestroy(o) {
		return world.ErrAlreadySpawned
	}
	s.reconcileHost(append([]*world.NetworkObject{o}, o.Descendants()...))
	return nil
}

// rollback undoes a partially spawned batch, newest first.
func (s *SpawnSystem) rollback(batch []*world.NetworkObject) {
	st := s.deps.World
	for i := len(batch) - 1; i >= 0; i-- {
		o := batch[i]
		st.UnregisterSpawned(o)
		st.UnbindBehaviours(o)
		if err := st.IDs.Release(o.ID); err != nil {
			s.deps.Log.Error("回滾釋放 ID 失敗，please report",
				zap.Uint16("id", uint16(o.ID)), zap.Error(err))
		}
		st.SetOwner(o, nil)
		o.ID = world.UnsetID
		o.State = world.Unspawned
		o.Predicted = false
	}
}

// reconcileHost updates what the in-process client renders. It has no
// network path, so this happens synchronously.
func (s *SpawnSystem) reconcileHost(batch []*world.NetworkObject) {
	local := s.deps.World.Local()
	if local == nil {
		return
	}
	for _, o := range batch {
		o.HostVisible = o.IsObservedBy(local)
	}
}
