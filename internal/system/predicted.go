package system

import (
	"errors"
	"fmt"

	"github.com/l1jgo/netsync/internal/handler"
	"github.com/l1jgo/netsync/internal/world"
	"go.uber.org/zap"
)

// PredictedSystem arbitrates client-predicted spawns and despawns. Each
// connection holds a FIFO of server-issued ids; a spawn request must claim
// the head of that queue, and every request is answered with the next id
// appended to it.
type PredictedSystem struct {
	deps *handler.Deps
}

func NewPredictedSystem(deps *handler.Deps) *PredictedSystem {
	return &PredictedSystem{deps: deps}
}

// IssueInitialIDs fills c's predicted id queue (sent in S_WELCOME).
func (s *PredictedSystem) IssueInitialIDs(c *world.Connection) {
	r := s.deps.Config.Replication
	if !r.PredictedSpawning {
		return
	}
	for i := 0; i < r.PredictedQueueSize; i++ {
		if s.reserve(c) == world.UnsetID {
			return
		}
	}
}

// reserve appends one freshly allocated id to c's queue. Returns UnsetID
// when the namespace is exhausted.
func (s *PredictedSystem) reserve(c *world.Connection) world.ObjectID {
	id, err := s.deps.World.IDs.Allocate()
	if err != nil {
		s.deps.Log.Error("物件 ID 命名空間已耗盡",
			zap.Uint64("conn", c.ID),
			zap.Int("queued", len(c.PredictedIDs())))
		return world.UnsetID
	}
	c.PushPredicted(id)
	return id
}

// HandleSpawnRequest validates a predicted spawn, spawns it and replies
// with S_PREDICTED_SPAWN_RESULT. A claimed id other than the queue head is
// a protocol violation and kicks the connection.
func (s *PredictedSystem) HandleSpawnRequest(c *world.Connection, q *handler.SpawnRequest) {
	st := s.deps.World
	head, ok := c.PeekPredicted()
	if !ok || head != q.ClaimedID {
		handler.Kick(s.deps, c, fmt.Sprintf("predicted id %d does not match queue head %d", q.ClaimedID, head))
		return
	}

	err := s.trySpawn(c, q)
	if err != nil {
		// The claimed id is spent either way; return it unless an object
		// holds it.
		c.ConsumePredicted(q.ClaimedID)
		if !st.IDs.IsFree(q.ClaimedID) && st.Spawned(q.ClaimedID) == nil {
			if rerr := st.IDs.Release(q.ClaimedID); rerr != nil {
				s.deps.Log.Error("釋放預測 ID 失敗，please report",
					zap.Uint16("id", uint16(q.ClaimedID)), zap.Error(rerr))
			}
			st.Ledger.Record(q.ClaimedID, st.Clock.Tick())
		}
		s.deps.Log.Debug("預測生成被拒絕",
			zap.Uint64("conn", c.ID),
			zap.Uint16("id", uint16(q.ClaimedID)),
			zap.Error(err))
	}

	next := s.reserve(c)
	handler.SendPredictedSpawnResult(c, err == nil, q.ClaimedID, next)
}

var (
	errPredictionDisabled = errors.New("predicted spawning disabled")
	errUnknownParent      = errors.New("parent not found")
	errBadNestedIndex     = errors.New("nested slot empty or out of range")
	errNestedMismatch     = errors.New("nested prefab mismatch")
	errForeignOwner       = errors.New("owner reference is not the requester")
)

func (s *PredictedSystem) trySpawn(c *world.Connection, q *handler.SpawnRequest) error {
	st := s.deps.World
	log := s.deps.Log.With(zap.Uint64("conn", c.ID), zap.Uint16("claimed", uint16(q.ClaimedID)))

	if !s.deps.Config.Replication.PredictedSpawning {
		return errPredictionDisabled
	}

	var parent *world.NetworkObject
	if q.HasParent {
		parent = st.Spawned(q.ParentID)
		if parent == nil || parent.State != world.Spawned {
			if st.Ledger.WasRecentlyRemoved(q.ParentID, st.Ledger.Retention()) {
				log.Debug("預測生成的父物件剛被移除", zap.Uint16("parent", uint16(q.ParentID)))
			} else {
				log.Warn("預測生成的父物件不存在", zap.Uint16("parent", uint16(q.ParentID)))
			}
			return errUnknownParent
		}
	}

	var o *world.NetworkObject
	created := false
	switch {
	case q.HasNested:
		if o = parent.Child(q.NestedIndex); o == nil {
			log.Warn("巢狀索引無效", zap.Uint8("index", q.NestedIndex))
			return errBadNestedIndex
		}
		if o.TypeTag() != world.TypeTag(q.Prefab) {
			log.Warn("巢狀物件類型不符", zap.Uint16("prefab", q.Prefab))
			return errNestedMismatch
		}
	case q.IsScene():
		o = st.SceneObject(q.SceneID)
		if o == nil {
			log.Warn("預測生成的場景物件不存在", zap.Uint64("scene_id", q.SceneID))
			return world.ErrSceneObjectNotFound
		}
		if o.Parent != parent {
			log.Warn("場景物件的父物件不符", zap.Uint64("scene_id", q.SceneID))
			return world.ErrParentNotSpawned
		}
	default:
		var err error
		if o, err = st.Instantiate(q.Prefab); err != nil {
			log.Warn("預測生成的預製物不存在", zap.Uint16("prefab", q.Prefab))
			return err
		}
		created = true
		if parent != nil {
			if err := st.AttachChild(parent, o); err != nil {
				log.Warn("父物件的子物件欄位已滿", zap.Uint16("parent", uint16(parent.ID)))
				st.Destroy(o)
				return err
			}
		}
	}

	if q.OwnerRef != 0 && uint64(q.OwnerRef) != c.ID {
		log.Warn("預測生成指定了其他擁有者", zap.Uint32("owner", q.OwnerRef))
		s.discard(o, created)
		return errForeignOwner
	}

	prevTransform, prevPayload := o.Transform, o.Payload
	if q.Position != nil {
		o.Transform.Position = *q.Position
	}
	if q.Rotation != nil {
		o.Transform.Rotation = *q.Rotation
	}
	if q.Scale != nil {
		o.Transform.Scale = *q.Scale
	}
	o.Payload = q.Payload

	if err := s.deps.Spawner.SpawnPredicted(o, c, q.ClaimedID); err != nil {
		if !created {
			o.Transform, o.Payload = prevTransform, prevPayload
		}
		s.discard(o, created)
		return err
	}
	return nil
}

// discard drops an object instantiated for a rejected request.
func (s *PredictedSystem) discard(o *world.NetworkObject, created bool) {
	if created {
		s.deps.World.Destroy(o)
	}
}

// HandleDespawnRequest validates a predicted despawn and destroys the
// object. There is no reply: the despawn notification acknowledges it.
func (s *PredictedSystem) HandleDespawnRequest(c *world.Connection, id world.ObjectID) {
	st := s.deps.World
	o := st.Spawned(id)
	if o == nil || o.State != world.Spawned {
		if st.Ledger.WasRecentlyRemoved(id, st.Ledger.Retention()) {
			s.deps.Log.Debug("預測移除的物件剛被移除", zap.Uint64("conn", c.ID), zap.Uint16("id", uint16(id)))
		} else {
			s.deps.Log.Warn("預測移除的物件不存在", zap.Uint64("conn", c.ID), zap.Uint16("id", uint16(id)))
		}
		return
	}
	if !s.deps.Config.Replication.PredictedSpawning || o.Owner != c || !o.Kind.AllowsPredictedDespawn(c, o) {
		s.deps.Log.Warn("預測移除不符資格",
			zap.Uint64("conn", c.ID),
			zap.Uint16("id", uint16(id)),
			zap.Uint64("owner", o.OwnerID()))
		return
	}
	if err := s.deps.Despawner.Despawn(o, world.DespawnDestroy); err != nil {
		s.deps.Log.Warn("預測移除失敗", zap.Uint16("id", uint16(id)), zap.Error(err))
	}
}
