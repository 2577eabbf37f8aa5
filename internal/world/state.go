package world

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/l1jgo/netsync/internal/core/ecs"
)

// LocalConnID is the connection id of the in-process host client. Remote
// sessions are numbered from 1 and never reach it.
const LocalConnID uint64 = math.MaxUint32

// State is the replication registry of one server session.
// Accessed only from the game loop goroutine, no locks needed.
type State struct {
	SessionID uuid.UUID

	Clock  *Clock
	IDs    *IDAllocator
	Ledger *RemovedLedger
	Dirty  *DirtySet
	Kinds  *KindTable

	// ServerActive is true between server Started and Stopped.
	ServerActive bool

	ecs     *ecs.World
	objects *ecs.PtrComponentStore[NetworkObject]

	spawned    map[ObjectID]*NetworkObject
	scene      map[uint64]*NetworkObject
	sceneOrder []uint64

	conns map[uint64]*Connection
	local *Connection

	pending    []ecs.EntityID
	pendingSet map[ecs.EntityID]struct{}

	spawnSeq uint64
}

// NewState builds an empty registry. namespace is the identifier namespace
// size N; retention is the ledger horizon in ticks.
func NewState(kinds *KindTable, namespace int, sequential bool, retention uint32) *State {
	clock := &Clock{}
	w := ecs.NewWorld()
	objects := ecs.NewPtrComponentStore[NetworkObject]()
	w.Registry().Register(objects)
	return &State{
		SessionID:  uuid.New(),
		Clock:      clock,
		IDs:        NewIDAllocator(namespace, sequential),
		Ledger:     NewRemovedLedger(clock, retention),
		Dirty:      NewDirtySet(),
		Kinds:      kinds,
		ecs:        w,
		objects:    objects,
		spawned:    make(map[ObjectID]*NetworkObject, 256),
		scene:      make(map[uint64]*NetworkObject, 64),
		conns:      make(map[uint64]*Connection, 16),
		pendingSet: make(map[ecs.EntityID]struct{}, 8),
	}
}

// ---------- Objects ----------

// Instantiate builds an Unspawned object (and its nested children) from a
// prefab. Children are attached in authoring order.
func (s *State) Instantiate(prefab uint16) (*NetworkObject, error) {
	k := s.Kinds.Get(TypeTag(prefab))
	if k == nil {
		return nil, fmt.Errorf("instantiate prefab %d: %w", prefab, ErrUnknownPrefab)
	}
	return s.instantiate(k, nil, 0, true), nil
}

func (s *State) instantiate(k *Kind, parent *NetworkObject, index uint8, active bool) *NetworkObject {
	p := k.Prefab
	o := &NetworkObject{
		Handle:            s.ecs.CreateEntity(),
		ID:                UnsetID,
		State:             Unspawned,
		Kind:              k,
		Parent:            parent,
		NestedIndex:       index,
		IsGlobal:          p.Global,
		SurviveDisconnect: p.SurviveDisconnect,
		Active:            active,
		ActiveAtAuthoring: active,
		Transform:         IdentityTransform(),
	}
	for i, b := range p.Behaviours {
		o.Behaviours = append(o.Behaviours, newBehaviour(o, uint8(i), b.Name, b.SyncInterval))
	}
	s.objects.Set(o.Handle, o)
	for i, c := range p.Children {
		ck := s.Kinds.Get(TypeTag(c.Prefab))
		if ck == nil {
			// prefab tables reject unknown children at load time
			continue
		}
		o.Children = append(o.Children, s.instantiate(ck, o, uint8(i), c.Active))
	}
	return o
}

// Object resolves an arena handle. Stale handles return false.
func (s *State) Object(h ecs.EntityID) (*NetworkObject, bool) {
	if !s.ecs.Alive(h) {
		return nil, false
	}
	return s.objects.Get(h)
}

// Destroy queues o and its subtree for removal at end of tick and frees
// o's slot under its parent.
func (s *State) Destroy(o *NetworkObject) {
	s.detach(o)
	s.ecs.MarkForDestruction(o.Handle)
	for _, c := range o.Descendants() {
		s.ecs.MarkForDestruction(c.Handle)
	}
}

// Live reports whether o's handle is alive and not queued for destruction.
func (s *State) Live(o *NetworkObject) bool {
	return s.ecs.Alive(o.Handle) && !s.ecs.PendingDestruction(o.Handle)
}

// AttachChild nests c under parent. Prefab slots keep their authored
// indices; runtime children take the first empty slot after them.
func (s *State) AttachChild(parent, c *NetworkObject) error {
	idx := -1
	for i := parent.authoredSlots(); i < len(parent.Children); i++ {
		if parent.Children[i] == nil {
			idx = i
			break
		}
	}
	if idx < 0 {
		// NestedIndex is a byte
		if len(parent.Children) >= math.MaxUint8 {
			return ErrNoChildSlot
		}
		for len(parent.Children) < parent.authoredSlots() {
			parent.Children = append(parent.Children, nil)
		}
		idx = len(parent.Children)
		parent.Children = append(parent.Children, nil)
	}
	parent.Children[idx] = c
	c.Parent = parent
	c.NestedIndex = uint8(idx)
	return nil
}

// detach empties o's slot. Trailing empty runtime slots are trimmed.
func (s *State) detach(o *NetworkObject) {
	p := o.Parent
	if p == nil {
		return
	}
	if p.Child(o.NestedIndex) == o {
		p.Children[o.NestedIndex] = nil
		n := len(p.Children)
		for n > p.authoredSlots() && p.Children[n-1] == nil {
			n--
		}
		p.Children = p.Children[:n]
	}
	o.Parent = nil
}

// DestroyQueued reports whether o is waiting for removal.
func (s *State) DestroyQueued(o *NetworkObject) bool {
	return s.ecs.PendingDestruction(o.Handle)
}

// FlushDestroyed removes queued objects from the arena and the scene
// registry. Returns how many were removed.
func (s *State) FlushDestroyed() int {
	s.objects.Each(func(h ecs.EntityID, o *NetworkObject) {
		if o.IsScene && s.ecs.PendingDestruction(h) {
			s.unregisterScene(o)
		}
	})
	return s.ecs.FlushDestroyQueue()
}

// ObjectCount returns the number of live objects in the arena.
func (s *State) ObjectCount() int { return s.objects.Len() }

// ---------- Spawned registry ----------

// RegisterSpawned indexes o under its id and stamps its spawn sequence.
func (s *State) RegisterSpawned(o *NetworkObject) {
	s.spawnSeq++
	o.spawnSeq = s.spawnSeq
	s.spawned[o.ID] = o
}

// UnregisterSpawned drops o from the id index.
func (s *State) UnregisterSpawned(o *NetworkObject) {
	if cur, ok := s.spawned[o.ID]; ok && cur == o {
		delete(s.spawned, o.ID)
	}
}

// Spawned looks up a spawned (or despawning) object by id.
func (s *State) Spawned(id ObjectID) *NetworkObject {
	return s.spawned[id]
}

func (s *State) SpawnedCount() int { return len(s.spawned) }

// SpawnedInOrder returns every registered object, oldest spawn first.
// Parents always precede their children.
func (s *State) SpawnedInOrder() []*NetworkObject {
	out := make([]*NetworkObject, 0, len(s.spawned))
	for _, o := range s.spawned {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].spawnSeq < out[j].spawnSeq })
	return out
}

// BindBehaviours attaches o's state holders to the dirty set.
func (s *State) BindBehaviours(o *NetworkObject) {
	for _, b := range o.Behaviours {
		b.bind(s.Dirty, s.Clock.Tick())
	}
}

// UnbindBehaviours detaches o's state holders from the dirty set.
func (s *State) UnbindBehaviours(o *NetworkObject) {
	for _, b := range o.Behaviours {
		b.unbind()
	}
}

// ---------- Scene objects ----------

// RegisterSceneObject records an authored object under its scene id.
func (s *State) RegisterSceneObject(o *NetworkObject) error {
	if o.SceneID == 0 {
		return ErrInvalidSceneID
	}
	if cur, ok := s.scene[o.SceneID]; ok && cur != o {
		return fmt.Errorf("scene id %d: %w", o.SceneID, ErrDuplicateSceneID)
	}
	if _, ok := s.scene[o.SceneID]; !ok {
		s.sceneOrder = append(s.sceneOrder, o.SceneID)
	}
	o.IsScene = true
	s.scene[o.SceneID] = o
	return nil
}

func (s *State) unregisterScene(o *NetworkObject) {
	if cur, ok := s.scene[o.SceneID]; !ok || cur != o {
		return
	}
	delete(s.scene, o.SceneID)
	for i, id := range s.sceneOrder {
		if id == o.SceneID {
			s.sceneOrder = append(s.sceneOrder[:i], s.sceneOrder[i+1:]...)
			break
		}
	}
}

// SceneObject returns the registered object with the given scene id.
func (s *State) SceneObject(sceneID uint64) *NetworkObject {
	return s.scene[sceneID]
}

// IsSceneRegistered reports whether o is the object registered under its
// scene id.
func (s *State) IsSceneRegistered(o *NetworkObject) bool {
	cur, ok := s.scene[o.SceneID]
	return ok && cur == o
}

// SceneObjects returns the registered objects of a scene in registration
// order.
func (s *State) SceneObjects(scene string) []*NetworkObject {
	var out []*NetworkObject
	for _, id := range s.sceneOrder {
		if o := s.scene[id]; o.Scene == scene {
			out = append(out, o)
		}
	}
	return out
}

// ---------- Connections ----------

func (s *State) AddConnection(c *Connection) {
	s.conns[c.ID] = c
	if c.IsLocal {
		s.local = c
	}
}

func (s *State) RemoveConnection(id uint64) {
	if s.local != nil && s.local.ID == id {
		s.local = nil
	}
	delete(s.conns, id)
}

func (s *State) Connection(id uint64) *Connection {
	return s.conns[id]
}

// Connections returns every connection ordered by id.
func (s *State) Connections() []*Connection {
	out := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReadyConnections returns handshaken connections ordered by id.
func (s *State) ReadyConnections() []*Connection {
	out := make([]*Connection, 0, len(s.conns))
	for _, c := range s.Connections() {
		if c.Ready {
			out = append(out, c)
		}
	}
	return out
}

// HasReadyClient reports whether any connection finished its handshake.
func (s *State) HasReadyClient() bool {
	for _, c := range s.conns {
		if c.Ready {
			return true
		}
	}
	return false
}

// Local returns the host-mode client, or nil.
func (s *State) Local() *Connection { return s.local }

// HostMode reports whether a local client shares this process.
func (s *State) HostMode() bool { return s.local != nil }

// SetOwner moves o to owner c (nil = server).
func (s *State) SetOwner(o *NetworkObject, c *Connection) {
	if o.Owner == c {
		return
	}
	if o.Owner != nil {
		delete(o.Owner.owned, o)
	}
	o.Owner = c
	if c != nil {
		c.owned[o] = struct{}{}
	}
}

// ---------- Host-mode pending destroy ----------

// ParkPendingDestroy holds o until the end-of-tick sweep.
func (s *State) ParkPendingDestroy(o *NetworkObject) {
	if _, ok := s.pendingSet[o.Handle]; ok {
		return
	}
	s.pendingSet[o.Handle] = struct{}{}
	s.pending = append(s.pending, o.Handle)
}

// UnparkPendingDestroy removes o from the holding set.
func (s *State) UnparkPendingDestroy(o *NetworkObject) bool {
	if _, ok := s.pendingSet[o.Handle]; !ok {
		return false
	}
	delete(s.pendingSet, o.Handle)
	for i, h := range s.pending {
		if h == o.Handle {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	return true
}

func (s *State) IsPendingDestroy(o *NetworkObject) bool {
	_, ok := s.pendingSet[o.Handle]
	return ok
}

// TakePendingDestroy empties the holding set and returns its handles in
// parking order.
func (s *State) TakePendingDestroy() []ecs.EntityID {
	out := s.pending
	s.pending = nil
	clear(s.pendingSet)
	return out
}

func (s *State) PendingDestroyCount() int { return len(s.pending) }
