package world

import (
	"fmt"
	"sort"

	"github.com/l1jgo/netsync/internal/core/ecs"
)

// ObjectState is the replication lifecycle of a NetworkObject.
type ObjectState uint8

const (
	Unspawned ObjectState = iota
	Spawning
	Spawned
	Despawning
)

func (s ObjectState) String() string {
	switch s {
	case Unspawned:
		return "Unspawned"
	case Spawning:
		return "Spawning"
	case Spawned:
		return "Spawned"
	case Despawning:
		return "Despawning"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// DespawnReason tells clients whether to keep the object around (Normal)
// or tear it down (Destroy).
type DespawnReason uint8

const (
	DespawnNormal DespawnReason = iota
	DespawnDestroy
)

func (r DespawnReason) String() string {
	if r == DespawnDestroy {
		return "Destroy"
	}
	return "Normal"
}

// Transform is the spatial state carried in spawn messages.
type Transform struct {
	Position [3]float32
	Rotation [4]float32 // quaternion x, y, z, w
	Scale    [3]float32
}

// IdentityTransform is the origin with no rotation and unit scale.
func IdentityTransform() Transform {
	return Transform{
		Rotation: [4]float32{0, 0, 0, 1},
		Scale:    [3]float32{1, 1, 1},
	}
}

// NetworkObject is the unit of replication. Game loop goroutine only.
type NetworkObject struct {
	Handle ecs.EntityID
	ID     ObjectID
	State  ObjectState
	Kind   *Kind
	Owner  *Connection // nil = server owned

	Parent      *NetworkObject   // weak; the hierarchy owns children
	Children    []*NetworkObject // slot list; nil = destroyed child
	NestedIndex uint8            // slot in Parent.Children

	IsScene  bool
	SceneID  uint64 // stable id assigned at authoring time
	Scene    string
	IsGlobal bool

	SurviveDisconnect bool
	Active            bool // accompanies its parent when the parent spawns
	ActiveAtAuthoring bool

	Transform  Transform
	Payload    []byte
	Behaviours []*Behaviour

	Predicted   bool          // spawned through a client prediction
	HostVisible bool          // local (host mode) client renders this object
	Reason      DespawnReason // set while Despawning

	spawnSeq  uint64
	observers map[uint64]*Connection
}

func (o *NetworkObject) IsSpawned() bool { return o.State == Spawned }
func (o *NetworkObject) IsRoot() bool    { return o.Parent == nil }

// TypeTag returns the prefab tag of the object's kind.
func (o *NetworkObject) TypeTag() TypeTag {
	if o.Kind == nil {
		return 0
	}
	return o.Kind.Tag
}

// OwnerID returns the owning connection id, 0 for server owned objects.
func (o *NetworkObject) OwnerID() uint64 {
	if o.Owner == nil {
		return 0
	}
	return o.Owner.ID
}

// SpawnSeq orders objects by when they were spawned.
func (o *NetworkObject) SpawnSeq() uint64 { return o.spawnSeq }

func (o *NetworkObject) IsObservedBy(c *Connection) bool {
	if c == nil || o.observers == nil {
		return false
	}
	_, ok := o.observers[c.ID]
	return ok
}

func (o *NetworkObject) ObserverCount() int { return len(o.observers) }

// Observers returns a copy of the observer set ordered by connection id.
// Callers fan out over the copy; removal callbacks may mutate the set.
func (o *NetworkObject) Observers() []*Connection {
	out := make([]*Connection, 0, len(o.observers))
	for _, c := range o.observers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddObserver links c and o in both directions.
func (o *NetworkObject) AddObserver(c *Connection) bool {
	if o.observers == nil {
		o.observers = make(map[uint64]*Connection, 4)
	}
	if _, ok := o.observers[c.ID]; ok {
		return false
	}
	o.observers[c.ID] = c
	c.observing[o] = struct{}{}
	return true
}

// RemoveObserver unlinks c and o in both directions.
func (o *NetworkObject) RemoveObserver(c *Connection) bool {
	if _, ok := o.observers[c.ID]; !ok {
		return false
	}
	delete(o.observers, c.ID)
	delete(c.observing, o)
	return true
}

// ClearObservers unlinks every observer.
func (o *NetworkObject) ClearObservers() {
	for _, c := range o.observers {
		delete(c.observing, o)
	}
	clear(o.observers)
}

// Descendants returns the nested subtree below o in depth-first order.
func (o *NetworkObject) Descendants() []*NetworkObject {
	var out []*NetworkObject
	var walk func(*NetworkObject)
	walk = func(n *NetworkObject) {
		for _, c := range n.Children {
			if c == nil {
				continue
			}
			out = append(out, c)
			walk(c)
		}
	}
	walk(o)
	return out
}

// Child returns the object in slot i, or nil for an empty or missing slot.
func (o *NetworkObject) Child(i uint8) *NetworkObject {
	if int(i) >= len(o.Children) {
		return nil
	}
	return o.Children[i]
}

// LiveChildren returns the occupied child slots in slot order.
func (o *NetworkObject) LiveChildren() []*NetworkObject {
	out := make([]*NetworkObject, 0, len(o.Children))
	for _, c := range o.Children {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// authoredSlots is the number of slots reserved for prefab children.
func (o *NetworkObject) authoredSlots() int {
	if o.Kind == nil || o.Kind.Prefab == nil {
		return 0
	}
	return len(o.Kind.Prefab.Children)
}

// Behaviour returns the replicated-state holder at index i, or nil.
func (o *NetworkObject) Behaviour(i uint8) *Behaviour {
	if int(i) >= len(o.Behaviours) {
		return nil
	}
	return o.Behaviours[i]
}
