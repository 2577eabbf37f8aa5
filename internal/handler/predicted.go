package handler

import (
	"errors"
	"fmt"

	"github.com/l1jgo/netsync/internal/net/packet"
	"github.com/l1jgo/netsync/internal/world"
)

// SpawnRequest is a decoded C_PREDICTED_SPAWN.
type SpawnRequest struct {
	Flags     byte
	ClaimedID world.ObjectID

	HasParent   bool
	ParentID    world.ObjectID
	HasNested   bool
	NestedIndex uint8

	SceneID uint64 // set when Flags has SpawnFlagScene
	Prefab  uint16 // otherwise

	Position *[3]float32
	Rotation *[4]float32
	Scale    *[3]float32

	OwnerRef uint32 // 0 = requester default
	Payload  []byte
}

func (q *SpawnRequest) IsScene() bool { return q.Flags&packet.SpawnFlagScene != 0 }

const knownSpawnFlags = packet.SpawnFlagScene | packet.SpawnFlagParent | packet.SpawnFlagNested |
	packet.SpawnFlagPosition | packet.SpawnFlagRotation | packet.SpawnFlagScale

var (
	errUnknownFlags   = errors.New("unknown flag bits")
	errNestedNoParent = errors.New("nested index without parent")
	errNestedScene    = errors.New("nested scene reference")
	errTrailing       = errors.New("trailing bytes")
)

// DecodeSpawnRequest reads C_PREDICTED_SPAWN:
// [C flags][H claimed id][H parent]?[C nested]?([Q scene]|[H prefab])
// [3F pos]?[4F rot]?[3F scale]?[DU owner ref][H len][payload].
func DecodeSpawnRequest(r *packet.Reader) (*SpawnRequest, error) {
	q := &SpawnRequest{}
	q.Flags = r.ReadC()
	if q.Flags&^knownSpawnFlags != 0 {
		return nil, fmt.Errorf("flags 0x%02X: %w", q.Flags, errUnknownFlags)
	}
	q.ClaimedID = world.ObjectID(r.ReadH())
	if q.Flags&packet.SpawnFlagParent != 0 {
		q.HasParent = true
		q.ParentID = world.ObjectID(r.ReadH())
	}
	if q.Flags&packet.SpawnFlagNested != 0 {
		if !q.HasParent {
			return nil, errNestedNoParent
		}
		if q.IsScene() {
			return nil, errNestedScene
		}
		q.HasNested = true
		q.NestedIndex = r.ReadC()
	}
	if q.IsScene() {
		q.SceneID = r.ReadQ()
	} else {
		q.Prefab = r.ReadH()
	}
	if q.Flags&packet.SpawnFlagPosition != 0 {
		q.Position = &[3]float32{r.ReadF(), r.ReadF(), r.ReadF()}
	}
	if q.Flags&packet.SpawnFlagRotation != 0 {
		q.Rotation = &[4]float32{r.ReadF(), r.ReadF(), r.ReadF(), r.ReadF()}
	}
	if q.Flags&packet.SpawnFlagScale != 0 {
		q.Scale = &[3]float32{r.ReadF(), r.ReadF(), r.ReadF()}
	}
	q.OwnerRef = r.ReadDU()
	n := int(r.ReadH())
	q.Payload = r.ReadBytes(n)
	if err := r.Err(); err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%d %w", r.Remaining(), errTrailing)
	}
	return q, nil
}

// EncodeSpawnRequest is the client-side encoding of a request. Transform
// flags follow the presence of the override fields.
func EncodeSpawnRequest(q *SpawnRequest) []byte {
	flags := q.Flags &^ (packet.SpawnFlagPosition | packet.SpawnFlagRotation | packet.SpawnFlagScale)
	if q.Position != nil {
		flags |= packet.SpawnFlagPosition
	}
	if q.Rotation != nil {
		flags |= packet.SpawnFlagRotation
	}
	if q.Scale != nil {
		flags |= packet.SpawnFlagScale
	}
	w := packet.NewWriterWithOpcode(packet.C_PREDICTED_SPAWN)
	w.WriteC(flags)
	w.WriteH(uint16(q.ClaimedID))
	if q.Flags&packet.SpawnFlagParent != 0 {
		w.WriteH(uint16(q.ParentID))
	}
	if q.Flags&packet.SpawnFlagNested != 0 {
		w.WriteC(q.NestedIndex)
	}
	if q.IsScene() {
		w.WriteQ(q.SceneID)
	} else {
		w.WriteH(q.Prefab)
	}
	if q.Position != nil {
		for _, v := range q.Position {
			w.WriteF(v)
		}
	}
	if q.Rotation != nil {
		for _, v := range q.Rotation {
			w.WriteF(v)
		}
	}
	if q.Scale != nil {
		for _, v := range q.Scale {
			w.WriteF(v)
		}
	}
	w.WriteDU(q.OwnerRef)
	w.WriteBlob(q.Payload)
	return w.Bytes()
}

// HandlePredictedSpawn processes C_PREDICTED_SPAWN. A request that does not
// decode is a protocol violation.
func HandlePredictedSpawn(sess Session, r *packet.Reader, deps *Deps) {
	c := deps.World.Connection(sess.SessionID())
	if c == nil || c.Kicked() {
		return
	}
	q, err := DecodeSpawnRequest(r)
	if err != nil {
		Kick(deps, c, fmt.Sprintf("malformed predicted spawn: %v", err))
		return
	}
	deps.Predicted.HandleSpawnRequest(c, q)
}

// HandlePredictedDespawn processes C_PREDICTED_DESPAWN: [H object id].
func HandlePredictedDespawn(sess Session, r *packet.Reader, deps *Deps) {
	c := deps.World.Connection(sess.SessionID())
	if c == nil || c.Kicked() {
		return
	}
	id := world.ObjectID(r.ReadH())
	if r.Err() != nil || r.Remaining() != 0 {
		Kick(deps, c, "malformed predicted despawn")
		return
	}
	deps.Predicted.HandleDespawnRequest(c, id)
}
