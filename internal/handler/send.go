package handler

import (
	"github.com/l1jgo/netsync/internal/net/packet"
	"github.com/l1jgo/netsync/internal/world"
)

// SendWelcome sends S_WELCOME: [DU conn id][C count][H id]...
func SendWelcome(c *world.Connection) {
	ids := c.PredictedIDs()
	w := packet.NewWriterWithOpcode(packet.S_WELCOME)
	w.WriteDU(uint32(c.ID))
	w.WriteC(byte(len(ids)))
	for _, id := range ids {
		w.WriteH(uint16(id))
	}
	c.Send(w.Bytes())
}

// messageSink queues one outbound message. Sessions and connections both
// qualify.
type messageSink interface {
	Send(data []byte)
}

// SendReject sends S_REJECT with a human readable reason.
func SendReject(s messageSink, reason string) {
	w := packet.NewWriterWithOpcode(packet.S_REJECT)
	w.WriteS(reason)
	s.Send(w.Bytes())
}

// BuildSpawn encodes S_SPAWN of o as seen by viewer.
func BuildSpawn(viewer *world.Connection, o *world.NetworkObject) []byte {
	var flags byte
	if o.IsScene {
		flags |= packet.ObjFlagScene
	}
	if o.Parent != nil {
		flags |= packet.ObjFlagNested
	}
	if o.IsGlobal {
		flags |= packet.ObjFlagGlobal
	}
	if viewer != nil && o.Owner == viewer {
		flags |= packet.ObjFlagOwned
	}

	w := packet.NewWriterWithOpcode(packet.S_SPAWN)
	w.WriteH(uint16(o.ID))
	w.WriteH(uint16(o.TypeTag()))
	w.WriteC(flags)
	if o.IsScene {
		w.WriteQ(o.SceneID)
	}
	if o.Parent != nil {
		w.WriteH(uint16(o.Parent.ID))
		w.WriteC(o.NestedIndex)
	}
	w.WriteDU(uint32(o.OwnerID()))
	for _, v := range o.Transform.Position {
		w.WriteF(v)
	}
	for _, v := range o.Transform.Rotation {
		w.WriteF(v)
	}
	for _, v := range o.Transform.Scale {
		w.WriteF(v)
	}
	w.WriteBlob(o.Payload)

	w.WriteC(byte(len(o.Behaviours)))
	for _, b := range o.Behaviours {
		vars := b.Snapshot()
		w.WriteC(byte(len(vars)))
		for _, v := range vars {
			w.WriteC(v.Index)
			w.WriteBlob(v.Value)
		}
	}
	return w.Bytes()
}

// SendSpawn sends S_SPAWN of o to c.
func SendSpawn(c *world.Connection, o *world.NetworkObject) {
	c.Send(BuildSpawn(c, o))
}

// BuildDespawn encodes S_DESPAWN: [H id][C reason].
func BuildDespawn(id world.ObjectID, reason world.DespawnReason) []byte {
	w := packet.NewWriterWithOpcode(packet.S_DESPAWN)
	w.WriteH(uint16(id))
	w.WriteC(byte(reason))
	return w.Bytes()
}

// SendHide sends S_HIDE: the viewer lost sight of a still spawned object.
func SendHide(c *world.Connection, id world.ObjectID) {
	w := packet.NewWriterWithOpcode(packet.S_HIDE)
	w.WriteH(uint16(id))
	c.Send(w.Bytes())
}

// SendPredictedSpawnResult sends S_PREDICTED_SPAWN_RESULT:
// [C success][H id][H next reserved id].
func SendPredictedSpawnResult(c *world.Connection, success bool, id, next world.ObjectID) {
	w := packet.NewWriterWithOpcode(packet.S_PREDICTED_SPAWN_RESULT)
	w.WriteBool(success)
	w.WriteH(uint16(id))
	w.WriteH(uint16(next))
	c.Send(w.Bytes())
}

// BuildSyncState encodes S_SYNC_STATE for one behaviour:
// [H id][C behaviour][C count]{[C var][H len][bytes]}.
func BuildSyncState(id world.ObjectID, behaviour uint8, vars []world.SyncVar) []byte {
	w := packet.NewWriterWithOpcode(packet.S_SYNC_STATE)
	w.WriteH(uint16(id))
	w.WriteC(behaviour)
	w.WriteC(byte(len(vars)))
	for _, v := range vars {
		w.WriteC(v.Index)
		w.WriteBlob(v.Value)
	}
	return w.Bytes()
}
