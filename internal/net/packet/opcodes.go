package packet

import "fmt"

// Client → server opcodes.
const (
	C_HELLO             byte = 0x01
	C_ALIVE             byte = 0x02
	C_QUIT              byte = 0x03
	C_PREDICTED_SPAWN   byte = 0x10
	C_PREDICTED_DESPAWN byte = 0x11
)

// Server → client opcodes.
const (
	S_WELCOME                byte = 0x81
	S_REJECT                 byte = 0x82
	S_SPAWN                  byte = 0x90
	S_DESPAWN                byte = 0x91
	S_HIDE                   byte = 0x92
	S_PREDICTED_SPAWN_RESULT byte = 0x93
	S_SYNC_STATE             byte = 0x94
)

// ProtocolVersion is checked in C_HELLO.
const ProtocolVersion uint16 = 3

// C_PREDICTED_SPAWN flag bits.
const (
	SpawnFlagScene    byte = 1 << iota // scene id (Q) instead of prefab id (H)
	SpawnFlagParent                    // parent id (H) present
	SpawnFlagNested                    // nested index (C) present; requires parent
	SpawnFlagPosition                  // 3×F
	SpawnFlagRotation                  // 4×F
	SpawnFlagScale                     // 3×F
)

// S_SPAWN flag bits.
const (
	ObjFlagScene  byte = 1 << iota // scene id (Q) follows
	ObjFlagNested                  // parent id (H) and nested index (C) follow
	ObjFlagGlobal
	ObjFlagOwned // the receiving connection owns the object
)

var opcodeNames = map[byte]string{
	C_HELLO:                  "C_HELLO",
	C_ALIVE:                  "C_ALIVE",
	C_QUIT:                   "C_QUIT",
	C_PREDICTED_SPAWN:        "C_PREDICTED_SPAWN",
	C_PREDICTED_DESPAWN:      "C_PREDICTED_DESPAWN",
	S_WELCOME:                "S_WELCOME",
	S_REJECT:                 "S_REJECT",
	S_SPAWN:                  "S_SPAWN",
	S_DESPAWN:                "S_DESPAWN",
	S_HIDE:                   "S_HIDE",
	S_PREDICTED_SPAWN_RESULT: "S_PREDICTED_SPAWN_RESULT",
	S_SYNC_STATE:             "S_SYNC_STATE",
}

// OpcodeName returns the protocol name of op, or its hex value.
func OpcodeName(op byte) string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}
	return fmt.Sprintf("0x%02X", op)
}
