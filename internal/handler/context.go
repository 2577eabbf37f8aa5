package handler

import (
	"github.com/l1jgo/netsync/internal/config"
	"github.com/l1jgo/netsync/internal/core/event"
	"github.com/l1jgo/netsync/internal/net/packet"
	"github.com/l1jgo/netsync/internal/world"
	"go.uber.org/zap"
)

// Session is the transport view a handler needs. *net.Session implements it.
type Session interface {
	world.Sender
	SessionID() uint64
	RemoteAddr() string
	SetState(packet.SessionState)
}

// Spawner creates the server-side representation of objects
// (implemented by system.SpawnSystem).
type Spawner interface {
	Spawn(o *world.NetworkObject, owner *world.Connection, scene string) error
	SpawnPredicted(o *world.NetworkObject, c *world.Connection, claimed world.ObjectID) error
}

// Despawner tears objects down (implemented by system.DespawnSystem).
type Despawner interface {
	Despawn(o *world.NetworkObject, reason world.DespawnReason) error
	CancelPendingDestroy(o *world.NetworkObject) bool
	Disconnect(c *world.Connection)
}

// Predicted arbitrates client-predicted requests
// (implemented by system.PredictedSystem).
type Predicted interface {
	IssueInitialIDs(c *world.Connection)
	HandleSpawnRequest(c *world.Connection, req *SpawnRequest)
	HandleDespawnRequest(c *world.Connection, id world.ObjectID)
}

// Observers recomputes visibility for a batch of newly spawned objects and
// transmits spawn state to connections that gained them
// (implemented by system.ObserverSystem).
type Observers interface {
	RebuildObservers(batch []*world.NetworkObject)
}

// Violations records protocol violations (implemented by
// system.PersistenceSystem). nil = log only.
type Violations interface {
	Record(c *world.Connection, reason string)
}

// Deps holds shared dependencies injected into all packet handlers and
// replication systems. It is the explicit session handle: nothing reaches
// the registry through package globals.
type Deps struct {
	Config *config.Config
	Log    *zap.Logger
	World  *world.State
	Bus    *event.Bus

	Spawner    Spawner
	Despawner  Despawner
	Predicted  Predicted
	Observers  Observers
	Violations Violations
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	reg.Register(packet.C_HELLO,
		[]packet.SessionState{packet.StateHandshake},
		func(sess any, r *packet.Reader) {
			HandleHello(sess.(Session), r, deps)
		},
	)

	readyStates := []packet.SessionState{packet.StateReady}

	reg.Register(packet.C_PREDICTED_SPAWN, readyStates,
		func(sess any, r *packet.Reader) {
			HandlePredictedSpawn(sess.(Session), r, deps)
		},
	)
	reg.Register(packet.C_PREDICTED_DESPAWN, readyStates,
		func(sess any, r *packet.Reader) {
			HandlePredictedDespawn(sess.(Session), r, deps)
		},
	)
	reg.Register(packet.C_ALIVE, readyStates,
		func(sess any, r *packet.Reader) {
			// keep-alive only refreshes the read deadline
		},
	)
	reg.Register(packet.C_QUIT,
		[]packet.SessionState{packet.StateHandshake, packet.StateReady},
		func(sess any, r *packet.Reader) {
			HandleQuit(sess.(Session), r, deps)
		},
	)
}
