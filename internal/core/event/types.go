package event

// SceneLoadStarted fires before a scene's authored objects are discovered.
// Objects registered while a load is in flight are not spawned.
type SceneLoadStarted struct {
	Scene string
}

// SceneLoaded fires once a scene finished loading.
type SceneLoaded struct {
	Scene string
}

// ConnectionReady fires when a client completed its handshake.
type ConnectionReady struct {
	ConnID uint64
}

// ConnectionClosed fires after a connection's objects were cleaned up.
type ConnectionClosed struct {
	ConnID uint64
}

// ServerStopped fires when the server stops replicating.
type ServerStopped struct{}
