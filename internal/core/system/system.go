package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain session queues, dispatch requests
	PhasePreUpdate               // 1: deliver last tick's events (scene loads, connection state)
	PhaseUpdate                  // 2: gameplay-driven spawn/despawn
	PhasePostUpdate              // 3: dirty-state flush, observer rebuild
	PhaseOutput                  // 4: flush session buffers to the writers
	PhasePersist                 // 5: violation log batch flush
	PhaseCleanup                 // 6: pending destroy sweep, destroy queue, ledger sweep
)

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
