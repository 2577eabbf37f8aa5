package system

import (
	"time"

	"github.com/l1jgo/netsync/internal/core/event"
	coresys "github.com/l1jgo/netsync/internal/core/system"
)

// EventSystem delivers events emitted during the previous tick. Handlers
// emitting new events see them delivered next tick. Phase 1 (PreUpdate).
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
