package system

import (
	"time"

	coresys "github.com/l1jgo/netsync/internal/core/system"
	"github.com/l1jgo/netsync/internal/world"
)

// LedgerSystem sweeps the recently-removed ledger once per advanced tick.
// Input polling between ticks leaves the clock alone and skips the sweep.
// Phase 6 (Cleanup).
type LedgerSystem struct {
	world    *world.State
	lastTick uint32
	swept    bool
}

func NewLedgerSystem(ws *world.State) *LedgerSystem {
	return &LedgerSystem{world: ws}
}

func (s *LedgerSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *LedgerSystem) Update(_ time.Duration) {
	now := s.world.Clock.Tick()
	if s.swept && now == s.lastTick {
		return
	}
	s.swept = true
	s.lastTick = now
	s.world.Ledger.Sweep(now)
}
