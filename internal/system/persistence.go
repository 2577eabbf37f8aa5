package system

import (
	"context"
	"time"

	coresys "github.com/l1jgo/netsync/internal/core/system"
	"github.com/l1jgo/netsync/internal/persist"
	"github.com/l1jgo/netsync/internal/world"
	"go.uber.org/zap"
)

// ViolationWriter stores a batch of violations. *persist.ViolationRepo
// implements it.
type ViolationWriter interface {
	WriteBatch(ctx context.Context, entries []persist.ViolationEntry) error
}

// PersistenceSystem buffers protocol violations and writes them out in
// batches every interval ticks. Phase 5 (Persist).
type PersistenceSystem struct {
	world     *world.State
	repo      ViolationWriter // nil = log only
	log       *zap.Logger
	pending   []persist.ViolationEntry
	tickCount int
	interval  int
	now       func() time.Time
}

func NewPersistenceSystem(ws *world.State, repo ViolationWriter, log *zap.Logger, intervalTicks int) *PersistenceSystem {
	if intervalTicks < 1 {
		intervalTicks = 1
	}
	return &PersistenceSystem{
		world:    ws,
		repo:     repo,
		log:      log,
		interval: intervalTicks,
		now:      time.Now,
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

// Record queues a violation for the next batch.
func (s *PersistenceSystem) Record(c *world.Connection, reason string) {
	if s.repo == nil {
		return
	}
	e := persist.ViolationEntry{
		SessionUUID: s.world.SessionID,
		Reason:      reason,
		Tick:        s.world.Clock.Tick(),
		At:          s.now(),
	}
	if c != nil {
		e.ConnectionID = c.ID
		e.RemoteAddr = c.Addr
	}
	s.pending = append(s.pending, e)
}

// Pending returns the number of buffered violations.
func (s *PersistenceSystem) Pending() int { return len(s.pending) }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.Flush()
}

// Flush writes the buffered violations now. Called on shutdown too.
func (s *PersistenceSystem) Flush() {
	if len(s.pending) == 0 || s.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch := s.pending
	s.pending = nil
	if err := s.repo.WriteBatch(ctx, batch); err != nil {
		s.log.Error("違規紀錄寫入失敗", zap.Int("count", len(batch)), zap.Error(err))
		return
	}
	s.log.Debug("違規紀錄已寫入", zap.Int("count", len(batch)))
}
