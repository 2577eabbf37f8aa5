package world

// removedEntry is one ledger record in tick order.
type removedEntry struct {
	id   ObjectID
	tick uint32
}

// RemovedLedger remembers which ids were despawned within a trailing window
// so late or duplicate messages about them can be told apart from protocol
// errors. It is advisory: it never gates allocation.
//
// Entries live in a tick-ordered log; Sweep resumes from a cursor and looks
// at a bounded number of entries per call, so a tick with a burst of
// despawns cannot stall the loop. Lookups check the window against the
// clock, so their answer does not depend on how far sweeping has got.
type RemovedLedger struct {
	clock     *Clock
	retention uint32
	log       []removedEntry
	cursor    int                 // first unswept entry in log
	latest    map[ObjectID]uint32 // id → most recent removal tick
}

func NewRemovedLedger(clock *Clock, retention uint32) *RemovedLedger {
	return &RemovedLedger{
		clock:     clock,
		retention: retention,
		log:       make([]removedEntry, 0, 256),
		latest:    make(map[ObjectID]uint32, 256),
	}
}

// Record notes that id was removed at tick.
func (l *RemovedLedger) Record(id ObjectID, tick uint32) {
	l.log = append(l.log, removedEntry{id: id, tick: tick})
	l.latest[id] = tick
}

// WasRecentlyRemoved reports whether id was removed no more than within
// ticks ago, capped at the retention horizon.
func (l *RemovedLedger) WasRecentlyRemoved(id ObjectID, within uint32) bool {
	t, ok := l.latest[id]
	if !ok {
		return false
	}
	now := l.clock.Tick()
	if now < t {
		return false
	}
	age := now - t
	return age <= within && age <= l.retention
}

// SweepBudget returns how many entries one Sweep call may examine.
func (l *RemovedLedger) SweepBudget() int {
	n := l.Len() * 5 / 100
	if n < 20 {
		n = 20
	}
	return n
}

// Sweep drops entries older than the retention horizon, examining at most
// SweepBudget entries. Returns how many entries were dropped.
func (l *RemovedLedger) Sweep(current uint32) int {
	budget := l.SweepBudget()
	dropped := 0
	for budget > 0 && l.cursor < len(l.log) {
		e := l.log[l.cursor]
		if current < e.tick || current-e.tick <= l.retention {
			break // log is tick ordered; everything after is newer
		}
		if l.latest[e.id] == e.tick {
			delete(l.latest, e.id)
		}
		l.cursor++
		budget--
		dropped++
	}
	l.compact()
	return dropped
}

// Len returns the number of entries not yet swept.
func (l *RemovedLedger) Len() int { return len(l.log) - l.cursor }

// Retention returns the configured horizon in ticks.
func (l *RemovedLedger) Retention() uint32 { return l.retention }

func (l *RemovedLedger) compact() {
	if l.cursor == 0 || l.cursor*2 < len(l.log) {
		return
	}
	n := copy(l.log, l.log[l.cursor:])
	l.log = l.log[:n]
	l.cursor = 0
}
