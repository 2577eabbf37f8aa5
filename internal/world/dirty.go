package world

import "sort"

// SyncVar is one replicated field value.
type SyncVar struct {
	Index uint8
	Value []byte
}

// Behaviour is a replicated-state holder attached to a NetworkObject.
// Field changes are recorded here and flushed by DirtySystem.
type Behaviour struct {
	Object       *NetworkObject
	Index        uint8
	Name         string
	SyncInterval uint32 // minimum ticks between flushes

	vars     map[uint8][]byte
	changed  []uint8
	lastSync uint32
	set      *DirtySet
}

func newBehaviour(o *NetworkObject, index uint8, name string, interval uint32) *Behaviour {
	return &Behaviour{
		Object:       o,
		Index:        index,
		Name:         name,
		SyncInterval: interval,
		vars:         make(map[uint8][]byte, 4),
	}
}

// Set stores a field value and, once the object is spawned, queues the
// holder for the next flush.
func (b *Behaviour) Set(index uint8, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	if !b.isChanged(index) {
		b.changed = append(b.changed, index)
	}
	b.vars[index] = v
	if b.set != nil && b.Object != nil && b.Object.State == Spawned {
		b.set.Add(b)
	}
}

func (b *Behaviour) isChanged(index uint8) bool {
	for _, c := range b.changed {
		if c == index {
			return true
		}
	}
	return false
}

// Get returns the current value of a field.
func (b *Behaviour) Get(index uint8) ([]byte, bool) {
	v, ok := b.vars[index]
	return v, ok
}

// Dirty reports unflushed changes.
func (b *Behaviour) Dirty() bool { return len(b.changed) > 0 }

// Due reports whether the sync interval elapsed at tick.
func (b *Behaviour) Due(tick uint32) bool {
	return tick-b.lastSync >= b.SyncInterval
}

// TakeChanges returns the changed fields in change order and marks the
// holder flushed at tick.
func (b *Behaviour) TakeChanges(tick uint32) []SyncVar {
	out := make([]SyncVar, 0, len(b.changed))
	for _, idx := range b.changed {
		out = append(out, SyncVar{Index: idx, Value: b.vars[idx]})
	}
	b.changed = b.changed[:0]
	b.lastSync = tick
	return out
}

// Snapshot returns every field ordered by index (spawn payload).
func (b *Behaviour) Snapshot() []SyncVar {
	out := make([]SyncVar, 0, len(b.vars))
	for idx, v := range b.vars {
		out = append(out, SyncVar{Index: idx, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// bind attaches the holder to the dirty set at spawn time. Changes made
// before spawning are part of the spawn snapshot, not a delta.
func (b *Behaviour) bind(set *DirtySet, tick uint32) {
	b.set = set
	b.changed = b.changed[:0]
	b.lastSync = tick
}

func (b *Behaviour) unbind() {
	if b.set != nil {
		b.set.Remove(b)
	}
	b.set = nil
	b.changed = b.changed[:0]
}

// DirtySet is the set of holders with unflushed changes. Membership is
// cleared when a holder is fully flushed.
type DirtySet struct {
	items []*Behaviour
	index map[*Behaviour]int
}

func NewDirtySet() *DirtySet {
	return &DirtySet{
		items: make([]*Behaviour, 0, 64),
		index: make(map[*Behaviour]int, 64),
	}
}

func (s *DirtySet) Add(b *Behaviour) {
	if _, ok := s.index[b]; ok {
		return
	}
	s.index[b] = len(s.items)
	s.items = append(s.items, b)
}

func (s *DirtySet) Remove(b *Behaviour) {
	i, ok := s.index[b]
	if !ok {
		return
	}
	last := len(s.items) - 1
	if i != last {
		s.items[i] = s.items[last]
		s.index[s.items[i]] = i
	}
	s.items[last] = nil
	s.items = s.items[:last]
	delete(s.index, b)
}

func (s *DirtySet) Has(b *Behaviour) bool {
	_, ok := s.index[b]
	return ok
}

func (s *DirtySet) Len() int { return len(s.items) }

// Snapshot copies the current members; flushing removes members while the
// copy is walked.
func (s *DirtySet) Snapshot() []*Behaviour {
	out := make([]*Behaviour, len(s.items))
	copy(out, s.items)
	return out
}
