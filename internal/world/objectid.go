package world

import (
	"fmt"
	"math/rand"
)

// ObjectID identifies a spawned network object on the wire.
type ObjectID uint16

// UnsetID marks an object that is not spawned. It is never issued.
const UnsetID ObjectID = 0xFFFF

// MaxNamespace is the largest supported namespace size N.
const MaxNamespace = 1 << 16

// IDAllocator issues object ids from [0, N-2]; N-1 is reserved.
// The free list is FIFO so a released id waits behind every other free id
// before it is handed out again.
type IDAllocator struct {
	queue []ObjectID
	head  int
	free  []bool // free[id] = id is in the queue
	size  int
}

// NewIDAllocator builds the free list for a namespace of size n.
// Unless sequential is set the initial order is shuffled so observers
// cannot infer how many objects were spawned from the ids they see.
func NewIDAllocator(n int, sequential bool) *IDAllocator {
	if n < 2 || n > MaxNamespace {
		panic(fmt.Sprintf("id namespace %d out of range", n))
	}
	a := &IDAllocator{
		queue: make([]ObjectID, 0, n-1),
		free:  make([]bool, n),
		size:  n,
	}
	for i := 0; i < n-1; i++ {
		a.queue = append(a.queue, ObjectID(i))
		a.free[i] = true
	}
	if !sequential {
		rand.Shuffle(len(a.queue), func(i, j int) {
			a.queue[i], a.queue[j] = a.queue[j], a.queue[i]
		})
	}
	return a
}

// Allocate pops the next free id.
func (a *IDAllocator) Allocate() (ObjectID, error) {
	if a.head >= len(a.queue) {
		return UnsetID, ErrIDsExhausted
	}
	id := a.queue[a.head]
	a.head++
	a.free[id] = false
	a.compact()
	return id, nil
}

// Release returns id to the back of the free list.
func (a *IDAllocator) Release(id ObjectID) error {
	if int(id) >= a.size-1 {
		return fmt.Errorf("release %d: %w", id, ErrIDOutOfRange)
	}
	if a.free[id] {
		return fmt.Errorf("release %d: %w", id, ErrDoubleRelease)
	}
	a.free[id] = true
	a.queue = append(a.queue, id)
	return nil
}

// IsFree reports whether id is currently in the free list.
func (a *IDAllocator) IsFree(id ObjectID) bool {
	return int(id) < a.size-1 && a.free[id]
}

// Free returns the number of ids available.
func (a *IDAllocator) Free() int { return len(a.queue) - a.head }

// Capacity returns the number of issuable ids (N-1).
func (a *IDAllocator) Capacity() int { return a.size - 1 }

func (a *IDAllocator) compact() {
	if a.head < 1024 || a.head*2 < len(a.queue) {
		return
	}
	n := copy(a.queue, a.queue[a.head:])
	a.queue = a.queue[:n]
	a.head = 0
}
