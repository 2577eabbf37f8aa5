package event

import (
	"reflect"
	"sync"
)

type queued struct {
	key reflect.Type
	ev  any
}

// Bus is a double-buffered event bus. Events emitted in tick N are readable
// in tick N+1, in the order they were emitted. SwapBuffers is called at tick
// start by EventSystem.
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    []queued
	back     []queued
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]queued, 0, 16),
		back:     make([]queued, 0, 16),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

func keyOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Emit queues an event into the back buffer (will be readable next tick).
func Emit[T any](b *Bus, event T) {
	b.back = append(b.back, queued{key: keyOf[T](), ev: event})
}

// Subscribe registers a typed handler for events of type T. The type
// assertion is bound here once so dispatch is a plain call.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := keyOf[T]()
	b.handlers[k] = append(b.handlers[k], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers rotates back→front and clears the new back buffer.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front[:0]
}

// DispatchAll delivers all front-buffer events to their subscribed handlers.
// Events emitted by handlers land in the back buffer for the next tick.
func (b *Bus) DispatchAll() int {
	n := 0
	for i := range b.front {
		q := b.front[i]
		for _, h := range b.handlers[q.key] {
			h(q.ev)
		}
		n++
	}
	b.front = b.front[:0]
	return n
}

// Pending returns the number of events waiting for the next swap.
func (b *Bus) Pending() int { return len(b.back) }
