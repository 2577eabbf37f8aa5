package ecs

import "testing"

type testComp struct{ n int }

func TestDestroyInvalidatesHandle(t *testing.T) {
	p := NewEntityPool()
	a := p.Create()
	if a.IsZero() {
		t.Fatalf("expected non-zero handle")
	}
	if !p.Destroy(a) {
		t.Fatalf("expected destroy of live handle to succeed")
	}
	if p.Alive(a) {
		t.Fatalf("expected stale handle to be dead")
	}
	if p.Destroy(a) {
		t.Fatalf("expected second destroy to be ignored")
	}

	b := p.Create()
	if b.Index() != a.Index() {
		t.Fatalf("expected slot %d to be recycled, got %d", a.Index(), b.Index())
	}
	if b.Generation() == a.Generation() {
		t.Fatalf("expected generation to change on recycle")
	}
	if p.Live() != 1 {
		t.Fatalf("expected 1 live handle, got %d", p.Live())
	}
}

func TestDestroyQueueDedupeAndFlush(t *testing.T) {
	w := NewWorld()
	store := NewPtrComponentStore[testComp]()
	w.Registry().Register(store)

	a := w.CreateEntity()
	b := w.CreateEntity()
	store.Set(a, &testComp{n: 1})
	store.Set(b, &testComp{n: 2})

	w.MarkForDestruction(a)
	w.MarkForDestruction(a)
	if !w.PendingDestruction(a) || w.PendingDestruction(b) {
		t.Fatalf("expected only a queued")
	}

	if n := w.FlushDestroyQueue(); n != 1 {
		t.Fatalf("expected 1 destroyed handle, got %d", n)
	}
	if w.Alive(a) || store.Has(a) {
		t.Fatalf("expected a to be destroyed and removed from stores")
	}
	if !w.Alive(b) || !store.Has(b) {
		t.Fatalf("expected unqueued handle b to survive")
	}
	if w.PendingDestruction(a) {
		t.Fatalf("expected queue to be empty after flush")
	}
}
