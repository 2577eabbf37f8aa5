package world

import "github.com/l1jgo/netsync/internal/data"

// TypeTag is the compact type key of an object kind (its prefab id).
type TypeTag uint16

// Eligibility decides whether a client may predict the creation or removal
// of an object. Implementations are bound per kind at registration.
type Eligibility interface {
	CanPredictSpawn(c *Connection, o *NetworkObject) bool
	CanPredictDespawn(c *Connection, o *NetworkObject) bool
}

// Kind is the capability table entry for one object type.
type Kind struct {
	Tag    TypeTag
	Prefab *data.Prefab
	Check  Eligibility // nil = prefab flags decide alone
}

// AllowsPredictedSpawn combines the prefab flag with the bound check.
func (k *Kind) AllowsPredictedSpawn(c *Connection, o *NetworkObject) bool {
	if k == nil || !k.Prefab.PredictedSpawn {
		return false
	}
	return k.Check == nil || k.Check.CanPredictSpawn(c, o)
}

// AllowsPredictedDespawn combines the prefab flag with the bound check.
func (k *Kind) AllowsPredictedDespawn(c *Connection, o *NetworkObject) bool {
	if k == nil || !k.Prefab.PredictedDespawn {
		return false
	}
	return k.Check == nil || k.Check.CanPredictDespawn(c, o)
}

// KindTable resolves type tags to kinds. Built once at startup.
type KindTable struct {
	kinds map[TypeTag]*Kind
}

// NewKindTable registers one kind per prefab. bind may return nil when a
// prefab has no scripted checks.
func NewKindTable(prefabs *data.PrefabTable, bind func(*data.Prefab) Eligibility) *KindTable {
	t := &KindTable{kinds: make(map[TypeTag]*Kind, prefabs.Count())}
	prefabs.Each(func(p *data.Prefab) {
		k := &Kind{Tag: TypeTag(p.ID), Prefab: p}
		if bind != nil {
			k.Check = bind(p)
		}
		t.kinds[k.Tag] = k
	})
	return t
}

func (t *KindTable) Get(tag TypeTag) *Kind {
	return t.kinds[tag]
}

func (t *KindTable) Count() int {
	return len(t.kinds)
}
