package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BehaviourDef declares one replicated-state holder of a prefab.
type BehaviourDef struct {
	Name         string `yaml:"name"`
	SyncInterval uint32 `yaml:"sync_interval"` // ticks between flushes (0 = every tick)
}

// NestedDef declares a child object instantiated together with its prefab.
type NestedDef struct {
	Prefab uint16 `yaml:"prefab"`
	Active bool   `yaml:"active"` // spawns together with the parent
}

// Prefab is one spawnable object template.
type Prefab struct {
	ID                uint16         `yaml:"id"`
	Name              string         `yaml:"name"`
	Global            bool           `yaml:"global"`
	SurviveDisconnect bool           `yaml:"survive_disconnect"`
	PredictedSpawn    bool           `yaml:"predicted_spawn"`
	PredictedDespawn  bool           `yaml:"predicted_despawn"`
	SpawnCheck        string         `yaml:"spawn_check"`   // lua function name, optional
	DespawnCheck      string         `yaml:"despawn_check"` // lua function name, optional
	Behaviours        []BehaviourDef `yaml:"behaviours"`
	Children          []NestedDef    `yaml:"children"`
}

// PrefabTable provides lookup of prefabs by id.
type PrefabTable struct {
	prefabs map[uint16]*Prefab
	order   []uint16
}

// LoadPrefabTable loads prefabs.yaml.
func LoadPrefabTable(path string) (*PrefabTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prefab list: %w", err)
	}
	return ParsePrefabTable(raw)
}

// ParsePrefabTable builds a table from yaml bytes and checks nested references.
func ParsePrefabTable(raw []byte) (*PrefabTable, error) {
	var entries []Prefab
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse prefab list: %w", err)
	}
	t := &PrefabTable{prefabs: make(map[uint16]*Prefab, len(entries))}
	for i := range entries {
		p := &entries[i]
		if _, dup := t.prefabs[p.ID]; dup {
			return nil, fmt.Errorf("duplicate prefab id %d", p.ID)
		}
		if len(p.Behaviours) > 255 {
			return nil, fmt.Errorf("prefab %d: too many behaviours (%d)", p.ID, len(p.Behaviours))
		}
		t.prefabs[p.ID] = p
		t.order = append(t.order, p.ID)
	}
	for _, id := range t.order {
		if err := t.checkNesting(id, map[uint16]bool{}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// checkNesting rejects unknown children and prefabs that contain themselves.
func (t *PrefabTable) checkNesting(id uint16, path map[uint16]bool) error {
	if path[id] {
		return fmt.Errorf("prefab %d: nesting cycle", id)
	}
	path[id] = true
	defer delete(path, id)
	for _, c := range t.prefabs[id].Children {
		if _, ok := t.prefabs[c.Prefab]; !ok {
			return fmt.Errorf("prefab %d: unknown child prefab %d", id, c.Prefab)
		}
		if err := t.checkNesting(c.Prefab, path); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the prefab with the given id, or nil.
func (t *PrefabTable) Get(id uint16) *Prefab {
	return t.prefabs[id]
}

// Each visits prefabs in file order.
func (t *PrefabTable) Each(fn func(*Prefab)) {
	for _, id := range t.order {
		fn(t.prefabs[id])
	}
}

// Count returns the total number of prefabs loaded.
func (t *PrefabTable) Count() int {
	return len(t.prefabs)
}
