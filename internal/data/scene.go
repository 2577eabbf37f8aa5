package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SceneObjectDef is an object placed in a scene at authoring time.
type SceneObjectDef struct {
	SceneID  uint64     `yaml:"scene_id"` // stable, non-zero, unique across scenes
	Prefab   uint16     `yaml:"prefab"`
	Parent   uint64     `yaml:"parent"` // scene id of the parent, 0 = root
	Active   bool       `yaml:"active"`
	Position [3]float32 `yaml:"position"`
}

// SceneDef lists the authored objects of one scene.
type SceneDef struct {
	Name    string           `yaml:"name"`
	Objects []SceneObjectDef `yaml:"objects"`
}

type sceneFile struct {
	Scenes []SceneDef `yaml:"scenes"`
}

// SceneTable provides lookup of scenes by name.
type SceneTable struct {
	scenes map[string]*SceneDef
	order  []string
}

// LoadSceneTable loads scenes.yaml.
func LoadSceneTable(path string) (*SceneTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene list: %w", err)
	}
	return ParseSceneTable(raw)
}

// ParseSceneTable builds a table from yaml bytes. Per-object validation
// (scene ids, prefab references) happens when a scene is bootstrapped.
func ParseSceneTable(raw []byte) (*SceneTable, error) {
	var f sceneFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse scene list: %w", err)
	}
	t := &SceneTable{scenes: make(map[string]*SceneDef, len(f.Scenes))}
	for i := range f.Scenes {
		s := &f.Scenes[i]
		if s.Name == "" {
			return nil, fmt.Errorf("scene #%d has no name", i)
		}
		if _, dup := t.scenes[s.Name]; dup {
			return nil, fmt.Errorf("duplicate scene %q", s.Name)
		}
		t.scenes[s.Name] = s
		t.order = append(t.order, s.Name)
	}
	return t, nil
}

// Get returns the named scene, or nil.
func (t *SceneTable) Get(name string) *SceneDef {
	return t.scenes[name]
}

// Each visits scenes in file order.
func (t *SceneTable) Each(fn func(*SceneDef)) {
	for _, name := range t.order {
		fn(t.scenes[name])
	}
}

// Count returns the total number of scenes loaded.
func (t *SceneTable) Count() int {
	return len(t.scenes)
}
