package data

import (
	"os"
	"path/filepath"
	"testing"
)

const prefabYAML = `
- id: 1
  name: avatar
  predicted_spawn: true
  predicted_despawn: true
  spawn_check: can_spawn_avatar
  behaviours:
    - name: transform
      sync_interval: 2
  children:
    - prefab: 2
      active: true
- id: 2
  name: nameplate
`

func TestLoadPrefabTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefabs.yaml")
	if err := os.WriteFile(path, []byte(prefabYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tbl, err := LoadPrefabTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tbl.Count() != 2 {
		t.Fatalf("expected 2 prefabs, got %d", tbl.Count())
	}
	avatar := tbl.Get(1)
	if avatar == nil || avatar.SpawnCheck != "can_spawn_avatar" || !avatar.PredictedSpawn {
		t.Fatalf("unexpected avatar prefab: %+v", avatar)
	}
	if len(avatar.Behaviours) != 1 || avatar.Behaviours[0].SyncInterval != 2 {
		t.Fatalf("unexpected behaviours: %+v", avatar.Behaviours)
	}
	if len(avatar.Children) != 1 || avatar.Children[0].Prefab != 2 || !avatar.Children[0].Active {
		t.Fatalf("unexpected children: %+v", avatar.Children)
	}
}

func TestParsePrefabTableRejectsBadNesting(t *testing.T) {
	cases := map[string]string{
		"unknown child": "- id: 1\n  children:\n    - prefab: 9\n",
		"cycle":         "- id: 1\n  children:\n    - prefab: 2\n- id: 2\n  children:\n    - prefab: 1\n",
		"duplicate":     "- id: 1\n- id: 1\n",
	}
	for name, raw := range cases {
		if _, err := ParsePrefabTable([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParseSceneTable(t *testing.T) {
	raw := `
scenes:
  - name: arena
    objects:
      - scene_id: 100
        prefab: 1
        active: true
        position: [1, 0, 2]
      - scene_id: 101
        prefab: 2
        parent: 100
`
	tbl, err := ParseSceneTable([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	arena := tbl.Get("arena")
	if arena == nil || len(arena.Objects) != 2 {
		t.Fatalf("unexpected arena: %+v", arena)
	}
	if arena.Objects[0].Position != [3]float32{1, 0, 2} {
		t.Fatalf("unexpected position: %v", arena.Objects[0].Position)
	}
	if arena.Objects[1].Parent != 100 {
		t.Fatalf("expected parent 100, got %d", arena.Objects[1].Parent)
	}
	if tbl.Get("missing") != nil {
		t.Fatalf("expected nil for unknown scene")
	}
}

func TestSceneValidate(t *testing.T) {
	prefabs, err := ParsePrefabTable([]byte(prefabYAML))
	if err != nil {
		t.Fatalf("prefabs: %v", err)
	}
	raw := `
scenes:
  - name: a
    objects:
      - scene_id: 1
        prefab: 1
      - scene_id: 2
        prefab: 9
      - scene_id: 3
        prefab: 2
        parent: 4
      - scene_id: 4
        prefab: 2
  - name: b
    objects:
      - scene_id: 1
        prefab: 1
      - scene_id: 0
        prefab: 1
`
	scenes, err := ParseSceneTable([]byte(raw))
	if err != nil {
		t.Fatalf("scenes: %v", err)
	}
	// unknown prefab, late parent, repeated id, zero id
	if errs := scenes.Validate(prefabs); len(errs) != 4 {
		t.Fatalf("expected 4 problems, got %d: %v", len(errs), errs)
	}

	var names []string
	scenes.Each(func(s *SceneDef) { names = append(names, s.Name) })
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("expected file order [a b], got %v", names)
	}
}
